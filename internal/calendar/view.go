package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
)

type Range string

const (
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

func ParseRange(s string) (Range, error) {
	switch Range(s) {
	case RangeDay, RangeWeek, RangeMonth:
		return Range(s), nil
	case "":
		return RangeWeek, nil
	default:
		return "", fmt.Errorf("unknown calendar range %q", s)
	}
}

type Mode string

const (
	ModeGrid Mode = "grid"
	ModeList Mode = "list"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGrid, ModeList:
		return Mode(s), nil
	case "":
		return ModeGrid, nil
	default:
		return "", fmt.Errorf("unknown calendar mode %q", s)
	}
}

// Bounds returns the first and last date of the range containing anchor.
// Weeks start on Monday.
func Bounds(anchor appointment.Date, r Range) (from, to appointment.Date) {
	switch r {
	case RangeDay:
		return anchor, anchor
	case RangeMonth:
		first := appointment.NewDate(anchor.Year, anchor.Month, 1)
		return first, appointment.DateOf(first.Time().AddDate(0, 1, -1))
	default:
		offset := (int(anchor.Weekday()) + 6) % 7
		from = anchor.AddDays(-offset)
		return from, from.AddDays(6)
	}
}

// Days lists every date in [from, to].
func Days(from, to appointment.Date) []appointment.Date {
	var out []appointment.Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// View is the render-ready board. It is either a *GridView or a *ListView.
type View interface {
	Mode() Mode
	isView()
}

// GridView places each day's appointments on the time grid.
type GridView struct {
	Days []GridDay      `json:"days"`
	Rows []timegrid.Row `json:"rows"`
	// Height is the full pixel height of a day column.
	Height float64 `json:"height"`
}

type GridDay struct {
	Date       appointment.Date `json:"date"`
	Placements []Placement      `json:"placements"`
	// Outside holds appointments lying entirely outside the grid window.
	Outside []appointment.Appointment `json:"outside,omitempty"`
}

// Placement is one appointment's box in a day column.
type Placement struct {
	Appointment appointment.Appointment `json:"appointment"`
	Top         float64                 `json:"top"`
	Height      float64                 `json:"height"`
	Lane        int                     `json:"lane"`
	Lanes       int                     `json:"lanes"`
	Clipped     bool                    `json:"clipped,omitempty"`
}

// ListView is the same filtered set grouped by day without geometry.
type ListView struct {
	Days []ListDay `json:"days"`
}

type ListDay struct {
	Date         appointment.Date          `json:"date"`
	Appointments []appointment.Appointment `json:"appointments"`
}

func (*GridView) Mode() Mode { return ModeGrid }
func (*GridView) isView()    {}
func (*ListView) Mode() Mode { return ModeList }
func (*ListView) isView()    {}

// groupByDay buckets appts per date in dates, sorted by start time.
func groupByDay(dates []appointment.Date, appts []appointment.Appointment) map[appointment.Date][]appointment.Appointment {
	byDay := make(map[appointment.Date][]appointment.Appointment, len(dates))
	for _, d := range dates {
		byDay[d] = nil
	}
	for _, a := range appts {
		if _, ok := byDay[a.Date]; ok {
			byDay[a.Date] = append(byDay[a.Date], a)
		}
	}
	for d, list := range byDay {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].StartTime != list[j].StartTime {
				return list[i].StartTime < list[j].StartTime
			}
			return list[i].ID.String() < list[j].ID.String()
		})
		byDay[d] = list
	}
	return byDay
}

// layoutDay positions a day's appointments, sorted by start time. Overlapping
// appointments are spread over lanes; a cluster of mutually reachable overlaps shares one lane count.
func layoutDay(grid timegrid.Grid, def time.Duration, appts []appointment.Appointment) ([]Placement, []appointment.Appointment) {
	var (
		placements []Placement
		outside    []appointment.Appointment
		laneEnds   []appointment.Clock
		cluster    []int // indexes into placements
		clusterEnd appointment.Clock
	)
	closeCluster := func() {
		lanes := 0
		for _, i := range cluster {
			if placements[i].Lane+1 > lanes {
				lanes = placements[i].Lane + 1
			}
		}
		for _, i := range cluster {
			placements[i].Lanes = lanes
		}
		cluster = cluster[:0]
		laneEnds = laneEnds[:0]
	}

	for _, a := range appts {
		start, end := a.StartTime, a.End(def)
		if end <= grid.Open() || start >= grid.Close() {
			outside = append(outside, a)
			continue
		}
		clipped := false
		if start < grid.Open() {
			start, clipped = grid.Open(), true
		}
		if end > grid.Close() {
			end, clipped = grid.Close(), true
		}

		if len(cluster) > 0 && start >= clusterEnd {
			closeCluster()
		}
		lane := -1
		for i, e := range laneEnds {
			if e <= start {
				lane = i
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, end)
		} else {
			laneEnds[lane] = end
		}
		if end > clusterEnd || len(cluster) == 0 {
			clusterEnd = end
		}

		top := grid.PositionOf(start)
		placements = append(placements, Placement{
			Appointment: a,
			Top:         top,
			Height:      grid.PositionOf(end) - top,
			Lane:        lane,
			Clipped:     clipped,
		})
		cluster = append(cluster, len(placements)-1)
	}
	if len(cluster) > 0 {
		closeCluster()
	}
	return placements, outside
}
