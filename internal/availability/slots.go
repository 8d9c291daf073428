// Package availability generates bookable slots for a practitioner-day and checks
// appointment intervals for overlap.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const DefaultGranularity = 30 * time.Minute

// Noon separates the morning and afternoon halves of a day.
var Noon = appointment.ClockOf(12, 0)

// Slot is an ephemeral candidate start time. It is never persisted.
type Slot struct {
	ID        string            `json:"id"`
	Time      appointment.Clock `json:"time"`
	Available bool              `json:"available"`
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start appointment.Clock
	End   appointment.Clock
}

// Overlaps reports whether a and b share at least one minute.
// Intervals that only touch at a boundary do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Busy returns the occupied intervals of appts, skipping cancelled ones and exclude.
// Appointments without an end time occupy def.
func Busy(appts []appointment.Appointment, def time.Duration, exclude uuid.UUID) []Interval {
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status == appointment.StatusCancelled || (exclude != uuid.Nil && a.ID == exclude) {
			continue
		}
		out = append(out, Interval{Start: a.StartTime, End: a.End(def)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// FirstConflict returns the first appointment in appts whose interval overlaps want.
func FirstConflict(appts []appointment.Appointment, want Interval, def time.Duration, exclude uuid.UUID) (*appointment.Appointment, bool) {
	for i := range appts {
		a := appts[i]
		if a.Status == appointment.StatusCancelled || (exclude != uuid.Nil && a.ID == exclude) {
			continue
		}
		if Overlaps(want, Interval{Start: a.StartTime, End: a.End(def)}) {
			return &a, true
		}
	}
	return nil, false
}

// Sequence yields the slots of one practitioner-day in time order.
// It is consumed by Next and cannot be rewound.
type Sequence struct {
	practitionerID uuid.UUID
	date           appointment.Date
	next           appointment.Clock
	close          appointment.Clock
	step           appointment.Clock
	length         appointment.Clock
	busy           []Interval
}

// NewSequence covers [open, close) in steps of step. Each slot is checked for a booking of
// length starting at its time; a slot whose booking would run past close is unavailable.
// busy must be sorted by Start, as Busy returns it.
func NewSequence(practitionerID uuid.UUID, date appointment.Date, open, close appointment.Clock, step, length time.Duration, busy []Interval) *Sequence {
	if step <= 0 {
		step = DefaultGranularity
	}
	if length <= 0 {
		length = step
	}
	return &Sequence{
		practitionerID: practitionerID,
		date:           date,
		next:           open,
		close:          close,
		step:           appointment.Clock(step / time.Minute),
		length:         appointment.Clock(length / time.Minute),
		busy:           busy,
	}
}

// Next returns the following slot, or false once the window is exhausted.
func (s *Sequence) Next() (Slot, bool) {
	if s.step <= 0 || s.next >= s.close {
		return Slot{}, false
	}
	t := s.next
	s.next += s.step

	want := Interval{Start: t, End: t + s.length}
	available := want.End <= s.close
	for _, b := range s.busy {
		if b.Start >= want.End {
			break
		}
		if Overlaps(want, b) {
			available = false
			break
		}
	}
	return Slot{
		ID:        SlotID(s.practitionerID, s.date, t),
		Time:      t,
		Available: available,
	}, true
}

// Collect drains the remaining slots.
func (s *Sequence) Collect() []Slot {
	var out []Slot
	for {
		slot, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, slot)
	}
}

func SlotID(practitionerID uuid.UUID, date appointment.Date, t appointment.Clock) string {
	return fmt.Sprintf("%s/%s/%s", practitionerID, date, t)
}

// Day is the presentation split of a day's slots.
type Day struct {
	Morning   []Slot `json:"morning"`
	Afternoon []Slot `json:"afternoon"`
}

// Split partitions slots at noon. The halves carry no scheduling meaning.
func Split(slots []Slot) Day {
	var d Day
	for _, s := range slots {
		if s.Time < Noon {
			d.Morning = append(d.Morning, s)
		} else {
			d.Afternoon = append(d.Afternoon, s)
		}
	}
	return d
}

// Find returns the slot starting at t.
func Find(slots []Slot, t appointment.Clock) (Slot, bool) {
	for _, s := range slots {
		if s.Time == t {
			return s, true
		}
	}
	return Slot{}, false
}
