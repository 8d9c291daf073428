// Package timegrid maps times of day to vertical offsets on the calendar grid and back.
package timegrid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var (
	ErrInvalidWindow = errors.New("grid window must open before it closes")
	ErrInvalidScale  = errors.New("grid row minutes and row height must be positive")
)

type Config struct {
	Open        appointment.Clock
	Close       appointment.Clock
	RowMinutes  int     // minutes covered by one grid row
	RowHeight   float64 // pixels per row
	SnapMinutes int     // drop resolution, 0 means one minute
}

// DefaultConfig is an 08:00-18:00 grid with 48px half-hour rows.
func DefaultConfig() Config {
	return Config{
		Open:        appointment.ClockOf(8, 0),
		Close:       appointment.ClockOf(18, 0),
		RowMinutes:  30,
		RowHeight:   48,
		SnapMinutes: 15,
	}
}

// Grid is immutable once built. Every offset it hands out and every offset it decodes
// derives from the same row height.
type Grid struct {
	open        appointment.Clock
	close       appointment.Clock
	rowMinutes  int
	rowHeight   float64
	snapMinutes int
}

func New(cfg Config) (Grid, error) {
	if cfg.Open >= cfg.Close || !cfg.Open.Valid() || cfg.Close > appointment.MinutesPerDay {
		return Grid{}, fmt.Errorf("%w: %s-%s", ErrInvalidWindow, cfg.Open, cfg.Close)
	}
	if cfg.RowMinutes <= 0 || cfg.RowHeight <= 0 || cfg.SnapMinutes < 0 {
		return Grid{}, ErrInvalidScale
	}
	snap := cfg.SnapMinutes
	if snap == 0 {
		snap = 1
	}
	return Grid{
		open:        cfg.Open,
		close:       cfg.Close,
		rowMinutes:  cfg.RowMinutes,
		rowHeight:   cfg.RowHeight,
		snapMinutes: snap,
	}, nil
}

// MustNew panics on an invalid config. Meant for tests and package-level defaults.
func MustNew(cfg Config) Grid {
	g, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Grid) Open() appointment.Clock  { return g.open }
func (g Grid) Close() appointment.Clock { return g.close }
func (g Grid) RowHeight() float64       { return g.rowHeight }
func (g Grid) RowMinutes() int          { return g.rowMinutes }

func (g Grid) scale(minutes float64) float64 {
	return minutes * g.rowHeight / float64(g.rowMinutes)
}

// PositionOf returns the offset of t from the top of the grid.
// Callers must check Contains first; times outside the window give offsets outside [0, TotalHeight].
func (g Grid) PositionOf(t appointment.Clock) float64 {
	return g.scale(float64(t - g.open))
}

// TimeOf decodes an offset into the nearest whole minute.
func (g Grid) TimeOf(offset float64) appointment.Clock {
	return g.open + appointment.Clock(math.Round(offset*float64(g.rowMinutes)/g.rowHeight))
}

// Height is the drawn height of something lasting d.
func (g Grid) Height(d time.Duration) float64 {
	return g.scale(d.Minutes())
}

func (g Grid) TotalHeight() float64 {
	return g.PositionOf(g.close)
}

// Contains reports open <= t < close.
func (g Grid) Contains(t appointment.Clock) bool {
	return t >= g.open && t < g.close
}

// ContainsRange reports whether [start, end) lies inside the window.
func (g Grid) ContainsRange(start, end appointment.Clock) bool {
	return start < end && start >= g.open && end <= g.close
}

// Snap rounds t to the nearest drop increment, measured from the window opening.
func (g Grid) Snap(t appointment.Clock) appointment.Clock {
	step := float64(g.snapMinutes)
	n := math.Round(float64(t-g.open) / step)
	return g.open + appointment.Clock(n*step)
}

// DropTime decodes a drop offset into a snapped start time.
// The second result is false when the offset falls outside the grid.
func (g Grid) DropTime(offset float64) (appointment.Clock, bool) {
	if offset < 0 || offset >= g.TotalHeight() {
		return 0, false
	}
	t := g.Snap(g.TimeOf(offset))
	return t, g.Contains(t)
}

// Row is one labelled grid line.
type Row struct {
	Time   appointment.Clock `json:"time"`
	Offset float64           `json:"offset"`
}

func (g Grid) Rows() []Row {
	rows := make([]Row, 0, int(g.close-g.open)/g.rowMinutes+1)
	for t := g.open; t < g.close; t += appointment.Clock(g.rowMinutes) {
		rows = append(rows, Row{Time: t, Offset: g.PositionOf(t)})
	}
	return rows
}
