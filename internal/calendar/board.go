// Package calendar holds the visible appointment set for a date range and renders it
// as a time grid or a list.
package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/editor"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// Board owns the appointments of its visible range. Local copies change only through
// Load or Acknowledge, i.e. after the store has the data.
type Board struct {
	store           appointment.AppointmentReader
	grid            timegrid.Grid
	defaultDuration time.Duration
	bookings        *booking.Service
	editors         *editor.Service
	logger          *logging.Logger

	mu       sync.RWMutex
	anchor   appointment.Date
	rng      Range
	mode     Mode
	selected *appointment.Date
	appts    map[uuid.UUID]appointment.Appointment
	stale    bool
}

// NewBoard creates a week grid anchored at anchor. bookings and editors may be nil when
// the board is only rendered.
func NewBoard(store appointment.AppointmentReader, grid timegrid.Grid, defaultDuration time.Duration, bookings *booking.Service, editors *editor.Service, logger *logging.Logger, anchor appointment.Date) *Board {
	if logger == nil {
		logger = logging.Default()
	}
	return &Board{
		store:           store,
		grid:            grid,
		defaultDuration: defaultDuration,
		bookings:        bookings,
		editors:         editors,
		logger:          logger.With("component", "calendar"),
		anchor:          anchor,
		rng:             RangeWeek,
		mode:            ModeGrid,
		appts:           make(map[uuid.UUID]appointment.Appointment),
		stale:           true,
	}
}

func (b *Board) Grid() timegrid.Grid { return b.grid }

// Bounds returns the first and last visible date.
func (b *Board) Bounds() (appointment.Date, appointment.Date) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Bounds(b.anchor, b.rng)
}

// SetRange changes the visible range. The board is stale until the next Load.
func (b *Board) SetRange(anchor appointment.Date, r Range) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anchor, b.rng = anchor, r
	b.stale = true
	if b.selected != nil {
		from, to := Bounds(anchor, r)
		if b.selected.Before(from) || b.selected.After(to) {
			b.selected = nil
		}
	}
}

func (b *Board) SetMode(m Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = m
}

// SelectDay filters the view to one visible day.
func (b *Board) SelectDay(d appointment.Date) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, to := Bounds(b.anchor, b.rng)
	if d.Before(from) || d.After(to) {
		return fmt.Errorf("day %s is outside the visible range %s..%s", d, from, to)
	}
	b.selected = &d
	return nil
}

func (b *Board) ClearDay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = nil
}

// Load replaces the local set with the non-cancelled appointments of the visible range.
func (b *Board) Load(ctx context.Context) error {
	from, to := b.Bounds()
	list, err := b.store.ListAppointments(ctx, appointment.Query{
		From:          from,
		To:            to,
		ExcludeStatus: []appointment.Status{appointment.StatusCancelled},
	})
	if err != nil {
		return fmt.Errorf("load calendar %s..%s: %w", from, to, err)
	}

	appts := make(map[uuid.UUID]appointment.Appointment, len(list))
	for _, a := range list {
		appts[a.ID] = a
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if f, t := Bounds(b.anchor, b.rng); f != from || t != to {
		// range changed while loading, keep it stale
		return nil
	}
	b.appts = appts
	b.stale = false
	b.logger.Debug("calendar loaded", "from", from.String(), "to", to.String(), "count", len(appts))
	return nil
}

// Refresh reloads only when a change notification or range change made the board stale.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.RLock()
	stale := b.stale
	b.mu.RUnlock()
	if !stale {
		return nil
	}
	return b.Load(ctx)
}

func (b *Board) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Watch marks the board stale whenever a change lands inside the visible range.
func (b *Board) Watch(n *events.Notifier, name string) (unsubscribe func()) {
	return n.Subscribe(name, func(e events.Event) {
		b.mu.Lock()
		defer b.mu.Unlock()
		from, to := Bounds(b.anchor, b.rng)
		_, visible := b.appts[e.AppointmentID]
		if visible || (!e.Date.Before(from) && !e.Date.After(to)) {
			b.stale = true
		}
	})
}

// Lookup returns a visible appointment.
func (b *Board) Lookup(id uuid.UUID) (appointment.Appointment, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.appts[id]
	return a, ok
}

// HasColumn reports whether d is a visible day column.
func (b *Board) HasColumn(d appointment.Date) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	from, to := Bounds(b.anchor, b.rng)
	if b.selected != nil {
		return d == *b.selected
	}
	return !d.Before(from) && !d.After(to)
}

// Acknowledge applies a patch the store has already accepted.
func (b *Board) Acknowledge(id uuid.UUID, p appointment.Patch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.appts[id]
	if !ok {
		b.stale = true
		return
	}
	a = p.Apply(a)
	from, to := Bounds(b.anchor, b.rng)
	if a.Status == appointment.StatusCancelled || a.Date.Before(from) || a.Date.After(to) {
		delete(b.appts, id)
		return
	}
	b.appts[id] = a
}

// View renders the current set in the current mode.
func (b *Board) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()

	from, to := Bounds(b.anchor, b.rng)
	dates := Days(from, to)
	if b.selected != nil {
		dates = []appointment.Date{*b.selected}
	}
	list := make([]appointment.Appointment, 0, len(b.appts))
	for _, a := range b.appts {
		list = append(list, a)
	}
	byDay := groupByDay(dates, list)

	switch b.mode {
	case ModeList:
		v := &ListView{Days: make([]ListDay, 0, len(dates))}
		for _, d := range dates {
			v.Days = append(v.Days, ListDay{Date: d, Appointments: byDay[d]})
		}
		return v
	default:
		v := &GridView{
			Days:   make([]GridDay, 0, len(dates)),
			Rows:   b.grid.Rows(),
			Height: b.grid.TotalHeight(),
		}
		for _, d := range dates {
			placements, outside := layoutDay(b.grid, b.defaultDuration, byDay[d])
			v.Days = append(v.Days, GridDay{Date: d, Placements: placements, Outside: outside})
		}
		return v
	}
}

// ClickEmpty opens a booking wizard pre-seeded with the clicked day.
func (b *Board) ClickEmpty(d appointment.Date, block bool) (*booking.Wizard, error) {
	if b.bookings == nil {
		return nil, fmt.Errorf("calendar board has no booking service")
	}
	if !b.HasColumn(d) {
		return nil, fmt.Errorf("day %s is not visible", d)
	}
	return b.bookings.Start(d, block), nil
}

// ClickAppointment opens the detail editor for a visible appointment.
func (b *Board) ClickAppointment(ctx context.Context, id uuid.UUID) (*editor.Editor, error) {
	if b.editors == nil {
		return nil, fmt.Errorf("calendar board has no editor service")
	}
	if _, ok := b.Lookup(id); !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return b.editors.Open(ctx, id)
}
