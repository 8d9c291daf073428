package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
)

// Checker answers availability questions from the appointments stored for a practitioner-day.
type Checker struct {
	store           appointment.AppointmentReader
	grid            timegrid.Grid
	defaultDuration time.Duration
}

func NewChecker(store appointment.AppointmentReader, grid timegrid.Grid, defaultDuration time.Duration) *Checker {
	if defaultDuration <= 0 {
		defaultDuration = DefaultGranularity
	}
	return &Checker{store: store, grid: grid, defaultDuration: defaultDuration}
}

func (c *Checker) DefaultDuration() time.Duration { return c.defaultDuration }

func (c *Checker) Grid() timegrid.Grid { return c.grid }

// Request describes one slot listing. Length defaults to Granularity.
type Request struct {
	PractitionerID uuid.UUID
	Date           appointment.Date
	Granularity    time.Duration
	Length         time.Duration
}

// Slots loads the practitioner's appointments for the day and returns a fresh sequence over the grid window.
func (c *Checker) Slots(ctx context.Context, req Request) (*Sequence, error) {
	appts, err := c.store.ListAppointments(ctx, appointment.ActiveOn(req.PractitionerID, req.Date))
	if err != nil {
		return nil, fmt.Errorf("load appointments for availability: %w", err)
	}
	busy := Busy(appts, c.defaultDuration, uuid.Nil)
	return NewSequence(req.PractitionerID, req.Date, c.grid.Open(), c.grid.Close(), req.Granularity, req.Length, busy), nil
}

// Conflict returns the stored appointment overlapping [start, end) for the practitioner-day,
// ignoring exclude. It returns nil when the range is free.
func (c *Checker) Conflict(ctx context.Context, practitionerID uuid.UUID, date appointment.Date, start, end appointment.Clock, exclude uuid.UUID) (*appointment.Appointment, error) {
	appts, err := c.store.ListAppointments(ctx, appointment.ActiveOn(practitionerID, date))
	if err != nil {
		return nil, fmt.Errorf("load appointments for conflict check: %w", err)
	}
	hit, ok := FirstConflict(appts, Interval{Start: start, End: end}, c.defaultDuration, exclude)
	if !ok {
		return nil, nil
	}
	return hit, nil
}
