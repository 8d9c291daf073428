// Package reschedule implements drag and drop moves of appointments between day columns.
package reschedule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var (
	ErrDragInProgress = errors.New("another drag is still in progress")
	ErrNoDrag         = errors.New("no appointment has been picked up")
	ErrNotVisible     = errors.New("appointment is not on the board")
)

var tracer trace.Tracer = otel.Tracer("clinic/reschedule")

// Surface is the board the drag happens on.
type Surface interface {
	Lookup(id uuid.UUID) (appointment.Appointment, bool)
	HasColumn(d appointment.Date) bool
	Acknowledge(id uuid.UUID, p appointment.Patch)
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseCommitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseCommitting:
		return "committing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Drag is the captured source of a pick-up.
type Drag struct {
	AppointmentID  uuid.UUID         `json:"appointment_id"`
	PractitionerID uuid.UUID         `json:"practitioner_id"`
	OriginalDate   appointment.Date  `json:"original_date"`
	OriginalStart  appointment.Clock `json:"original_start"`
	Duration       appointment.Clock `json:"duration_minutes"`
	Hover          *appointment.Date `json:"hover,omitempty"`
}

type State struct {
	Phase Phase `json:"phase"`
	Drag  *Drag `json:"drag,omitempty"`
}

// Outcome is where the appointment should be drawn after a drop.
type Outcome struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	Date          appointment.Date  `json:"date"`
	Start         appointment.Clock `json:"start"`
	Moved         bool              `json:"moved"`
}

// Protocol runs one drag at a time over a Surface.
type Protocol struct {
	store    appointment.AppointmentWriter
	checker  *availability.Checker
	locker   redisclient.Locker
	surface  Surface
	notifier *events.Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger

	mu    sync.Mutex
	phase Phase
	drag  *Drag
}

func New(store appointment.AppointmentWriter, checker *availability.Checker, locker redisclient.Locker, surface Surface, notifier *events.Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Protocol {
	if locker == nil {
		locker = redisclient.NewLocalDayLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Protocol{
		store:    store,
		checker:  checker,
		locker:   locker,
		surface:  surface,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "reschedule"),
	}
}

func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := State{Phase: p.phase}
	if p.drag != nil {
		d := *p.drag
		s.Drag = &d
	}
	return s
}

// PickUp captures the appointment's current position.
func (p *Protocol) PickUp(id uuid.UUID) (Drag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseIdle {
		return Drag{}, ErrDragInProgress
	}
	a, ok := p.surface.Lookup(id)
	if !ok {
		return Drag{}, ErrNotVisible
	}
	def := p.checker.DefaultDuration()
	p.drag = &Drag{
		AppointmentID:  a.ID,
		PractitionerID: a.PractitionerID,
		OriginalDate:   a.Date,
		OriginalStart:  a.StartTime,
		Duration:       a.End(def) - a.StartTime,
	}
	p.phase = PhaseDragging
	return *p.drag, nil
}

// Hover records the candidate day column. Days that are not columns clear the highlight.
func (p *Protocol) Hover(d appointment.Date) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseDragging {
		return false, ErrNoDrag
	}
	if !p.surface.HasColumn(d) {
		p.drag.Hover = nil
		return false, nil
	}
	p.drag.Hover = &d
	return true, nil
}

// Abort drops the drag without any write.
func (p *Protocol) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.phase {
	case PhaseDragging:
		p.reset()
		return nil
	case PhaseCommitting:
		return ErrDragInProgress
	default:
		return ErrNoDrag
	}
}

func (p *Protocol) reset() {
	p.phase = PhaseIdle
	p.drag = nil
}

// Drop decodes the target from the column date and vertical offset and issues the update.
// The surface is changed only after the store accepts the write. On any error the returned
// Outcome is the original position.
func (p *Protocol) Drop(ctx context.Context, column appointment.Date, offset float64) (Outcome, error) {
	p.mu.Lock()
	if p.phase != PhaseDragging {
		p.mu.Unlock()
		if p.phase == PhaseCommitting {
			return Outcome{}, ErrDragInProgress
		}
		return Outcome{}, ErrNoDrag
	}
	drag := *p.drag
	p.phase = PhaseCommitting
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.reset()
		p.mu.Unlock()
	}()

	original := Outcome{AppointmentID: drag.AppointmentID, Date: drag.OriginalDate, Start: drag.OriginalStart}
	outcome, err := p.move(ctx, drag, column, offset)
	if err != nil {
		var rejected *appointment.RescheduleRejected
		if errors.As(err, &rejected) {
			p.metrics.ObserveReschedule("rejected")
			p.logger.Info("reschedule rejected",
				"appointment_id", drag.AppointmentID.String(),
				"reason", string(rejected.Reason),
			)
		} else {
			p.metrics.ObserveReschedule("failed")
			p.logger.Error("reschedule failed",
				"appointment_id", drag.AppointmentID.String(),
				"error", err.Error(),
			)
		}
		return original, err
	}
	return outcome, nil
}

func (p *Protocol) move(ctx context.Context, drag Drag, column appointment.Date, offset float64) (Outcome, error) {
	grid := p.checker.Grid()
	if !p.surface.HasColumn(column) {
		return Outcome{}, &appointment.RescheduleRejected{Reason: appointment.RejectInvalidTarget, Detail: fmt.Sprintf("%s is not a visible day", column)}
	}
	start, ok := grid.DropTime(offset)
	if !ok {
		return Outcome{}, &appointment.RescheduleRejected{Reason: appointment.RejectOutsideWindow, Detail: fmt.Sprintf("offset %.1f is outside the grid", offset)}
	}
	end := start + drag.Duration
	if !grid.ContainsRange(start, end) {
		return Outcome{}, &appointment.RescheduleRejected{Reason: appointment.RejectOutsideWindow, Detail: fmt.Sprintf("%s-%s runs past closing", start, end)}
	}
	if column == drag.OriginalDate && start == drag.OriginalStart {
		p.metrics.ObserveReschedule("unchanged")
		return Outcome{AppointmentID: drag.AppointmentID, Date: column, Start: start}, nil
	}

	ctx, span := tracer.Start(ctx, "reschedule.drop", trace.WithAttributes(
		attribute.String("appointment.id", drag.AppointmentID.String()),
		attribute.String("appointment.date", column.String()),
		attribute.String("appointment.start", start.String()),
	))
	defer span.End()

	patch := appointment.Patch{Date: &column, StartTime: &start, EndTime: &end}
	err := p.locker.WithPractitionerDay(ctx, drag.PractitionerID, column, func(ctx context.Context) error {
		hit, err := p.checker.Conflict(ctx, drag.PractitionerID, column, start, end, drag.AppointmentID)
		if err != nil {
			return &appointment.RemoteWriteError{Op: "check availability", Err: err}
		}
		if hit != nil {
			return &appointment.RescheduleRejected{
				Reason: appointment.RejectSlotConflict,
				Detail: fmt.Sprintf("overlaps appointment at %s", hit.StartTime),
			}
		}
		if err := p.store.UpdateAppointment(ctx, drag.AppointmentID, patch); err != nil {
			return &appointment.RemoteWriteError{Op: "reschedule appointment", Err: err}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = &appointment.RemoteWriteError{Op: "lock practitioner day", Err: err}
		}
		return Outcome{}, err
	}

	p.surface.Acknowledge(drag.AppointmentID, patch)
	p.metrics.ObserveReschedule("moved")
	p.logger.Info("appointment rescheduled",
		"appointment_id", drag.AppointmentID.String(),
		"from", drag.OriginalDate.String()+" "+drag.OriginalStart.String(),
		"to", column.String()+" "+start.String(),
	)
	p.notifier.Publish(events.Event{
		Kind:           events.AppointmentRescheduled,
		AppointmentID:  drag.AppointmentID,
		PractitionerID: drag.PractitionerID,
		Date:           column,
	})
	return Outcome{AppointmentID: drag.AppointmentID, Date: column, Start: start, Moved: true}, nil
}
