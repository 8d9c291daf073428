// Package editor loads a single appointment for display and applies edits, status changes
// and soft cancellation.
package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var (
	ErrNoChanges            = errors.New("no changes to save")
	ErrConfirmationRequired = errors.New("cancelling an appointment must be confirmed")
	ErrAlreadyCancelled     = errors.New("appointment is already cancelled")
)

type Service struct {
	store    appointment.Store
	checker  *availability.Checker
	locker   redisclient.Locker
	policy   appointment.TransitionPolicy
	notifier *events.Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

// NewService wires the editor collaborators. A nil policy means LifecyclePolicy.
func NewService(store appointment.Store, checker *availability.Checker, locker redisclient.Locker, policy appointment.TransitionPolicy, notifier *events.Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if locker == nil {
		locker = redisclient.NewLocalDayLocker()
	}
	if policy == nil {
		policy = appointment.LifecyclePolicy{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		checker:  checker,
		locker:   locker,
		policy:   policy,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "editor"),
	}
}

// Load fetches the appointment with its patient and practitioner.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*appointment.Detail, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &appointment.Detail{Appointment: *a}
	if a.PatientID != nil {
		p, err := s.store.GetPatient(ctx, *a.PatientID)
		if err != nil && !errors.Is(err, appointment.ErrPatientNotFound) {
			return nil, fmt.Errorf("load patient: %w", err)
		}
		detail.Patient = p
	}
	pr, err := s.store.GetPractitioner(ctx, a.PractitionerID)
	if err != nil && !errors.Is(err, appointment.ErrPractitionerNotFound) {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	detail.Practitioner = pr
	return detail, nil
}

// Open loads the appointment and returns an editor over it.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Editor, error) {
	detail, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Editor{svc: s, detail: *detail}, nil
}

// Editor holds pending edits for one appointment. Not safe for concurrent use.
type Editor struct {
	svc     *Service
	detail  appointment.Detail
	pending appointment.Patch
}

func (e *Editor) Detail() appointment.Detail { return e.detail }

// Pending returns the unsaved changes.
func (e *Editor) Pending() appointment.Patch { return e.pending }

// AllowedStatuses lists the statuses the policy offers from the saved status,
// the same base SetStatus checks against. Cancelled goes through Cancel.
func (e *Editor) AllowedStatuses() []appointment.Status {
	return e.svc.policy.Next(e.detail.Appointment.Status)
}

func (e *Editor) SetStatus(s appointment.Status) error {
	if !s.Valid() {
		return appointment.Invalid("status", "unknown status %q", s)
	}
	if s == appointment.StatusCancelled {
		return appointment.Invalid("status", "use cancel to cancel an appointment")
	}
	from := e.detail.Appointment.Status
	if !e.svc.policy.Allowed(from, s) {
		return appointment.Invalid("status", "cannot change status from %s to %s", from, s)
	}
	if s == from {
		e.pending.Status = nil
		return nil
	}
	e.pending.Status = &s
	return nil
}

// SetStartTime moves the appointment within its day, keeping its duration.
func (e *Editor) SetStartTime(t appointment.Clock) error {
	if !t.Valid() {
		return appointment.Invalid("start_time", "invalid time %d", int(t))
	}
	orig := e.detail.Appointment
	if t == orig.StartTime {
		e.pending.StartTime, e.pending.EndTime = nil, nil
		return nil
	}
	end := t.Add(orig.Duration(e.svc.checker.DefaultDuration()))
	e.pending.StartTime = &t
	e.pending.EndTime = &end
	return nil
}

func (e *Editor) SetPractitioner(ctx context.Context, id uuid.UUID) error {
	p, err := e.svc.store.GetPractitioner(ctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrPractitionerNotFound) {
			return appointment.Invalid("practitioner", "practitioner not found")
		}
		return fmt.Errorf("load practitioner: %w", err)
	}
	if p.ID == e.detail.Appointment.PractitionerID {
		e.pending.PractitionerID = nil
		return nil
	}
	e.pending.PractitionerID = &p.ID
	return nil
}

func (e *Editor) SetNotes(notes string) {
	if notes == e.detail.Appointment.Notes {
		e.pending.Notes = nil
		return
	}
	e.pending.Notes = &notes
}

// Discard drops unsaved changes.
func (e *Editor) Discard() {
	e.pending = appointment.Patch{}
}

// Save writes all pending changes as one update. Time or practitioner changes are checked
// against opening hours and the target practitioner-day before the write.
func (e *Editor) Save(ctx context.Context) (*appointment.Appointment, error) {
	if e.pending.Empty() {
		return nil, ErrNoChanges
	}
	if e.detail.Appointment.Status == appointment.StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	patch := e.pending
	next := patch.Apply(e.detail.Appointment)

	write := func(ctx context.Context) error {
		if err := e.svc.store.UpdateAppointment(ctx, next.ID, patch); err != nil {
			return &appointment.RemoteWriteError{Op: "update appointment", Err: err}
		}
		return nil
	}

	var err error
	if patch.StartTime != nil || patch.PractitionerID != nil {
		err = e.saveSlot(ctx, next, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		e.svc.metrics.ObserveEdit("save", "failed")
		e.svc.logger.Warn("appointment save failed", "appointment_id", next.ID.String(), "error", err.Error())
		return nil, err
	}

	e.detail.Appointment = next
	if patch.PractitionerID != nil {
		if p, err := e.svc.store.GetPractitioner(ctx, next.PractitionerID); err == nil {
			e.detail.Practitioner = p
		}
	}
	e.pending = appointment.Patch{}
	e.svc.metrics.ObserveEdit("save", "ok")
	e.svc.logger.Info("appointment saved", "appointment_id", next.ID.String())
	e.svc.notifier.Publish(events.Event{
		Kind:           events.AppointmentUpdated,
		AppointmentID:  next.ID,
		PractitionerID: next.PractitionerID,
		Date:           next.Date,
	})
	return &next, nil
}

func (e *Editor) saveSlot(ctx context.Context, next appointment.Appointment, write func(context.Context) error) error {
	def := e.svc.checker.DefaultDuration()
	start, end := next.StartTime, next.End(def)
	if !e.svc.checker.Grid().ContainsRange(start, end) {
		return appointment.Invalid("start_time", "%s-%s is outside opening hours", start, end)
	}
	err := e.svc.locker.WithPractitionerDay(ctx, next.PractitionerID, next.Date, func(ctx context.Context) error {
		hit, err := e.svc.checker.Conflict(ctx, next.PractitionerID, next.Date, start, end, next.ID)
		if err != nil {
			return &appointment.RemoteWriteError{Op: "check availability", Err: err}
		}
		if hit != nil {
			return appointment.Invalid("start_time", "%s-%s overlaps another appointment at %s", start, end, hit.StartTime)
		}
		return write(ctx)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return &appointment.RemoteWriteError{Op: "lock practitioner day", Err: err}
	}
	return err
}

// Cancel soft-cancels the appointment by setting its status. The record is kept.
// confirmed must be true; it is the caller's acknowledgement of an irreversible action.
func (e *Editor) Cancel(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	a := e.detail.Appointment
	if a.Status == appointment.StatusCancelled {
		return ErrAlreadyCancelled
	}
	if !e.svc.policy.Allowed(a.Status, appointment.StatusCancelled) {
		return appointment.Invalid("status", "a %s appointment cannot be cancelled", a.Status)
	}

	status := appointment.StatusCancelled
	if err := e.svc.store.UpdateAppointment(ctx, a.ID, appointment.Patch{Status: &status}); err != nil {
		e.svc.metrics.ObserveEdit("cancel", "failed")
		e.svc.logger.Warn("appointment cancel failed", "appointment_id", a.ID.String(), "error", err.Error())
		return &appointment.RemoteWriteError{Op: "cancel appointment", Err: err}
	}

	e.detail.Appointment.Status = status
	e.detail.Appointment.UpdatedAt = time.Now()
	e.pending = appointment.Patch{}
	e.svc.metrics.ObserveEdit("cancel", "ok")
	e.svc.logger.Info("appointment cancelled", "appointment_id", a.ID.String())
	e.svc.notifier.Publish(events.Event{
		Kind:           events.AppointmentCancelled,
		AppointmentID:  a.ID,
		PractitionerID: a.PractitionerID,
		Date:           a.Date,
	})
	return nil
}
