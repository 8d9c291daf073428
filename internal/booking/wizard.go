// Package booking implements the multi-step booking wizard and its two-write commit.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var (
	ErrWrongStep        = errors.New("action not allowed at the current wizard step")
	ErrNoPreviousStep   = errors.New("wizard is already at its first step")
	ErrAlreadyCommitted = errors.New("wizard has already committed")
	ErrClosed           = errors.New("wizard is closed")
	ErrBillingPending   = errors.New("appointment exists without billing, retry billing or close the wizard")
)

var tracer = otel.Tracer("clinic/booking")

type Config struct {
	SlotGranularity time.Duration // step between offered slots
	DefaultDuration time.Duration // length of procedures without a duration and of blocks
}

// Service creates wizards that share the same collaborators.
type Service struct {
	store    appointment.Store
	checker  *availability.Checker
	locker   redisclient.Locker
	notifier *events.Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	cfg      Config
}

// NewService wires the wizard collaborators. notifier and m may be nil; a nil locker
// means a process-local LocalDayLocker.
func NewService(store appointment.Store, checker *availability.Checker, locker redisclient.Locker, notifier *events.Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger, cfg Config) *Service {
	if locker == nil {
		locker = redisclient.NewLocalDayLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SlotGranularity <= 0 {
		cfg.SlotGranularity = availability.DefaultGranularity
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = checker.DefaultDuration()
	}
	return &Service{
		store:    store,
		checker:  checker,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "booking"),
		cfg:      cfg,
	}
}

// Start opens a wizard pre-seeded with date. A block wizard begins at EnterBlockReason.
func (s *Service) Start(date appointment.Date, block bool) *Wizard {
	step := StepSelectPatient
	if block {
		step = StepEnterBlockReason
	}
	return &Wizard{
		id:   uuid.New(),
		svc:  s,
		step: step,
		draft: Draft{
			Date:    date,
			IsBlock: block,
		},
	}
}

// Wizard owns one Draft until commit or close. Its methods are safe for concurrent use;
// calls are serialised.
type Wizard struct {
	mu      sync.Mutex
	id      uuid.UUID
	svc     *Service
	step    Step
	draft   Draft
	created *appointment.Appointment // set while billing is outstanding
}

// Result is what a successful commit produced.
type Result struct {
	Appointment appointment.Appointment  `json:"appointment"`
	Transaction *appointment.Transaction `json:"transaction,omitempty"`
}

// Snapshot is a copy of the wizard state for presentation.
type Snapshot struct {
	ID                uuid.UUID  `json:"id"`
	Step              Step       `json:"step"`
	Progress          Progress   `json:"progress"`
	Draft             Draft      `json:"draft"`
	PendingBillingFor *uuid.UUID `json:"pending_billing_for,omitempty"`
}

func (w *Wizard) ID() uuid.UUID { return w.id }

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

func (w *Wizard) Progress() Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return progressOf(w.draft.IsBlock, w.step)
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := Snapshot{
		ID:       w.id,
		Step:     w.step,
		Progress: progressOf(w.draft.IsBlock, w.step),
		Draft:    w.draft,
	}
	if w.created != nil {
		id := w.created.ID
		snap.PendingBillingFor = &id
	}
	return snap
}

func (w *Wizard) expect(step Step) error {
	switch w.step {
	case StepCommitted:
		return ErrAlreadyCommitted
	case StepClosed:
		return ErrClosed
	case StepBillingFailed:
		return ErrBillingPending
	}
	if w.step != step {
		return fmt.Errorf("%w: %s requires %s", ErrWrongStep, w.step, step)
	}
	return nil
}

// advance moves to the step after the current one in the active flow.
func (w *Wizard) advance() {
	steps := flow(w.draft.IsBlock)
	if i := indexOf(steps, w.step); i >= 0 && i+1 < len(steps) {
		w.step = steps[i+1]
	}
}

// Back returns to the previous step. Selections already made are kept so re-entering a step shows them.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.step {
	case StepCommitted:
		return ErrAlreadyCommitted
	case StepClosed:
		return ErrClosed
	case StepBillingFailed:
		return ErrBillingPending
	}
	steps := flow(w.draft.IsBlock)
	i := indexOf(steps, w.step)
	if i <= 0 {
		return ErrNoPreviousStep
	}
	w.step = steps[i-1]
	return nil
}

// SearchPatients delegates to the store. Allowed only while selecting a patient.
func (w *Wizard) SearchPatients(ctx context.Context, term string) ([]appointment.Patient, error) {
	w.mu.Lock()
	if err := w.expect(StepSelectPatient); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.mu.Unlock()
	return w.svc.store.SearchPatients(ctx, term)
}

// SelectPatient loads the patient, copies their billing preferences into the draft and advances.
func (w *Wizard) SelectPatient(ctx context.Context, id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectPatient); err != nil {
		return err
	}
	if !appointment.ValidPersistedID(id) {
		return appointment.Invalid("patient", "patient %q is not a saved record", id)
	}
	p, err := w.svc.store.GetPatient(ctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrPatientNotFound) {
			return appointment.Invalid("patient", "patient not found")
		}
		return fmt.Errorf("load patient: %w", err)
	}
	w.setPatient(p)
	return nil
}

// CreatePatient stores a new patient and selects it. The wizard stays put when the write fails.
func (w *Wizard) CreatePatient(ctx context.Context, in appointment.NewPatient) (*appointment.Patient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectPatient); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, appointment.Invalid("name", "patient name is required")
	}
	p, err := w.svc.store.CreatePatient(ctx, in)
	if err != nil {
		return nil, &appointment.RemoteWriteError{Op: "create patient", Err: err}
	}
	w.setPatient(p)
	return p, nil
}

func (w *Wizard) setPatient(p *appointment.Patient) {
	w.draft.Patient = p
	w.draft.BillingType = p.BillingType
	w.draft.PaymentMethod = p.PaymentMethod
	w.advance()
}

func (w *Wizard) EnterBlockReason(reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepEnterBlockReason); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return appointment.Invalid("block_reason", "a reason is required for a calendar block")
	}
	w.draft.BlockReason = reason
	w.advance()
	return nil
}

func (w *Wizard) SelectPractitioner(ctx context.Context, id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectPractitioner); err != nil {
		return err
	}
	p, err := w.svc.store.GetPractitioner(ctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrPractitionerNotFound) {
			return appointment.Invalid("practitioner", "practitioner not found")
		}
		return fmt.Errorf("load practitioner: %w", err)
	}
	if w.draft.Practitioner != nil && w.draft.Practitioner.ID != p.ID {
		w.draft.Slot = nil
	}
	w.draft.Practitioner = p
	w.advance()
	return nil
}

func (w *Wizard) SelectProcedure(ctx context.Context, id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectProcedure); err != nil {
		return err
	}
	p, err := w.svc.store.GetProcedure(ctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrProcedureNotFound) {
			return appointment.Invalid("procedure", "procedure not found")
		}
		return fmt.Errorf("load procedure: %w", err)
	}
	if w.draft.Procedure != nil && w.draft.Procedure.DurationMinutes != p.DurationMinutes {
		w.draft.Slot = nil
	}
	w.draft.Procedure = p
	w.advance()
	return nil
}

// SetDate changes the day the slots are offered for. It clears a previously chosen slot.
func (w *Wizard) SetDate(date appointment.Date) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectSlot); err != nil {
		return err
	}
	if date.IsZero() {
		return appointment.Invalid("date", "select a date")
	}
	if date != w.draft.Date {
		w.draft.Slot = nil
	}
	w.draft.Date = date
	return nil
}

func (w *Wizard) duration() time.Duration {
	if w.draft.Procedure != nil {
		return w.draft.Procedure.Duration(w.svc.cfg.DefaultDuration)
	}
	return w.svc.cfg.DefaultDuration
}

func (w *Wizard) slots(ctx context.Context) ([]availability.Slot, error) {
	seq, err := w.svc.checker.Slots(ctx, availability.Request{
		PractitionerID: w.draft.Practitioner.ID,
		Date:           w.draft.Date,
		Granularity:    w.svc.cfg.SlotGranularity,
		Length:         w.duration(),
	})
	if err != nil {
		return nil, err
	}
	return seq.Collect(), nil
}

// Slots lists the slots for the draft's practitioner and date, split into morning and afternoon.
func (w *Wizard) Slots(ctx context.Context) (availability.Day, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectSlot); err != nil {
		return availability.Day{}, err
	}
	slots, err := w.slots(ctx)
	if err != nil {
		return availability.Day{}, err
	}
	return availability.Split(slots), nil
}

// SelectSlot accepts t only if it is one of the offered slots and currently available.
func (w *Wizard) SelectSlot(ctx context.Context, t appointment.Clock) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.expect(StepSelectSlot); err != nil {
		return err
	}
	slots, err := w.slots(ctx)
	if err != nil {
		return err
	}
	slot, ok := availability.Find(slots, t)
	if !ok {
		return appointment.Invalid("slot", "%s is not an offered time", t)
	}
	if !slot.Available {
		return appointment.Invalid("slot", "%s is not available", t)
	}
	w.draft.Slot = &slot
	w.advance()
	return nil
}

// Details are the optional fields editable until commit.
type Details struct {
	Notes             *string
	BillingType       *string
	PaymentMethod     *string
	AuthorizationCode *string
}

// SetDetails overrides notes and billing metadata. It never changes the step.
func (w *Wizard) SetDetails(d Details) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		if w.step == StepCommitted {
			return ErrAlreadyCommitted
		}
		return ErrClosed
	}
	if w.step == StepBillingFailed {
		return ErrBillingPending
	}
	if d.Notes != nil {
		w.draft.Notes = *d.Notes
	}
	if d.BillingType != nil {
		w.draft.BillingType = *d.BillingType
	}
	if d.PaymentMethod != nil {
		w.draft.PaymentMethod = *d.PaymentMethod
	}
	if d.AuthorizationCode != nil {
		w.draft.AuthorizationCode = *d.AuthorizationCode
	}
	return nil
}

// Close discards the draft. No remote write is issued.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step == StepBillingFailed && w.created != nil {
		w.svc.logger.Warn("wizard closed with unbilled appointment",
			"appointment_id", w.created.ID.String(),
			"wizard_id", w.id.String(),
		)
	}
	w.step = StepClosed
	w.draft = Draft{}
	w.created = nil
}

// Commit validates the draft and writes the appointment, then its transaction unless it is a block.
//
// Errors:
//   - *appointment.ValidationError: the draft is incomplete, references a placeholder id or
//     the slot was taken meanwhile. Nothing was written.
//   - *appointment.RemoteWriteError: the appointment write failed. Nothing was written and
//     the draft is kept for a retry.
//   - *appointment.PartialCommitError: the appointment exists but its transaction does not.
//     The wizard moves to StepBillingFailed; see RetryBilling.
func (w *Wizard) Commit(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.step {
	case StepCommitted:
		return nil, ErrAlreadyCommitted
	case StepClosed:
		return nil, ErrClosed
	case StepBillingFailed:
		return nil, ErrBillingPending
	}

	started := time.Now()
	block := w.draft.IsBlock
	res, outcome, err := w.commit(ctx)
	w.svc.metrics.ObserveCommit(block, outcome, time.Since(started).Seconds())
	return res, err
}

func (w *Wizard) commit(ctx context.Context) (*Result, string, error) {
	d := w.draft
	if err := d.Validate(); err != nil {
		return nil, "rejected", err
	}
	if w.step != StepConfirm {
		return nil, "rejected", fmt.Errorf("%w: commit requires %s, wizard is at %s", ErrWrongStep, StepConfirm, w.step)
	}
	if err := d.checkIdentifiers(); err != nil {
		return nil, "rejected", err
	}

	start := d.Slot.Time
	end := start.Add(w.duration())
	if !w.svc.checker.Grid().ContainsRange(start, end) {
		return nil, "rejected", appointment.Invalid("slot", "%s-%s is outside opening hours", start, end)
	}

	ctx, span := tracer.Start(ctx, "booking.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("practitioner.id", d.Practitioner.ID.String()),
		attribute.String("appointment.date", d.Date.String()),
		attribute.String("appointment.start", start.String()),
		attribute.Bool("appointment.block", d.IsBlock),
	)

	var (
		created *appointment.Appointment
		tx      *appointment.Transaction
		txErr   error
	)
	err := w.svc.locker.WithPractitionerDay(ctx, d.Practitioner.ID, d.Date, func(ctx context.Context) error {
		hit, err := w.svc.checker.Conflict(ctx, d.Practitioner.ID, d.Date, start, end, uuid.Nil)
		if err != nil {
			return &appointment.RemoteWriteError{Op: "check availability", Err: err}
		}
		if hit != nil {
			return appointment.Invalid("slot", "%s is no longer available", start)
		}

		in := appointment.NewAppointment{
			PractitionerID:    d.Practitioner.ID,
			Date:              d.Date,
			StartTime:         start,
			EndTime:           &end,
			Status:            appointment.StatusConfirmed,
			Kind:              d.kind(),
			Notes:             d.notes(),
			BillingType:       d.BillingType,
			PaymentMethod:     d.PaymentMethod,
			AuthorizationCode: d.AuthorizationCode,
		}
		if !d.IsBlock {
			patientID := d.Patient.ID
			in.PatientID = &patientID
		}
		created, err = w.svc.store.CreateAppointment(ctx, in)
		if err != nil {
			return &appointment.RemoteWriteError{Op: "create appointment", Err: err}
		}
		if !d.IsBlock {
			tx, txErr = w.createTransaction(ctx, created.ID)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		var verr *appointment.ValidationError
		if errors.As(err, &verr) {
			return nil, "rejected", err
		}
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = &appointment.RemoteWriteError{Op: "lock practitioner day", Err: err}
		}
		w.svc.logger.Error("booking commit failed",
			"wizard_id", w.id.String(),
			"practitioner_id", d.Practitioner.ID.String(),
			"error", err.Error(),
		)
		return nil, "failed", err
	}

	span.SetAttributes(attribute.String("appointment.id", created.ID.String()))
	w.publish(events.BookingCommitted, created)

	if txErr != nil {
		span.RecordError(txErr)
		w.step = StepBillingFailed
		w.created = created
		w.svc.logger.Error("appointment created without billing transaction",
			"appointment_id", created.ID.String(),
			"wizard_id", w.id.String(),
			"error", txErr.Error(),
		)
		return nil, "partial", &appointment.PartialCommitError{AppointmentID: created.ID, Err: txErr}
	}

	w.svc.logger.Info("booking committed",
		"appointment_id", created.ID.String(),
		"practitioner_id", d.Practitioner.ID.String(),
		"date", d.Date.String(),
		"start", start.String(),
		"block", d.IsBlock,
	)
	w.finish()
	return &Result{Appointment: *created, Transaction: tx}, "committed", nil
}

func (w *Wizard) createTransaction(ctx context.Context, appointmentID uuid.UUID) (*appointment.Transaction, error) {
	proc := w.draft.Procedure
	return w.svc.store.CreateTransaction(ctx, appointment.NewTransaction{
		AppointmentID: appointmentID,
		PatientID:     w.draft.Patient.ID,
		Description:   proc.Name,
		AmountCents:   proc.PriceCents,
		ProcedureCode: proc.Code,
		Status:        appointment.TransactionPending,
		BillingStatus: appointment.BillingPending,
	})
}

// RetryBilling retries the transaction write for an appointment left unbilled by Commit.
func (w *Wizard) RetryBilling(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepBillingFailed || w.created == nil {
		return nil, fmt.Errorf("%w: no billing to retry at %s", ErrWrongStep, w.step)
	}

	started := time.Now()
	ctx, span := tracer.Start(ctx, "booking.retry_billing")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", w.created.ID.String()))

	tx, err := w.createTransaction(ctx, w.created.ID)
	if err != nil {
		span.RecordError(err)
		w.svc.metrics.ObserveCommit(false, "retry_failed", time.Since(started).Seconds())
		return nil, &appointment.PartialCommitError{AppointmentID: w.created.ID, Err: err}
	}

	w.svc.metrics.ObserveCommit(false, "retried", time.Since(started).Seconds())
	created := *w.created
	w.svc.logger.Info("billing recovered", "appointment_id", created.ID.String(), "transaction_id", tx.ID.String())
	w.publish(events.BillingRecovered, &created)
	w.finish()
	return &Result{Appointment: created, Transaction: tx}, nil
}

func (w *Wizard) finish() {
	w.step = StepCommitted
	w.draft = Draft{}
	w.created = nil
}

func (w *Wizard) publish(kind events.Kind, a *appointment.Appointment) {
	w.svc.notifier.Publish(events.Event{
		Kind:           kind,
		AppointmentID:  a.ID,
		PractitionerID: a.PractitionerID,
		Date:           a.Date,
	})
}
