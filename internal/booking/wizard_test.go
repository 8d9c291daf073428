package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/events"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var day = appointment.NewDate(2024, time.December, 18)

func clock(h, m int) appointment.Clock { return appointment.ClockOf(h, m) }

// faultyStore counts writes and fails them on demand.
type faultyStore struct {
	*appointment.MemoryStore
	failAppointment   error
	failTransaction   error
	failPatient       error
	appointmentWrites int
	transactionWrites int
}

func (s *faultyStore) CreateAppointment(ctx context.Context, in appointment.NewAppointment) (*appointment.Appointment, error) {
	s.appointmentWrites++
	if s.failAppointment != nil {
		return nil, s.failAppointment
	}
	return s.MemoryStore.CreateAppointment(ctx, in)
}

func (s *faultyStore) CreateTransaction(ctx context.Context, in appointment.NewTransaction) (*appointment.Transaction, error) {
	s.transactionWrites++
	if s.failTransaction != nil {
		return nil, s.failTransaction
	}
	return s.MemoryStore.CreateTransaction(ctx, in)
}

func (s *faultyStore) CreatePatient(ctx context.Context, in appointment.NewPatient) (*appointment.Patient, error) {
	if s.failPatient != nil {
		return nil, s.failPatient
	}
	return s.MemoryStore.CreatePatient(ctx, in)
}

type fixture struct {
	store     *faultyStore
	svc       *Service
	notifier  *events.Notifier
	jane      appointment.Patient
	doctor    appointment.Practitioner
	consulta  appointment.Procedure
	published []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLocker(t, nil)
}

func newFixtureWithLocker(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	mem := appointment.NewMemoryStore()
	f := &fixture{
		store:    &faultyStore{MemoryStore: mem},
		notifier: events.NewNotifier(),
	}
	email := "jane@example.com"
	f.jane = mem.AddPatient(appointment.Patient{Name: "Jane", Email: &email, BillingType: "private", PaymentMethod: "pix"})
	f.doctor = mem.AddPractitioner(appointment.Practitioner{Name: "Dr. X"})
	f.consulta = mem.AddProcedure(appointment.Procedure{Name: "Consulta", Code: "10101012", PriceCents: 15000, DurationMinutes: 30})

	checker := availability.NewChecker(f.store, timegrid.MustNew(timegrid.DefaultConfig()), 30*time.Minute)
	f.svc = NewService(f.store, checker, locker, f.notifier, nil, logging.Nop(), Config{})
	f.notifier.Subscribe("test", func(e events.Event) { f.published = append(f.published, e) })
	return f
}

// toConfirm drives a patient wizard to the confirm step at slot.
func (f *fixture) toConfirm(t *testing.T, slot appointment.Clock) *Wizard {
	t.Helper()
	ctx := context.Background()
	w := f.svc.Start(day, false)
	require.NoError(t, w.SelectPatient(ctx, f.jane.ID))
	require.NoError(t, w.SelectPractitioner(ctx, f.doctor.ID))
	require.NoError(t, w.SelectProcedure(ctx, f.consulta.ID))
	require.NoError(t, w.SelectSlot(ctx, slot))
	require.Equal(t, StepConfirm, w.Step())
	return w
}

func TestCommitPatientBooking(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))

	draft := w.Draft()
	assert.Equal(t, "private", draft.BillingType)
	assert.Equal(t, "pix", draft.PaymentMethod)

	res, err := w.Commit(context.Background())
	require.NoError(t, err)

	appt := res.Appointment
	assert.Equal(t, appointment.StatusConfirmed, appt.Status)
	assert.Equal(t, "Consulta", appt.Kind)
	assert.Equal(t, day, appt.Date)
	assert.Equal(t, clock(10, 0), appt.StartTime)
	require.NotNil(t, appt.EndTime)
	assert.Equal(t, clock(10, 30), *appt.EndTime)
	require.NotNil(t, appt.PatientID)
	assert.Equal(t, f.jane.ID, *appt.PatientID)
	assert.Equal(t, "private", appt.BillingType)

	require.NotNil(t, res.Transaction)
	assert.Equal(t, appt.ID, res.Transaction.AppointmentID)
	assert.Equal(t, int64(15000), res.Transaction.AmountCents)
	assert.Equal(t, "10101012", res.Transaction.ProcedureCode)
	assert.Equal(t, appointment.TransactionPending, res.Transaction.Status)
	assert.Equal(t, appointment.BillingPending, res.Transaction.BillingStatus)

	assert.Equal(t, 1, f.store.AppointmentCount())
	assert.Len(t, f.store.Transactions(appt.ID), 1)
	assert.Equal(t, 1, f.store.TransactionCount())

	assert.Equal(t, StepCommitted, w.Step())
	assert.Equal(t, Draft{}, w.Draft())
	require.Len(t, f.published, 1)
	assert.Equal(t, events.BookingCommitted, f.published[0].Kind)
	assert.Equal(t, appt.ID, f.published[0].AppointmentID)

	_, err = w.Commit(context.Background())
	require.ErrorIs(t, err, ErrAlreadyCommitted)
	assert.Equal(t, 1, f.store.appointmentWrites)
}

func TestCommitBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.svc.Start(day, true)
	assert.Equal(t, StepEnterBlockReason, w.Step())
	require.NoError(t, w.EnterBlockReason("Almoço"))
	require.NoError(t, w.SelectPractitioner(ctx, f.doctor.ID))
	require.Equal(t, StepSelectSlot, w.Step())
	require.NoError(t, w.SelectSlot(ctx, clock(12, 0)))

	res, err := w.Commit(ctx)
	require.NoError(t, err)

	assert.Equal(t, appointment.KindBlocked, res.Appointment.Kind)
	assert.Nil(t, res.Appointment.PatientID)
	assert.Equal(t, "Almoço", res.Appointment.Notes)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, 1, f.store.AppointmentCount())
	assert.Equal(t, 0, f.store.transactionWrites)
}

func TestCommitWithMissingFieldNeverWrites(t *testing.T) {
	f := newFixture(t)
	slot := availability.Slot{Time: clock(10, 0), Available: true}

	full := Draft{
		Patient:      &f.jane,
		Practitioner: &f.doctor,
		Procedure:    &f.consulta,
		Date:         day,
		Slot:         &slot,
	}
	fullBlock := Draft{
		IsBlock:      true,
		BlockReason:  "Almoço",
		Practitioner: &f.doctor,
		Date:         day,
		Slot:         &slot,
	}

	cases := []struct {
		name  string
		field string
		draft func() Draft
	}{
		{"no patient", "patient", func() Draft { d := full; d.Patient = nil; return d }},
		{"no practitioner", "practitioner", func() Draft { d := full; d.Practitioner = nil; return d }},
		{"no procedure", "procedure", func() Draft { d := full; d.Procedure = nil; return d }},
		{"no slot", "slot", func() Draft { d := full; d.Slot = nil; return d }},
		{"no date", "date", func() Draft { d := full; d.Date = appointment.Date{}; return d }},
		{"block without reason", "block_reason", func() Draft { d := fullBlock; d.BlockReason = "  "; return d }},
		{"block without practitioner", "practitioner", func() Draft { d := fullBlock; d.Practitioner = nil; return d }},
		{"block without slot", "slot", func() Draft { d := fullBlock; d.Slot = nil; return d }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.svc.Start(day, false)
			w.draft = tc.draft()
			w.step = StepConfirm

			_, err := w.Commit(context.Background())
			var verr *appointment.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, StepConfirm, w.Step())
		})
	}
	assert.Equal(t, 0, f.store.appointmentWrites)
	assert.Equal(t, 0, f.store.transactionWrites)
}

func TestCommitRejectsPlaceholderIdentifiers(t *testing.T) {
	f := newFixture(t)
	slot := availability.Slot{Time: clock(10, 0), Available: true}

	for _, id := range []uuid.UUID{uuid.Nil, uuid.Max, uuid.UUID{1, 2, 3}} {
		mock := appointment.Patient{ID: id, Name: "Mock"}
		w := f.svc.Start(day, false)
		w.draft = Draft{Patient: &mock, Practitioner: &f.doctor, Procedure: &f.consulta, Date: day, Slot: &slot}
		w.step = StepConfirm

		_, err := w.Commit(context.Background())
		var verr *appointment.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "patient", verr.Field)
	}

	mockDoctor := appointment.Practitioner{ID: uuid.Nil, Name: "Dr. Placeholder"}
	w := f.svc.Start(day, true)
	w.draft = Draft{IsBlock: true, BlockReason: "Almoço", Practitioner: &mockDoctor, Date: day, Slot: &slot}
	w.step = StepConfirm
	_, err := w.Commit(context.Background())
	var verr *appointment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "practitioner", verr.Field)

	assert.Equal(t, 0, f.store.appointmentWrites)
}

func TestPartialCommitThenRetryBilling(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))
	f.store.failTransaction = errors.New("insert transaction: constraint violation")

	_, err := w.Commit(context.Background())
	var partial *appointment.PartialCommitError
	require.ErrorAs(t, err, &partial)
	assert.NotEqual(t, uuid.Nil, partial.AppointmentID)
	assert.Contains(t, appointment.UserMessage(err), partial.AppointmentID.String())

	assert.Equal(t, StepBillingFailed, w.Step())
	assert.Equal(t, 1, f.store.AppointmentCount())
	assert.Equal(t, 0, f.store.TransactionCount())
	snap := w.Snapshot()
	require.NotNil(t, snap.PendingBillingFor)
	assert.Equal(t, partial.AppointmentID, *snap.PendingBillingFor)

	_, err = w.Commit(context.Background())
	require.ErrorIs(t, err, ErrBillingPending)
	assert.Equal(t, 1, f.store.appointmentWrites)

	_, err = w.RetryBilling(context.Background())
	require.ErrorAs(t, err, &partial)

	f.store.failTransaction = nil
	res, err := w.RetryBilling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, partial.AppointmentID, res.Transaction.AppointmentID)
	assert.Equal(t, StepCommitted, w.Step())
	assert.Len(t, f.store.Transactions(partial.AppointmentID), 1)

	require.Len(t, f.published, 2)
	assert.Equal(t, events.BookingCommitted, f.published[0].Kind)
	assert.Equal(t, events.BillingRecovered, f.published[1].Kind)
}

func TestRemoteWriteErrorKeepsDraft(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))
	before := w.Draft()
	f.store.failAppointment = errors.New("connection refused")

	_, err := w.Commit(context.Background())
	var remote *appointment.RemoteWriteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "create appointment", remote.Op)
	assert.Equal(t, StepConfirm, w.Step())
	assert.Equal(t, before, w.Draft())
	assert.Equal(t, 0, f.store.transactionWrites)
	assert.Empty(t, f.published)

	f.store.failAppointment = nil
	_, err = w.Commit(context.Background())
	require.NoError(t, err)
}

func TestCommitRechecksConflict(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))

	// someone else books 10:00 meanwhile
	f.store.AddAppointment(appointment.Appointment{
		PractitionerID: f.doctor.ID,
		Date:           day,
		StartTime:      clock(10, 0),
		Status:         appointment.StatusConfirmed,
	})

	_, err := w.Commit(context.Background())
	var verr *appointment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "slot", verr.Field)
	assert.Equal(t, 0, f.store.appointmentWrites)
	assert.Equal(t, StepConfirm, w.Step())
}

// slowReader delays availability reads so concurrent commits overlap.
type slowReader struct {
	appointment.AppointmentReader
	delay time.Duration
}

func (r slowReader) ListAppointments(ctx context.Context, q appointment.Query) ([]appointment.Appointment, error) {
	time.Sleep(r.delay)
	return r.AppointmentReader.ListAppointments(ctx, q)
}

func TestConcurrentCommitsOnSameSlotBookOnce(t *testing.T) {
	f := newFixture(t)
	checker := availability.NewChecker(slowReader{AppointmentReader: f.store, delay: 20 * time.Millisecond},
		timegrid.MustNew(timegrid.DefaultConfig()), 30*time.Minute)
	f.svc = NewService(f.store, checker, nil, nil, nil, logging.Nop(), Config{})

	wizards := []*Wizard{f.toConfirm(t, clock(10, 0)), f.toConfirm(t, clock(10, 0))}
	errs := make([]error, len(wizards))

	var wg sync.WaitGroup
	for i, w := range wizards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = w.Commit(context.Background())
		}()
	}
	wg.Wait()

	booked, err := f.store.ListAppointments(context.Background(), appointment.ActiveOn(f.doctor.ID, day))
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, clock(10, 0), booked[0].StartTime)
	assert.Equal(t, 1, f.store.TransactionCount())

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	var verr *appointment.ValidationError
	require.ErrorAs(t, failures[0], &verr)
	assert.Equal(t, "slot", verr.Field)
}

type busyLocker struct{}

func (busyLocker) WithPractitionerDay(context.Context, uuid.UUID, appointment.Date, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestCommitLockContention(t *testing.T) {
	f := newFixtureWithLocker(t, busyLocker{})
	w := f.toConfirm(t, clock(10, 0))

	_, err := w.Commit(context.Background())
	var remote *appointment.RemoteWriteError
	require.ErrorAs(t, err, &remote)
	require.ErrorIs(t, err, redisclient.ErrLockNotAcquired)
	assert.Equal(t, StepConfirm, w.Step())
	assert.Equal(t, 0, f.store.appointmentWrites)
}

func TestStepsCannotBeSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.svc.Start(day, false)

	require.ErrorIs(t, w.SelectPractitioner(ctx, f.doctor.ID), ErrWrongStep)
	require.ErrorIs(t, w.SelectSlot(ctx, clock(10, 0)), ErrWrongStep)
	require.ErrorIs(t, w.EnterBlockReason("Almoço"), ErrWrongStep)
	require.ErrorIs(t, w.Back(), ErrNoPreviousStep)

	_, err := w.Commit(ctx)
	var verr *appointment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patient", verr.Field)
}

func TestCommitRequiresConfirmStep(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))
	require.NoError(t, w.Back())
	require.Equal(t, StepSelectSlot, w.Step())

	_, err := w.Commit(context.Background())
	require.ErrorIs(t, err, ErrWrongStep)
	assert.Equal(t, 0, f.store.appointmentWrites)
}

func TestBackKeepsSelections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.toConfirm(t, clock(10, 0))

	require.NoError(t, w.Back()) // select slot
	require.NoError(t, w.Back()) // select procedure
	require.NoError(t, w.Back()) // select practitioner
	require.NoError(t, w.Back()) // select patient
	require.Equal(t, StepSelectPatient, w.Step())
	require.NotNil(t, w.Draft().Procedure)

	other := f.store.AddPatient(appointment.Patient{Name: "John", BillingType: "insurer", PaymentMethod: "card"})
	require.NoError(t, w.SelectPatient(ctx, other.ID))
	d := w.Draft()
	assert.Equal(t, "insurer", d.BillingType)
	assert.Equal(t, "card", d.PaymentMethod)
	require.NotNil(t, d.Slot)
	assert.Equal(t, StepSelectPractitioner, w.Step())
}

func TestDetailsOverridePatientDefaults(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))

	billing, notes, auth := "insurer", "first visit", "AUTH-1"
	require.NoError(t, w.SetDetails(Details{BillingType: &billing, Notes: &notes, AuthorizationCode: &auth}))
	res, err := w.Commit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "insurer", res.Appointment.BillingType)
	assert.Equal(t, "pix", res.Appointment.PaymentMethod)
	assert.Equal(t, "first visit", res.Appointment.Notes)
	assert.Equal(t, "AUTH-1", res.Appointment.AuthorizationCode)
}

func TestSelectSlotRejectsTakenSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := clock(9, 30)
	f.store.AddAppointment(appointment.Appointment{
		PractitionerID: f.doctor.ID,
		Date:           day,
		StartTime:      clock(9, 0),
		EndTime:        &end,
		Status:         appointment.StatusConfirmed,
	})

	w := f.svc.Start(day, false)
	require.NoError(t, w.SelectPatient(ctx, f.jane.ID))
	require.NoError(t, w.SelectPractitioner(ctx, f.doctor.ID))
	require.NoError(t, w.SelectProcedure(ctx, f.consulta.ID))

	slots, err := w.Slots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots.Morning, 8)
	assert.Len(t, slots.Afternoon, 12)

	var verr *appointment.ValidationError
	require.ErrorAs(t, w.SelectSlot(ctx, clock(9, 0)), &verr)
	require.ErrorAs(t, w.SelectSlot(ctx, clock(9, 10)), &verr)
	require.NoError(t, w.SelectSlot(ctx, clock(9, 30)))
}

func TestSetDateClearsSlot(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))
	require.NoError(t, w.Back())

	require.NoError(t, w.SetDate(day.AddDays(1)))
	assert.Nil(t, w.Draft().Slot)
	assert.Equal(t, day.AddDays(1), w.Draft().Date)
}

func TestCreatePatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.svc.Start(day, false)

	f.store.failPatient = errors.New("duplicate email")
	_, err := w.CreatePatient(ctx, appointment.NewPatient{Name: "Ana"})
	var remote *appointment.RemoteWriteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, StepSelectPatient, w.Step())

	_, err = w.CreatePatient(ctx, appointment.NewPatient{Name: " "})
	var verr *appointment.ValidationError
	require.ErrorAs(t, err, &verr)

	f.store.failPatient = nil
	p, err := w.CreatePatient(ctx, appointment.NewPatient{Name: "Ana", BillingType: "private", PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Equal(t, StepSelectPractitioner, w.Step())
	assert.Equal(t, p.ID, w.Draft().Patient.ID)
	assert.Equal(t, "cash", w.Draft().PaymentMethod)
}

func TestSelectUnknownRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.svc.Start(day, false)

	var verr *appointment.ValidationError
	require.ErrorAs(t, w.SelectPatient(ctx, uuid.New()), &verr)
	require.ErrorAs(t, w.SelectPatient(ctx, uuid.Nil), &verr)
	require.NoError(t, w.SelectPatient(ctx, f.jane.ID))
	require.ErrorAs(t, w.SelectPractitioner(ctx, uuid.New()), &verr)
}

func TestProgress(t *testing.T) {
	f := newFixture(t)

	p := f.svc.Start(day, false).Progress()
	assert.Equal(t, patientFlow, p.Steps)
	assert.Equal(t, 0, p.Index)
	assert.False(t, p.Done)

	w := f.toConfirm(t, clock(10, 0))
	assert.Equal(t, 4, w.Progress().Index)
	_, err := w.Commit(context.Background())
	require.NoError(t, err)
	p = w.Progress()
	assert.True(t, p.Done)
	assert.Equal(t, len(patientFlow), p.Index)

	b := f.svc.Start(day, true).Progress()
	assert.Equal(t, blockFlow, b.Steps)
	assert.Equal(t, StepEnterBlockReason, b.Current)
}

func TestCloseDiscardsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	w := f.toConfirm(t, clock(10, 0))

	w.Close()
	assert.Equal(t, StepClosed, w.Step())
	assert.Equal(t, Draft{}, w.Draft())
	_, err := w.Commit(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, w.Back(), ErrClosed)
	assert.Equal(t, 0, f.store.appointmentWrites)
}

func TestStepStrings(t *testing.T) {
	for s := StepSelectPatient; s <= StepClosed; s++ {
		assert.NotContains(t, s.String(), "step(")
	}
	assert.Equal(t, "step(42)", Step(42).String())
}
