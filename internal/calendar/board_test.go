package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/editor"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// Wednesday
var day = appointment.NewDate(2024, time.December, 18)

func clock(h, m int) appointment.Clock { return appointment.ClockOf(h, m) }

func TestBounds(t *testing.T) {
	from, to := Bounds(day, RangeDay)
	assert.Equal(t, day, from)
	assert.Equal(t, day, to)

	from, to = Bounds(day, RangeWeek)
	assert.Equal(t, appointment.NewDate(2024, time.December, 16), from)
	assert.Equal(t, appointment.NewDate(2024, time.December, 22), to)

	// Sunday belongs to the week that started the Monday before
	from, _ = Bounds(appointment.NewDate(2024, time.December, 22), RangeWeek)
	assert.Equal(t, appointment.NewDate(2024, time.December, 16), from)

	from, to = Bounds(appointment.NewDate(2024, time.February, 10), RangeMonth)
	assert.Equal(t, appointment.NewDate(2024, time.February, 1), from)
	assert.Equal(t, appointment.NewDate(2024, time.February, 29), to)
}

func TestParse(t *testing.T) {
	r, err := ParseRange("")
	require.NoError(t, err)
	assert.Equal(t, RangeWeek, r)
	_, err = ParseRange("year")
	require.Error(t, err)

	m, err := ParseMode("list")
	require.NoError(t, err)
	assert.Equal(t, ModeList, m)
	_, err = ParseMode("table")
	require.Error(t, err)
}

type fixture struct {
	store    *appointment.MemoryStore
	board    *Board
	notifier *events.Notifier
	doctor   appointment.Practitioner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := appointment.NewMemoryStore()
	grid := timegrid.MustNew(timegrid.DefaultConfig())
	checker := availability.NewChecker(store, grid, 30*time.Minute)
	notifier := events.NewNotifier()
	bookings := booking.NewService(store, checker, nil, notifier, nil, logging.Nop(), booking.Config{})
	editors := editor.NewService(store, checker, nil, nil, notifier, nil, logging.Nop())

	f := &fixture{
		store:    store,
		notifier: notifier,
		board:    NewBoard(store, grid, 30*time.Minute, bookings, editors, logging.Nop(), day),
		doctor:   store.AddPractitioner(appointment.Practitioner{Name: "Dr. X"}),
	}
	return f
}

func (f *fixture) add(date appointment.Date, start, end appointment.Clock, status appointment.Status) appointment.Appointment {
	return f.store.AddAppointment(appointment.Appointment{
		PractitionerID: f.doctor.ID,
		Date:           date,
		StartTime:      start,
		EndTime:        &end,
		Status:         status,
		Kind:           "Consulta",
	})
}

func TestGridViewPlacesAppointments(t *testing.T) {
	f := newFixture(t)
	nine := f.add(day, clock(9, 0), clock(9, 30), appointment.StatusConfirmed)
	f.add(day, clock(10, 0), clock(10, 30), appointment.StatusCancelled)
	f.add(day.AddDays(1), clock(8, 0), clock(9, 0), appointment.StatusScheduled)
	f.add(day.AddDays(14), clock(8, 0), clock(9, 0), appointment.StatusScheduled)

	require.NoError(t, f.board.Load(context.Background()))
	v, ok := f.board.View().(*GridView)
	require.True(t, ok)

	require.Len(t, v.Days, 7)
	assert.Equal(t, 960.0, v.Height)
	wed := v.Days[2]
	assert.Equal(t, day, wed.Date)
	require.Len(t, wed.Placements, 1)
	p := wed.Placements[0]
	assert.Equal(t, nine.ID, p.Appointment.ID)
	assert.Equal(t, 96.0, p.Top)
	assert.Equal(t, 48.0, p.Height)
	assert.Equal(t, 0, p.Lane)
	assert.Equal(t, 1, p.Lanes)

	require.Len(t, v.Days[3].Placements, 1)
	assert.Equal(t, 96.0, v.Days[3].Placements[0].Height)
}

func TestOverlappingAppointmentsGetLanes(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddPractitioner(appointment.Practitioner{Name: "Dr. Y"})
	a := f.add(day, clock(9, 0), clock(10, 0), appointment.StatusConfirmed)
	endB := clock(9, 30)
	b := f.store.AddAppointment(appointment.Appointment{PractitionerID: other.ID, Date: day, StartTime: clock(9, 0), EndTime: &endB, Status: appointment.StatusConfirmed})
	endC := clock(10, 0)
	c := f.store.AddAppointment(appointment.Appointment{PractitionerID: other.ID, Date: day, StartTime: clock(9, 30), EndTime: &endC, Status: appointment.StatusConfirmed})
	d := f.add(day, clock(11, 0), clock(11, 30), appointment.StatusConfirmed)

	f.board.SetRange(day, RangeDay)
	require.NoError(t, f.board.Load(context.Background()))
	v := f.board.View().(*GridView)
	require.Len(t, v.Days, 1)

	lanes := map[uuid.UUID][2]int{}
	for _, p := range v.Days[0].Placements {
		lanes[p.Appointment.ID] = [2]int{p.Lane, p.Lanes}
	}
	assert.Equal(t, 2, lanes[a.ID][1])
	assert.Equal(t, 2, lanes[b.ID][1])
	assert.Equal(t, 2, lanes[c.ID][1])
	assert.NotEqual(t, lanes[a.ID][0], lanes[b.ID][0])
	assert.Equal(t, lanes[b.ID][0], lanes[c.ID][0]) // c reuses b's lane once b has ended
	assert.Equal(t, [2]int{0, 1}, lanes[d.ID])
}

func TestOutOfWindowAppointmentsAreClampedOrListed(t *testing.T) {
	f := newFixture(t)
	early := f.add(day, clock(7, 30), clock(8, 30), appointment.StatusConfirmed)
	late := f.add(day, clock(19, 0), clock(19, 30), appointment.StatusConfirmed)

	f.board.SetRange(day, RangeDay)
	require.NoError(t, f.board.Load(context.Background()))
	v := f.board.View().(*GridView)

	require.Len(t, v.Days[0].Placements, 1)
	p := v.Days[0].Placements[0]
	assert.Equal(t, early.ID, p.Appointment.ID)
	assert.True(t, p.Clipped)
	assert.Equal(t, 0.0, p.Top)
	assert.Equal(t, 48.0, p.Height)
	require.Len(t, v.Days[0].Outside, 1)
	assert.Equal(t, late.ID, v.Days[0].Outside[0].ID)
}

func TestListModeAndDaySelection(t *testing.T) {
	f := newFixture(t)
	f.add(day, clock(14, 0), clock(14, 30), appointment.StatusConfirmed)
	f.add(day, clock(9, 0), clock(9, 30), appointment.StatusConfirmed)
	f.add(day.AddDays(1), clock(9, 0), clock(9, 30), appointment.StatusConfirmed)

	require.NoError(t, f.board.Load(context.Background()))
	f.board.SetMode(ModeList)
	require.NoError(t, f.board.SelectDay(day))

	v, ok := f.board.View().(*ListView)
	require.True(t, ok)
	require.Len(t, v.Days, 1)
	require.Len(t, v.Days[0].Appointments, 2)
	assert.Equal(t, clock(9, 0), v.Days[0].Appointments[0].StartTime)
	assert.Equal(t, clock(14, 0), v.Days[0].Appointments[1].StartTime)

	assert.True(t, f.board.HasColumn(day))
	assert.False(t, f.board.HasColumn(day.AddDays(1)))
	require.Error(t, f.board.SelectDay(day.AddDays(30)))

	f.board.ClearDay()
	assert.Len(t, f.board.View().(*ListView).Days, 7)
}

func TestAcknowledgeMovesAndRemoves(t *testing.T) {
	f := newFixture(t)
	a := f.add(day, clock(9, 0), clock(9, 30), appointment.StatusConfirmed)
	require.NoError(t, f.board.Load(context.Background()))

	next := day.AddDays(1)
	start := clock(11, 0)
	f.board.Acknowledge(a.ID, appointment.Patch{Date: &next, StartTime: &start})
	got, ok := f.board.Lookup(a.ID)
	require.True(t, ok)
	assert.Equal(t, next, got.Date)
	assert.Equal(t, start, got.StartTime)

	cancelled := appointment.StatusCancelled
	f.board.Acknowledge(a.ID, appointment.Patch{Status: &cancelled})
	_, ok = f.board.Lookup(a.ID)
	assert.False(t, ok)

	f.board.Acknowledge(uuid.New(), appointment.Patch{Status: &cancelled})
	assert.True(t, f.board.Stale())
}

func TestWatchMarksStaleAndRefreshReloads(t *testing.T) {
	f := newFixture(t)
	unsubscribe := f.board.Watch(f.notifier, "board")
	defer unsubscribe()
	require.NoError(t, f.board.Load(context.Background()))
	require.False(t, f.board.Stale())

	f.notifier.Publish(events.Event{Kind: events.BookingCommitted, AppointmentID: uuid.New(), Date: day.AddDays(30)})
	assert.False(t, f.board.Stale())

	added := f.add(day, clock(15, 0), clock(15, 30), appointment.StatusConfirmed)
	f.notifier.Publish(events.Event{Kind: events.BookingCommitted, AppointmentID: added.ID, Date: day})
	assert.True(t, f.board.Stale())

	require.NoError(t, f.board.Refresh(context.Background()))
	_, ok := f.board.Lookup(added.ID)
	assert.True(t, ok)
	assert.False(t, f.board.Stale())
}

func TestClickEmptyOpensWizardForDay(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.board.Load(context.Background()))

	w, err := f.board.ClickEmpty(day, false)
	require.NoError(t, err)
	assert.Equal(t, day, w.Draft().Date)
	assert.Equal(t, booking.StepSelectPatient, w.Step())

	b, err := f.board.ClickEmpty(day, true)
	require.NoError(t, err)
	assert.Equal(t, booking.StepEnterBlockReason, b.Step())

	_, err = f.board.ClickEmpty(day.AddDays(60), false)
	require.Error(t, err)
}

func TestClickAppointmentOpensEditor(t *testing.T) {
	f := newFixture(t)
	a := f.add(day, clock(9, 0), clock(9, 30), appointment.StatusConfirmed)
	require.NoError(t, f.board.Load(context.Background()))

	e, err := f.board.ClickAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, e.Detail().Appointment.ID)
	assert.Equal(t, "Dr. X", e.Detail().Practitioner.Name)

	_, err = f.board.ClickAppointment(context.Background(), uuid.New())
	require.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestBoardCommitFlowRefreshes(t *testing.T) {
	f := newFixture(t)
	unsubscribe := f.board.Watch(f.notifier, "board")
	defer unsubscribe()
	ctx := context.Background()
	require.NoError(t, f.board.Load(ctx))

	w, err := f.board.ClickEmpty(day, true)
	require.NoError(t, err)
	require.NoError(t, w.EnterBlockReason("Almoço"))
	require.NoError(t, w.SelectPractitioner(ctx, f.doctor.ID))
	require.NoError(t, w.SelectSlot(ctx, clock(12, 0)))
	res, err := w.Commit(ctx)
	require.NoError(t, err)

	require.True(t, f.board.Stale())
	require.NoError(t, f.board.Refresh(ctx))
	got, ok := f.board.Lookup(res.Appointment.ID)
	require.True(t, ok)
	assert.True(t, got.IsBlock())
}
