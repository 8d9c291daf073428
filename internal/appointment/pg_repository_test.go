package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "patient_id", "practitioner_id", "date", "start_minutes", "end_minutes", "status", "kind", "notes",
	"billing_type", "payment_method", "authorization_code", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepositoryWithDB(mock), mock
}

func TestPgListAppointments(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	practitioner := uuid.New()
	patient := uuid.New()
	id := uuid.New()
	day := NewDate(2024, time.December, 18)
	now := time.Now().UTC()

	rows := mock.NewRows(appointmentCols).
		AddRow(id, pgtype.UUID{Bytes: patient, Valid: true}, practitioner, day.Time(), int32(540), pgtype.Int4{Int32: 570, Valid: true},
			"confirmed", "Consulta", "", "private", "pix", "", now, now).
		AddRow(uuid.New(), pgtype.UUID{}, practitioner, day.Time(), int32(720), pgtype.Int4{},
			"confirmed", KindBlocked, "Almoço", "", "", "", now, now)

	mock.ExpectQuery("(?s)SELECT.*FROM appointments\\s+WHERE date >= \\$1 AND date <= \\$2 AND practitioner_id = \\$3 AND status <> ALL\\(\\$4\\)").
		WithArgs(day.Time(), day.Time(), practitioner, []string{"cancelled"}).
		WillReturnRows(rows)

	got, err := repo.ListAppointments(ctx, ActiveOn(practitioner, day))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, id, first.ID)
	require.NotNil(t, first.PatientID)
	assert.Equal(t, patient, *first.PatientID)
	assert.Equal(t, day, first.Date)
	assert.Equal(t, ClockOf(9, 0), first.StartTime)
	require.NotNil(t, first.EndTime)
	assert.Equal(t, ClockOf(9, 30), *first.EndTime)
	assert.Equal(t, StatusConfirmed, first.Status)

	block := got[1]
	assert.True(t, block.IsBlock())
	assert.Nil(t, block.PatientID)
	assert.Nil(t, block.EndTime)
	assert.Equal(t, ClockOf(12, 30), block.End(30*time.Minute))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAppointmentsWholeRange(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := NewDate(2024, time.December, 16)
	to := NewDate(2024, time.December, 22)

	mock.ExpectQuery("(?s)SELECT.*FROM appointments\\s+WHERE date >= \\$1 AND date <= \\$2 AND status <> ALL\\(\\$3\\) ORDER BY date, start_minutes").
		WithArgs(from.Time(), to.Time(), []string{"cancelled"}).
		WillReturnRows(mock.NewRows(appointmentCols))

	got, err := repo.ListAppointments(context.Background(), Query{From: from, To: to})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAppointmentsIncludingCancelled(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := NewDate(2024, time.December, 16)
	to := NewDate(2024, time.December, 22)

	mock.ExpectQuery("(?s)SELECT.*FROM appointments\\s+WHERE date >= \\$1 AND date <= \\$2 ORDER BY date, start_minutes").
		WithArgs(from.Time(), to.Time()).
		WillReturnRows(mock.NewRows(appointmentCols))

	got, err := repo.ListAppointments(context.Background(), Query{From: from, To: to, ExcludeStatus: []Status{}})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments\\s+WHERE id = \\$1").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointment(context.Background(), id)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateBlockAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	practitioner := uuid.New()
	day := NewDate(2024, time.December, 18)
	start, end := ClockOf(12, 0), ClockOf(12, 30)
	now := time.Now().UTC()
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgtype.UUID{}, practitioner, day.Time(), int32(720), pgtype.Int4{Int32: 750, Valid: true},
			"confirmed", KindBlocked, "Almoço", "", "", "").
		WillReturnRows(mock.NewRows(appointmentCols).
			AddRow(id, pgtype.UUID{}, practitioner, day.Time(), int32(720), pgtype.Int4{Int32: 750, Valid: true},
				"confirmed", KindBlocked, "Almoço", "", "", "", now, now))

	got, err := repo.CreateAppointment(context.Background(), NewAppointment{
		PractitionerID: practitioner,
		Date:           day,
		StartTime:      start,
		EndTime:        &end,
		Status:         StatusConfirmed,
		Kind:           KindBlocked,
		Notes:          "Almoço",
	})
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Nil(t, got.PatientID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	day := NewDate(2024, time.December, 19)
	start, end := ClockOf(10, 0), ClockOf(10, 30)

	mock.ExpectExec("UPDATE appointments\\s+SET date = \\$1, start_minutes = \\$2, end_minutes = \\$3,\\s+updated_at = now\\(\\)\\s+WHERE id = \\$4").
		WithArgs(day.Time(), int32(600), int32(630), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateAppointment(context.Background(), id, Patch{Date: &day, StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	status := StatusCancelled

	mock.ExpectExec("UPDATE appointments").
		WithArgs("cancelled", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateAppointment(context.Background(), id, Patch{Status: &status})
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentEmptyPatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.UpdateAppointment(context.Background(), uuid.New(), Patch{})
	require.ErrorIs(t, err, ErrEmptyPatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID, patientID, txID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(pgxmock.AnyArg(), apptID, patientID, "Consulta", int64(15000), "10101012", "pending", "pending").
		WillReturnRows(mock.NewRows([]string{
			"id", "appointment_id", "patient_id", "description", "amount_cents", "procedure_code",
			"status", "billing_status", "created_at", "updated_at",
		}).AddRow(txID, apptID, patientID, "Consulta", int64(15000), "10101012", "pending", "pending", now, now))

	tx, err := repo.CreateTransaction(context.Background(), NewTransaction{
		AppointmentID: apptID,
		PatientID:     patientID,
		Description:   "Consulta",
		AmountCents:   15000,
		ProcedureCode: "10101012",
		Status:        TransactionPending,
		BillingStatus: BillingPending,
	})
	require.NoError(t, err)
	assert.Equal(t, txID, tx.ID)
	assert.Equal(t, TransactionPending, tx.Status)
	assert.Equal(t, BillingPending, tx.BillingStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListProcedures(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM procedures").
		WithArgs("cons").
		WillReturnRows(mock.NewRows([]string{"id", "name", "code", "price_cents", "duration_minutes"}).
			AddRow(uuid.New(), "Consulta", "10101012", int64(15000), int32(30)))

	got, err := repo.ListProcedures(context.Background(), "  cons ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(15000), got[0].PriceCents)
	assert.Equal(t, 30*time.Minute, got[0].Duration(time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgSearchPatients(t *testing.T) {
	repo, mock := newMockRepo(t)
	email := "jane@example.com"
	now := time.Now().UTC()

	mock.ExpectQuery("FROM patients").
		WithArgs("jane").
		WillReturnRows(mock.NewRows([]string{"id", "name", "email", "phone", "billing_type", "payment_method", "created_at", "updated_at"}).
			AddRow(uuid.New(), "Jane", &email, (*string)(nil), "private", "pix", now, now))

	got, err := repo.SearchPatients(context.Background(), "jane")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jane", got[0].Name)
	require.NotNil(t, got[0].Email)
	assert.Equal(t, email, *got[0].Email)
	assert.Nil(t, got[0].Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListUnbilled(t *testing.T) {
	repo, mock := newMockRepo(t)
	since := NewDate(2024, time.December, 1)
	now := time.Now().UTC()
	id := uuid.New()

	mock.ExpectQuery("LEFT JOIN transactions t ON t.appointment_id = a.id").
		WithArgs(since.Time()).
		WillReturnRows(mock.NewRows(appointmentCols).
			AddRow(id, pgtype.UUID{Bytes: uuid.New(), Valid: true}, uuid.New(), since.Time(), int32(600), pgtype.Int4{},
				"confirmed", "Consulta", "", "", "", "", now, now))

	got, err := repo.ListUnbilled(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "a.id, a.name", prefixed("a", "id,\n  name"))
}
