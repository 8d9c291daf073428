package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgxpool.Pool used by PgRepository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DBTX
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB allows injecting a mock pool for tests.
func NewPgRepositoryWithDB(db DBTX) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, patient_id, practitioner_id, date, start_minutes, end_minutes, status, kind, notes,
		       billing_type, payment_method, authorization_code, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a         Appointment
		patientID pgtype.UUID
		date      time.Time
		start     int32
		end       pgtype.Int4
		status    string
	)

	err := row.Scan(
		&a.ID,
		&patientID,
		&a.PractitionerID,
		&date,
		&start,
		&end,
		&status,
		&a.Kind,
		&a.Notes,
		&a.BillingType,
		&a.PaymentMethod,
		&a.AuthorizationCode,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if patientID.Valid {
		id := uuid.UUID(patientID.Bytes)
		a.PatientID = &id
	}
	a.Date = DateOf(date)
	a.StartTime = Clock(start)
	if end.Valid {
		c := Clock(end.Int32)
		a.EndTime = &c
	}
	a.Status = Status(status)
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.BillingType,
		&p.PaymentMethod,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var (
		p        Procedure
		duration int32
	)

	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.PriceCents, &duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProcedureNotFound
		}
		return nil, err
	}
	p.DurationMinutes = int(duration)
	return &p, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t             Transaction
		status        string
		billingStatus string
	)

	err := row.Scan(
		&t.ID,
		&t.AppointmentID,
		&t.PatientID,
		&t.Description,
		&t.AmountCents,
		&t.ProcedureCode,
		&status,
		&billingStatus,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = TransactionStatus(status)
	t.BillingStatus = BillingStatus(billingStatus)
	return &t, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func toPGUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: [16]byte(*id), Valid: true}
}

func toPGInt4(c *Clock) pgtype.Int4 {
	if c == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*c), Valid: true}
}

// Interface methods

func (r *PgRepository) ListAppointments(ctx context.Context, q Query) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date >= $1 AND date <= $2`
	args := []any{q.From.Time(), q.To.Time()}

	if q.PractitionerID != nil {
		args = append(args, *q.PractitionerID)
		query += fmt.Sprintf(" AND practitioner_id = $%d", len(args))
	}
	if exclude := q.Excluded(); len(exclude) > 0 {
		excluded := make([]string, len(exclude))
		for i, s := range exclude {
			excluded[i] = string(s)
		}
		args = append(args, excluded)
		query += fmt.Sprintf(" AND status <> ALL($%d)", len(args))
	}
	query += " ORDER BY date, start_minutes"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	result, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return result, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, practitioner_id, date, start_minutes, end_minutes, status, kind,
		                          notes, billing_type, payment_method, authorization_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns,
		id, toPGUUID(a.PatientID), a.PractitionerID, a.Date.Time(), int32(a.StartTime), toPGInt4(a.EndTime),
		string(a.Status), a.Kind, a.Notes, a.BillingType, a.PaymentMethod, a.AuthorizationCode)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, p Patch) error {
	if p.Empty() {
		return ErrEmptyPatch
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Date != nil {
		set("date", p.Date.Time())
	}
	if p.StartTime != nil {
		set("start_minutes", int32(*p.StartTime))
	}
	if p.EndTime != nil {
		set("end_minutes", int32(*p.EndTime))
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.PractitionerID != nil {
		set("practitioner_id", *p.PractitionerID)
	}
	if p.Notes != nil {
		set("notes", *p.Notes)
	}
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE appointments
		SET %s,
		    updated_at = now()
		WHERE id = $%d
	`, strings.Join(sets, ", "), len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CreateTransaction(ctx context.Context, t NewTransaction) (*Transaction, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO transactions (id, appointment_id, patient_id, description, amount_cents, procedure_code,
		                          status, billing_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, appointment_id, patient_id, description, amount_cents, procedure_code,
		          status, billing_status, created_at, updated_at
	`, id, t.AppointmentID, t.PatientID, t.Description, t.AmountCents, t.ProcedureCode,
		string(t.Status), string(t.BillingStatus))

	created, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return created, nil
}

func (r *PgRepository) SearchPatients(ctx context.Context, term string) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, email, phone, billing_type, payment_method, created_at, updated_at
		FROM patients
		WHERE name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%'
		ORDER BY name
		LIMIT 25
	`, strings.TrimSpace(term))
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreatePatient(ctx context.Context, p NewPatient) (*Patient, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, phone, billing_type, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, name, email, phone, billing_type, payment_method, created_at, updated_at
	`, id, p.Name, p.Email, p.Phone, p.BillingType, p.PaymentMethod)

	created, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, billing_type, payment_method, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM practitioners
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListProcedures(ctx context.Context, term string) ([]Procedure, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, code, price_cents, duration_minutes
		FROM procedures
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE $1 || '%'
		ORDER BY name
	`, strings.TrimSpace(term))
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	defer rows.Close()

	var result []Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, code, price_cents, duration_minutes
		FROM procedures
		WHERE id = $1
	`, id)
	return scanProcedure(row)
}

// ListUnbilled returns non-block, non-cancelled appointments from since onward that have no transaction.
func (r *PgRepository) ListUnbilled(ctx context.Context, since Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+prefixed("a", appointmentColumns)+`
		FROM appointments a
		LEFT JOIN transactions t ON t.appointment_id = a.id
		WHERE t.id IS NULL
		  AND a.kind <> 'blocked'
		  AND a.status <> 'cancelled'
		  AND a.date >= $1
		ORDER BY a.date, a.start_minutes
	`, since.Time())
	if err != nil {
		return nil, fmt.Errorf("list unbilled: %w", err)
	}
	result, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("list unbilled: %w", err)
	}
	return result, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
