package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrProcedureNotFound    = errors.New("procedure not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrEmptyPatch           = errors.New("appointment update has no fields")
)

// Store is the persistence collaborator the scheduling core reads from and writes to.
// It is the source of truth for appointments and transactions.
type Store interface {
	AppointmentReader
	AppointmentWriter
	Lookups

	CreateTransaction(ctx context.Context, tx NewTransaction) (*Transaction, error)
	CreatePatient(ctx context.Context, p NewPatient) (*Patient, error)
}

// AppointmentReader lists appointments in a date range.
type AppointmentReader interface {
	ListAppointments(ctx context.Context, q Query) ([]Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
}

type AppointmentWriter interface {
	CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, p Patch) error
}

// Lookups are the read-only reference data queries.
type Lookups interface {
	SearchPatients(ctx context.Context, term string) ([]Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	ListPractitioners(ctx context.Context) ([]Practitioner, error)
	ListProcedures(ctx context.Context, term string) ([]Procedure, error)
	GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error)
}

// UnbilledFinder reports appointments that should carry a transaction but do not.
type UnbilledFinder interface {
	ListUnbilled(ctx context.Context, since Date) ([]Appointment, error)
}
