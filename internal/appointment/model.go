package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Statuses lists every appointment status in lifecycle order.
var Statuses = []Status{
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// KindBlocked marks a non-patient calendar hold.
const KindBlocked = "blocked"

type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionPaid     TransactionStatus = "paid"
	TransactionRefunded TransactionStatus = "refunded"
)

type BillingStatus string

const (
	BillingPending    BillingStatus = "pending"
	BillingAuditing   BillingStatus = "auditing"
	BillingAuthorized BillingStatus = "authorized"
	BillingDenied     BillingStatus = "denied"
)

type Patient struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	BillingType   string    `json:"billing_type"`   // preferred billing type, e.g. "private" or an insurer
	PaymentMethod string    `json:"payment_method"` // preferred payment method
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type NewPatient struct {
	Name          string
	Email         *string
	Phone         *string
	BillingType   string
	PaymentMethod string
}

type Practitioner struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Procedure struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	PriceCents      int64     `json:"price_cents"`
	DurationMinutes int       `json:"duration_minutes"` // zero means the configured default duration
}

// Duration returns the procedure length, falling back to def.
func (p Procedure) Duration(def time.Duration) time.Duration {
	if p.DurationMinutes > 0 {
		return time.Duration(p.DurationMinutes) * time.Minute
	}
	return def
}

type Appointment struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         *uuid.UUID `json:"patient_id,omitempty"` // nil for blocks
	PractitionerID    uuid.UUID  `json:"practitioner_id"`
	Date              Date       `json:"date"`
	StartTime         Clock      `json:"start_time"`
	EndTime           *Clock     `json:"end_time,omitempty"`
	Status            Status     `json:"status"`
	Kind              string     `json:"kind"`
	Notes             string     `json:"notes"`
	BillingType       string     `json:"billing_type"`
	PaymentMethod     string     `json:"payment_method"`
	AuthorizationCode string     `json:"authorization_code"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (a Appointment) IsBlock() bool {
	return a.Kind == KindBlocked
}

// End returns the stored end time or StartTime+def when none was stored.
func (a Appointment) End(def time.Duration) Clock {
	if a.EndTime != nil {
		return *a.EndTime
	}
	return a.StartTime.Add(def)
}

// Duration returns End(def)-StartTime.
func (a Appointment) Duration(def time.Duration) time.Duration {
	return time.Duration(a.End(def)-a.StartTime) * time.Minute
}

// NewAppointment carries the fields of an appointment create write.
type NewAppointment struct {
	PatientID         *uuid.UUID
	PractitionerID    uuid.UUID
	Date              Date
	StartTime         Clock
	EndTime           *Clock
	Status            Status
	Kind              string
	Notes             string
	BillingType       string
	PaymentMethod     string
	AuthorizationCode string
}

// Patch is a partial appointment update. Nil fields are left untouched.
type Patch struct {
	Date           *Date
	StartTime      *Clock
	EndTime        *Clock
	Status         *Status
	PractitionerID *uuid.UUID
	Notes          *string
}

func (p Patch) Empty() bool {
	return p.Date == nil && p.StartTime == nil && p.EndTime == nil &&
		p.Status == nil && p.PractitionerID == nil && p.Notes == nil
}

// Apply returns a copy of a with the patch fields applied.
func (p Patch) Apply(a Appointment) Appointment {
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		end := *p.EndTime
		a.EndTime = &end
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.PractitionerID != nil {
		a.PractitionerID = *p.PractitionerID
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	return a
}

type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	Description   string            `json:"description"`
	AmountCents   int64             `json:"amount_cents"`
	ProcedureCode string            `json:"procedure_code"`
	Status        TransactionStatus `json:"status"`
	BillingStatus BillingStatus     `json:"billing_status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type NewTransaction struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Description   string
	AmountCents   int64
	ProcedureCode string
	Status        TransactionStatus
	BillingStatus BillingStatus
}

// Query selects appointments whose date falls in [From, To].
// A nil ExcludeStatus leaves out cancelled appointments; an empty non-nil one keeps everything.
type Query struct {
	From           Date
	To             Date
	PractitionerID *uuid.UUID
	ExcludeStatus  []Status
}

// Excluded returns the statuses the query filters out.
func (q Query) Excluded() []Status {
	if q.ExcludeStatus == nil {
		return []Status{StatusCancelled}
	}
	return q.ExcludeStatus
}

// ActiveOn returns the query for one practitioner-day, excluding cancelled appointments.
func ActiveOn(practitionerID uuid.UUID, date Date) Query {
	return Query{
		From:           date,
		To:             date,
		PractitionerID: &practitionerID,
		ExcludeStatus:  []Status{StatusCancelled},
	}
}

// Detail is an appointment together with its related records.
type Detail struct {
	Appointment  Appointment   `json:"appointment"`
	Patient      *Patient      `json:"patient,omitempty"`
	Practitioner *Practitioner `json:"practitioner,omitempty"`
}
