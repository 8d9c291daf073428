package api

import (
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/reschedule"
)

type StartWizardRequest struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Block bool   `json:"block"`
}

type SelectPatientRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
}

type NewPatientRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone" validate:"omitempty,max=40"`
	BillingType   string  `json:"billing_type" validate:"max=80"`
	PaymentMethod string  `json:"payment_method" validate:"max=80"`
}

type BlockReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

type SelectPractitionerRequest struct {
	PractitionerID string `json:"practitioner_id" validate:"required,uuid"`
}

type SelectProcedureRequest struct {
	ProcedureID string `json:"procedure_id" validate:"required,uuid"`
}

type SetDateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type SelectSlotRequest struct {
	Time string `json:"time" validate:"required,datetime=15:04"`
}

type DetailsRequest struct {
	Notes             *string `json:"notes" validate:"omitempty,max=2000"`
	BillingType       *string `json:"billing_type" validate:"omitempty,max=80"`
	PaymentMethod     *string `json:"payment_method" validate:"omitempty,max=80"`
	AuthorizationCode *string `json:"authorization_code" validate:"omitempty,max=80"`
}

type PickUpRequest struct {
	AppointmentID string `json:"appointment_id" validate:"required,uuid"`
	// Anchor and Range describe the board the drag happens on; they default to the
	// week holding the appointment.
	Anchor string `json:"anchor" validate:"omitempty,datetime=2006-01-02"`
	Range  string `json:"range" validate:"omitempty,oneof=day week month"`
}

type HoverRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type DropRequest struct {
	Date   string   `json:"date" validate:"required,datetime=2006-01-02"`
	Offset *float64 `json:"offset" validate:"required"`
}

type UpdateAppointmentRequest struct {
	Status         *string `json:"status" validate:"omitempty,oneof=scheduled confirmed in_progress completed no_show cancelled"`
	StartTime      *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	PractitionerID *string `json:"practitioner_id" validate:"omitempty,uuid"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}

type CancelRequest struct {
	Confirm bool `json:"confirm"`
}

type WizardResponse = booking.Snapshot

type DragResponse struct {
	ID    string           `json:"id"`
	State reschedule.State `json:"state"`
}

type HoverResponse struct {
	Valid bool             `json:"valid"`
	State reschedule.State `json:"state"`
}

type AppointmentResponse struct {
	appointment.Detail
	AllowedStatuses []appointment.Status `json:"allowed_statuses"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
	// AppointmentID is set when a write partially succeeded.
	AppointmentID string `json:"appointment_id,omitempty"`
}
