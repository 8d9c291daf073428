package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports an incomplete draft or a malformed identifier.
// It is recoverable by correcting the named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PartialCommitError means the appointment was written but its linked transaction was not.
type PartialCommitError struct {
	AppointmentID uuid.UUID
	Err           error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("appointment %s created without billing transaction: %v", e.AppointmentID, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// RemoteWriteError wraps a create/update call that failed outright.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

type RejectReason string

const (
	RejectOutsideWindow RejectReason = "outside_window"
	RejectSlotConflict  RejectReason = "slot_conflict"
	RejectInvalidTarget RejectReason = "invalid_target"
)

// RescheduleRejected is returned when a drop lands on a target that cannot hold the appointment.
type RescheduleRejected struct {
	Reason RejectReason
	Detail string
}

func (e *RescheduleRejected) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("reschedule rejected: %s", e.Reason)
	}
	return fmt.Sprintf("reschedule rejected: %s: %s", e.Reason, e.Detail)
}

// UserMessage renders err as a message suitable for the front desk.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		verr    *ValidationError
		partial *PartialCommitError
		remote  *RemoteWriteError
		reject  *RescheduleRejected
	)
	switch {
	case errors.As(err, &partial):
		return fmt.Sprintf("Appointment %s was booked but its billing entry could not be created. Please create the charge manually.", partial.AppointmentID)
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &reject):
		switch reject.Reason {
		case RejectOutsideWindow:
			return "The appointment cannot be moved outside opening hours."
		case RejectSlotConflict:
			return "That time is already taken for this practitioner."
		default:
			return "The appointment cannot be moved there."
		}
	case errors.As(err, &remote):
		return "The change could not be saved. Please try again."
	case errors.Is(err, ErrAppointmentNotFound):
		return "The appointment no longer exists."
	default:
		return "Something went wrong. Please try again."
	}
}
