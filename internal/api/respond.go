package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/editor"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/reschedule"
)

var fieldMessages = map[string]string{
	"required": "field is required",
	"uuid":     "must be a valid UUID",
	"email":    "invalid email format",
	"datetime": "invalid format",
	"oneof":    "unsupported value",
	"max":      "value is too long",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decode reads a JSON body into dst and validates it. It writes the error response itself
// and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return false
		}
		resp := ErrorResponse{Error: "invalid_request_body"}
		for _, fe := range verrs {
			msg := fieldMessages[fe.Tag()]
			if msg == "" {
				msg = fe.Error()
			}
			resp.Fields = append(resp.Fields, FieldError{Field: fe.Field(), Message: msg})
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return false
	}
	return true
}

// handleError maps domain errors onto HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *appointment.ValidationError
		partial *appointment.PartialCommitError
		remote  *appointment.RemoteWriteError
		reject  *appointment.RescheduleRejected
	)

	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusMultiStatus, ErrorResponse{
			Error:         "billing_failed",
			Details:       appointment.UserMessage(err),
			AppointmentID: partial.AppointmentID.String(),
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation_failed",
			Details: verr.Error(),
			Fields:  []FieldError{{Field: verr.Field, Message: verr.Message}},
		})
	case errors.As(err, &reject):
		writeError(w, http.StatusConflict, string(reject.Reason), appointment.UserMessage(err))
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "practitioner_day_busy", "another change for this practitioner is in progress, please retry shortly")
	case errors.As(err, &remote):
		h.logger.Error("remote write failed", "request_id", GetRequestID(r.Context()), "op", remote.Op, "error", remote.Err.Error())
		writeError(w, http.StatusBadGateway, "remote_write_failed", appointment.UserMessage(err))
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, appointment.ErrProcedureNotFound):
		writeError(w, http.StatusNotFound, "procedure_not_found", err.Error())
	case errors.Is(err, booking.ErrWrongStep),
		errors.Is(err, booking.ErrNoPreviousStep),
		errors.Is(err, booking.ErrAlreadyCommitted),
		errors.Is(err, booking.ErrClosed),
		errors.Is(err, booking.ErrBillingPending):
		writeError(w, http.StatusConflict, "wizard_state", err.Error())
	case errors.Is(err, reschedule.ErrDragInProgress),
		errors.Is(err, reschedule.ErrNoDrag),
		errors.Is(err, reschedule.ErrNotVisible):
		writeError(w, http.StatusConflict, "drag_state", err.Error())
	case errors.Is(err, editor.ErrNoChanges),
		errors.Is(err, editor.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, "edit_rejected", err.Error())
	case errors.Is(err, editor.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	default:
		h.logger.Error("request failed", "request_id", GetRequestID(r.Context()), "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func badParam(w http.ResponseWriter, name string, err error) {
	writeError(w, http.StatusBadRequest, "invalid_"+name, fmt.Sprintf("%s: %v", name, err))
}
