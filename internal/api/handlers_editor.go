package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/editor"
)

func (h *Handler) openEditor(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return nil, false
	}
	ed, err := h.cfg.Editors.Open(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return nil, false
	}
	return ed, true
}

func editorResponse(ed *editor.Editor) AppointmentResponse {
	return AppointmentResponse{Detail: ed.Detail(), AllowedStatuses: ed.AllowedStatuses()}
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.openEditor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, editorResponse(ed))
}

// updateAppointment applies every field of the request and saves them as one update.
func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ed, ok := h.openEditor(w, r)
	if !ok {
		return
	}

	if req.Status != nil {
		if err := ed.SetStatus(appointment.Status(*req.Status)); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.StartTime != nil {
		t, err := appointment.ParseClock(*req.StartTime)
		if err != nil {
			badParam(w, "start_time", err)
			return
		}
		if err := ed.SetStartTime(t); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.PractitionerID != nil {
		if err := ed.SetPractitioner(r.Context(), uuid.MustParse(*req.PractitionerID)); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.Notes != nil {
		ed.SetNotes(*req.Notes)
	}

	if _, err := ed.Save(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editorResponse(ed))
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	ed, ok := h.openEditor(w, r)
	if !ok {
		return
	}
	if err := ed.Cancel(r.Context(), req.Confirm); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editorResponse(ed))
}
