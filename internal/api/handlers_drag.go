package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/reschedule"
)

func (h *Handler) drag(w http.ResponseWriter, r *http.Request) (uuid.UUID, *reschedule.Protocol, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_drag_id", "id must be a valid UUID")
		return uuid.Nil, nil, false
	}
	p, ok := h.drags.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "drag_not_found", "drag not found")
		return uuid.Nil, nil, false
	}
	return id, p, true
}

// pickUp loads the board the drag happens on and picks the appointment up from it.
func (h *Handler) pickUp(w http.ResponseWriter, r *http.Request) {
	var req PickUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	apptID := uuid.MustParse(req.AppointmentID)

	var anchor appointment.Date
	if req.Anchor != "" {
		d, err := appointment.ParseDate(req.Anchor)
		if err != nil {
			badParam(w, "anchor", err)
			return
		}
		anchor = d
	} else {
		a, err := h.cfg.Store.GetAppointment(r.Context(), apptID)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		anchor = a.Date
	}
	rng, err := calendar.ParseRange(req.Range)
	if err != nil {
		badParam(w, "range", err)
		return
	}

	board := h.newBoard(anchor)
	board.SetRange(anchor, rng)
	if err := board.Load(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}

	p := reschedule.New(h.cfg.Store, h.cfg.Checker, h.cfg.Locker, board, h.cfg.Notifier, h.cfg.Metrics, h.cfg.Logger)
	if _, err := p.PickUp(apptID); err != nil {
		h.handleError(w, r, err)
		return
	}

	id := uuid.New()
	h.drags.put(id, p)
	writeJSON(w, http.StatusCreated, DragResponse{ID: id.String(), State: p.State()})
}

func (h *Handler) getDrag(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.drag(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DragResponse{ID: id.String(), State: p.State()})
}

func (h *Handler) hover(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.drag(w, r)
	if !ok {
		return
	}
	var req HoverRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := appointment.ParseDate(req.Date)
	if err != nil {
		badParam(w, "date", err)
		return
	}
	valid, err := p.Hover(d)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HoverResponse{Valid: valid, State: p.State()})
}

// drop ends the drag whatever the result; a rejected drop leaves the appointment where it was.
func (h *Handler) drop(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.drag(w, r)
	if !ok {
		return
	}
	var req DropRequest
	if !h.decode(w, r, &req) {
		return
	}
	column, err := appointment.ParseDate(req.Date)
	if err != nil {
		badParam(w, "date", err)
		return
	}

	outcome, err := p.Drop(r.Context(), column, *req.Offset)
	if err != nil {
		if p.State().Phase == reschedule.PhaseIdle {
			h.drags.remove(id)
		}
		h.handleError(w, r, err)
		return
	}
	h.drags.remove(id)
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) abortDrag(w http.ResponseWriter, r *http.Request) {
	id, p, ok := h.drag(w, r)
	if !ok {
		return
	}
	if err := p.Abort(); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.drags.remove(id)
	w.WriteHeader(http.StatusNoContent)
}
