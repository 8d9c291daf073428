package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

func (h *Handler) newBoard(anchor appointment.Date) *calendar.Board {
	return calendar.NewBoard(
		h.cfg.Store,
		h.cfg.Checker.Grid(),
		h.cfg.Checker.DefaultDuration(),
		h.cfg.Bookings,
		h.cfg.Editors,
		h.cfg.Logger,
		anchor,
	)
}

func today() appointment.Date {
	return appointment.DateOf(time.Now())
}

// calendar renders GET /calendar?anchor=&range=&mode=&day=
func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	anchor := today()
	if s := q.Get("anchor"); s != "" {
		d, err := appointment.ParseDate(s)
		if err != nil {
			badParam(w, "anchor", err)
			return
		}
		anchor = d
	}
	rng, err := calendar.ParseRange(q.Get("range"))
	if err != nil {
		badParam(w, "range", err)
		return
	}
	mode, err := calendar.ParseMode(q.Get("mode"))
	if err != nil {
		badParam(w, "mode", err)
		return
	}

	board := h.newBoard(anchor)
	board.SetRange(anchor, rng)
	board.SetMode(mode)
	if s := q.Get("day"); s != "" {
		d, err := appointment.ParseDate(s)
		if err != nil {
			badParam(w, "day", err)
			return
		}
		if err := board.SelectDay(d); err != nil {
			badParam(w, "day", err)
			return
		}
	}

	if err := board.Load(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}

	from, to := board.Bounds()
	writeJSON(w, http.StatusOK, map[string]any{
		"from":  from,
		"to":    to,
		"range": rng,
		"mode":  mode,
		"view":  board.View(),
	})
}

func (h *Handler) listPractitioners(w http.ResponseWriter, r *http.Request) {
	list, err := h.cfg.Store.ListPractitioners(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) listProcedures(w http.ResponseWriter, r *http.Request) {
	list, err := h.cfg.Store.ListProcedures(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) searchPatients(w http.ResponseWriter, r *http.Request) {
	list, err := h.cfg.Store.SearchPatients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// practitionerSlots serves GET /practitioners/{id}/slots?date=&minutes=
func (h *Handler) practitionerSlots(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
		return
	}
	q := r.URL.Query()
	date, err := appointment.ParseDate(q.Get("date"))
	if err != nil {
		badParam(w, "date", err)
		return
	}
	length := h.cfg.Checker.DefaultDuration()
	if s := q.Get("minutes"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_minutes", "minutes must be a positive integer")
			return
		}
		length = time.Duration(n) * time.Minute
	}

	if _, err := h.cfg.Store.GetPractitioner(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	seq, err := h.cfg.Checker.Slots(r.Context(), availability.Request{
		PractitionerID: id,
		Date:           date,
		Granularity:    h.cfg.SlotGranularity,
		Length:         length,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability.Split(seq.Collect()))
}
