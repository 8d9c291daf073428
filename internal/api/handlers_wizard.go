package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/booking"
)

// wizard resolves the {id} session or writes a 404.
func (h *Handler) wizard(w http.ResponseWriter, r *http.Request) (*booking.Wizard, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_wizard_id", "id must be a valid UUID")
		return nil, false
	}
	wz, ok := h.wizards.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "wizard_not_found", "wizard not found")
		return nil, false
	}
	return wz, true
}

// step runs one wizard action and answers with the resulting snapshot.
func (h *Handler) step(w http.ResponseWriter, r *http.Request, wz *booking.Wizard, action func() error) {
	if err := action(); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wz.Snapshot())
}

func (h *Handler) startWizard(w http.ResponseWriter, r *http.Request) {
	var req StartWizardRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		badParam(w, "date", err)
		return
	}
	wz := h.cfg.Bookings.Start(date, req.Block)
	h.wizards.put(wz.ID(), wz)
	writeJSON(w, http.StatusCreated, wz.Snapshot())
}

func (h *Handler) getWizard(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wz.Snapshot())
}

func (h *Handler) closeWizard(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	wz.Close()
	h.wizards.remove(wz.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) wizardPatients(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	list, err := wz.SearchPatients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) wizardSelectPatient(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req SelectPatientRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.step(w, r, wz, func() error {
		return wz.SelectPatient(r.Context(), uuid.MustParse(req.PatientID))
	})
}

func (h *Handler) wizardCreatePatient(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req NewPatientRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.step(w, r, wz, func() error {
		_, err := wz.CreatePatient(r.Context(), appointment.NewPatient{
			Name:          req.Name,
			Email:         req.Email,
			Phone:         req.Phone,
			BillingType:   req.BillingType,
			PaymentMethod: req.PaymentMethod,
		})
		return err
	})
}

func (h *Handler) wizardBlockReason(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req BlockReasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.step(w, r, wz, func() error { return wz.EnterBlockReason(req.Reason) })
}

func (h *Handler) wizardSelectPractitioner(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req SelectPractitionerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.step(w, r, wz, func() error {
		return wz.SelectPractitioner(r.Context(), uuid.MustParse(req.PractitionerID))
	})
}

func (h *Handler) wizardSelectProcedure(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req SelectProcedureRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.step(w, r, wz, func() error {
		return wz.SelectProcedure(r.Context(), uuid.MustParse(req.ProcedureID))
	})
}

func (h *Handler) wizardSetDate(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req SetDateRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		badParam(w, "date", err)
		return
	}
	h.step(w, r, wz, func() error { return wz.SetDate(date) })
}

func (h *Handler) wizardSlots(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	day, err := wz.Slots(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (h *Handler) wizardSelectSlot(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req SelectSlotRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := appointment.ParseClock(req.Time)
	if err != nil {
		badParam(w, "time", err)
		return
	}
	h.step(w, r, wz, func() error { return wz.SelectSlot(r.Context(), t) })
}

func (h *Handler) wizardDetails(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	var req DetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.step(w, r, wz, func() error {
		return wz.SetDetails(booking.Details{
			Notes:             req.Notes,
			BillingType:       req.BillingType,
			PaymentMethod:     req.PaymentMethod,
			AuthorizationCode: req.AuthorizationCode,
		})
	})
}

func (h *Handler) wizardBack(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	h.step(w, r, wz, wz.Back)
}

func (h *Handler) wizardCommit(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	res, err := wz.Commit(r.Context())
	h.finishCommit(w, r, wz, res, err)
}

func (h *Handler) wizardRetryBilling(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	res, err := wz.RetryBilling(r.Context())
	h.finishCommit(w, r, wz, res, err)
}

// finishCommit drops the session once the wizard is done. A wizard with outstanding
// billing stays so the client can retry or close it.
func (h *Handler) finishCommit(w http.ResponseWriter, r *http.Request, wz *booking.Wizard, res *booking.Result, err error) {
	if err != nil {
		var partial *appointment.PartialCommitError
		if !errors.As(err, &partial) && wz.Step().Terminal() {
			h.wizards.remove(wz.ID())
		}
		h.handleError(w, r, err)
		return
	}
	h.wizards.remove(wz.ID())
	writeJSON(w, http.StatusCreated, res)
}
