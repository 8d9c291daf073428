package booking

import (
	"strings"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// Draft accumulates the wizard's selections until commit.
type Draft struct {
	Patient           *appointment.Patient      `json:"patient,omitempty"`
	Practitioner      *appointment.Practitioner `json:"practitioner,omitempty"`
	Procedure         *appointment.Procedure    `json:"procedure,omitempty"`
	Date              appointment.Date          `json:"date"`
	Slot              *availability.Slot        `json:"slot,omitempty"`
	Notes             string                    `json:"notes"`
	BillingType       string                    `json:"billing_type"`
	PaymentMethod     string                    `json:"payment_method"`
	AuthorizationCode string                    `json:"authorization_code"`
	IsBlock           bool                      `json:"is_block"`
	BlockReason       string                    `json:"block_reason"`
}

// Validate checks the commit invariant: a patient booking needs patient, practitioner,
// procedure, date and slot; a block needs a reason, practitioner, date and slot.
func (d Draft) Validate() error {
	if d.IsBlock {
		if strings.TrimSpace(d.BlockReason) == "" {
			return appointment.Invalid("block_reason", "a reason is required for a calendar block")
		}
	} else if d.Patient == nil {
		return appointment.Invalid("patient", "select or create a patient")
	}
	if d.Practitioner == nil {
		return appointment.Invalid("practitioner", "select a practitioner")
	}
	if !d.IsBlock && d.Procedure == nil {
		return appointment.Invalid("procedure", "select a procedure")
	}
	if d.Date.IsZero() {
		return appointment.Invalid("date", "select a date")
	}
	if d.Slot == nil {
		return appointment.Invalid("slot", "select a time slot")
	}
	return nil
}

// checkIdentifiers rejects zero or placeholder ids before any write.
func (d Draft) checkIdentifiers() error {
	if !d.IsBlock && !appointment.ValidPersistedID(d.Patient.ID) {
		return appointment.Invalid("patient", "patient %q is not a saved record", d.Patient.ID)
	}
	if !appointment.ValidPersistedID(d.Practitioner.ID) {
		return appointment.Invalid("practitioner", "practitioner %q is not a saved record", d.Practitioner.ID)
	}
	return nil
}

func (d Draft) notes() string {
	if !d.IsBlock {
		return d.Notes
	}
	reason := strings.TrimSpace(d.BlockReason)
	if d.Notes == "" {
		return reason
	}
	return reason + "\n" + d.Notes
}

func (d Draft) kind() string {
	if d.IsBlock {
		return appointment.KindBlocked
	}
	return d.Procedure.Name
}
