package booking

import "fmt"

// Step is the wizard's current position. The set is closed; switch statements over
// Step should list every constant.
type Step int

const (
	StepSelectPatient Step = iota
	StepEnterBlockReason
	StepSelectPractitioner
	StepSelectProcedure
	StepSelectSlot
	StepConfirm
	StepCommitted
	StepBillingFailed
	StepClosed
)

func (s Step) String() string {
	switch s {
	case StepSelectPatient:
		return "select_patient"
	case StepEnterBlockReason:
		return "enter_block_reason"
	case StepSelectPractitioner:
		return "select_practitioner"
	case StepSelectProcedure:
		return "select_procedure"
	case StepSelectSlot:
		return "select_slot"
	case StepConfirm:
		return "confirm"
	case StepCommitted:
		return "committed"
	case StepBillingFailed:
		return "billing_failed"
	case StepClosed:
		return "closed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports steps from which no further selection is accepted.
func (s Step) Terminal() bool {
	switch s {
	case StepCommitted, StepClosed:
		return true
	case StepSelectPatient, StepEnterBlockReason, StepSelectPractitioner, StepSelectProcedure,
		StepSelectSlot, StepConfirm, StepBillingFailed:
		return false
	default:
		return true
	}
}

var (
	patientFlow = []Step{StepSelectPatient, StepSelectPractitioner, StepSelectProcedure, StepSelectSlot, StepConfirm}
	blockFlow   = []Step{StepEnterBlockReason, StepSelectPractitioner, StepSelectSlot, StepConfirm}
)

func flow(block bool) []Step {
	if block {
		return blockFlow
	}
	return patientFlow
}

func indexOf(steps []Step, s Step) int {
	for i, v := range steps {
		if v == s {
			return i
		}
	}
	return -1
}

// Progress drives the step indicator.
type Progress struct {
	Steps   []Step `json:"steps"`
	Current Step   `json:"current"`
	Index   int    `json:"index"` // position of Current in Steps, len(Steps) once done
	Done    bool   `json:"done"`
}

func progressOf(block bool, current Step) Progress {
	steps := flow(block)
	p := Progress{Steps: append([]Step(nil), steps...), Current: current}
	switch current {
	case StepCommitted, StepBillingFailed, StepClosed:
		p.Index = len(steps)
		p.Done = current != StepClosed
	default:
		p.Index = indexOf(steps, current)
	}
	return p
}
