package appointment

import (
	"fmt"

	"github.com/google/uuid"
)

// TransitionPolicy decides which status changes the editor accepts.
type TransitionPolicy interface {
	Allowed(from, to Status) bool
	Next(from Status) []Status
}

// LifecyclePolicy enforces scheduled -> confirmed -> in_progress -> completed,
// with cancelled and no_show reachable from any non-terminal status.
type LifecyclePolicy struct{}

var lifecycle = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func (LifecyclePolicy) Allowed(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range lifecycle[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (LifecyclePolicy) Next(from Status) []Status {
	return append([]Status(nil), lifecycle[from]...)
}

// FreePolicy accepts any status change, e.g. to correct a mis-set status.
type FreePolicy struct{}

func (FreePolicy) Allowed(from, to Status) bool { return to.Valid() }

func (FreePolicy) Next(from Status) []Status {
	next := make([]Status, 0, len(Statuses))
	for _, s := range Statuses {
		if s != from {
			next = append(next, s)
		}
	}
	return next
}

// PolicyByName resolves "lifecycle" or "free".
func PolicyByName(name string) (TransitionPolicy, error) {
	switch name {
	case "", "lifecycle":
		return LifecyclePolicy{}, nil
	case "free":
		return FreePolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown status policy %q", name)
	}
}

// IsTerminal reports statuses with no outgoing lifecycle transition.
func IsTerminal(s Status) bool {
	_, ok := lifecycle[s]
	return !ok
}

// ValidPersistedID reports whether id looks like a store-issued identifier
// rather than a zero or placeholder value.
func ValidPersistedID(id uuid.UUID) bool {
	if id == uuid.Nil || id == uuid.Max {
		return false
	}
	v := id.Version()
	return v >= 1 && v <= 8 && id.Variant() == uuid.RFC4122
}
