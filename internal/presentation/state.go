// Package presentation drives the debounced visual state of the aggregate and of each backend.
package presentation

// State is the visual state of one entity.
type State string

const (
	StateNormal               State = "normal"
	StateWorking              State = "working"
	StateError                State = "error"
	StateErrorWorking         State = "error-working"
	StateInternalError        State = "internal-error"
	StateInternalErrorWorking State = "internal-error-working"
)

// MainEntity is the ID of the aggregate entity. Backends may not use it.
const MainEntity = "main"

// IsError reports whether s belongs to the alert family.
func (s State) IsError() bool {
	return s == StateError || s == StateErrorWorking
}

// IsInternalError reports whether s belongs to the internal-error family.
func (s State) IsInternalError() bool {
	return s == StateInternalError || s == StateInternalErrorWorking
}

// Working reports whether s is a settled sub-state.
func (s State) Working() bool {
	return s == StateWorking || s == StateErrorWorking || s == StateInternalErrorWorking
}

// Entity is one monitored target: the aggregate or a backend satellite.
type Entity struct {
	ID                 string
	State              State
	ErrorCount         int
	NormalCount        int
	InternalErrorCount int

	timer Timer
	// gen invalidates promotions that were already queued when their timer was cancelled.
	gen uint64
}

// PendingPromotion reports whether a promotion timer is armed.
func (e Entity) PendingPromotion() bool { return e.timer != nil }
