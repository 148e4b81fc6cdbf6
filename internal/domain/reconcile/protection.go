package reconcile

import (
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/shared"
)

// ErrProtected is returned when a write is refused because the entry is claimed
var ErrProtected = shared.NewDomainError("PROTECTED", "Entry is protected by a selection lock or active hold")

// IsSelectionLocked reports whether the entry carries a confirmed selection.
func IsSelectionLocked(e *catalog.Entry) bool {
	return e != nil && e.SelectionLockID != nil && *e.SelectionLockID != ""
}

// HasActiveHold reports whether the entry carries a cart hold.
func HasActiveHold(e *catalog.Entry) bool {
	return e != nil && e.ActiveHoldID != nil && *e.ActiveHoldID != ""
}

// ProtectionFlags is the protection state of an entry at one point in time
type ProtectionFlags struct {
	SelectionLock bool `json:"selection_lock"`
	ActiveHold    bool `json:"active_hold"`
}

// ProtectionOf evaluates both predicates on e
func ProtectionOf(e *catalog.Entry) ProtectionFlags {
	return ProtectionFlags{
		SelectionLock: IsSelectionLocked(e),
		ActiveHold:    HasActiveHold(e),
	}
}

// Protected reports whether either flag is set
func (f ProtectionFlags) Protected() bool {
	return f.SelectionLock || f.ActiveHold
}
