package reconcile

import (
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/inventory"
)

// ActionKind is the correction suggested for a discrepancy
type ActionKind string

const (
	ActionIgnore          ActionKind = "ignore"
	ActionMarkSold        ActionKind = "mark_sold"
	ActionMarkUnavailable ActionKind = "mark_unavailable"
	ActionMarkAvailable   ActionKind = "mark_available"
	ActionManualReview    ActionKind = "manual_review"
)

// Action is a suggested correction and the reason for it
type Action struct {
	Kind   ActionKind `json:"kind"`
	Reason string     `json:"reason"`
}

// Reasons
const (
	ReasonSelectionLock      = "protected: confirmed selection"
	ReasonActiveHold         = "protected: active hold"
	ReasonRetired            = "item retired in inventory"
	ReasonHeldInInventory    = "item reserved or on standby in inventory"
	ReasonBackInStock        = "item back in inventory"
	ReasonPreSelectedNoHold  = "pre-selected without a hold"
	ReasonConfirmedNoLock    = "confirmed without a selection lock"
	ReasonUnrecognizedStatus = "unrecognized status"
)

// ResolveAction maps an external status and protection flags to an action.
// Protection always wins over status.
func ResolveAction(status inventory.ExternalStatus, flags ProtectionFlags) Action {
	switch {
	case flags.SelectionLock:
		return Action{Kind: ActionIgnore, Reason: ReasonSelectionLock}
	case flags.ActiveHold:
		return Action{Kind: ActionIgnore, Reason: ReasonActiveHold}
	}

	switch status {
	case inventory.StatusRetirado:
		return Action{Kind: ActionMarkSold, Reason: ReasonRetired}
	case inventory.StatusReserved, inventory.StatusStandby:
		return Action{Kind: ActionMarkUnavailable, Reason: ReasonHeldInInventory}
	case inventory.StatusIngresado:
		return Action{Kind: ActionMarkAvailable, Reason: ReasonBackInStock}
	case inventory.StatusPreSelected:
		return Action{Kind: ActionManualReview, Reason: ReasonPreSelectedNoHold}
	case inventory.StatusConfirmed:
		return Action{Kind: ActionManualReview, Reason: ReasonConfirmedNoLock}
	default:
		return Action{Kind: ActionManualReview, Reason: ReasonUnrecognizedStatus}
	}
}

// IsStateChange reports whether the action writes to the catalog
func (a Action) IsStateChange() bool {
	_, ok := a.TargetAvailability()
	return ok
}

// TargetAvailability returns the availability the action sets
func (a Action) TargetAvailability() (catalog.AvailabilityStatus, bool) {
	switch a.Kind {
	case ActionMarkSold:
		return catalog.AvailabilitySold, true
	case ActionMarkUnavailable:
		return catalog.AvailabilityUnavailable, true
	case ActionMarkAvailable:
		return catalog.AvailabilityAvailable, true
	default:
		return "", false
	}
}
