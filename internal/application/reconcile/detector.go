package reconcile

import (
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/inventory"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
)

// DiscrepancyDetector compares an external record with its matched entry
type DiscrepancyDetector struct{}

// Detect returns nil when the entry already mirrors the external status.
// Otherwise it returns a discrepancy carrying the resolved action.
func (DiscrepancyDetector) Detect(rec inventory.ExternalRecord, e *catalog.Entry) *domain.Discrepancy {
	if rec.MatchesMirror(e.MirroredExternalStatus) {
		return nil
	}

	flags := domain.ProtectionOf(e)
	return &domain.Discrepancy{
		ExternalID:             rec.ExternalID,
		EntryID:                e.ID,
		FileName:               e.FileName,
		ExternalStatus:         rec.Status,
		RawExternalStatus:      rec.RawStatus,
		MirroredExternalStatus: e.MirroredExternalStatus,
		AvailabilityStatus:     e.AvailabilityStatus,
		Protection:             flags,
		Action:                 domain.ResolveAction(rec.Status, flags),
		ChangedAt:              rec.ChangedAt,
	}
}
