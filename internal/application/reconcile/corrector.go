package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/photocatalog/backend/internal/domain/catalog"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/domain/shared"
	"github.com/photocatalog/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Corrector applies the catalog side of a discrepancy
type Corrector struct {
	entries catalog.EntryRepository
	now     func() time.Time
}

// NewCorrector creates a Corrector
func NewCorrector(entries catalog.EntryRepository) *Corrector {
	return &Corrector{entries: entries, now: time.Now}
}

// Apply writes the discrepancy's target state unless mode forbids it, the
// action is not a state change, or the entry became protected. It never
// returns an error; every failure is folded into the outcome.
func (c *Corrector) Apply(ctx context.Context, mode domain.Mode, d *domain.Discrepancy) domain.CorrectionOutcome {
	if !mode.AppliesCorrections() {
		return domain.CorrectionOutcome{Kind: domain.OutcomeSkippedObserve}
	}
	if !d.Action.IsStateChange() {
		return domain.CorrectionOutcome{Kind: domain.OutcomeNotApplicable, Detail: d.Action.Reason}
	}
	target, _ := d.Action.TargetAvailability()
	mirror := d.ExternalRecord().MirrorValue()
	alreadyCurrent := false

	_, written, err := c.entries.UpdateStatus(ctx, d.EntryID, func(current *catalog.Entry) (*catalog.StatusPatch, error) {
		if domain.ProtectionOf(current).Protected() {
			return nil, domain.ErrProtected
		}
		if target == catalog.AvailabilityAvailable && current.Availability() == catalog.AvailabilityAvailable {
			alreadyCurrent = true
			return nil, nil
		}
		return &catalog.StatusPatch{
			Availability:   target,
			MirroredStatus: mirror,
			SyncedAt:       c.now().UTC(),
		}, nil
	})

	log := logger.L(ctx).With(
		zap.String("external_id", d.ExternalID),
		zap.String("entry_id", d.EntryID.String()),
		zap.String("action", string(d.Action.Kind)),
	)

	switch {
	case err == nil && written:
		log.Info("Correction applied", zap.String("availability", string(target)))
		return domain.CorrectionOutcome{Kind: domain.OutcomeApplied}
	case err == nil && alreadyCurrent:
		return domain.CorrectionOutcome{Kind: domain.OutcomeAlreadyCurrent, Detail: "entry already available"}
	case err == nil:
		return domain.CorrectionOutcome{Kind: domain.OutcomeNotApplicable}
	case errors.Is(err, domain.ErrProtected):
		log.Info("Correction skipped, entry protected")
		return domain.CorrectionOutcome{Kind: domain.OutcomeProtected, Detail: "protected"}
	case errors.Is(err, shared.ErrConcurrencyConflict):
		log.Warn("Correction lost a concurrent update", zap.Error(err))
		return domain.CorrectionOutcome{Kind: domain.OutcomeConcurrentOperation, Detail: "concurrent operation"}
	case errors.Is(err, shared.ErrNotFound):
		log.Warn("Entry vanished before correction")
		return domain.CorrectionOutcome{Kind: domain.OutcomeNotFound, Detail: "entry not found"}
	default:
		log.Error("Correction failed", zap.Error(err))
		return domain.CorrectionOutcome{Kind: domain.OutcomeFailed, Detail: err.Error()}
	}
}
