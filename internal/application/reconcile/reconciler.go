// Package reconcile runs one pass of the inventory reconciliation pipeline:
// read changes, match entries, guard holds, detect discrepancies, correct.
package reconcile

import (
	"context"
	"time"

	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/inventory"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/domain/reservation"
	"github.com/photocatalog/backend/internal/infrastructure/logger"
	"github.com/photocatalog/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultBatchSize caps the records examined per run
const DefaultBatchSize = 500

// RunMetrics receives the outcome of every run
type RunMetrics interface {
	RecordRun(ctx context.Context, report *domain.RunReport, all []domain.Discrepancy)
}

// Config holds reconciler settings
type Config struct {
	BatchSize      int
	ImageExtension string
	PadWidth       int
	SampleSize     int
}

// DefaultConfig returns the default reconciler configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:      DefaultBatchSize,
		ImageExtension: ".webp",
		PadWidth:       5,
		SampleSize:     DefaultSampleSize,
	}
}

// Reconciler executes reconciliation runs. Records within a run are
// processed sequentially.
type Reconciler struct {
	source    inventory.ChangeSource
	matcher   *CatalogMatcher
	guard     *ReservationGuard
	detector  DiscrepancyDetector
	corrector *Corrector
	reporter  *RunReporter
	metrics   RunMetrics
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciler creates a Reconciler
func NewReconciler(
	source inventory.ChangeSource,
	entries catalog.EntryRepository,
	reservations reservation.Repository,
	cfg Config,
	log *zap.Logger,
) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Reconciler{
		source:    source,
		matcher:   NewCatalogMatcher(entries, cfg.ImageExtension, cfg.PadWidth),
		guard:     NewReservationGuard(reservations),
		corrector: NewCorrector(entries),
		reporter:  NewRunReporter(cfg.SampleSize),
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
}

// SetMetrics sets the metrics sink
func (r *Reconciler) SetMetrics(m RunMetrics) {
	r.metrics = m
}

// LastReport returns the last published run report, or nil
func (r *Reconciler) LastReport() *domain.RunReport {
	return r.reporter.Last()
}

// Run performs one reconciliation pass over window and publishes its report.
// A failure to read the change source aborts the run; the returned report
// then carries the error. Per-record failures never abort.
func (r *Reconciler) Run(ctx context.Context, mode domain.Mode, window domain.Window) *domain.RunReport {
	tally := r.reporter.Begin(mode, window, r.now())
	ctx, log := logger.WithRun(ctx, r.logger, tally.RunID().String(), mode.String())

	ctx, span := telemetry.StartSpan(ctx, "reconcile.run",
		telemetry.AttrMode.String(mode.String()),
		attribute.Bool("reconcile.first_run", window.FirstRun),
	)
	defer span.End()

	log.Info("Reconcile run started",
		zap.Time("window_start", window.Start),
		zap.Duration("lookback", window.Lookback),
		zap.Bool("first_run", window.FirstRun),
	)

	records, err := r.source.ChangedSince(ctx, window.Start, r.cfg.BatchSize)
	if err != nil {
		tally.failed()
		telemetry.RecordError(span, err)
		log.Error("Reconcile run aborted", zap.Error(err))
		return r.finish(ctx, tally, err)
	}
	if len(records) > r.cfg.BatchSize {
		records = records[:r.cfg.BatchSize]
	}
	span.SetAttributes(attribute.Int("reconcile.records", len(records)))

	for _, rec := range records {
		r.process(ctx, mode, tally, rec)
	}

	telemetry.SetOK(span)
	return r.finish(ctx, tally, nil)
}

func (r *Reconciler) process(ctx context.Context, mode domain.Mode, tally *RunTally, rec inventory.ExternalRecord) {
	tally.examined()
	log := logger.L(ctx).With(zap.String("external_id", rec.ExternalID))

	entry, key, err := r.matcher.Match(ctx, rec.ExternalID)
	if err != nil {
		tally.failed()
		log.Warn("Catalog lookup failed", zap.Error(err))
		return
	}
	if entry == nil {
		tally.unmatched()
		log.Debug("No catalog entry for external record")
		return
	}
	tally.matched()

	held, err := r.guard.IsHeld(ctx, entry)
	if err != nil {
		tally.failed()
		log.Warn("Hold check failed, skipping entry", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		return
	}
	if held {
		tally.skippedActiveHold()
		return
	}

	d := r.detector.Detect(rec, entry)
	if d == nil {
		return
	}

	outcome := r.corrector.Apply(ctx, mode, d)
	d.Outcome = &outcome
	tally.add(*d)

	log.Debug("Discrepancy recorded",
		zap.String("matched_by", key.String()),
		zap.String("external_status", string(d.ExternalStatus)),
		zap.String("mirrored_status", d.MirroredExternalStatus),
		zap.String("action", string(d.Action.Kind)),
		zap.String("outcome", string(outcome.Kind)),
	)
}

func (r *Reconciler) finish(ctx context.Context, tally *RunTally, runErr error) *domain.RunReport {
	report := r.reporter.Publish(tally, r.now(), runErr)
	if r.metrics != nil {
		r.metrics.RecordRun(ctx, report, tally.Discrepancies())
	}

	c := report.Counters
	logger.L(ctx).Info("Reconcile run finished",
		zap.Int64("duration_ms", report.DurationMs),
		zap.Int("examined", c.Examined),
		zap.Int("matched", c.Matched),
		zap.Int("unmatched", c.Unmatched),
		zap.Int("skipped_active_hold", c.SkippedActiveHold),
		zap.Int("discrepancies", c.DiscrepancyCount),
		zap.Int("corrections_applied", c.CorrectionsApplied),
		zap.Int("errors", c.Errors),
		zap.Bool("succeeded", report.Succeeded()),
	)
	return report
}
