package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/photocatalog/backend/internal/domain/reconcile"
)

// ReconcileMetrics records per-run reconciliation metrics.
type ReconcileMetrics struct {
	logger *zap.Logger

	runsTotal          *Counter
	recordsExamined    *Counter
	skippedActiveHold  *Counter
	discrepanciesTotal *Counter
	correctionsTotal   *Counter
	runDuration        *Histogram
	lastDiscrepancies  *Gauge
}

// ReconcileMetricsConfig holds configuration for reconcile metrics.
type ReconcileMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewReconcileMetrics creates the reconcile instruments on cfg.Meter.
func NewReconcileMetrics(cfg ReconcileMetricsConfig) (*ReconcileMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReconcileMetrics{logger: logger}

	var err error
	if rm.runsTotal, err = NewCounter(cfg.Meter,
		"catsync_reconcile_runs_total", "Reconcile runs by result", "{runs}"); err != nil {
		return nil, err
	}
	if rm.recordsExamined, err = NewCounter(cfg.Meter,
		"catsync_reconcile_records_examined_total", "External records examined", "{records}"); err != nil {
		return nil, err
	}
	if rm.skippedActiveHold, err = NewCounter(cfg.Meter,
		"catsync_reconcile_skipped_active_hold_total", "Records skipped because of an active cart hold", "{records}"); err != nil {
		return nil, err
	}
	if rm.discrepanciesTotal, err = NewCounter(cfg.Meter,
		"catsync_reconcile_discrepancies_total", "Discrepancies detected by suggested action", "{discrepancies}"); err != nil {
		return nil, err
	}
	if rm.correctionsTotal, err = NewCounter(cfg.Meter,
		"catsync_reconcile_corrections_total", "Correction attempts by outcome", "{corrections}"); err != nil {
		return nil, err
	}
	if rm.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "catsync_reconcile_run_duration_seconds",
		Description: "Wall time of a reconcile run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if rm.lastDiscrepancies, err = NewGauge(cfg.Meter,
		"catsync_reconcile_last_run_discrepancies", "Discrepancies found by the most recent run", "{discrepancies}"); err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordRun records the totals of a finished (or aborted) run.
func (rm *ReconcileMetrics) RecordRun(ctx context.Context, report *reconcile.RunReport, all []reconcile.Discrepancy) {
	if report == nil {
		return
	}
	mode := AttrMode.String(report.Mode.String())

	result := "success"
	if !report.Succeeded() {
		result = "failed"
	}
	rm.runsTotal.Inc(ctx, mode, AttrResult.String(result))

	c := report.Counters
	rm.recordsExamined.Add(ctx, int64(c.Examined), mode)
	rm.skippedActiveHold.Add(ctx, int64(c.SkippedActiveHold), mode)
	rm.runDuration.RecordDuration(ctx, report.FinishedAt.Sub(report.StartedAt), mode, AttrResult.String(result))
	rm.lastDiscrepancies.Record(ctx, int64(c.DiscrepancyCount), mode)

	for _, d := range all {
		rm.discrepanciesTotal.Inc(ctx, mode, AttrAction.String(string(d.Action.Kind)))
		if d.Outcome != nil {
			rm.correctionsTotal.Inc(ctx, mode, AttrOutcome.String(string(d.Outcome.Kind)))
		}
	}
}

// RecordSkippedRun records a run that never started, e.g. single-flight or lock contention.
func (rm *ReconcileMetrics) RecordSkippedRun(ctx context.Context, reason string) {
	rm.runsTotal.Inc(ctx, AttrResult.String("skipped"), AttrReason.String(reason))
}
