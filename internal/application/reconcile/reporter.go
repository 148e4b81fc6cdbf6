package reconcile

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
)

// DefaultSampleSize is how many discrepancies a published report carries
const DefaultSampleSize = 10

// RunReporter publishes the last run's report. Readers always see a complete
// report or none.
type RunReporter struct {
	sampleSize int
	last       atomic.Pointer[domain.RunReport]
}

// NewRunReporter creates a RunReporter keeping sampleSize discrepancies
func NewRunReporter(sampleSize int) *RunReporter {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &RunReporter{sampleSize: sampleSize}
}

// Begin starts a tally for a new run
func (r *RunReporter) Begin(mode domain.Mode, window domain.Window, startedAt time.Time) *RunTally {
	return &RunTally{
		report: domain.RunReport{
			RunID:     uuid.New(),
			Mode:      mode,
			Window:    window,
			StartedAt: startedAt,
		},
	}
}

// Publish finalizes t and swaps it in as the last report. runErr marks the
// run as aborted.
func (r *RunReporter) Publish(t *RunTally, finishedAt time.Time, runErr error) *domain.RunReport {
	report := t.report
	report.FinishedAt = finishedAt
	report.DurationMs = finishedAt.Sub(report.StartedAt).Milliseconds()
	if runErr != nil {
		report.Error = runErr.Error()
	}

	n := min(len(t.discrepancies), r.sampleSize)
	report.Discrepancies = make([]domain.Discrepancy, n)
	copy(report.Discrepancies, t.discrepancies[:n])

	r.last.Store(&report)
	return &report
}

// Last returns the most recent published report, or nil before the first run
func (r *RunReporter) Last() *domain.RunReport {
	return r.last.Load()
}

// RunTally accumulates one run's counters. It is owned by a single run and
// is not safe for concurrent use.
type RunTally struct {
	report        domain.RunReport
	discrepancies []domain.Discrepancy
}

// RunID returns the id assigned to the run
func (t *RunTally) RunID() uuid.UUID { return t.report.RunID }

func (t *RunTally) examined()          { t.report.Counters.Examined++ }
func (t *RunTally) matched()           { t.report.Counters.Matched++ }
func (t *RunTally) unmatched()         { t.report.Counters.Unmatched++ }
func (t *RunTally) skippedActiveHold() { t.report.Counters.SkippedActiveHold++ }
func (t *RunTally) failed()            { t.report.Counters.Errors++ }

// add records a discrepancy and counts its action and outcome
func (t *RunTally) add(d domain.Discrepancy) {
	c := &t.report.Counters
	c.DiscrepancyCount++
	if d.Action.Kind == domain.ActionManualReview {
		c.ManualReview++
	}
	if d.Outcome != nil {
		switch d.Outcome.Kind {
		case domain.OutcomeApplied:
			c.CorrectionsApplied++
		case domain.OutcomeProtected:
			c.CorrectionsProtected++
		case domain.OutcomeConcurrentOperation:
			c.CorrectionConflicts++
		case domain.OutcomeFailed, domain.OutcomeNotFound:
			c.CorrectionsFailed++
		}
	}
	t.discrepancies = append(t.discrepancies, d)
}

// Discrepancies returns every discrepancy recorded so far
func (t *RunTally) Discrepancies() []domain.Discrepancy {
	return t.discrepancies
}
