package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/photocatalog/backend/internal/domain/inventory"
)

// OutcomeKind is what happened when a discrepancy reached the Corrector
type OutcomeKind string

const (
	OutcomeSkippedObserve      OutcomeKind = "skipped_observe"
	OutcomeNotApplicable       OutcomeKind = "not_applicable"
	OutcomeApplied             OutcomeKind = "applied"
	OutcomeAlreadyCurrent      OutcomeKind = "already_current"
	OutcomeProtected           OutcomeKind = "protected"
	OutcomeConcurrentOperation OutcomeKind = "concurrent_operation"
	OutcomeNotFound            OutcomeKind = "not_found"
	OutcomeFailed              OutcomeKind = "failed"
)

// CorrectionOutcome is the Corrector's result for one discrepancy
type CorrectionOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// Discrepancy is a mismatch between the external status and the catalog mirror
type Discrepancy struct {
	ExternalID             string                   `json:"external_id"`
	EntryID                uuid.UUID                `json:"entry_id"`
	FileName               string                   `json:"file_name"`
	ExternalStatus         inventory.ExternalStatus `json:"external_status"`
	RawExternalStatus      string                   `json:"raw_external_status"`
	MirroredExternalStatus string                   `json:"mirrored_external_status"`
	AvailabilityStatus     string                   `json:"availability_status"`
	Protection             ProtectionFlags          `json:"protection"`
	Action                 Action                   `json:"action"`
	Outcome                *CorrectionOutcome       `json:"outcome,omitempty"`
	ChangedAt              time.Time                `json:"changed_at"`
}

// ExternalRecord rebuilds the external snapshot the discrepancy was built from
func (d *Discrepancy) ExternalRecord() inventory.ExternalRecord {
	return inventory.ExternalRecord{
		ExternalID: d.ExternalID,
		Status:     d.ExternalStatus,
		RawStatus:  d.RawExternalStatus,
		ChangedAt:  d.ChangedAt,
	}
}

// Counters are the per-run totals
type Counters struct {
	Examined             int `json:"examined"`
	Matched              int `json:"matched"`
	Unmatched            int `json:"unmatched"`
	SkippedActiveHold    int `json:"skipped_active_hold"`
	DiscrepancyCount     int `json:"discrepancy_count"`
	CorrectionsApplied   int `json:"corrections_applied"`
	CorrectionsProtected int `json:"corrections_protected"`
	CorrectionConflicts  int `json:"correction_conflicts"`
	CorrectionsFailed    int `json:"corrections_failed"`
	ManualReview         int `json:"manual_review"`
	Errors               int `json:"errors"`
}

// RunReport is the published result of one run
type RunReport struct {
	RunID         uuid.UUID     `json:"run_id"`
	Mode          Mode          `json:"mode"`
	Window        Window        `json:"window"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	DurationMs    int64         `json:"duration_ms"`
	Counters      Counters      `json:"counters"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Error         string        `json:"error,omitempty"`
}

// Succeeded reports whether the run completed without aborting
func (r *RunReport) Succeeded() bool {
	return r != nil && r.Error == ""
}

// Summary returns a copy without the discrepancy sample
func (r *RunReport) Summary() RunReport {
	s := *r
	s.Discrepancies = nil
	return s
}
