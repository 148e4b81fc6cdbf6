package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/inventory"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var runNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	source       *memorySource
	entries      *memoryEntries
	reservations *MockReservationRepository
	metrics      *recordingMetrics
	reconciler   *Reconciler
}

func newHarness(t *testing.T, records []inventory.ExternalRecord, entries ...*catalog.Entry) *harness {
	t.Helper()
	h := &harness{
		source:       &memorySource{records: records},
		entries:      newMemoryEntries(entries...),
		reservations: new(MockReservationRepository),
		metrics:      &recordingMetrics{},
	}
	h.reconciler = NewReconciler(h.source, h.entries, h.reservations, DefaultConfig(), zap.NewNop())
	h.reconciler.SetMetrics(h.metrics)
	h.reconciler.now = func() time.Time { return runNow }
	return h
}

func record(id, status string, age time.Duration) inventory.ExternalRecord {
	return inventory.NewExternalRecord(id, status, nil, runNow.Add(-age))
}

func firstRunWindow() domain.Window {
	return domain.CalculateWindow(nil, runNow, domain.DefaultWindowConfig())
}

func TestReconciler_StatusMappingScenario(t *testing.T) {
	e := mirroredEntry("00123", "INGRESADO", catalog.AvailabilityAvailable)
	h := newHarness(t, []inventory.ExternalRecord{record("123", "RETIRADO", time.Minute)}, e)

	report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	require.True(t, report.Succeeded())
	assert.Equal(t, 1, report.Counters.Examined)
	assert.Equal(t, 1, report.Counters.Matched)
	assert.Equal(t, 1, report.Counters.DiscrepancyCount)
	assert.Equal(t, 1, report.Counters.CorrectionsApplied)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, domain.ActionMarkSold, report.Discrepancies[0].Action.Kind)
	assert.Equal(t, domain.OutcomeApplied, report.Discrepancies[0].Outcome.Kind)

	stored := h.entries.get(e.ID)
	assert.Equal(t, "sold", stored.AvailabilityStatus)
	assert.Equal(t, "sold", stored.DisplayStatus)
	assert.Equal(t, "RETIRADO", stored.MirroredExternalStatus)

	assert.Same(t, report, h.reconciler.LastReport())
	require.Len(t, h.metrics.reports, 1)
	assert.Len(t, h.metrics.all[0], 1)
}

func TestReconciler_Idempotence(t *testing.T) {
	t.Run("unchanged inputs yield no discrepancies on both runs", func(t *testing.T) {
		e := mirroredEntry("00123", "STANDBY", catalog.AvailabilityUnavailable)
		h := newHarness(t, []inventory.ExternalRecord{record("123", "STANDBY", time.Minute)}, e)

		for i := 0; i < 2; i++ {
			report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())
			assert.Zero(t, report.Counters.DiscrepancyCount)
			assert.Equal(t, 1, report.Counters.Matched)
		}
		assert.Zero(t, h.entries.writeCount())
	})

	t.Run("a corrected entry is not corrected again", func(t *testing.T) {
		e := mirroredEntry("00123", "INGRESADO", catalog.AvailabilityAvailable)
		h := newHarness(t, []inventory.ExternalRecord{record("123", "RESERVED", time.Minute)}, e)

		first := h.reconciler.Run(context.Background(), domain.ModeFull, firstRunWindow())
		second := h.reconciler.Run(context.Background(), domain.ModeFull, firstRunWindow())

		assert.Equal(t, 1, first.Counters.CorrectionsApplied)
		assert.Zero(t, second.Counters.DiscrepancyCount)
		assert.Equal(t, 1, h.entries.writeCount())
	})
}

func TestReconciler_HoldInvariant(t *testing.T) {
	e := mirroredEntry("00123", "INGRESADO", catalog.AvailabilityAvailable)
	e.ActiveHoldID = strPtr("cart-1")
	h := newHarness(t, []inventory.ExternalRecord{record("123", "RETIRADO", time.Minute)}, e)
	h.reservations.On("IsActiveHold", mock.Anything, "cart-1", "00123.webp").Return(true, nil)

	for _, mode := range []domain.Mode{domain.ModeObserve, domain.ModeSafe, domain.ModeFull} {
		report := h.reconciler.Run(context.Background(), mode, firstRunWindow())

		assert.Equal(t, 1, report.Counters.SkippedActiveHold, mode)
		assert.Zero(t, report.Counters.DiscrepancyCount, mode)
		assert.Empty(t, report.Discrepancies, mode)
	}
	assert.Zero(t, h.entries.writeCount())
}

func TestReconciler_StaleHoldIsReportedButNotCorrected(t *testing.T) {
	e := mirroredEntry("00123", "INGRESADO", catalog.AvailabilityAvailable)
	e.ActiveHoldID = strPtr("cart-old")
	h := newHarness(t, []inventory.ExternalRecord{record("123", "RETIRADO", time.Minute)}, e)
	h.reservations.On("IsActiveHold", mock.Anything, "cart-old", "00123.webp").Return(false, nil)

	report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	assert.Zero(t, report.Counters.SkippedActiveHold)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, domain.ActionIgnore, report.Discrepancies[0].Action.Kind)
	assert.Equal(t, domain.ReasonActiveHold, report.Discrepancies[0].Action.Reason)
	assert.Zero(t, h.entries.writeCount())
}

func TestReconciler_HoldLookupFailureSkipsEntry(t *testing.T) {
	e := mirroredEntry("00123", "INGRESADO", catalog.AvailabilityAvailable)
	e.ActiveHoldID = strPtr("cart-1")
	h := newHarness(t, []inventory.ExternalRecord{record("123", "RETIRADO", time.Minute)}, e)
	h.reservations.On("IsActiveHold", mock.Anything, "cart-1", "00123.webp").Return(false, assert.AnError)

	report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	assert.True(t, report.Succeeded())
	assert.Equal(t, 1, report.Counters.Errors)
	assert.Zero(t, report.Counters.SkippedActiveHold)
	assert.Empty(t, report.Discrepancies)
	assert.Zero(t, h.entries.writeCount())
}

func TestReconciler_ModeGating(t *testing.T) {
	build := func() []*catalog.Entry {
		return []*catalog.Entry{
			mirroredEntry("00001", "INGRESADO", catalog.AvailabilityAvailable),
			mirroredEntry("00002", "INGRESADO", catalog.AvailabilityAvailable),
			mirroredEntry("00003", "RESERVED", catalog.AvailabilityUnavailable),
			mirroredEntry("00004", "INGRESADO", catalog.AvailabilityAvailable),
		}
	}
	records := []inventory.ExternalRecord{
		record("1", "RETIRADO", time.Minute),
		record("2", "STANDBY", 2*time.Minute),
		record("3", "INGRESADO", 3*time.Minute),
		record("4", "PRE-SELECTED", 4*time.Minute),
	}

	observe := newHarness(t, records, build()...)
	safe := newHarness(t, records, build()...)

	observed := observe.reconciler.Run(context.Background(), domain.ModeObserve, firstRunWindow())
	applied := safe.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	assert.Zero(t, observe.entries.writeCount())
	assert.Equal(t, 3, safe.entries.writeCount())

	require.Len(t, observed.Discrepancies, 4)
	require.Len(t, applied.Discrepancies, 4)
	for i := range observed.Discrepancies {
		o, a := observed.Discrepancies[i], applied.Discrepancies[i]
		assert.Equal(t, domain.OutcomeSkippedObserve, o.Outcome.Kind)
		o.Outcome, a.Outcome = nil, nil
		o.EntryID = a.EntryID
		assert.Equal(t, o, a)
	}
	assert.Equal(t, 1, applied.Counters.ManualReview)
}

func TestReconciler_BatchCap(t *testing.T) {
	records := make([]inventory.ExternalRecord, 0, 600)
	for i := 0; i < 600; i++ {
		records = append(records, record(fmt.Sprintf("%d", i+1), "INGRESADO", time.Duration(i)*time.Second))
	}
	h := newHarness(t, records)

	report := h.reconciler.Run(context.Background(), domain.ModeObserve, firstRunWindow())

	assert.Equal(t, 500, report.Counters.Examined)
	assert.Equal(t, 500, report.Counters.Unmatched)
	assert.Equal(t, []int{500}, h.source.limits)
}

func TestReconciler_BatchCapKeepsNewest(t *testing.T) {
	var records []inventory.ExternalRecord
	for i := 0; i < 600; i++ {
		records = append(records, record(fmt.Sprintf("%d", 1000+i), "RETIRADO", time.Duration(i)*time.Second))
	}
	newest := mirroredEntry("1000", "INGRESADO", catalog.AvailabilityAvailable)
	oldest := mirroredEntry("1599", "INGRESADO", catalog.AvailabilityAvailable)
	h := newHarness(t, records, newest, oldest)

	report := h.reconciler.Run(context.Background(), domain.ModeObserve, firstRunWindow())

	require.Equal(t, 1, report.Counters.Matched)
	assert.Equal(t, "1000", report.Discrepancies[0].ExternalID)
}

func TestReconciler_WindowStartFiltersRecords(t *testing.T) {
	e := mirroredEntry("00123", "INGRESADO", catalog.AvailabilityAvailable)
	h := newHarness(t, []inventory.ExternalRecord{record("123", "RETIRADO", 10*time.Minute)}, e)

	last := runNow.Add(-time.Minute)
	window := domain.CalculateWindow(&last, runNow, domain.DefaultWindowConfig())
	report := h.reconciler.Run(context.Background(), domain.ModeSafe, window)

	assert.Equal(t, 6*time.Minute, window.Lookback)
	assert.Zero(t, report.Counters.Examined)
}

func TestReconciler_SourceFailureAbortsRun(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = fmt.Errorf("%w: connection refused", inventory.ErrSourceUnavailable)

	report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	assert.False(t, report.Succeeded())
	assert.Contains(t, report.Error, "connection refused")
	assert.Equal(t, 1, report.Counters.Errors)
	assert.Zero(t, report.Counters.Examined)
	require.Len(t, h.metrics.reports, 1)
}

func TestReconciler_ConflictDoesNotAbortRun(t *testing.T) {
	first := mirroredEntry("00001", "INGRESADO", catalog.AvailabilityAvailable)
	second := mirroredEntry("00002", "INGRESADO", catalog.AvailabilityAvailable)
	h := newHarness(t, []inventory.ExternalRecord{
		record("1", "RETIRADO", time.Minute),
		record("2", "RETIRADO", 2*time.Minute),
	}, first, second)
	h.entries.updateErr = shared.ErrConcurrencyConflict

	report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	assert.True(t, report.Succeeded())
	assert.Equal(t, 2, report.Counters.DiscrepancyCount)
	assert.Equal(t, 2, report.Counters.CorrectionConflicts)
	for _, d := range report.Discrepancies {
		assert.Equal(t, domain.OutcomeConcurrentOperation, d.Outcome.Kind)
	}
}

func TestReconciler_LookupErrorIsPerRecord(t *testing.T) {
	h := newHarness(t, []inventory.ExternalRecord{
		record("1", "RETIRADO", time.Minute),
		record("2", "RETIRADO", 2*time.Minute),
	})
	h.entries.findErr = assert.AnError

	report := h.reconciler.Run(context.Background(), domain.ModeSafe, firstRunWindow())

	assert.True(t, report.Succeeded())
	assert.Equal(t, 2, report.Counters.Examined)
	assert.Equal(t, 2, report.Counters.Errors)
}
