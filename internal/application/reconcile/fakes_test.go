package reconcile

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/inventory"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/domain/reservation"
	"github.com/photocatalog/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// memoryEntries is an in-memory catalog.EntryRepository with hooks for
// simulating races and store failures.
type memoryEntries struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*catalog.Entry
	writes  int

	findErr     error
	updateErr   error
	beforeWrite func(stored *catalog.Entry)
}

func newMemoryEntries(entries ...*catalog.Entry) *memoryEntries {
	m := &memoryEntries{entries: make(map[uuid.UUID]*catalog.Entry)}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *memoryEntries) FindByKey(_ context.Context, key catalog.LookupKey) (*catalog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}

	var hits []*catalog.Entry
	for _, e := range m.entries {
		v := e.ExternalKey
		if key.Field == catalog.LookupByFileName {
			v = e.FileName
		}
		if v == key.Value {
			hits = append(hits, e)
		}
	}
	if len(hits) == 0 {
		return nil, shared.ErrNotFound
	}
	slices.SortFunc(hits, func(a, b *catalog.Entry) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	cp := *hits[0]
	return &cp, nil
}

func (m *memoryEntries) UpdateStatus(_ context.Context, id uuid.UUID, decide catalog.EntryDecision) (*catalog.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[id]
	if !ok {
		return nil, false, shared.ErrNotFound
	}
	if m.beforeWrite != nil {
		m.beforeWrite(stored)
	}

	current := *stored
	patch, err := decide(&current)
	if err != nil {
		return nil, false, err
	}
	if patch == nil {
		return &current, false, nil
	}
	if err := patch.Validate(); err != nil {
		return nil, false, err
	}
	if m.updateErr != nil {
		return nil, false, m.updateErr
	}

	current.Apply(*patch)
	*stored = current
	m.writes++
	return &current, true, nil
}

func (m *memoryEntries) get(id uuid.UUID) catalog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.entries[id]
}

func (m *memoryEntries) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// MockReservationRepository is a mock implementation of reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) IsActiveHold(ctx context.Context, holderID, fileName string) (bool, error) {
	args := m.Called(ctx, holderID, fileName)
	return args.Bool(0), args.Error(1)
}

var (
	_ catalog.EntryRepository = (*memoryEntries)(nil)
	_ reservation.Repository  = (*MockReservationRepository)(nil)
)

// memorySource serves external records newest first, honoring since and limit
type memorySource struct {
	records []inventory.ExternalRecord
	err     error
	limits  []int
}

func (s *memorySource) ChangedSince(_ context.Context, since time.Time, limit int) ([]inventory.ExternalRecord, error) {
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	var out []inventory.ExternalRecord
	for _, r := range s.records {
		if !r.ChangedAt.Before(since) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b inventory.ExternalRecord) int { return b.ChangedAt.Compare(a.ChangedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingMetrics captures RecordRun calls
type recordingMetrics struct {
	reports []*domain.RunReport
	all     [][]domain.Discrepancy
}

func (r *recordingMetrics) RecordRun(_ context.Context, report *domain.RunReport, all []domain.Discrepancy) {
	r.reports = append(r.reports, report)
	r.all = append(r.all, all)
}

func strPtr(s string) *string { return &s }

// mirroredEntry builds an entry whose mirror and availability reflect status
func mirroredEntry(externalKey, mirror string, availability catalog.AvailabilityStatus) *catalog.Entry {
	e := catalog.NewEntry(externalKey, externalKey+".webp")
	e.MirroredExternalStatus = mirror
	e.AvailabilityStatus = string(availability)
	e.DisplayStatus = string(availability)
	return e
}
