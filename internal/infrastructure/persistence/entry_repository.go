package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/photocatalog/backend/internal/domain/catalog"
	"github.com/photocatalog/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormEntryRepository implements catalog.EntryRepository using GORM
type GormEntryRepository struct {
	db *gorm.DB
}

// NewGormEntryRepository creates a new GormEntryRepository
func NewGormEntryRepository(db *gorm.DB) *GormEntryRepository {
	return &GormEntryRepository{db: db}
}

// FindByKey returns the lowest-ID entry whose lookup column equals key.Value
func (r *GormEntryRepository) FindByKey(ctx context.Context, key catalog.LookupKey) (*catalog.Entry, error) {
	switch key.Field {
	case catalog.LookupByExternalKey, catalog.LookupByFileName:
	default:
		return nil, shared.NewDomainError("INVALID_LOOKUP", fmt.Sprintf("Unsupported lookup field %q", key.Field))
	}

	var entry catalog.Entry
	err := r.db.WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", key.Field), key.Value).
		Order("id ASC").
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// UpdateStatus reloads the entry, lets decide compute a patch against the
// stored state and writes the three status fields with a version check.
// The write also requires both protection columns to still be empty.
func (r *GormEntryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, decide catalog.EntryDecision) (*catalog.Entry, bool, error) {
	var (
		current catalog.Entry
		written bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := findEntry(tx, id)
		if err != nil {
			return err
		}
		current = *stored

		patch, err := decide(&current)
		if err != nil || patch == nil {
			return err
		}
		if err := patch.Validate(); err != nil {
			return err
		}

		expected := current.Version
		current.Apply(*patch)

		result := tx.Model(&catalog.Entry{}).
			Where("id = ? AND version = ?", id, expected).
			Where("COALESCE(selection_lock_id, '') = '' AND COALESCE(active_hold_id, '') = ''").
			Updates(map[string]any{
				"availability_status":      current.AvailabilityStatus,
				"display_status":           current.DisplayStatus,
				"mirrored_external_status": current.MirroredExternalStatus,
				"last_synced_at":           current.LastSyncedAt,
				"updated_at":               current.UpdatedAt,
				"version":                  current.Version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		written = true
		return nil
	})
	if err != nil {
		if isWriteConflict(err) {
			return nil, false, fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
		}
		return nil, false, err
	}
	return &current, written, nil
}

func findEntry(db *gorm.DB, id uuid.UUID) (*catalog.Entry, error) {
	var entry catalog.Entry
	if err := db.First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

var _ catalog.EntryRepository = (*GormEntryRepository)(nil)
