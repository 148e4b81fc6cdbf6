package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/photocatalog/backend/internal/domain/shared"
)

// AvailabilityStatus is the sellable state of a catalog entry
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
	AvailabilitySold        AvailabilityStatus = "sold"
	AvailabilityOther       AvailabilityStatus = "other"
)

// ParseAvailability maps a stored value to an AvailabilityStatus.
func ParseAvailability(raw string) AvailabilityStatus {
	switch AvailabilityStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case AvailabilityAvailable:
		return AvailabilityAvailable
	case AvailabilityUnavailable:
		return AvailabilityUnavailable
	case AvailabilitySold:
		return AvailabilitySold
	default:
		return AvailabilityOther
	}
}

// Entry represents a sellable photo in the catalog.
// AvailabilityStatus and DisplayStatus are kept in step; DisplayStatus is the
// denormalized copy read by the gallery and cart.
type Entry struct {
	shared.BaseEntity
	ExternalKey            string     `gorm:"type:varchar(64);index"`
	FileName               string     `gorm:"type:varchar(255);index"`
	MirroredExternalStatus string     `gorm:"column:mirrored_external_status;type:varchar(32);not null;default:''"`
	AvailabilityStatus     string     `gorm:"type:varchar(32);not null;default:'available'"`
	DisplayStatus          string     `gorm:"type:varchar(32);not null;default:'available'"`
	SelectionLockID        *string    `gorm:"type:varchar(64)"`
	ActiveHoldID           *string    `gorm:"type:varchar(64)"`
	LastSyncedAt           *time.Time `gorm:"type:timestamp"`
	Version                int        `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (Entry) TableName() string {
	return "catalog_entries"
}

// GetVersion returns the version used for optimistic locking
func (e *Entry) GetVersion() int {
	return e.Version
}

// NewEntry creates an available catalog entry
func NewEntry(externalKey, fileName string) *Entry {
	return &Entry{
		BaseEntity:         shared.NewBaseEntity(),
		ExternalKey:        externalKey,
		FileName:           fileName,
		AvailabilityStatus: string(AvailabilityAvailable),
		DisplayStatus:      string(AvailabilityAvailable),
		Version:            1,
	}
}

// Availability returns the parsed availability status
func (e *Entry) Availability() AvailabilityStatus {
	return ParseAvailability(e.AvailabilityStatus)
}

// StatusPatch is the full field set written by one correction.
type StatusPatch struct {
	Availability   AvailabilityStatus
	MirroredStatus string
	SyncedAt       time.Time
}

// Validate checks the patch targets a concrete state
func (p StatusPatch) Validate() error {
	switch p.Availability {
	case AvailabilityAvailable, AvailabilityUnavailable, AvailabilitySold:
	default:
		return shared.NewDomainError("INVALID_PATCH", fmt.Sprintf("Cannot set availability to %q", p.Availability))
	}
	if p.MirroredStatus == "" {
		return shared.NewDomainError("INVALID_PATCH", "Mirrored status is required")
	}
	return nil
}

// Apply writes the patch onto the in-memory entry
func (e *Entry) Apply(p StatusPatch) {
	synced := p.SyncedAt
	e.AvailabilityStatus = string(p.Availability)
	e.DisplayStatus = string(p.Availability)
	e.MirroredExternalStatus = p.MirroredStatus
	e.LastSyncedAt = &synced
	e.Touch(synced)
	e.Version++
}

// LookupField is a column that can identify an entry
type LookupField string

const (
	LookupByExternalKey LookupField = "external_key"
	LookupByFileName    LookupField = "file_name"
)

// LookupKey is one candidate key for finding an entry
type LookupKey struct {
	Field LookupField
	Value string
}

func (k LookupKey) String() string {
	return string(k.Field) + "=" + k.Value
}

// PadExternalID left-pads id with zeros up to width.
func PadExternalID(id string, width int) string {
	if width <= 0 || len(id) >= width {
		return id
	}
	return strings.Repeat("0", width-len(id)) + id
}

// LookupKeys returns the candidate keys for an external id in priority order:
// raw id, padded id, raw file name, padded file name. Duplicates are dropped.
func LookupKeys(externalID, extension string, padWidth int) []LookupKey {
	padded := PadExternalID(externalID, padWidth)
	candidates := []LookupKey{
		{Field: LookupByExternalKey, Value: externalID},
		{Field: LookupByExternalKey, Value: padded},
		{Field: LookupByFileName, Value: externalID + extension},
		{Field: LookupByFileName, Value: padded + extension},
	}

	keys := make([]LookupKey, 0, len(candidates))
	seen := make(map[LookupKey]struct{}, len(candidates))
	for _, k := range candidates {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
