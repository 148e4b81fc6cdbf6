package inventory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/photocatalog/backend/internal/domain/shared"
)

// ExternalStatus is the lifecycle status of an item in the physical-inventory
// system of record.
type ExternalStatus string

const (
	StatusIngresado    ExternalStatus = "INGRESADO"
	StatusReserved     ExternalStatus = "RESERVED"
	StatusStandby      ExternalStatus = "STANDBY"
	StatusPreSelected  ExternalStatus = "PRE-SELECTED"
	StatusConfirmed    ExternalStatus = "CONFIRMED"
	StatusRetirado     ExternalStatus = "RETIRADO"
	StatusUnrecognized ExternalStatus = "UNRECOGNIZED"
)

// knownStatuses lists every recognized external status.
var knownStatuses = []ExternalStatus{
	StatusIngresado,
	StatusReserved,
	StatusStandby,
	StatusPreSelected,
	StatusConfirmed,
	StatusRetirado,
}

// ErrSourceUnavailable is returned when the external system cannot be read.
var ErrSourceUnavailable = shared.NewDomainError("SOURCE_UNAVAILABLE", "External inventory source is unavailable")

// NormalizeStatus trims and upper-cases a raw status value.
func NormalizeStatus(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ParseExternalStatus maps a raw value onto the closed status set.
// Anything else becomes StatusUnrecognized.
func ParseExternalStatus(raw string) ExternalStatus {
	s := ExternalStatus(NormalizeStatus(raw))
	switch s {
	case "PRE_SELECTED", "PRESELECTED":
		return StatusPreSelected
	}
	if slices.Contains(knownStatuses, s) {
		return s
	}
	return StatusUnrecognized
}

// IsRecognized reports whether s is one of the known statuses.
func (s ExternalStatus) IsRecognized() bool {
	return s != StatusUnrecognized && s != ""
}

// ExternalRecord is a read-only snapshot of one item as reported by the
// external system.
type ExternalRecord struct {
	ExternalID     string
	Status         ExternalStatus
	RawStatus      string
	ReservationRef *string
	ChangedAt      time.Time
}

// NewExternalRecord builds a record, parsing the raw status.
func NewExternalRecord(externalID, rawStatus string, reservationRef *string, changedAt time.Time) ExternalRecord {
	return ExternalRecord{
		ExternalID:     strings.TrimSpace(externalID),
		Status:         ParseExternalStatus(rawStatus),
		RawStatus:      rawStatus,
		ReservationRef: reservationRef,
		ChangedAt:      changedAt,
	}
}

// MatchesMirror reports whether the status mirrored on a catalog entry already
// equals this record's status. Unrecognized values compare by normalized text.
func (r ExternalRecord) MatchesMirror(mirrored string) bool {
	mirroredStatus := ParseExternalStatus(mirrored)
	if r.Status.IsRecognized() || mirroredStatus.IsRecognized() {
		return r.Status == mirroredStatus
	}
	return NormalizeStatus(r.RawStatus) == NormalizeStatus(mirrored)
}

// MirrorValue is the value written to the catalog's mirrored status column.
func (r ExternalRecord) MirrorValue() string {
	if r.Status.IsRecognized() {
		return string(r.Status)
	}
	return NormalizeStatus(r.RawStatus)
}

// ChangeSource reads changed records from the external system.
type ChangeSource interface {
	// ChangedSince returns records changed at or after since, newest first,
	// capped at limit. Records without a usable external id are excluded.
	ChangedSince(ctx context.Context, since time.Time, limit int) ([]ExternalRecord, error)
}
