package reservation

import (
	"context"

	"github.com/google/uuid"

	"github.com/photocatalog/backend/internal/domain/shared"
)

// ActiveReservation is a customer's cart hold on a set of catalog files.
// The ordering subsystem owns it; the reconciler only reads it.
type ActiveReservation struct {
	shared.BaseEntity
	HolderID string `gorm:"type:varchar(64);not null;index"`
	IsActive bool   `gorm:"not null;index"`
	Items    []Item `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ActiveReservation) TableName() string {
	return "cart_reservations"
}

// Item is one held file inside a reservation
type Item struct {
	shared.BaseEntity
	ReservationID uuid.UUID `gorm:"type:uuid;not null;index"`
	FileName      string    `gorm:"type:varchar(255);not null;index"`
}

// TableName returns the table name for GORM
func (Item) TableName() string {
	return "cart_reservation_items"
}

// Repository defines read access to the reservation store
type Repository interface {
	// IsActiveHold reports whether holderID has an active reservation that
	// contains fileName.
	IsActiveHold(ctx context.Context, holderID, fileName string) (bool, error)
}
