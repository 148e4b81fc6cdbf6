package persistence

import (
	"context"

	"github.com/photocatalog/backend/internal/domain/reservation"
	"gorm.io/gorm"
)

// GormReservationRepository implements reservation.Repository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// IsActiveHold reports whether holderID has an active reservation on fileName
func (r *GormReservationRepository) IsActiveHold(ctx context.Context, holderID, fileName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("cart_reservations AS r").
		Joins("JOIN cart_reservation_items AS i ON i.reservation_id = r.id").
		Where("r.holder_id = ? AND r.is_active = ? AND i.file_name = ?", holderID, true, fileName).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ reservation.Repository = (*GormReservationRepository)(nil)
