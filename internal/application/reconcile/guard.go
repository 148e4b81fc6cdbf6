package reconcile

import (
	"context"
	"fmt"

	"github.com/photocatalog/backend/internal/domain/catalog"
	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/domain/reservation"
)

// ReservationGuard confirms cart holds against the reservation store
type ReservationGuard struct {
	reservations reservation.Repository
}

// NewReservationGuard creates a ReservationGuard
func NewReservationGuard(reservations reservation.Repository) *ReservationGuard {
	return &ReservationGuard{reservations: reservations}
}

// IsHeld reports whether the entry's hold is backed by an active reservation
// covering its file. A failed lookup reports held together with the error.
func (g *ReservationGuard) IsHeld(ctx context.Context, e *catalog.Entry) (bool, error) {
	if !domain.HasActiveHold(e) {
		return false, nil
	}
	held, err := g.reservations.IsActiveHold(ctx, *e.ActiveHoldID, e.FileName)
	if err != nil {
		return true, fmt.Errorf("check hold %s: %w", *e.ActiveHoldID, err)
	}
	return held, nil
}
