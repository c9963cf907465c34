package repository

import (
	"fmt"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// The quantity rules below are shared by the postgres and memory stores so
// both enforce 0 <= reserved <= quantity the same way.

// ReleaseUnits lowers the reservation by qty, floored at zero.
func ReleaseUnits(lot *model.InventoryLot, qty int) {
	lot.ReservedQuantity -= qty
	if lot.ReservedQuantity < 0 {
		lot.ReservedQuantity = 0
	}
}

// CommitUnits removes qty reserved units from the lot.
func CommitUnits(lot *model.InventoryLot, qty int) error {
	if lot.ReservedQuantity < qty {
		return fmt.Errorf("%w: lot %s has %d reserved, cannot commit %d",
			model.ErrValidation, lot.ID, lot.ReservedQuantity, qty)
	}
	lot.Quantity -= qty
	lot.ReservedQuantity -= qty
	return nil
}

// AdjustUnits sets the counted quantity. It never drops below what is reserved.
func AdjustUnits(lot *model.InventoryLot, newQuantity int) error {
	if newQuantity < lot.ReservedQuantity {
		return fmt.Errorf("%w: lot %s has %d reserved, cannot set quantity to %d",
			model.ErrValidation, lot.ID, lot.ReservedQuantity, newQuantity)
	}
	lot.Quantity = newQuantity
	return nil
}
