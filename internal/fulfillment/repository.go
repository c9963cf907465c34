package fulfillment

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// Repository stores one outcome per order.
type Repository interface {
	// Create returns ErrAlreadyDispatched when the order already has an outcome.
	Create(ctx context.Context, outcome *model.FulfillmentOutcome) error
	FindByOrderID(ctx context.Context, orderID string) (*model.FulfillmentOutcome, error)
	// Update lands only on the version that was read and bumps it;
	// otherwise it returns ErrInvalidTransition.
	Update(ctx context.Context, outcome *model.FulfillmentOutcome) error
	Delete(ctx context.Context, orderID string) error
}
