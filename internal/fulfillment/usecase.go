package fulfillment

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type UseCase interface {
	// Dispatch routes every order line to warehouse picking or a retailer
	// sweep. Line failures are recorded on the outcome, never returned.
	Dispatch(ctx context.Context, order *dto.Order) (*model.FulfillmentOutcome, error)
	Cancel(ctx context.Context, orderID string) (*model.FulfillmentOutcome, error)
	Get(ctx context.Context, orderID string) (*model.FulfillmentOutcome, error)
}

// Publisher emits outcome events. *broker.KafkaProducer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}
