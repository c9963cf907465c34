package dto

import (
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

const (
	EventFulfillmentDispatched = "FulfillmentDispatched"
	EventFulfillmentCancelled  = "FulfillmentCancelled"
)

// FulfillmentEvent is published to the fulfillment topic keyed by order id.
type FulfillmentEvent struct {
	EventID   string                    `json:"event_id"`
	EventType string                    `json:"event_type"`
	Payload   *model.FulfillmentOutcome `json:"payload"`
	Timestamp time.Time                 `json:"timestamp"`
}
