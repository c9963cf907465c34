package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment"
	"github.com/fekuna/omnipos-fulfillment-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
)

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type OrderListener struct {
	consumer MessageReader
	uc       fulfillment.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewOrderListener(consumer MessageReader, uc fulfillment.UseCase, logger logger.ZapLogger) *OrderListener {
	return &OrderListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("Starting Order Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Order Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(l.backoff)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type OrderEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type OrderCancelledPayload struct {
	ID string `json:"id"`
}

func (l *OrderListener) processMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case EventOrderCreated:
		var order dto.Order
		if err := json.Unmarshal(event.Payload, &order); err != nil {
			l.logger.Error("Failed to unmarshal order", zap.String("event_id", event.EventID), zap.Error(err))
			return
		}
		l.logger.Info("Processing OrderCreated event", zap.String("order_id", order.ID))

		out, err := l.uc.Dispatch(ctx, &order)
		switch {
		case errors.Is(err, model.ErrAlreadyDispatched):
			// Redelivery.
			l.logger.Info("Order already dispatched", zap.String("order_id", order.ID))
		case err != nil:
			l.logger.Error("Failed to dispatch order", zap.String("order_id", order.ID), zap.Error(err))
		default:
			l.logger.Info("Order dispatched",
				zap.String("order_id", order.ID),
				zap.String("status", string(out.Status)),
			)
		}

	case EventOrderCancelled:
		var payload OrderCancelledPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.ID == "" {
			l.logger.Error("Failed to unmarshal cancelled order", zap.String("event_id", event.EventID), zap.Error(err))
			return
		}
		l.logger.Info("Processing OrderCancelled event", zap.String("order_id", payload.ID))

		if _, err := l.uc.Cancel(ctx, payload.ID); err != nil {
			l.logger.Error("Failed to cancel order fulfillment", zap.String("order_id", payload.ID), zap.Error(err))
		}
	}
}
