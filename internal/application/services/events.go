package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

// eventEnvelope is the wire shape of a webhook payload.
type eventEnvelope struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Type    string       `json:"type"`
	Created int64        `json:"created"`
	Data    envelopeData `json:"data"`
}

type envelopeData struct {
	Object any `json:"object"`
}

// EventEmitter fans a domain event out to every enabled endpoint
// subscribed to its type. Emission is fire-and-forget from the caller's
// perspective: enqueue failures are logged, never propagated, so a
// webhook outage can't fail a payment operation.
type EventEmitter struct {
	webhooks application.WebhookRepository
	logger   *slog.Logger
	now      clock
}

func NewEventEmitter(webhooks application.WebhookRepository, logger *slog.Logger) *EventEmitter {
	return &EventEmitter{
		webhooks: webhooks,
		logger:   logger,
		now:      systemClock,
	}
}

// Emit enqueues one durable event per subscribed endpoint. The payload
// snapshot is taken at emission time; later mutations of the resource do
// not alter already-enqueued events.
func (e *EventEmitter) Emit(ctx context.Context, eventType domain.EventType, resource any) {
	endpoints, err := e.webhooks.ListEnabledEndpoints(ctx)
	if err != nil {
		e.logger.Error("failed to list webhook endpoints",
			"event_type", eventType, "error", err)
		return
	}

	now := e.now()
	for _, endpoint := range endpoints {
		if !endpoint.ShouldReceive(eventType) {
			continue
		}

		eventID := domain.NewID(domain.EventIDPrefix, domain.OpaqueIDLength)
		payload, err := json.Marshal(eventEnvelope{
			ID:      eventID,
			Object:  "event",
			Type:    string(eventType),
			Created: now.Unix(),
			Data:    envelopeData{Object: resource},
		})
		if err != nil {
			e.logger.Error("failed to marshal webhook payload",
				"event_type", eventType, "endpoint_id", endpoint.ID, "error", err)
			continue
		}

		event := domain.NewWebhookEvent(eventID, endpoint.ID, eventType, payload, now)
		if err := e.webhooks.Enqueue(ctx, event); err != nil {
			e.logger.Error("failed to enqueue webhook event",
				"event_id", eventID, "endpoint_id", endpoint.ID, "error", err)
			continue
		}

		e.logger.Debug("webhook event enqueued",
			"event_id", eventID, "event_type", eventType, "endpoint_id", endpoint.ID)
	}
}
