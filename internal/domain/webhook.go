package domain

import "time"

// EventType is the closed set of webhook event kinds.
type EventType string

const (
	EventChargeAuthorized EventType = "charge.authorized"
	EventChargeCaptured   EventType = "charge.captured"
	EventChargeFailed     EventType = "charge.failed"
	EventChargeExpired    EventType = "charge.expired"
	EventRefundCreated    EventType = "refund.created"
	EventDisputeCreated   EventType = "dispute.created"
)

// DeliveryStatus tracks a webhook event through its delivery lifecycle.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// WebhookRetrySchedule is the fixed backoff between delivery attempts:
// immediate, then 5m, 30m, 2h, 24h. Five attempts total.
var WebhookRetrySchedule = []time.Duration{
	0,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	24 * time.Hour,
}

// WebhookEndpoint is a registered merchant destination with its signing
// secret and event-type subscriptions ("*" subscribes to everything).
type WebhookEndpoint struct {
	ID         string
	MerchantID string
	URL        string
	Secret     string
	Events     []string
	Enabled    bool
	CreatedAt  time.Time
}

// ShouldReceive checks if this endpoint subscribes to an event type.
func (e *WebhookEndpoint) ShouldReceive(eventType EventType) bool {
	if !e.Enabled {
		return false
	}
	for _, ev := range e.Events {
		if ev == "*" || ev == string(eventType) {
			return true
		}
	}
	return false
}

// WebhookEvent is the durable record a dispatcher worker delivers.
// Receivers must deduplicate by ID; delivery is at-least-once and
// carries no cross-event ordering guarantee.
type WebhookEvent struct {
	ID            string
	EndpointID    string
	Type          EventType
	Payload       []byte
	Status        DeliveryStatus
	AttemptCount  int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	DeliveredAt   *time.Time
	Version       int64
}

// DeliveryAttempt records one delivery try for an event.
type DeliveryAttempt struct {
	ID            string
	EventID       string
	AttemptNumber int
	HTTPStatus    *int
	ErrorMessage  *string
	AttemptedAt   time.Time
}

func NewWebhookEvent(id, endpointID string, eventType EventType, payload []byte, now time.Time) *WebhookEvent {
	next := now
	return &WebhookEvent{
		ID:            id,
		EndpointID:    endpointID,
		Type:          eventType,
		Payload:       payload,
		Status:        DeliveryPending,
		NextAttemptAt: &next,
		CreatedAt:     now,
		Version:       1,
	}
}

// RecordSuccess marks the event delivered after a successful attempt.
func (e *WebhookEvent) RecordSuccess(now time.Time) {
	e.AttemptCount++
	e.Status = DeliveryDelivered
	e.DeliveredAt = &now
	e.NextAttemptAt = nil
}

// RecordFailure schedules the next attempt per the retry schedule, or
// exhausts the event once all attempts are spent.
func (e *WebhookEvent) RecordFailure(now time.Time) {
	e.AttemptCount++
	if e.AttemptCount >= len(WebhookRetrySchedule) {
		e.Status = DeliveryExhausted
		e.NextAttemptAt = nil
		return
	}
	next := now.Add(WebhookRetrySchedule[e.AttemptCount])
	e.NextAttemptAt = &next
}
