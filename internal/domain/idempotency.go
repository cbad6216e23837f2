package domain

import (
	"fmt"
	"time"
)

// IdempotencyRecordTTL is how long a key maps to its frozen result.
const IdempotencyRecordTTL = 24 * time.Hour

// IdempotencyStatus is where a keyed operation is in its life.
type IdempotencyStatus string

const (
	IdempotencyInFlight  IdempotencyStatus = "IN_FLIGHT"
	IdempotencyCompleted IdempotencyStatus = "COMPLETED"
	IdempotencyFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyRecord maps a caller-supplied key to exactly one frozen
// result for its lifetime. The request hash detects key reuse with
// different parameters.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	ResourceID   string
	ResponseBody []byte
	ErrorCode    *string
	ErrorMessage *string
	LockedAt     *time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Key builder helpers document the caller contract: keys must be
// deterministic per logical operation, scoped by business identifiers,
// never by nonces or timestamps.

// ChargeKey builds the idempotency key for authorizing an order.
func ChargeKey(orderID string) string {
	return fmt.Sprintf("charge:%s", orderID)
}

// CaptureKey builds the key for the nth capture of an authorization.
func CaptureKey(authorizationID string, seq int) string {
	return fmt.Sprintf("capture:%s:%d", authorizationID, seq)
}

// RefundKey builds the key for refunding a specific amount.
func RefundKey(authorizationID string, amountCents int64) string {
	return fmt.Sprintf("refund:%s:%d", authorizationID, amountCents)
}
