package domain

import "time"

// Refund records a single refund against a captured authorization.
type Refund struct {
	ID              string
	AuthorizationID string
	AmountCents     int64
	Currency        string
	IdempotencyKey  string
	CreatedAt       time.Time
}

func NewRefund(id, authorizationID string, amount int64, currency, idempotencyKey string, now time.Time) *Refund {
	return &Refund{
		ID:              id,
		AuthorizationID: authorizationID,
		AmountCents:     amount,
		Currency:        currency,
		IdempotencyKey:  idempotencyKey,
		CreatedAt:       now,
	}
}
