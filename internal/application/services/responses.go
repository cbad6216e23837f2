package services

import (
	"time"

	"github.com/clearroute/payment-core/internal/domain"
)

// ChargeResponse is the caller-facing projection of an authorization.
// It carries only safe fields; the frozen idempotent response bytes are
// a marshal of this shape, so replays are byte-identical.
type ChargeResponse struct {
	ID             string     `json:"id"`
	Object         string     `json:"object"`
	TokenID        string     `json:"token_id"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	AuthCode       *string    `json:"auth_code,omitempty"`
	CapturedAmount int64      `json:"captured_amount"`
	RefundedAmount int64      `json:"refunded_amount"`
	CreatedAt      time.Time  `json:"created_at"`
	AuthorizedAt   *time.Time `json:"authorized_at,omitempty"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
	VoidedAt       *time.Time `json:"voided_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func NewChargeResponse(auth *domain.Authorization) *ChargeResponse {
	return &ChargeResponse{
		ID:             auth.ID,
		Object:         "charge",
		TokenID:        auth.TokenID,
		Amount:         auth.AmountCents,
		Currency:       auth.Currency,
		Status:         string(auth.Status),
		AuthCode:       auth.AuthCode,
		CapturedAmount: auth.CapturedCents,
		RefundedAmount: auth.RefundedCents,
		CreatedAt:      auth.CreatedAt,
		AuthorizedAt:   auth.AuthorizedAt,
		CapturedAt:     auth.CapturedAt,
		VoidedAt:       auth.VoidedAt,
		ExpiresAt:      auth.ExpiresAt,
	}
}

// RefundResponse is the caller-facing projection of a refund record.
type RefundResponse struct {
	ID              string    `json:"id"`
	Object          string    `json:"object"`
	AuthorizationID string    `json:"authorization_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewRefundResponse(refund *domain.Refund) *RefundResponse {
	return &RefundResponse{
		ID:              refund.ID,
		Object:          "refund",
		AuthorizationID: refund.AuthorizationID,
		Amount:          refund.AmountCents,
		Currency:        refund.Currency,
		CreatedAt:       refund.CreatedAt,
	}
}

// TokenResponse is the caller-facing projection of a vault token.
type TokenResponse struct {
	ID          string     `json:"id"`
	Object      string     `json:"object"`
	LastFour    string     `json:"last_four"`
	Brand       string     `json:"brand"`
	ExpMonth    int        `json:"exp_month"`
	ExpYear     int        `json:"exp_year"`
	Fingerprint string     `json:"fingerprint"`
	Kind        string     `json:"kind"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func NewTokenResponse(token *domain.Token) *TokenResponse {
	return &TokenResponse{
		ID:          token.ID,
		Object:      "token",
		LastFour:    token.LastFour,
		Brand:       string(token.Brand),
		ExpMonth:    token.ExpMonth,
		ExpYear:     token.ExpYear,
		Fingerprint: token.Fingerprint,
		Kind:        string(token.Kind),
		CreatedAt:   token.CreatedAt,
		ExpiresAt:   token.ExpiresAt,
	}
}
