// Package domain encodes the charge-processing entities and their invariants.
package domain

import (
	"slices"
	"time"
)

// AuthorizationStatus represents the current state of an authorization
// in its lifecycle
type AuthorizationStatus string

const (
	StatusPending    AuthorizationStatus = "PENDING"
	StatusAuthorized AuthorizationStatus = "AUTHORIZED"
	StatusCaptured   AuthorizationStatus = "CAPTURED"
	StatusVoided     AuthorizationStatus = "VOIDED"
	StatusFailed     AuthorizationStatus = "FAILED"
	StatusExpired    AuthorizationStatus = "EXPIRED"
)

// AuthHoldWindow is how long an uncaptured authorization holds funds.
const AuthHoldWindow = 7 * 24 * time.Hour

// Authorization is a hold on funds driven through
// pending -> authorized -> captured, with side exits to voided, failed
// and expired. Refunds are tracked as a running total, not a state.
type Authorization struct {
	ID             string
	TokenID        string
	AmountCents    int64
	Currency       string
	Status         AuthorizationStatus
	IdempotencyKey string

	AuthCode      *string
	DeclineCode   *string
	CapturedCents int64
	RefundedCents int64

	// CardRefCipher holds the vault-internal encrypted card reference
	// only while a bank decision is in flight, so a replay after an
	// ambiguous failure can re-attempt the decision. Cleared the moment
	// the authorization reaches a definitive state. Never exposed.
	CardRefCipher *string

	CreatedAt    time.Time
	AuthorizedAt *time.Time
	CapturedAt   *time.Time
	VoidedAt     *time.Time
	ExpiresAt    *time.Time

	// Version backs compare-and-set updates in the repositories.
	Version int64
}

func NewAuthorization(id, tokenID string, amount Money, idempotencyKey string, now time.Time) (*Authorization, error) {
	if id == "" {
		return nil, NewValidationError("authorization ID is required")
	}
	if tokenID == "" {
		return nil, NewValidationError("token ID is required")
	}
	return &Authorization{
		ID:             id,
		TokenID:        tokenID,
		AmountCents:    amount.Amount,
		Currency:       amount.Currency,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		Version:        1,
	}, nil
}

func (a *Authorization) transition(target AuthorizationStatus) error {
	if err := a.canTransitionTo(target); err != nil {
		return err
	}
	a.Status = target
	return nil
}

// status transitions are monotonic; anything not listed here is rejected
func (a *Authorization) canTransitionTo(target AuthorizationStatus) error {
	switch a.Status {
	case StatusPending:
		return a.allow(target, StatusAuthorized, StatusFailed)
	case StatusAuthorized:
		return a.allow(target, StatusCaptured, StatusVoided, StatusExpired)
	case StatusCaptured:
		// captured is terminal; refunds adjust RefundedCents only
	}
	return NewInvalidTransitionError(a.Status, target)
}

func (a *Authorization) allow(target AuthorizationStatus, allowed ...AuthorizationStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(a.Status, target)
}

// Authorize records the bank approval and opens the hold window.
func (a *Authorization) Authorize(authCode string, now time.Time) error {
	if err := a.transition(StatusAuthorized); err != nil {
		return err
	}
	expires := now.Add(AuthHoldWindow)
	a.AuthCode = &authCode
	a.AuthorizedAt = &now
	a.ExpiresAt = &expires
	a.CardRefCipher = nil
	return nil
}

// Decline records a bank decline. The decline code is internal; callers
// see the generic declined message.
func (a *Authorization) Decline(declineCode string) error {
	if err := a.transition(StatusFailed); err != nil {
		return err
	}
	a.DeclineCode = &declineCode
	a.CardRefCipher = nil
	return nil
}

// RemainingCapturable is the authorized amount not yet captured.
func (a *Authorization) RemainingCapturable() int64 {
	return a.AmountCents - a.CapturedCents
}

// RemainingRefundable is the captured amount not yet refunded.
func (a *Authorization) RemainingRefundable() int64 {
	return a.CapturedCents - a.RefundedCents
}

// Capture applies a partial or full capture. The sum of captures can
// never exceed the authorized amount, and a hold past its expiry can
// no longer be captured.
func (a *Authorization) Capture(amount int64, now time.Time) error {
	if a.Status != StatusAuthorized && a.Status != StatusCaptured {
		return NewInvalidStateError(string(a.Status), string(StatusAuthorized))
	}
	if a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
		return NewAuthorizationExpiredError(a.ID)
	}
	if amount <= 0 {
		return NewValidationError("capture amount must be greater than zero")
	}
	if amount > a.RemainingCapturable() {
		return NewInvalidCaptureAmountError(amount, a.RemainingCapturable())
	}
	if a.Status == StatusAuthorized {
		if err := a.transition(StatusCaptured); err != nil {
			return err
		}
	}
	a.CapturedCents += amount
	a.CapturedAt = &now
	return nil
}

// Void releases an uncaptured hold.
func (a *Authorization) Void(now time.Time) error {
	if a.Status != StatusAuthorized {
		return NewInvalidStateError(string(a.Status), string(StatusAuthorized))
	}
	if a.CapturedCents > 0 {
		return NewInvalidStateError("partially captured", "uncaptured")
	}
	if err := a.transition(StatusVoided); err != nil {
		return err
	}
	a.VoidedAt = &now
	return nil
}

// Refund adds to the refunded total. Status stays captured; an
// authorization can be partially refunded multiple times.
func (a *Authorization) Refund(amount int64) error {
	if a.Status != StatusCaptured {
		return NewInvalidStateError(string(a.Status), string(StatusCaptured))
	}
	if amount <= 0 {
		return NewValidationError("refund amount must be greater than zero")
	}
	if amount > a.RemainingRefundable() {
		return NewInvalidRefundAmountError(amount, a.RemainingRefundable())
	}
	a.RefundedCents += amount
	return nil
}

// MarkExpired transitions an uncaptured hold past its window to expired.
func (a *Authorization) MarkExpired() error {
	if a.CapturedCents > 0 {
		return NewInvalidStateError("partially captured", "uncaptured")
	}
	return a.transition(StatusExpired)
}

// IsHoldExpired reports whether the hold window has lapsed without capture.
func (a *Authorization) IsHoldExpired(now time.Time) bool {
	return a.Status == StatusAuthorized &&
		a.CapturedCents == 0 &&
		a.ExpiresAt != nil &&
		now.After(*a.ExpiresAt)
}

func (a *Authorization) IsTerminal() bool {
	switch a.Status {
	case StatusVoided, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}
