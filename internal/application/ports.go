// Package application defines the ports the services are wired through.
// Every storage dependency is an explicit interface so components hold
// injected handles, never process-wide singletons.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/clearroute/payment-core/internal/domain"
)

// ErrConflict is returned by compare-and-set repository updates when the
// record changed underneath the caller.
var ErrConflict = errors.New("conflicting concurrent update")

// ErrKeyExists is returned when inserting an idempotency record for a
// key that is already held.
var ErrKeyExists = errors.New("idempotency key already exists")

// ErrRecordNotFound is the generic repository miss.
var ErrRecordNotFound = errors.New("record not found")

type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	FindByID(ctx context.Context, id string) (*domain.Token, error)
	// MarkUsed flips the one-time used flag atomically. Returns
	// ErrConflict if the token was already consumed.
	MarkUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	// DeleteExpiredOneTime removes one-time tokens past their expiry.
	// Reusable tokens are never removed.
	DeleteExpiredOneTime(ctx context.Context, now time.Time) (int, error)
}

type AuthorizationRepository interface {
	Create(ctx context.Context, auth *domain.Authorization) error
	FindByID(ctx context.Context, id string) (*domain.Authorization, error)
	// FindByIdempotencyKey locates the authorization created under a
	// charge key, so a replay after an ambiguous bank failure resumes
	// the same record instead of creating a duplicate.
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Authorization, error)
	// Update persists the authorization if its stored version still
	// matches auth.Version, then bumps the version. Returns ErrConflict
	// when the precondition no longer holds.
	Update(ctx context.Context, auth *domain.Authorization) error
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Authorization, error)
}

type RefundRepository interface {
	Create(ctx context.Context, refund *domain.Refund) error
	ListByAuthorization(ctx context.Context, authorizationID string) ([]*domain.Refund, error)
}

type IdempotencyRepository interface {
	// Insert acquires the key. Returns ErrKeyExists if another caller
	// holds or completed it.
	Insert(ctx context.Context, record *domain.IdempotencyRecord) error
	FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	Complete(ctx context.Context, key, resourceID string, responseBody []byte) error
	Fail(ctx context.Context, key, errorCode, errorMessage string) error
	// Delete releases a key whose operation ended without a definitive
	// outcome so a replay can re-attempt it.
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type WebhookRepository interface {
	CreateEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	FindEndpoint(ctx context.Context, id string) (*domain.WebhookEndpoint, error)
	ListEnabledEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error)
	Enqueue(ctx context.Context, event *domain.WebhookEvent) error
	FindEventByID(ctx context.Context, id string) (*domain.WebhookEvent, error)
	// FindDue returns pending events whose next attempt time has passed.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.WebhookEvent, error)
	// UpdateEvent is a compare-and-set on the event version.
	UpdateEvent(ctx context.Context, event *domain.WebhookEvent) error
	RecordAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error
	ListAttempts(ctx context.Context, eventID string) ([]*domain.DeliveryAttempt, error)
}

// BankDecisionRequest carries the resolved card reference to the
// external bank decision service.
type BankDecisionRequest struct {
	CardNumber  string
	ExpMonth    int
	ExpYear     int
	AmountCents int64
	Currency    string
	MerchantID  string
}

// BankDecision is the bank's verdict. DeclineCode is internal-only and
// never surfaces verbatim to callers.
type BankDecision struct {
	Approved       bool
	AuthCode       string
	DeclineCode    string
	DeclineMessage string
}

// BankClient is the external bank decision collaborator. It may be slow
// or unavailable; unavailability is a transient failure resolved by
// idempotent replay, never retried inside the engine.
type BankClient interface {
	Decide(ctx context.Context, req BankDecisionRequest) (*BankDecision, error)
}

// MasterKeyProvider supplies wrap/unwrap for the vault's key hierarchy.
// An HSM-backed implementation would satisfy this in production; the
// vault never persists an unwrapped master key.
type MasterKeyProvider interface {
	Wrap(dataKey []byte) ([]byte, error)
	Unwrap(wrapped []byte) ([]byte, error)
}
