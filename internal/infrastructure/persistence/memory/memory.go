// Package memory provides in-memory implementations of the storage
// ports. They back the service test suites and the no-database demo
// mode, and honor the same compare-and-set semantics as the postgres
// repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*domain.Token
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]*domain.Token)}
}

func (r *TokenRepository) Create(ctx context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *TokenRepository) FindByID(ctx context.Context, id string) (*domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, application.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TokenRepository) MarkUsed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return application.ErrRecordNotFound
	}
	if t.Used {
		return application.ErrConflict
	}
	t.Used = true
	return nil
}

func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return application.ErrRecordNotFound
	}
	t.Revoked = true
	return nil
}

func (r *TokenRepository) DeleteExpiredOneTime(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int
	for id, t := range r.tokens {
		if t.Kind == domain.TokenOneTime && t.IsExpired(now) {
			delete(r.tokens, id)
			removed++
		}
	}
	return removed, nil
}

type AuthorizationRepository struct {
	mu    sync.RWMutex
	auths map[string]*domain.Authorization
}

func NewAuthorizationRepository() *AuthorizationRepository {
	return &AuthorizationRepository{auths: make(map[string]*domain.Authorization)}
}

func (r *AuthorizationRepository) Create(ctx context.Context, auth *domain.Authorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *auth
	r.auths[auth.ID] = &cp
	return nil
}

func (r *AuthorizationRepository) FindByID(ctx context.Context, id string) (*domain.Authorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.auths[id]
	if !ok {
		return nil, application.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AuthorizationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Authorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.auths {
		if a.IdempotencyKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, application.ErrRecordNotFound
}

func (r *AuthorizationRepository) Update(ctx context.Context, auth *domain.Authorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.auths[auth.ID]
	if !ok {
		return application.ErrRecordNotFound
	}
	if stored.Version != auth.Version {
		return application.ErrConflict
	}
	cp := *auth
	cp.Version++
	r.auths[auth.ID] = &cp
	auth.Version = cp.Version
	return nil
}

func (r *AuthorizationRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Authorization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Authorization
	for _, a := range r.auths {
		if a.IsHoldExpired(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type RefundRepository struct {
	mu      sync.RWMutex
	refunds []*domain.Refund
}

func NewRefundRepository() *RefundRepository {
	return &RefundRepository{}
}

func (r *RefundRepository) Create(ctx context.Context, refund *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *refund
	r.refunds = append(r.refunds, &cp)
	return nil
}

func (r *RefundRepository) ListByAuthorization(ctx context.Context, authorizationID string) ([]*domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Refund
	for _, ref := range r.refunds {
		if ref.AuthorizationID == authorizationID {
			cp := *ref
			out = append(out, &cp)
		}
	}
	return out, nil
}

type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *IdempotencyRepository) Insert(ctx context.Context, record *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.Key]; exists {
		return application.ErrKeyExists
	}
	cp := *record
	r.records[record.Key] = &cp
	return nil
}

func (r *IdempotencyRepository) FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, application.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key, resourceID string, responseBody []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return application.ErrRecordNotFound
	}
	rec.Status = domain.IdempotencyCompleted
	rec.ResourceID = resourceID
	rec.ResponseBody = responseBody
	rec.LockedAt = nil
	return nil
}

func (r *IdempotencyRepository) Fail(ctx context.Context, key, errorCode, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return application.ErrRecordNotFound
	}
	rec.Status = domain.IdempotencyFailed
	rec.ErrorCode = &errorCode
	rec.ErrorMessage = &errorMessage
	rec.LockedAt = nil
	return nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int
	for key, rec := range r.records {
		if rec.IsExpired(now) {
			delete(r.records, key)
			removed++
		}
	}
	return removed, nil
}

type WebhookRepository struct {
	mu        sync.RWMutex
	endpoints map[string]*domain.WebhookEndpoint
	events    map[string]*domain.WebhookEvent
	attempts  []*domain.DeliveryAttempt
}

func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{
		endpoints: make(map[string]*domain.WebhookEndpoint),
		events:    make(map[string]*domain.WebhookEvent),
	}
}

func (r *WebhookRepository) CreateEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *endpoint
	r.endpoints[endpoint.ID] = &cp
	return nil
}

func (r *WebhookRepository) FindEndpoint(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, application.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *WebhookRepository) ListEnabledEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WebhookEndpoint
	for _, e := range r.endpoints {
		if e.Enabled {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *WebhookRepository) Enqueue(ctx context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *WebhookRepository) FindEventByID(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, application.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *WebhookRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WebhookEvent
	for _, e := range r.events {
		if e.Status == domain.DeliveryPending && e.NextAttemptAt != nil && !e.NextAttemptAt.After(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *WebhookRepository) UpdateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.events[event.ID]
	if !ok {
		return application.ErrRecordNotFound
	}
	if stored.Version != event.Version {
		return application.ErrConflict
	}
	cp := *event
	cp.Version++
	r.events[event.ID] = &cp
	event.Version = cp.Version
	return nil
}

func (r *WebhookRepository) RecordAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *attempt
	r.attempts = append(r.attempts, &cp)
	return nil
}

func (r *WebhookRepository) ListAttempts(ctx context.Context, eventID string) ([]*domain.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.EventID == eventID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

// Interface guards
var (
	_ application.TokenRepository         = (*TokenRepository)(nil)
	_ application.AuthorizationRepository = (*AuthorizationRepository)(nil)
	_ application.RefundRepository        = (*RefundRepository)(nil)
	_ application.IdempotencyRepository   = (*IdempotencyRepository)(nil)
	_ application.WebhookRepository       = (*WebhookRepository)(nil)
)
