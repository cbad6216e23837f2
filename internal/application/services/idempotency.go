package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

const (
	defaultLockWait     = 5 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// Operation is the work run exactly once per idempotency key. It returns
// the created resource id and the response to freeze for replays.
type Operation func(ctx context.Context) (resourceID string, response any, err error)

// IdempotencyRunner serializes operations per caller-supplied key.
// A repeated key returns the frozen result without re-running the
// operation; a concurrent holder makes the second caller wait up to the
// lock bound, then fail with a retryable CONCURRENCY error.
type IdempotencyRunner struct {
	repo         application.IdempotencyRepository
	logger       *slog.Logger
	lockWait     time.Duration
	pollInterval time.Duration
	now          clock
}

func NewIdempotencyRunner(repo application.IdempotencyRepository, logger *slog.Logger) *IdempotencyRunner {
	return &IdempotencyRunner{
		repo:         repo,
		logger:       logger,
		lockWait:     defaultLockWait,
		pollInterval: defaultPollInterval,
		now:          systemClock,
	}
}

// Do executes op at most once for key and returns the frozen response
// bytes. Replays with a different request hash fail with KEY_REUSE.
func (r *IdempotencyRunner) Do(ctx context.Context, key, requestHash string, op Operation) ([]byte, error) {
	if key == "" {
		return nil, domain.NewValidationError("idempotency key is required")
	}

	record, err := r.repo.FindByKey(ctx, key)
	if err != nil && !errors.Is(err, application.ErrRecordNotFound) {
		return nil, domain.NewInternalError(err)
	}
	if record != nil {
		if record.IsExpired(r.now()) {
			// key lifetime lapsed, the key may serve a new operation
			if err := r.repo.Delete(ctx, key); err != nil {
				return nil, domain.NewInternalError(err)
			}
		} else {
			return r.replay(ctx, key, requestHash, record)
		}
	}

	acquired, err := r.acquire(ctx, key, requestHash)
	if err != nil {
		return nil, err
	}
	if !acquired {
		// lost the insert race; the winner's outcome is authoritative
		record, err := r.repo.FindByKey(ctx, key)
		if err != nil {
			return nil, domain.NewInternalError(err)
		}
		return r.replay(ctx, key, requestHash, record)
	}

	return r.run(ctx, key, op)
}

func (r *IdempotencyRunner) acquire(ctx context.Context, key, requestHash string) (bool, error) {
	now := r.now()
	record := &domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyInFlight,
		LockedAt:    &now,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.IdempotencyRecordTTL),
	}
	err := r.repo.Insert(ctx, record)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, application.ErrKeyExists) {
		return false, nil
	}
	return false, domain.NewInternalError(err)
}

// run executes the operation while the key is held and freezes the
// outcome. The lock releases on every exit path: completion and
// terminal failure freeze the record, a transient failure deletes it so
// a replay with the same key can re-attempt.
func (r *IdempotencyRunner) run(ctx context.Context, key string, op Operation) ([]byte, error) {
	// The key is held from here on: the operation must reach a frozen
	// outcome even if the caller disconnects, so the body and every
	// outcome write run detached from the caller's cancellation. A
	// caller timeout mid-operation must not strand the key in flight or
	// leave side effects (a consumed token, a bank hold) unrecorded.
	opCtx := context.WithoutCancel(ctx)

	resourceID, response, opErr := op(opCtx)
	if opErr != nil {
		if application.IsRetryable(opErr) {
			if err := r.repo.Delete(opCtx, key); err != nil {
				r.logger.Error("failed to release idempotency key",
					"key", key, "error", err)
			}
			return nil, opErr
		}

		code := application.ToErrorCode(opErr)
		if err := r.repo.Fail(opCtx, key, code, opErr.Error()); err != nil {
			r.logger.Error("failed to store idempotency failure",
				"key", key, "error", err)
		}
		return nil, opErr
	}

	body, err := json.Marshal(response)
	if err != nil {
		if delErr := r.repo.Delete(opCtx, key); delErr != nil {
			r.logger.Error("failed to release idempotency key",
				"key", key, "error", delErr)
		}
		return nil, domain.NewInternalError(fmt.Errorf("marshal response: %w", err))
	}

	if err := r.repo.Complete(opCtx, key, resourceID, body); err != nil {
		return nil, domain.NewInternalError(err)
	}
	return body, nil
}

// replay resolves an existing record: frozen results return as-is,
// in-flight operations are waited on up to the lock bound.
func (r *IdempotencyRunner) replay(ctx context.Context, key, requestHash string, record *domain.IdempotencyRecord) ([]byte, error) {
	if record.RequestHash != requestHash {
		return nil, domain.NewKeyReuseError(key)
	}

	switch record.Status {
	case domain.IdempotencyCompleted:
		return record.ResponseBody, nil
	case domain.IdempotencyFailed:
		return nil, storedFailure(record)
	}

	return r.waitForCompletion(ctx, key, requestHash)
}

func (r *IdempotencyRunner) waitForCompletion(ctx context.Context, key, requestHash string) ([]byte, error) {
	deadline := r.now().Add(r.lockWait)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for r.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		record, err := r.repo.FindByKey(ctx, key)
		if err != nil {
			if errors.Is(err, application.ErrRecordNotFound) {
				// the holder released without a definitive outcome;
				// tell the caller to retry with the same key
				return nil, domain.NewConcurrencyError(key)
			}
			return nil, domain.NewInternalError(err)
		}

		switch record.Status {
		case domain.IdempotencyCompleted:
			if record.RequestHash != requestHash {
				return nil, domain.NewKeyReuseError(key)
			}
			return record.ResponseBody, nil
		case domain.IdempotencyFailed:
			return nil, storedFailure(record)
		}
	}

	return nil, domain.NewConcurrencyError(key)
}

func storedFailure(record *domain.IdempotencyRecord) error {
	code := domain.ErrCodeInternal
	message := "operation previously failed"
	if record.ErrorCode != nil {
		code = *record.ErrorCode
	}
	if record.ErrorMessage != nil {
		message = *record.ErrorMessage
	}
	return domain.ErrorByCode(code, message)
}
