package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/clearroute/payment-core/internal/application"
)

// TokenSweeper deletes expired one-time tokens. Reusable tokens are
// untouched; revoked tokens stay for audit.
type TokenSweeper struct {
	tokens   application.TokenRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewTokenSweeper(tokens application.TokenRepository, logger *slog.Logger, interval time.Duration) *TokenSweeper {
	return &TokenSweeper{
		tokens:   tokens,
		logger:   logger,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *TokenSweeper) Run(ctx context.Context) {
	w.logger.Info("token sweeper started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *TokenSweeper) Sweep(ctx context.Context) {
	deleted, err := w.tokens.DeleteExpiredOneTime(ctx, w.now())
	if err != nil {
		w.logger.Error("failed to sweep expired tokens", "error", err)
		return
	}
	if deleted > 0 {
		w.logger.Info("expired tokens swept", "count", deleted)
	}
}

// IdempotencyPurger removes idempotency records past their lifetime so
// keys become reusable and the store stays bounded.
type IdempotencyPurger struct {
	records  application.IdempotencyRepository
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewIdempotencyPurger(records application.IdempotencyRepository, logger *slog.Logger, interval time.Duration) *IdempotencyPurger {
	return &IdempotencyPurger{
		records:  records,
		logger:   logger,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *IdempotencyPurger) Run(ctx context.Context) {
	w.logger.Info("idempotency purger started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("idempotency purger stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *IdempotencyPurger) Sweep(ctx context.Context) {
	purged, err := w.records.DeleteExpired(ctx, w.now())
	if err != nil {
		w.logger.Error("failed to purge idempotency records", "error", err)
		return
	}
	if purged > 0 {
		w.logger.Info("idempotency records purged", "count", purged)
	}
}
