// Package worker holds the periodic maintenance loops: hold expiration,
// one-time token sweeping and idempotency record purging.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/application/services"
	"github.com/clearroute/payment-core/internal/domain"
)

const defaultBatchSize = 100

// ExpirationWorker transitions uncaptured holds past their window to
// expired and emits the matching events. Nothing else ever moves an
// authorization to expired; reads do not mutate state.
type ExpirationWorker struct {
	auths     application.AuthorizationRepository
	emitter   *services.EventEmitter
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewExpirationWorker(auths application.AuthorizationRepository, emitter *services.EventEmitter, logger *slog.Logger, interval time.Duration) *ExpirationWorker {
	return &ExpirationWorker{
		auths:     auths,
		emitter:   emitter,
		logger:    logger,
		interval:  interval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *ExpirationWorker) Run(ctx context.Context) {
	w.logger.Info("expiration worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiration worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep expires one batch of lapsed holds.
func (w *ExpirationWorker) Sweep(ctx context.Context) {
	now := w.now()
	expired, err := w.auths.FindExpiredHolds(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error("failed to scan expired holds", "error", err)
		return
	}

	for _, auth := range expired {
		if err := auth.MarkExpired(); err != nil {
			w.logger.Warn("hold no longer expirable",
				"authorization_id", auth.ID, "status", auth.Status, "error", err)
			continue
		}
		if err := w.auths.Update(ctx, auth); err != nil {
			if errors.Is(err, application.ErrConflict) {
				// a capture or void won the race; leave it alone
				continue
			}
			w.logger.Error("failed to expire authorization",
				"authorization_id", auth.ID, "error", err)
			continue
		}
		w.logger.Info("authorization expired",
			"authorization_id", auth.ID, "amount", auth.AmountCents)
		w.emitter.Emit(ctx, domain.EventChargeExpired, services.NewChargeResponse(auth))
	}
}
