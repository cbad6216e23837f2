package services

import (
	"context"
	"errors"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

// Capture settles part or all of an authorized hold. Concurrent
// captures on one authorization serialize on the per-authorization
// lock, so the sum of captures can never exceed the authorized amount.
func (s *ChargeService) Capture(ctx context.Context, idempotencyKey string, cmd CaptureCommand) (*ChargeResponse, error) {
	hash := ComputeRequestHash(cmd)

	body, err := s.runner.Do(ctx, idempotencyKey, hash, func(ctx context.Context) (string, any, error) {
		release := s.locks.Acquire(cmd.AuthorizationID)
		defer release()

		auth, err := s.findAuthorization(ctx, cmd.AuthorizationID)
		if err != nil {
			return "", nil, err
		}

		amount := cmd.Amount
		if amount == 0 {
			amount = auth.RemainingCapturable()
		}
		if err := auth.Capture(amount, s.now()); err != nil {
			return "", nil, err
		}

		if err := s.auths.Update(ctx, auth); err != nil {
			if errors.Is(err, application.ErrConflict) {
				return "", nil, domain.NewConcurrencyError(idempotencyKey)
			}
			return "", nil, domain.NewInternalError(err)
		}

		s.logger.Info("authorization captured",
			"authorization_id", auth.ID, "amount", amount, "captured_total", auth.CapturedCents)
		s.emitter.Emit(ctx, domain.EventChargeCaptured, NewChargeResponse(auth))
		return auth.ID, NewChargeResponse(auth), nil
	})
	if err != nil {
		return nil, err
	}
	return unmarshalCharge(body)
}
