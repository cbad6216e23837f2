package services

import (
	"context"
	"errors"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

// Void releases an uncaptured hold. Voiding races with capture on the
// same authorization; the per-authorization lock decides the winner and
// the loser gets a clean invalid-state error.
func (s *ChargeService) Void(ctx context.Context, idempotencyKey string, cmd VoidCommand) (*ChargeResponse, error) {
	hash := ComputeRequestHash(cmd)

	body, err := s.runner.Do(ctx, idempotencyKey, hash, func(ctx context.Context) (string, any, error) {
		release := s.locks.Acquire(cmd.AuthorizationID)
		defer release()

		auth, err := s.findAuthorization(ctx, cmd.AuthorizationID)
		if err != nil {
			return "", nil, err
		}

		if err := auth.Void(s.now()); err != nil {
			return "", nil, err
		}

		if err := s.auths.Update(ctx, auth); err != nil {
			if errors.Is(err, application.ErrConflict) {
				return "", nil, domain.NewConcurrencyError(idempotencyKey)
			}
			return "", nil, domain.NewInternalError(err)
		}

		s.logger.Info("authorization voided", "authorization_id", auth.ID)
		return auth.ID, NewChargeResponse(auth), nil
	})
	if err != nil {
		return nil, err
	}
	return unmarshalCharge(body)
}
