package services

import (
	"context"
	"errors"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

// Refund returns captured funds. Refunds accumulate against the
// captured total without changing the authorization's status, so a
// charge can be partially refunded any number of times up to the
// captured amount.
func (s *ChargeService) Refund(ctx context.Context, idempotencyKey string, cmd RefundCommand) (*RefundResponse, error) {
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
			amount = auth.RemainingRefundable()
		}
		if err := auth.Refund(amount); err != nil {
			return "", nil, err
		}

		refund := domain.NewRefund(
			domain.NewID(domain.RefundIDPrefix, domain.OpaqueIDLength),
			auth.ID, amount, auth.Currency, idempotencyKey, s.now(),
		)

		if err := s.auths.Update(ctx, auth); err != nil {
			if errors.Is(err, application.ErrConflict) {
				return "", nil, domain.NewConcurrencyError(idempotencyKey)
			}
			return "", nil, domain.NewInternalError(err)
		}
		if err := s.refunds.Create(ctx, refund); err != nil {
			return "", nil, domain.NewInternalError(err)
		}

		s.logger.Info("refund created",
			"refund_id", refund.ID, "authorization_id", auth.ID,
			"amount", amount, "refunded_total", auth.RefundedCents)
		s.emitter.Emit(ctx, domain.EventRefundCreated, NewRefundResponse(refund))
		return refund.ID, NewRefundResponse(refund), nil
	})
	if err != nil {
		return nil, err
	}
	return unmarshalRefund(body)
}
