package services

import (
	"context"

	"github.com/clearroute/payment-core/internal/domain"
)

// GetCharge returns the current state of an authorization.
func (s *ChargeService) GetCharge(ctx context.Context, id string) (*ChargeResponse, error) {
	auth, err := s.findAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewChargeResponse(auth), nil
}

// ListRefunds returns every refund recorded against an authorization.
func (s *ChargeService) ListRefunds(ctx context.Context, authorizationID string) ([]*RefundResponse, error) {
	if _, err := s.findAuthorization(ctx, authorizationID); err != nil {
		return nil, err
	}
	refunds, err := s.refunds.ListByAuthorization(ctx, authorizationID)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	out := make([]*RefundResponse, 0, len(refunds))
	for _, r := range refunds {
		out = append(out, NewRefundResponse(r))
	}
	return out, nil
}
