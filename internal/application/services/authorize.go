// Package services orchestrates the charge lifecycle across the vault,
// the idempotency store, the bank client and the webhook queue.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
	"github.com/clearroute/payment-core/internal/infrastructure/bank"
	"github.com/clearroute/payment-core/internal/infrastructure/vault"
)

const defaultBankTimeout = 10 * time.Second

// ChargeService drives authorizations through their lifecycle. Every
// mutating operation runs under the idempotency runner, and capture,
// void and refund additionally serialize on a per-authorization lock.
type ChargeService struct {
	auths       application.AuthorizationRepository
	refunds     application.RefundRepository
	tokenVault  *TokenService
	bank        application.BankClient
	encryptor   *vault.Encryptor
	runner      *IdempotencyRunner
	emitter     *EventEmitter
	fraud       *FraudDetector
	locks       *lockTable
	logger      *slog.Logger
	bankTimeout time.Duration
	now         clock
}

func NewChargeService(
	auths application.AuthorizationRepository,
	refunds application.RefundRepository,
	tokenVault *TokenService,
	bank application.BankClient,
	encryptor *vault.Encryptor,
	runner *IdempotencyRunner,
	emitter *EventEmitter,
	fraud *FraudDetector,
	logger *slog.Logger,
) *ChargeService {
	return &ChargeService{
		auths:       auths,
		refunds:     refunds,
		tokenVault:  tokenVault,
		bank:        bank,
		encryptor:   encryptor,
		runner:      runner,
		emitter:     emitter,
		fraud:       fraud,
		locks:       newLockTable(),
		logger:      logger,
		bankTimeout: defaultBankTimeout,
		now:         systemClock,
	}
}

// Authorize places a hold on the card behind the token. Exactly one
// bank decision happens per idempotency key, no matter how many times
// the caller retries: a replay after an ambiguous failure resumes the
// pending authorization instead of consuming a second token or asking
// the bank twice.
func (s *ChargeService) Authorize(ctx context.Context, idempotencyKey string, cmd AuthorizeCommand) (*ChargeResponse, error) {
	hash := ComputeRequestHash(cmd)

	body, err := s.runner.Do(ctx, idempotencyKey, hash, func(ctx context.Context) (string, any, error) {
		auth, ref, err := s.prepareAuthorization(ctx, idempotencyKey, cmd)
		if err != nil {
			return "", nil, err
		}
		if err := s.decide(ctx, auth, ref, cmd.MerchantID); err != nil {
			return "", nil, err
		}
		return auth.ID, NewChargeResponse(auth), nil
	})
	if err != nil {
		return nil, err
	}
	return unmarshalCharge(body)
}

// prepareAuthorization either resumes a pending authorization left by
// an earlier ambiguous attempt under the same key, or consumes the
// token and creates a fresh one.
func (s *ChargeService) prepareAuthorization(ctx context.Context, idempotencyKey string, cmd AuthorizeCommand) (*domain.Authorization, domain.CardRef, error) {
	existing, err := s.auths.FindByIdempotencyKey(ctx, idempotencyKey)
	if err != nil && !errors.Is(err, application.ErrRecordNotFound) {
		return nil, domain.CardRef{}, domain.NewInternalError(err)
	}
	if existing != nil && existing.Status == domain.StatusPending && existing.CardRefCipher != nil {
		ref, err := s.encryptor.DecryptCard(*existing.CardRefCipher)
		if err != nil {
			return nil, domain.CardRef{}, domain.NewInternalError(err)
		}
		s.logger.Info("resuming pending authorization",
			"authorization_id", existing.ID, "idempotency_key", idempotencyKey)
		return existing, ref, nil
	}

	money, err := domain.NewMoney(cmd.Amount, cmd.Currency)
	if err != nil {
		return nil, domain.CardRef{}, err
	}

	ref, cipher, err := s.tokenVault.Resolve(ctx, cmd.TokenID)
	if err != nil {
		return nil, domain.CardRef{}, err
	}

	auth, err := domain.NewAuthorization(
		domain.NewID(domain.AuthorizationIDPrefix, domain.OpaqueIDLength),
		cmd.TokenID, money, idempotencyKey, s.now(),
	)
	if err != nil {
		return nil, domain.CardRef{}, err
	}
	auth.CardRefCipher = &cipher

	if err := s.auths.Create(ctx, auth); err != nil {
		return nil, domain.CardRef{}, domain.NewInternalError(err)
	}
	return auth, ref, nil
}

// decide runs the risk gate, asks the bank exactly once and finalizes
// the authorization. The bank call is bounded by the bank timeout and
// detached from the caller's cancellation.
func (s *ChargeService) decide(ctx context.Context, auth *domain.Authorization, ref domain.CardRef, merchantID string) error {
	fingerprint := s.tokenVault.Fingerprint(ref)

	assessment := s.fraud.Assess(fingerprint, auth.AmountCents)
	if assessment.Level == RiskCritical {
		s.fraud.RecordAttempt(fingerprint, false)
		s.logger.Warn("authorization blocked by risk assessment",
			"authorization_id", auth.ID, "risk_score", assessment.Score, "signals", assessment.Reasons())
		return s.declineAuthorization(ctx, auth, "risk_critical")
	}

	bankCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bankTimeout)
	defer cancel()

	decision, err := s.bank.Decide(bankCtx, application.BankDecisionRequest{
		CardNumber:  ref.Number,
		ExpMonth:    ref.ExpMonth,
		ExpYear:     ref.ExpYear,
		AmountCents: auth.AmountCents,
		Currency:    auth.Currency,
		MerchantID:  merchantID,
	})
	if err != nil {
		if bankErr, ok := bank.IsBankError(err); ok && !bankErr.IsRetryable() {
			// a 4xx is a definitive rejection: replaying the same
			// request can never succeed, so the outcome freezes
			s.fraud.RecordAttempt(fingerprint, false)
			s.logger.Warn("bank rejected authorization",
				"authorization_id", auth.ID, "bank_code", bankErr.Code)
			return s.declineAuthorization(ctx, auth, bankErr.Code)
		}
		// outcome unknown: the pending authorization keeps its card
		// reference so a replay with the same key can re-attempt
		s.logger.Warn("bank decision failed",
			"authorization_id", auth.ID, "error", err)
		if domain.IsErrorCode(err, domain.ErrCodeBankUnavailable) {
			return err
		}
		return domain.NewBankUnavailableError(err)
	}

	if decision.Approved {
		if err := auth.Authorize(decision.AuthCode, s.now()); err != nil {
			return err
		}
		if err := s.auths.Update(ctx, auth); err != nil {
			return domain.NewInternalError(err)
		}
		s.fraud.RecordAttempt(fingerprint, true)
		s.logger.Info("authorization approved",
			"authorization_id", auth.ID, "amount", auth.AmountCents, "currency", auth.Currency)
		s.emitter.Emit(ctx, domain.EventChargeAuthorized, NewChargeResponse(auth))
		return nil
	}

	s.fraud.RecordAttempt(fingerprint, false)
	return s.declineAuthorization(ctx, auth, decision.DeclineCode)
}

// declineAuthorization finalizes a terminal decline. The reason stays
// internal; callers always get the generic message.
func (s *ChargeService) declineAuthorization(ctx context.Context, auth *domain.Authorization, reason string) error {
	if err := auth.Decline(reason); err != nil {
		return err
	}
	if err := s.auths.Update(ctx, auth); err != nil {
		return domain.NewInternalError(err)
	}
	s.logger.Info("authorization declined",
		"authorization_id", auth.ID, "decline_code", reason)
	s.emitter.Emit(ctx, domain.EventChargeFailed, NewChargeResponse(auth))
	return domain.NewCardDeclinedError()
}

func (s *ChargeService) findAuthorization(ctx context.Context, id string) (*domain.Authorization, error) {
	auth, err := s.auths.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, application.ErrRecordNotFound) {
			return nil, domain.NewAuthorizationNotFoundError(id)
		}
		return nil, domain.NewInternalError(err)
	}
	return auth, nil
}

func unmarshalCharge(body []byte) (*ChargeResponse, error) {
	var resp ChargeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewInternalError(err)
	}
	return &resp, nil
}

func unmarshalRefund(body []byte) (*RefundResponse, error) {
	var resp RefundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewInternalError(err)
	}
	return &resp, nil
}
