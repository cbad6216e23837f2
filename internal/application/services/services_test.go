package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
	"github.com/clearroute/payment-core/internal/infrastructure/persistence/memory"
	"github.com/clearroute/payment-core/internal/infrastructure/vault"
	"github.com/stretchr/testify/require"
)

const testCardNumber = "4242424242424242"

// mockBankClient scripts bank decisions and counts calls.
type mockBankClient struct {
	DecideFn func(ctx context.Context, req application.BankDecisionRequest) (*application.BankDecision, error)
	calls    atomic.Int32
}

func (m *mockBankClient) Decide(ctx context.Context, req application.BankDecisionRequest) (*application.BankDecision, error) {
	m.calls.Add(1)
	if m.DecideFn != nil {
		return m.DecideFn(ctx, req)
	}
	return &application.BankDecision{Approved: true, AuthCode: "AUTH123"}, nil
}

func (m *mockBankClient) Calls() int {
	return int(m.calls.Load())
}

func approveAll(ctx context.Context, req application.BankDecisionRequest) (*application.BankDecision, error) {
	return &application.BankDecision{Approved: true, AuthCode: "AUTH123"}, nil
}

// harness wires every service against in-memory repositories.
type harness struct {
	tokens    *memory.TokenRepository
	auths     *memory.AuthorizationRepository
	refunds   *memory.RefundRepository
	idem      *memory.IdempotencyRepository
	webhooks  *memory.WebhookRepository
	bank      *mockBankClient
	vault     *TokenService
	charges   *ChargeService
	endpoints *EndpointService
	runner    *IdempotencyRunner
	emitter   *EventEmitter
	fraud     *FraudDetector
	encryptor *vault.Encryptor
	logger    *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	master, err := vault.NewLocalMasterKey(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	encryptor := vault.NewEncryptor(master)

	h := &harness{
		tokens:   memory.NewTokenRepository(),
		auths:    memory.NewAuthorizationRepository(),
		refunds:  memory.NewRefundRepository(),
		idem:     memory.NewIdempotencyRepository(),
		webhooks: memory.NewWebhookRepository(),
		bank:     &mockBankClient{},
	}
	h.encryptor = encryptor
	h.logger = logger
	h.vault = NewTokenService(h.tokens, encryptor, vault.NewFingerprinter("test-salt"), logger)
	h.runner = NewIdempotencyRunner(h.idem, logger)
	h.runner.pollInterval = 5 * time.Millisecond
	h.runner.lockWait = time.Second
	h.emitter = NewEventEmitter(h.webhooks, logger)
	h.fraud = NewFraudDetector()
	h.charges = NewChargeService(h.auths, h.refunds, h.vault, h.bank, encryptor, h.runner, h.emitter, h.fraud, logger)
	h.endpoints = NewEndpointService(h.webhooks, logger)
	return h
}

func (h *harness) tokenize(t *testing.T, reusable bool) string {
	t.Helper()
	token, err := h.vault.Tokenize(context.Background(), TokenizeCommand{
		Number:   testCardNumber,
		ExpMonth: 12,
		ExpYear:  time.Now().Year() + 2,
		CVV:      "123",
		Reusable: reusable,
	})
	require.NoError(t, err)
	return token.ID
}

func (h *harness) authorize(t *testing.T, key string, amount int64) *ChargeResponse {
	t.Helper()
	tokenID := h.tokenize(t, false)
	resp, err := h.charges.Authorize(context.Background(), key, AuthorizeCommand{
		TokenID:    tokenID,
		Amount:     amount,
		Currency:   "usd",
		MerchantID: "merch_1",
	})
	require.NoError(t, err)
	return resp
}

// ctxGuardedAuthRepo refuses writes once the request context has died,
// the way the pgx repository does.
type ctxGuardedAuthRepo struct {
	*memory.AuthorizationRepository
}

func (r *ctxGuardedAuthRepo) Create(ctx context.Context, auth *domain.Authorization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.AuthorizationRepository.Create(ctx, auth)
}

func (r *ctxGuardedAuthRepo) Update(ctx context.Context, auth *domain.Authorization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.AuthorizationRepository.Update(ctx, auth)
}

type ctxGuardedIdemRepo struct {
	*memory.IdempotencyRepository
}

func (r *ctxGuardedIdemRepo) Complete(ctx context.Context, key, resourceID string, responseBody []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.Complete(ctx, key, resourceID, responseBody)
}

func (r *ctxGuardedIdemRepo) Fail(ctx context.Context, key, errorCode, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.Fail(ctx, key, errorCode, errorMessage)
}

func (r *ctxGuardedIdemRepo) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.Delete(ctx, key)
}
