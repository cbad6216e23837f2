package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/application/services"
	"github.com/clearroute/payment-core/internal/domain"
	"github.com/clearroute/payment-core/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAuthorized(t *testing.T, auths *memory.AuthorizationRepository, id string, authorizedAt time.Time) *domain.Authorization {
	t.Helper()
	ctx := context.Background()
	auth, err := domain.NewAuthorization(id, "tok_test", domain.Money{Amount: 5000, Currency: "usd"}, "key-"+id, authorizedAt)
	require.NoError(t, err)
	require.NoError(t, auth.Authorize("AUTH123", authorizedAt))
	require.NoError(t, auths.Create(ctx, auth))
	return auth
}

func TestExpirationWorker(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("expires holds past the window and emits events", func(t *testing.T) {
		auths := memory.NewAuthorizationRepository()
		webhooks := memory.NewWebhookRepository()
		require.NoError(t, webhooks.CreateEndpoint(ctx, &domain.WebhookEndpoint{
			ID: "we_1", URL: "https://example.com/hooks", Secret: "whsec_1",
			Events: []string{"*"}, Enabled: true,
		}))
		emitter := services.NewEventEmitter(webhooks, logger)

		now := time.Now().UTC()
		stale := seedAuthorized(t, auths, "auth_stale", now.Add(-domain.AuthHoldWindow-time.Hour))
		fresh := seedAuthorized(t, auths, "auth_fresh", now.Add(-time.Hour))

		w := NewExpirationWorker(auths, emitter, logger, time.Minute)
		w.Sweep(ctx)

		got, err := auths.FindByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, got.Status)

		got, err = auths.FindByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAuthorized, got.Status)

		due, err := webhooks.FindDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, domain.EventChargeExpired, due[0].Type)
	})

	t.Run("captured holds are never expired", func(t *testing.T) {
		auths := memory.NewAuthorizationRepository()
		webhooks := memory.NewWebhookRepository()
		emitter := services.NewEventEmitter(webhooks, logger)

		now := time.Now().UTC()
		auth := seedAuthorized(t, auths, "auth_cap", now.Add(-domain.AuthHoldWindow-time.Hour))
		// captured within the hold window, before it lapsed
		require.NoError(t, auth.Capture(5000, now.Add(-domain.AuthHoldWindow)))
		require.NoError(t, auths.Update(ctx, auth))

		w := NewExpirationWorker(auths, emitter, logger, time.Minute)
		w.Sweep(ctx)

		got, err := auths.FindByID(ctx, auth.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCaptured, got.Status)
	})
}

func TestTokenSweeper(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := memory.NewTokenRepository()

	now := time.Now().UTC()
	stale := domain.NewToken("tok_stale", "cipher", "4242", domain.BrandVisa, 12, 2030, "fp", domain.TokenOneTime, now.Add(-time.Hour))
	fresh := domain.NewToken("tok_fresh", "cipher", "4242", domain.BrandVisa, 12, 2030, "fp", domain.TokenOneTime, now)
	reusable := domain.NewToken("tok_reuse", "cipher", "4242", domain.BrandVisa, 12, 2030, "fp", domain.TokenReusable, now.Add(-24*time.Hour))
	for _, tok := range []*domain.Token{stale, fresh, reusable} {
		require.NoError(t, tokens.Create(ctx, tok))
	}

	w := NewTokenSweeper(tokens, logger, time.Minute)
	w.Sweep(ctx)

	_, err := tokens.FindByID(ctx, "tok_stale")
	assert.Error(t, err)
	_, err = tokens.FindByID(ctx, "tok_fresh")
	assert.NoError(t, err)
	_, err = tokens.FindByID(ctx, "tok_reuse")
	assert.NoError(t, err)
}

func TestIdempotencyPurger(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := memory.NewIdempotencyRepository()

	now := time.Now().UTC()
	require.NoError(t, records.Insert(ctx, &domain.IdempotencyRecord{
		Key: "stale", Status: domain.IdempotencyCompleted,
		CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	}))
	require.NoError(t, records.Insert(ctx, &domain.IdempotencyRecord{
		Key: "fresh", Status: domain.IdempotencyCompleted,
		CreatedAt: now, ExpiresAt: now.Add(domain.IdempotencyRecordTTL),
	}))

	w := NewIdempotencyPurger(records, logger, time.Minute)
	w.Sweep(ctx)

	_, err := records.FindByKey(ctx, "stale")
	assert.Error(t, err)
	_, err = records.FindByKey(ctx, "fresh")
	assert.NoError(t, err)
}
