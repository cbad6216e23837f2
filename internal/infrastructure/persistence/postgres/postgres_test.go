package postgres_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/config"
	"github.com/clearroute/payment-core/internal/domain"
	"github.com/clearroute/payment-core/internal/infrastructure/persistence/postgres"
)

func setupTestDatabase(t *testing.T) *postgres.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(context.Background())) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "testuser",
		Password:        "testpass",
		Name:            "testdb",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MinConns:        2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := postgres.Connect(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	return db
}

func newToken(id string, kind domain.TokenKind, now time.Time) *domain.Token {
	return domain.NewToken(id, "cipher-blob", "4242", domain.BrandVisa, 12, 2030, "fp123", kind, now)
}

func TestPostgresRepositories(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tokens := postgres.NewTokenRepository(db)
	auths := postgres.NewAuthorizationRepository(db)
	refunds := postgres.NewRefundRepository(db)
	idem := postgres.NewIdempotencyRepository(db)
	webhooks := postgres.NewWebhookRepository(db)

	t.Run("token round trip and atomic consume", func(t *testing.T) {
		require.NoError(t, tokens.Create(ctx, newToken("tok_pg1", domain.TokenOneTime, now)))

		got, err := tokens.FindByID(ctx, "tok_pg1")
		require.NoError(t, err)
		assert.Equal(t, domain.BrandVisa, got.Brand)
		assert.Equal(t, domain.TokenOneTime, got.Kind)
		require.NotNil(t, got.ExpiresAt)

		require.NoError(t, tokens.MarkUsed(ctx, "tok_pg1"))
		assert.ErrorIs(t, tokens.MarkUsed(ctx, "tok_pg1"), application.ErrConflict)

		_, err = tokens.FindByID(ctx, "tok_missing")
		assert.ErrorIs(t, err, application.ErrRecordNotFound)
	})

	t.Run("expired one-time tokens are swept, reusable survive", func(t *testing.T) {
		stale := newToken("tok_pg_stale", domain.TokenOneTime, now.Add(-time.Hour))
		keep := newToken("tok_pg_keep", domain.TokenReusable, now.Add(-time.Hour))
		require.NoError(t, tokens.Create(ctx, stale))
		require.NoError(t, tokens.Create(ctx, keep))

		deleted, err := tokens.DeleteExpiredOneTime(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = tokens.FindByID(ctx, "tok_pg_stale")
		assert.ErrorIs(t, err, application.ErrRecordNotFound)
		_, err = tokens.FindByID(ctx, "tok_pg_keep")
		assert.NoError(t, err)
	})

	t.Run("authorization versioned update", func(t *testing.T) {
		auth, err := domain.NewAuthorization("auth_pg1", "tok_pg1", domain.Money{Amount: 5000, Currency: "usd"}, "key-pg-1", now)
		require.NoError(t, err)
		require.NoError(t, auths.Create(ctx, auth))

		require.NoError(t, auth.Authorize("AUTH9", now))
		require.NoError(t, auths.Update(ctx, auth))
		assert.Equal(t, int64(2), auth.Version)

		stale := *auth
		stale.Version = 1
		assert.ErrorIs(t, auths.Update(ctx, &stale), application.ErrConflict)

		got, err := auths.FindByIdempotencyKey(ctx, "key-pg-1")
		require.NoError(t, err)
		assert.Equal(t, "auth_pg1", got.ID)
		assert.Equal(t, domain.StatusAuthorized, got.Status)
		require.NotNil(t, got.AuthCode)
	})

	t.Run("expired holds query skips captured rows", func(t *testing.T) {
		past := now.Add(-domain.AuthHoldWindow - time.Hour)

		lapsed, err := domain.NewAuthorization("auth_pg_lapsed", "tok_pg1", domain.Money{Amount: 100, Currency: "usd"}, "key-pg-lapsed", past)
		require.NoError(t, err)
		require.NoError(t, lapsed.Authorize("AUTH9", past))
		require.NoError(t, auths.Create(ctx, lapsed))

		settled, err := domain.NewAuthorization("auth_pg_settled", "tok_pg1", domain.Money{Amount: 100, Currency: "usd"}, "key-pg-settled", past)
		require.NoError(t, err)
		require.NoError(t, settled.Authorize("AUTH9", past))
		require.NoError(t, settled.Capture(100, past.Add(time.Minute)))
		require.NoError(t, auths.Create(ctx, settled))

		expired, err := auths.FindExpiredHolds(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "auth_pg_lapsed", expired[0].ID)
	})

	t.Run("refund rows accumulate per authorization", func(t *testing.T) {
		for i, amount := range []int64{1000, 2000} {
			refund := domain.NewRefund(
				fmt.Sprintf("re_pg%d", i+1), "auth_pg1", amount, "usd", "key-ref", now.Add(time.Duration(i)*time.Second),
			)
			require.NoError(t, refunds.Create(ctx, refund))
		}

		list, err := refunds.ListByAuthorization(ctx, "auth_pg1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, int64(1000), list[0].AmountCents)
		assert.Equal(t, int64(2000), list[1].AmountCents)
	})

	t.Run("idempotency key lifecycle", func(t *testing.T) {
		record := &domain.IdempotencyRecord{
			Key:         "pg-key-1",
			RequestHash: "hash-a",
			Status:      domain.IdempotencyInFlight,
			CreatedAt:   now,
			ExpiresAt:   now.Add(domain.IdempotencyRecordTTL),
		}
		require.NoError(t, idem.Insert(ctx, record))
		assert.ErrorIs(t, idem.Insert(ctx, record), application.ErrKeyExists)

		require.NoError(t, idem.Complete(ctx, "pg-key-1", "auth_pg1", []byte(`{"id":"auth_pg1"}`)))
		got, err := idem.FindByKey(ctx, "pg-key-1")
		require.NoError(t, err)
		assert.Equal(t, domain.IdempotencyCompleted, got.Status)
		assert.Equal(t, "auth_pg1", got.ResourceID)
		assert.JSONEq(t, `{"id":"auth_pg1"}`, string(got.ResponseBody))

		require.NoError(t, idem.Delete(ctx, "pg-key-1"))
		_, err = idem.FindByKey(ctx, "pg-key-1")
		assert.ErrorIs(t, err, application.ErrRecordNotFound)
	})

	t.Run("webhook queue honors due times and versions", func(t *testing.T) {
		endpoint := &domain.WebhookEndpoint{
			ID: "we_pg1", MerchantID: "merch_1", URL: "https://example.com/hooks",
			Secret: "whsec_pg", Events: []string{"*"}, Enabled: true, CreatedAt: now,
		}
		require.NoError(t, webhooks.CreateEndpoint(ctx, endpoint))

		event := domain.NewWebhookEvent("evt_pg1", "we_pg1", domain.EventChargeAuthorized, []byte(`{}`), now)
		require.NoError(t, webhooks.Enqueue(ctx, event))

		due, err := webhooks.FindDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		event.RecordFailure(now)
		require.NoError(t, webhooks.UpdateEvent(ctx, event))

		due, err = webhooks.FindDue(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, due, "failed event is not due until its backoff elapses")

		due, err = webhooks.FindDue(ctx, now.Add(domain.WebhookRetrySchedule[1]+time.Second), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		stale := *event
		stale.Version = 1
		assert.ErrorIs(t, webhooks.UpdateEvent(ctx, &stale), application.ErrConflict)

		msg := "connection refused"
		require.NoError(t, webhooks.RecordAttempt(ctx, &domain.DeliveryAttempt{
			ID: "wa_pg1", EventID: "evt_pg1", AttemptNumber: 1, ErrorMessage: &msg, AttemptedAt: now,
		}))
		attempts, err := webhooks.ListAttempts(ctx, "evt_pg1")
		require.NoError(t, err)
		require.Len(t, attempts, 1)
		assert.Nil(t, attempts[0].HTTPStatus)
	})
}
