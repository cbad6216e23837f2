package domain_test

import (
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthorizedAuth(t *testing.T, amount int64) *domain.Authorization {
	t.Helper()
	money, err := domain.NewMoney(amount, "usd")
	require.NoError(t, err)

	auth, err := domain.NewAuthorization("auth_1", "tok_1", money, "charge:order_1", testNow)
	require.NoError(t, err)
	require.NoError(t, auth.Authorize("AUTH123", testNow))
	return auth
}

func TestNewAuthorization(t *testing.T) {
	t.Run("starts pending", func(t *testing.T) {
		money, err := domain.NewMoney(9900, "usd")
		require.NoError(t, err)

		auth, err := domain.NewAuthorization("auth_1", "tok_1", money, "charge:order_1", testNow)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, auth.Status)
		assert.Equal(t, int64(9900), auth.AmountCents)
		assert.Equal(t, "usd", auth.Currency)
		assert.Equal(t, "charge:order_1", auth.IdempotencyKey)
	})

	t.Run("rejects empty ids", func(t *testing.T) {
		money, _ := domain.NewMoney(9900, "usd")
		_, err := domain.NewAuthorization("", "tok_1", money, "k", testNow)
		assert.Error(t, err)
		_, err = domain.NewAuthorization("auth_1", "", money, "k", testNow)
		assert.Error(t, err)
	})
}

func TestNewMoney(t *testing.T) {
	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := domain.NewMoney(0, "usd")
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("rejects unsupported currency", func(t *testing.T) {
		_, err := domain.NewMoney(1000, "xxx")
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("rejects amounts outside the limits", func(t *testing.T) {
		_, err := domain.NewMoney(domain.MinChargeAmount-1, "usd")
		assert.Error(t, err)
		_, err = domain.NewMoney(domain.MaxChargeAmount+1, "usd")
		assert.Error(t, err)
	})
}

func TestAuthorize(t *testing.T) {
	auth := newAuthorizedAuth(t, 9900)

	assert.Equal(t, domain.StatusAuthorized, auth.Status)
	require.NotNil(t, auth.AuthCode)
	assert.Equal(t, "AUTH123", *auth.AuthCode)
	require.NotNil(t, auth.ExpiresAt)
	assert.Equal(t, testNow.Add(domain.AuthHoldWindow), *auth.ExpiresAt)

	t.Run("cannot authorize twice", func(t *testing.T) {
		err := auth.Authorize("AUTH456", testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidTransition))
	})
}

func TestDecline(t *testing.T) {
	money, _ := domain.NewMoney(9900, "usd")
	auth, _ := domain.NewAuthorization("auth_1", "tok_1", money, "k", testNow)

	require.NoError(t, auth.Decline("insufficient_funds"))
	assert.Equal(t, domain.StatusFailed, auth.Status)
	require.NotNil(t, auth.DeclineCode)
	assert.Equal(t, "insufficient_funds", *auth.DeclineCode)
	assert.True(t, auth.IsTerminal())
}

func TestCapture(t *testing.T) {
	t.Run("full capture", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 9900)
		require.NoError(t, auth.Capture(9900, testNow))
		assert.Equal(t, domain.StatusCaptured, auth.Status)
		assert.Equal(t, int64(9900), auth.CapturedCents)
	})

	t.Run("partial captures stay within the authorized amount", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 10000)
		require.NoError(t, auth.Capture(4000, testNow))
		require.NoError(t, auth.Capture(6000, testNow))
		assert.Equal(t, int64(10000), auth.CapturedCents)

		err := auth.Capture(1, testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidCaptureAmount))
		assert.Equal(t, int64(10000), auth.CapturedCents)
	})

	t.Run("over-capture fails and leaves state unchanged", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 5000)
		err := auth.Capture(5001, testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidCaptureAmount))
		assert.Equal(t, domain.StatusAuthorized, auth.Status)
		assert.Zero(t, auth.CapturedCents)
	})

	t.Run("cannot capture an expired hold", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 5000)
		late := testNow.Add(domain.AuthHoldWindow + time.Hour)
		err := auth.Capture(5000, late)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeAuthorizationExpired))
	})

	t.Run("cannot capture from pending", func(t *testing.T) {
		money, _ := domain.NewMoney(5000, "usd")
		auth, _ := domain.NewAuthorization("auth_1", "tok_1", money, "k", testNow)
		err := auth.Capture(5000, testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidState))
	})
}

func TestVoid(t *testing.T) {
	t.Run("voids an uncaptured hold", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 5000)
		require.NoError(t, auth.Void(testNow))
		assert.Equal(t, domain.StatusVoided, auth.Status)
		assert.NotNil(t, auth.VoidedAt)
	})

	t.Run("cannot void after any capture", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 5000)
		require.NoError(t, auth.Capture(1000, testNow))
		err := auth.Void(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidState))
	})
}

func TestRefund(t *testing.T) {
	t.Run("refund keeps status captured", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 9900)
		require.NoError(t, auth.Capture(9900, testNow))
		require.NoError(t, auth.Refund(9900))
		assert.Equal(t, domain.StatusCaptured, auth.Status)
		assert.Equal(t, int64(9900), auth.RefundedCents)
	})

	t.Run("multiple partial refunds up to the captured amount", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 9900)
		require.NoError(t, auth.Capture(9900, testNow))
		require.NoError(t, auth.Refund(3000))
		require.NoError(t, auth.Refund(6900))

		err := auth.Refund(1)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidRefundAmount))
	})

	t.Run("cannot refund an uncaptured authorization", func(t *testing.T) {
		auth := newAuthorizedAuth(t, 9900)
		err := auth.Refund(100)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidState))
	})
}

func TestExpiry(t *testing.T) {
	auth := newAuthorizedAuth(t, 5000)
	late := testNow.Add(domain.AuthHoldWindow + time.Minute)

	assert.True(t, auth.IsHoldExpired(late))
	require.NoError(t, auth.MarkExpired())
	assert.Equal(t, domain.StatusExpired, auth.Status)

	t.Run("captured holds never expire", func(t *testing.T) {
		captured := newAuthorizedAuth(t, 5000)
		require.NoError(t, captured.Capture(5000, testNow))
		assert.False(t, captured.IsHoldExpired(late))
		assert.Error(t, captured.MarkExpired())
	})
}

func TestRoundHalfUp(t *testing.T) {
	// 2.5% of 101 = 2.525 -> 3
	assert.Equal(t, int64(3), domain.RoundHalfUp(101, 250))
	// 2.5% of 100 = 2.5 -> 3 (half rounds up)
	assert.Equal(t, int64(3), domain.RoundHalfUp(100, 250))
	// 2% of 100 = 2
	assert.Equal(t, int64(2), domain.RoundHalfUp(100, 200))
	assert.Equal(t, int64(0), domain.RoundHalfUp(0, 250))
}
