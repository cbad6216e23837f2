package domain_test

import (
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenConsumable(t *testing.T) {
	token := domain.NewToken("tok_1", "ref_1", "4242", domain.BrandVisa, 12, 2027, "fp_1", domain.TokenOneTime, testNow)

	t.Run("fresh one-time token is consumable", func(t *testing.T) {
		require.NoError(t, token.Consumable(testNow))
	})

	t.Run("expires after its ttl", func(t *testing.T) {
		late := testNow.Add(domain.OneTimeTokenTTL + time.Minute)
		err := token.Consumable(late)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeTokenExpired))
	})

	t.Run("used one-time token cannot be consumed again", func(t *testing.T) {
		used := *token
		used.Used = true
		err := used.Consumable(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeTokenAlreadyUsed))
	})

	t.Run("reusable tokens do not expire but honor revocation", func(t *testing.T) {
		reusable := domain.NewToken("tok_2", "ref_2", "4242", domain.BrandVisa, 12, 2027, "fp_2", domain.TokenReusable, testNow)
		assert.Nil(t, reusable.ExpiresAt)
		require.NoError(t, reusable.Consumable(testNow.Add(48*time.Hour)))

		reusable.Revoked = true
		err := reusable.Consumable(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeTokenRevoked))
	})
}
