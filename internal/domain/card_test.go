package domain_test

import (
	"testing"
	"time"

	"github.com/clearroute/payment-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestCardDataValidate(t *testing.T) {
	valid := domain.CardData{
		Number:   "4242424242424242",
		ExpMonth: 12,
		ExpYear:  2027,
		CVV:      "123",
	}

	t.Run("accepts a valid card", func(t *testing.T) {
		require.NoError(t, valid.Validate(testNow))
	})

	t.Run("accepts spaces and dashes in the number", func(t *testing.T) {
		card := valid
		card.Number = "4242 4242-4242 4242"
		require.NoError(t, card.Validate(testNow))
		assert.Equal(t, "4242", card.LastFour())
	})

	t.Run("rejects a number that fails Luhn", func(t *testing.T) {
		card := valid
		card.Number = "4242424242424241"
		err := card.Validate(testNow)
		require.Error(t, err)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("rejects a short PAN", func(t *testing.T) {
		card := valid
		card.Number = "424242424242"
		err := card.Validate(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("rejects non-digit characters", func(t *testing.T) {
		card := valid
		card.Number = "4242x242424242424"
		err := card.Validate(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("rejects an expired card", func(t *testing.T) {
		card := valid
		card.ExpMonth = 2
		card.ExpYear = 2026
		err := card.Validate(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("card is valid through the last day of its expiry month", func(t *testing.T) {
		card := valid
		card.ExpMonth = 3
		card.ExpYear = 2026
		require.NoError(t, card.Validate(testNow))
	})

	t.Run("rejects a malformed cvv", func(t *testing.T) {
		card := valid
		card.CVV = "12"
		err := card.Validate(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))

		card.CVV = "12a"
		err = card.Validate(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})

	t.Run("rejects month out of range", func(t *testing.T) {
		card := valid
		card.ExpMonth = 13
		err := card.Validate(testNow)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
	})
}

func TestDetectCardBrand(t *testing.T) {
	cases := map[string]domain.CardBrand{
		"4242424242424242": domain.BrandVisa,
		"5555555555554444": domain.BrandMastercard,
		"2221000000000009": domain.BrandMastercard,
		"2720990000000007": domain.BrandMastercard,
		"378282246310005":  domain.BrandAmex,
		"348282246310007":  domain.BrandAmex,
		"6011111111111117": domain.BrandDiscover,
		"6445000000000000": domain.BrandDiscover,
		"6500000000000002": domain.BrandDiscover,
		"9999999999999999": domain.BrandUnknown,
	}

	for number, want := range cases {
		assert.Equal(t, want, domain.DetectCardBrand(number), "number %s", number)
	}
}

func TestValidateLuhn(t *testing.T) {
	assert.True(t, domain.ValidateLuhn("4242424242424242"))
	assert.True(t, domain.ValidateLuhn("378282246310005"))
	assert.False(t, domain.ValidateLuhn("4242424242424240"))
	assert.False(t, domain.ValidateLuhn("1234567890123456"))
}

func TestMaskTokenID(t *testing.T) {
	assert.Equal(t, "tok_...x9z2", domain.MaskTokenID("tok_a1b2c3d4e5f6x9z2"))
	assert.Equal(t, "short", domain.MaskTokenID("short"))
}
