package domain

// Money holds an amount in minor currency units (cents for usd)
// alongside its ISO 4217 currency code. Fractional minor units are
// never represented.
type Money struct {
	Amount   int64
	Currency string
}

const (
	// MinChargeAmount guards against zero and trivially small charges.
	MinChargeAmount int64 = 50
	// MaxChargeAmount caps a single charge at ~1M major units.
	MaxChargeAmount int64 = 99_999_999
)

var supportedCurrencies = map[string]struct{}{
	"usd": {},
	"eur": {},
	"gbp": {},
	"cad": {},
	"aud": {},
	"jpy": {},
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount <= 0 {
		return Money{}, NewValidationError("amount must be greater than zero")
	}
	if amount < MinChargeAmount {
		return Money{}, NewValidationError("amount is below the minimum chargeable amount")
	}
	if amount > MaxChargeAmount {
		return Money{}, NewValidationError("amount exceeds the maximum chargeable amount")
	}
	if !IsSupportedCurrency(currency) {
		return Money{}, NewValidationError("currency must be a supported 3-letter ISO code")
	}
	return Money{Amount: amount, Currency: currency}, nil
}

func IsSupportedCurrency(currency string) bool {
	_, ok := supportedCurrencies[currency]
	return ok
}

// RoundHalfUp applies a percentage in basis points to an amount,
// rounding half up at the integer boundary. Used by fee and tax
// collaborators so fractional minor units never persist.
func RoundHalfUp(amount int64, basisPoints int64) int64 {
	product := amount * basisPoints
	q := product / 10_000
	if product%10_000*2 >= 10_000 {
		q++
	}
	return q
}
