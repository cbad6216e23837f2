package domain

import (
	"strings"
	"time"
)

// CardBrand identifies the card network from the leading digits of the PAN.
type CardBrand string

const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandAmex       CardBrand = "amex"
	BrandDiscover   CardBrand = "discover"
	BrandUnknown    CardBrand = "unknown"
)

// CardData is the raw card input accepted at the tokenize boundary.
// The full number and CVV never leave the vault; the CVV is used
// transiently and is never persisted or logged.
type CardData struct {
	Number         string
	ExpMonth       int
	ExpYear        int
	CVV            string
	CardholderName string
}

// CardRef is the decrypted card reference handed to the authorization
// engine after a token resolve. It is for internal use only.
type CardRef struct {
	Number   string
	ExpMonth int
	ExpYear  int
	Brand    CardBrand
	LastFour string
}

// Normalize strips spaces and dashes from the card number.
func (c *CardData) Normalize() string {
	n := strings.ReplaceAll(c.Number, " ", "")
	return strings.ReplaceAll(n, "-", "")
}

// Validate checks PAN format, Luhn checksum, expiry and CVV shape.
func (c *CardData) Validate(now time.Time) error {
	number := c.Normalize()

	if len(number) < 13 || len(number) > 19 {
		return NewValidationError("card number must be 13-19 digits")
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return NewValidationError("card number must contain only digits")
		}
	}
	if !ValidateLuhn(number) {
		return NewValidationError("card number failed checksum validation")
	}
	if c.ExpMonth < 1 || c.ExpMonth > 12 {
		return NewValidationError("expiry month must be between 1 and 12")
	}
	if cardExpired(c.ExpMonth, c.ExpYear, now) {
		return NewValidationError("card has expired")
	}
	if c.CVV != "" {
		if len(c.CVV) < 3 || len(c.CVV) > 4 {
			return NewValidationError("cvv must be 3 or 4 digits")
		}
		for _, r := range c.CVV {
			if r < '0' || r > '9' {
				return NewValidationError("cvv must contain only digits")
			}
		}
	}
	return nil
}

// LastFour returns the trailing four digits of the PAN, the only part of
// the number that is safe to expose.
func (c *CardData) LastFour() string {
	number := c.Normalize()
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}

// cardExpired treats a card as valid through the last day of its expiry month.
func cardExpired(expMonth, expYear int, now time.Time) bool {
	cutoff := time.Date(expYear, time.Month(expMonth), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, 0)
	return !now.Before(cutoff)
}

// ValidateLuhn runs the Luhn checksum over a normalized card number.
func ValidateLuhn(number string) bool {
	var sum int
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// binRanges maps each brand to its BIN prefixes or prefix ranges.
var binRanges = []struct {
	brand CardBrand
	lo    string
	hi    string
}{
	{BrandVisa, "4", "4"},
	{BrandMastercard, "51", "55"},
	{BrandMastercard, "2221", "2720"},
	{BrandAmex, "34", "34"},
	{BrandAmex, "37", "37"},
	{BrandDiscover, "6011", "6011"},
	{BrandDiscover, "644", "649"},
	{BrandDiscover, "65", "65"},
}

// DetectCardBrand identifies the network from the number's leading digits.
func DetectCardBrand(number string) CardBrand {
	for _, r := range binRanges {
		width := len(r.lo)
		if len(number) < width {
			continue
		}
		prefix := number[:width]
		if prefix >= r.lo && prefix <= r.hi {
			return r.brand
		}
	}
	return BrandUnknown
}
