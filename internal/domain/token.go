package domain

import "time"

// TokenKind distinguishes single-use checkout tokens from stored
// payment-method tokens.
type TokenKind string

const (
	TokenOneTime  TokenKind = "one_time"
	TokenReusable TokenKind = "reusable"
)

// OneTimeTokenTTL is how long a one-time token stays resolvable.
const OneTimeTokenTTL = 15 * time.Minute

// Token is the caller-facing substitute for card data. EncryptedCardRef
// points at the vault-internal encrypted record and is never exposed
// outside the vault and the authorization engine.
type Token struct {
	ID               string
	EncryptedCardRef string
	LastFour         string
	Brand            CardBrand
	ExpMonth         int
	ExpYear          int
	Fingerprint      string
	Kind             TokenKind
	Used             bool
	Revoked          bool
	CreatedAt        time.Time
	ExpiresAt        *time.Time
}

func NewToken(id, encryptedCardRef, lastFour string, brand CardBrand, expMonth, expYear int, fingerprint string, kind TokenKind, now time.Time) *Token {
	t := &Token{
		ID:               id,
		EncryptedCardRef: encryptedCardRef,
		LastFour:         lastFour,
		Brand:            brand,
		ExpMonth:         expMonth,
		ExpYear:          expYear,
		Fingerprint:      fingerprint,
		Kind:             kind,
		CreatedAt:        now,
	}
	if kind == TokenOneTime {
		expires := now.Add(OneTimeTokenTTL)
		t.ExpiresAt = &expires
	}
	return t
}

func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Consumable reports whether the token can still be resolved. One-time
// tokens consume on first resolve; reusable tokens stay valid until
// revoked.
func (t *Token) Consumable(now time.Time) error {
	if t.Revoked {
		return NewTokenRevokedError(t.ID)
	}
	if t.IsExpired(now) {
		return NewTokenExpiredError(t.ID)
	}
	if t.Kind == TokenOneTime && t.Used {
		return NewTokenAlreadyUsedError(t.ID)
	}
	return nil
}
