package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
	"github.com/clearroute/payment-core/internal/infrastructure/vault"
)

// TokenService owns the card vault boundary: raw card data comes in,
// opaque tokens go out, and the full number only ever reappears inside
// Resolve for the authorization engine.
type TokenService struct {
	tokens        application.TokenRepository
	encryptor     *vault.Encryptor
	fingerprinter *vault.Fingerprinter
	logger        *slog.Logger
	now           clock
}

func NewTokenService(
	tokens application.TokenRepository,
	encryptor *vault.Encryptor,
	fingerprinter *vault.Fingerprinter,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		tokens:        tokens,
		encryptor:     encryptor,
		fingerprinter: fingerprinter,
		logger:        logger,
		now:           systemClock,
	}
}

// Fingerprint derives the stable card fingerprint for a resolved card
// reference, so velocity tracking keys on the physical card rather
// than the token wrapping it.
func (s *TokenService) Fingerprint(ref domain.CardRef) string {
	return s.fingerprinter.Fingerprint(ref.Number, ref.ExpMonth, ref.ExpYear)
}

// Tokenize validates the card, envelope-encrypts it and stores a token
// record. The CVV is used for validation only and is dropped here.
func (s *TokenService) Tokenize(ctx context.Context, cmd TokenizeCommand) (*domain.Token, error) {
	now := s.now()

	card := domain.CardData{
		Number:         cmd.Number,
		ExpMonth:       cmd.ExpMonth,
		ExpYear:        cmd.ExpYear,
		CVV:            cmd.CVV,
		CardholderName: cmd.CardholderName,
	}
	if err := card.Validate(now); err != nil {
		return nil, err
	}

	number := card.Normalize()
	cipher, err := s.encryptor.EncryptCard(domain.CardRef{
		Number:   number,
		ExpMonth: cmd.ExpMonth,
		ExpYear:  cmd.ExpYear,
	})
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	kind := domain.TokenOneTime
	if cmd.Reusable {
		kind = domain.TokenReusable
	}

	token := domain.NewToken(
		domain.NewID(domain.TokenIDPrefix, domain.OpaqueIDLength),
		cipher,
		card.LastFour(),
		domain.DetectCardBrand(number),
		cmd.ExpMonth,
		cmd.ExpYear,
		s.fingerprinter.Fingerprint(number, cmd.ExpMonth, cmd.ExpYear),
		kind,
		now,
	)

	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, domain.NewInternalError(err)
	}

	s.logger.Info("card tokenized",
		"token_id", domain.MaskTokenID(token.ID),
		"brand", token.Brand,
		"kind", token.Kind)
	return token, nil
}

// Resolve hands the decrypted card reference to the authorization
// engine and atomically consumes one-time tokens. A lost consume race
// surfaces as TOKEN_ALREADY_USED, never as a double resolve.
func (s *TokenService) Resolve(ctx context.Context, tokenID string) (domain.CardRef, string, error) {
	token, err := s.findToken(ctx, tokenID)
	if err != nil {
		return domain.CardRef{}, "", err
	}

	if err := token.Consumable(s.now()); err != nil {
		return domain.CardRef{}, "", err
	}

	if token.Kind == domain.TokenOneTime {
		if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
			if errors.Is(err, application.ErrConflict) {
				return domain.CardRef{}, "", domain.NewTokenAlreadyUsedError(token.ID)
			}
			return domain.CardRef{}, "", domain.NewInternalError(err)
		}
	}

	ref, err := s.encryptor.DecryptCard(token.EncryptedCardRef)
	if err != nil {
		return domain.CardRef{}, "", domain.NewInternalError(err)
	}
	return ref, token.EncryptedCardRef, nil
}

// Revoke invalidates a token ahead of its natural lifetime.
func (s *TokenService) Revoke(ctx context.Context, tokenID string) error {
	token, err := s.findToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Revoked {
		return nil
	}
	if err := s.tokens.Revoke(ctx, token.ID); err != nil {
		return domain.NewInternalError(err)
	}
	s.logger.Info("token revoked", "token_id", domain.MaskTokenID(token.ID))
	return nil
}

// Get returns token metadata. The encrypted card reference stays inside
// the vault; callers only ever see the safe fields.
func (s *TokenService) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	return s.findToken(ctx, tokenID)
}

func (s *TokenService) findToken(ctx context.Context, tokenID string) (*domain.Token, error) {
	token, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, application.ErrRecordNotFound) {
			return nil, domain.NewTokenNotFoundError(tokenID)
		}
		return nil, domain.NewInternalError(err)
	}
	return token, nil
}
