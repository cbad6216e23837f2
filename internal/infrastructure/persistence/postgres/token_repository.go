package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clearroute/payment-core/internal/application"
	"github.com/clearroute/payment-core/internal/domain"
)

type TokenRepository struct {
	db *DB
}

func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token *domain.Token) error {
	query := `
		INSERT INTO tokens (
			id, encrypted_card_ref, last_four, brand, exp_month, exp_year,
			fingerprint, kind, used, revoked, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		token.ID,
		token.EncryptedCardRef,
		token.LastFour,
		string(token.Brand),
		token.ExpMonth,
		token.ExpYear,
		token.Fingerprint,
		string(token.Kind),
		token.Used,
		token.Revoked,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindByID(ctx context.Context, id string) (*domain.Token, error) {
	query := `
		SELECT id, encrypted_card_ref, last_four, brand, exp_month, exp_year,
		       fingerprint, kind, used, revoked, created_at, expires_at
		FROM tokens WHERE id = $1
	`

	var t domain.Token
	var brand, kind string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.EncryptedCardRef,
		&t.LastFour,
		&brand,
		&t.ExpMonth,
		&t.ExpYear,
		&t.Fingerprint,
		&kind,
		&t.Used,
		&t.Revoked,
		&t.CreatedAt,
		&t.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	t.Brand = domain.CardBrand(brand)
	t.Kind = domain.TokenKind(kind)
	return &t, nil
}

// MarkUsed consumes a one-time token. The used=false predicate makes
// the consume atomic: exactly one concurrent caller sees a row update.
func (r *TokenRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE tokens SET used = TRUE WHERE id = $1 AND used = FALSE`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrConflict
	}
	return nil
}

func (r *TokenRepository) Revoke(ctx context.Context, id string) error {
	query := `UPDATE tokens SET revoked = TRUE WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrRecordNotFound
	}
	return nil
}

func (r *TokenRepository) DeleteExpiredOneTime(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM tokens WHERE kind = 'one_time' AND expires_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ application.TokenRepository = (*TokenRepository)(nil)
