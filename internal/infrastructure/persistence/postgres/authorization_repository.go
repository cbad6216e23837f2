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

const authorizationColumns = `
	id, token_id, amount_cents, currency, status, idempotency_key,
	auth_code, decline_code, captured_cents, refunded_cents, card_ref_cipher,
	created_at, authorized_at, captured_at, voided_at, expires_at, version`

type AuthorizationRepository struct {
	db *DB
}

func NewAuthorizationRepository(db *DB) *AuthorizationRepository {
	return &AuthorizationRepository{db: db}
}

func (r *AuthorizationRepository) Create(ctx context.Context, auth *domain.Authorization) error {
	query := `
		INSERT INTO authorizations (` + authorizationColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		auth.ID,
		auth.TokenID,
		auth.AmountCents,
		auth.Currency,
		string(auth.Status),
		auth.IdempotencyKey,
		auth.AuthCode,
		auth.DeclineCode,
		auth.CapturedCents,
		auth.RefundedCents,
		auth.CardRefCipher,
		auth.CreatedAt,
		auth.AuthorizedAt,
		auth.CapturedAt,
		auth.VoidedAt,
		auth.ExpiresAt,
		auth.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization: %w", err)
	}
	return nil
}

func (r *AuthorizationRepository) FindByID(ctx context.Context, id string) (*domain.Authorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM authorizations WHERE id = $1`
	return scanAuthorization(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AuthorizationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Authorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM authorizations WHERE idempotency_key = $1`
	return scanAuthorization(r.db.Pool.QueryRow(ctx, query, key))
}

// Update writes the authorization if the stored version still matches.
// A zero-row update means another writer got there first.
func (r *AuthorizationRepository) Update(ctx context.Context, auth *domain.Authorization) error {
	query := `
		UPDATE authorizations SET
			status = $2, auth_code = $3, decline_code = $4,
			captured_cents = $5, refunded_cents = $6, card_ref_cipher = $7,
			authorized_at = $8, captured_at = $9, voided_at = $10, expires_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $12
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		auth.ID,
		string(auth.Status),
		auth.AuthCode,
		auth.DeclineCode,
		auth.CapturedCents,
		auth.RefundedCents,
		auth.CardRefCipher,
		auth.AuthorizedAt,
		auth.CapturedAt,
		auth.VoidedAt,
		auth.ExpiresAt,
		auth.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update authorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrConflict
	}
	auth.Version++
	return nil
}

func (r *AuthorizationRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Authorization, error) {
	query := `
		SELECT ` + authorizationColumns + `
		FROM authorizations
		WHERE status = 'AUTHORIZED' AND captured_cents = 0 AND expires_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer rows.Close()

	var out []*domain.Authorization
	for rows.Next() {
		auth, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, auth)
	}
	return out, rows.Err()
}

func scanAuthorization(row pgx.Row) (*domain.Authorization, error) {
	var a domain.Authorization
	var status string
	err := row.Scan(
		&a.ID,
		&a.TokenID,
		&a.AmountCents,
		&a.Currency,
		&status,
		&a.IdempotencyKey,
		&a.AuthCode,
		&a.DeclineCode,
		&a.CapturedCents,
		&a.RefundedCents,
		&a.CardRefCipher,
		&a.CreatedAt,
		&a.AuthorizedAt,
		&a.CapturedAt,
		&a.VoidedAt,
		&a.ExpiresAt,
		&a.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan authorization: %w", err)
	}
	a.Status = domain.AuthorizationStatus(status)
	return &a, nil
}

type RefundRepository struct {
	db *DB
}

func NewRefundRepository(db *DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *domain.Refund) error {
	query := `
		INSERT INTO refunds (id, authorization_id, amount_cents, currency, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		refund.ID,
		refund.AuthorizationID,
		refund.AmountCents,
		refund.Currency,
		refund.IdempotencyKey,
		refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

func (r *RefundRepository) ListByAuthorization(ctx context.Context, authorizationID string) ([]*domain.Refund, error) {
	query := `
		SELECT id, authorization_id, amount_cents, currency, idempotency_key, created_at
		FROM refunds WHERE authorization_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, authorizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer rows.Close()

	var out []*domain.Refund
	for rows.Next() {
		var ref domain.Refund
		if err := rows.Scan(
			&ref.ID,
			&ref.AuthorizationID,
			&ref.AmountCents,
			&ref.Currency,
			&ref.IdempotencyKey,
			&ref.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		out = append(out, &ref)
	}
	return out, rows.Err()
}

var (
	_ application.AuthorizationRepository = (*AuthorizationRepository)(nil)
	_ application.RefundRepository        = (*RefundRepository)(nil)
)
