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

type IdempotencyRepository struct {
	db *DB
}

func NewIdempotencyRepository(db *DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Insert acquires the key. The primary key constraint arbitrates races
// between concurrent callers.
func (r *IdempotencyRepository) Insert(ctx context.Context, record *domain.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (
			key, request_hash, status, resource_id, response_body,
			error_code, error_message, locked_at, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		record.Key,
		record.RequestHash,
		string(record.Status),
		record.ResourceID,
		record.ResponseBody,
		record.ErrorCode,
		record.ErrorMessage,
		record.LockedAt,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return application.ErrKeyExists
		}
		return fmt.Errorf("failed to insert idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT key, request_hash, status, resource_id, response_body,
		       error_code, error_message, locked_at, created_at, expires_at
		FROM idempotency_records WHERE key = $1
	`

	var rec domain.IdempotencyRecord
	var status string
	var resourceID *string
	err := r.db.Pool.QueryRow(ctx, query, key).Scan(
		&rec.Key,
		&rec.RequestHash,
		&status,
		&resourceID,
		&rec.ResponseBody,
		&rec.ErrorCode,
		&rec.ErrorMessage,
		&rec.LockedAt,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to find idempotency record: %w", err)
	}
	rec.Status = domain.IdempotencyStatus(status)
	if resourceID != nil {
		rec.ResourceID = *resourceID
	}
	return &rec, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, key, resourceID string, responseBody []byte) error {
	query := `
		UPDATE idempotency_records
		SET status = $2, resource_id = $3, response_body = $4, locked_at = NULL
		WHERE key = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, key, string(domain.IdempotencyCompleted), resourceID, responseBody)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrRecordNotFound
	}
	return nil
}

func (r *IdempotencyRepository) Fail(ctx context.Context, key, errorCode, errorMessage string) error {
	query := `
		UPDATE idempotency_records
		SET status = $2, error_code = $3, error_message = $4, locked_at = NULL
		WHERE key = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, key, string(domain.IdempotencyFailed), errorCode, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to store idempotency failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrRecordNotFound
	}
	return nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ application.IdempotencyRepository = (*IdempotencyRepository)(nil)
