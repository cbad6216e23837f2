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

type WebhookRepository struct {
	db *DB
}

func NewWebhookRepository(db *DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) CreateEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	query := `
		INSERT INTO webhook_endpoints (id, merchant_id, url, secret, events, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		endpoint.ID,
		endpoint.MerchantID,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Events,
		endpoint.Enabled,
		endpoint.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook endpoint: %w", err)
	}
	return nil
}

func (r *WebhookRepository) FindEndpoint(ctx context.Context, id string) (*domain.WebhookEndpoint, error) {
	query := `
		SELECT id, merchant_id, url, secret, events, enabled, created_at
		FROM webhook_endpoints WHERE id = $1
	`

	var e domain.WebhookEndpoint
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.MerchantID, &e.URL, &e.Secret, &e.Events, &e.Enabled, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to find webhook endpoint: %w", err)
	}
	return &e, nil
}

func (r *WebhookRepository) ListEnabledEndpoints(ctx context.Context) ([]*domain.WebhookEndpoint, error) {
	query := `
		SELECT id, merchant_id, url, secret, events, enabled, created_at
		FROM webhook_endpoints WHERE enabled ORDER BY id
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookEndpoint
	for rows.Next() {
		var e domain.WebhookEndpoint
		if err := rows.Scan(&e.ID, &e.MerchantID, &e.URL, &e.Secret, &e.Events, &e.Enabled, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *WebhookRepository) Enqueue(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			id, endpoint_id, event_type, payload, status,
			attempt_count, next_attempt_at, created_at, delivered_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		event.EndpointID,
		string(event.Type),
		event.Payload,
		string(event.Status),
		event.AttemptCount,
		event.NextAttemptAt,
		event.CreatedAt,
		event.DeliveredAt,
		event.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue webhook event: %w", err)
	}
	return nil
}

func (r *WebhookRepository) FindEventByID(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	query := `
		SELECT id, endpoint_id, event_type, payload, status,
		       attempt_count, next_attempt_at, created_at, delivered_at, version
		FROM webhook_events WHERE id = $1
	`
	return scanWebhookEvent(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *WebhookRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.WebhookEvent, error) {
	query := `
		SELECT id, endpoint_id, event_type, payload, status,
		       attempt_count, next_attempt_at, created_at, delivered_at, version
		FROM webhook_events
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due webhook events: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// UpdateEvent records a delivery outcome under compare-and-set.
func (r *WebhookRepository) UpdateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		UPDATE webhook_events
		SET status = $2, attempt_count = $3, next_attempt_at = $4, delivered_at = $5,
		    version = version + 1
		WHERE id = $1 AND version = $6
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		string(event.Status),
		event.AttemptCount,
		event.NextAttemptAt,
		event.DeliveredAt,
		event.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrConflict
	}
	event.Version++
	return nil
}

func (r *WebhookRepository) RecordAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	query := `
		INSERT INTO webhook_delivery_attempts (id, event_id, attempt_number, http_status, error_message, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.EventID,
		attempt.AttemptNumber,
		attempt.HTTPStatus,
		attempt.ErrorMessage,
		attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func (r *WebhookRepository) ListAttempts(ctx context.Context, eventID string) ([]*domain.DeliveryAttempt, error) {
	query := `
		SELECT id, event_id, attempt_number, http_status, error_message, attempted_at
		FROM webhook_delivery_attempts
		WHERE event_id = $1
		ORDER BY attempt_number
	`

	rows, err := r.db.Pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	var out []*domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.EventID, &a.AttemptNumber, &a.HTTPStatus, &a.ErrorMessage, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var eventType, status string
	err := row.Scan(
		&e.ID,
		&e.EndpointID,
		&eventType,
		&e.Payload,
		&status,
		&e.AttemptCount,
		&e.NextAttemptAt,
		&e.CreatedAt,
		&e.DeliveredAt,
		&e.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan webhook event: %w", err)
	}
	e.Type = domain.EventType(eventType)
	e.Status = domain.DeliveryStatus(status)
	return &e, nil
}

var _ application.WebhookRepository = (*WebhookRepository)(nil)
