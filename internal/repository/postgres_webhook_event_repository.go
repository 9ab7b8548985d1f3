package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

const webhookEventColumns = `id, provider, event_id, event_type, payload, processed,
	retry_count, error, created_at, updated_at, processed_at`

// PostgresWebhookEventRepository persists the webhook event log in PostgreSQL.
// The (provider, event_id) pair carries a unique constraint so replayed
// deliveries land on the same row.
type PostgresWebhookEventRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresWebhookEventRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{pool: pool, log: log}
}

func scanWebhookEvent(row rowScanner) (domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	err := row.Scan(
		&e.ID, &e.Provider, &e.EventID, &e.EventType, &e.Payload, &e.Processed,
		&e.RetryCount, &e.Error, &e.CreatedAt, &e.UpdatedAt, &e.ProcessedAt,
	)
	return e, err
}

// Upsert records a webhook delivery. A first delivery inserts a fresh row and
// reports duplicate=false. A redelivery of the same provider event bumps
// retry_count on the existing row and reports duplicate=true.
func (r *PostgresWebhookEventRepository) Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO webhook_events (` + webhookEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, false, 0, '', $6, $6, NULL)
		ON CONFLICT (provider, event_id)
		DO UPDATE SET retry_count = webhook_events.retry_count + 1, updated_at = $6
		RETURNING ` + webhookEventColumns + `, (xmax <> 0) AS duplicate`

	var (
		e         domain.WebhookEvent
		duplicate bool
	)
	err := r.pool.QueryRow(ctx, query,
		event.ID, event.Provider, event.EventID, event.EventType, event.Payload, now,
	).Scan(
		&e.ID, &e.Provider, &e.EventID, &e.EventType, &e.Payload, &e.Processed,
		&e.RetryCount, &e.Error, &e.CreatedAt, &e.UpdatedAt, &e.ProcessedAt,
		&duplicate,
	)
	if err != nil {
		return domain.WebhookEvent{}, false, fmt.Errorf("upsert webhook event: %w", err)
	}
	return e, duplicate, nil
}

func (r *PostgresWebhookEventRepository) GetByEventID(ctx context.Context, provider, eventID string) (domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events
		WHERE provider = $1 AND event_id = $2`

	e, err := scanWebhookEvent(r.pool.QueryRow(ctx, query, provider, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookEvent{}, domain.NewNotFoundError("webhook event", eventID)
		}
		return domain.WebhookEvent{}, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

func (r *PostgresWebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1`

	e, err := scanWebhookEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WebhookEvent{}, domain.NewNotFoundError("webhook event", id.String())
		}
		return domain.WebhookEvent{}, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

func (r *PostgresWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `UPDATE webhook_events
		SET processed = true, error = '', processed_at = $2, updated_at = $2
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("webhook event", id.String())
	}
	return nil
}

func (r *PostgresWebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, processingErr string) error {
	query := `UPDATE webhook_events
		SET processed = false, error = $2, updated_at = $3
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, processingErr, time.Now())
	if err != nil {
		return fmt.Errorf("mark webhook event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("webhook event", id.String())
	}
	return nil
}

func (r *PostgresWebhookEventRepository) List(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}
	return out, nil
}
