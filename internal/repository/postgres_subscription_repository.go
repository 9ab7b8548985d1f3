package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

const subscriptionColumns = `
	id, user_id, pack_id, status,
	current_period_start, current_period_end,
	cancelled_at, cancel_at_period_end,
	stripe_subscription_id,
	previous_pack_id, upgrade_from_subscription_id,
	created_at, updated_at
`

// PostgresSubscriptionRepository SubscriptionRepository backed by
// PostgreSQL.
type PostgresSubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresSubscriptionRepository creates a new PostgreSQL subscription
// repository
func NewPostgresSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db, log: log}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	var stripeID *string
	var previousPackID, upgradeFromID *uuid.UUID

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PackID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelledAt,
		&sub.CancelAtPeriodEnd,
		&stripeID,
		&previousPackID,
		&upgradeFromID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return domain.Subscription{}, err
	}

	if stripeID != nil {
		sub.StripeSubscriptionID = *stripeID
	}
	if previousPackID != nil && upgradeFromID != nil {
		sub.Upgrade = &domain.UpgradeOrigin{
			PreviousPackID:         *previousPackID,
			PreviousSubscriptionID: *upgradeFromID,
		}
	}
	return sub, nil
}

func subscriptionInsertArgs(sub domain.Subscription, now time.Time) []any {
	var stripeID *string
	if sub.StripeSubscriptionID != "" {
		stripeID = &sub.StripeSubscriptionID
	}
	var previousPackID, upgradeFromID *uuid.UUID
	if sub.Upgrade != nil {
		previousPackID = &sub.Upgrade.PreviousPackID
		upgradeFromID = &sub.Upgrade.PreviousSubscriptionID
	}
	return []any{
		sub.ID,
		sub.UserID,
		sub.PackID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelledAt,
		sub.CancelAtPeriodEnd,
		stripeID,
		previousPackID,
		upgradeFromID,
		now,
		now,
	}
}

const insertSubscriptionQuery = `
	INSERT INTO subscriptions (
		id, user_id, pack_id, status,
		current_period_start, current_period_end,
		cancelled_at, cancel_at_period_end,
		stripe_subscription_id,
		previous_pack_id, upgrade_from_subscription_id,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)
`

// GetByID returns a subscription by ID
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetByUserID returns all subscriptions of a user, newest first
func (r *PostgresSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// GetActiveByUserID returns the user's single live subscription
func (r *PostgresSubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID, now time.Time) (domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active' AND current_period_end > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return sub, nil
}

// GetByStripeID returns the subscription holding the given provider id
func (r *PostgresSubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1 ORDER BY created_at DESC LIMIT 1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, stripeSubscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to get subscription by stripe id: %w", err)
	}
	return sub, nil
}

// Update persists changes to an existing subscription
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET
			status = $1,
			current_period_start = $2,
			current_period_end = $3,
			cancelled_at = $4,
			cancel_at_period_end = $5,
			stripe_subscription_id = $6,
			updated_at = $7
		WHERE id = $8
	`

	var stripeID *string
	if sub.StripeSubscriptionID != "" {
		stripeID = &sub.StripeSubscriptionID
	}

	result, err := r.db.Exec(ctx, query,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelledAt,
		sub.CancelAtPeriodEnd,
		stripeID,
		time.Now(),
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// lockUserSubscriptions serializes all multi-row subscription writes for one
// user on a transaction-scoped advisory lock. Locking the user, not the rows,
// closes the gap where two concurrent activations both find no current row
// and both insert one.
func lockUserSubscriptions(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String()); err != nil {
		return fmt.Errorf("failed to lock user subscriptions: %w", err)
	}
	return nil
}

const cancelActiveForUserQuery = `
	UPDATE subscriptions
	SET status = 'cancelled', cancelled_at = $1, updated_at = $1
	WHERE user_id = $2 AND status = 'active'
`

// ActivateWithSupersede inserts the new ACTIVE subscription and cancels the
// user's current one in the same transaction. The current-row lookup runs
// inside the transaction under the per-user lock, so the cancel and the
// insert commit together or not at all and concurrent checkouts cannot
// leave two ACTIVE rows.
func (r *PostgresSubscriptionRepository) ActivateWithSupersede(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUserSubscriptions(ctx, tx, sub.UserID); err != nil {
		return domain.Subscription{}, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, cancelActiveForUserQuery, now, sub.UserID); err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to cancel superseded subscription: %w", err)
	}

	sub.CreatedAt = now
	sub.UpdatedAt = now
	if _, err := tx.Exec(ctx, insertSubscriptionQuery, subscriptionInsertArgs(sub, now)...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.Subscription{}, domain.ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to commit activation: %w", err)
	}
	return sub, nil
}

// RefundUnwind atomically flips the ledger row to REFUNDED, cancels the
// user's current ACTIVE subscription and, when restore is non-nil, inserts
// the restored previous-pack subscription. The cancel is located inside the
// transaction under the same per-user lock as activation, so a refund racing
// an upgrade completion sees one consistent current row.
func (r *PostgresSubscriptionRepository) RefundUnwind(ctx context.Context, transactionID, userID uuid.UUID, restore *domain.Subscription) (*domain.Subscription, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUserSubscriptions(ctx, tx, userID); err != nil {
		return nil, err
	}

	now := time.Now()

	result, err := tx.Exec(ctx,
		`UPDATE transactions SET status = 'refunded', updated_at = $1 WHERE id = $2`,
		now, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark transaction refunded: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}

	result, err = tx.Exec(ctx, cancelActiveForUserQuery, now, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel refunded subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}

	var restored *domain.Subscription
	if restore != nil {
		rc := *restore
		rc.CreatedAt = now
		rc.UpdatedAt = now
		if _, err := tx.Exec(ctx, insertSubscriptionQuery, subscriptionInsertArgs(rc, now)...); err != nil {
			return nil, fmt.Errorf("failed to insert restored subscription: %w", err)
		}
		restored = &rc
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit refund unwind: %w", err)
	}
	return restored, nil
}

// ListExpired returns every ACTIVE subscription past its period end.
// No lower bound on current_period_end: a backlog accumulated during
// downtime is swept in full.
func (r *PostgresSubscriptionRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active' AND current_period_end <= $1
		ORDER BY current_period_end ASC
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// ListExpiringBetween returns ACTIVE subscriptions ending in [from, to)
func (r *PostgresSubscriptionRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active' AND current_period_end >= $1 AND current_period_end < $2
		ORDER BY current_period_end ASC
	`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// MarkExpired transitions an ACTIVE subscription to EXPIRED. The status
// filter makes a second sweep over the same row a no-op.
func (r *PostgresSubscriptionRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET status = 'expired', updated_at = $1
		WHERE id = $2 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark subscription expired: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}
