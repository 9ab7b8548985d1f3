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

const userColumns = `id, email, preferred_language, status, stripe_customer_id,
	telegram_user_id, created_at, updated_at`

// PostgresUserRepository reads the user directory from PostgreSQL.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresUserRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool, log: log}
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PreferredLanguage, &u.Status, &u.StripeCustomerID,
		&u.TelegramUserID, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.NewNotFoundError("user", id.String())
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.NewNotFoundError("user", customerID)
		}
		return domain.User{}, fmt.Errorf("get user by customer id: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	query := `UPDATE users SET stripe_customer_id = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, customerID, time.Now())
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("user", userID.String())
	}
	return nil
}
