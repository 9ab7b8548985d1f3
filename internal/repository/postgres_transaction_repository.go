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

const transactionColumns = `id, user_id, subscription_id, amount, currency, status,
	stripe_payment_intent_id, description, created_at, updated_at`

// PostgresTransactionRepository stores the payment ledger in PostgreSQL.
type PostgresTransactionRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresTransactionRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{pool: pool, log: log}
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.SubscriptionID, &t.Amount, &t.Currency, &t.Status,
		&t.StripePaymentIntentID, &t.Description, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		txn.ID, txn.UserID, txn.SubscriptionID, txn.Amount, txn.Currency, txn.Status,
		txn.StripePaymentIntentID, txn.Description, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return domain.Transaction{}, domain.NewConflictError("transaction", "duplicate transaction id")
			case "23503":
				return domain.Transaction{}, domain.NewNotFoundError("subscription", txn.SubscriptionID.String())
			}
		}
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return txn, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.NewNotFoundError("transaction", id.String())
		}
		return domain.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *PostgresTransactionRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE stripe_payment_intent_id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, paymentIntentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.NewNotFoundError("transaction", paymentIntentID)
		}
		return domain.Transaction{}, fmt.Errorf("get transaction by payment intent: %w", err)
	}
	return t, nil
}

func (r *PostgresTransactionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *PostgresTransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("transaction", id.String())
	}
	return nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
