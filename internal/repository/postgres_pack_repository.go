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

const packColumns = `id, name, price_monthly, currency, is_free, display_order, is_active, created_at, updated_at`

// PostgresPackRepository PackRepository backed by PostgreSQL.
type PostgresPackRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresPackRepository creates a new PostgreSQL pack repository
func NewPostgresPackRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPackRepository {
	return &PostgresPackRepository{db: db, log: log}
}

func scanPack(row rowScanner) (domain.Pack, error) {
	var pack domain.Pack
	err := row.Scan(
		&pack.ID,
		&pack.Name,
		&pack.PriceMonthly,
		&pack.Currency,
		&pack.IsFree,
		&pack.DisplayOrder,
		&pack.IsActive,
		&pack.CreatedAt,
		&pack.UpdatedAt,
	)
	return pack, err
}

// GetByID returns a pack by ID
func (r *PostgresPackRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Pack, error) {
	query := `SELECT ` + packColumns + ` FROM packs WHERE id = $1`

	pack, err := scanPack(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pack{}, domain.ErrNotFound
		}
		return domain.Pack{}, fmt.Errorf("failed to get pack: %w", err)
	}
	return pack, nil
}

// List returns all packs ordered by display order
func (r *PostgresPackRepository) List(ctx context.Context) ([]domain.Pack, error) {
	query := `SELECT ` + packColumns + ` FROM packs ORDER BY display_order ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query packs: %w", err)
	}
	defer rows.Close()

	return collectPacks(rows)
}

// ListFree returns every active free pack
func (r *PostgresPackRepository) ListFree(ctx context.Context) ([]domain.Pack, error) {
	query := `SELECT ` + packColumns + ` FROM packs WHERE is_free = TRUE AND is_active = TRUE ORDER BY display_order ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query free packs: %w", err)
	}
	defer rows.Close()

	return collectPacks(rows)
}

// Create stores a new pack
func (r *PostgresPackRepository) Create(ctx context.Context, pack domain.Pack) (domain.Pack, error) {
	query := `
		INSERT INTO packs (` + packColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now()
	pack.CreatedAt = now
	pack.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		pack.ID,
		pack.Name,
		pack.PriceMonthly,
		pack.Currency,
		pack.IsFree,
		pack.DisplayOrder,
		pack.IsActive,
		pack.CreatedAt,
		pack.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Pack{}, domain.ErrConflict
		}
		return domain.Pack{}, fmt.Errorf("failed to create pack: %w", err)
	}
	return pack, nil
}

// ListHierarchyEdges returns the full pack-inclusion edge set
func (r *PostgresPackRepository) ListHierarchyEdges(ctx context.Context) ([]domain.PackHierarchyEdge, error) {
	query := `SELECT pack_id, includes_pack_id FROM pack_hierarchy`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pack hierarchy: %w", err)
	}
	defer rows.Close()

	var edges []domain.PackHierarchyEdge
	for rows.Next() {
		var edge domain.PackHierarchyEdge
		if err := rows.Scan(&edge.PackID, &edge.IncludesPackID); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy edge: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pack hierarchy: %w", err)
	}
	return edges, nil
}

// AddHierarchyEdge inserts an inclusion edge
func (r *PostgresPackRepository) AddHierarchyEdge(ctx context.Context, edge domain.PackHierarchyEdge) error {
	query := `INSERT INTO pack_hierarchy (pack_id, includes_pack_id) VALUES ($1, $2)`

	_, err := r.db.Exec(ctx, query, edge.PackID, edge.IncludesPackID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return domain.ErrConflict
			case "23503":
				return domain.ErrNotFound
			}
		}
		return fmt.Errorf("failed to add hierarchy edge: %w", err)
	}
	return nil
}

// RemoveHierarchyEdge deletes an inclusion edge
func (r *PostgresPackRepository) RemoveHierarchyEdge(ctx context.Context, edge domain.PackHierarchyEdge) error {
	query := `DELETE FROM pack_hierarchy WHERE pack_id = $1 AND includes_pack_id = $2`

	result, err := r.db.Exec(ctx, query, edge.PackID, edge.IncludesPackID)
	if err != nil {
		return fmt.Errorf("failed to remove hierarchy edge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListCategoriesForPacks returns the categories linked to any of the given
// packs, without duplicates
func (r *PostgresPackRepository) ListCategoriesForPacks(ctx context.Context, packIDs []uuid.UUID) ([]domain.Category, error) {
	if len(packIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT c.id, c.name, c.standard_bet, c.telegram_notifications, c.is_active, c.created_at, c.updated_at
		FROM categories c
		JOIN pack_categories pc ON pc.category_id = c.id
		WHERE pc.pack_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, packIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query pack categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var cat domain.Category
		err := rows.Scan(
			&cat.ID,
			&cat.Name,
			&cat.StandardBet,
			&cat.TelegramNotifications,
			&cat.IsActive,
			&cat.CreatedAt,
			&cat.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// GetCategory returns a category by ID
func (r *PostgresPackRepository) GetCategory(ctx context.Context, id uuid.UUID) (domain.Category, error) {
	query := `
		SELECT id, name, standard_bet, telegram_notifications, is_active, created_at, updated_at
		FROM categories
		WHERE id = $1
	`

	var cat domain.Category
	err := r.db.QueryRow(ctx, query, id).Scan(
		&cat.ID,
		&cat.Name,
		&cat.StandardBet,
		&cat.TelegramNotifications,
		&cat.IsActive,
		&cat.CreatedAt,
		&cat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Category{}, domain.ErrNotFound
		}
		return domain.Category{}, fmt.Errorf("failed to get category: %w", err)
	}
	return cat, nil
}

// LinkCategory attaches a category to a pack
func (r *PostgresPackRepository) LinkCategory(ctx context.Context, link domain.PackCategory) error {
	query := `INSERT INTO pack_categories (pack_id, category_id) VALUES ($1, $2)`

	_, err := r.db.Exec(ctx, query, link.PackID, link.CategoryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return domain.ErrConflict
			case "23503":
				return domain.ErrNotFound
			}
		}
		return fmt.Errorf("failed to link category: %w", err)
	}
	return nil
}

func collectPacks(rows pgx.Rows) ([]domain.Pack, error) {
	var packs []domain.Pack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pack: %w", err)
		}
		packs = append(packs, pack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packs: %w", err)
	}
	return packs, nil
}
