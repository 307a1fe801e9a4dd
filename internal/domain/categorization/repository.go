package categorization

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Category is a spending category owned by the category store.
type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads categories from Postgres.
type Repository struct {
	db Querier
}

// NewRepository creates a new category repository
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const listCategoriesQuery = `
	SELECT id, name
	FROM categories
	ORDER BY id`

// ListCategories returns all categories in id order.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, listCategoriesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}
