package categories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brodesk/brodesk/internal/platform/db"
	"github.com/brodesk/brodesk/internal/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Category, error)
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name, description string) (Category, error)
	Delete(ctx context.Context, id uuid.UUID) (Category, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, shared.WrapStore("list categories", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, shared.WrapStore("scan category", err)
		}
		categories = append(categories, c)
	}
	return categories, shared.WrapStore("list categories", rows.Err())
}

func (r *repository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, shared.WrapStore("check category", err)
	}
	return exists, nil
}

func (r *repository) Create(ctx context.Context, name, description string) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description) VALUES ($1, $2)
RETURNING id, name, description, created_at`, name, description).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Category{}, shared.ErrDuplicate
		}
		return Category{}, shared.WrapStore("create category", err)
	}
	return c, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `DELETE FROM categories WHERE id = $1
RETURNING id, name, description, created_at`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Category{}, shared.ErrNotFound
		case db.IsForeignKeyViolation(err):
			return Category{}, ErrCategoryInUse
		}
		return Category{}, shared.WrapStore("delete category", err)
	}
	return c, nil
}
