package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fresh-market/internal/domain"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
)

// CategoryRepository reads the seeded categories reference table.
type CategoryRepository interface {
	List(ctx context.Context) ([]*domain.CategoryInfo, error)
	FindBySlug(ctx context.Context, slug domain.Category) (*domain.CategoryInfo, error)
}

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// List returns every category with its count of active products.
func (r *categoryRepository) List(ctx context.Context) ([]*domain.CategoryInfo, error) {
	query := `
		SELECT c.slug, c.name, c.description, COUNT(p.id)
		FROM categories c
		LEFT JOIN products p ON p.category = c.slug AND p.status = 'active'
		GROUP BY c.slug, c.name, c.description
		ORDER BY c.name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []*domain.CategoryInfo{}
	for rows.Next() {
		category := &domain.CategoryInfo{}
		if err := rows.Scan(&category.Slug, &category.Name, &category.Description, &category.ProductCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

func (r *categoryRepository) FindBySlug(ctx context.Context, slug domain.Category) (*domain.CategoryInfo, error) {
	query := `
		SELECT c.slug, c.name, c.description,
			(SELECT COUNT(*) FROM products p WHERE p.category = c.slug AND p.status = 'active')
		FROM categories c
		WHERE c.slug = $1
	`

	category := &domain.CategoryInfo{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&category.Slug,
		&category.Name,
		&category.Description,
		&category.ProductCount,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find category: %w", err)
	}

	return category, nil
}
