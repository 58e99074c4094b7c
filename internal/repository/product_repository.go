package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// sortColumns whitelists the user-facing sort keys.
var sortColumns = map[string]string{
	"created_at": "p.created_at",
	"price":      "p.price",
	"rating":     "p.rating_average",
	"sold":       "p.sold",
	"name":       "p.name",
	"views":      "p.views",
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id, merchantID uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter, page domain.Page, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error)
	UpdateStock(ctx context.Context, id, merchantID uuid.UUID, op domain.StockOperation, quantity int) (*domain.Product, error)
	UpdateFreshness(ctx context.Context, id uuid.UUID, score int, analyzedAt time.Time, expiry *time.Time, storage *string) (*domain.Product, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
	AddRating(ctx context.Context, id uuid.UUID, rating int) (*domain.Product, error)
	LowStock(ctx context.Context, merchantID uuid.UUID, threshold, limit int) ([]*domain.Product, error)
	TopSelling(ctx context.Context, merchantID *uuid.UUID, limit int) ([]*domain.Product, error)
	ListByCategories(ctx context.Context, categories []domain.Category, limit int) ([]*domain.Product, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `p.id, p.merchant_id, p.name, p.description, p.price, p.original_price, p.discount,
	p.category, p.image_url, p.stock, p.unit, p.min_stock, p.status, p.freshness_score,
	p.freshness_analyzed_at, p.expiry_date, p.storage_instructions, p.views, p.sold,
	p.rating_average, p.rating_count, p.featured, p.organic, p.locally_sourced, p.tags,
	p.created_at, p.updated_at`

// statusForStock re-derives status from a stock expression inside UPDATE.
func statusForStock(stockExpr string) string {
	return fmt.Sprintf(`CASE WHEN %[1]s <= 0 THEN 'out_of_stock'
		WHEN status IN ('inactive', 'discontinued') THEN status
		ELSE 'active' END`, stockExpr)
}

func productScanTargets(product *domain.Product) []interface{} {
	return []interface{}{
		&product.ID,
		&product.MerchantID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.OriginalPrice,
		&product.Discount,
		&product.Category,
		&product.ImageURL,
		&product.Stock,
		&product.Unit,
		&product.MinStock,
		&product.Status,
		&product.FreshnessScore,
		&product.FreshnessAnalyzedAt,
		&product.ExpiryDate,
		&product.StorageInstructions,
		&product.Views,
		&product.Sold,
		&product.RatingAverage,
		&product.RatingCount,
		&product.Featured,
		&product.Organic,
		&product.LocallySourced,
		jsonColumn{&product.Tags},
		&product.CreatedAt,
		&product.UpdatedAt,
	}
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	if err := row.Scan(productScanTargets(product)...); err != nil {
		return nil, err
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}
	return product, nil
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

func tagsJSON(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	return toJSON(tags)
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, merchant_id, name, description, price, original_price, discount, category,
			image_url, stock, unit, min_stock, status, freshness_score, expiry_date, storage_instructions,
			featured, organic, locally_sourced, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	tags, err := tagsJSON(product.Tags)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.MerchantID,
		product.Name,
		product.Description,
		product.Price,
		product.OriginalPrice,
		product.Discount,
		product.Category,
		product.ImageURL,
		product.Stock,
		product.Unit,
		product.MinStock,
		product.Status,
		product.FreshnessScore,
		product.ExpiryDate,
		product.StorageInstructions,
		product.Featured,
		product.Organic,
		product.LocallySourced,
		tags,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update rewrites the merchant-editable fields of a product the merchant owns.
// Stock is not touched here; status is re-derived against the current stock.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		UPDATE products AS p
		SET name = $3, description = $4, price = $5, original_price = $6, discount = $7,
			category = $8, image_url = $9, unit = $10, min_stock = $11,
			status = CASE WHEN stock <= 0 THEN 'out_of_stock'
				WHEN $12::text IN ('inactive', 'discontinued') THEN $12::text
				ELSE 'active' END,
			storage_instructions = $13, featured = $14, organic = $15, locally_sourced = $16,
			tags = $17, expiry_date = $18
		WHERE id = $1 AND merchant_id = $2
		RETURNING ` + productColumns

	tags, err := tagsJSON(product.Tags)
	if err != nil {
		return nil, err
	}

	updated, err := scanProduct(r.db.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.MerchantID,
		product.Name,
		product.Description,
		product.Price,
		product.OriginalPrice,
		product.Discount,
		product.Category,
		product.ImageURL,
		product.Unit,
		product.MinStock,
		string(product.Status),
		product.StorageInstructions,
		product.Featured,
		product.Organic,
		product.LocallySourced,
		tags,
		product.ExpiryDate,
	))

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return updated, nil
}

// Delete removes a product owned by merchantID.
func (r *productRepository) Delete(ctx context.Context, id, merchantID uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1 AND merchant_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, merchantID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return findProduct(ctx, r.db, id)
}

func findProduct(ctx context.Context, q dbtx, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// List retrieves products matching filter with pagination and sorting
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter, page domain.Page, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error) {
	orderColumn, ok := sortColumns[sortBy]
	if !ok {
		orderColumn = sortColumns["created_at"]
	}

	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	conditions := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case filter.Status != "":
		conditions = append(conditions, "p.status = "+arg(string(filter.Status)))
	case !filter.IncludeHidden:
		conditions = append(conditions, "p.status = 'active'")
	}
	if filter.Category != "" {
		conditions = append(conditions, "p.category = "+arg(string(filter.Category)))
	}
	if filter.MerchantID != nil {
		conditions = append(conditions, "p.merchant_id = "+arg(*filter.MerchantID))
	}
	if filter.Featured {
		conditions = append(conditions, "p.featured = TRUE")
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, "p.price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, "p.price <= "+arg(*filter.MaxPrice))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := arg("%" + q + "%")
		conditions = append(conditions, fmt.Sprintf("(p.name ILIKE %[1]s OR p.description ILIKE %[1]s OR p.tags::text ILIKE %[1]s)", pattern))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM products p " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM products p
		%s
		ORDER BY %s %s, p.id
		LIMIT %s OFFSET %s
	`, productColumns, whereClause, orderColumn, sortOrder, arg(page.Limit), arg(page.Offset()))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// UpdateStock applies a set/add/subtract in one statement, flooring at zero
// and re-deriving status.
func (r *productRepository) UpdateStock(ctx context.Context, id, merchantID uuid.UUID, op domain.StockOperation, quantity int) (*domain.Product, error) {
	query := `
		WITH next AS (
			SELECT id, GREATEST(CASE $3::text
				WHEN 'add' THEN stock + $4
				WHEN 'subtract' THEN stock - $4
				ELSE $4 END, 0) AS stock
			FROM products
			WHERE id = $1 AND merchant_id = $2
			FOR UPDATE
		)
		UPDATE products AS p
		SET stock = next.stock, status = ` + statusForStock("next.stock") + `
		FROM next
		WHERE p.id = next.id
		RETURNING ` + productColumns

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id, merchantID, string(op), quantity))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	return product, nil
}

func (r *productRepository) UpdateFreshness(ctx context.Context, id uuid.UUID, score int, analyzedAt time.Time, expiry *time.Time, storage *string) (*domain.Product, error) {
	query := `
		UPDATE products AS p
		SET freshness_score = $2, freshness_analyzed_at = $3,
			expiry_date = COALESCE($4, expiry_date),
			storage_instructions = COALESCE($5, storage_instructions)
		WHERE id = $1
		RETURNING ` + productColumns

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id, score, analyzedAt, expiry, storage))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update freshness: %w", err)
	}

	return product, nil
}

func (r *productRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE products SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// AddRating folds a rating into the running average atomically.
func (r *productRepository) AddRating(ctx context.Context, id uuid.UUID, rating int) (*domain.Product, error) {
	query := `
		UPDATE products AS p
		SET rating_average = ROUND((rating_average * rating_count + $2) / (rating_count + 1), 1),
			rating_count = rating_count + 1
		WHERE id = $1
		RETURNING ` + productColumns

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id, rating))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to rate product: %w", err)
	}

	return product, nil
}

// LowStock lists a merchant's active products at or below threshold.
func (r *productRepository) LowStock(ctx context.Context, merchantID uuid.UUID, threshold, limit int) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		WHERE p.merchant_id = $1 AND p.status = 'active' AND p.stock <= $2
		ORDER BY p.stock ASC, p.name ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	return scanProducts(rows)
}

// TopSelling orders by units sold, optionally scoped to one merchant.
func (r *productRepository) TopSelling(ctx context.Context, merchantID *uuid.UUID, limit int) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		WHERE ($1::uuid IS NULL OR p.merchant_id = $1::uuid) AND p.status <> 'discontinued'
		ORDER BY p.sold DESC, p.rating_average DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top selling products: %w", err)
	}
	return scanProducts(rows)
}

// ListByCategories returns the best rated active products in any of categories.
func (r *productRepository) ListByCategories(ctx context.Context, categories []domain.Category, limit int) ([]*domain.Product, error) {
	if len(categories) == 0 {
		return []*domain.Product{}, nil
	}

	placeholders := make([]string, len(categories))
	args := make([]interface{}, 0, len(categories)+1)
	for i, c := range categories {
		args = append(args, string(c))
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM products p
		WHERE p.status = 'active' AND p.category IN (%s)
		ORDER BY p.rating_average DESC, p.sold DESC
		LIMIT $%d
	`, productColumns, strings.Join(placeholders, ", "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products by category: %w", err)
	}
	return scanProducts(rows)
}
