package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
)

// DashboardRepository runs the read-only aggregates behind the dashboards.
// Each method is a single query so callers can fan them out concurrently.
type DashboardRepository interface {
	CustomerStats(ctx context.Context, customerID uuid.UUID) (domain.CustomerStats, error)
	PreferredCategories(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.Category, error)
	MerchantProductStats(ctx context.Context, merchantID uuid.UUID) (domain.MerchantStats, error)
	MerchantOrderStats(ctx context.Context, merchantID uuid.UUID, monthStart time.Time) (domain.MerchantStats, error)
	MerchantRevenueByDay(ctx context.Context, merchantID uuid.UUID, since time.Time) ([]domain.DailyRevenue, error)
	MerchantCategoryPerformance(ctx context.Context, merchantID uuid.UUID) ([]domain.CategoryPerformance, error)
	MerchantCustomers(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantCustomer, error)
	AdminStats(ctx context.Context) (domain.AdminStats, error)
	CategoryStats(ctx context.Context) ([]domain.CategoryStat, error)
}

type dashboardRepository struct {
	db *sql.DB
}

func NewDashboardRepository(db *sql.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

func (r *dashboardRepository) CustomerStats(ctx context.Context, customerID uuid.UUID) (domain.CustomerStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('pending', 'confirmed', 'processing')),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COALESCE(SUM(total) FILTER (WHERE status = 'delivered'), 0)
		FROM orders
		WHERE customer_id = $1
	`

	var stats domain.CustomerStats
	err := r.db.QueryRowContext(ctx, query, customerID).Scan(
		&stats.TotalOrders,
		&stats.PendingOrders,
		&stats.CompletedOrders,
		&stats.TotalSpent,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to load customer stats: %w", err)
	}
	return stats, nil
}

// PreferredCategories ranks categories by how many order lines the customer
// has placed in them.
func (r *dashboardRepository) PreferredCategories(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.Category, error) {
	query := `
		SELECT p.category
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.customer_id = $1
		GROUP BY p.category
		ORDER BY COUNT(*) DESC, p.category ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferred categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// MerchantProductStats fills only the product counters of MerchantStats.
func (r *dashboardRepository) MerchantProductStats(ctx context.Context, merchantID uuid.UUID) (domain.MerchantStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status <> 'discontinued'),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'out_of_stock')
		FROM products
		WHERE merchant_id = $1
	`

	var stats domain.MerchantStats
	err := r.db.QueryRowContext(ctx, query, merchantID).Scan(
		&stats.TotalProducts,
		&stats.ActiveProducts,
		&stats.OutOfStockProducts,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to load merchant product stats: %w", err)
	}
	return stats, nil
}

// MerchantOrderStats fills the order counters and the revenue from the
// merchant's own lines on orders delivered since monthStart.
func (r *dashboardRepository) MerchantOrderStats(ctx context.Context, merchantID uuid.UUID, monthStart time.Time) (domain.MerchantStats, error) {
	query := `
		WITH merchant_orders AS (
			SELECT o.id, o.status, o.created_at
			FROM orders o
			WHERE EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.merchant_id = $1)
		)
		SELECT
			(SELECT COUNT(*) FROM merchant_orders),
			(SELECT COUNT(*) FROM merchant_orders WHERE status IN ('pending', 'confirmed')),
			(SELECT COUNT(*) FROM merchant_orders WHERE status = 'delivered'),
			COALESCE((
				SELECT SUM(oi.price * oi.quantity)
				FROM order_items oi
				JOIN merchant_orders mo ON mo.id = oi.order_id
				WHERE oi.merchant_id = $1 AND mo.status = 'delivered' AND mo.created_at >= $2
			), 0)
	`

	var stats domain.MerchantStats
	err := r.db.QueryRowContext(ctx, query, merchantID, monthStart).Scan(
		&stats.TotalOrders,
		&stats.PendingOrders,
		&stats.CompletedOrders,
		&stats.MonthlyRevenue,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to load merchant order stats: %w", err)
	}
	return stats, nil
}

// MerchantRevenueByDay groups the merchant's delivered line revenue by the
// UTC day the order was placed.
func (r *dashboardRepository) MerchantRevenueByDay(ctx context.Context, merchantID uuid.UUID, since time.Time) ([]domain.DailyRevenue, error) {
	query := `
		SELECT date_trunc('day', o.created_at) AS day,
			SUM(oi.price * oi.quantity),
			COUNT(DISTINCT o.id)
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id AND oi.merchant_id = $1
		WHERE o.status = 'delivered' AND o.created_at >= $2
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load revenue by day: %w", err)
	}
	defer rows.Close()

	days := []domain.DailyRevenue{}
	for rows.Next() {
		var d domain.DailyRevenue
		if err := rows.Scan(&d.Date, &d.Revenue, &d.Orders); err != nil {
			return nil, fmt.Errorf("failed to scan daily revenue: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily revenue: %w", err)
	}
	return days, nil
}

func (r *dashboardRepository) MerchantCategoryPerformance(ctx context.Context, merchantID uuid.UUID) ([]domain.CategoryPerformance, error) {
	query := `
		SELECT category, COUNT(*), COALESCE(SUM(sold), 0), ROUND(COALESCE(AVG(rating_average), 0), 1)
		FROM products
		WHERE merchant_id = $1 AND status = 'active'
		GROUP BY category
		ORDER BY SUM(sold) DESC, category ASC
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category performance: %w", err)
	}
	defer rows.Close()

	out := []domain.CategoryPerformance{}
	for rows.Next() {
		var c domain.CategoryPerformance
		if err := rows.Scan(&c.Category, &c.Products, &c.TotalSold, &c.AverageRating); err != nil {
			return nil, fmt.Errorf("failed to scan category performance: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category performance: %w", err)
	}
	return out, nil
}

// MerchantCustomers summarises who bought from the merchant, counting only
// shipped and delivered orders and only the merchant's own lines. Biggest
// spenders first.
func (r *dashboardRepository) MerchantCustomers(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantCustomer, error) {
	query := `
		SELECT u.id, u.username, u.email,
			SUM(oi.price * oi.quantity),
			COUNT(DISTINCT o.id),
			MAX(o.created_at)
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id AND oi.merchant_id = $1
		JOIN users u ON u.id = o.customer_id
		WHERE o.status IN ('shipped', 'delivered')
		GROUP BY u.id, u.username, u.email
		ORDER BY SUM(oi.price * oi.quantity) DESC, u.username ASC
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant customers: %w", err)
	}
	defer rows.Close()

	customers := []domain.MerchantCustomer{}
	for rows.Next() {
		var c domain.MerchantCustomer
		if err := rows.Scan(&c.CustomerID, &c.Username, &c.Email, &c.TotalSpent, &c.OrderCount, &c.LastOrder); err != nil {
			return nil, fmt.Errorf("failed to scan merchant customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchant customers: %w", err)
	}
	return customers, nil
}

func (r *dashboardRepository) AdminStats(ctx context.Context) (domain.AdminStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE role = 'customer'),
			(SELECT COUNT(*) FROM users WHERE role = 'merchant'),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE status = 'active'),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE status = 'delivered')
	`

	var stats domain.AdminStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalUsers,
		&stats.TotalCustomers,
		&stats.TotalMerchants,
		&stats.TotalProducts,
		&stats.ActiveProducts,
		&stats.TotalOrders,
		&stats.TotalRevenue,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to load admin stats: %w", err)
	}
	return stats, nil
}

func (r *dashboardRepository) CategoryStats(ctx context.Context) ([]domain.CategoryStat, error) {
	query := `
		SELECT category, COUNT(*), COALESCE(SUM(sold), 0)
		FROM products
		WHERE status = 'active'
		GROUP BY category
		ORDER BY COUNT(*) DESC, category ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load category stats: %w", err)
	}
	defer rows.Close()

	stats := []domain.CategoryStat{}
	for rows.Next() {
		var s domain.CategoryStat
		if err := rows.Scan(&s.Category, &s.Count, &s.TotalSold); err != nil {
			return nil, fmt.Errorf("failed to scan category stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category stats: %w", err)
	}
	return stats, nil
}
