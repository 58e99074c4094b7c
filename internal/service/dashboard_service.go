package service

import (
	"context"
	"fmt"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	recentOrdersLimit      = 5
	preferredCategoryLimit = 3
	recommendedLimit       = 8
	recommendedMinimum     = 4
	dashboardLowStockLimit = 5
	dashboardTopLimit      = 5
	analyticsTopLimit      = 10
	DefaultAnalyticsPeriod = 30
	maxAnalyticsPeriodDays = 365
)

// DashboardService aggregates read-only views. Independent queries of one
// dashboard run concurrently.
type DashboardService interface {
	Customer(ctx context.Context, customerID uuid.UUID) (*domain.CustomerDashboard, error)
	Merchant(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantDashboard, error)
	MerchantAnalytics(ctx context.Context, merchantID uuid.UUID, days int) (*domain.MerchantAnalytics, error)
	MerchantCustomers(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantCustomer, error)
	Admin(ctx context.Context) (*domain.AdminDashboard, error)
}

type dashboardService struct {
	dashboardRepo repository.DashboardRepository
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewDashboardService(
	dashboardRepo repository.DashboardRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	logger *zap.Logger,
) DashboardService {
	return &dashboardService{
		dashboardRepo: dashboardRepo,
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *dashboardService) Customer(ctx context.Context, customerID uuid.UUID) (*domain.CustomerDashboard, error) {
	dash := &domain.CustomerDashboard{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.dashboardRepo.CustomerStats(gctx, customerID)
		if err != nil {
			return fmt.Errorf("failed to load customer stats: %w", err)
		}
		dash.Stats = stats
		return nil
	})

	g.Go(func() error {
		orders, _, err := s.orderRepo.ListByCustomer(gctx, customerID, domain.NewPage(1, recentOrdersLimit))
		if err != nil {
			return fmt.Errorf("failed to load recent orders: %w", err)
		}
		dash.RecentOrders = orders
		return nil
	})

	g.Go(func() error {
		categories, err := s.dashboardRepo.PreferredCategories(gctx, customerID, preferredCategoryLimit)
		if err != nil {
			return fmt.Errorf("failed to load preferred categories: %w", err)
		}
		dash.PreferredCategories = categories

		recommended, err := s.recommend(gctx, categories)
		if err != nil {
			return err
		}
		dash.RecommendedProducts = recommended
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}

// recommend draws from the preferred categories and tops up with featured
// products when that yields too few.
func (s *dashboardService) recommend(ctx context.Context, categories []domain.Category) ([]*domain.Product, error) {
	products, err := s.productRepo.ListByCategories(ctx, categories, recommendedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendations: %w", err)
	}
	if len(products) >= recommendedMinimum {
		return products, nil
	}

	featured, _, err := s.productRepo.List(ctx, domain.ProductFilter{Featured: true}, domain.NewPage(1, recommendedLimit), "rating", repository.SortOrderDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to load featured products: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(products))
	for _, p := range products {
		seen[p.ID] = true
	}
	for _, p := range featured {
		if len(products) >= recommendedLimit {
			break
		}
		if !seen[p.ID] {
			products = append(products, p)
		}
	}
	return products, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func (s *dashboardService) Merchant(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantDashboard, error) {
	var productStats, orderStats domain.MerchantStats
	dash := &domain.MerchantDashboard{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		productStats, err = s.dashboardRepo.MerchantProductStats(gctx, merchantID)
		if err != nil {
			return fmt.Errorf("failed to load product stats: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		orderStats, err = s.dashboardRepo.MerchantOrderStats(gctx, merchantID, monthStart(s.now()))
		if err != nil {
			return fmt.Errorf("failed to load order stats: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		orders, _, err := s.orderRepo.ListByMerchant(gctx, merchantID, "", domain.NewPage(1, recentOrdersLimit))
		if err != nil {
			return fmt.Errorf("failed to load recent orders: %w", err)
		}
		dash.RecentOrders = orders
		return nil
	})

	g.Go(func() error {
		products, err := s.productRepo.LowStock(gctx, merchantID, DefaultLowStockThreshold, dashboardLowStockLimit)
		if err != nil {
			return fmt.Errorf("failed to load low stock products: %w", err)
		}
		dash.LowStockProducts = products
		return nil
	})

	g.Go(func() error {
		products, err := s.productRepo.TopSelling(gctx, &merchantID, dashboardTopLimit)
		if err != nil {
			return fmt.Errorf("failed to load top products: %w", err)
		}
		dash.TopProducts = products
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dash.Stats = domain.MerchantStats{
		TotalProducts:      productStats.TotalProducts,
		ActiveProducts:     productStats.ActiveProducts,
		OutOfStockProducts: productStats.OutOfStockProducts,
		TotalOrders:        orderStats.TotalOrders,
		PendingOrders:      orderStats.PendingOrders,
		CompletedOrders:    orderStats.CompletedOrders,
		MonthlyRevenue:     orderStats.MonthlyRevenue,
	}
	return dash, nil
}

func (s *dashboardService) MerchantAnalytics(ctx context.Context, merchantID uuid.UUID, days int) (*domain.MerchantAnalytics, error) {
	if days <= 0 {
		days = DefaultAnalyticsPeriod
	}
	if days > maxAnalyticsPeriodDays {
		days = maxAnalyticsPeriodDays
	}
	since := s.now().AddDate(0, 0, -days)

	analytics := &domain.MerchantAnalytics{PeriodDays: days}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		revenue, err := s.dashboardRepo.MerchantRevenueByDay(gctx, merchantID, since)
		if err != nil {
			return fmt.Errorf("failed to load revenue: %w", err)
		}
		analytics.RevenueByDay = revenue
		return nil
	})

	g.Go(func() error {
		products, err := s.productRepo.TopSelling(gctx, &merchantID, analyticsTopLimit)
		if err != nil {
			return fmt.Errorf("failed to load product performance: %w", err)
		}
		analytics.TopProducts = products
		return nil
	})

	g.Go(func() error {
		categories, err := s.dashboardRepo.MerchantCategoryPerformance(gctx, merchantID)
		if err != nil {
			return fmt.Errorf("failed to load category performance: %w", err)
		}
		analytics.Categories = categories
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	analytics.TotalRevenue, analytics.TotalOrders, analytics.AverageOrderValue = summarizeRevenue(analytics.RevenueByDay)
	return analytics, nil
}

func summarizeRevenue(days []domain.DailyRevenue) (decimal.Decimal, int, decimal.Decimal) {
	total := decimal.Zero
	orders := 0
	for _, d := range days {
		total = total.Add(d.Revenue)
		orders += d.Orders
	}
	if orders == 0 {
		return total, 0, decimal.Zero
	}
	return total, orders, total.Div(decimal.NewFromInt(int64(orders))).Round(2)
}

func (s *dashboardService) MerchantCustomers(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantCustomer, error) {
	customers, err := s.dashboardRepo.MerchantCustomers(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant customers: %w", err)
	}
	return customers, nil
}

func (s *dashboardService) Admin(ctx context.Context) (*domain.AdminDashboard, error) {
	dash := &domain.AdminDashboard{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.dashboardRepo.AdminStats(gctx)
		if err != nil {
			return fmt.Errorf("failed to load admin stats: %w", err)
		}
		dash.Stats = stats
		return nil
	})

	g.Go(func() error {
		stats, err := s.dashboardRepo.CategoryStats(gctx)
		if err != nil {
			return fmt.Errorf("failed to load category stats: %w", err)
		}
		dash.CategoryStats = stats
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dash, nil
}
