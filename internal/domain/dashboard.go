package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CustomerStats struct {
	TotalOrders     int             `json:"totalOrders"`
	PendingOrders   int             `json:"pendingOrders"`
	CompletedOrders int             `json:"completedOrders"`
	TotalSpent      decimal.Decimal `json:"totalSpent"`
}

type CustomerDashboard struct {
	Stats               CustomerStats `json:"stats"`
	RecentOrders        []*Order      `json:"recentOrders"`
	RecommendedProducts []*Product    `json:"recommendedProducts"`
	PreferredCategories []Category    `json:"preferredCategories"`
}

type MerchantStats struct {
	TotalProducts      int             `json:"totalProducts"`
	ActiveProducts     int             `json:"activeProducts"`
	OutOfStockProducts int             `json:"outOfStockProducts"`
	TotalOrders        int             `json:"totalOrders"`
	PendingOrders      int             `json:"pendingOrders"`
	CompletedOrders    int             `json:"completedOrders"`
	MonthlyRevenue     decimal.Decimal `json:"monthlyRevenue"`
}

type MerchantDashboard struct {
	Stats            MerchantStats `json:"stats"`
	RecentOrders     []*Order      `json:"recentOrders"`
	LowStockProducts []*Product    `json:"lowStockProducts"`
	TopProducts      []*Product    `json:"topProducts"`
}

type DailyRevenue struct {
	Date    time.Time       `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

type CategoryPerformance struct {
	Category      Category        `json:"category"`
	Products      int             `json:"count"`
	TotalSold     int             `json:"totalSold"`
	AverageRating decimal.Decimal `json:"avgRating"`
}

type MerchantAnalytics struct {
	PeriodDays        int                   `json:"period"`
	RevenueByDay      []DailyRevenue        `json:"revenueData"`
	TotalRevenue      decimal.Decimal       `json:"totalRevenue"`
	TotalOrders       int                   `json:"totalOrders"`
	AverageOrderValue decimal.Decimal       `json:"averageOrderValue"`
	TopProducts       []*Product            `json:"productPerformance"`
	Categories        []CategoryPerformance `json:"categoryPerformance"`
}

type MerchantCustomer struct {
	CustomerID uuid.UUID       `json:"customerId"`
	Username   string          `json:"username"`
	Email      string          `json:"email"`
	TotalSpent decimal.Decimal `json:"totalSpent"`
	OrderCount int             `json:"orderCount"`
	LastOrder  time.Time       `json:"lastOrder"`
}

type CategoryStat struct {
	Category  Category `json:"category"`
	Count     int      `json:"count"`
	TotalSold int      `json:"totalSold"`
}

type AdminStats struct {
	TotalUsers     int             `json:"totalUsers"`
	TotalCustomers int             `json:"totalCustomers"`
	TotalMerchants int             `json:"totalMerchants"`
	TotalProducts  int             `json:"totalProducts"`
	ActiveProducts int             `json:"activeProducts"`
	TotalOrders    int             `json:"totalOrders"`
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
}

type AdminDashboard struct {
	Stats         AdminStats     `json:"stats"`
	CategoryStats []CategoryStat `json:"categoryStats"`
}
