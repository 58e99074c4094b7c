package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryFruits     Category = "fruits"
	CategoryVegetables Category = "vegetables"
	CategoryDairy      Category = "dairy"
	CategoryBakery     Category = "bakery"
	CategoryProtein    Category = "protein"
	CategoryPantry     Category = "pantry"
	CategoryBeverages  Category = "beverages"
	CategorySnacks     Category = "snacks"
	CategoryFrozen     Category = "frozen"
	CategoryOrganic    Category = "organic"
)

var Categories = []Category{
	CategoryFruits, CategoryVegetables, CategoryDairy, CategoryBakery, CategoryProtein,
	CategoryPantry, CategoryBeverages, CategorySnacks, CategoryFrozen, CategoryOrganic,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Unit string

const (
	UnitKg    Unit = "kg"
	UnitGram  Unit = "g"
	UnitPound Unit = "lb"
	UnitPiece Unit = "piece"
	UnitDozen Unit = "dozen"
	UnitLiter Unit = "liter"
	UnitMilli Unit = "ml"
)

type ProductStatus string

const (
	ProductActive       ProductStatus = "active"
	ProductOutOfStock   ProductStatus = "out_of_stock"
	ProductInactive     ProductStatus = "inactive"
	ProductDiscontinued ProductStatus = "discontinued"
)

// DeriveStatus applies the stock rule: zero stock is always out_of_stock,
// restocking an out_of_stock product makes it active, and a merchant-chosen
// inactive/discontinued status survives stock changes.
func DeriveStatus(current ProductStatus, stock int) ProductStatus {
	if stock <= 0 {
		return ProductOutOfStock
	}
	if current == ProductInactive || current == ProductDiscontinued {
		return current
	}
	return ProductActive
}

// Product is a catalog entry owned by one merchant.
type Product struct {
	ID                  uuid.UUID       `json:"id"`
	MerchantID          uuid.UUID       `json:"merchantId"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Price               decimal.Decimal `json:"price"`
	OriginalPrice       decimal.Decimal `json:"originalPrice"`
	Discount            int             `json:"discount"`
	Category            Category        `json:"category"`
	ImageURL            string          `json:"imageUrl"`
	Stock               int             `json:"stock"`
	Unit                Unit            `json:"unit"`
	MinStock            int             `json:"minStock"`
	Status              ProductStatus   `json:"status"`
	FreshnessScore      int             `json:"freshnessScore"`
	FreshnessAnalyzedAt *time.Time      `json:"freshnessAnalyzedAt,omitempty"`
	ExpiryDate          *time.Time      `json:"expiryDate,omitempty"`
	StorageInstructions string          `json:"storageInstructions"`
	Views               int             `json:"views"`
	Sold                int             `json:"sold"`
	RatingAverage       decimal.Decimal `json:"ratingAverage"`
	RatingCount         int             `json:"ratingCount"`
	Featured            bool            `json:"featured"`
	Organic             bool            `json:"organic"`
	LocallySourced      bool            `json:"locallySourced"`
	Tags                []string        `json:"tags"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice is price × (1 − discount/100), rounded to cents.
func (p *Product) DiscountedPrice() decimal.Decimal {
	if p.Discount <= 0 {
		return p.Price
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(p.Discount))).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

// Purchasable reports whether the product can go into a cart right now.
func (p *Product) Purchasable() bool {
	return p.Status == ProductActive && p.Stock > 0
}

// AddRating folds one more rating into the running average, rounded to one decimal.
func (p *Product) AddRating(rating int) {
	total := p.RatingAverage.Mul(decimal.NewFromInt(int64(p.RatingCount))).Add(decimal.NewFromInt(int64(rating)))
	p.RatingCount++
	p.RatingAverage = total.Div(decimal.NewFromInt(int64(p.RatingCount))).Round(1)
}

// CategoryInfo is a row of the categories reference table.
type CategoryInfo struct {
	Slug         Category `json:"slug"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ProductCount int      `json:"productCount"`
}

// StockOperation selects how a stock update is applied.
type StockOperation string

const (
	StockSet      StockOperation = "set"
	StockAdd      StockOperation = "add"
	StockSubtract StockOperation = "subtract"
)

// Apply returns the new stock level, floored at zero.
func (op StockOperation) Apply(current, quantity int) int {
	var next int
	switch op {
	case StockAdd:
		next = current + quantity
	case StockSubtract:
		next = current - quantity
	default:
		next = quantity
	}
	if next < 0 {
		return 0
	}
	return next
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Query      string
	Category   Category
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	MerchantID *uuid.UUID
	Status     ProductStatus
	Featured   bool
	// IncludeHidden lists non-active products (merchant views).
	IncludeHidden bool
}
