package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultLowStockThreshold = 5
	featuredLimit            = 10
	lowStockLimit            = 50
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrInvalidCategory        = errors.New("invalid category")
	ErrInvalidStockOperation  = errors.New("invalid stock operation")
	ErrInvalidFreshnessScore  = errors.New("freshness score must be between 0 and 100")
	ErrInvalidProductDiscount = errors.New("discount must be between 0 and 100")
)

// ProductInput is the merchant-editable part of a product.
type ProductInput struct {
	Name                string
	Description         string
	Price               decimal.Decimal
	OriginalPrice       *decimal.Decimal
	Discount            int
	Category            domain.Category
	ImageURL            string
	Stock               int
	Unit                domain.Unit
	MinStock            int
	Status              domain.ProductStatus
	StorageInstructions string
	ExpiryDate          *time.Time
	Featured            bool
	Organic             bool
	LocallySourced      bool
	Tags                []string
}

// ListQuery drives the public listing and search endpoints.
type ListQuery struct {
	Filter    domain.ProductFilter
	Page      domain.Page
	SortBy    string
	SortOrder repository.SortOrder
}

// CatalogService covers products and categories.
type CatalogService interface {
	List(ctx context.Context, q ListQuery) ([]*domain.Product, int, error)
	Featured(ctx context.Context, limit int) ([]*domain.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	RecordView(ctx context.Context, id uuid.UUID) error
	Rate(ctx context.Context, id uuid.UUID, rating int) (*domain.Product, error)

	Categories(ctx context.Context) ([]*domain.CategoryInfo, error)
	Category(ctx context.Context, slug domain.Category) (*domain.CategoryInfo, error)

	Create(ctx context.Context, merchantID uuid.UUID, in ProductInput) (*domain.Product, error)
	Update(ctx context.Context, merchantID, id uuid.UUID, in ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, merchantID, id uuid.UUID) error
	UpdateStock(ctx context.Context, merchantID, id uuid.UUID, op domain.StockOperation, quantity int) (*domain.Product, error)
	UpdateFreshness(ctx context.Context, merchantID, id uuid.UUID, score int, expiry *time.Time) (*domain.Product, error)
	MerchantProducts(ctx context.Context, merchantID uuid.UUID, status domain.ProductStatus, page domain.Page) ([]*domain.Product, int, error)
	LowStock(ctx context.Context, merchantID uuid.UUID, threshold int) ([]*domain.Product, error)
}

type catalogService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	logger       *zap.Logger
}

func NewCatalogService(productRepo repository.ProductRepository, categoryRepo repository.CategoryRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		logger:       logger,
	}
}

// List returns active products unless the filter asks for hidden ones.
func (s *catalogService) List(ctx context.Context, q ListQuery) ([]*domain.Product, int, error) {
	if q.Filter.Category != "" && !q.Filter.Category.Valid() {
		return nil, 0, ErrInvalidCategory
	}

	products, total, err := s.productRepo.List(ctx, q.Filter, q.Page, q.SortBy, q.SortOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

func (s *catalogService) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	if limit <= 0 {
		limit = featuredLimit
	}
	products, _, err := s.productRepo.List(ctx, domain.ProductFilter{Featured: true}, domain.NewPage(1, limit), "rating", repository.SortOrderDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured products: %w", err)
	}
	return products, nil
}

func (s *catalogService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapProductErr(err, "failed to get product")
	}
	return product, nil
}

func mapProductErr(err error, msg string) error {
	if errors.Is(err, repository.ErrProductNotFound) {
		return ErrProductNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (s *catalogService) RecordView(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.IncrementViews(ctx, id); err != nil {
		return mapProductErr(err, "failed to record view")
	}
	return nil
}

// Rate folds a 1-5 rating into the product's running average.
func (s *catalogService) Rate(ctx context.Context, id uuid.UUID, rating int) (*domain.Product, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	product, err := s.productRepo.AddRating(ctx, id, rating)
	if err != nil {
		return nil, mapProductErr(err, "failed to rate product")
	}
	return product, nil
}

func (s *catalogService) Categories(ctx context.Context) ([]*domain.CategoryInfo, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *catalogService) Category(ctx context.Context, slug domain.Category) (*domain.CategoryInfo, error) {
	category, err := s.categoryRepo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

func validateProductInput(in ProductInput) error {
	if !in.Category.Valid() {
		return ErrInvalidCategory
	}
	if in.Discount < 0 || in.Discount > 100 {
		return ErrInvalidProductDiscount
	}
	return nil
}

func applyProductInput(p *domain.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.OriginalPrice = in.Price
	if in.OriginalPrice != nil {
		p.OriginalPrice = *in.OriginalPrice
	}
	p.Discount = in.Discount
	p.Category = in.Category
	p.ImageURL = in.ImageURL
	p.Unit = in.Unit
	if p.Unit == "" {
		p.Unit = domain.UnitPiece
	}
	p.MinStock = in.MinStock
	p.StorageInstructions = in.StorageInstructions
	p.ExpiryDate = in.ExpiryDate
	p.Featured = in.Featured
	p.Organic = in.Organic
	p.LocallySourced = in.LocallySourced
	p.Tags = in.Tags
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

func (s *catalogService) Create(ctx context.Context, merchantID uuid.UUID, in ProductInput) (*domain.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:             uuid.New(),
		MerchantID:     merchantID,
		Stock:          in.Stock,
		Status:         domain.DeriveStatus(in.Status, in.Stock),
		FreshnessScore: 100,
		RatingAverage:  decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	applyProductInput(product, in)

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("merchant_id", merchantID.String()),
	)
	return product, nil
}

// Update replaces the editable fields. Stock is changed only through
// UpdateStock; status is re-derived against the stored stock.
func (s *catalogService) Update(ctx context.Context, merchantID, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	if err := validateProductInput(in); err != nil {
		return nil, err
	}

	product := &domain.Product{ID: id, MerchantID: merchantID, Status: in.Status}
	applyProductInput(product, in)

	updated, err := s.productRepo.Update(ctx, product)
	if err != nil {
		return nil, mapProductErr(err, "failed to update product")
	}
	return updated, nil
}

func (s *catalogService) Delete(ctx context.Context, merchantID, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id, merchantID); err != nil {
		return mapProductErr(err, "failed to delete product")
	}
	s.logger.Info("Product deleted", zap.String("product_id", id.String()))
	return nil
}

func (s *catalogService) UpdateStock(ctx context.Context, merchantID, id uuid.UUID, op domain.StockOperation, quantity int) (*domain.Product, error) {
	switch op {
	case domain.StockSet, domain.StockAdd, domain.StockSubtract:
	case "":
		op = domain.StockSet
	default:
		return nil, ErrInvalidStockOperation
	}
	if quantity < 0 {
		return nil, ErrInvalidStockOperation
	}

	product, err := s.productRepo.UpdateStock(ctx, id, merchantID, op, quantity)
	if err != nil {
		return nil, mapProductErr(err, "failed to update stock")
	}
	return product, nil
}

func (s *catalogService) UpdateFreshness(ctx context.Context, merchantID, id uuid.UUID, score int, expiry *time.Time) (*domain.Product, error) {
	if score < 0 || score > 100 {
		return nil, ErrInvalidFreshnessScore
	}

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapProductErr(err, "failed to find product")
	}
	if product.MerchantID != merchantID {
		return nil, ErrProductNotFound
	}

	updated, err := s.productRepo.UpdateFreshness(ctx, id, score, time.Now().UTC(), expiry, nil)
	if err != nil {
		return nil, mapProductErr(err, "failed to update freshness")
	}
	return updated, nil
}

func (s *catalogService) MerchantProducts(ctx context.Context, merchantID uuid.UUID, status domain.ProductStatus, page domain.Page) ([]*domain.Product, int, error) {
	filter := domain.ProductFilter{
		MerchantID:    &merchantID,
		Status:        status,
		IncludeHidden: true,
	}
	products, total, err := s.productRepo.List(ctx, filter, page, "created_at", repository.SortOrderDesc)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list merchant products: %w", err)
	}
	return products, total, nil
}

func (s *catalogService) LowStock(ctx context.Context, merchantID uuid.UUID, threshold int) ([]*domain.Product, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	products, err := s.productRepo.LowStock(ctx, merchantID, threshold, lowStockLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	return products, nil
}
