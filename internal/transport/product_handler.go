package transport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/repository"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const listPageSize = 20

// ProductRequest is the create/update payload
type ProductRequest struct {
	Name                string           `json:"name" validate:"required,min=1,max=100"`
	Description         string           `json:"description" validate:"max=1000"`
	Price               decimal.Decimal  `json:"price"`
	OriginalPrice       *decimal.Decimal `json:"originalPrice"`
	Discount            int              `json:"discount" validate:"gte=0,lte=100"`
	Category            string           `json:"category" validate:"required,category"`
	Image               string           `json:"image" validate:"omitempty,max=500"`
	Stock               int              `json:"stock" validate:"gte=0"`
	Unit                string           `json:"unit" validate:"omitempty,oneof=kg g lb piece dozen liter ml"`
	MinStock            int              `json:"minStock" validate:"gte=0"`
	Status              string           `json:"status" validate:"omitempty,oneof=active inactive discontinued out_of_stock"`
	StorageInstructions string           `json:"storageInstructions" validate:"max=500"`
	ExpiryDate          *time.Time       `json:"expiryDate"`
	Featured            bool             `json:"featured"`
	Organic             bool             `json:"organic"`
	LocallySourced      bool             `json:"locallySourced"`
	Tags                []string         `json:"tags" validate:"max=20,dive,max=30"`
}

func (req ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:                req.Name,
		Description:         req.Description,
		Price:               req.Price,
		OriginalPrice:       req.OriginalPrice,
		Discount:            req.Discount,
		Category:            domain.Category(req.Category),
		ImageURL:            req.Image,
		Stock:               req.Stock,
		Unit:                domain.Unit(req.Unit),
		MinStock:            req.MinStock,
		Status:              domain.ProductStatus(req.Status),
		StorageInstructions: req.StorageInstructions,
		ExpiryDate:          req.ExpiryDate,
		Featured:            req.Featured,
		Organic:             req.Organic,
		LocallySourced:      req.LocallySourced,
		Tags:                req.Tags,
	}
}

// StockRequest applies Operation (set by default) with Quantity
type StockRequest struct {
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Operation string `json:"operation" validate:"omitempty,oneof=set add subtract"`
}

type FreshnessRequest struct {
	Score      int        `json:"score" validate:"gte=0,lte=100"`
	ExpiryDate *time.Time `json:"expiryDate"`
}

type RateRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=500"`
}

// ProductHandler serves the catalog
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers product and category routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	requireMerchant := middleware.RequireMerchant(h.logger)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/featured", h.Featured)
		r.Get("/category/{category}", h.ByCategory)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/{id}/view", h.RecordView)
			r.Post("/{id}/rate", h.Rate)

			r.Group(func(r chi.Router) {
				r.Use(requireMerchant)
				r.Post("/", h.Create)
				r.Put("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
				r.Put("/{id}/stock", h.UpdateStock)
				r.Put("/{id}/freshness", h.UpdateFreshness)
			})
		})
	})

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.Categories)
		r.Get("/{slug}", h.Category)
	})
}

// parseSort reads sort=-createdAt style keys into a column key and direction.
func parseSort(raw string) (string, repository.SortOrder) {
	if raw == "" {
		return "created_at", repository.SortOrderDesc
	}
	order := repository.SortOrderAsc
	if strings.HasPrefix(raw, "-") {
		order = repository.SortOrderDesc
		raw = raw[1:]
	}
	switch raw {
	case "createdAt", "created_at":
		return "created_at", order
	case "rating", "ratings.average":
		return "rating", order
	}
	return raw, order
}

func decimalQuery(r *http.Request, key string) *decimal.Decimal {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

func (h *ProductHandler) listQuery(r *http.Request) service.ListQuery {
	q := r.URL.Query()
	sortBy, order := parseSort(q.Get("sort"))
	return service.ListQuery{
		Filter: domain.ProductFilter{
			Query:    strings.TrimSpace(q.Get("q")),
			Category: domain.Category(q.Get("category")),
			MinPrice: decimalQuery(r, "minPrice"),
			MaxPrice: decimalQuery(r, "maxPrice"),
		},
		Page:      domain.NewPage(queryInt(r, "page", 1), queryInt(r, "limit", listPageSize)),
		SortBy:    sortBy,
		SortOrder: order,
	}
}

func (h *ProductHandler) respondList(w http.ResponseWriter, r *http.Request, q service.ListQuery) {
	products, total, err := h.catalog.List(r.Context(), q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCategory) {
			middleware.RespondWithError(w, http.StatusBadRequest, "Invalid category")
			return
		}
		serverError(w, h.logger, "Failed to list products", err)
		return
	}
	respondPage(w, products, q.Page, total)
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, h.listQuery(r))
}

func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, h.listQuery(r))
}

func (h *ProductHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	q := h.listQuery(r)
	q.Filter.Category = domain.Category(chi.URLParam(r, "category"))
	h.respondList(w, r, q)
}

func (h *ProductHandler) Featured(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Featured(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		serverError(w, h.logger, "Failed to list featured products", err)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", products)
}

// productError maps catalog errors onto responses
func (h *ProductHandler) productError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, service.ErrInvalidCategory):
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid category")
	case errors.Is(err, service.ErrInvalidProductDiscount),
		errors.Is(err, service.ErrInvalidStockOperation),
		errors.Is(err, service.ErrInvalidFreshnessScore),
		errors.Is(err, service.ErrInvalidRating):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		serverError(w, h.logger, msg, err)
	}
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}
	product, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.productError(w, err, "Failed to get product")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", product)
}

func (h *ProductHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}
	if err := h.catalog.RecordView(r.Context(), id); err != nil {
		h.productError(w, err, "Failed to record view")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "View recorded", nil)
}

func (h *ProductHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}
	var req RateRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.catalog.Rate(r.Context(), id, req.Rating)
	if err != nil {
		h.productError(w, err, "Failed to rate product")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Product rated successfully", product)
}

// decodeProduct adds the money checks the validator cannot express.
func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (ProductRequest, bool) {
	var req ProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return req, false
	}
	var errs []middleware.ValidationError
	if !req.Price.IsPositive() {
		errs = append(errs, middleware.ValidationError{Field: "price", Message: "Value must be greater than 0"})
	}
	if req.OriginalPrice != nil && req.OriginalPrice.IsNegative() {
		errs = append(errs, middleware.ValidationError{Field: "originalPrice", Message: "Value must be greater than or equal to 0"})
	}
	if len(errs) > 0 {
		middleware.RespondWithValidationErrors(w, errs)
		return req, false
	}
	return req, true
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.Create(r.Context(), merchantID, req.input())
	if err != nil {
		h.productError(w, err, "Failed to create product")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusCreated, "Product created successfully", product)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.Update(r.Context(), merchantID, id, req.input())
	if err != nil {
		h.productError(w, err, "Failed to update product")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Product updated successfully", product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}

	if err := h.catalog.Delete(r.Context(), merchantID, id); err != nil {
		h.productError(w, err, "Failed to delete product")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Product deleted successfully", nil)
}

func (h *ProductHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}
	var req StockRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.catalog.UpdateStock(r.Context(), merchantID, id, domain.StockOperation(req.Operation), req.Quantity)
	if err != nil {
		h.productError(w, err, "Failed to update stock")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Stock updated successfully", product)
}

func (h *ProductHandler) UpdateFreshness(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id", "Product not found")
	if !ok {
		return
	}
	var req FreshnessRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.catalog.UpdateFreshness(r.Context(), merchantID, id, req.Score, req.ExpiryDate)
	if err != nil {
		h.productError(w, err, "Failed to update freshness")
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Freshness updated successfully", product)
}

func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		serverError(w, h.logger, "Failed to list categories", err)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", categories)
}

func (h *ProductHandler) Category(w http.ResponseWriter, r *http.Request) {
	category, err := h.catalog.Category(r.Context(), domain.Category(chi.URLParam(r, "slug")))
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "Category not found")
			return
		}
		serverError(w, h.logger, "Failed to get category", err)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", category)
}
