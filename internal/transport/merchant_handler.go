package transport

import (
	"errors"
	"net/http"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/repository"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type StoreSettingsRequest struct {
	StoreName        string `json:"storeName" validate:"required,min=2,max=100"`
	StoreDescription string `json:"storeDescription" validate:"max=1000"`
	Phone            string `json:"phone" validate:"omitempty,min=7,max=20"`
}

// MerchantHandler serves the merchant portal
type MerchantHandler struct {
	dashboards service.DashboardService
	catalog    service.CatalogService
	orders     service.OrderService
	users      service.UserService
	logger     *zap.Logger
}

func NewMerchantHandler(
	dashboards service.DashboardService,
	catalog service.CatalogService,
	orders service.OrderService,
	users service.UserService,
	logger *zap.Logger,
) *MerchantHandler {
	return &MerchantHandler{
		dashboards: dashboards,
		catalog:    catalog,
		orders:     orders,
		users:      users,
		logger:     logger,
	}
}

func (h *MerchantHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/merchant", func(r chi.Router) {
		r.Use(authMiddleware, middleware.RequireMerchant(h.logger))
		r.Get("/dashboard", h.Dashboard)
		r.Get("/products", h.Products)
		r.Get("/orders", h.Orders)
		r.Get("/customers", h.Customers)
		r.Get("/analytics", h.Analytics)
		r.Get("/inventory/low-stock", h.LowStock)
		r.Get("/store/settings", h.StoreSettings)
		r.Put("/store/settings", h.UpdateStoreSettings)
	})
}

func (h *MerchantHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	dash, err := h.dashboards.Merchant(r.Context(), merchantID)
	if err != nil {
		serverError(w, h.logger, "Failed to load merchant dashboard", err, zap.String("user_id", merchantID.String()))
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", dash)
}

func (h *MerchantHandler) Products(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := pageFromQuery(r)
	status := domain.ProductStatus(r.URL.Query().Get("status"))

	products, total, err := h.catalog.MerchantProducts(r.Context(), merchantID, status, page)
	if err != nil {
		serverError(w, h.logger, "Failed to list merchant products", err, zap.String("user_id", merchantID.String()))
		return
	}
	respondPage(w, products, page, total)
}

func (h *MerchantHandler) Orders(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := pageFromQuery(r)
	status := domain.OrderStatus(r.URL.Query().Get("status"))

	orders, total, err := h.orders.ListForMerchant(r.Context(), merchantID, status, page)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrderStatus) {
			middleware.RespondWithError(w, http.StatusBadRequest, "Invalid order status")
			return
		}
		serverError(w, h.logger, "Failed to list merchant orders", err, zap.String("user_id", merchantID.String()))
		return
	}
	respondPage(w, orders, page, total)
}

func (h *MerchantHandler) Customers(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	customers, err := h.dashboards.MerchantCustomers(r.Context(), merchantID)
	if err != nil {
		serverError(w, h.logger, "Failed to list merchant customers", err, zap.String("user_id", merchantID.String()))
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", customers)
}

func (h *MerchantHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	days := queryInt(r, "period", service.DefaultAnalyticsPeriod)

	analytics, err := h.dashboards.MerchantAnalytics(r.Context(), merchantID, days)
	if err != nil {
		serverError(w, h.logger, "Failed to load analytics", err, zap.String("user_id", merchantID.String()))
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", analytics)
}

func (h *MerchantHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	threshold := queryInt(r, "threshold", service.DefaultLowStockThreshold)

	products, err := h.catalog.LowStock(r.Context(), merchantID, threshold)
	if err != nil {
		serverError(w, h.logger, "Failed to list low stock products", err, zap.String("user_id", merchantID.String()))
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", products)
}

func (h *MerchantHandler) StoreSettings(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetUserByID(r.Context(), merchantID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		serverError(w, h.logger, "Failed to load store settings", err, zap.String("user_id", merchantID.String()))
		return
	}

	settings := domain.StoreSettings{Phone: user.Phone}
	if user.StoreName != nil {
		settings.StoreName = *user.StoreName
	}
	if user.StoreDescription != nil {
		settings.StoreDescription = *user.StoreDescription
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", settings)
}

func (h *MerchantHandler) UpdateStoreSettings(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req StoreSettingsRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	user, err := h.users.UpdateStoreSettings(r.Context(), merchantID, domain.StoreSettings{
		StoreName:        req.StoreName,
		StoreDescription: req.StoreDescription,
		Phone:            req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotMerchant), errors.Is(err, repository.ErrUserNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "Merchant not found")
		default:
			serverError(w, h.logger, "Failed to update store settings", err, zap.String("user_id", merchantID.String()))
		}
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Store settings updated successfully", user)
}
