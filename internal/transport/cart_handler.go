package transport

import (
	"errors"
	"net/http"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=1000"`
}

// CartResponse adds the derived totals to the stored lines
type CartResponse struct {
	*domain.Cart
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"itemCount"`
}

func newCartResponse(cart *domain.Cart) CartResponse {
	return CartResponse{
		Cart:      cart,
		Subtotal:  cart.Subtotal(),
		ItemCount: cart.ItemCount(),
	}
}

type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware, middleware.RequireCustomer(h.logger))
		r.Get("/", h.Get)
		r.Post("/add", h.Add)
		r.Put("/update", h.Update)
		r.Delete("/remove/{productId}", h.Remove)
		r.Delete("/clear", h.Clear)
	})
}

func (h *CartHandler) cartError(w http.ResponseWriter, err error, customerID uuid.UUID) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		middleware.RespondWithError(w, http.StatusBadRequest, stockErr.Error())
	case errors.Is(err, service.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, service.ErrProductUnavailable):
		middleware.RespondWithError(w, http.StatusBadRequest, "Product is not available")
	case errors.Is(err, service.ErrCartItemNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "Item not found in cart")
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, "Quantity must be positive")
	default:
		serverError(w, h.logger, "Cart operation failed", err, zap.String("user_id", customerID.String()))
	}
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Get(r.Context(), customerID)
	if err != nil {
		h.cartError(w, err, customerID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", newCartResponse(cart))
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CartItemRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.carts.Add(r.Context(), customerID, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		h.cartError(w, err, customerID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Item added to cart", newCartResponse(cart))
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CartItemRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	cart, err := h.carts.Update(r.Context(), customerID, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		h.cartError(w, err, customerID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Cart updated", newCartResponse(cart))
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	productID, ok := idParam(w, r, "productId", "Item not found in cart")
	if !ok {
		return
	}

	cart, err := h.carts.Remove(r.Context(), customerID, productID)
	if err != nil {
		h.cartError(w, err, customerID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Item removed from cart", newCartResponse(cart))
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), customerID); err != nil {
		h.cartError(w, err, customerID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Cart cleared", nil)
}
