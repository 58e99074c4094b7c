package transport

import (
	"errors"
	"net/http"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/middleware"
	"fresh-market/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ShippingAddressRequest struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Street   string `json:"street" validate:"required,max=200"`
	City     string `json:"city" validate:"required,max=100"`
	State    string `json:"state" validate:"required,max=100"`
	ZipCode  string `json:"zipCode" validate:"required,max=20"`
	Country  string `json:"country" validate:"omitempty,max=100"`
	Phone    string `json:"phone" validate:"required,max=20"`
}

type DeliverySlotRequest struct {
	Date     *time.Time `json:"date"`
	TimeSlot string     `json:"timeSlot" validate:"max=50"`
}

// CreateOrderRequest is the checkout payload; lines come from the cart
type CreateOrderRequest struct {
	ShippingAddress      ShippingAddressRequest `json:"shippingAddress"`
	PaymentMethod        string                 `json:"paymentMethod" validate:"required,oneof=card paypal cash_on_delivery digital_wallet"`
	DeliverySlot         DeliverySlotRequest    `json:"deliverySlot"`
	DeliveryInstructions string                 `json:"deliveryInstructions" validate:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,orderstatus"`
	Note   string `json:"note" validate:"max=500"`
}

type TrackingRequest struct {
	TrackingNumber    string     `json:"trackingNumber" validate:"required,max=100"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

// OrderHandler serves the order workflow
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	requireCustomer := middleware.RequireCustomer(h.logger)
	requireMerchant := middleware.RequireMerchant(h.logger)

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)

		r.With(requireCustomer).Post("/create", h.Create)
		r.With(requireCustomer).Get("/my-orders", h.ListMine)
		r.Get("/{id}", h.Get)
		r.With(requireCustomer).Post("/{id}/cancel", h.Cancel)
		r.With(requireCustomer).Post("/{id}/rate", h.Rate)

		r.With(requireMerchant).Get("/merchant/orders", h.ListMerchant)
		r.With(requireMerchant).Put("/{id}/status", h.UpdateStatus)
		r.With(requireMerchant).Post("/{id}/tracking", h.UpdateTracking)
	})
}

// orderError maps order workflow errors onto responses
func (h *OrderHandler) orderError(w http.ResponseWriter, err error, msg string, orderID uuid.UUID) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		middleware.RespondWithError(w, http.StatusBadRequest, stockErr.Error())
	case errors.Is(err, service.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusBadRequest, "Cart is empty")
	case errors.Is(err, service.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "Product no longer available")
	case errors.Is(err, service.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, service.ErrOrderNotCancellable):
		middleware.RespondWithError(w, http.StatusBadRequest, "Cannot cancel order that has been shipped or delivered")
	case errors.Is(err, service.ErrOrderNotDelivered):
		middleware.RespondWithError(w, http.StatusNotFound, "Order not found or not delivered yet")
	case errors.Is(err, service.ErrOrderAlreadyRated):
		middleware.RespondWithError(w, http.StatusBadRequest, "Order already rated")
	case errors.Is(err, service.ErrInvalidRating):
		middleware.RespondWithError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
	case errors.Is(err, service.ErrInvalidOrderStatus):
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid order status")
	case errors.Is(err, service.ErrInvalidStatusTransition):
		middleware.RespondWithError(w, http.StatusBadRequest, "Invalid status transition")
	case errors.Is(err, service.ErrOrderStatusConflict):
		middleware.RespondWithError(w, http.StatusConflict, "Order status changed, please retry")
	case errors.Is(err, service.ErrCartChanged):
		middleware.RespondWithError(w, http.StatusConflict, "Cart changed during checkout, please review it and retry")
	default:
		fields := []zap.Field{}
		if orderID != uuid.Nil {
			fields = append(fields, zap.String("order_id", orderID.String()))
		}
		serverError(w, h.logger, msg, err, fields...)
	}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	country := req.ShippingAddress.Country
	if country == "" {
		country = "US"
	}
	order, err := h.orders.Create(r.Context(), customerID, service.PlaceOrderInput{
		ShippingAddress: domain.ShippingAddress{
			FullName: req.ShippingAddress.FullName,
			Street:   req.ShippingAddress.Street,
			City:     req.ShippingAddress.City,
			State:    req.ShippingAddress.State,
			ZipCode:  req.ShippingAddress.ZipCode,
			Country:  country,
			Phone:    req.ShippingAddress.Phone,
		},
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		DeliverySlot: domain.DeliverySlot{
			Date:     req.DeliverySlot.Date,
			TimeSlot: req.DeliverySlot.TimeSlot,
		},
		DeliveryInstructions: req.DeliveryInstructions,
	})
	if err != nil {
		h.orderError(w, err, "Failed to create order", uuid.Nil)
		return
	}

	h.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", customerID.String()),
	)
	middleware.RespondWithSuccess(w, http.StatusCreated, "Order created successfully", order)
}

func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := pageFromQuery(r)

	orders, total, err := h.orders.ListForCustomer(r.Context(), customerID, page)
	if err != nil {
		h.orderError(w, err, "Failed to list orders", uuid.Nil)
		return
	}
	respondPage(w, orders, page, total)
}

// Get serves the customer's own order, or a merchant's view of an order
// containing their lines.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id", "Order not found")
	if !ok {
		return
	}

	var (
		order *domain.Order
		err   error
	)
	role, _ := middleware.GetUserRole(r.Context())
	switch role {
	case domain.RoleMerchant:
		order, err = h.orders.GetForMerchant(r.Context(), userID, orderID)
	case domain.RoleCustomer:
		order, err = h.orders.GetForCustomer(r.Context(), userID, orderID)
	default:
		err = service.ErrOrderNotFound
	}
	if err != nil {
		h.orderError(w, err, "Failed to get order", orderID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "", order)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id", "Order not found")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(r.Context(), customerID, orderID)
	if err != nil {
		h.orderError(w, err, "Failed to cancel order", orderID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Order cancelled successfully", order)
}

func (h *OrderHandler) Rate(w http.ResponseWriter, r *http.Request) {
	customerID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id", "Order not found")
	if !ok {
		return
	}
	var req RateRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.Rate(r.Context(), customerID, orderID, req.Rating, req.Review)
	if err != nil {
		h.orderError(w, err, "Failed to rate order", orderID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Order rated successfully", order)
}

func (h *OrderHandler) ListMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page := pageFromQuery(r)
	status := domain.OrderStatus(r.URL.Query().Get("status"))

	orders, total, err := h.orders.ListForMerchant(r.Context(), merchantID, status, page)
	if err != nil {
		h.orderError(w, err, "Failed to list merchant orders", uuid.Nil)
		return
	}
	respondPage(w, orders, page, total)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id", "Order not found")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), merchantID, orderID, domain.OrderStatus(req.Status), req.Note)
	if err != nil {
		h.orderError(w, err, "Failed to update order status", orderID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Order status updated successfully", order)
}

func (h *OrderHandler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id", "Order not found")
	if !ok {
		return
	}
	var req TrackingRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.UpdateTracking(r.Context(), merchantID, orderID, req.TrackingNumber, req.EstimatedDelivery)
	if err != nil {
		h.orderError(w, err, "Failed to update tracking", orderID)
		return
	}
	middleware.RespondWithSuccess(w, http.StatusOK, "Tracking information updated successfully", order)
}
