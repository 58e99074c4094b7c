package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fresh-market/internal/domain"
	"fresh-market/internal/notify"
	"fresh-market/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	orderNumberAttempts = 3
	publishTimeout      = 2 * time.Second
	cancelledByCustomer = "Cancelled by customer"
)

var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderNotCancellable     = errors.New("cannot cancel order that has been shipped or delivered")
	ErrOrderNotDelivered       = errors.New("order not found or not delivered yet")
	ErrOrderAlreadyRated       = errors.New("order already rated")
	ErrInvalidRating           = errors.New("rating must be between 1 and 5")
	ErrInvalidOrderStatus      = errors.New("invalid order status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrOrderStatusConflict     = errors.New("order status changed, please retry")
	ErrOrderNumberCollision    = errors.New("could not allocate a unique order number")
	ErrCartChanged             = errors.New("cart changed during checkout, please review it and retry")
)

// PlaceOrderInput is everything the customer supplies at checkout; the
// lines come from their cart.
type PlaceOrderInput struct {
	ShippingAddress      domain.ShippingAddress
	PaymentMethod        domain.PaymentMethod
	DeliverySlot         domain.DeliverySlot
	DeliveryInstructions string
}

// OrderService runs the order lifecycle: checkout, status changes,
// cancellation, rating and tracking.
type OrderService interface {
	Create(ctx context.Context, customerID uuid.UUID, in PlaceOrderInput) (*domain.Order, error)
	GetForCustomer(ctx context.Context, customerID, orderID uuid.UUID) (*domain.Order, error)
	GetForMerchant(ctx context.Context, merchantID, orderID uuid.UUID) (*domain.Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, page domain.Page) ([]*domain.Order, int, error)
	ListForMerchant(ctx context.Context, merchantID uuid.UUID, status domain.OrderStatus, page domain.Page) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, merchantID, orderID uuid.UUID, status domain.OrderStatus, note string) (*domain.Order, error)
	Cancel(ctx context.Context, customerID, orderID uuid.UUID) (*domain.Order, error)
	Rate(ctx context.Context, customerID, orderID uuid.UUID, rating int, review string) (*domain.Order, error)
	UpdateTracking(ctx context.Context, merchantID, orderID uuid.UUID, trackingNumber string, estimatedDelivery *time.Time) (*domain.Order, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	cartRepo  repository.CartRepository
	userRepo  repository.UserRepository
	publisher notify.Publisher
	pricing   domain.PricingRules
	logger    *zap.Logger
	now       func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	userRepo repository.UserRepository,
	publisher notify.Publisher,
	pricing domain.PricingRules,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		cartRepo:  cartRepo,
		userRepo:  userRepo,
		publisher: publisher,
		pricing:   pricing,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create turns the customer's cart into a pending order. Stock is checked
// here for a friendly early failure and enforced again by the repository's
// conditional decrement.
func (s *orderService) Create(ctx context.Context, customerID uuid.UUID, in PlaceOrderInput) (*domain.Order, error) {
	cart, err := s.cartRepo.Get(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product := line.Product
		if product == nil {
			return nil, ErrProductNotFound
		}
		if product.Stock < line.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Stock,
			}
		}
		items = append(items, domain.OrderItem{
			ProductID:  product.ID,
			MerchantID: product.MerchantID,
			Name:       product.Name,
			Price:      line.Price,
			Quantity:   line.Quantity,
			Image:      product.ImageURL,
		})
	}

	now := s.now()
	estimated := now.Add(domain.EstimatedDeliveryWindow)
	order := &domain.Order{
		ID:              uuid.New(),
		CustomerID:      customerID,
		Items:           items,
		Summary:         domain.ComputeSummary(cart.Subtotal(), s.pricing),
		ShippingAddress: in.ShippingAddress,
		Payment: domain.PaymentInfo{
			Method: in.PaymentMethod,
			Status: domain.PaymentPending,
		},
		Status:               domain.OrderPending,
		StatusHistory:        []domain.StatusEntry{},
		EstimatedDelivery:    &estimated,
		DeliverySlot:         in.DeliverySlot,
		DeliveryInstructions: in.DeliveryInstructions,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	for attempt := 1; ; attempt++ {
		order.OrderNumber = domain.NewOrderNumber(now, nil)

		err := s.orderRepo.Place(ctx, order)
		if err == nil {
			break
		}

		var stockErr *domain.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			return nil, stockErr
		case errors.Is(err, repository.ErrCartEmpty):
			return nil, ErrEmptyCart
		case errors.Is(err, repository.ErrCartChanged):
			return nil, ErrCartChanged
		case errors.Is(err, repository.ErrOrderNumberTaken):
			if attempt < orderNumberAttempts {
				s.logger.Warn("Order number collision, regenerating", zap.String("order_number", order.OrderNumber))
				continue
			}
			return nil, ErrOrderNumberCollision
		default:
			return nil, fmt.Errorf("failed to place order: %w", err)
		}
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", customerID.String()),
		zap.String("total", order.Summary.Total.StringFixed(2)),
	)

	s.announceNewOrder(ctx, order)
	return order, nil
}

func (s *orderService) announceNewOrder(ctx context.Context, order *domain.Order) {
	customer := ""
	if user, err := s.userRepo.FindByID(ctx, order.CustomerID); err == nil {
		customer = user.Username
	}

	payload := notify.NewOrder{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Customer:    customer,
		Total:       order.Summary.Total,
	}
	for _, merchantID := range order.MerchantIDs() {
		s.publish(ctx, notify.Event{
			Room: notify.MerchantRoom(merchantID),
			Type: notify.EventNewOrder,
			Data: payload,
		})
	}
}

// publish is fire-and-forget; a failed notification never fails the request.
func (s *orderService) publish(ctx context.Context, ev notify.Event) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("room", ev.Room),
			zap.String("event", ev.Type),
			zap.Error(err),
		)
	}
}

func (s *orderService) find(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return order, nil
}

// GetForCustomer hides other customers' orders behind ErrOrderNotFound.
func (s *orderService) GetForCustomer(ctx context.Context, customerID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetForMerchant requires the merchant to own at least one line.
func (s *orderService) GetForMerchant(ctx context.Context, merchantID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasMerchant(merchantID) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListForCustomer(ctx context.Context, customerID uuid.UUID, page domain.Page) ([]*domain.Order, int, error) {
	orders, total, err := s.orderRepo.ListByCustomer(ctx, customerID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list customer orders: %w", err)
	}
	return orders, total, nil
}

func (s *orderService) ListForMerchant(ctx context.Context, merchantID uuid.UUID, status domain.OrderStatus, page domain.Page) ([]*domain.Order, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidOrderStatus
	}
	orders, total, err := s.orderRepo.ListByMerchant(ctx, merchantID, status, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list merchant orders: %w", err)
	}
	return orders, total, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, merchantID, orderID uuid.UUID, status domain.OrderStatus, note string) (*domain.Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidOrderStatus
	}

	order, err := s.GetForMerchant(ctx, merchantID, orderID)
	if err != nil {
		return nil, err
	}

	actor := merchantID
	updated, err := s.transition(ctx, order, domain.StatusEntry{
		Status:    status,
		Timestamp: s.now(),
		Note:      note,
		UpdatedBy: &actor,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Room: notify.CustomerRoom(updated.CustomerID),
		Type: notify.EventOrderStatusUpdate,
		Data: notify.OrderStatusUpdate{
			OrderID:     updated.ID,
			OrderNumber: updated.OrderNumber,
			Status:      status,
			Note:        note,
		},
	})
	return updated, nil
}

// transition is the single path every status change goes through.
func (s *orderService) transition(ctx context.Context, order *domain.Order, entry domain.StatusEntry) (*domain.Order, error) {
	if !order.Status.CanTransitionTo(entry.Status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, order.Status, entry.Status)
	}

	updated, err := s.orderRepo.Transition(ctx, order.ID, order.Status, entry)
	if err != nil {
		if errors.Is(err, repository.ErrOrderStatusConflict) {
			return nil, ErrOrderStatusConflict
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(entry.Status)),
	)
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, customerID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.GetForCustomer(ctx, customerID, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == domain.OrderShipped || order.Status == domain.OrderDelivered {
		return nil, ErrOrderNotCancellable
	}

	actor := customerID
	return s.transition(ctx, order, domain.StatusEntry{
		Status:    domain.OrderCancelled,
		Timestamp: s.now(),
		Note:      cancelledByCustomer,
		UpdatedBy: &actor,
	})
}

// Rate records a delivered order's single rating.
func (s *orderService) Rate(ctx context.Context, customerID, orderID uuid.UUID, rating int, review string) (*domain.Order, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	order, err := s.GetForCustomer(ctx, customerID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotDelivered
		}
		return nil, err
	}
	if order.Status != domain.OrderDelivered {
		return nil, ErrOrderNotDelivered
	}
	if order.Rating != nil {
		return nil, ErrOrderAlreadyRated
	}

	var reviewPtr *string
	if review != "" {
		reviewPtr = &review
	}

	rated, err := s.orderRepo.Rate(ctx, orderID, customerID, rating, reviewPtr, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotRateable) {
			// lost a race with another rating or a status change
			return nil, ErrOrderAlreadyRated
		}
		return nil, fmt.Errorf("failed to rate order: %w", err)
	}
	return rated, nil
}

func (s *orderService) UpdateTracking(ctx context.Context, merchantID, orderID uuid.UUID, trackingNumber string, estimatedDelivery *time.Time) (*domain.Order, error) {
	if _, err := s.GetForMerchant(ctx, merchantID, orderID); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.UpdateTracking(ctx, orderID, trackingNumber, estimatedDelivery)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to update tracking: %w", err)
	}
	return order, nil
}
