package service

import (
	"context"
	"errors"
	"fmt"

	"fresh-market/internal/domain"
	"fresh-market/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrProductUnavailable = errors.New("product is not available")
	ErrCartItemNotFound   = errors.New("item not found in cart")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// CartService manages the customer's single cart.
type CartService interface {
	Get(ctx context.Context, customerID uuid.UUID) (*domain.Cart, error)
	Add(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	// Update sets a line's quantity; zero removes the line.
	Update(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	Remove(ctx context.Context, customerID, productID uuid.UUID) (*domain.Cart, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, logger *zap.Logger) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		logger:      logger,
	}
}

func (s *cartService) Get(ctx context.Context, customerID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.cartRepo.Get(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

// availableFor checks that the product can cover the cart's total quantity
// for it after the change.
func (s *cartService) availableFor(ctx context.Context, productID uuid.UUID, total int) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapProductErr(err, "failed to find product")
	}
	if product.Status != domain.ProductActive {
		return nil, ErrProductUnavailable
	}
	if product.Stock < total {
		return nil, &domain.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   total,
			Available:   product.Stock,
		}
	}
	return product, nil
}

// Add snapshots the product's discounted price on the line.
func (s *cartService) Add(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	total := quantity
	if line, ok := cart.Find(productID); ok {
		total += line.Quantity
	}

	product, err := s.availableFor(ctx, productID, total)
	if err != nil {
		return nil, err
	}

	if err := s.cartRepo.AddItem(ctx, customerID, productID, quantity, product.DiscountedPrice()); err != nil {
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}
	return s.Get(ctx, customerID)
}

func (s *cartService) Update(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.Remove(ctx, customerID, productID)
	}

	if _, err := s.availableFor(ctx, productID, quantity); err != nil {
		return nil, err
	}

	if err := s.cartRepo.SetQuantity(ctx, customerID, productID, quantity); err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}
	return s.Get(ctx, customerID)
}

func (s *cartService) Remove(ctx context.Context, customerID, productID uuid.UUID) (*domain.Cart, error) {
	if err := s.cartRepo.RemoveItem(ctx, customerID, productID); err != nil {
		if errors.Is(err, repository.ErrCartItemNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to remove from cart: %w", err)
	}
	return s.Get(ctx, customerID)
}

func (s *cartService) Clear(ctx context.Context, customerID uuid.UUID) error {
	if err := s.cartRepo.Clear(ctx, customerID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
