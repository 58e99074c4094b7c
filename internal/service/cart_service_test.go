package service

import (
	"context"
	"errors"
	"testing"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCart() (CartService, *memStore) {
	store := newMemStore()
	return NewCartService(&mockCartRepository{store: store}, &mockProductRepository{store: store}, zap.NewNop()), store
}

func TestCart_AddSnapshotsDiscountedPrice(t *testing.T) {
	carts, store := newTestCart()
	customer := uuid.New()
	p := store.addProduct(uuid.New(), "Cheese", "10.00", 10)
	store.products[p.ID].Discount = 20

	cart, err := carts.Add(context.Background(), customer, p.ID, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "8", cart.Items[0].Price.String())
	assert.Equal(t, "16", cart.Subtotal().String())
}

func TestCart_AddAccumulatesAndChecksStock(t *testing.T) {
	carts, store := newTestCart()
	ctx := context.Background()
	customer := uuid.New()
	p := store.addProduct(uuid.New(), "Eggs", "3", 5)

	_, err := carts.Add(ctx, customer, p.ID, 3)
	require.NoError(t, err)

	_, err = carts.Add(ctx, customer, p.ID, 3)
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 6, stockErr.Requested)

	cart, err := carts.Add(ctx, customer, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.ItemCount())
}

func TestCart_AddRejectsUnavailableProducts(t *testing.T) {
	carts, store := newTestCart()
	ctx := context.Background()
	customer := uuid.New()

	inactive := store.addProduct(uuid.New(), "Old stock", "3", 5)
	store.products[inactive.ID].Status = domain.ProductInactive

	_, err := carts.Add(ctx, customer, inactive.ID, 1)
	assert.ErrorIs(t, err, ErrProductUnavailable)

	_, err = carts.Add(ctx, customer, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = carts.Add(ctx, customer, inactive.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCart_UpdateZeroRemoves(t *testing.T) {
	carts, store := newTestCart()
	ctx := context.Background()
	customer := uuid.New()
	a := store.addProduct(uuid.New(), "A", "1", 10)
	b := store.addProduct(uuid.New(), "B", "1", 10)

	_, err := carts.Add(ctx, customer, a.ID, 1)
	require.NoError(t, err)
	_, err = carts.Add(ctx, customer, b.ID, 1)
	require.NoError(t, err)

	cart, err := carts.Update(ctx, customer, a.ID, 4)
	require.NoError(t, err)
	line, _ := cart.Find(a.ID)
	assert.Equal(t, 4, line.Quantity)

	cart, err = carts.Update(ctx, customer, a.ID, 0)
	require.NoError(t, err)
	_, found := cart.Find(a.ID)
	assert.False(t, found)
	assert.Len(t, cart.Items, 1)

	_, err = carts.Update(ctx, customer, a.ID, 2)
	assert.ErrorIs(t, err, ErrCartItemNotFound)

	_, err = carts.Remove(ctx, customer, a.ID)
	assert.ErrorIs(t, err, ErrCartItemNotFound)

	require.NoError(t, carts.Clear(ctx, customer))
	cart, err = carts.Get(ctx, customer)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}
