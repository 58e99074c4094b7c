package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCartItemNotFound = errors.New("item not found in cart")
	ErrCartEmpty        = errors.New("cart is empty")
	ErrCartChanged      = errors.New("cart changed since the order was built")
)

// CartRepository stores one logical cart per customer as rows of cart_items.
type CartRepository interface {
	Get(ctx context.Context, customerID uuid.UUID) (*domain.Cart, error)
	// AddItem adds quantity to the line for productID, creating it if needed,
	// and refreshes the price snapshot.
	AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int, price decimal.Decimal) error
	SetQuantity(ctx context.Context, customerID, productID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID) error
	Clear(ctx context.Context, customerID uuid.UUID) error
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

// Get returns the cart in insertion order with each line's current product.
// A customer without lines gets an empty cart.
func (r *cartRepository) Get(ctx context.Context, customerID uuid.UUID) (*domain.Cart, error) {
	return loadCart(ctx, r.db, customerID, false)
}

func loadCart(ctx context.Context, q dbtx, customerID uuid.UUID, forUpdate bool) (*domain.Cart, error) {
	query := `
		SELECT c.product_id, c.quantity, c.price, c.added_at, ` + productColumns + `
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id ASC
	`
	if forUpdate {
		query += " FOR UPDATE OF c"
	}

	rows, err := q.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	defer rows.Close()

	cart := &domain.Cart{CustomerID: customerID, Items: []domain.CartItem{}}
	for rows.Next() {
		var item domain.CartItem
		product := &domain.Product{}
		dest := []interface{}{&item.ProductID, &item.Quantity, &item.Price, &item.AddedAt}
		dest = append(dest, productScanTargets(product)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		if product.Tags == nil {
			product.Tags = []string{}
		}
		item.Product = product
		cart.Items = append(cart.Items, item)
		if item.AddedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = item.AddedAt
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return cart, nil
}

func (r *cartRepository) AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int, price decimal.Decimal) error {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity, price, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, price = EXCLUDED.price
	`

	if _, err := r.db.ExecContext(ctx, query, customerID, productID, quantity, price, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

func (r *cartRepository) SetQuantity(ctx context.Context, customerID, productID uuid.UUID, quantity int) error {
	query := `UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`

	result, err := r.db.ExecContext(ctx, query, customerID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) error {
	query := `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	result, err := r.db.ExecContext(ctx, query, customerID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) Clear(ctx context.Context, customerID uuid.UUID) error {
	return clearCart(ctx, r.db, customerID)
}

func clearCart(ctx context.Context, q dbtx, customerID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, customerID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// lockCartLines takes row locks on the customer's cart and checks that it
// still holds exactly the given lines. A concurrent checkout of the same cart
// waits on the locks and then finds the lines gone.
func lockCartLines(ctx context.Context, tx *sql.Tx, customerID uuid.UUID, items []domain.OrderItem) error {
	cart, err := loadCart(ctx, tx, customerID, true)
	if err != nil {
		return err
	}
	if cart.IsEmpty() {
		return ErrCartEmpty
	}

	want := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		want[item.ProductID] += item.Quantity
	}
	if len(cart.Items) != len(want) {
		return ErrCartChanged
	}
	for _, line := range cart.Items {
		if want[line.ProductID] != line.Quantity {
			return ErrCartChanged
		}
	}
	return nil
}

// removeCartLines deletes only the ordered products, leaving lines added
// after the lock untouched.
func removeCartLines(ctx context.Context, tx *sql.Tx, customerID uuid.UUID, items []domain.OrderItem) error {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID.String())
	}

	_, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2::uuid[])`,
		customerID, "{"+strings.Join(ids, ",")+"}",
	)
	if err != nil {
		return fmt.Errorf("failed to remove ordered cart lines: %w", err)
	}
	return nil
}
