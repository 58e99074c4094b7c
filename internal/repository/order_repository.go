package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fresh-market/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNumberTaken    = errors.New("order number already exists")
	ErrOrderStatusConflict = errors.New("order status changed concurrently")
	ErrOrderNotRateable    = errors.New("order is not delivered or already rated")
)

// OrderRepository persists orders and applies their inventory effects.
type OrderRepository interface {
	// Place locks the customer's cart, decrements stock for every line, stores
	// the order and removes the ordered lines from the cart in a single
	// transaction. The locked cart must hold exactly the order's lines:
	// ErrCartEmpty and ErrCartChanged report a cart consumed or edited since
	// the order was built. A line whose product cannot cover its quantity
	// aborts everything with *domain.InsufficientStockError.
	Place(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, page domain.Page) ([]*domain.Order, int, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, status domain.OrderStatus, page domain.Page) ([]*domain.Order, int, error)
	// Transition moves an order from `from` to entry.Status, appending entry
	// to the history. Entering cancelled restores stock and sold counters.
	Transition(ctx context.Context, id uuid.UUID, from domain.OrderStatus, entry domain.StatusEntry) (*domain.Order, error)
	Rate(ctx context.Context, id, customerID uuid.UUID, rating int, review *string, at time.Time) (*domain.Order, error)
	UpdateTracking(ctx context.Context, id uuid.UUID, trackingNumber string, estimatedDelivery *time.Time) (*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `o.id, o.order_number, o.customer_id, o.subtotal, o.delivery_fee, o.tax, o.discount, o.total,
	o.shipping_full_name, o.shipping_street, o.shipping_city, o.shipping_state, o.shipping_zip_code,
	o.shipping_country, o.shipping_phone, o.payment_method, o.payment_status, o.transaction_id, o.paid_at,
	o.status, o.tracking_number, o.estimated_delivery, o.actual_delivery, o.rating, o.review, o.reviewed_at,
	o.delivery_date, o.delivery_time_slot, o.delivery_instructions, o.created_at, o.updated_at`

func orderScanTargets(o *domain.Order) []interface{} {
	return []interface{}{
		&o.ID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.Summary.Subtotal,
		&o.Summary.DeliveryFee,
		&o.Summary.Tax,
		&o.Summary.Discount,
		&o.Summary.Total,
		&o.ShippingAddress.FullName,
		&o.ShippingAddress.Street,
		&o.ShippingAddress.City,
		&o.ShippingAddress.State,
		&o.ShippingAddress.ZipCode,
		&o.ShippingAddress.Country,
		&o.ShippingAddress.Phone,
		&o.Payment.Method,
		&o.Payment.Status,
		&o.Payment.TransactionID,
		&o.Payment.PaidAt,
		&o.Status,
		&o.TrackingNumber,
		&o.EstimatedDelivery,
		&o.ActualDelivery,
		&o.Rating,
		&o.Review,
		&o.ReviewedAt,
		&o.DeliverySlot.Date,
		&o.DeliverySlot.TimeSlot,
		&o.DeliveryInstructions,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
}

func (r *orderRepository) Place(ctx context.Context, order *domain.Order) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockCartLines(ctx, tx, order.CustomerID, order.Items); err != nil {
			return err
		}
		if err := reserveStock(ctx, tx, order.Items); err != nil {
			return err
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		return removeCartLines(ctx, tx, order.CustomerID, order.Items)
	})
}

// reserveStock applies one conditional decrement per product. Products are
// visited in id order so concurrent placements lock rows consistently.
func reserveStock(ctx context.Context, tx *sql.Tx, items []domain.OrderItem) error {
	quantities := make(map[uuid.UUID]int, len(items))
	names := make(map[uuid.UUID]string, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
			names[item.ProductID] = item.Name
		}
		quantities[item.ProductID] += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	query := `
		UPDATE products
		SET stock = stock - $2::int, sold = sold + $2::int, status = ` + statusForStock("stock - $2::int") + `
		WHERE id = $1 AND stock >= $2::int
	`

	for _, id := range ids {
		result, err := tx.ExecContext(ctx, query, id, quantities[id])
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			available := 0
			_ = tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&available)
			return &domain.InsufficientStockError{
				ProductID:   id,
				ProductName: names[id],
				Requested:   quantities[id],
				Available:   available,
			}
		}
	}
	return nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	query := `
		INSERT INTO orders (id, order_number, customer_id, subtotal, delivery_fee, tax, discount, total,
			shipping_full_name, shipping_street, shipping_city, shipping_state, shipping_zip_code,
			shipping_country, shipping_phone, payment_method, payment_status, status, estimated_delivery,
			delivery_date, delivery_time_slot, delivery_instructions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		o.ID,
		o.OrderNumber,
		o.CustomerID,
		o.Summary.Subtotal,
		o.Summary.DeliveryFee,
		o.Summary.Tax,
		o.Summary.Discount,
		o.Summary.Total,
		o.ShippingAddress.FullName,
		o.ShippingAddress.Street,
		o.ShippingAddress.City,
		o.ShippingAddress.State,
		o.ShippingAddress.ZipCode,
		o.ShippingAddress.Country,
		o.ShippingAddress.Phone,
		o.Payment.Method,
		o.Payment.Status,
		o.Status,
		o.EstimatedDelivery,
		o.DeliverySlot.Date,
		o.DeliverySlot.TimeSlot,
		o.DeliveryInstructions,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return ErrOrderNumberTaken
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, position, product_id, merchant_id, name, price, quantity, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, item := range o.Items {
		_, err := tx.ExecContext(ctx, itemQuery, o.ID, i, item.ProductID, item.MerchantID, item.Name, item.Price, item.Quantity, item.Image)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return findOrder(ctx, r.db, id)
}

func findOrder(ctx context.Context, q dbtx, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	order := &domain.Order{}
	if err := q.QueryRowContext(ctx, query, id).Scan(orderScanTargets(order)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := attachLines(ctx, q, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, page domain.Page) ([]*domain.Order, int, error) {
	return r.list(ctx, "o.customer_id = $1", []interface{}{customerID}, page, false)
}

// ListByMerchant returns orders containing at least one of the merchant's
// products, with the customer's contact details attached.
func (r *orderRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID, status domain.OrderStatus, page domain.Page) ([]*domain.Order, int, error) {
	where := "EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.merchant_id = $1)"
	args := []interface{}{merchantID}
	if status != "" {
		where += " AND o.status = $2"
		args = append(args, string(status))
	}
	return r.list(ctx, where, args, page, true)
}

func (r *orderRepository) list(ctx context.Context, where string, args []interface{}, page domain.Page, withCustomer bool) ([]*domain.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders o WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	columns := orderColumns
	join := ""
	if withCustomer {
		columns += ", u.username, u.email, u.phone"
		join = "JOIN users u ON u.id = o.customer_id"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		%s
		WHERE %s
		ORDER BY o.created_at DESC, o.id
		LIMIT $%d OFFSET $%d
	`, columns, join, where, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	orders, err := scanOrders(rows, withCustomer)
	if err != nil {
		return nil, 0, err
	}

	if err := attachLines(ctx, r.db, orders); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func scanOrders(rows *sql.Rows, withCustomer bool) ([]*domain.Order, error) {
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{}
		dest := orderScanTargets(order)
		if withCustomer {
			customer := &domain.User{Role: domain.RoleCustomer}
			dest = append(dest, &customer.Username, &customer.Email, &customer.Phone)
			order.Customer = customer
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if order.Customer != nil {
			order.Customer.ID = order.CustomerID
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

// attachLines loads line items and status history for a batch of orders.
func attachLines(ctx context.Context, q dbtx, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = []domain.OrderItem{}
		o.StatusHistory = []domain.StatusEntry{}
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}
	idList := "{" + strings.Join(ids, ",") + "}"

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, merchant_id, name, price, quantity, image
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, idList)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.MerchantID, &item.Name, &item.Price, &item.Quantity, &item.Image); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		byID[orderID].Items = append(byID[orderID].Items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating order items: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT order_id, status, note, updated_by, created_at
		FROM order_status_history
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, id
	`, idList)
	if err != nil {
		return fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var entry domain.StatusEntry
		if err := rows.Scan(&orderID, &entry.Status, &entry.Note, &entry.UpdatedBy, &entry.Timestamp); err != nil {
			return fmt.Errorf("failed to scan status history: %w", err)
		}
		byID[orderID].StatusHistory = append(byID[orderID].StatusHistory, entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating status history: %w", err)
	}

	return nil
}

func (r *orderRepository) Transition(ctx context.Context, id uuid.UUID, from domain.OrderStatus, entry domain.StatusEntry) (*domain.Order, error) {
	var order *domain.Order

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $3::text,
				actual_delivery = CASE WHEN $3::text = 'delivered' THEN $4 ELSE actual_delivery END
			WHERE id = $1 AND status = $2
		`, id, string(from), string(entry.Status), entry.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrOrderStatusConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, status, note, updated_by, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, entry.Status, entry.Note, entry.UpdatedBy, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}

		if entry.Status == domain.OrderCancelled {
			if err := restoreStock(ctx, tx, id); err != nil {
				return err
			}
		}

		order, err = findOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// restoreStock is the inverse of reserveStock for every line of an order.
func restoreStock(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products AS p
		SET stock = p.stock + lines.quantity,
			sold = p.sold - lines.quantity,
			status = CASE WHEN p.status = 'out_of_stock' THEN 'active' ELSE p.status END
		FROM (
			SELECT product_id, SUM(quantity)::int AS quantity
			FROM order_items
			WHERE order_id = $1
			GROUP BY product_id
		) AS lines
		WHERE p.id = lines.product_id
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	return nil
}

// Rate records the first rating of a delivered order. The WHERE clause keeps
// a concurrent second rating from overwriting the first.
func (r *orderRepository) Rate(ctx context.Context, id, customerID uuid.UUID, rating int, review *string, at time.Time) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET rating = $3, review = $4, reviewed_at = $5
		WHERE id = $1 AND customer_id = $2 AND status = 'delivered' AND rating IS NULL
	`, id, customerID, rating, review, at)
	if err != nil {
		return nil, fmt.Errorf("failed to rate order: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrOrderNotRateable
	}

	return r.FindByID(ctx, id)
}

func (r *orderRepository) UpdateTracking(ctx context.Context, id uuid.UUID, trackingNumber string, estimatedDelivery *time.Time) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET tracking_number = $2, estimated_delivery = COALESCE($3, estimated_delivery)
		WHERE id = $1
	`, id, trackingNumber, estimatedDelivery)
	if err != nil {
		return nil, fmt.Errorf("failed to update tracking: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrOrderNotFound
	}

	return r.FindByID(ctx, id)
}
