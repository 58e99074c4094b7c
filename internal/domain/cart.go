package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// CartItem is one line of a customer's cart. Price is the unit price
// captured when the product was added.
type CartItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	AddedAt   time.Time       `json:"addedAt"`

	// populated on reads for display
	Product *Product `json:"product,omitempty"`
}

// LineTotal is price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	CustomerID uuid.UUID  `json:"customerId"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Subtotal is the running total of all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ItemCount is the total quantity across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Find returns the line for a product, if any.
func (c *Cart) Find(productID uuid.UUID) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}
