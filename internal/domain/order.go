package domain

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderReturned   OrderStatus = "returned"
)

// orderTransitions lists the statuses reachable from each status. Every
// status-changing path goes through CanTransitionTo.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderProcessing, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderShipped, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered, OrderReturned},
	OrderDelivered:  {OrderReturned},
	OrderCancelled:  nil,
	OrderReturned:   nil,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// AllowedNext returns a copy of the statuses reachable from s.
func (s OrderStatus) AllowedNext() []OrderStatus {
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CustomerCancellable is false once the goods have left the merchant.
func (s OrderStatus) CustomerCancellable() bool {
	return s != OrderShipped && s != OrderDelivered && s.CanTransitionTo(OrderCancelled)
}

type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentPaypal         PaymentMethod = "paypal"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentDigitalWallet  PaymentMethod = "digital_wallet"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentInfo struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID *string       `json:"transactionId,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
}

type ShippingAddress struct {
	FullName string `json:"fullName"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type DeliverySlot struct {
	Date     *time.Time `json:"date,omitempty"`
	TimeSlot string     `json:"timeSlot,omitempty"`
}

// OrderItem is an immutable snapshot of a cart line.
type OrderItem struct {
	ProductID  uuid.UUID       `json:"productId"`
	MerchantID uuid.UUID       `json:"merchantId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Image      string          `json:"image"`
}

type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	UpdatedBy *uuid.UUID  `json:"updatedBy,omitempty"`
}

// OrderSummary is fixed at creation and never recomputed.
type OrderSummary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// PricingRules drive ComputeSummary.
type PricingRules struct {
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
	TaxRate               decimal.Decimal
}

var DefaultPricing = PricingRules{
	FreeDeliveryThreshold: decimal.NewFromInt(50),
	DeliveryFee:           decimal.NewFromInt(5),
	TaxRate:               decimal.NewFromFloat(0.10),
}

// ComputeSummary applies the delivery-fee threshold and tax rate to a
// subtotal. Discount is carried but never populated here.
func ComputeSummary(subtotal decimal.Decimal, rules PricingRules) OrderSummary {
	fee := rules.DeliveryFee
	if subtotal.GreaterThanOrEqual(rules.FreeDeliveryThreshold) {
		fee = decimal.Zero
	}
	tax := subtotal.Mul(rules.TaxRate).Round(2)
	discount := decimal.Zero

	return OrderSummary{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Tax:         tax,
		Discount:    discount,
		Total:       subtotal.Add(fee).Add(tax).Sub(discount),
	}
}

type Order struct {
	ID                   uuid.UUID       `json:"id"`
	OrderNumber          string          `json:"orderNumber"`
	CustomerID           uuid.UUID       `json:"customerId"`
	Items                []OrderItem     `json:"items"`
	Summary              OrderSummary    `json:"orderSummary"`
	ShippingAddress      ShippingAddress `json:"shippingAddress"`
	Payment              PaymentInfo     `json:"paymentInfo"`
	Status               OrderStatus     `json:"status"`
	StatusHistory        []StatusEntry   `json:"statusHistory"`
	TrackingNumber       *string         `json:"trackingNumber,omitempty"`
	EstimatedDelivery    *time.Time      `json:"estimatedDelivery,omitempty"`
	ActualDelivery       *time.Time      `json:"actualDelivery,omitempty"`
	Rating               *int            `json:"rating,omitempty"`
	Review               *string         `json:"review,omitempty"`
	ReviewedAt           *time.Time      `json:"reviewedAt,omitempty"`
	DeliverySlot         DeliverySlot    `json:"deliverySlot"`
	DeliveryInstructions string          `json:"deliveryInstructions,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`

	// filled for merchant views
	Customer *User `json:"customer,omitempty"`
}

// MerchantIDs returns the distinct merchants in line-item order.
func (o *Order) MerchantIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(o.Items))
	var out []uuid.UUID
	for _, item := range o.Items {
		if !seen[item.MerchantID] {
			seen[item.MerchantID] = true
			out = append(out, item.MerchantID)
		}
	}
	return out
}

func (o *Order) HasMerchant(merchantID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.MerchantID == merchantID {
			return true
		}
	}
	return false
}

// EstimatedDeliveryWindow is how far out a new order's delivery is promised.
const EstimatedDeliveryWindow = 48 * time.Hour

// NewOrderNumber returns ORD<unix millis><4 chars of [A-Z0-9]>.
func NewOrderNumber(now time.Time, r *rand.Rand) string {
	return fmt.Sprintf("ORD%d%s", now.UnixMilli(), randomSuffix(r, 4))
}
