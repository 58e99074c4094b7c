package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// InsufficientStockError names the product that could not cover the
// requested quantity.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s", e.ProductName)
}
