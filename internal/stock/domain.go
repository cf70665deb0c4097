package stock

import (
	"errors"
	"fmt"
	"time"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementStockIn represents an inbound movement.
	MovementStockIn MovementKind = "stock_in"
	// MovementStockOut represents an outbound movement.
	MovementStockOut MovementKind = "stock_out"
	// MovementStockReturn represents returned units restocked.
	MovementStockReturn MovementKind = "stock_return"
)

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementStockIn, MovementStockOut, MovementStockReturn:
		return true
	}
	return false
}

// Delta returns the signed quantity change for a movement of qty units.
func (k MovementKind) Delta(qty int64) int64 {
	if k == MovementStockOut {
		return -qty
	}
	return qty
}

// MovementEntry is one immutable ledger record. Entries are never updated or
// deleted; corrections are new offsetting entries.
type MovementEntry struct {
	ID              int64        `json:"id"`
	ProductID       int64        `json:"product_id"`
	Kind            MovementKind `json:"movement_type"`
	Quantity        int64        `json:"quantity"`
	Delta           int64        `json:"delta"`
	PreviousStock   int64        `json:"previous_stock"`
	CurrentStock    int64        `json:"current_stock"`
	ReferenceNumber string       `json:"reference_number"`
	ActorID         int64        `json:"user_id"`
	CreatedAt       time.Time    `json:"created_at"`
}

// BatchLine is one product movement inside a batch submission.
type BatchLine struct {
	ProductID int64
	Kind      MovementKind
	Quantity  int64
}

// BatchInput describes one atomic ledger submission.
type BatchInput struct {
	ReferenceNumber string
	ActorID         int64
	Lines           []BatchLine
}

// HistoryFilter narrows the history read path.
type HistoryFilter struct {
	Kind MovementKind
	From time.Time
	To   time.Time
}

// ErrEmptyBatch indicates a batch with no lines.
var ErrEmptyBatch = errors.New("stock: batch has no lines")

// ErrInvalidQuantity indicates a non-positive line quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrInvalidMovementKind indicates an unknown movement kind.
var ErrInvalidMovementKind = errors.New("stock: unknown movement kind")

// InsufficientStockError rejects a stock_out that would drive the balance
// negative. Available carries the current balance so the caller can correct
// the request without a second round trip.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}
