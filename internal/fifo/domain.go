package fifo

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// QtyPrecision is the number of decimal places quantities and unit costs are
// tracked at.
const QtyPrecision = 4

// Lot is one receipt of stock at one cost, consumed oldest-first and retained
// at zero remaining quantity as cost history.
type Lot struct {
	ID           int64
	StoreID      int64
	ProductID    int64
	ReceiptSeq   int64
	Qty          decimal.Decimal
	RemainingQty decimal.Decimal
	UnitCost     decimal.Decimal
	RowVersion   int64
	ReceivedAt   time.Time
	ReceivedBy   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LotMutation records one decrement taken from a lot during allocation. The
// same value reverses the decrement when the originating event is voided.
type LotMutation struct {
	LotID    int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// Cost returns the extended cost of the mutation.
func (m LotMutation) Cost() decimal.Decimal {
	return m.Qty.Mul(m.UnitCost)
}

// TotalCost sums the extended cost across mutations.
func TotalCost(mutations []LotMutation) decimal.Decimal {
	total := decimal.Zero
	for _, m := range mutations {
		total = total.Add(m.Cost())
	}
	return total
}

// ReceiveInput describes a new lot.
type ReceiveInput struct {
	StoreID   int64
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	ActorID   int64
}

// AllocateInput describes an outgoing movement to be costed.
type AllocateInput struct {
	StoreID   int64
	ProductID int64
	Qty       decimal.Decimal
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("fifo: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("fifo: unit cost cannot be negative")
	// ErrInsufficientStock indicates the lots cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("fifo: insufficient stock")
	// ErrLotNotFound indicates a missing lot.
	ErrLotNotFound = errors.New("fifo: lot not found")
	// ErrLotStateDiverged indicates a reversal target no longer matches the
	// allocation it would undo.
	ErrLotStateDiverged = errors.New("fifo: lot state diverged from allocation")
	// ErrVersionConflict indicates a lost-update race; the operation is
	// safe to retry.
	ErrVersionConflict = errors.New("fifo: concurrent lot update, retry")
)
