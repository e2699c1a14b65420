package invacct

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/fifo"
)

// MappingModule scopes the posting keys this orchestrator resolves against
// the chart of accounts.
const MappingModule = "INVACCT"

// Posting keys resolved through account mappings.
const (
	KeySaleRevenue       = "sale.revenue"
	KeySaleCOGS          = "sale.cogs"
	KeySaleInventory     = "sale.inventory"
	KeyPurchaseInventory = "purchase.inventory"
	KeyPurchasePayable   = "purchase.payable"
	KeyAdjustGain        = "adjust.gain"
	KeyAdjustLoss        = "adjust.loss"
	KeyWriteOffExpense   = "writeoff.expense"
	KeyTransferInventory = "transfer.inventory"
)

// EventLine is one product line of a business event. UnitPrice carries the
// selling price on revenue events and the unit cost on incoming movements.
type EventLine struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
}

// SaleInput describes a completed sale to be costed and posted.
type SaleInput struct {
	StoreID           int64
	EventID           uuid.UUID
	EventDate         time.Time
	Lines             []EventLine
	SettlementAccount int64 // cash or receivable account
	ActorID           int64
}

// SaleReturnInput restocks returned goods at their original cost.
type SaleReturnInput struct {
	StoreID           int64
	EventID           uuid.UUID
	EventDate         time.Time
	Lines             []EventLine // UnitPrice = refund price per unit
	UnitCosts         []decimal.Decimal
	SettlementAccount int64
	ActorID           int64
}

// PurchaseInput describes a goods receipt against a supplier.
type PurchaseInput struct {
	StoreID   int64
	EventID   uuid.UUID
	EventDate time.Time
	Lines     []EventLine // UnitPrice = purchase unit cost
	ActorID   int64
}

// PurchaseReturnInput sends stock back to a supplier at FIFO cost.
type PurchaseReturnInput struct {
	StoreID   int64
	EventID   uuid.UUID
	EventDate time.Time
	Lines     []EventLine
	ActorID   int64
}

// AdjustmentInput corrects stock up or down; negative Qty decreases.
type AdjustmentInput struct {
	StoreID   int64
	EventID   uuid.UUID
	EventDate time.Time
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal // required for increases
	Reason    string
	ActorID   int64
}

// TransferInput moves stock between stores at FIFO cost.
type TransferInput struct {
	SrcStoreID int64
	DstStoreID int64
	EventID    uuid.UUID
	EventDate  time.Time
	Lines      []EventLine
	ActorID    int64
}

// WriteOffInput expenses spoiled or lost stock at FIFO cost.
type WriteOffInput struct {
	StoreID   int64
	EventID   uuid.UUID
	EventDate time.Time
	Lines     []EventLine
	Reason    string
	ActorID   int64
}

// VoidEventInput reverses a previously posted event: the caller supplies the
// lot mutations the original operation returned. Events that received stock
// (purchases, sale returns, transfers, adjustment increases) leave lots no
// mutation handle can unwind and are corrected with an offsetting adjustment
// instead of a void.
type VoidEventInput struct {
	JournalEntryID int64
	LotMutations   []fifo.LotMutation
	Reason         string
	ActorID        int64
}

// InventoryAccountingResult is handed back to the calling workflow after an
// event lands: the posted entry reference, the lot mutations applied, and the
// FIFO cost total.
type InventoryAccountingResult struct {
	Success        bool
	JournalEntryID int64
	EntryNumber    int64
	LotMutations   []fifo.LotMutation
	TotalCost      decimal.Decimal
}

var (
	// ErrNoLines indicates an event without lines.
	ErrNoLines = errors.New("invacct: event has no lines")
	// ErrInvalidLine indicates a line with a non-positive quantity or
	// negative price.
	ErrInvalidLine = errors.New("invacct: invalid event line")
	// ErrEventRequired indicates a missing event id or date.
	ErrEventRequired = errors.New("invacct: event id and date required")
	// ErrSameStore indicates a transfer within one store.
	ErrSameStore = errors.New("invacct: transfer requires distinct stores")
	// ErrCostRequired indicates an increase without a unit cost.
	ErrCostRequired = errors.New("invacct: unit cost required for incoming stock")
	// ErrReceiveEventVoid indicates a void attempt on an event that
	// received stock; those are corrected with an offsetting adjustment.
	ErrReceiveEventVoid = errors.New("invacct: received stock is corrected with an adjustment, not a void")
)

func validateEvent(id uuid.UUID, date time.Time) error {
	if id == uuid.Nil || date.IsZero() {
		return ErrEventRequired
	}
	return nil
}

func validateLines(lines []EventLine) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for idx, line := range lines {
		if line.ProductID == 0 {
			return fmt.Errorf("%w: line %d missing product", ErrInvalidLine, idx)
		}
		if !line.Qty.IsPositive() || line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d", ErrInvalidLine, idx)
		}
	}
	return nil
}
