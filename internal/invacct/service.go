package invacct

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/fifo"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort is the slice of the posting engine the orchestrator drives. All
// journal writes go through it; the orchestrator never assembles SQL of its
// own for the ledger.
type LedgerPort interface {
	PostWithin(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.JournalEntry, error)
	ReverseSystemEntryWithin(ctx context.Context, tx ledger.TxRepository, input ledger.VoidInput) (ledger.JournalEntry, error)
}

// LotPort is the slice of the FIFO batch ledger the orchestrator drives.
type LotPort interface {
	AllocateWithin(ctx context.Context, tx fifo.TxRepository, in fifo.AllocateInput) ([]fifo.LotMutation, error)
	ReceiveWithin(ctx context.Context, tx fifo.TxRepository, in fifo.ReceiveInput) (fifo.Lot, error)
	ReverseWithin(ctx context.Context, tx fifo.TxRepository, mutations []fifo.LotMutation) error
}

// AccountResolver maps posting keys to configured ledger accounts.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, module, key string) (int64, error)
}

// IdempotencyPort guards events against double processing.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records orchestrated events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the inventory-accounting orchestrator. For each business event
// it computes the FIFO cost breakdown, assembles balanced journal lines from
// the event's account mapping, and lands the lot mutations and the posted
// entry in one transaction. Inventory and ledger change together or not at
// all.
type Service struct {
	uow        UnitOfWork
	ledger     LedgerPort
	lots       LotPort
	accounts   AccountResolver
	idem       IdempotencyPort
	audit      AuditPort
	invalidate func(ctx context.Context) error
	now        func() time.Time
}

// NewService constructs the orchestrator.
func NewService(uow UnitOfWork, ledgerPort LedgerPort, lots LotPort, accounts AccountResolver, idem IdempotencyPort, audit AuditPort) *Service {
	return &Service{uow: uow, ledger: ledgerPort, lots: lots, accounts: accounts, idem: idem, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithInvalidator registers a callback fired after an event commits, so
// report caches can drop stale balances and stock figures.
func (s *Service) WithInvalidator(fn func(ctx context.Context) error) {
	s.invalidate = fn
}

func (s *Service) bumpCaches(ctx context.Context) {
	if s.invalidate != nil {
		_ = s.invalidate(ctx)
	}
}

// PostSale costs a sale against the FIFO lots and posts
// DR settlement / DR COGS / CR revenue / CR inventory.
func (s *Service) PostSale(ctx context.Context, in SaleInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if err := validateLines(in.Lines); err != nil {
		return InventoryAccountingResult{}, err
	}
	if in.SettlementAccount == 0 {
		return InventoryAccountingResult{}, fmt.Errorf("invacct: settlement account required")
	}
	revenueAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeySaleRevenue)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	cogsAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeySaleCOGS)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeySaleInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	revenue := decimal.Zero
	for _, line := range in.Lines {
		revenue = revenue.Add(line.Qty.Mul(line.UnitPrice))
	}
	revenue = revenue.Round(ledger.MoneyPrecision)

	return s.run(ctx, eventKey("SALE", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		var mutations []fifo.LotMutation
		for _, line := range in.Lines {
			m, err := s.lots.AllocateWithin(ctx, tx.Lots, fifo.AllocateInput{
				StoreID:   in.StoreID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
			})
			if err != nil {
				return InventoryAccountingResult{}, err
			}
			mutations = append(mutations, m...)
		}
		cost := fifo.TotalCost(mutations).Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, in.SettlementAccount, revenue, decimal.Zero, &in.StoreID, "sale settlement")
		lines = appendLine(lines, cogsAccount, cost, decimal.Zero, &in.StoreID, "cost of goods sold")
		lines = appendLine(lines, revenueAccount, decimal.Zero, revenue, &in.StoreID, "sales revenue")
		lines = appendLine(lines, inventoryAccount, decimal.Zero, cost, &in.StoreID, "inventory issue at FIFO cost")

		entry, err := s.post(ctx, tx, ledger.EntryTypeSale, fmt.Sprintf("Sale %s", in.EventID), lines, "sales", in.EventID, in.StoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, mutations, fifo.TotalCost(mutations)), nil
	})
}

// PostSaleReturn restocks returned goods at their original unit cost and
// posts DR revenue / DR inventory / CR settlement / CR COGS.
func (s *Service) PostSaleReturn(ctx context.Context, in SaleReturnInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if err := validateLines(in.Lines); err != nil {
		return InventoryAccountingResult{}, err
	}
	if len(in.UnitCosts) != len(in.Lines) {
		return InventoryAccountingResult{}, fmt.Errorf("%w: unit cost per line required", ErrCostRequired)
	}
	revenueAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeySaleRevenue)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	cogsAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeySaleCOGS)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeySaleInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	refund := decimal.Zero
	for _, line := range in.Lines {
		refund = refund.Add(line.Qty.Mul(line.UnitPrice))
	}
	refund = refund.Round(ledger.MoneyPrecision)

	return s.run(ctx, eventKey("SALE_RETURN", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		cost := decimal.Zero
		for idx, line := range in.Lines {
			if in.UnitCosts[idx].IsNegative() {
				return InventoryAccountingResult{}, fifo.ErrInvalidUnitCost
			}
			if _, err := s.lots.ReceiveWithin(ctx, tx.Lots, fifo.ReceiveInput{
				StoreID:   in.StoreID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				UnitCost:  in.UnitCosts[idx],
				ActorID:   in.ActorID,
			}); err != nil {
				return InventoryAccountingResult{}, err
			}
			cost = cost.Add(line.Qty.Mul(in.UnitCosts[idx]))
		}
		costJ := cost.Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, revenueAccount, refund, decimal.Zero, &in.StoreID, "sales return")
		lines = appendLine(lines, inventoryAccount, costJ, decimal.Zero, &in.StoreID, "restock at original cost")
		lines = appendLine(lines, in.SettlementAccount, decimal.Zero, refund, &in.StoreID, "refund")
		lines = appendLine(lines, cogsAccount, decimal.Zero, costJ, &in.StoreID, "cost of goods sold reversal")

		entry, err := s.post(ctx, tx, ledger.EntryTypeSaleReturn, fmt.Sprintf("Sale return %s", in.EventID), lines, "sales_returns", in.EventID, in.StoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, nil, cost), nil
	})
}

// PostPurchase receives goods into FIFO lots at purchase cost and posts
// DR inventory / CR payable.
func (s *Service) PostPurchase(ctx context.Context, in PurchaseInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if err := validateLines(in.Lines); err != nil {
		return InventoryAccountingResult{}, err
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyPurchaseInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	payableAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyPurchasePayable)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	return s.run(ctx, eventKey("PURCHASE", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		cost := decimal.Zero
		for _, line := range in.Lines {
			if _, err := s.lots.ReceiveWithin(ctx, tx.Lots, fifo.ReceiveInput{
				StoreID:   in.StoreID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				UnitCost:  line.UnitPrice,
				ActorID:   in.ActorID,
			}); err != nil {
				return InventoryAccountingResult{}, err
			}
			cost = cost.Add(line.Qty.Mul(line.UnitPrice))
		}
		costJ := cost.Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, inventoryAccount, costJ, decimal.Zero, &in.StoreID, "goods receipt")
		lines = appendLine(lines, payableAccount, decimal.Zero, costJ, &in.StoreID, "supplier payable")

		entry, err := s.post(ctx, tx, ledger.EntryTypePurchase, fmt.Sprintf("Purchase %s", in.EventID), lines, "purchases", in.EventID, in.StoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, nil, cost), nil
	})
}

// PostPurchaseReturn issues stock back to the supplier at FIFO cost and posts
// DR payable / CR inventory.
func (s *Service) PostPurchaseReturn(ctx context.Context, in PurchaseReturnInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if err := validateLines(in.Lines); err != nil {
		return InventoryAccountingResult{}, err
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyPurchaseInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	payableAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyPurchasePayable)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	return s.run(ctx, eventKey("PURCHASE_RETURN", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		var mutations []fifo.LotMutation
		for _, line := range in.Lines {
			m, err := s.lots.AllocateWithin(ctx, tx.Lots, fifo.AllocateInput{
				StoreID:   in.StoreID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
			})
			if err != nil {
				return InventoryAccountingResult{}, err
			}
			mutations = append(mutations, m...)
		}
		cost := fifo.TotalCost(mutations).Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, payableAccount, cost, decimal.Zero, &in.StoreID, "return to supplier")
		lines = appendLine(lines, inventoryAccount, decimal.Zero, cost, &in.StoreID, "inventory issue at FIFO cost")

		entry, err := s.post(ctx, tx, ledger.EntryTypePurchaseReturn, fmt.Sprintf("Purchase return %s", in.EventID), lines, "purchase_returns", in.EventID, in.StoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, mutations, fifo.TotalCost(mutations)), nil
	})
}

// PostAdjustment corrects stock. Positive quantities receive a new lot at the
// given cost (DR inventory / CR adjustment gain); negative quantities consume
// FIFO lots (DR adjustment loss / CR inventory).
func (s *Service) PostAdjustment(ctx context.Context, in AdjustmentInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if in.ProductID == 0 {
		return InventoryAccountingResult{}, fmt.Errorf("%w: missing product", ErrInvalidLine)
	}
	if in.Qty.IsZero() {
		return InventoryAccountingResult{}, fmt.Errorf("%w: zero quantity", ErrInvalidLine)
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyPurchaseInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	if in.Qty.IsPositive() {
		if in.UnitCost.IsNegative() {
			return InventoryAccountingResult{}, fifo.ErrInvalidUnitCost
		}
		gainAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyAdjustGain)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return s.run(ctx, eventKey("ADJUST", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
			if _, err := s.lots.ReceiveWithin(ctx, tx.Lots, fifo.ReceiveInput{
				StoreID:   in.StoreID,
				ProductID: in.ProductID,
				Qty:       in.Qty,
				UnitCost:  in.UnitCost,
				ActorID:   in.ActorID,
			}); err != nil {
				return InventoryAccountingResult{}, err
			}
			cost := in.Qty.Mul(in.UnitCost).Round(ledger.MoneyPrecision)

			var lines []ledger.LineInput
			lines = appendLine(lines, inventoryAccount, cost, decimal.Zero, &in.StoreID, in.Reason)
			lines = appendLine(lines, gainAccount, decimal.Zero, cost, &in.StoreID, in.Reason)

			entry, err := s.post(ctx, tx, ledger.EntryTypeAdjustment, fmt.Sprintf("Adjustment %s", in.EventID), lines, "inventory_adjustments", in.EventID, in.StoreID, in.ActorID, in.EventDate)
			if err != nil {
				return InventoryAccountingResult{}, err
			}
			return result(entry, nil, in.Qty.Mul(in.UnitCost)), nil
		})
	}

	lossAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyAdjustLoss)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	return s.run(ctx, eventKey("ADJUST", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		mutations, err := s.lots.AllocateWithin(ctx, tx.Lots, fifo.AllocateInput{
			StoreID:   in.StoreID,
			ProductID: in.ProductID,
			Qty:       in.Qty.Neg(),
		})
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		cost := fifo.TotalCost(mutations).Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, lossAccount, cost, decimal.Zero, &in.StoreID, in.Reason)
		lines = appendLine(lines, inventoryAccount, decimal.Zero, cost, &in.StoreID, in.Reason)

		entry, err := s.post(ctx, tx, ledger.EntryTypeAdjustment, fmt.Sprintf("Adjustment %s", in.EventID), lines, "inventory_adjustments", in.EventID, in.StoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, mutations, fifo.TotalCost(mutations)), nil
	})
}

// PostTransfer moves stock between stores at FIFO cost: lots are consumed at
// the source and recreated at the destination per consumed layer, preserving
// cost granularity. The entry debits and credits the same inventory account
// with store-scoped lines.
func (s *Service) PostTransfer(ctx context.Context, in TransferInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if in.SrcStoreID == in.DstStoreID {
		return InventoryAccountingResult{}, ErrSameStore
	}
	if err := validateLines(in.Lines); err != nil {
		return InventoryAccountingResult{}, err
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyTransferInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	return s.run(ctx, eventKey("TRANSFER", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		var mutations []fifo.LotMutation
		for _, line := range in.Lines {
			consumed, err := s.lots.AllocateWithin(ctx, tx.Lots, fifo.AllocateInput{
				StoreID:   in.SrcStoreID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
			})
			if err != nil {
				return InventoryAccountingResult{}, err
			}
			for _, m := range consumed {
				if _, err := s.lots.ReceiveWithin(ctx, tx.Lots, fifo.ReceiveInput{
					StoreID:   in.DstStoreID,
					ProductID: line.ProductID,
					Qty:       m.Qty,
					UnitCost:  m.UnitCost,
					ActorID:   in.ActorID,
				}); err != nil {
					return InventoryAccountingResult{}, err
				}
			}
			mutations = append(mutations, consumed...)
		}
		cost := fifo.TotalCost(mutations).Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, inventoryAccount, cost, decimal.Zero, &in.DstStoreID, "transfer in")
		lines = appendLine(lines, inventoryAccount, decimal.Zero, cost, &in.SrcStoreID, "transfer out")

		entry, err := s.post(ctx, tx, ledger.EntryTypeTransfer, fmt.Sprintf("Transfer %s", in.EventID), lines, "stock_transfers", in.EventID, in.SrcStoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, mutations, fifo.TotalCost(mutations)), nil
	})
}

// PostWriteOff expenses lost or spoiled stock at FIFO cost:
// DR write-off expense / CR inventory.
func (s *Service) PostWriteOff(ctx context.Context, in WriteOffInput) (InventoryAccountingResult, error) {
	if err := validateEvent(in.EventID, in.EventDate); err != nil {
		return InventoryAccountingResult{}, err
	}
	if err := validateLines(in.Lines); err != nil {
		return InventoryAccountingResult{}, err
	}
	inventoryAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyPurchaseInventory)
	if err != nil {
		return InventoryAccountingResult{}, err
	}
	expenseAccount, err := s.accounts.ResolveAccount(ctx, MappingModule, KeyWriteOffExpense)
	if err != nil {
		return InventoryAccountingResult{}, err
	}

	return s.run(ctx, eventKey("WRITE_OFF", in.EventID.String()), in.ActorID, func(ctx context.Context, tx TxScope) (InventoryAccountingResult, error) {
		var mutations []fifo.LotMutation
		for _, line := range in.Lines {
			m, err := s.lots.AllocateWithin(ctx, tx.Lots, fifo.AllocateInput{
				StoreID:   in.StoreID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
			})
			if err != nil {
				return InventoryAccountingResult{}, err
			}
			mutations = append(mutations, m...)
		}
		cost := fifo.TotalCost(mutations).Round(ledger.MoneyPrecision)

		var lines []ledger.LineInput
		lines = appendLine(lines, expenseAccount, cost, decimal.Zero, &in.StoreID, in.Reason)
		lines = appendLine(lines, inventoryAccount, decimal.Zero, cost, &in.StoreID, in.Reason)

		entry, err := s.post(ctx, tx, ledger.EntryTypeWriteOff, fmt.Sprintf("Write-off %s", in.EventID), lines, "stock_write_offs", in.EventID, in.StoreID, in.ActorID, in.EventDate)
		if err != nil {
			return InventoryAccountingResult{}, err
		}
		return result(entry, mutations, fifo.TotalCost(mutations)), nil
	})
}

// VoidEvent reverses a posted event: lot mutations are restored and the
// system entry is voided through the posting engine, all in one transaction.
// This is the only sanctioned path for undoing a system entry.
func (s *Service) VoidEvent(ctx context.Context, in VoidEventInput) (ledger.JournalEntry, error) {
	if in.JournalEntryID == 0 {
		return ledger.JournalEntry{}, fmt.Errorf("invacct: journal entry id required")
	}
	var reversal ledger.JournalEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxScope) error {
		entry, err := tx.Ledger.GetEntryWithLinesForUpdate(ctx, in.JournalEntryID)
		if err != nil {
			return err
		}
		// Receive-side events created lots; reversing only the journal
		// would leave the stock on hand. Purchases and sale returns are
		// always receives, transfers receive into the destination store,
		// and an adjustment void without mutations means the adjustment
		// was an increase.
		switch entry.Type {
		case ledger.EntryTypePurchase, ledger.EntryTypeSaleReturn, ledger.EntryTypeTransfer:
			return fmt.Errorf("%w: entry %d is a %s", ErrReceiveEventVoid, entry.ID, entry.Type)
		case ledger.EntryTypeAdjustment:
			if len(in.LotMutations) == 0 {
				return fmt.Errorf("%w: entry %d is a %s", ErrReceiveEventVoid, entry.ID, entry.Type)
			}
		}
		if len(in.LotMutations) > 0 {
			if err := s.lots.ReverseWithin(ctx, tx.Lots, in.LotMutations); err != nil {
				return err
			}
		}
		reversal, err = s.ledger.ReverseSystemEntryWithin(ctx, tx.Ledger, ledger.VoidInput{
			EntryID: in.JournalEntryID,
			Reason:  in.Reason,
			ActorID: in.ActorID,
		})
		return err
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "invacct.void", fmt.Sprintf("%d", in.JournalEntryID), map[string]any{
		"reversal_id": reversal.ID,
		"reason":      in.Reason,
	})
	s.bumpCaches(ctx)
	return reversal, nil
}

// run claims the idempotency key, executes the event inside the unit of work,
// and releases the key when the transaction rolled back.
func (s *Service) run(ctx context.Context, key string, actorID int64, fn func(context.Context, TxScope) (InventoryAccountingResult, error)) (InventoryAccountingResult, error) {
	claimed := false
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, "invacct"); err != nil {
			return InventoryAccountingResult{}, err
		}
		claimed = true
	}
	var res InventoryAccountingResult
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxScope) error {
		var err error
		res, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		if claimed {
			_ = s.idem.Delete(ctx, key)
		}
		return InventoryAccountingResult{}, err
	}
	s.record(ctx, actorID, "invacct.post", key, map[string]any{
		"journal_entry_id": res.JournalEntryID,
		"entry_number":     res.EntryNumber,
		"total_cost":       res.TotalCost.String(),
	})
	s.bumpCaches(ctx)
	return res, nil
}

// post assembles and posts the entry unless every line rounded away to zero,
// in which case the event carries no monetary effect and no entry is created.
func (s *Service) post(ctx context.Context, tx TxScope, entryType, description string, lines []ledger.LineInput,
	sourceTable string, sourceID uuid.UUID, storeID int64, actorID int64, eventDate time.Time) (ledger.JournalEntry, error) {
	if len(lines) == 0 {
		return ledger.JournalEntry{}, nil
	}
	return s.ledger.PostWithin(ctx, tx.Ledger, ledger.PostingInput{
		Type:          entryType,
		Description:   description,
		EntryDate:     eventDate,
		PostingDate:   eventDate,
		SourceTable:   sourceTable,
		SourceID:      sourceID,
		StoreID:       &storeID,
		ActorID:       actorID,
		IsSystemEntry: true,
		Lines:         lines,
	})
}

func (s *Service) record(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_event",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}

func appendLine(lines []ledger.LineInput, accountID int64, debit, credit decimal.Decimal, storeID *int64, memo string) []ledger.LineInput {
	if debit.IsZero() && credit.IsZero() {
		return lines
	}
	return append(lines, ledger.LineInput{AccountID: accountID, Debit: debit, Credit: credit, StoreID: storeID, Memo: memo})
}

func result(entry ledger.JournalEntry, mutations []fifo.LotMutation, totalCost decimal.Decimal) InventoryAccountingResult {
	return InventoryAccountingResult{
		Success:        true,
		JournalEntryID: entry.ID,
		EntryNumber:    entry.Number,
		LotMutations:   mutations,
		TotalCost:      totalCost,
	}
}

func eventKey(kind, id string) string {
	return kind + ":" + id
}
