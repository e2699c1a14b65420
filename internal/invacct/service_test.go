package invacct

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/fifo"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// memStore is the shared in-memory state behind the fake transaction scope.
// The fake unit of work snapshots it before each transaction and restores the
// snapshot when the transaction function fails, mirroring a rollback.
type memStore struct {
	lots        []fifo.Lot
	nextLotID   int64
	nextSeq     int64
	entries     map[int64]*ledger.JournalEntry
	nextEntryID int64
	nextNumber  int64
	links       map[string]int64
	accounts    map[int64]ledger.AccountState
}

func newMemStore() *memStore {
	return &memStore{
		nextLotID:   1,
		nextSeq:     1,
		entries:     map[int64]*ledger.JournalEntry{},
		nextEntryID: 1,
		nextNumber:  1,
		links:       map[string]int64{},
		accounts:    map[int64]ledger.AccountState{},
	}
}

func (m *memStore) snapshot() *memStore {
	cp := &memStore{
		lots:        append([]fifo.Lot(nil), m.lots...),
		nextLotID:   m.nextLotID,
		nextSeq:     m.nextSeq,
		entries:     map[int64]*ledger.JournalEntry{},
		nextEntryID: m.nextEntryID,
		nextNumber:  m.nextNumber,
		links:       map[string]int64{},
		accounts:    m.accounts,
	}
	for id, e := range m.entries {
		copied := *e
		copied.Lines = append([]ledger.JournalLine(nil), e.Lines...)
		cp.entries[id] = &copied
	}
	for k, v := range m.links {
		cp.links[k] = v
	}
	return cp
}

func (m *memStore) restore(snap *memStore) {
	*m = *snap
}

type memLotTx struct{ store *memStore }

func (t *memLotTx) LockLots(_ context.Context, storeID, productID int64) ([]fifo.Lot, error) {
	var out []fifo.Lot
	for _, lot := range t.store.lots {
		if lot.StoreID == storeID && lot.ProductID == productID && lot.RemainingQty.IsPositive() {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptSeq < out[j].ReceiptSeq })
	return out, nil
}

func (t *memLotTx) GetLotForUpdate(_ context.Context, lotID int64) (fifo.Lot, error) {
	for _, lot := range t.store.lots {
		if lot.ID == lotID {
			return lot, nil
		}
	}
	return fifo.Lot{}, fifo.ErrLotNotFound
}

func (t *memLotTx) InsertLot(_ context.Context, in fifo.ReceiveInput) (fifo.Lot, error) {
	lot := fifo.Lot{
		ID:           t.store.nextLotID,
		StoreID:      in.StoreID,
		ProductID:    in.ProductID,
		ReceiptSeq:   t.store.nextSeq,
		Qty:          in.Qty,
		RemainingQty: in.Qty,
		UnitCost:     in.UnitCost,
		RowVersion:   1,
		ReceivedBy:   in.ActorID,
	}
	t.store.nextLotID++
	t.store.nextSeq++
	t.store.lots = append(t.store.lots, lot)
	return lot, nil
}

func (t *memLotTx) UpdateLotRemaining(_ context.Context, lotID int64, remaining decimal.Decimal, expectVersion int64) error {
	for i := range t.store.lots {
		if t.store.lots[i].ID != lotID {
			continue
		}
		if t.store.lots[i].RowVersion != expectVersion {
			return fifo.ErrVersionConflict
		}
		t.store.lots[i].RemainingQty = remaining
		t.store.lots[i].RowVersion++
		return nil
	}
	return fifo.ErrLotNotFound
}

type memLedgerTx struct{ store *memStore }

func (t *memLedgerTx) InsertEntry(_ context.Context, in ledger.PostingInput, totalDebit, totalCredit string) (ledger.JournalEntry, error) {
	entry := ledger.JournalEntry{
		ID:            t.store.nextEntryID,
		Number:        t.store.nextNumber,
		Type:          in.Type,
		Description:   in.Description,
		EntryDate:     in.EntryDate,
		PostingDate:   in.PostingDate,
		SourceTable:   in.SourceTable,
		SourceID:      in.SourceID,
		StoreID:       in.StoreID,
		Status:        ledger.EntryStatusPosted,
		TotalDebit:    decimal.RequireFromString(totalDebit),
		TotalCredit:   decimal.RequireFromString(totalCredit),
		IsSystemEntry: in.IsSystemEntry,
		PostedBy:      in.ActorID,
		PostedAt:      time.Now(),
	}
	t.store.nextEntryID++
	t.store.nextNumber++
	stored := entry
	t.store.entries[entry.ID] = &stored
	return entry, nil
}

func (t *memLedgerTx) InsertLines(_ context.Context, entryID int64, lines []ledger.LineInput) error {
	entry, ok := t.store.entries[entryID]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	for _, line := range lines {
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			EntryID:   entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			StoreID:   line.StoreID,
			Memo:      line.Memo,
		})
	}
	return nil
}

func (t *memLedgerTx) LinkSource(_ context.Context, table string, sourceID uuid.UUID, entryID int64) error {
	key := table + "|" + sourceID.String()
	if _, exists := t.store.links[key]; exists {
		return ledger.ErrSourceAlreadyLinked
	}
	t.store.links[key] = entryID
	return nil
}

func (t *memLedgerTx) GetAccountStates(_ context.Context, accountIDs []int64) (map[int64]ledger.AccountState, error) {
	out := map[int64]ledger.AccountState{}
	for _, id := range accountIDs {
		if state, ok := t.store.accounts[id]; ok {
			out[id] = state
		}
	}
	return out, nil
}

func (t *memLedgerTx) GetEntryWithLinesForUpdate(_ context.Context, entryID int64) (ledger.JournalEntry, error) {
	entry, ok := t.store.entries[entryID]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return *entry, nil
}

func (t *memLedgerTx) MarkEntryVoided(_ context.Context, entryID, reversedByEntryID int64, at time.Time) error {
	entry, ok := t.store.entries[entryID]
	if !ok || entry.Status != ledger.EntryStatusPosted {
		return ledger.ErrNotPosted
	}
	entry.Status = ledger.EntryStatusVoid
	entry.ReversedByEntryID = &reversedByEntryID
	entry.UpdatedAt = at
	return nil
}

type memUnitOfWork struct{ store *memStore }

func (u *memUnitOfWork) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	snap := u.store.snapshot()
	scope := TxScope{
		Ledger: &memLedgerTx{store: u.store},
		Lots:   &memLotTx{store: u.store},
	}
	if err := fn(ctx, scope); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}

type memIdempotency struct{ keys map[string]struct{} }

func (m *memIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	if _, exists := m.keys[key]; exists {
		return fmt.Errorf("idempotency: duplicate event")
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type mapResolver map[string]int64

func (m mapResolver) ResolveAccount(_ context.Context, _, key string) (int64, error) {
	id, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("no mapping for %s", key)
	}
	return id, nil
}

type guardFunc func(ctx context.Context, date time.Time, storeID *int64) error

func (g guardFunc) ValidatePeriodOpen(ctx context.Context, date time.Time, storeID *int64) error {
	return g(ctx, date, storeID)
}

const (
	acctCash      int64 = 1
	acctRevenue   int64 = 2
	acctCOGS      int64 = 3
	acctInventory int64 = 4
	acctPayable   int64 = 5
	acctGain      int64 = 6
	acctLoss      int64 = 7
	acctWriteOff  int64 = 8
)

func testResolver() mapResolver {
	return mapResolver{
		KeySaleRevenue:       acctRevenue,
		KeySaleCOGS:          acctCOGS,
		KeySaleInventory:     acctInventory,
		KeyPurchaseInventory: acctInventory,
		KeyPurchasePayable:   acctPayable,
		KeyAdjustGain:        acctGain,
		KeyAdjustLoss:        acctLoss,
		KeyWriteOffExpense:   acctWriteOff,
		KeyTransferInventory: acctInventory,
	}
}

type fixture struct {
	store   *memStore
	service *Service
	idem    *memIdempotency
}

func newFixture(t *testing.T, guard ledger.PeriodGuard) *fixture {
	t.Helper()
	store := newMemStore()
	for _, id := range []int64{acctCash, acctRevenue, acctCOGS, acctInventory, acctPayable, acctGain, acctLoss, acctWriteOff} {
		store.accounts[id] = ledger.AccountState{Code: fmt.Sprintf("A%d", id), Active: true}
	}
	uow := &memUnitOfWork{store: store}
	ledgerSvc := ledger.NewService(nil, guard, nil)
	lotSvc := fifo.NewService(nil)
	idem := &memIdempotency{}
	svc := NewService(uow, ledgerSvc, lotSvc, testResolver(), idem, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) })
	return &fixture{store: store, service: svc, idem: idem}
}

func openGuard() ledger.PeriodGuard {
	return guardFunc(func(context.Context, time.Time, *int64) error { return nil })
}

func (f *fixture) seedLot(storeID, productID int64, qty, cost string) {
	tx := &memLotTx{store: f.store}
	_, _ = tx.InsertLot(context.Background(), fifo.ReceiveInput{
		StoreID:   storeID,
		ProductID: productID,
		Qty:       decimal.RequireFromString(qty),
		UnitCost:  decimal.RequireFromString(cost),
		ActorID:   99,
	})
}

func (f *fixture) lot(id int64) fifo.Lot {
	for _, lot := range f.store.lots {
		if lot.ID == id {
			return lot
		}
	}
	return fifo.Lot{}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPostSaleCostsOldestLotsFirst(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")
	f.seedLot(1, 77, "8", "6")

	res, err := f.service.PostSale(context.Background(), SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("12"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.TotalCost.Equal(dec("52")), "10*4 + 2*6, got %s", res.TotalCost)
	require.Len(t, res.LotMutations, 2)
	require.True(t, res.LotMutations[0].Qty.Equal(dec("10")))
	require.True(t, res.LotMutations[1].Qty.Equal(dec("2")))

	require.True(t, f.lot(1).RemainingQty.IsZero())
	require.True(t, f.lot(2).RemainingQty.Equal(dec("6")))

	entry := f.store.entries[res.JournalEntryID]
	require.NotNil(t, entry)
	require.Equal(t, ledger.EntryStatusPosted, entry.Status)
	require.True(t, entry.IsSystemEntry)
	require.True(t, entry.TotalDebit.Equal(dec("172")), "cash 120 + cogs 52, got %s", entry.TotalDebit)
	require.True(t, entry.TotalCredit.Equal(dec("172")))
	require.Len(t, entry.Lines, 4)

	byAccount := map[int64]ledger.JournalLine{}
	for _, line := range entry.Lines {
		byAccount[line.AccountID] = line
	}
	require.True(t, byAccount[acctCash].Debit.Equal(dec("120")))
	require.True(t, byAccount[acctCOGS].Debit.Equal(dec("52")))
	require.True(t, byAccount[acctRevenue].Credit.Equal(dec("120")))
	require.True(t, byAccount[acctInventory].Credit.Equal(dec("52")))
}

func TestPostSaleRejectsDuplicateEvent(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "100", "4")
	in := SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("5"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	}
	_, err := f.service.PostSale(context.Background(), in)
	require.NoError(t, err)

	_, err = f.service.PostSale(context.Background(), in)
	require.Error(t, err)
	require.True(t, f.lot(1).RemainingQty.Equal(dec("95")), "second attempt must not touch lots")
}

func TestPostSaleInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")

	_, err := f.service.PostSale(context.Background(), SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("20"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	})
	require.ErrorIs(t, err, fifo.ErrInsufficientStock)
	require.True(t, f.lot(1).RemainingQty.Equal(dec("10")))
	require.Empty(t, f.store.entries)
}

func TestPostSaleClosedPeriodLeavesNothingBehind(t *testing.T) {
	guard := guardFunc(func(context.Context, time.Time, *int64) error {
		return fmt.Errorf("%w: 2025-03", fiscal.ErrPeriodClosed)
	})
	f := newFixture(t, guard)
	f.seedLot(1, 77, "10", "4")

	in := SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("5"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	}
	_, err := f.service.PostSale(context.Background(), in)
	require.ErrorIs(t, err, fiscal.ErrPeriodClosed)

	// Lot allocation happened before the guard fired; the rollback must
	// undo it, and the idempotency claim must be released for a retry.
	require.True(t, f.lot(1).RemainingQty.Equal(dec("10")))
	require.Empty(t, f.store.entries)
	require.Empty(t, f.idem.keys)
}

func TestPostPurchaseCreatesLotAndPayable(t *testing.T) {
	f := newFixture(t, openGuard())

	res, err := f.service.PostPurchase(context.Background(), PurchaseInput{
		StoreID:   1,
		EventID:   uuid.New(),
		EventDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines: []EventLine{
			{ProductID: 77, Qty: dec("10"), UnitPrice: dec("4")},
			{ProductID: 78, Qty: dec("3"), UnitPrice: dec("2.5")},
		},
		ActorID: 7,
	})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(dec("47.5")))
	require.Len(t, f.store.lots, 2)
	require.True(t, f.lot(1).RemainingQty.Equal(dec("10")))

	entry := f.store.entries[res.JournalEntryID]
	require.Len(t, entry.Lines, 2)
	require.True(t, entry.Lines[0].Debit.Equal(dec("47.5")))
	require.Equal(t, acctInventory, entry.Lines[0].AccountID)
	require.Equal(t, acctPayable, entry.Lines[1].AccountID)
}

func TestPostTransferMovesLotsAtCost(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "5")
	f.seedLot(1, 77, "10", "7")

	res, err := f.service.PostTransfer(context.Background(), TransferInput{
		SrcStoreID: 1,
		DstStoreID: 2,
		EventID:    uuid.New(),
		EventDate:  time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:      []EventLine{{ProductID: 77, Qty: dec("15")}},
		ActorID:    7,
	})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(dec("85")), "10*5 + 5*7, got %s", res.TotalCost)

	// Source consumed oldest-first.
	require.True(t, f.lot(1).RemainingQty.IsZero())
	require.True(t, f.lot(2).RemainingQty.Equal(dec("5")))

	// Destination got one lot per consumed layer, costs preserved.
	var dst []fifo.Lot
	for _, lot := range f.store.lots {
		if lot.StoreID == 2 {
			dst = append(dst, lot)
		}
	}
	require.Len(t, dst, 2)
	require.True(t, dst[0].Qty.Equal(dec("10")) && dst[0].UnitCost.Equal(dec("5")))
	require.True(t, dst[1].Qty.Equal(dec("5")) && dst[1].UnitCost.Equal(dec("7")))

	entry := f.store.entries[res.JournalEntryID]
	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(2), *entry.Lines[0].StoreID)
	require.Equal(t, int64(1), *entry.Lines[1].StoreID)
	require.True(t, entry.TotalDebit.Equal(dec("85")))
}

func TestPostTransferSameStoreRejected(t *testing.T) {
	f := newFixture(t, openGuard())
	_, err := f.service.PostTransfer(context.Background(), TransferInput{
		SrcStoreID: 1,
		DstStoreID: 1,
		EventID:    uuid.New(),
		EventDate:  time.Now(),
		Lines:      []EventLine{{ProductID: 77, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, ErrSameStore)
}

func TestPostAdjustmentDecreaseConsumesFIFO(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")

	res, err := f.service.PostAdjustment(context.Background(), AdjustmentInput{
		StoreID:   1,
		EventID:   uuid.New(),
		EventDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		ProductID: 77,
		Qty:       dec("-3"),
		Reason:    "stock count short",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(dec("12")))
	require.True(t, f.lot(1).RemainingQty.Equal(dec("7")))

	entry := f.store.entries[res.JournalEntryID]
	require.Equal(t, acctLoss, entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(dec("12")))
	require.Equal(t, acctInventory, entry.Lines[1].AccountID)
}

func TestPostAdjustmentIncreaseReceivesLot(t *testing.T) {
	f := newFixture(t, openGuard())

	res, err := f.service.PostAdjustment(context.Background(), AdjustmentInput{
		StoreID:   1,
		EventID:   uuid.New(),
		EventDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		ProductID: 77,
		Qty:       dec("5"),
		UnitCost:  dec("4"),
		Reason:    "found stock",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(dec("20")))
	require.Len(t, f.store.lots, 1)

	entry := f.store.entries[res.JournalEntryID]
	require.Equal(t, acctInventory, entry.Lines[0].AccountID)
	require.Equal(t, acctGain, entry.Lines[1].AccountID)
}

func TestPostWriteOffExpensesAtFIFOCost(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")

	res, err := f.service.PostWriteOff(context.Background(), WriteOffInput{
		StoreID:   1,
		EventID:   uuid.New(),
		EventDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:     []EventLine{{ProductID: 77, Qty: dec("4")}},
		Reason:    "spoilage",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(dec("16")))

	entry := f.store.entries[res.JournalEntryID]
	require.Equal(t, acctWriteOff, entry.Lines[0].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(dec("16")))
}

func TestPostSaleReturnRestocksAtOriginalCost(t *testing.T) {
	f := newFixture(t, openGuard())

	res, err := f.service.PostSaleReturn(context.Background(), SaleReturnInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("2"), UnitPrice: dec("10")}},
		UnitCosts:         []decimal.Decimal{dec("4")},
		SettlementAccount: acctCash,
		ActorID:           7,
	})
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(dec("8")))
	require.Len(t, f.store.lots, 1)
	require.True(t, f.lot(1).UnitCost.Equal(dec("4")))

	entry := f.store.entries[res.JournalEntryID]
	require.Len(t, entry.Lines, 4)
	require.True(t, entry.TotalDebit.Equal(dec("28")), "refund 20 + restock 8")
}

func TestPostSaleReturnRequiresUnitCosts(t *testing.T) {
	f := newFixture(t, openGuard())
	_, err := f.service.PostSaleReturn(context.Background(), SaleReturnInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Now(),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("2"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
	})
	require.ErrorIs(t, err, ErrCostRequired)
}

func TestVoidEventRestoresLotsAndVoidsEntry(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")
	f.seedLot(1, 77, "8", "6")

	res, err := f.service.PostSale(context.Background(), SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("12"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	})
	require.NoError(t, err)

	reversal, err := f.service.VoidEvent(context.Background(), VoidEventInput{
		JournalEntryID: res.JournalEntryID,
		LotMutations:   res.LotMutations,
		Reason:         "order cancelled",
		ActorID:        9,
	})
	require.NoError(t, err)

	require.True(t, f.lot(1).RemainingQty.Equal(dec("10")))
	require.True(t, f.lot(2).RemainingQty.Equal(dec("8")))

	original := f.store.entries[res.JournalEntryID]
	require.Equal(t, ledger.EntryStatusVoid, original.Status)
	require.NotNil(t, original.ReversedByEntryID)
	require.Equal(t, reversal.ID, *original.ReversedByEntryID)

	// Mirror entry swaps sides.
	stored := f.store.entries[reversal.ID]
	byAccount := map[int64]ledger.JournalLine{}
	for _, line := range stored.Lines {
		byAccount[line.AccountID] = line
	}
	require.True(t, byAccount[acctCash].Credit.Equal(dec("120")))
	require.True(t, byAccount[acctInventory].Debit.Equal(dec("52")))
}

func TestVoidEventFailsWhenLotDiverged(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")

	res, err := f.service.PostSale(context.Background(), SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("4"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	})
	require.NoError(t, err)

	// A later receipt does not diverge the lot, but tampering with the
	// mutation quantity would over-restore it.
	tampered := res.LotMutations
	tampered[0].Qty = dec("40")
	_, err = f.service.VoidEvent(context.Background(), VoidEventInput{
		JournalEntryID: res.JournalEntryID,
		LotMutations:   tampered,
		Reason:         "bad undo",
		ActorID:        9,
	})
	require.ErrorIs(t, err, fifo.ErrLotStateDiverged)

	// Nothing changed: entry still posted, lot untouched.
	require.Equal(t, ledger.EntryStatusPosted, f.store.entries[res.JournalEntryID].Status)
	require.True(t, f.lot(1).RemainingQty.Equal(dec("6")))
}

func TestVoidEventRejectsReceiveEvents(t *testing.T) {
	f := newFixture(t, openGuard())

	purchase, err := f.service.PostPurchase(context.Background(), PurchaseInput{
		StoreID:   1,
		EventID:   uuid.New(),
		EventDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:     []EventLine{{ProductID: 77, Qty: dec("10"), UnitPrice: dec("4")}},
		ActorID:   7,
	})
	require.NoError(t, err)

	// Voiding the journal alone would leave the received lot on hand.
	_, err = f.service.VoidEvent(context.Background(), VoidEventInput{
		JournalEntryID: purchase.JournalEntryID,
		Reason:         "wrong supplier",
		ActorID:        9,
	})
	require.ErrorIs(t, err, ErrReceiveEventVoid)
	require.Equal(t, ledger.EntryStatusPosted, f.store.entries[purchase.JournalEntryID].Status)
	require.True(t, f.lot(1).RemainingQty.Equal(dec("10")))

	// An adjustment void without mutation handles means the adjustment was
	// an increase; the lot it created is corrected the same way.
	increase, err := f.service.PostAdjustment(context.Background(), AdjustmentInput{
		StoreID:   1,
		EventID:   uuid.New(),
		EventDate: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		ProductID: 77,
		Qty:       dec("5"),
		UnitCost:  dec("4"),
		Reason:    "found stock",
		ActorID:   7,
	})
	require.NoError(t, err)

	_, err = f.service.VoidEvent(context.Background(), VoidEventInput{
		JournalEntryID: increase.JournalEntryID,
		Reason:         "count was right after all",
		ActorID:        9,
	})
	require.ErrorIs(t, err, ErrReceiveEventVoid)
	require.Equal(t, ledger.EntryStatusPosted, f.store.entries[increase.JournalEntryID].Status)
}

func TestDirectVoidOfSystemEntryRejected(t *testing.T) {
	f := newFixture(t, openGuard())
	f.seedLot(1, 77, "10", "4")

	res, err := f.service.PostSale(context.Background(), SaleInput{
		StoreID:           1,
		EventID:           uuid.New(),
		EventDate:         time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:             []EventLine{{ProductID: 77, Qty: dec("4"), UnitPrice: dec("10")}},
		SettlementAccount: acctCash,
		ActorID:           7,
	})
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(memRepoPort{store: f.store}, openGuard(), nil)
	_, err = ledgerSvc.Void(context.Background(), ledger.VoidInput{EntryID: res.JournalEntryID, ActorID: 9})
	require.ErrorIs(t, err, ledger.ErrSystemEntryVoid)
}

// memRepoPort adapts the shared store to ledger.RepositoryPort for exercising
// the public Void path.
type memRepoPort struct{ store *memStore }

func (p memRepoPort) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	snap := p.store.snapshot()
	if err := fn(ctx, &memLedgerTx{store: p.store}); err != nil {
		p.store.restore(snap)
		return err
	}
	return nil
}

func (p memRepoPort) GetEntryWithLines(_ context.Context, entryID int64) (ledger.JournalEntry, error) {
	entry, ok := p.store.entries[entryID]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return *entry, nil
}

func (p memRepoPort) ListEntries(context.Context, int, int) ([]ledger.JournalEntry, error) {
	return nil, errors.New("not implemented")
}
