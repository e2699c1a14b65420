package fifo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeRepo keeps lots in memory and hands out value copies the way the pgx
// repository does, so service-side mutations only land through
// UpdateLotRemaining.
type fakeRepo struct {
	lots    []*Lot
	nextID  int64
	nextSeq int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, nextSeq: 1}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *fakeRepo) StockOnHand(_ context.Context, storeID, productID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, lot := range r.lots {
		if lot.StoreID == storeID && lot.ProductID == productID {
			total = total.Add(lot.RemainingQty)
		}
	}
	return total, nil
}

func (r *fakeRepo) ListLots(_ context.Context, storeID, productID int64) ([]Lot, error) {
	var out []Lot
	for _, lot := range r.lots {
		if lot.StoreID == storeID && lot.ProductID == productID {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (r *fakeRepo) LockLots(_ context.Context, storeID, productID int64) ([]Lot, error) {
	var out []Lot
	for _, lot := range r.lots {
		if lot.StoreID == storeID && lot.ProductID == productID {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetLotForUpdate(_ context.Context, lotID int64) (Lot, error) {
	for _, lot := range r.lots {
		if lot.ID == lotID {
			return *lot, nil
		}
	}
	return Lot{}, ErrLotNotFound
}

func (r *fakeRepo) InsertLot(_ context.Context, in ReceiveInput) (Lot, error) {
	lot := &Lot{
		ID:           r.nextID,
		StoreID:      in.StoreID,
		ProductID:    in.ProductID,
		ReceiptSeq:   r.nextSeq,
		Qty:          in.Qty,
		RemainingQty: in.Qty,
		UnitCost:     in.UnitCost,
		RowVersion:   1,
		ReceivedAt:   time.Now(),
		ReceivedBy:   in.ActorID,
	}
	r.nextID++
	r.nextSeq++
	r.lots = append(r.lots, lot)
	return *lot, nil
}

func (r *fakeRepo) UpdateLotRemaining(_ context.Context, lotID int64, remaining decimal.Decimal, expectVersion int64) error {
	for _, lot := range r.lots {
		if lot.ID != lotID {
			continue
		}
		if lot.RowVersion != expectVersion {
			return ErrVersionConflict
		}
		lot.RemainingQty = remaining
		lot.RowVersion++
		return nil
	}
	return ErrLotNotFound
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedLots(t *testing.T, svc *Service, costs ...string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < len(costs); i += 2 {
		_, err := svc.Receive(ctx, ReceiveInput{
			StoreID: 1, ProductID: 100,
			Qty: dec(costs[i]), UnitCost: dec(costs[i+1]), ActorID: 7,
		})
		require.NoError(t, err)
	}
}

func TestAllocateConsumesOldestFirst(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "10", "5.00", "10", "7.00")

	mutations, total, err := svc.Allocate(context.Background(), AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("15")})
	require.NoError(t, err)
	require.Len(t, mutations, 2)
	require.True(t, mutations[0].Qty.Equal(dec("10")), "first mutation takes the whole oldest lot")
	require.True(t, mutations[0].UnitCost.Equal(dec("5.00")))
	require.True(t, mutations[1].Qty.Equal(dec("5")))
	require.True(t, mutations[1].UnitCost.Equal(dec("7.00")))
	require.True(t, total.Equal(dec("85")), "10*5 + 5*7, got %s", total)

	// Exhausted lot stays on the books as cost history.
	require.True(t, repo.lots[0].RemainingQty.IsZero())
	require.True(t, repo.lots[1].RemainingQty.Equal(dec("5")))
}

func TestAllocateInsufficientStockTouchesNothing(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "4", "5.00", "3", "7.00")

	_, _, err := svc.Allocate(context.Background(), AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("10")})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "need 10.0000, available 7.0000")

	require.True(t, repo.lots[0].RemainingQty.Equal(dec("4")))
	require.True(t, repo.lots[1].RemainingQty.Equal(dec("3")))
}

func TestAllocateSkipsExhaustedLots(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "5", "5.00", "5", "7.00")

	ctx := context.Background()
	_, _, err := svc.Allocate(ctx, AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("5")})
	require.NoError(t, err)

	mutations, total, err := svc.Allocate(ctx, AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("2")})
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	require.True(t, mutations[0].UnitCost.Equal(dec("7.00")), "drained lot must not be consulted again")
	require.True(t, total.Equal(dec("14")))
}

func TestAllocateRejectsNonPositiveQty(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, _, err := svc.Allocate(context.Background(), AllocateInput{StoreID: 1, ProductID: 100, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReceiveValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{StoreID: 1, ProductID: 100, Qty: decimal.Zero, UnitCost: dec("1")})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Receive(ctx, ReceiveInput{StoreID: 1, ProductID: 100, Qty: dec("1"), UnitCost: dec("-0.01")})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 100, Qty: dec("1"), UnitCost: dec("1")})
	require.Error(t, err)
}

func TestReceiveRoundsToTrackedPrecision(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	lot, err := svc.Receive(context.Background(), ReceiveInput{
		StoreID: 1, ProductID: 100, Qty: dec("3.14159"), UnitCost: dec("2.718281"),
	})
	require.NoError(t, err)
	require.True(t, lot.Qty.Equal(dec("3.1416")))
	require.True(t, lot.UnitCost.Equal(dec("2.7183")))
}

func TestReverseRestoresAllocatedQuantities(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "10", "5.00", "10", "7.00")

	ctx := context.Background()
	mutations, _, err := svc.Allocate(ctx, AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("15")})
	require.NoError(t, err)

	require.NoError(t, svc.Reverse(ctx, mutations))
	require.True(t, repo.lots[0].RemainingQty.Equal(dec("10")))
	require.True(t, repo.lots[1].RemainingQty.Equal(dec("10")))
}

func TestReverseDetectsQuantityDivergence(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "10", "5.00")

	ctx := context.Background()
	mutations, _, err := svc.Allocate(ctx, AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("6")})
	require.NoError(t, err)

	// Someone else already restored stock to this lot.
	repo.lots[0].RemainingQty = dec("9")

	err = svc.Reverse(ctx, mutations)
	require.ErrorIs(t, err, ErrLotStateDiverged)
}

func TestReverseDetectsUnitCostDivergence(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "10", "5.00")

	ctx := context.Background()
	mutations, _, err := svc.Allocate(ctx, AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("6")})
	require.NoError(t, err)

	repo.lots[0].UnitCost = dec("5.50")

	err = svc.Reverse(ctx, mutations)
	require.ErrorIs(t, err, ErrLotStateDiverged)
}

func TestStockOnHandSumsRemainders(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	seedLots(t, svc, "10", "5.00", "10", "7.00")

	ctx := context.Background()
	_, _, err := svc.Allocate(ctx, AllocateInput{StoreID: 1, ProductID: 100, Qty: dec("12")})
	require.NoError(t, err)

	total, err := svc.StockOnHand(ctx, 1, 100)
	require.NoError(t, err)
	require.True(t, total.Equal(dec("8")))
}
