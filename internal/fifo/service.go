package fifo

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// MetricsPort counts allocation attempts by outcome.
type MetricsPort interface {
	RecordAllocation(outcome string)
}

// Service is the FIFO batch ledger: per-store, per-product lot queues
// consumed strictly oldest-first. It owns every lot mutation; collaborators
// only request allocations, receipts, and reversals.
type Service struct {
	repo    RepositoryPort
	metrics MetricsPort
}

// NewService constructs the service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// WithMetrics attaches an allocation counter.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

func (s *Service) countAllocation(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAllocation(outcome)
	}
}

// Receive appends a new lot at the end of the FIFO order.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (Lot, error) {
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = s.ReceiveWithin(ctx, tx, in)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	return lot, nil
}

// ReceiveWithin appends a lot inside an externally managed transaction.
func (s *Service) ReceiveWithin(ctx context.Context, tx TxRepository, in ReceiveInput) (Lot, error) {
	if in.StoreID == 0 || in.ProductID == 0 {
		return Lot{}, fmt.Errorf("fifo: store and product required")
	}
	if !in.Qty.IsPositive() {
		return Lot{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return Lot{}, ErrInvalidUnitCost
	}
	in.Qty = in.Qty.Round(QtyPrecision)
	in.UnitCost = in.UnitCost.Round(QtyPrecision)
	return tx.InsertLot(ctx, in)
}

// Allocate consumes lots oldest-first to cover the requested quantity and
// returns the per-lot cost breakdown. All-or-nothing: when total available
// stock is short, no lot is touched.
func (s *Service) Allocate(ctx context.Context, in AllocateInput) ([]LotMutation, decimal.Decimal, error) {
	var mutations []LotMutation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mutations, err = s.AllocateWithin(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return mutations, TotalCost(mutations), nil
}

// AllocateWithin allocates inside an externally managed transaction. The lot
// set is locked in receipt order for the duration, serializing concurrent
// movements on the same (store, product) pair.
func (s *Service) AllocateWithin(ctx context.Context, tx TxRepository, in AllocateInput) ([]LotMutation, error) {
	if in.StoreID == 0 || in.ProductID == 0 {
		return nil, fmt.Errorf("fifo: store and product required")
	}
	if !in.Qty.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	need := in.Qty.Round(QtyPrecision)

	lots, err := tx.LockLots(ctx, in.StoreID, in.ProductID)
	if err != nil {
		return nil, err
	}
	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.RemainingQty)
	}
	if available.LessThan(need) {
		s.countAllocation("insufficient")
		return nil, fmt.Errorf("%w: need %s, available %s",
			ErrInsufficientStock, need.StringFixed(QtyPrecision), available.StringFixed(QtyPrecision))
	}

	var mutations []LotMutation
	remaining := need
	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if lot.RemainingQty.IsZero() {
			continue
		}
		take := decimal.Min(lot.RemainingQty, remaining)
		if err := tx.UpdateLotRemaining(ctx, lot.ID, lot.RemainingQty.Sub(take), lot.RowVersion); err != nil {
			return nil, err
		}
		mutations = append(mutations, LotMutation{LotID: lot.ID, Qty: take, UnitCost: lot.UnitCost})
		remaining = remaining.Sub(take)
	}
	s.countAllocation("allocated")
	return mutations, nil
}

// Reverse restores previously allocated quantities to their lots, in order.
// It never creates lots; it fails when a target lot's state no longer matches
// the allocation being undone, so a reversal cannot be replayed.
func (s *Service) Reverse(ctx context.Context, mutations []LotMutation) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.ReverseWithin(ctx, tx, mutations)
	})
}

// ReverseWithin reverses inside an externally managed transaction.
func (s *Service) ReverseWithin(ctx context.Context, tx TxRepository, mutations []LotMutation) error {
	for _, m := range mutations {
		if !m.Qty.IsPositive() {
			return ErrInvalidQuantity
		}
		lot, err := tx.GetLotForUpdate(ctx, m.LotID)
		if err != nil {
			return err
		}
		restored := lot.RemainingQty.Add(m.Qty)
		if restored.GreaterThan(lot.Qty) {
			return fmt.Errorf("%w: lot %d would exceed original quantity", ErrLotStateDiverged, lot.ID)
		}
		if !lot.UnitCost.Equal(m.UnitCost) {
			return fmt.Errorf("%w: lot %d unit cost changed", ErrLotStateDiverged, lot.ID)
		}
		if err := tx.UpdateLotRemaining(ctx, lot.ID, restored, lot.RowVersion); err != nil {
			return err
		}
	}
	return nil
}

// StockOnHand returns the total remaining quantity for a (store, product).
func (s *Service) StockOnHand(ctx context.Context, storeID, productID int64) (decimal.Decimal, error) {
	return s.repo.StockOnHand(ctx, storeID, productID)
}

// ListLots exposes the lot queue, zero-quantity history included.
func (s *Service) ListLots(ctx context.Context, storeID, productID int64) ([]Lot, error) {
	return s.repo.ListLots(ctx, storeID, productID)
}
