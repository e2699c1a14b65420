package fifo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts transactional lot storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	StockOnHand(ctx context.Context, storeID, productID int64) (decimal.Decimal, error)
	ListLots(ctx context.Context, storeID, productID int64) ([]Lot, error)
}

// TxRepository exposes lot operations inside a transaction. Lots for one
// (store, product) pair are always locked as a set, in receipt order, so
// concurrent allocations serialize instead of double-consuming stock.
type TxRepository interface {
	LockLots(ctx context.Context, storeID, productID int64) ([]Lot, error)
	GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error)
	InsertLot(ctx context.Context, in ReceiveInput) (Lot, error)
	UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal, expectVersion int64) error
}

// Repository is the pgx implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds a TxRepository to an externally managed transaction,
// used by the inventory-accounting orchestrator.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx runs fn inside a repeatable-read transaction, translating
// serialization failures into ErrVersionConflict so callers can retry.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return translateConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translateConflict(err)
	}
	return nil
}

func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return ErrVersionConflict
	}
	return err
}

const lotColumns = `id, store_id, product_id, receipt_seq, qty, remaining_qty, unit_cost, row_version, received_at, received_by, created_at, updated_at`

func scanLot(row pgx.Row) (Lot, error) {
	var l Lot
	err := row.Scan(&l.ID, &l.StoreID, &l.ProductID, &l.ReceiptSeq, &l.Qty, &l.RemainingQty,
		&l.UnitCost, &l.RowVersion, &l.ReceivedAt, &l.ReceivedBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, ErrLotNotFound
	}
	return l, err
}

func (r *txRepository) LockLots(ctx context.Context, storeID, productID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+lotColumns+` FROM inventory_lots
		 WHERE store_id = $1 AND product_id = $2
		 ORDER BY receipt_seq FOR UPDATE`, storeID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	return scanLot(r.tx.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM inventory_lots WHERE id = $1 FOR UPDATE`, lotID))
}

func (r *txRepository) InsertLot(ctx context.Context, in ReceiveInput) (Lot, error) {
	// receipt_seq is a global sequence: strict receipt ordering per
	// (store, product) with no tie-breaking needed.
	lot := Lot{
		StoreID:      in.StoreID,
		ProductID:    in.ProductID,
		Qty:          in.Qty,
		RemainingQty: in.Qty,
		UnitCost:     in.UnitCost,
		RowVersion:   1,
		ReceivedBy:   in.ActorID,
	}
	err := r.tx.QueryRow(ctx,
		`INSERT INTO inventory_lots
		   (store_id, product_id, receipt_seq, qty, remaining_qty, unit_cost, row_version, received_at, received_by)
		 VALUES ($1, $2, nextval('inventory_lot_receipt_seq'), $3, $3, $4, 1, NOW(), $5)
		 RETURNING id, receipt_seq, received_at, created_at, updated_at`,
		in.StoreID, in.ProductID, in.Qty, in.UnitCost, in.ActorID).
		Scan(&lot.ID, &lot.ReceiptSeq, &lot.ReceivedAt, &lot.CreatedAt, &lot.UpdatedAt)
	return lot, err
}

func (r *txRepository) UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal, expectVersion int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE inventory_lots
		 SET remaining_qty = $2, row_version = row_version + 1, updated_at = NOW()
		 WHERE id = $1 AND row_version = $3`,
		lotID, remaining, expectVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// StockOnHand sums the remaining quantity across lots.
func (r *Repository) StockOnHand(ctx context.Context, storeID, productID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(remaining_qty), 0) FROM inventory_lots WHERE store_id = $1 AND product_id = $2`,
		storeID, productID).Scan(&qty)
	return qty, err
}

// ListLots returns the lots of a (store, product) pair in receipt order,
// zero-remaining history included.
func (r *Repository) ListLots(ctx context.Context, storeID, productID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM inventory_lots
		 WHERE store_id = $1 AND product_id = $2 ORDER BY receipt_seq`, storeID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}
