package invacct

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/fifo"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// TxScope bundles the transaction-bound repositories an event operation works
// against. Everything reached through it commits or rolls back together.
type TxScope struct {
	Ledger ledger.TxRepository
	Lots   fifo.TxRepository
}

// UnitOfWork opens the single transaction boundary around steps 2-4 of every
// event: FIFO mutation, journal assembly, and posting.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
}

// PgUnitOfWork is the pgx implementation of UnitOfWork.
type PgUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs PgUnitOfWork.
func NewUnitOfWork(pool *pgxpool.Pool) *PgUnitOfWork {
	return &PgUnitOfWork{pool: pool}
}

// WithTx runs fn inside one repeatable-read transaction spanning the journal
// and the lot ledger. Serialization failures surface as
// fifo.ErrVersionConflict so callers can retry the whole event.
func (u *PgUnitOfWork) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	err := db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxScope{
			Ledger: ledger.NewTxRepository(tx),
			Lots:   fifo.NewTxRepository(tx),
		})
	})
	return translateConflict(err)
}

func translateConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fifo.ErrVersionConflict
	}
	return err
}
