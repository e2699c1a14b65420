package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort abstracts transactional storage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindPeriodByDate(ctx context.Context, date time.Time) (Period, error)
	GetStoreOverride(ctx context.Context, periodID, storeID int64) (*StoreOverride, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, yearID int64) ([]Period, error)
}

// TxRepository exposes the write operations used inside a transaction.
type TxRepository interface {
	YearRangeConflict(ctx context.Context, start, end time.Time) (bool, error)
	InsertFiscalYear(ctx context.Context, year FiscalYear) (FiscalYear, error)
	InsertPeriod(ctx context.Context, period Period) (Period, error)
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error
	UpsertStoreOverride(ctx context.Context, override StoreOverride) error
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

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const periodColumns = `id, year_id, code, start_date, end_date, status, closed_by, closed_at, locked_by, locked_at, reopened_by, reopened_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.YearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.ReopenedBy, &p.ReopenedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

// FindPeriodByDate returns the period containing the date.
func (r *Repository) FindPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM fiscal_periods WHERE start_date <= $1 AND end_date >= $1`, date))
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, ErrNoPeriodForDate
	}
	return p, err
}

// GetPeriod loads one period.
func (r *Repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id = $1`, id))
}

// ListPeriods returns the ordered periods of a fiscal year.
func (r *Repository) ListPeriods(ctx context.Context, yearID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+periodColumns+` FROM fiscal_periods WHERE year_id = $1 ORDER BY start_date`, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// GetStoreOverride returns the override when one exists, nil otherwise.
func (r *Repository) GetStoreOverride(ctx context.Context, periodID, storeID int64) (*StoreOverride, error) {
	var o StoreOverride
	err := r.pool.QueryRow(ctx,
		`SELECT period_id, store_id, status, set_by, created_at, updated_at
		 FROM fiscal_period_store_overrides WHERE period_id = $1 AND store_id = $2`,
		periodID, storeID).Scan(&o.PeriodID, &o.StoreID, &o.Status, &o.SetBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *txRepository) YearRangeConflict(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fiscal_years WHERE start_date <= $2 AND end_date >= $1)`,
		start, end).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertFiscalYear(ctx context.Context, year FiscalYear) (FiscalYear, error) {
	err := r.tx.QueryRow(ctx,
		`INSERT INTO fiscal_years (code, start_date, end_date, created_by)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		year.Code, year.StartDate, year.EndDate, year.CreatedBy).Scan(&year.ID, &year.CreatedAt)
	return year, err
}

func (r *txRepository) InsertPeriod(ctx context.Context, period Period) (Period, error) {
	err := r.tx.QueryRow(ctx,
		`INSERT INTO fiscal_periods (year_id, code, start_date, end_date, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`,
		period.YearID, period.Code, period.StartDate, period.EndDate, period.Status).
		Scan(&period.ID, &period.CreatedAt, &period.UpdatedAt)
	return period, err
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM fiscal_periods WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error {
	var column string
	switch status {
	case PeriodStatusClosed:
		column = "closed"
	case PeriodStatusLocked:
		column = "locked"
	case PeriodStatusOpen:
		column = "reopened"
	default:
		return ErrInvalidStatus
	}
	tag, err := r.tx.Exec(ctx,
		`UPDATE fiscal_periods SET status = $2, `+column+`_by = $3, `+column+`_at = $4, updated_at = $4 WHERE id = $1`,
		id, status, actorID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) UpsertStoreOverride(ctx context.Context, override StoreOverride) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO fiscal_period_store_overrides (period_id, store_id, status, set_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (period_id, store_id) DO UPDATE SET status = EXCLUDED.status, set_by = EXCLUDED.set_by, updated_at = NOW()`,
		override.PeriodID, override.StoreID, override.Status, override.SetBy)
	return err
}
