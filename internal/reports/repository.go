package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TrialBalanceRow is one account's accumulated activity.
type TrialBalanceRow struct {
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	AccountType string          `json:"account_type"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// StockRow is one product's remaining quantity and value at a store.
type StockRow struct {
	StoreID   int64           `json:"store_id"`
	ProductID int64           `json:"product_id"`
	OnHand    decimal.Decimal `json:"on_hand"`
	Value     decimal.Decimal `json:"value"`
}

// RepositoryPort abstracts the read queries so the service is testable
// without Postgres.
type RepositoryPort interface {
	TrialBalanceRows(ctx context.Context, asOf time.Time, storeID *int64) ([]TrialBalanceRow, error)
	EntryCount(ctx context.Context, asOf time.Time, storeID *int64) (int64, error)
	StockRows(ctx context.Context, storeID int64) ([]StockRow, error)
}

// Repository runs the report queries via pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TrialBalanceRows aggregates per-account debit and credit totals over all
// non-draft entries. Voided entries stay in; their mirror entries cancel them
// out, which is exactly the append-only book the journal keeps.
func (r *Repository) TrialBalanceRows(ctx context.Context, asOf time.Time, storeID *int64) ([]TrialBalanceRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.code, a.name, a.type,
		        COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		 FROM accounts a
		 JOIN journal_entry_lines l ON l.account_id = a.id
		 JOIN journal_entries e ON e.id = l.entry_id
		 WHERE e.status IN ('POSTED', 'VOID')
		   AND e.posting_date <= $1
		   AND ($2::bigint IS NULL OR l.store_id = $2)
		 GROUP BY a.id, a.code, a.name, a.type
		 ORDER BY a.code`,
		asOf, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountID, &row.AccountCode, &row.AccountName, &row.AccountType,
			&row.TotalDebit, &row.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// EntryCount counts the entries feeding the trial balance.
func (r *Repository) EntryCount(ctx context.Context, asOf time.Time, storeID *int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT e.id)
		 FROM journal_entries e
		 JOIN journal_entry_lines l ON l.entry_id = e.id
		 WHERE e.status IN ('POSTED', 'VOID')
		   AND e.posting_date <= $1
		   AND ($2::bigint IS NULL OR l.store_id = $2)`,
		asOf, storeID).Scan(&count)
	return count, err
}

// StockRows aggregates remaining quantities and lot values per product.
func (r *Repository) StockRows(ctx context.Context, storeID int64) ([]StockRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT store_id, product_id,
		        COALESCE(SUM(remaining_qty), 0),
		        COALESCE(SUM(remaining_qty * unit_cost), 0)
		 FROM inventory_lots
		 WHERE store_id = $1
		 GROUP BY store_id, product_id
		 ORDER BY product_id`,
		storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockRow
	for rows.Next() {
		var row StockRow
		if err := rows.Scan(&row.StoreID, &row.ProductID, &row.OnHand, &row.Value); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
