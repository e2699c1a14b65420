package coa

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and maintains chart of accounts data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, code, name, family, head, subhead, type, is_active, is_system, created_by, created_at, updated_by, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Family, &a.Head, &a.Subhead, &a.Type,
		&a.IsActive, &a.IsSystemAccount, &a.CreatedBy, &a.CreatedAt, &a.UpdatedBy, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// ListAccounts returns the full chart ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount loads one account by id.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetAccountByCode loads one account by its chart code.
func (r *Repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
}

// SetAccountActive flips the active flag.
func (r *Repository) SetAccountActive(ctx context.Context, id int64, active bool, actorID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET is_active = $2, updated_by = $3, updated_at = $4 WHERE id = $1`,
		id, active, actorID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// GetMapping resolves a module/key posting mapping.
func (r *Repository) GetMapping(ctx context.Context, module, key string) (AccountMapping, error) {
	var m AccountMapping
	err := r.pool.QueryRow(ctx,
		`SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module = $1 AND key = $2`,
		module, key).Scan(&m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountMapping{}, ErrMappingNotFound
	}
	return m, err
}

// ListMappings returns mappings for one module.
func (r *Repository) ListMappings(ctx context.Context, module string) ([]AccountMapping, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module = $1 ORDER BY key`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mappings []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
