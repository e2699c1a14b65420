package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountState is the slice of account data the posting engine validates
// against.
type AccountState struct {
	Code   string
	Active bool
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, error)
}

// TxRepository exposes the operations available inside a posting transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in PostingInput, totalDebit, totalCredit string) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	LinkSource(ctx context.Context, table string, sourceID uuid.UUID, entryID int64) error
	GetAccountStates(ctx context.Context, accountIDs []int64) (map[int64]AccountState, error)
	GetEntryWithLinesForUpdate(ctx context.Context, entryID int64) (JournalEntry, error)
	MarkEntryVoided(ctx context.Context, entryID, reversedByEntryID int64, at time.Time) error
}

// Repository persists journal entries via pgx.
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

// NewTxRepository binds a TxRepository to an externally managed transaction.
// The inventory-accounting orchestrator uses this to post journal entries and
// lot mutations in one atomic scope.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
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

const entryColumns = `id, number, type, description, entry_date, posting_date, source_table, source_id, store_id, status, total_debit, total_credit, is_system, reverses_entry_id, reversed_by_entry_id, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Type, &e.Description, &e.EntryDate, &e.PostingDate,
		&e.SourceTable, &e.SourceID, &e.StoreID, &e.Status, &e.TotalDebit, &e.TotalCredit,
		&e.IsSystemEntry, &e.ReversesEntryID, &e.ReversedByEntryID, &e.PostedBy, &e.PostedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput, totalDebit, totalCredit string) (JournalEntry, error) {
	// number comes from a transactional sequence: strictly monotonic and
	// collision-free under concurrent posting.
	row := r.tx.QueryRow(ctx,
		`INSERT INTO journal_entries
		   (number, type, description, entry_date, posting_date, source_table, source_id, store_id,
		    status, total_debit, total_credit, is_system, reverses_entry_id, posted_by, posted_at)
		 VALUES (nextval('journal_entry_number_seq'), $1, $2, $3, $4, $5, $6, $7, 'POSTED', $8, $9, $10, $11, $12, NOW())
		 RETURNING id, number, posted_at, created_at, updated_at`,
		in.Type, in.Description, in.EntryDate, in.PostingDate, in.SourceTable, in.SourceID,
		in.StoreID, totalDebit, totalCredit, in.IsSystemEntry, in.reversesEntryID, in.ActorID)
	entry := JournalEntry{
		Type:            in.Type,
		Description:     in.Description,
		EntryDate:       in.EntryDate,
		PostingDate:     in.PostingDate,
		SourceTable:     in.SourceTable,
		SourceID:        in.SourceID,
		StoreID:         in.StoreID,
		Status:          EntryStatusPosted,
		IsSystemEntry:   in.IsSystemEntry,
		ReversesEntryID: in.reversesEntryID,
		PostedBy:        in.ActorID,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx,
			`INSERT INTO journal_entry_lines (entry_id, account_id, debit, credit, store_id, memo)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			entryID, line.AccountID, line.Debit, line.Credit, line.StoreID, line.Memo); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, table string, sourceID uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO journal_source_links (source_table, source_id, entry_id) VALUES ($1, $2, $3)`,
		table, sourceID, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_source_links" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) GetAccountStates(ctx context.Context, accountIDs []int64) (map[int64]AccountState, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, code, is_active FROM accounts WHERE id = ANY($1)`, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states := make(map[int64]AccountState, len(accountIDs))
	for rows.Next() {
		var id int64
		var state AccountState
		if err := rows.Scan(&id, &state.Code, &state.Active); err != nil {
			return nil, err
		}
		states[id] = state
	}
	return states, rows.Err()
}

func (r *txRepository) GetEntryWithLinesForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = $1 FOR UPDATE`, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.tx, entryID)
	return entry, err
}

func (r *txRepository) MarkEntryVoided(ctx context.Context, entryID, reversedByEntryID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE journal_entries SET status = 'VOID', reversed_by_entry_id = $2, updated_at = $3
		 WHERE id = $1 AND status = 'POSTED'`,
		entryID, reversedByEntryID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPosted
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx,
		`SELECT id, entry_id, account_id, debit, credit, store_id, memo
		 FROM journal_entry_lines WHERE entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.StoreID, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetEntryWithLines loads a posted or voided entry and its lines.
func (r *Repository) GetEntryWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, r.pool, entryID)
	return entry, err
}

// ListEntries returns entries newest-first.
func (r *Repository) ListEntries(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM journal_entries ORDER BY number DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
