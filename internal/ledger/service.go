package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PeriodGuard is the single fiscal gate consulted before any entry lands. It
// is store-override aware and errors on every non-postable state.
type PeriodGuard interface {
	ValidatePeriodOpen(ctx context.Context, date time.Time, storeID *int64) error
}

// AuditPort records posting and voiding events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posting attempts by type and outcome.
type MetricsPort interface {
	RecordPosting(entryType, outcome string)
}

// Service is the journal posting engine: the one gate through which every
// ledger record is created, posted, or voided.
type Service struct {
	repo       RepositoryPort
	guard      PeriodGuard
	audit      AuditPort
	metrics    MetricsPort
	invalidate func(ctx context.Context) error
	now        func() time.Time
}

// NewService constructs the posting engine.
func NewService(repo RepositoryPort, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{repo: repo, guard: guard, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a posting counter.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// WithInvalidator registers a callback fired after a standalone posting or
// void commits, so report caches can drop stale balances.
func (s *Service) WithInvalidator(fn func(ctx context.Context) error) {
	s.invalidate = fn
}

func (s *Service) countPosting(entryType, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPosting(entryType, outcome)
	}
}

func (s *Service) bumpCaches(ctx context.Context) {
	if s.invalidate != nil {
		_ = s.invalidate(ctx)
	}
}

// Post validates and persists a journal entry in its own transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostWithin(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.post", entry, nil)
	s.bumpCaches(ctx)
	return entry, nil
}

// CreateAndPost is the convenience composition used by system workflows: it
// builds the draft from the supplied pieces and posts it through the same
// validation path as Post.
func (s *Service) CreateAndPost(ctx context.Context, entryType, description string, lines []LineInput,
	sourceTable string, sourceID uuid.UUID, storeID *int64, actorID int64, isSystemEntry bool) (JournalEntry, error) {
	now := s.now()
	return s.Post(ctx, PostingInput{
		Type:          entryType,
		Description:   description,
		EntryDate:     now,
		PostingDate:   now,
		SourceTable:   sourceTable,
		SourceID:      sourceID,
		StoreID:       storeID,
		ActorID:       actorID,
		IsSystemEntry: isSystemEntry,
		Lines:         lines,
	})
}

// PostWithin runs the full validation and persistence path against an
// externally managed transaction. Validation order: non-empty, balanced,
// well-formed lines, active accounts, open fiscal period.
func (s *Service) PostWithin(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	input = input.normalized()
	if err := input.Validate(); err != nil {
		s.countPosting(input.Type, "rejected")
		return JournalEntry{}, err
	}
	if err := s.checkAccounts(ctx, tx, input.Lines); err != nil {
		s.countPosting(input.Type, "rejected")
		return JournalEntry{}, err
	}
	if s.guard != nil {
		if err := s.guard.ValidatePeriodOpen(ctx, input.PostingDate, input.StoreID); err != nil {
			s.countPosting(input.Type, "rejected")
			return JournalEntry{}, err
		}
	}
	totalDebit, totalCredit := input.Totals()
	entry, err := tx.InsertEntry(ctx, input,
		totalDebit.StringFixed(MoneyPrecision), totalCredit.StringFixed(MoneyPrecision))
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertLines(ctx, entry.ID, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	if input.SourceTable != "" && input.SourceID != uuid.Nil {
		if err := tx.LinkSource(ctx, input.SourceTable, input.SourceID, entry.ID); err != nil {
			return JournalEntry{}, err
		}
	}
	entry.TotalDebit = totalDebit
	entry.TotalCredit = totalCredit
	entry.Lines = linesFromInput(entry.ID, input.Lines)
	s.countPosting(input.Type, "posted")
	return entry, nil
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, lines []LineInput) error {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	states, err := tx.GetAccountStates(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		state, ok := states[id]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrUnknownAccount, id)
		}
		if !state.Active {
			return fmt.Errorf("%w: %s", ErrInactiveAccount, state.Code)
		}
	}
	return nil
}

// Void reverses a posted entry by synthesizing and posting a mirror entry,
// then linking both. The original is never mutated beyond its status flip and
// reversal link. Direct voids of system entries are rejected; their
// originating business transaction must issue the reversal.
func (s *Service) Void(ctx context.Context, input VoidInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = s.voidWithin(ctx, tx, input, false)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "ledger.void", reversal, map[string]any{"reason": input.Reason})
	s.bumpCaches(ctx)
	return reversal, nil
}

// ReverseSystemEntryWithin voids a system entry inside an orchestrated
// transaction. Only the originating workflow may call this; the public Void
// keeps rejecting system entries.
func (s *Service) ReverseSystemEntryWithin(ctx context.Context, tx TxRepository, input VoidInput) (JournalEntry, error) {
	return s.voidWithin(ctx, tx, input, true)
}

func (s *Service) voidWithin(ctx context.Context, tx TxRepository, input VoidInput, allowSystem bool) (JournalEntry, error) {
	entry, err := tx.GetEntryWithLinesForUpdate(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	switch entry.Status {
	case EntryStatusVoid:
		return JournalEntry{}, fmt.Errorf("%w: entry %d", ErrAlreadyVoid, entry.ID)
	case EntryStatusPosted:
	default:
		return JournalEntry{}, fmt.Errorf("%w: entry %d", ErrNotPosted, entry.ID)
	}
	if entry.ReversedByEntryID != nil {
		return JournalEntry{}, fmt.Errorf("%w: entry %d", ErrAlreadyReversed, entry.ID)
	}
	if entry.IsSystemEntry && !allowSystem {
		return JournalEntry{}, fmt.Errorf("%w: entry %d", ErrSystemEntryVoid, entry.ID)
	}
	now := s.now()
	reason := input.Reason
	if reason == "" {
		reason = fmt.Sprintf("Void of JE %d", entry.Number)
	}
	mirror := PostingInput{
		Type:            entry.Type,
		Description:     fmt.Sprintf("Void of JE %d: %s", entry.Number, reason),
		EntryDate:       now,
		PostingDate:     now,
		SourceTable:     "journal_entries",
		SourceID:        uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("VOID:%d", entry.ID))),
		StoreID:         entry.StoreID,
		ActorID:         input.ActorID,
		IsSystemEntry:   entry.IsSystemEntry,
		Lines:           mirrorLines(entry.Lines),
		reversesEntryID: &entry.ID,
	}
	// The mirror posts through the same validation path, so a void is
	// rejected when the current period is closed or locked.
	reversal, err := s.PostWithin(ctx, tx, mirror)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.MarkEntryVoided(ctx, entry.ID, reversal.ID, now); err != nil {
		return JournalEntry{}, err
	}
	return reversal, nil
}

func mirrorLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			StoreID:   line.StoreID,
			Memo:      line.Memo,
		})
	}
	return out
}

func linesFromInput(entryID int64, lines []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:   entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			StoreID:   line.StoreID,
			Memo:      line.Memo,
		})
	}
	return out
}

// Get loads one entry with lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	return s.repo.GetEntryWithLines(ctx, entryID)
}

// List returns entries newest-first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, limit, offset)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entry JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = entry.Number
	meta["type"] = entry.Type
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
