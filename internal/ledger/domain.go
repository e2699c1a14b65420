package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPrecision is the number of decimal places at which debit and credit
// totals must agree.
const MoneyPrecision = 2

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// Well-known entry types. The type is a free tag identifying the originating
// business event; these constants cover the system-generated ones.
const (
	EntryTypeManual         = "MANUAL"
	EntryTypeSale           = "SALE"
	EntryTypeSaleReturn     = "SALE_RETURN"
	EntryTypePurchase       = "PURCHASE"
	EntryTypePurchaseReturn = "PURCHASE_RETURN"
	EntryTypeAdjustment     = "ADJUSTMENT"
	EntryTypeTransfer       = "TRANSFER"
	EntryTypeWriteOff       = "WRITE_OFF"
)

// JournalEntry is one balanced accounting record. Once posted it is immutable
// except for the status flip to VOID and the reversal links.
type JournalEntry struct {
	ID                int64
	Number            int64
	Type              string
	Description       string
	EntryDate         time.Time
	PostingDate       time.Time
	SourceTable       string
	SourceID          uuid.UUID
	StoreID           *int64
	Status            EntryStatus
	TotalDebit        decimal.Decimal
	TotalCredit       decimal.Decimal
	IsSystemEntry     bool
	ReversesEntryID   *int64
	ReversedByEntryID *int64
	PostedBy          int64
	PostedAt          time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Lines             []JournalLine
}

// JournalLine carries either a debit or a credit amount for one account,
// never both and never a negative value.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	StoreID   *int64
	Memo      string
}

// LineInput describes one journal line for posting.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	StoreID   *int64
	Memo      string
}

// PostingInput groups everything required to create and post an entry.
type PostingInput struct {
	Type          string
	Description   string
	EntryDate     time.Time
	PostingDate   time.Time
	SourceTable   string
	SourceID      uuid.UUID
	StoreID       *int64
	ActorID       int64
	IsSystemEntry bool
	Lines         []LineInput

	// reversesEntryID is set only by the void path.
	reversesEntryID *int64
}

// VoidInput wraps parameters for voiding a posted entry.
type VoidInput struct {
	EntryID int64
	Reason  string
	ActorID int64
}

var (
	// ErrEmptyJournal indicates an entry without lines.
	ErrEmptyJournal = errors.New("ledger: journal entry has no lines")
	// ErrUnbalanced indicates total debits differ from total credits.
	ErrUnbalanced = errors.New("ledger: debits do not equal credits")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("ledger: line amount is negative")
	// ErrLineBothSides indicates a line with both a debit and a credit.
	ErrLineBothSides = errors.New("ledger: line cannot carry both debit and credit")
	// ErrLineNoAmount indicates a line with neither a debit nor a credit.
	ErrLineNoAmount = errors.New("ledger: line carries neither debit nor credit")
	// ErrInactiveAccount indicates a line referencing a deactivated account.
	ErrInactiveAccount = errors.New("ledger: account is inactive")
	// ErrUnknownAccount indicates a line referencing a missing account.
	ErrUnknownAccount = errors.New("ledger: account does not exist")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrNotPosted indicates a void attempt on a non-posted entry.
	ErrNotPosted = errors.New("ledger: entry is not posted")
	// ErrAlreadyVoid indicates the entry was voided before.
	ErrAlreadyVoid = errors.New("ledger: entry is already void")
	// ErrAlreadyReversed indicates the entry already carries a reversal link.
	ErrAlreadyReversed = errors.New("ledger: entry is already reversed")
	// ErrSystemEntryVoid indicates a direct void of a system-generated entry.
	ErrSystemEntryVoid = errors.New("ledger: system entries must be voided through their originating transaction")
	// ErrSourceAlreadyLinked indicates the source document already produced an entry.
	ErrSourceAlreadyLinked = errors.New("ledger: source already posted")
)

// Validate checks the structural invariants that hold before any persistence
// is attempted: at least one line, well-formed line amounts, and balance at
// MoneyPrecision.
func (in PostingInput) Validate() error {
	if len(in.Lines) == 0 {
		return ErrEmptyJournal
	}
	if in.Type == "" {
		return errors.New("ledger: entry type required")
	}
	if in.PostingDate.IsZero() {
		return errors.New("ledger: posting date required")
	}
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d", ErrNegativeAmount, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d", ErrLineBothSides, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d", ErrLineNoAmount, idx)
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if !totalDebit.Round(MoneyPrecision).Equal(totalCredit.Round(MoneyPrecision)) {
		return fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced,
			totalDebit.StringFixed(MoneyPrecision), totalCredit.StringFixed(MoneyPrecision))
	}
	return nil
}

// normalized returns a copy whose line amounts are rounded to MoneyPrecision.
// Rounding happens before validation so the stored lines, the stored totals,
// and the balance check all agree on the same 2dp amounts.
func (in PostingInput) normalized() PostingInput {
	lines := make([]LineInput, len(in.Lines))
	for i, line := range in.Lines {
		line.Debit = line.Debit.Round(MoneyPrecision)
		line.Credit = line.Credit.Round(MoneyPrecision)
		lines[i] = line
	}
	in.Lines = lines
	return in
}

// Totals returns the summed debit and credit amounts.
func (in PostingInput) Totals() (decimal.Decimal, decimal.Decimal) {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, line := range in.Lines {
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	return totalDebit, totalCredit
}
