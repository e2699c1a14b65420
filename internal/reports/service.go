package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TrialBalance is the assembled report. Debits equal credits whenever the
// journal invariants held, so Balanced is a cheap integrity signal.
type TrialBalance struct {
	AsOf        string            `json:"as_of"`
	StoreID     *int64            `json:"store_id,omitempty"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	EntryCount  int64             `json:"entry_count"`
	Balanced    bool              `json:"balanced"`
}

// StockOnHand is the per-store stock valuation report.
type StockOnHand struct {
	StoreID    int64           `json:"store_id"`
	Rows       []StockRow      `json:"rows"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Service builds read models over the journal and the lot ledger.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService constructs the service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// TrialBalance aggregates per-account totals as of a date, optionally scoped
// to one store. Rows and the entry count are fetched concurrently.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time, storeID *int64) (TrialBalance, error) {
	asOfStr := asOf.Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, keyTrialBalance(asOfStr, storeID)...)
	if err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (any, error) {
		return s.buildTrialBalance(ctx, asOf, asOfStr, storeID)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

func (s *Service) buildTrialBalance(ctx context.Context, asOf time.Time, asOfStr string, storeID *int64) (TrialBalance, error) {
	var (
		rows  []TrialBalanceRow
		count int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.TrialBalanceRows(gctx, asOf, storeID)
		return err
	})
	g.Go(func() error {
		var err error
		count, err = s.repo.EntryCount(gctx, asOf, storeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return TrialBalance{}, fmt.Errorf("reports: trial balance: %w", err)
	}

	tb := TrialBalance{
		AsOf:        asOfStr,
		StoreID:     storeID,
		Rows:        rows,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		EntryCount:  count,
	}
	for _, row := range rows {
		tb.TotalDebit = tb.TotalDebit.Add(row.TotalDebit)
		tb.TotalCredit = tb.TotalCredit.Add(row.TotalCredit)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}

// StockOnHand values the remaining lots of one store.
func (s *Service) StockOnHand(ctx context.Context, storeID int64) (StockOnHand, error) {
	key, err := s.cache.BuildKey(ctx, keyStockOnHand(storeID, 0)...)
	if err != nil {
		return StockOnHand{}, err
	}
	var report StockOnHand
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		rows, err := s.repo.StockRows(ctx, storeID)
		if err != nil {
			return nil, fmt.Errorf("reports: stock on hand: %w", err)
		}
		out := StockOnHand{StoreID: storeID, Rows: rows, TotalValue: decimal.Zero}
		for _, row := range rows {
			out.TotalValue = out.TotalValue.Add(row.Value)
		}
		return out, nil
	})
	if err != nil {
		return StockOnHand{}, err
	}
	return report, nil
}

// Invalidate bumps the cache version after postings land.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
