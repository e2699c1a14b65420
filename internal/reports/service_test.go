package reports

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	rows      []TrialBalanceRow
	rowCalls  int
	count     int64
	stock     []StockRow
	stockCall int
}

func (m *mockRepo) TrialBalanceRows(context.Context, time.Time, *int64) ([]TrialBalanceRow, error) {
	m.rowCalls++
	return m.rows, nil
}

func (m *mockRepo) EntryCount(context.Context, time.Time, *int64) (int64, error) {
	return m.count, nil
}

func (m *mockRepo) StockRows(context.Context, int64) ([]StockRow, error) {
	m.stockCall++
	return m.stock, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testService(t *testing.T, repo *mockRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute))
}

func TestTrialBalanceAggregatesAndBalances(t *testing.T) {
	repo := &mockRepo{
		rows: []TrialBalanceRow{
			{AccountID: 1, AccountCode: "1000", TotalDebit: dec("172"), TotalCredit: dec("0")},
			{AccountID: 2, AccountCode: "4000", TotalDebit: dec("0"), TotalCredit: dec("120")},
			{AccountID: 3, AccountCode: "1400", TotalDebit: dec("0"), TotalCredit: dec("52")},
		},
		count: 2,
	}
	svc := testService(t, repo)

	tb, err := svc.TrialBalance(context.Background(), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(dec("172")))
	require.True(t, tb.TotalCredit.Equal(dec("172")))
	require.True(t, tb.Balanced)
	require.Equal(t, int64(2), tb.EntryCount)
	require.Len(t, tb.Rows, 3)
}

func TestTrialBalanceDetectsImbalance(t *testing.T) {
	repo := &mockRepo{
		rows: []TrialBalanceRow{
			{AccountID: 1, AccountCode: "1000", TotalDebit: dec("100"), TotalCredit: dec("0")},
			{AccountID: 2, AccountCode: "4000", TotalDebit: dec("0"), TotalCredit: dec("99")},
		},
	}
	svc := testService(t, repo)

	tb, err := svc.TrialBalance(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	require.False(t, tb.Balanced)
}

func TestTrialBalanceServedFromCacheUntilBump(t *testing.T) {
	repo := &mockRepo{
		rows:  []TrialBalanceRow{{AccountID: 1, AccountCode: "1000", TotalDebit: dec("10"), TotalCredit: dec("10")}},
		count: 1,
	}
	svc := testService(t, repo)
	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	_, err := svc.TrialBalance(context.Background(), asOf, nil)
	require.NoError(t, err)
	_, err = svc.TrialBalance(context.Background(), asOf, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.rowCalls, "second read must hit the cache")

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.TrialBalance(context.Background(), asOf, nil)
	require.NoError(t, err)
	require.Equal(t, 2, repo.rowCalls, "bump must invalidate the cached report")
}

func TestStockOnHandSumsValue(t *testing.T) {
	repo := &mockRepo{
		stock: []StockRow{
			{StoreID: 1, ProductID: 77, OnHand: dec("6"), Value: dec("36")},
			{StoreID: 1, ProductID: 78, OnHand: dec("3"), Value: dec("7.5")},
		},
	}
	svc := testService(t, repo)

	report, err := svc.StockOnHand(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, report.TotalValue.Equal(dec("43.5")))
	require.Len(t, report.Rows, 2)
}

func TestReportsWorkWithoutCache(t *testing.T) {
	repo := &mockRepo{count: 0}
	svc := NewService(repo, nil)

	tb, err := svc.TrialBalance(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	require.True(t, tb.Balanced, "empty book balances trivially")
}
