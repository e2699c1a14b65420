package coa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	accounts map[int64]*Account
	mappings map[string]AccountMapping
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: map[int64]*Account{}, mappings: map[string]AccountMapping{}}
}

func (r *fakeRepo) ListAccounts(context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeRepo) GetAccount(_ context.Context, id int64) (Account, error) {
	if a, ok := r.accounts[id]; ok {
		return *a, nil
	}
	return Account{}, ErrAccountNotFound
}

func (r *fakeRepo) GetAccountByCode(_ context.Context, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.Code == code {
			return *a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (r *fakeRepo) SetAccountActive(_ context.Context, id int64, active bool, _ int64) error {
	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (r *fakeRepo) GetMapping(_ context.Context, module, key string) (AccountMapping, error) {
	if m, ok := r.mappings[module+"/"+key]; ok {
		return m, nil
	}
	return AccountMapping{}, ErrMappingNotFound
}

func (r *fakeRepo) ListMappings(_ context.Context, module string) ([]AccountMapping, error) {
	var out []AccountMapping
	for _, m := range r.mappings {
		if m.Module == module {
			out = append(out, m)
		}
	}
	return out, nil
}

func newFixture() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	repo.accounts[1] = &Account{ID: 1, Code: "1300", Name: "Inventory", Type: AccountTypeInventory, IsActive: true, IsSystemAccount: true}
	repo.accounts[2] = &Account{ID: 2, Code: "6100", Name: "Repairs", Type: AccountTypeExpense, IsActive: true}
	repo.mappings["invacct/sale.revenue"] = AccountMapping{Module: "invacct", Key: "sale.revenue", AccountID: 40}
	return NewService(repo, nil), repo
}

func TestSetActiveTogglesPlainAccount(t *testing.T) {
	svc, repo := newFixture()

	account, err := svc.SetActive(context.Background(), 2, false, 7)
	require.NoError(t, err)
	require.False(t, account.IsActive)
	require.False(t, repo.accounts[2].IsActive)
}

func TestSetActiveRejectsSystemAccount(t *testing.T) {
	svc, repo := newFixture()

	_, err := svc.SetActive(context.Background(), 1, false, 7)
	require.ErrorIs(t, err, ErrSystemAccount)
	require.True(t, repo.accounts[1].IsActive)
}

func TestSetActiveMissingAccount(t *testing.T) {
	svc, _ := newFixture()

	_, err := svc.SetActive(context.Background(), 404, false, 7)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestResolveAccount(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	id, err := svc.ResolveAccount(ctx, "invacct", "sale.revenue")
	require.NoError(t, err)
	require.EqualValues(t, 40, id)

	_, err = svc.ResolveAccount(ctx, "invacct", "sale.cogs")
	require.ErrorIs(t, err, ErrMappingNotFound)
	require.Contains(t, err.Error(), "invacct/sale.cogs")
}

func TestNormalBalanceSides(t *testing.T) {
	require.Equal(t, BalanceSideDebit, AccountTypeInventory.NormalBalance())
	require.Equal(t, BalanceSideDebit, AccountTypeCOGS.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypeRevenue.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypePayable.NormalBalance())
	require.Equal(t, BalanceSideCredit, AccountTypeEquity.NormalBalance())
}
