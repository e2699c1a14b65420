package fiscal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory fiscal calendar acting as its own transaction.
type fakeRepo struct {
	years      map[int64]FiscalYear
	periods    map[int64]*Period
	overrides  map[string]*StoreOverride
	nextYearID int64
	nextID     int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		years:      map[int64]FiscalYear{},
		periods:    map[int64]*Period{},
		overrides:  map[string]*StoreOverride{},
		nextYearID: 1,
		nextID:     1,
	}
}

func overrideKey(periodID, storeID int64) string {
	return fmt.Sprintf("%d:%d", periodID, storeID)
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

// FindPeriodByDate compares raw bounds exactly like the SQL predicate does,
// so a caller passing a wall-clock timestamp misses the period whose end date
// sits at midnight of the same day.
func (r *fakeRepo) FindPeriodByDate(_ context.Context, date time.Time) (Period, error) {
	for _, p := range r.periods {
		if !date.Before(p.StartDate) && !date.After(p.EndDate) {
			return *p, nil
		}
	}
	return Period{}, ErrNoPeriodForDate
}

func (r *fakeRepo) GetStoreOverride(_ context.Context, periodID, storeID int64) (*StoreOverride, error) {
	if o, ok := r.overrides[overrideKey(periodID, storeID)]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeRepo) GetPeriod(_ context.Context, id int64) (Period, error) {
	if p, ok := r.periods[id]; ok {
		return *p, nil
	}
	return Period{}, ErrPeriodNotFound
}

func (r *fakeRepo) ListPeriods(_ context.Context, yearID int64) ([]Period, error) {
	var out []Period
	for id := int64(1); id < r.nextID; id++ {
		if p, ok := r.periods[id]; ok && p.YearID == yearID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) YearRangeConflict(_ context.Context, start, end time.Time) (bool, error) {
	for _, y := range r.years {
		if !start.After(y.EndDate) && !end.Before(y.StartDate) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) InsertFiscalYear(_ context.Context, year FiscalYear) (FiscalYear, error) {
	year.ID = r.nextYearID
	r.nextYearID++
	r.years[year.ID] = year
	return year, nil
}

func (r *fakeRepo) InsertPeriod(_ context.Context, period Period) (Period, error) {
	period.ID = r.nextID
	r.nextID++
	stored := period
	r.periods[period.ID] = &stored
	return period, nil
}

func (r *fakeRepo) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return r.GetPeriod(ctx, id)
}

func (r *fakeRepo) UpdatePeriodStatus(_ context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error {
	p, ok := r.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	return nil
}

func (r *fakeRepo) UpsertStoreOverride(_ context.Context, override StoreOverride) error {
	stored := override
	r.overrides[overrideKey(override.PeriodID, override.StoreID)] = &stored
	return nil
}

func newFixture(t *testing.T) (*Service, *fakeRepo, []Period) {
	t.Helper()
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	_, periods, err := svc.CreateFiscalYear(context.Background(), time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	require.Len(t, periods, 12)
	return svc, repo, periods
}

func TestCreateFiscalYearBuildsTwelveMonthlyPeriods(t *testing.T) {
	_, _, periods := newFixture(t)

	require.Equal(t, "2026-01", periods[0].Code)
	require.Equal(t, "2026-12", periods[11].Code)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), periods[0].StartDate)
	require.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), periods[0].EndDate)
	require.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), periods[11].EndDate)
	for _, p := range periods {
		require.Equal(t, PeriodStatusOpen, p.Status)
	}
}

func TestCreateFiscalYearRejectsOverlap(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, _, err := svc.CreateFiscalYear(context.Background(), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 1)
	require.ErrorIs(t, err, ErrYearOverlap)
}

func TestPeriodStateMachine(t *testing.T) {
	svc, _, periods := newFixture(t)
	ctx := context.Background()
	id := periods[0].ID

	// Open -> Closed.
	p, err := svc.ClosePeriod(ctx, id, 1)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, p.Status)

	// Closing again fails.
	_, err = svc.ClosePeriod(ctx, id, 1)
	require.ErrorIs(t, err, ErrPeriodNotOpen)

	// Closed -> Open, then back to Closed -> Locked.
	p, err = svc.ReopenPeriod(ctx, id, 1, "late supplier invoice")
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, p.Status)

	_, err = svc.LockPeriod(ctx, id, 1)
	require.ErrorIs(t, err, ErrPeriodNotClosed, "only a closed period can be locked")

	_, err = svc.ClosePeriod(ctx, id, 1)
	require.NoError(t, err)
	p, err = svc.LockPeriod(ctx, id, 1)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusLocked, p.Status)

	// Locked is terminal.
	_, err = svc.ReopenPeriod(ctx, id, 1, "try anyway")
	require.ErrorIs(t, err, ErrPeriodLocked)
	_, err = svc.ClosePeriod(ctx, id, 1)
	require.ErrorIs(t, err, ErrPeriodLocked)
}

func TestReopenRequiresReason(t *testing.T) {
	svc, _, periods := newFixture(t)
	ctx := context.Background()

	_, err := svc.ClosePeriod(ctx, periods[0].ID, 1)
	require.NoError(t, err)

	_, err = svc.ReopenPeriod(ctx, periods[0].ID, 1, "   ")
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestStoreOverrideShadowsPeriodStatus(t *testing.T) {
	svc, _, periods := newFixture(t)
	ctx := context.Background()
	id := periods[0].ID
	storeID := int64(3)

	require.NoError(t, svc.SetStoreStatus(ctx, id, storeID, PeriodStatusClosed, 1))

	status, err := svc.GetEffectiveStatus(ctx, id, &storeID)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, status)

	// Other stores still see the period status.
	other := int64(4)
	status, err = svc.GetEffectiveStatus(ctx, id, &other)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, status)

	status, err = svc.GetEffectiveStatus(ctx, id, nil)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, status)
}

func TestStoreOverrideRejectedOnLockedPeriod(t *testing.T) {
	svc, _, periods := newFixture(t)
	ctx := context.Background()
	id := periods[0].ID

	_, err := svc.ClosePeriod(ctx, id, 1)
	require.NoError(t, err)
	_, err = svc.LockPeriod(ctx, id, 1)
	require.NoError(t, err)

	err = svc.SetStoreStatus(ctx, id, 3, PeriodStatusOpen, 1)
	require.ErrorIs(t, err, ErrPeriodLocked)
}

func TestValidatePeriodOpen(t *testing.T) {
	svc, _, periods := newFixture(t)
	ctx := context.Background()
	inJanuary := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.ValidatePeriodOpen(ctx, inJanuary, nil))

	// No period covers the date.
	err := svc.ValidatePeriodOpen(ctx, time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	require.ErrorIs(t, err, ErrNoPeriodForDate)

	// Store override closes January for store 3 only.
	storeID := int64(3)
	require.NoError(t, svc.SetStoreStatus(ctx, periods[0].ID, storeID, PeriodStatusClosed, 1))
	err = svc.ValidatePeriodOpen(ctx, inJanuary, &storeID)
	require.ErrorIs(t, err, ErrPeriodClosed)
	require.NoError(t, svc.ValidatePeriodOpen(ctx, inJanuary, nil))

	// Closing the period blocks everyone.
	_, err = svc.ClosePeriod(ctx, periods[0].ID, 1)
	require.NoError(t, err)
	err = svc.ValidatePeriodOpen(ctx, inJanuary, nil)
	require.ErrorIs(t, err, ErrPeriodClosed)

	// Locked reports its own error.
	_, err = svc.LockPeriod(ctx, periods[0].ID, 1)
	require.NoError(t, err)
	err = svc.ValidatePeriodOpen(ctx, inJanuary, nil)
	require.ErrorIs(t, err, ErrPeriodLocked)
}

func TestValidatePeriodOpenOnLastDayOfMonth(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	// Period end dates sit at midnight of the month's last day; a posting
	// stamped with wall-clock time later that day must still land inside
	// the period.
	lastDay := time.Date(2026, 3, 31, 14, 22, 7, 0, time.UTC)
	require.NoError(t, svc.ValidatePeriodOpen(ctx, lastDay, nil))

	period, err := svc.FindPeriodByDate(ctx, lastDay)
	require.NoError(t, err)
	require.Equal(t, "2026-03", period.Code)
}
