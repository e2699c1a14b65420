package fiscal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the fiscal calendar: year creation, the period state
// machine, store overrides, and the single posting-date gate used by the
// ledger.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFiscalYear creates a year starting at the first of startDate's month
// together with twelve consecutive monthly periods, all in one transaction.
func (s *Service) CreateFiscalYear(ctx context.Context, startDate time.Time, actorID int64) (FiscalYear, []Period, error) {
	start := time.Date(startDate.Year(), startDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, -1)
	year := FiscalYear{
		Code:      fmt.Sprintf("FY%d", start.Year()),
		StartDate: start,
		EndDate:   end,
		CreatedBy: actorID,
	}
	var periods []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := tx.YearRangeConflict(ctx, start, end)
		if err != nil {
			return err
		}
		if conflict {
			return ErrYearOverlap
		}
		year, err = tx.InsertFiscalYear(ctx, year)
		if err != nil {
			return err
		}
		for i := 0; i < 12; i++ {
			periodStart := start.AddDate(0, i, 0)
			period := Period{
				YearID:    year.ID,
				Code:      periodStart.Format("2006-01"),
				StartDate: periodStart,
				EndDate:   periodStart.AddDate(0, 1, -1),
				Status:    PeriodStatusOpen,
			}
			inserted, err := tx.InsertPeriod(ctx, period)
			if err != nil {
				return err
			}
			periods = append(periods, inserted)
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, nil, err
	}
	s.record(ctx, actorID, "fiscal.year.create", "fiscal_year", year.Code, map[string]any{
		"start": start.Format("2006-01-02"),
		"end":   end.Format("2006-01-02"),
	})
	return year, periods, nil
}

// ClosePeriod transitions Open -> Closed.
func (s *Service) ClosePeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	period, err := s.transition(ctx, periodID, actorID, PeriodStatusClosed)
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actorID, "fiscal.period.close", "fiscal_period", period.Code, nil)
	return period, nil
}

// ReopenPeriod transitions Closed -> Open. The reason is mandatory and lands
// in the audit trail; a locked period can never be reopened.
func (s *Service) ReopenPeriod(ctx context.Context, periodID, actorID int64, reason string) (Period, error) {
	if strings.TrimSpace(reason) == "" {
		return Period{}, ErrReasonRequired
	}
	period, err := s.transition(ctx, periodID, actorID, PeriodStatusOpen)
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actorID, "fiscal.period.reopen", "fiscal_period", period.Code, map[string]any{"reason": reason})
	return period, nil
}

// LockPeriod transitions Closed -> Locked. Locked is terminal.
func (s *Service) LockPeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	period, err := s.transition(ctx, periodID, actorID, PeriodStatusLocked)
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, actorID, "fiscal.period.lock", "fiscal_period", period.Code, nil)
	return period, nil
}

func (s *Service) transition(ctx context.Context, periodID, actorID int64, target PeriodStatus) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if current.Status == PeriodStatusLocked {
			return fmt.Errorf("%w: %s", ErrPeriodLocked, current.Code)
		}
		switch target {
		case PeriodStatusClosed:
			if current.Status != PeriodStatusOpen {
				return fmt.Errorf("%w: %s", ErrPeriodNotOpen, current.Code)
			}
		case PeriodStatusOpen, PeriodStatusLocked:
			if current.Status != PeriodStatusClosed {
				return fmt.Errorf("%w: %s", ErrPeriodNotClosed, current.Code)
			}
		default:
			return ErrInvalidStatus
		}
		if err := tx.UpdatePeriodStatus(ctx, periodID, target, actorID, s.now()); err != nil {
			return err
		}
		period = current
		period.Status = target
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// SetStoreStatus overrides the period status for one store. Overrides are
// rejected once the period itself is locked.
func (s *Service) SetStoreStatus(ctx context.Context, periodID, storeID int64, status PeriodStatus, actorID int64) error {
	switch status {
	case PeriodStatusOpen, PeriodStatusClosed, PeriodStatusLocked:
	default:
		return ErrInvalidStatus
	}
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status == PeriodStatusLocked {
			return fmt.Errorf("%w: %s", ErrPeriodLocked, period.Code)
		}
		code = period.Code
		return tx.UpsertStoreOverride(ctx, StoreOverride{
			PeriodID: periodID,
			StoreID:  storeID,
			Status:   status,
			SetBy:    actorID,
		})
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "fiscal.period.store_override", "fiscal_period", code, map[string]any{
		"store_id": storeID,
		"status":   string(status),
	})
	return nil
}

// GetEffectiveStatus resolves the status a store sees for a period.
func (s *Service) GetEffectiveStatus(ctx context.Context, periodID int64, storeID *int64) (PeriodStatus, error) {
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return "", err
	}
	if storeID == nil {
		return period.Status, nil
	}
	override, err := s.repo.GetStoreOverride(ctx, periodID, *storeID)
	if err != nil {
		return "", err
	}
	return EffectiveStatus(period, override), nil
}

// ValidatePeriodOpen is the single gate the posting engine consults. It
// returns an error for every non-postable state so a closed period can never
// be ignored silently. Posting timestamps carry wall-clock time while periods
// span whole days, so the date is truncated before the lookup.
func (s *Service) ValidatePeriodOpen(ctx context.Context, date time.Time, storeID *int64) error {
	period, err := s.repo.FindPeriodByDate(ctx, date.Truncate(24*time.Hour))
	if err != nil {
		return err
	}
	status := period.Status
	if storeID != nil {
		override, err := s.repo.GetStoreOverride(ctx, period.ID, *storeID)
		if err != nil {
			return err
		}
		status = EffectiveStatus(period, override)
	}
	switch status {
	case PeriodStatusOpen:
		return nil
	case PeriodStatusClosed:
		return fmt.Errorf("%w: %s", ErrPeriodClosed, period.Code)
	case PeriodStatusLocked:
		return fmt.Errorf("%w: %s", ErrPeriodLocked, period.Code)
	default:
		return ErrInvalidStatus
	}
}

// FindPeriodByDate exposes period lookup to collaborators. The date is
// truncated to its day before the lookup.
func (s *Service) FindPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.FindPeriodByDate(ctx, date.Truncate(24*time.Hour))
}

// ListPeriods returns the periods of a fiscal year.
func (s *Service) ListPeriods(ctx context.Context, yearID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, yearID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
