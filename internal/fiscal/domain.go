package fiscal

import (
	"errors"
	"time"
)

// PeriodStatus enumerates the posting-permission state of a period.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// FiscalYear owns twelve consecutive monthly periods.
type FiscalYear struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	CreatedBy int64
	CreatedAt time.Time
}

// Period is one bounded posting window inside a fiscal year.
type Period struct {
	ID         int64
	YearID     int64
	Code       string
	StartDate  time.Time
	EndDate    time.Time
	Status     PeriodStatus
	ClosedBy   *int64
	ClosedAt   *time.Time
	LockedBy   *int64
	LockedAt   *time.Time
	ReopenedBy *int64
	ReopenedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StoreOverride pins a period status for one store, letting a branch close
// early while the rest stay open.
type StoreOverride struct {
	PeriodID  int64
	StoreID   int64
	Status    PeriodStatus
	SetBy     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNoPeriodForDate indicates no period covers the posting date.
	ErrNoPeriodForDate = errors.New("fiscal: no period covers date")
	// ErrPeriodClosed indicates posting into a closed period.
	ErrPeriodClosed = errors.New("fiscal: period is closed")
	// ErrPeriodLocked indicates the period is locked; locked is terminal.
	ErrPeriodLocked = errors.New("fiscal: period is locked")
	// ErrPeriodNotFound indicates a missing period id.
	ErrPeriodNotFound = errors.New("fiscal: period not found")
	// ErrPeriodNotOpen indicates a close attempt on a non-open period.
	ErrPeriodNotOpen = errors.New("fiscal: period is not open")
	// ErrPeriodNotClosed indicates a lock or reopen attempt on a non-closed period.
	ErrPeriodNotClosed = errors.New("fiscal: period is not closed")
	// ErrReasonRequired indicates a reopen without a justification.
	ErrReasonRequired = errors.New("fiscal: reopen reason required")
	// ErrYearOverlap indicates the new fiscal year collides with an existing one.
	ErrYearOverlap = errors.New("fiscal: fiscal year overlaps an existing year")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("fiscal: invalid period status")
)

// EffectiveStatus resolves the status applicable to a store: the override when
// one exists, else the period's own status.
func EffectiveStatus(period Period, override *StoreOverride) PeriodStatus {
	if override != nil {
		return override.Status
	}
	return period.Status
}
