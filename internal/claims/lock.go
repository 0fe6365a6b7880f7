package claims

import (
	"context"
	"time"

	"github.com/fieldpay-hr/fieldpay/internal/periods"
)

// PeriodLock reports whether an employee's ISO week is frozen. A week is
// locked once any claim of the employee in that week has been advanced past
// pending; rejected and pending claims alone never lock.
type PeriodLock struct {
	store Store
}

// NewPeriodLock constructs a PeriodLock over the claim store.
func NewPeriodLock(store Store) *PeriodLock {
	return &PeriodLock{store: store}
}

// IsLocked reports whether the ISO week containing date is frozen for the
// employee. No side effects.
func (l *PeriodLock) IsLocked(ctx context.Context, employeeID int64, date time.Time) (bool, error) {
	w := periods.WeekOf(date)
	return l.store.AnyInStages(ctx, employeeID, w.Start, w.End, lockingStageValues)
}

// IsWindowLocked is IsLocked for a pre-computed week window.
func (l *PeriodLock) IsWindowLocked(ctx context.Context, employeeID int64, w periods.Window) (bool, error) {
	return l.store.AnyInStages(ctx, employeeID, w.Start, w.End, lockingStageValues)
}
