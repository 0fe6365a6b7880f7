package shared

import (
	"fmt"
	"time"
)

// BatchLockKey builds redis keys guarding team-week batch runs.
func BatchLockKey(teamID int64, weekStart time.Time) string {
	return fmt.Sprintf("payroll:team:%d:week:%s:lock", teamID, weekStart.Format("2006-01-02"))
}

// TeamReportKey builds redis keys under which built payout reports are
// cached for export consumers.
func TeamReportKey(teamID int64, weekStart time.Time) string {
	return fmt.Sprintf("payroll:team:%d:week:%s:report", teamID, weekStart.Format("2006-01-02"))
}
