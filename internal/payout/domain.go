// Package payout derives reimbursement amounts from approved claim data:
// per-employee weekly totals, team payout reports and period breakdowns.
// Rejected claims never count toward a payout.
package payout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/directory"
	"github.com/fieldpay-hr/fieldpay/internal/periods"
)

// WeeklyTotal is one employee's reimbursement for a single ISO week.
type WeeklyTotal struct {
	EmployeeID    int64
	Week          periods.Window
	TotalKM       decimal.Decimal
	KMRate        decimal.Decimal
	MileageAmount decimal.Decimal
	ExpenseAmount decimal.Decimal
	GrandTotal    decimal.Decimal
	ClaimCount    int
}

// ReportRow is one line of a team payout report.
type ReportRow struct {
	EmployeeID    int64
	EmployeeName  string
	BankingRef    string
	TotalKM       decimal.Decimal
	MileageAmount decimal.Decimal
	ExpenseAmount decimal.Decimal
	GrandTotal    decimal.Decimal
}

// TeamReport aggregates one team's payouts for a week. Rows carry only
// members with a non-zero total, ordered by employee name.
type TeamReport struct {
	TeamID     int64
	TeamName   string
	Week       periods.Window
	Rows       []ReportRow
	GrandTotal decimal.Decimal
}

// CategoryAmount is a per-category expense subtotal.
type CategoryAmount struct {
	Category claims.Category
	Amount   decimal.Decimal
}

// Bucket is one granularity-sized slice of a period breakdown.
type Bucket struct {
	Start         time.Time
	TotalKM       decimal.Decimal
	MileageAmount decimal.Decimal
	ExpenseAmount decimal.Decimal
	Categories    []CategoryAmount
	GrandTotal    decimal.Decimal
}

// Breakdown is an employee's reimbursement sliced by day, week or month.
type Breakdown struct {
	EmployeeID  int64
	Granularity periods.Granularity
	From        time.Time
	To          time.Time
	Buckets     []Bucket
	GrandTotal  decimal.Decimal
}

// ClaimSource is the slice of claim persistence the calculator reads.
type ClaimSource interface {
	ListByEmployee(ctx context.Context, employeeID int64, from, to time.Time) ([]claims.Claim, error)
	ListByEmployees(ctx context.Context, employeeIDs []int64, from, to time.Time) ([]claims.Claim, error)
}

// Directory is the slice of the employee directory the calculator reads.
type Directory interface {
	GetEmployee(ctx context.Context, id int64) (directory.Employee, error)
	GetTeam(ctx context.Context, id int64) (directory.Team, error)
	MembersOf(ctx context.Context, teamID int64) ([]directory.Employee, error)
}
