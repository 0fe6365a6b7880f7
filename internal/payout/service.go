package payout

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/periods"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Service computes payout figures. It never mutates claims.
type Service struct {
	source ClaimSource
	dir    Directory
	logger *slog.Logger
}

// NewService constructs the payout calculator.
func NewService(source ClaimSource, dir Directory, logger *slog.Logger) *Service {
	return &Service{source: source, dir: dir, logger: logger}
}

// WeeklyTotal computes one employee's reimbursement for the ISO week
// containing date. Mileage pays at the employee's per-kilometre rate.
func (s *Service) WeeklyTotal(ctx context.Context, employeeID int64, date time.Time) (WeeklyTotal, error) {
	emp, err := s.dir.GetEmployee(ctx, employeeID)
	if err != nil {
		return WeeklyTotal{}, err
	}
	week := periods.WeekOf(date)
	list, err := s.source.ListByEmployee(ctx, employeeID, week.Start, week.End)
	if err != nil {
		return WeeklyTotal{}, err
	}

	total := WeeklyTotal{EmployeeID: employeeID, Week: week, KMRate: emp.EffectiveKMRate()}
	for _, c := range list {
		if !countsTowardPayout(c) {
			continue
		}
		total.ClaimCount++
		switch c.Kind {
		case claims.KindMileage:
			total.TotalKM = total.TotalKM.Add(c.Mileage.TotalKM)
		case claims.KindExpense:
			total.ExpenseAmount = total.ExpenseAmount.Add(c.Expense.Amount)
		}
	}
	total.MileageAmount = total.TotalKM.Mul(total.KMRate).Round(2)
	total.GrandTotal = total.MileageAmount.Add(total.ExpenseAmount)
	return total, nil
}

// TeamReport builds the payout report for a team's ISO week. Members with a
// zero total are omitted; rows are ordered by employee name using a
// diacritic-aware collation.
func (s *Service) TeamReport(ctx context.Context, teamID int64, date time.Time) (TeamReport, error) {
	team, err := s.dir.GetTeam(ctx, teamID)
	if err != nil {
		return TeamReport{}, err
	}
	members, err := s.dir.MembersOf(ctx, teamID)
	if err != nil {
		return TeamReport{}, err
	}
	week := periods.WeekOf(date)
	report := TeamReport{TeamID: teamID, TeamName: team.Name, Week: week}
	if len(members) == 0 {
		return report, nil
	}

	ids := make([]int64, len(members))
	byID := make(map[int64]int, len(members))
	for i, m := range members {
		ids[i] = m.ID
		byID[m.ID] = i
	}
	list, err := s.source.ListByEmployees(ctx, ids, week.Start, week.End)
	if err != nil {
		return TeamReport{}, err
	}

	rows := make(map[int64]*ReportRow, len(members))
	for _, c := range list {
		if !countsTowardPayout(c) {
			continue
		}
		row, ok := rows[c.EmployeeID]
		if !ok {
			m := members[byID[c.EmployeeID]]
			row = &ReportRow{EmployeeID: m.ID, EmployeeName: m.FullName, BankingRef: m.BankingRef}
			rows[c.EmployeeID] = row
		}
		switch c.Kind {
		case claims.KindMileage:
			row.TotalKM = row.TotalKM.Add(c.Mileage.TotalKM)
		case claims.KindExpense:
			row.ExpenseAmount = row.ExpenseAmount.Add(c.Expense.Amount)
		}
	}

	for id, row := range rows {
		rate := members[byID[id]].EffectiveKMRate()
		row.MileageAmount = row.TotalKM.Mul(rate).Round(2)
		row.GrandTotal = row.MileageAmount.Add(row.ExpenseAmount)
		if row.GrandTotal.IsZero() {
			continue
		}
		report.Rows = append(report.Rows, *row)
		report.GrandTotal = report.GrandTotal.Add(row.GrandTotal)
	}

	coll := collate.New(language.Und, collate.Loose)
	sort.Slice(report.Rows, func(i, j int) bool {
		if cmp := coll.CompareString(report.Rows[i].EmployeeName, report.Rows[j].EmployeeName); cmp != 0 {
			return cmp < 0
		}
		return report.Rows[i].EmployeeID < report.Rows[j].EmployeeID
	})
	return report, nil
}

// Breakdown slices an employee's reimbursement between from and to into
// day, week or month buckets, with per-category expense subtotals.
func (s *Service) Breakdown(ctx context.Context, employeeID int64, granularity periods.Granularity, from, to time.Time) (Breakdown, error) {
	if !granularity.Valid() {
		return Breakdown{}, fmt.Errorf("payout: unknown granularity %q: %w", string(granularity), shared.ErrValidation)
	}
	if to.Before(from) {
		return Breakdown{}, fmt.Errorf("payout: range end before start: %w", shared.ErrValidation)
	}
	emp, err := s.dir.GetEmployee(ctx, employeeID)
	if err != nil {
		return Breakdown{}, err
	}
	list, err := s.source.ListByEmployee(ctx, employeeID, from, to)
	if err != nil {
		return Breakdown{}, err
	}

	rate := emp.EffectiveKMRate()
	buckets := make(map[time.Time]*Bucket)
	categories := make(map[time.Time]map[claims.Category]decimal.Decimal)
	for _, c := range list {
		if !countsTowardPayout(c) {
			continue
		}
		start := periods.BucketStart(c.Date, granularity)
		b, ok := buckets[start]
		if !ok {
			b = &Bucket{Start: start}
			buckets[start] = b
			categories[start] = make(map[claims.Category]decimal.Decimal)
		}
		switch c.Kind {
		case claims.KindMileage:
			b.TotalKM = b.TotalKM.Add(c.Mileage.TotalKM)
		case claims.KindExpense:
			b.ExpenseAmount = b.ExpenseAmount.Add(c.Expense.Amount)
			categories[start][c.Expense.Category] = categories[start][c.Expense.Category].Add(c.Expense.Amount)
		}
	}

	out := Breakdown{EmployeeID: employeeID, Granularity: granularity, From: from, To: to}
	for start, b := range buckets {
		b.MileageAmount = b.TotalKM.Mul(rate).Round(2)
		b.GrandTotal = b.MileageAmount.Add(b.ExpenseAmount)
		for cat, amount := range categories[start] {
			b.Categories = append(b.Categories, CategoryAmount{Category: cat, Amount: amount})
		}
		sort.Slice(b.Categories, func(i, j int) bool { return b.Categories[i].Category < b.Categories[j].Category })
		out.Buckets = append(out.Buckets, *b)
		out.GrandTotal = out.GrandTotal.Add(b.GrandTotal)
	}
	sort.Slice(out.Buckets, func(i, j int) bool { return out.Buckets[i].Start.Before(out.Buckets[j].Start) })
	return out, nil
}

// countsTowardPayout reports whether a claim contributes to totals.
// Anything not explicitly rejected counts, including rows whose stage
// value the pipeline no longer recognises.
func countsTowardPayout(c claims.Claim) bool {
	normalized, _ := claims.Normalize(c.Stage)
	return normalized != claims.StageRejected
}
