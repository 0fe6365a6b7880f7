package payout

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/directory"
	"github.com/fieldpay-hr/fieldpay/internal/periods"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

type fakeSource struct {
	claims []claims.Claim
}

func (f *fakeSource) ListByEmployee(_ context.Context, employeeID int64, from, to time.Time) ([]claims.Claim, error) {
	var out []claims.Claim
	for _, c := range f.claims {
		if c.EmployeeID == employeeID && !c.Date.Before(from) && !c.Date.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSource) ListByEmployees(_ context.Context, employeeIDs []int64, from, to time.Time) ([]claims.Claim, error) {
	ids := make(map[int64]bool, len(employeeIDs))
	for _, id := range employeeIDs {
		ids[id] = true
	}
	var out []claims.Claim
	for _, c := range f.claims {
		if ids[c.EmployeeID] && !c.Date.Before(from) && !c.Date.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	employees map[int64]directory.Employee
	teams     map[int64]directory.Team
	members   map[int64][]directory.Employee
}

func (f *fakeDirectory) GetEmployee(_ context.Context, id int64) (directory.Employee, error) {
	emp, ok := f.employees[id]
	if !ok {
		return directory.Employee{}, shared.ErrNotFound
	}
	return emp, nil
}

func (f *fakeDirectory) GetTeam(_ context.Context, id int64) (directory.Team, error) {
	team, ok := f.teams[id]
	if !ok {
		return directory.Team{}, shared.ErrNotFound
	}
	return team, nil
}

func (f *fakeDirectory) MembersOf(_ context.Context, teamID int64) ([]directory.Employee, error) {
	return f.members[teamID], nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mileage(employeeID int64, date time.Time, stage claims.Stage, km string) claims.Claim {
	return claims.Claim{
		ID:         uuid.New(),
		Kind:       claims.KindMileage,
		EmployeeID: employeeID,
		Date:       date,
		Stage:      stage,
		Mileage:    &claims.MileageDetails{TotalKM: dec(km)},
	}
}

func expense(employeeID int64, date time.Time, stage claims.Stage, category claims.Category, amount string) claims.Claim {
	return claims.Claim{
		ID:         uuid.New(),
		Kind:       claims.KindExpense,
		EmployeeID: employeeID,
		Date:       date,
		Stage:      stage,
		Expense:    &claims.ExpenseDetails{Category: category, Amount: dec(amount)},
	}
}

var (
	tue = time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)
	fri = time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	mon = time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
)

func testService(source *fakeSource, dir *fakeDirectory) *Service {
	return NewService(source, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWeeklyTotalExcludesRejected(t *testing.T) {
	dir := &fakeDirectory{employees: map[int64]directory.Employee{
		7: {ID: 7, FullName: "Ana Souza", KMRate: dec("1.50")},
	}}
	source := &fakeSource{claims: []claims.Claim{
		mileage(7, tue, claims.StageApprovedHQ, "100"),
		mileage(7, fri, claims.StageRejected, "400"),
		expense(7, fri, claims.StagePending, claims.CategoryToll, "12.50"),
		mileage(7, mon, claims.StagePending, "999"), // next week, out of range
	}}

	total, err := testService(source, dir).WeeklyTotal(context.Background(), 7, tue)
	require.NoError(t, err)
	require.True(t, total.TotalKM.Equal(dec("100")), "got %s", total.TotalKM)
	require.True(t, total.MileageAmount.Equal(dec("150.00")), "got %s", total.MileageAmount)
	require.True(t, total.ExpenseAmount.Equal(dec("12.50")))
	require.True(t, total.GrandTotal.Equal(dec("162.50")))
	require.Equal(t, 2, total.ClaimCount)
	require.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), total.Week.Start)
}

func TestWeeklyTotalFallsBackToDefaultRate(t *testing.T) {
	dir := &fakeDirectory{employees: map[int64]directory.Employee{
		7: {ID: 7, FullName: "Ana Souza"}, // zero rate on file
	}}
	source := &fakeSource{claims: []claims.Claim{
		mileage(7, tue, claims.StagePaid, "10"),
	}}

	total, err := testService(source, dir).WeeklyTotal(context.Background(), 7, tue)
	require.NoError(t, err)
	require.True(t, total.KMRate.Equal(directory.DefaultKMRate))
	require.True(t, total.MileageAmount.Equal(dec("12.00")), "got %s", total.MileageAmount)
}

func TestWeeklyTotalCountsLegacyApproved(t *testing.T) {
	dir := &fakeDirectory{employees: map[int64]directory.Employee{
		7: {ID: 7, KMRate: dec("1.00")},
	}}
	source := &fakeSource{claims: []claims.Claim{
		mileage(7, tue, claims.Stage("APPROVED"), "25"),
	}}

	total, err := testService(source, dir).WeeklyTotal(context.Background(), 7, tue)
	require.NoError(t, err)
	require.True(t, total.TotalKM.Equal(dec("25")))
}

func TestTeamReportOmitsZeroRowsAndSortsByName(t *testing.T) {
	teamID := int64(3)
	members := []directory.Employee{
		{ID: 1, FullName: "Érico Lima", KMRate: dec("1.00"), BankingRef: "BR-001"},
		{ID: 2, FullName: "Carla Nunes", KMRate: dec("2.00"), BankingRef: "BR-002"},
		{ID: 3, FullName: "Bruno Dias", KMRate: dec("1.00"), BankingRef: "BR-003"},
		{ID: 4, FullName: "Zelia Prado", KMRate: dec("1.00"), BankingRef: "BR-004"},
	}
	dir := &fakeDirectory{
		teams:   map[int64]directory.Team{teamID: {ID: teamID, Name: "North Field Ops"}},
		members: map[int64][]directory.Employee{teamID: members},
	}
	source := &fakeSource{claims: []claims.Claim{
		mileage(1, tue, claims.StageApprovedRegional, "50"),
		mileage(2, tue, claims.StagePending, "10"),
		expense(2, fri, claims.StagePaid, claims.CategoryMeal, "30"),
		mileage(3, fri, claims.StageRejected, "80"), // rejected only: zero row, omitted
	}}

	report, err := testService(source, dir).TeamReport(context.Background(), teamID, fri)
	require.NoError(t, err)
	require.Equal(t, "North Field Ops", report.TeamName)
	require.Len(t, report.Rows, 2, "zero-total members are omitted")

	// Accent-aware ordering: Carla before Érico despite the diacritic.
	require.Equal(t, "Carla Nunes", report.Rows[0].EmployeeName)
	require.Equal(t, "Érico Lima", report.Rows[1].EmployeeName)

	require.True(t, report.Rows[0].GrandTotal.Equal(dec("50.00")), "got %s", report.Rows[0].GrandTotal)
	require.True(t, report.Rows[1].GrandTotal.Equal(dec("50.00")))
	require.True(t, report.GrandTotal.Equal(dec("100.00")))
}

func TestTeamReportEmptyTeam(t *testing.T) {
	dir := &fakeDirectory{
		teams: map[int64]directory.Team{9: {ID: 9, Name: "Empty"}},
	}
	report, err := testService(&fakeSource{}, dir).TeamReport(context.Background(), 9, tue)
	require.NoError(t, err)
	require.Empty(t, report.Rows)
	require.True(t, report.GrandTotal.IsZero())
}

func TestBreakdownByWeek(t *testing.T) {
	dir := &fakeDirectory{employees: map[int64]directory.Employee{
		7: {ID: 7, KMRate: dec("1.00")},
	}}
	source := &fakeSource{claims: []claims.Claim{
		mileage(7, tue, claims.StagePaid, "40"),
		expense(7, fri, claims.StagePaid, claims.CategoryParking, "8"),
		expense(7, fri, claims.StagePaid, claims.CategoryToll, "4"),
		mileage(7, mon, claims.StagePending, "60"),
		mileage(7, mon, claims.StageRejected, "500"),
	}}

	breakdown, err := testService(source, dir).Breakdown(context.Background(), 7, periods.GranularityWeek, tue, mon)
	require.NoError(t, err)
	require.Len(t, breakdown.Buckets, 2)

	first := breakdown.Buckets[0]
	require.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), first.Start)
	require.True(t, first.TotalKM.Equal(dec("40")))
	require.True(t, first.ExpenseAmount.Equal(dec("12")))
	require.Len(t, first.Categories, 2)
	require.Equal(t, claims.CategoryParking, first.Categories[0].Category)
	require.Equal(t, claims.CategoryToll, first.Categories[1].Category)

	second := breakdown.Buckets[1]
	require.Equal(t, mon, second.Start)
	require.True(t, second.TotalKM.Equal(dec("60")), "rejected rows excluded")

	require.True(t, breakdown.GrandTotal.Equal(dec("112.00")), "got %s", breakdown.GrandTotal)
}

func TestBreakdownValidation(t *testing.T) {
	dir := &fakeDirectory{employees: map[int64]directory.Employee{7: {ID: 7}}}
	svc := testService(&fakeSource{}, dir)

	_, err := svc.Breakdown(context.Background(), 7, periods.Granularity("quarter"), tue, fri)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Breakdown(context.Background(), 7, periods.GranularityDay, fri, tue)
	require.ErrorIs(t, err, shared.ErrValidation)
}
