package claims

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu     sync.Mutex
	claims map[uuid.UUID]Claim
}

func newMemStore() *memStore {
	return &memStore{claims: make(map[uuid.UUID]Claim)}
}

func (m *memStore) Create(_ context.Context, claim Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[claim.ID] = claim
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.claims[id]
	if !ok {
		return Claim{}, fmt.Errorf("claim %s: %w", id, shared.ErrNotFound)
	}
	return claim, nil
}

func (m *memStore) Replace(_ context.Context, claim Claim, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.claims[claim.ID]
	if !ok {
		return fmt.Errorf("claim %s: %w", claim.ID, shared.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("claim %s: %w", claim.ID, shared.ErrConcurrentModification)
	}
	claim.Version = expectedVersion + 1
	m.claims[claim.ID] = claim
	return nil
}

func (m *memStore) SetStage(_ context.Context, id uuid.UUID, stage Stage, reason string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: %w", id, shared.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("claim %s: %w", id, shared.ErrConcurrentModification)
	}
	current.Stage = stage
	current.RejectionReason = reason
	current.Version++
	m.claims[id] = current
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: %w", id, shared.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("claim %s: %w", id, shared.ErrConcurrentModification)
	}
	delete(m.claims, id)
	return nil
}

func (m *memStore) ListByEmployee(_ context.Context, employeeID int64, from, to time.Time) ([]Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Claim
	for _, c := range m.claims {
		if c.EmployeeID == employeeID && inRange(c.Date, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListByEmployees(_ context.Context, employeeIDs []int64, from, to time.Time) ([]Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[int64]bool, len(employeeIDs))
	for _, id := range employeeIDs {
		ids[id] = true
	}
	var out []Claim
	for _, c := range m.claims {
		if ids[c.EmployeeID] && inRange(c.Date, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) AnyInStages(_ context.Context, employeeID int64, from, to time.Time, stages []Stage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.claims {
		if c.EmployeeID != employeeID || !inRange(c.Date, from, to) {
			continue
		}
		for _, s := range stages {
			if c.Stage == s {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) ResetCorrupted(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, c := range m.claims {
		known := false
		for _, s := range knownStageValues {
			if c.Stage == s {
				known = true
				break
			}
		}
		if known {
			continue
		}
		c.Stage = StagePending
		c.RejectionReason = ""
		c.Version++
		m.claims[id] = c
		count++
	}
	return count, nil
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func newTestLifecycle(t *testing.T) (*Lifecycle, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLifecycle(store, NewPeriodLock(store), nil, nil, logger), store
}

func mileagePayload(date time.Time, km string) Payload {
	return Payload{
		Kind: KindMileage,
		Mileage: &MileagePayload{
			Date:      date,
			TicketRef: "INC-1001",
			TotalKM:   decimal.RequireFromString(km),
			Legs: []LegPayload{
				{OriginRef: "maps/a", OriginName: "Depot", DestRef: "maps/b", DestName: "Site 7", KM: decimal.RequireFromString(km)},
			},
		},
	}
}

func expensePayload(date time.Time, category Category, amount string) Payload {
	return Payload{
		Kind: KindExpense,
		Expense: &ExpensePayload{
			Date:      date,
			TicketRef: "INC-1002",
			Category:  category,
			Amount:    decimal.RequireFromString(amount),
		},
	}
}

var (
	employee = shared.Actor{ID: 7, Role: shared.RoleEmployee}
	reviewer = shared.Actor{ID: 20, Role: shared.RoleReviewer}
	hq       = shared.Actor{ID: 30, Role: shared.RoleHQ}
	finance  = shared.Actor{ID: 40, Role: shared.RoleFinance}
	admin    = shared.Actor{ID: 1, Role: shared.RoleAdmin}

	tuesday = time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)
	friday  = time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	nextMon = time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
)

func TestCreateStartsPending(t *testing.T) {
	svc, _ := newTestLifecycle(t)

	claim, err := svc.Create(context.Background(), employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	require.Equal(t, StagePending, claim.Stage)
	require.Equal(t, int64(1), claim.Version)
	require.Equal(t, employee.ID, claim.EmployeeID)
	require.Len(t, claim.Mileage.Legs, 1)
	require.Equal(t, 1, claim.Mileage.Legs[0].Position)
}

func TestCreateRejectsInvalidPayloads(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "0"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, employee, employee.ID, expensePayload(tuesday, Category("FUEL"), "10"))
	require.ErrorIs(t, err, shared.ErrValidation)

	other := expensePayload(tuesday, CategoryOther, "10")
	_, err = svc.Create(ctx, employee, employee.ID, other)
	require.ErrorIs(t, err, shared.ErrValidation, "OTHER without specification must fail")

	other.Expense.Specification = "printer cable"
	_, err = svc.Create(ctx, employee, employee.ID, other)
	require.NoError(t, err)
}

func TestCreateForAnotherEmployeeForbidden(t *testing.T) {
	svc, _ := newTestLifecycle(t)

	_, err := svc.Create(context.Background(), employee, 99, mileagePayload(tuesday, "10"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Create(context.Background(), admin, 99, mileagePayload(tuesday, "10"))
	require.NoError(t, err, "admins may file on behalf of employees")
}

// Scenario: one approved claim freezes the whole ISO week, but not the next.
func TestWeekLockBlocksSameWeekOnly(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	_, err = svc.Advance(ctx, reviewer, first.ID)
	require.NoError(t, err)

	_, err = svc.Create(ctx, employee, employee.ID, mileagePayload(friday, "18"))
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	_, err = svc.Create(ctx, employee, employee.ID, mileagePayload(nextMon, "18"))
	require.NoError(t, err, "following Monday is a different ISO week")
}

func TestWeekLockIsPerEmployee(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()
	colleague := shared.Actor{ID: 8, Role: shared.RoleEmployee}

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	_, err = svc.Advance(ctx, reviewer, claim.ID)
	require.NoError(t, err)

	_, err = svc.Create(ctx, colleague, colleague.ID, mileagePayload(friday, "30"))
	require.NoError(t, err, "lock applies per employee")
}

func TestRejectedClaimsDoNotLock(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	require.NoError(t, svc.Reject(ctx, reviewer, claim.ID, "odometer mismatch"))

	_, err = svc.Create(ctx, employee, employee.ID, mileagePayload(friday, "18"))
	require.NoError(t, err)
}

// Scenario: reject, then edit resubmits and the claim advances again.
func TestEditResubmitsRejectedClaim(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	require.NoError(t, svc.Reject(ctx, reviewer, claim.ID, "distance too high"))

	rejected, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	require.Equal(t, StageRejected, rejected.Stage)
	require.Equal(t, "distance too high", rejected.RejectionReason)

	updated, err := svc.Edit(ctx, employee, claim.ID, mileagePayload(tuesday, "38.2"))
	require.NoError(t, err)
	require.Equal(t, StagePending, updated.Stage)
	require.Empty(t, updated.RejectionReason)
	require.True(t, updated.Mileage.TotalKM.Equal(decimal.RequireFromString("38.2")))

	stage, err := svc.Advance(ctx, reviewer, claim.ID)
	require.NoError(t, err)
	require.Equal(t, StageApprovedRegional, stage)
}

func TestEditRules(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	_, err = svc.Edit(ctx, shared.Actor{ID: 8, Role: shared.RoleEmployee}, claim.ID, mileagePayload(tuesday, "10"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Edit(ctx, employee, claim.ID, expensePayload(tuesday, CategoryMeal, "25"))
	require.ErrorIs(t, err, ErrKindMismatch)

	_, err = svc.Advance(ctx, reviewer, claim.ID)
	require.NoError(t, err)
	_, err = svc.Edit(ctx, employee, claim.ID, mileagePayload(tuesday, "10"))
	require.ErrorIs(t, err, shared.ErrImmutableState)
}

func TestEditBlockedByLockedTargetWeek(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	approved, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	_, err = svc.Advance(ctx, reviewer, approved.ID)
	require.NoError(t, err)

	pending, err := svc.Create(ctx, employee, employee.ID, mileagePayload(nextMon, "12"))
	require.NoError(t, err)

	_, err = svc.Edit(ctx, employee, pending.ID, mileagePayload(friday, "12"))
	require.ErrorIs(t, err, shared.ErrPeriodLocked, "cannot move a claim into a frozen week")
}

func TestFullApprovalPipeline(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, expensePayload(tuesday, CategoryToll, "12.50"))
	require.NoError(t, err)

	steps := []struct {
		actor shared.Actor
		want  Stage
	}{
		{reviewer, StageApprovedRegional},
		{hq, StageApprovedHQ},
		{finance, StageApprovedFinance},
		{finance, StagePaid},
	}
	for _, step := range steps {
		stage, err := svc.Advance(ctx, step.actor, claim.ID)
		require.NoError(t, err)
		require.Equal(t, step.want, stage)
	}

	_, err = svc.Advance(ctx, finance, claim.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "paid is terminal")
}

func TestAdvanceAuthorityEnforced(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	_, err = svc.Advance(ctx, employee, claim.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = svc.Advance(ctx, reviewer, claim.ID)
	require.NoError(t, err)

	_, err = svc.Advance(ctx, reviewer, claim.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition, "reviewer cannot clear the HQ gate")

	stage, err := svc.Advance(ctx, finance, claim.ID)
	require.NoError(t, err, "higher roles satisfy lower gates")
	require.Equal(t, StageApprovedHQ, stage)
}

func TestRejectRules(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	require.ErrorIs(t, svc.Reject(ctx, reviewer, claim.ID, "  "), shared.ErrValidation)
	require.ErrorIs(t, svc.Reject(ctx, employee, claim.ID, "nope"), shared.ErrForbidden)

	for _, actor := range []shared.Actor{reviewer, hq, finance, finance} {
		_, err = svc.Advance(ctx, actor, claim.ID)
		require.NoError(t, err)
	}
	require.ErrorIs(t, svc.Reject(ctx, finance, claim.ID, "too late"), shared.ErrInvalidTransition, "paid cannot be rejected")
}

func TestRejectFromLateStage(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, expensePayload(tuesday, CategoryLodging, "340"))
	require.NoError(t, err)
	_, err = svc.Advance(ctx, reviewer, claim.ID)
	require.NoError(t, err)
	_, err = svc.Advance(ctx, hq, claim.ID)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Reject(ctx, hq, claim.ID, "missing receipt"), shared.ErrForbidden,
		"rejecting at the finance gate needs finance authority")
	require.NoError(t, svc.Reject(ctx, finance, claim.ID, "missing receipt"))

	got, err := svc.Get(ctx, claim.ID)
	require.NoError(t, err)
	require.Equal(t, StageRejected, got.Stage)
	require.Equal(t, "missing receipt", got.RejectionReason)
}

func TestConcurrentAdvanceConflicts(t *testing.T) {
	svc, store := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	// Simulate a racing reviewer moving the claim between read and write.
	require.NoError(t, store.SetStage(ctx, claim.ID, StageApprovedRegional, "", 1))

	err = store.SetStage(ctx, claim.ID, StageApprovedRegional, "", 1)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestDeleteRules(t *testing.T) {
	svc, _ := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, reviewer, claim.ID), shared.ErrForbidden)

	_, err = svc.Advance(ctx, reviewer, claim.ID)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, employee, claim.ID), shared.ErrImmutableState)

	pending, err := svc.Create(ctx, employee, employee.ID, mileagePayload(nextMon, "10"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, employee, pending.ID))
	_, err = svc.Get(ctx, pending.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCorruptedStageRefusesTransitions(t *testing.T) {
	svc, store := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	// Corrupt the stored stage behind the service's back.
	store.mu.Lock()
	c := store.claims[claim.ID]
	c.Stage = Stage("APROVADO")
	store.claims[claim.ID] = c
	store.mu.Unlock()

	_, err = svc.Advance(ctx, admin, claim.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.ErrorIs(t, svc.Reject(ctx, admin, claim.ID, "broken"), shared.ErrInvalidTransition)
}

func TestResetCorrupted(t *testing.T) {
	svc, store := newTestLifecycle(t)
	ctx := context.Background()

	healthy, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)
	legacy, err := svc.Create(ctx, employee, employee.ID, mileagePayload(nextMon, "10"))
	require.NoError(t, err)
	corrupt, err := svc.Create(ctx, employee, employee.ID, expensePayload(nextMon, CategoryParking, "8"))
	require.NoError(t, err)

	store.mu.Lock()
	l := store.claims[legacy.ID]
	l.Stage = stageLegacyApproved
	store.claims[legacy.ID] = l
	c := store.claims[corrupt.ID]
	c.Stage = Stage("EM_ANALISE")
	store.claims[corrupt.ID] = c
	store.mu.Unlock()

	_, err = svc.ResetCorrupted(ctx, finance)
	require.ErrorIs(t, err, shared.ErrForbidden)

	count, err := svc.ResetCorrupted(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, int64(1), count, "legacy alias is recognised, only truly corrupt rows reset")

	got, err := svc.Get(ctx, corrupt.ID)
	require.NoError(t, err)
	require.Equal(t, StagePending, got.Stage)

	got, err = svc.Get(ctx, healthy.ID)
	require.NoError(t, err)
	require.Equal(t, StagePending, got.Stage)

	got, err = svc.Get(ctx, legacy.ID)
	require.NoError(t, err)
	require.Equal(t, stageLegacyApproved, got.Stage)
}

func TestEditConflictSurfacesAsConcurrentModification(t *testing.T) {
	svc, store := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	fresh := store.claims[claim.ID]
	fresh.Version = 5
	store.mu.Lock()
	store.claims[claim.ID] = fresh
	store.mu.Unlock()

	stale := claim
	stale.UpdatedAt = time.Now().UTC()
	err = store.Replace(ctx, stale, 1)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
}

func TestLegacyApprovedAdvancesToFinanceGate(t *testing.T) {
	svc, store := newTestLifecycle(t)
	ctx := context.Background()

	claim, err := svc.Create(ctx, employee, employee.ID, mileagePayload(tuesday, "42.5"))
	require.NoError(t, err)

	store.mu.Lock()
	c := store.claims[claim.ID]
	c.Stage = stageLegacyApproved
	store.claims[claim.ID] = c
	store.mu.Unlock()

	stage, err := svc.Advance(ctx, finance, claim.ID)
	require.NoError(t, err)
	require.Equal(t, StageApprovedFinance, stage)
}

func TestTransitionErrorIsNotOtherSentinels(t *testing.T) {
	err := error(&TransitionError{From: StagePending})
	require.False(t, errors.Is(err, shared.ErrImmutableState))
	require.False(t, errors.Is(err, shared.ErrForbidden))
}
