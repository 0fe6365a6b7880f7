package claims

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// TransitionObserver counts claim stage changes, typically backed by a
// Prometheus counter.
type TransitionObserver interface {
	ClaimTransition(kind, stage string)
}

// Lifecycle is the authoritative state machine for claims. Every creation,
// correction, stage transition and deletion passes through here.
type Lifecycle struct {
	store     Store
	lock      *PeriodLock
	approvals *shared.ApprovalRecorder
	audit     *shared.AuditLogger
	logger    *slog.Logger
	metrics   TransitionObserver
}

// NewLifecycle constructs the Lifecycle service.
func NewLifecycle(store Store, lock *PeriodLock, approvals *shared.ApprovalRecorder, audit *shared.AuditLogger, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{store: store, lock: lock, approvals: approvals, audit: audit, logger: logger}
}

// SetMetrics attaches the transition counter.
func (s *Lifecycle) SetMetrics(obs TransitionObserver) {
	s.metrics = obs
}

func (s *Lifecycle) observeTransition(kind Kind, stage Stage) {
	if s.metrics != nil {
		s.metrics.ClaimTransition(string(kind), string(stage))
	}
}

// Create admits a new claim in the pending stage. It fails when the payload
// is invalid or when the employee's week containing the claim date is
// already frozen.
func (s *Lifecycle) Create(ctx context.Context, actor shared.Actor, employeeID int64, payload Payload) (Claim, error) {
	if actor.ID != employeeID && actor.Role != shared.RoleAdmin {
		return Claim{}, fmt.Errorf("claims: only the owning employee may create a claim: %w", shared.ErrForbidden)
	}
	if err := payload.Validate(); err != nil {
		return Claim{}, err
	}
	locked, err := s.lock.IsLocked(ctx, employeeID, payload.Date())
	if err != nil {
		return Claim{}, err
	}
	if locked {
		return Claim{}, lockedErr(employeeID, payload.Date())
	}

	now := time.Now().UTC()
	claim := Claim{
		ID:         uuid.New(),
		Kind:       payload.Kind,
		EmployeeID: employeeID,
		Stage:      StagePending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	claim.applyPayload(payload)

	if err := s.store.Create(ctx, claim); err != nil {
		return Claim{}, err
	}
	s.recordApproval(ctx, claim, actor, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, actor, "claim.create", claim)
	return claim, nil
}

// Get loads a single claim.
func (s *Lifecycle) Get(ctx context.Context, id uuid.UUID) (Claim, error) {
	return s.store.Get(ctx, id)
}

// ListByEmployee returns the employee's claims within the date range.
func (s *Lifecycle) ListByEmployee(ctx context.Context, employeeID int64, from, to time.Time) ([]Claim, error) {
	return s.store.ListByEmployee(ctx, employeeID, from, to)
}

// Edit replaces the mutable fields of a claim and implicitly resubmits it:
// the stage resets to pending and any rejection reason is cleared. Only the
// owning employee may edit, only in the pending or rejected stage, and only
// while neither the claim's current week nor the target week is frozen.
func (s *Lifecycle) Edit(ctx context.Context, actor shared.Actor, id uuid.UUID, payload Payload) (Claim, error) {
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return Claim{}, err
	}
	if actor.ID != claim.EmployeeID {
		return Claim{}, fmt.Errorf("claims: only the owning employee may edit a claim: %w", shared.ErrForbidden)
	}
	if payload.Kind != claim.Kind {
		return Claim{}, fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, payload.Kind, claim.Kind)
	}
	if !claim.Stage.Editable() {
		return Claim{}, fmt.Errorf("claims: cannot edit claim in stage %s: %w", claim.Stage, shared.ErrImmutableState)
	}
	if err := payload.Validate(); err != nil {
		return Claim{}, err
	}
	for _, date := range []time.Time{claim.Date, payload.Date()} {
		locked, err := s.lock.IsLocked(ctx, claim.EmployeeID, date)
		if err != nil {
			return Claim{}, err
		}
		if locked {
			return Claim{}, lockedErr(claim.EmployeeID, date)
		}
	}

	expected := claim.Version
	claim.applyPayload(payload)
	claim.Stage = StagePending
	claim.RejectionReason = ""
	claim.UpdatedAt = time.Now().UTC()
	if err := s.store.Replace(ctx, claim, expected); err != nil {
		return Claim{}, err
	}
	claim.Version = expected + 1
	s.recordApproval(ctx, claim, actor, shared.ApprovalSubmit, "resubmitted")
	s.recordAudit(ctx, actor, "claim.edit", claim)
	return claim, nil
}

// Delete removes a claim. Allowed only to the owning employee while the
// claim is pending or rejected and its week is not frozen.
func (s *Lifecycle) Delete(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if actor.ID != claim.EmployeeID {
		return fmt.Errorf("claims: only the owning employee may delete a claim: %w", shared.ErrForbidden)
	}
	if !claim.Stage.Editable() {
		return fmt.Errorf("claims: cannot delete claim in stage %s: %w", claim.Stage, shared.ErrImmutableState)
	}
	locked, err := s.lock.IsLocked(ctx, claim.EmployeeID, claim.Date)
	if err != nil {
		return err
	}
	if locked {
		return lockedErr(claim.EmployeeID, claim.Date)
	}
	if err := s.store.Delete(ctx, id, claim.Version); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "claim.delete", claim)
	return nil
}

// Advance performs exactly one forward transition, gated by the actor's
// resolved role. Corrupted stage values refuse to move; ResetCorrupted is
// the only way out for those.
func (s *Lifecycle) Advance(ctx context.Context, actor shared.Actor, id uuid.UUID) (Stage, error) {
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	next, ok := claim.Stage.Next()
	if !ok {
		return "", &TransitionError{From: claim.Stage}
	}
	required, _ := claim.Stage.AdvanceAuthority()
	if !actor.Role.AtLeast(required) {
		return "", &TransitionError{From: claim.Stage}
	}
	if err := s.store.SetStage(ctx, id, next, "", claim.Version); err != nil {
		return "", err
	}
	claim.Stage = next
	claim.Version++
	s.observeTransition(claim.Kind, next)
	s.recordApproval(ctx, claim, actor, shared.ApprovalApprove, "")
	s.recordAudit(ctx, actor, "claim.advance", claim)
	return next, nil
}

// Reject moves a claim to the rejected stage, storing the reason. Allowed
// from any recognised stage except paid, by an actor carrying at least the
// authority needed to advance from the current stage.
func (s *Lifecycle) Reject(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationErr("rejection reason required")
	}
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	normalized, known := Normalize(claim.Stage)
	if !known || normalized == StagePaid {
		return &TransitionError{From: claim.Stage}
	}
	required, _ := claim.Stage.AdvanceAuthority()
	if !actor.Role.AtLeast(required) {
		return fmt.Errorf("claims: role %s cannot reject a claim in stage %s: %w", actor.Role, normalized, shared.ErrForbidden)
	}
	if err := s.store.SetStage(ctx, id, StageRejected, reason, claim.Version); err != nil {
		return err
	}
	claim.Stage = StageRejected
	claim.RejectionReason = reason
	claim.Version++
	s.observeTransition(claim.Kind, StageRejected)
	s.recordApproval(ctx, claim, actor, shared.ApprovalReject, reason)
	s.recordAudit(ctx, actor, "claim.reject", claim)
	return nil
}

// ResetCorrupted forces every claim holding an unrecognised stage value
// back to pending. Restricted to admins; this is the one operation that
// repairs data instead of failing, and it only ever widens permissions
// toward pending.
func (s *Lifecycle) ResetCorrupted(ctx context.Context, actor shared.Actor) (int64, error) {
	if actor.Role != shared.RoleAdmin {
		return 0, fmt.Errorf("claims: reset requires admin: %w", shared.ErrForbidden)
	}
	count, err := s.store.ResetCorrupted(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 && s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "claim.reset_corrupted",
			Entity:   "claims",
			EntityID: "bulk",
			Meta:     map[string]any{"count": count},
		}); err != nil {
			s.logger.Warn("audit reset corrupted", slog.Any("error", err))
		}
	}
	return count, nil
}

// History returns the approval trail for one claim.
func (s *Lifecycle) History(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.approvals.List(ctx, string(claim.Kind), claim.ID)
}

func (c *Claim) applyPayload(p Payload) {
	switch p.Kind {
	case KindMileage:
		c.Date = p.Mileage.Date
		c.TicketRef = p.Mileage.TicketRef
		legs := make([]Leg, len(p.Mileage.Legs))
		for i, l := range p.Mileage.Legs {
			legs[i] = Leg{
				ClaimID:    c.ID,
				OriginRef:  l.OriginRef,
				OriginName: l.OriginName,
				DestRef:    l.DestRef,
				DestName:   l.DestName,
				KM:         l.KM,
				Position:   i + 1,
			}
		}
		c.Mileage = &MileageDetails{TotalKM: p.Mileage.TotalKM, Note: p.Mileage.Note, Legs: legs}
		c.Expense = nil
	case KindExpense:
		c.Date = p.Expense.Date
		c.TicketRef = p.Expense.TicketRef
		c.Expense = &ExpenseDetails{
			Category:      p.Expense.Category,
			Specification: p.Expense.Specification,
			ReceiptRef:    p.Expense.ReceiptRef,
			Amount:        p.Expense.Amount,
		}
		c.Mileage = nil
	}
}

func (s *Lifecycle) recordApproval(ctx context.Context, claim Claim, actor shared.Actor, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Kind:    string(claim.Kind),
		ClaimID: claim.ID,
		ActorID: actor.ID,
		Action:  action,
		Stage:   string(claim.Stage),
		Note:    note,
	})
	if err != nil {
		s.logger.Warn("record approval", slog.Any("error", err))
	}
}

func (s *Lifecycle) recordAudit(ctx context.Context, actor shared.Actor, action string, claim Claim) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   strings.ToLower(string(claim.Kind)),
		EntityID: claim.ID.String(),
		Meta:     map[string]any{"stage": string(claim.Stage), "employee_id": claim.EmployeeID},
	})
	if err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}

func lockedErr(employeeID int64, date time.Time) error {
	return fmt.Errorf("claims: week containing %s is under review for employee %d: %w",
		date.Format("2006-01-02"), employeeID, shared.ErrPeriodLocked)
}
