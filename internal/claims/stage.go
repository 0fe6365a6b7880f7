package claims

import (
	"fmt"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Stage enumerates claim positions in the approval pipeline. The string
// values are stored verbatim, so unrecognised database content surfaces as
// an unknown Stage rather than being silently coerced.
type Stage string

const (
	StagePending          Stage = "PENDING"
	StageApprovedRegional Stage = "APPROVED_REGIONAL"
	StageApprovedHQ       Stage = "APPROVED_HQ"
	StageApprovedFinance  Stage = "APPROVED_FINANCE"
	StagePaid             Stage = "PAID"
	StageRejected         Stage = "REJECTED"

	// stageLegacyApproved predates the split of the HQ and finance gates.
	// Pre-migration rows still carry it; it reads as StageApprovedHQ.
	stageLegacyApproved Stage = "APPROVED"
)

// forward is the single-step transition table. Stages missing here have no
// forward edge.
var forward = map[Stage]Stage{
	StagePending:          StageApprovedRegional,
	StageApprovedRegional: StageApprovedHQ,
	StageApprovedHQ:       StageApprovedFinance,
	StageApprovedFinance:  StagePaid,
}

// advanceAuthority is the minimum role able to advance from, or reject at,
// each stage.
var advanceAuthority = map[Stage]shared.Role{
	StagePending:          shared.RoleReviewer,
	StageApprovedRegional: shared.RoleHQ,
	StageApprovedHQ:       shared.RoleFinance,
	StageApprovedFinance:  shared.RoleFinance,
	StageRejected:         shared.RoleReviewer,
}

// Normalize maps raw storage values onto known stages, translating the
// legacy alias. ok is false for corrupted values.
func Normalize(raw Stage) (Stage, bool) {
	if raw == stageLegacyApproved {
		return StageApprovedHQ, true
	}
	switch raw {
	case StagePending, StageApprovedRegional, StageApprovedHQ, StageApprovedFinance, StagePaid, StageRejected:
		return raw, true
	}
	return raw, false
}

// Known reports whether the stage is part of the closed enumeration.
func (s Stage) Known() bool {
	_, ok := Normalize(s)
	return ok
}

// Locking reports whether the stage freezes the employee's week. Rejected
// and pending claims return control to the employee and do not lock.
func (s Stage) Locking() bool {
	switch n, _ := Normalize(s); n {
	case StageApprovedRegional, StageApprovedHQ, StageApprovedFinance, StagePaid:
		return true
	}
	return false
}

// Editable reports whether the owning employee may still edit or delete a
// claim at this stage.
func (s Stage) Editable() bool {
	n, _ := Normalize(s)
	return n == StagePending || n == StageRejected
}

// Next returns the single forward transition from the stage.
func (s Stage) Next() (Stage, bool) {
	n, ok := Normalize(s)
	if !ok {
		return "", false
	}
	next, ok := forward[n]
	return next, ok
}

// AdvanceAuthority returns the minimum role required to advance from the
// stage. ok is false when the stage has no advancing role (paid, corrupted).
func (s Stage) AdvanceAuthority() (shared.Role, bool) {
	n, ok := Normalize(s)
	if !ok {
		return "", false
	}
	role, ok := advanceAuthority[n]
	return role, ok
}

// TransitionError reports a refused stage transition together with the
// offending stage, so operators can tell "already paid" from corruption.
type TransitionError struct {
	From Stage
}

func (e *TransitionError) Error() string {
	if !e.From.Known() {
		return fmt.Sprintf("claims: transition refused, unrecognised stage %q", string(e.From))
	}
	return fmt.Sprintf("claims: no permitted transition from stage %s", string(e.From))
}

// Is matches the shared invalid-transition sentinel.
func (e *TransitionError) Is(target error) bool {
	return target == shared.ErrInvalidTransition
}
