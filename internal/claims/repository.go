package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines claim persistence. The engine owns mileage and expense
// claim rows exclusively; all queries are keyed by employee and date range.
type Store interface {
	// Create inserts a claim at version 1.
	Create(ctx context.Context, claim Claim) error
	// Get loads one claim by id, returning shared.ErrNotFound when absent.
	Get(ctx context.Context, id uuid.UUID) (Claim, error)
	// Replace overwrites the mutable fields, stage and rejection reason of
	// a claim, guarded by the expected version. Returns
	// shared.ErrConcurrentModification on a version mismatch.
	Replace(ctx context.Context, claim Claim, expectedVersion int64) error
	// SetStage moves a claim to the given stage, storing the rejection
	// reason (empty clears it), guarded by the expected version.
	SetStage(ctx context.Context, id uuid.UUID, stage Stage, reason string, expectedVersion int64) error
	// Delete removes a claim, guarded by the expected version.
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error
	// ListByEmployee returns the employee's claims dated within [from, to],
	// ordered by date then creation time.
	ListByEmployee(ctx context.Context, employeeID int64, from, to time.Time) ([]Claim, error)
	// ListByEmployees returns claims for a set of employees within [from, to].
	ListByEmployees(ctx context.Context, employeeIDs []int64, from, to time.Time) ([]Claim, error)
	// AnyInStages reports whether the employee has at least one claim dated
	// within [from, to] whose raw stage value is in the given set.
	AnyInStages(ctx context.Context, employeeID int64, from, to time.Time, stages []Stage) (bool, error)
	// ResetCorrupted forces every claim whose stage is outside the known
	// enumeration back to pending and returns the number of rows touched.
	ResetCorrupted(ctx context.Context) (int64, error)
}

// lockingStageValues are the raw values that freeze a week, including the
// pre-migration alias still present in old rows.
var lockingStageValues = []Stage{
	StageApprovedRegional,
	StageApprovedHQ,
	StageApprovedFinance,
	StagePaid,
	stageLegacyApproved,
}

// knownStageValues are every raw value the engine recognises.
var knownStageValues = []Stage{
	StagePending,
	StageApprovedRegional,
	StageApprovedHQ,
	StageApprovedFinance,
	StagePaid,
	StageRejected,
	stageLegacyApproved,
}
