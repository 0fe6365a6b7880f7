package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval trail actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks claim creation or resubmission.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks a forward stage transition.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a rejection.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalReset marks a maintenance reset back to pending.
	ApprovalReset ApprovalAction = "RESET"
)

// ApprovalLog represents a single entry in a claim's approval trail.
type ApprovalLog struct {
	ID      int64
	Kind    string
	ClaimID uuid.UUID
	ActorID int64
	Action  ApprovalAction
	Stage   string
	Note    string
	At      time.Time
}

// ApprovalRecorder persists the approval trail for claims.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes an approval entry to the database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.Kind == "" {
		return errors.New("approval kind required")
	}
	if log.ClaimID == uuid.Nil {
		return errors.New("approval claim id required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO claim_approvals (kind, claim_id, actor_id, action, stage, note, at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.Kind, log.ClaimID, log.ActorID, string(log.Action), log.Stage, log.Note, at)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns the approval trail for one claim, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, kind string, claimID uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, kind, claim_id, actor_id, action, stage, note, at
FROM claim_approvals WHERE kind=$1 AND claim_id=$2 ORDER BY at ASC`, kind, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Kind, &l.ClaimID, &l.ActorID, &action, &l.Stage, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
