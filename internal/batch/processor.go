// Package batch runs team-week approval sweeps: advancing or rejecting every
// eligible claim of a team inside one calendar-page week. Individual claims
// that cannot move are skipped and counted, never failing the sweep.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fieldpay-hr/fieldpay/internal/claims"
	"github.com/fieldpay-hr/fieldpay/internal/directory"
	"github.com/fieldpay-hr/fieldpay/internal/periods"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// ErrSweepInProgress signals a concurrent sweep already holds the team-week.
var ErrSweepInProgress = errors.New("batch: sweep already running for this team and week")

// lockTTL bounds how long a crashed sweep can pin its team-week.
const lockTTL = 5 * time.Minute

// memberConcurrency caps parallel per-employee processing inside one sweep.
const memberConcurrency = 8

// batchTargets maps each approver role to the exact stages its sweep picks
// up. A sweep moves each matched claim one step; it never chains, so a
// finance sweep leaves freshly reached APPROVED_FINANCE rows where they are
// until the next run.
var batchTargets = map[shared.Role][]claims.Stage{
	shared.RoleReviewer: {claims.StagePending},
	shared.RoleHQ:       {claims.StageApprovedRegional},
	shared.RoleFinance:  {claims.StageApprovedHQ, claims.StageApprovedFinance},
	shared.RoleAdmin:    {claims.StageApprovedHQ, claims.StageApprovedFinance},
}

// Summary reports what one sweep did.
type Summary struct {
	TeamID    int64          `json:"team_id"`
	Week      periods.Window `json:"week"`
	Processed int            `json:"processed"`
	Advanced  int            `json:"advanced"`
	Rejected  int            `json:"rejected"`
	Skipped   int            `json:"skipped"`
	Conflicts int            `json:"conflicts"`
}

// ClaimStore is the slice of claim persistence a sweep needs.
type ClaimStore interface {
	ListByEmployees(ctx context.Context, employeeIDs []int64, from, to time.Time) ([]claims.Claim, error)
	SetStage(ctx context.Context, id uuid.UUID, stage claims.Stage, reason string, expectedVersion int64) error
}

// Directory is the slice of the employee directory a sweep needs.
type Directory interface {
	GetTeam(ctx context.Context, id int64) (directory.Team, error)
	MembersOf(ctx context.Context, teamID int64) ([]directory.Employee, error)
}

// Processor executes team-week sweeps under a redis mutual-exclusion lock.
type Processor struct {
	store     ClaimStore
	dir       Directory
	rdb       redis.UniversalClient
	approvals *shared.ApprovalRecorder
	logger    *slog.Logger
}

// NewProcessor constructs the sweep processor.
func NewProcessor(store ClaimStore, dir Directory, rdb redis.UniversalClient, approvals *shared.ApprovalRecorder, logger *slog.Logger) *Processor {
	return &Processor{store: store, dir: dir, rdb: rdb, approvals: approvals, logger: logger}
}

// AdvanceWeek advances every claim of the team's week that sits exactly at
// the actor's gate. week is the 1-indexed calendar-page row of the month and
// clamps to the last row.
func (p *Processor) AdvanceWeek(ctx context.Context, actor shared.Actor, teamID int64, year int, month time.Month, week int) (Summary, error) {
	targets, ok := batchTargets[actor.Role]
	if !ok {
		return Summary{}, fmt.Errorf("batch: role %s cannot run sweeps: %w", actor.Role, shared.ErrForbidden)
	}
	return p.sweep(ctx, actor, teamID, year, month, week, func(c claims.Claim, s *Summary) (claims.Stage, string, bool) {
		normalized, known := claims.Normalize(c.Stage)
		if !known {
			return "", "", false
		}
		for _, t := range targets {
			if normalized != t {
				continue
			}
			next, ok := c.Stage.Next()
			if !ok {
				return "", "", false
			}
			s.Advanced++
			return next, "", true
		}
		return "", "", false
	})
}

// RejectWeek rejects every claim of the team's week the actor has authority
// over, except paid ones, storing the shared reason.
func (p *Processor) RejectWeek(ctx context.Context, actor shared.Actor, teamID int64, year int, month time.Month, week int, reason string) (Summary, error) {
	if !actor.Role.CanReview() {
		return Summary{}, fmt.Errorf("batch: role %s cannot run sweeps: %w", actor.Role, shared.ErrForbidden)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Summary{}, fmt.Errorf("batch: rejection reason required: %w", shared.ErrValidation)
	}
	return p.sweep(ctx, actor, teamID, year, month, week, func(c claims.Claim, s *Summary) (claims.Stage, string, bool) {
		normalized, known := claims.Normalize(c.Stage)
		if !known || normalized == claims.StagePaid || normalized == claims.StageRejected {
			return "", "", false
		}
		required, ok := c.Stage.AdvanceAuthority()
		if !ok || !actor.Role.AtLeast(required) {
			return "", "", false
		}
		s.Rejected++
		return claims.StageRejected, reason, true
	})
}

// decide inspects a snapshot claim and returns the stage to write. The
// bool reports whether the claim is picked up at all; callers bump the
// matching summary counter inside decide while holding the summary lock.
type decide func(c claims.Claim, s *Summary) (claims.Stage, string, bool)

func (p *Processor) sweep(ctx context.Context, actor shared.Actor, teamID int64, year int, month time.Month, week int, fn decide) (Summary, error) {
	window := periods.WeekOfMonth(year, month, week)
	if _, err := p.dir.GetTeam(ctx, teamID); err != nil {
		return Summary{}, err
	}

	release, err := p.acquire(ctx, teamID, window.Start)
	if err != nil {
		return Summary{}, err
	}
	defer release()

	members, err := p.dir.MembersOf(ctx, teamID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{TeamID: teamID, Week: window}
	if len(members) == 0 {
		return summary, nil
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	// Snapshot once; claims touched after this point surface as conflicts.
	snapshot, err := p.store.ListByEmployees(ctx, ids, window.Start, window.End)
	if err != nil {
		return Summary{}, err
	}
	summary.Processed = len(snapshot)

	byEmployee := make(map[int64][]claims.Claim)
	for _, c := range snapshot {
		byEmployee[c.EmployeeID] = append(byEmployee[c.EmployeeID], c)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberConcurrency)
	for _, list := range byEmployee {
		list := list
		g.Go(func() error {
			for _, c := range list {
				mu.Lock()
				stage, reason, pick := fn(c, &summary)
				if !pick {
					summary.Skipped++
					mu.Unlock()
					continue
				}
				mu.Unlock()

				err := p.store.SetStage(gctx, c.ID, stage, reason, c.Version)
				mu.Lock()
				switch {
				case err == nil:
					p.record(gctx, c, actor, stage, reason)
				case errors.Is(err, shared.ErrConcurrentModification), errors.Is(err, shared.ErrNotFound):
					p.undoCount(&summary, stage)
					summary.Conflicts++
				default:
					mu.Unlock()
					return err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	p.logger.Info("sweep finished",
		slog.Int64("team_id", teamID),
		slog.String("week_start", window.Start.Format("2006-01-02")),
		slog.Int("advanced", summary.Advanced),
		slog.Int("rejected", summary.Rejected),
		slog.Int("skipped", summary.Skipped),
		slog.Int("conflicts", summary.Conflicts),
	)
	return summary, nil
}

func (p *Processor) undoCount(s *Summary, stage claims.Stage) {
	if stage == claims.StageRejected {
		s.Rejected--
		return
	}
	s.Advanced--
}

func (p *Processor) record(ctx context.Context, c claims.Claim, actor shared.Actor, stage claims.Stage, reason string) {
	if p.approvals == nil {
		return
	}
	action := shared.ApprovalApprove
	if stage == claims.StageRejected {
		action = shared.ApprovalReject
	}
	err := p.approvals.Record(ctx, shared.ApprovalLog{
		Kind:    string(c.Kind),
		ClaimID: c.ID,
		ActorID: actor.ID,
		Action:  action,
		Stage:   string(stage),
		Note:    reason,
	})
	if err != nil {
		p.logger.Warn("record sweep approval", slog.Any("error", err))
	}
}

// acquire takes the team-week lock, returning ErrSweepInProgress when a
// concurrent sweep holds it. A nil redis client disables the guard.
func (p *Processor) acquire(ctx context.Context, teamID int64, weekStart time.Time) (func(), error) {
	if p.rdb == nil {
		return func() {}, nil
	}
	key := shared.BatchLockKey(teamID, weekStart)
	ok, err := p.rdb.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("batch: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrSweepInProgress
	}
	return func() {
		if err := p.rdb.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			p.logger.Warn("release sweep lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
