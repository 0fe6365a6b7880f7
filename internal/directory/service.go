package directory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Service exposes directory lookups to the claims engine.
type Service struct {
	repo Repository
}

// NewService constructs a directory Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetEmployee loads a single employee record.
func (s *Service) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

// GetTeam loads a single team record.
func (s *Service) GetTeam(ctx context.Context, id int64) (Team, error) {
	return s.repo.GetTeam(ctx, id)
}

// MembersOf lists the employees belonging to the team.
func (s *Service) MembersOf(ctx context.Context, teamID int64) ([]Employee, error) {
	return s.repo.MembersOf(ctx, teamID)
}

// RateFor returns the effective mileage rate for an employee, applying the
// default fallback for unset or non-positive configured rates.
func (s *Service) RateFor(ctx context.Context, employeeID int64) (decimal.Decimal, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("directory: rate for employee %d: %w", employeeID, err)
	}
	return emp.EffectiveKMRate(), nil
}

// ResolveRole implements RoleResolver on top of the repository.
func (s *Service) ResolveRole(ctx context.Context, actorID int64) (shared.Role, error) {
	return s.repo.RoleOf(ctx, actorID)
}

// ResolveActor loads the caller's role and bundles it into an Actor.
func (s *Service) ResolveActor(ctx context.Context, actorID int64) (shared.Actor, error) {
	role, err := s.ResolveRole(ctx, actorID)
	if err != nil {
		return shared.Actor{}, err
	}
	return shared.Actor{ID: actorID, Role: role}, nil
}

var _ RoleResolver = (*Service)(nil)
