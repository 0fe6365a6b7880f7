// Package directory provides read-only access to the employee and team
// records owned by the HR system. The claims engine never mutates these;
// it consumes identity, team membership, mileage rates and resolved roles.
package directory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// DefaultKMRate is the fallback reimbursement rate per kilometre applied
// when an employee has no configured rate or a non-positive one.
var DefaultKMRate = decimal.RequireFromString("1.20")

// Employee is the directory view of a field employee.
type Employee struct {
	ID         int64
	FullName   string
	Email      string
	TeamID     *int64
	KMRate     decimal.Decimal
	BankingRef string
	CreatedAt  time.Time
}

// EffectiveKMRate returns the configured rate, or DefaultKMRate when the
// configured value is unset or non-positive.
func (e Employee) EffectiveKMRate() decimal.Decimal {
	if e.KMRate.IsPositive() {
		return e.KMRate
	}
	return DefaultKMRate
}

// Team groups field employees under one or more managers.
type Team struct {
	ID         int64
	Name       string
	Field      bool
	ManagerIDs []int64
}

// RoleResolver maps an opaque actor id to its authority level. The engine
// never inspects team names or group membership itself.
type RoleResolver interface {
	ResolveRole(ctx context.Context, actorID int64) (shared.Role, error)
}
