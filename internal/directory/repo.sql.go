package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Repository defines directory data access.
type Repository interface {
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	GetTeam(ctx context.Context, id int64) (Team, error)
	MembersOf(ctx context.Context, teamID int64) ([]Employee, error)
	RoleOf(ctx context.Context, actorID int64) (shared.Role, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a directory repository backed by postgres.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	const query = `SELECT id, full_name, email, team_id, km_rate, banking_ref, created_at
FROM employees WHERE id = $1`
	var (
		e      Employee
		teamID pgtype.Int8
		rate   pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.FullName, &e.Email, &teamID, &rate, &e.BankingRef, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, err
	}
	if teamID.Valid {
		v := teamID.Int64
		e.TeamID = &v
	}
	e.KMRate = numericToDecimal(rate)
	return e, nil
}

func (r *pgRepository) GetTeam(ctx context.Context, id int64) (Team, error) {
	const query = `SELECT id, name, is_field FROM teams WHERE id = $1`
	var t Team
	if err := r.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Field); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Team{}, shared.ErrNotFound
		}
		return Team{}, err
	}
	const managers = `SELECT employee_id FROM team_managers WHERE team_id = $1 ORDER BY employee_id`
	rows, err := r.pool.Query(ctx, managers, id)
	if err != nil {
		return Team{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m int64
		if err := rows.Scan(&m); err != nil {
			return Team{}, err
		}
		t.ManagerIDs = append(t.ManagerIDs, m)
	}
	return t, rows.Err()
}

func (r *pgRepository) MembersOf(ctx context.Context, teamID int64) ([]Employee, error) {
	const query = `SELECT id, full_name, email, team_id, km_rate, banking_ref, created_at
FROM employees WHERE team_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Employee
	for rows.Next() {
		var (
			e    Employee
			tid  pgtype.Int8
			rate pgtype.Numeric
		)
		if err := rows.Scan(&e.ID, &e.FullName, &e.Email, &tid, &rate, &e.BankingRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		if tid.Valid {
			v := tid.Int64
			e.TeamID = &v
		}
		e.KMRate = numericToDecimal(rate)
		members = append(members, e)
	}
	return members, rows.Err()
}

func (r *pgRepository) RoleOf(ctx context.Context, actorID int64) (shared.Role, error) {
	const query = `SELECT role FROM actor_roles WHERE actor_id = $1`
	var role string
	err := r.pool.QueryRow(ctx, query, actorID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.RoleEmployee, nil
		}
		return "", err
	}
	return shared.Role(role), nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
