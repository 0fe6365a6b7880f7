package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/platform/db"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// pgStore is the Postgres claim store. Mileage and expense claims share one
// table; kind-specific columns are null for the other kind.
type pgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*pgStore)(nil)

// NewStore constructs the Postgres store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const claimColumns = `id, kind, employee_id, claim_date, ticket_ref, stage, rejection_reason,
	total_km, note, category, specification, receipt_ref, amount,
	version, created_at, updated_at`

func (s *pgStore) Create(ctx context.Context, claim Claim) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO claims (id, kind, employee_id, claim_date, ticket_ref, stage, rejection_reason,
			total_km, note, category, specification, receipt_ref, amount,
			version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			claim.ID, string(claim.Kind), claim.EmployeeID, timeToDate(claim.Date), claim.TicketRef,
			string(claim.Stage), claim.RejectionReason,
			mileageKM(claim.Mileage), mileageNote(claim.Mileage),
			expenseText(claim.Expense, func(e *ExpenseDetails) string { return string(e.Category) }),
			expenseText(claim.Expense, func(e *ExpenseDetails) string { return e.Specification }),
			expenseText(claim.Expense, func(e *ExpenseDetails) string { return e.ReceiptRef }),
			expenseAmount(claim.Expense),
			claim.Version, claim.CreatedAt, claim.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
		if claim.Mileage != nil {
			return insertLegs(ctx, tx, claim.ID, claim.Mileage.Legs)
		}
		return nil
	})
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Claim, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	claim, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Claim{}, fmt.Errorf("claim %s: %w", id, shared.ErrNotFound)
		}
		return Claim{}, err
	}
	if claim.Kind == KindMileage {
		legs, err := s.legsOf(ctx, id)
		if err != nil {
			return Claim{}, err
		}
		claim.Mileage.Legs = legs
	}
	return claim, nil
}

func (s *pgStore) Replace(ctx context.Context, claim Claim, expectedVersion int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
		UPDATE claims SET
			claim_date = $1, ticket_ref = $2, stage = $3, rejection_reason = $4,
			total_km = $5, note = $6, category = $7, specification = $8,
			receipt_ref = $9, amount = $10,
			version = version + 1, updated_at = $11
		WHERE id = $12 AND version = $13`,
			timeToDate(claim.Date), claim.TicketRef, string(claim.Stage), claim.RejectionReason,
			mileageKM(claim.Mileage), mileageNote(claim.Mileage),
			expenseText(claim.Expense, func(e *ExpenseDetails) string { return string(e.Category) }),
			expenseText(claim.Expense, func(e *ExpenseDetails) string { return e.Specification }),
			expenseText(claim.Expense, func(e *ExpenseDetails) string { return e.ReceiptRef }),
			expenseAmount(claim.Expense),
			claim.UpdatedAt, claim.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update claim: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.versionConflict(ctx, claim.ID)
		}
		if claim.Mileage != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM claim_legs WHERE claim_id = $1`, claim.ID); err != nil {
				return fmt.Errorf("clear legs: %w", err)
			}
			return insertLegs(ctx, tx, claim.ID, claim.Mileage.Legs)
		}
		return nil
	})
}

func (s *pgStore) SetStage(ctx context.Context, id uuid.UUID, stage Stage, reason string, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE claims SET stage = $1, rejection_reason = $2, version = version + 1, updated_at = now()
		WHERE id = $3 AND version = $4`,
		string(stage), reason, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.versionConflict(ctx, id)
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM claims WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.versionConflict(ctx, id)
	}
	return nil
}

func (s *pgStore) ListByEmployee(ctx context.Context, employeeID int64, from, to time.Time) ([]Claim, error) {
	return s.list(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE employee_id = $1 AND claim_date BETWEEN $2 AND $3
		ORDER BY claim_date, created_at`,
		employeeID, timeToDate(from), timeToDate(to))
}

func (s *pgStore) ListByEmployees(ctx context.Context, employeeIDs []int64, from, to time.Time) ([]Claim, error) {
	return s.list(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE employee_id = ANY($1) AND claim_date BETWEEN $2 AND $3
		ORDER BY employee_id, claim_date, created_at`,
		employeeIDs, timeToDate(from), timeToDate(to))
}

func (s *pgStore) AnyInStages(ctx context.Context, employeeID int64, from, to time.Time, stages []Stage) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE employee_id = $1 AND claim_date BETWEEN $2 AND $3 AND stage = ANY($4)
		)`,
		employeeID, timeToDate(from), timeToDate(to), stageStrings(stages),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stages: %w", err)
	}
	return exists, nil
}

func (s *pgStore) ResetCorrupted(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE claims SET stage = $1, rejection_reason = '', version = version + 1, updated_at = now()
		WHERE NOT (stage = ANY($2))`,
		string(StagePending), stageStrings(knownStageValues),
	)
	if err != nil {
		return 0, fmt.Errorf("reset corrupted: %w", err)
	}
	return tag.RowsAffected(), nil
}

// versionConflict distinguishes a stale version from a vanished row.
func (s *pgStore) versionConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("claim %s: %w", id, shared.ErrNotFound)
	}
	return fmt.Errorf("claim %s: %w", id, shared.ErrConcurrentModification)
}

func (s *pgStore) list(ctx context.Context, query string, args ...any) ([]Claim, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range claims {
		if claims[i].Kind != KindMileage {
			continue
		}
		legs, err := s.legsOf(ctx, claims[i].ID)
		if err != nil {
			return nil, err
		}
		claims[i].Mileage.Legs = legs
	}
	return claims, nil
}

func (s *pgStore) legsOf(ctx context.Context, claimID uuid.UUID) ([]Leg, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, claim_id, origin_ref, origin_name, dest_ref, dest_name, km, position
		FROM claim_legs WHERE claim_id = $1 ORDER BY position`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list legs: %w", err)
	}
	defer rows.Close()

	var legs []Leg
	for rows.Next() {
		var (
			leg Leg
			km  pgtype.Numeric
		)
		if err := rows.Scan(&leg.ID, &leg.ClaimID, &leg.OriginRef, &leg.OriginName,
			&leg.DestRef, &leg.DestName, &km, &leg.Position); err != nil {
			return nil, err
		}
		leg.KM = numericToDecimal(km)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

func insertLegs(ctx context.Context, tx pgx.Tx, claimID uuid.UUID, legs []Leg) error {
	for i, leg := range legs {
		_, err := tx.Exec(ctx, `
			INSERT INTO claim_legs (claim_id, origin_ref, origin_name, dest_ref, dest_name, km, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			claimID, leg.OriginRef, leg.OriginName, leg.DestRef, leg.DestName,
			decimalToNumeric(leg.KM), i+1,
		)
		if err != nil {
			return fmt.Errorf("insert leg %d: %w", i+1, err)
		}
	}
	return nil
}

func scanClaim(row pgx.Row) (Claim, error) {
	var (
		claim         Claim
		kind          string
		date          pgtype.Date
		stage         string
		totalKM       pgtype.Numeric
		note          pgtype.Text
		category      pgtype.Text
		specification pgtype.Text
		receiptRef    pgtype.Text
		amount        pgtype.Numeric
	)
	err := row.Scan(&claim.ID, &kind, &claim.EmployeeID, &date, &claim.TicketRef,
		&stage, &claim.RejectionReason,
		&totalKM, &note, &category, &specification, &receiptRef, &amount,
		&claim.Version, &claim.CreatedAt, &claim.UpdatedAt)
	if err != nil {
		return Claim{}, err
	}
	claim.Kind = Kind(kind)
	claim.Date = date.Time
	claim.Stage = Stage(stage)
	switch claim.Kind {
	case KindMileage:
		claim.Mileage = &MileageDetails{
			TotalKM: numericToDecimal(totalKM),
			Note:    note.String,
		}
	case KindExpense:
		claim.Expense = &ExpenseDetails{
			Category:      Category(category.String),
			Specification: specification.String,
			ReceiptRef:    receiptRef.String,
			Amount:        numericToDecimal(amount),
		}
	}
	return claim, nil
}

func stageStrings(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}

func timeToDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: t, Valid: true}
}

func mileageKM(m *MileageDetails) pgtype.Numeric {
	if m == nil {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(m.TotalKM)
}

func mileageNote(m *MileageDetails) pgtype.Text {
	if m == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: m.Note, Valid: true}
}

func expenseText(e *ExpenseDetails, field func(*ExpenseDetails) string) pgtype.Text {
	if e == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: field(e), Valid: true}
}

func expenseAmount(e *ExpenseDetails) pgtype.Numeric {
	if e == nil {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(e.Amount)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
