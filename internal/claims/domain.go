// Package claims implements the reimbursement claim lifecycle: creation and
// correction by field employees, the fixed approval pipeline, week locking
// and the maintenance reset for corrupted rows.
package claims

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Kind distinguishes the two claim types sharing the pipeline.
type Kind string

const (
	KindMileage Kind = "MILEAGE"
	KindExpense Kind = "EXPENSE"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	return k == KindMileage || k == KindExpense
}

// Category enumerates incidental expense types.
type Category string

const (
	CategoryParking Category = "PARKING"
	CategoryToll    Category = "TOLL"
	CategoryMeal    Category = "MEAL"
	CategoryLodging Category = "LODGING"
	CategoryOther   Category = "OTHER"
)

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	switch c {
	case CategoryParking, CategoryToll, CategoryMeal, CategoryLodging, CategoryOther:
		return true
	}
	return false
}

// Leg is one segment of a mileage claim's trip, kept for the leg-level
// audit trail. Origin and destination refs are opaque (mapping links).
type Leg struct {
	ID         int64
	ClaimID    uuid.UUID
	OriginRef  string
	OriginName string
	DestRef    string
	DestName   string
	KM         decimal.Decimal
	Position   int
}

// MileageDetails holds the mileage-specific fields of a claim. A claim with
// no legs is a single manual entry whose distance is TotalKM alone.
type MileageDetails struct {
	TotalKM decimal.Decimal
	Note    string
	Legs    []Leg
}

// ExpenseDetails holds the expense-specific fields of a claim.
type ExpenseDetails struct {
	Category      Category
	Specification string
	ReceiptRef    string
	Amount        decimal.Decimal
}

// Claim is the unified view of a mileage or expense claim moving through
// the pipeline. Exactly one of Mileage/Expense is set, matching Kind.
type Claim struct {
	ID              uuid.UUID
	Kind            Kind
	EmployeeID      int64
	Date            time.Time
	TicketRef       string
	Stage           Stage
	RejectionReason string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Mileage *MileageDetails
	Expense *ExpenseDetails
}

// MileagePayload carries the mutable fields of a mileage claim.
type MileagePayload struct {
	Date      time.Time
	TicketRef string
	TotalKM   decimal.Decimal
	Note      string
	Legs      []LegPayload
}

// LegPayload carries one trip segment of a mileage payload.
type LegPayload struct {
	OriginRef  string
	OriginName string
	DestRef    string
	DestName   string
	KM         decimal.Decimal
}

// ExpensePayload carries the mutable fields of an expense claim.
type ExpensePayload struct {
	Date          time.Time
	TicketRef     string
	Category      Category
	Specification string
	ReceiptRef    string
	Amount        decimal.Decimal
}

// Payload bundles either a mileage or an expense payload; Kind selects.
type Payload struct {
	Kind    Kind
	Mileage *MileagePayload
	Expense *ExpensePayload
}

// Date returns the trip/expense date of whichever payload is set.
func (p Payload) Date() time.Time {
	switch p.Kind {
	case KindMileage:
		if p.Mileage != nil {
			return p.Mileage.Date
		}
	case KindExpense:
		if p.Expense != nil {
			return p.Expense.Date
		}
	}
	return time.Time{}
}

// Validate checks the payload against the engine's admission rules.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindMileage:
		if p.Mileage == nil {
			return validationErr("mileage payload required")
		}
		return p.Mileage.validate()
	case KindExpense:
		if p.Expense == nil {
			return validationErr("expense payload required")
		}
		return p.Expense.validate()
	}
	return validationErr(fmt.Sprintf("unknown claim kind %q", string(p.Kind)))
}

func (p *MileagePayload) validate() error {
	if p.Date.IsZero() {
		return validationErr("trip date required")
	}
	if !p.TotalKM.IsPositive() {
		return validationErr("total distance must be greater than zero")
	}
	for i, leg := range p.Legs {
		if !leg.KM.IsPositive() {
			return validationErr(fmt.Sprintf("leg %d distance must be greater than zero", i+1))
		}
	}
	return nil
}

func (p *ExpensePayload) validate() error {
	if p.Date.IsZero() {
		return validationErr("expense date required")
	}
	if strings.TrimSpace(p.TicketRef) == "" {
		return validationErr("ticket reference required")
	}
	if !p.Category.Valid() {
		return validationErr(fmt.Sprintf("unknown expense category %q", string(p.Category)))
	}
	if p.Category == CategoryOther && strings.TrimSpace(p.Specification) == "" {
		return validationErr("category OTHER requires a specification")
	}
	if p.Amount.IsNegative() {
		return validationErr("amount cannot be negative")
	}
	return nil
}

func validationErr(msg string) error {
	return fmt.Errorf("claims: %s: %w", msg, shared.ErrValidation)
}

// ErrKindMismatch indicates an edit payload of the wrong kind for the claim.
var ErrKindMismatch = errors.New("claims: payload kind does not match claim")
