package payout

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/periods"
	"github.com/fieldpay-hr/fieldpay/internal/platform/httpx"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Handler exposes payout figures over JSON. All endpoints are read-only.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/employees/{id}/week", h.weeklyTotal)
	r.Get("/employees/{id}/breakdown", h.breakdown)
	r.Get("/teams/{id}/week", h.teamReport)
}

type weeklyTotalResponse struct {
	EmployeeID    int64           `json:"employee_id"`
	WeekStart     string          `json:"week_start"`
	WeekEnd       string          `json:"week_end"`
	TotalKM       decimal.Decimal `json:"total_km"`
	KMRate        decimal.Decimal `json:"km_rate"`
	MileageAmount decimal.Decimal `json:"mileage_amount"`
	ExpenseAmount decimal.Decimal `json:"expense_amount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	ClaimCount    int             `json:"claim_count"`
}

func (h *Handler) weeklyTotal(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.mayView(w, r, employeeID) {
		return
	}
	date, ok := dateParam(w, r, "date")
	if !ok {
		return
	}
	total, err := h.service.WeeklyTotal(r.Context(), employeeID, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, weeklyTotalResponse{
		EmployeeID:    total.EmployeeID,
		WeekStart:     total.Week.Start.Format("2006-01-02"),
		WeekEnd:       total.Week.End.Format("2006-01-02"),
		TotalKM:       total.TotalKM,
		KMRate:        total.KMRate,
		MileageAmount: total.MileageAmount,
		ExpenseAmount: total.ExpenseAmount,
		GrandTotal:    total.GrandTotal,
		ClaimCount:    total.ClaimCount,
	})
}

func (h *Handler) teamReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if !actor.Role.CanReview() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "team reports require reviewer access")
		return
	}
	teamID, ok := pathID(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r, "date")
	if !ok {
		return
	}
	report, err := h.service.TeamReport(r.Context(), teamID, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.mayView(w, r, employeeID) {
		return
	}
	granularity := periods.Granularity(r.URL.Query().Get("granularity"))
	from, ok := dateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := dateParam(w, r, "to")
	if !ok {
		return
	}
	breakdown, err := h.service.Breakdown(r.Context(), employeeID, granularity, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdown)
}

func (h *Handler) mayView(w http.ResponseWriter, r *http.Request, employeeID int64) bool {
	actor, _ := shared.ActorFromContext(r.Context())
	if actor.ID == employeeID || actor.Role.CanReview() {
		return true
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "cannot view another employee's payout")
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func dateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if name == "date" {
			return time.Now().UTC(), true
		}
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", name+" is required")
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", name+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
