package claims

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldpay-hr/fieldpay/internal/platform/httpx"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Handler exposes the claim lifecycle over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Lifecycle
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Lifecycle) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers claim routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/mileage", h.createMileage)
	r.Post("/expenses", h.createExpense)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.edit)
	r.Delete("/{id}", h.remove)
	r.Post("/{id}/advance", h.advance)
	r.Post("/{id}/reject", h.reject)
	r.Get("/{id}/history", h.history)
}

// MountMaintenanceRoutes registers admin-only repair routes.
func (h *Handler) MountMaintenanceRoutes(r chi.Router) {
	r.Post("/claims/reset", h.resetCorrupted)
}

func (h *Handler) resetCorrupted(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	count, err := h.service.ResetCorrupted(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reset": count})
}

type legRequest struct {
	OriginRef  string          `json:"origin_ref"`
	OriginName string          `json:"origin_name"`
	DestRef    string          `json:"dest_ref"`
	DestName   string          `json:"dest_name"`
	KM         decimal.Decimal `json:"km"`
}

type mileageRequest struct {
	EmployeeID int64           `json:"employee_id"`
	Date       string          `json:"date" validate:"required"`
	TicketRef  string          `json:"ticket_ref"`
	TotalKM    decimal.Decimal `json:"total_km"`
	Note       string          `json:"note"`
	Legs       []legRequest    `json:"legs" validate:"dive"`
}

type expenseRequest struct {
	EmployeeID    int64           `json:"employee_id"`
	Date          string          `json:"date" validate:"required"`
	TicketRef     string          `json:"ticket_ref" validate:"required"`
	Category      string          `json:"category" validate:"required"`
	Specification string          `json:"specification"`
	ReceiptRef    string          `json:"receipt_ref"`
	Amount        decimal.Decimal `json:"amount"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type legResponse struct {
	OriginRef  string          `json:"origin_ref"`
	OriginName string          `json:"origin_name"`
	DestRef    string          `json:"dest_ref"`
	DestName   string          `json:"dest_name"`
	KM         decimal.Decimal `json:"km"`
	Position   int             `json:"position"`
}

type claimResponse struct {
	ID              uuid.UUID `json:"id"`
	Kind            Kind      `json:"kind"`
	EmployeeID      int64     `json:"employee_id"`
	Date            string    `json:"date"`
	TicketRef       string    `json:"ticket_ref,omitempty"`
	Stage           Stage     `json:"stage"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	TotalKM *decimal.Decimal `json:"total_km,omitempty"`
	Note    string           `json:"note,omitempty"`
	Legs    []legResponse    `json:"legs,omitempty"`

	Category      Category         `json:"category,omitempty"`
	Specification string           `json:"specification,omitempty"`
	ReceiptRef    string           `json:"receipt_ref,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

func toClaimResponse(c Claim) claimResponse {
	resp := claimResponse{
		ID:              c.ID,
		Kind:            c.Kind,
		EmployeeID:      c.EmployeeID,
		Date:            c.Date.Format("2006-01-02"),
		TicketRef:       c.TicketRef,
		Stage:           c.Stage,
		RejectionReason: c.RejectionReason,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.Mileage != nil {
		km := c.Mileage.TotalKM
		resp.TotalKM = &km
		resp.Note = c.Mileage.Note
		for _, l := range c.Mileage.Legs {
			resp.Legs = append(resp.Legs, legResponse{
				OriginRef:  l.OriginRef,
				OriginName: l.OriginName,
				DestRef:    l.DestRef,
				DestName:   l.DestName,
				KM:         l.KM,
				Position:   l.Position,
			})
		}
	}
	if c.Expense != nil {
		amount := c.Expense.Amount
		resp.Amount = &amount
		resp.Category = c.Expense.Category
		resp.Specification = c.Expense.Specification
		resp.ReceiptRef = c.Expense.ReceiptRef
	}
	return resp
}

func (h *Handler) createMileage(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req mileageRequest
	payload, ok := h.decodeMileage(w, r, &req)
	if !ok {
		return
	}
	employeeID := req.EmployeeID
	if employeeID == 0 {
		employeeID = actor.ID
	}
	claim, err := h.service.Create(r.Context(), actor, employeeID, payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toClaimResponse(claim))
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req expenseRequest
	payload, ok := h.decodeExpense(w, r, &req)
	if !ok {
		return
	}
	employeeID := req.EmployeeID
	if employeeID == 0 {
		employeeID = actor.ID
	}
	claim, err := h.service.Create(r.Context(), actor, employeeID, payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toClaimResponse(claim))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	claim, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	employeeID := actor.ID
	if raw := r.URL.Query().Get("employee_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee_id")
			return
		}
		if parsed != actor.ID && !actor.Role.CanReview() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "cannot list another employee's claims")
			return
		}
		employeeID = parsed
	}
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from date")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid to date")
		return
	}
	if from.IsZero() {
		from = time.Now().UTC().AddDate(0, -1, 0)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	claims, err := h.service.ListByEmployee(r.Context(), employeeID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	meta := shared.NewPagination(page, perPage, len(claims))
	claims = paginate(claims, meta)

	out := make([]claimResponse, len(claims))
	for i, c := range claims {
		out[i] = toClaimResponse(c)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"claims": out,
		"pagination": map[string]int{
			"page":        meta.Page,
			"per_page":    meta.PerPage,
			"total":       meta.Total,
			"total_pages": meta.TotalPages,
		},
	})
}

func paginate(list []Claim, meta shared.Pagination) []Claim {
	start := (meta.Page - 1) * meta.PerPage
	if start >= len(list) {
		return nil
	}
	end := start + meta.PerPage
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	existing, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var payload Payload
	switch existing.Kind {
	case KindMileage:
		var req mileageRequest
		payload, ok = h.decodeMileage(w, r, &req)
	case KindExpense:
		var req expenseRequest
		payload, ok = h.decodeExpense(w, r, &req)
	default:
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", "claim kind unrecognised")
		return
	}
	if !ok {
		return
	}
	claim, err := h.service.Edit(r.Context(), actor, id, payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	stage, err := h.service.Advance(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "stage": stage})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Reject(r.Context(), actor, id, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "stage": StageRejected})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	trail, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": trail})
}

func (h *Handler) decodeMileage(w http.ResponseWriter, r *http.Request, req *mileageRequest) (Payload, bool) {
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return Payload{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Payload{}, false
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return Payload{}, false
	}
	legs := make([]LegPayload, len(req.Legs))
	for i, l := range req.Legs {
		legs[i] = LegPayload{
			OriginRef:  l.OriginRef,
			OriginName: l.OriginName,
			DestRef:    l.DestRef,
			DestName:   l.DestName,
			KM:         l.KM,
		}
	}
	return Payload{
		Kind: KindMileage,
		Mileage: &MileagePayload{
			Date:      date,
			TicketRef: req.TicketRef,
			TotalKM:   req.TotalKM,
			Note:      req.Note,
			Legs:      legs,
		},
	}, true
}

func (h *Handler) decodeExpense(w http.ResponseWriter, r *http.Request, req *expenseRequest) (Payload, bool) {
	if err := httpx.DecodeJSON(r, req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return Payload{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Payload{}, false
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return Payload{}, false
	}
	return Payload{
		Kind: KindExpense,
		Expense: &ExpensePayload{
			Date:          date,
			TicketRef:     req.TicketRef,
			Category:      Category(req.Category),
			Specification: req.Specification,
			ReceiptRef:    req.ReceiptRef,
			Amount:        req.Amount,
		},
	}, true
}

func claimID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid claim id")
		return uuid.UUID{}, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
