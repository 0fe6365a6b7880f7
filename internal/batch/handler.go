package batch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldpay-hr/fieldpay/internal/platform/httpx"
	"github.com/fieldpay-hr/fieldpay/internal/shared"
)

// Handler exposes team-week sweeps over JSON.
type Handler struct {
	logger    *slog.Logger
	processor *Processor
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, processor *Processor) *Handler {
	return &Handler{logger: logger, processor: processor, validate: validator.New()}
}

// MountRoutes registers sweep routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/teams/{id}/advance", h.advance)
	r.Post("/teams/{id}/reject", h.reject)
}

type sweepRequest struct {
	Year   int    `json:"year" validate:"required,min=2000,max=2200"`
	Month  int    `json:"month" validate:"required,min=1,max=12"`
	Week   int    `json:"week" validate:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	teamID, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	summary, err := h.processor.AdvanceWeek(r.Context(), actor, teamID, req.Year, time.Month(req.Month), req.Week)
	if err != nil {
		h.respondSweepError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	teamID, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	summary, err := h.processor.RejectWeek(r.Context(), actor, teamID, req.Year, time.Month(req.Month), req.Week, req.Reason)
	if err != nil {
		h.respondSweepError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (int64, sweepRequest, bool) {
	teamID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid team id")
		return 0, sweepRequest{}, false
	}
	var req sweepRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return 0, sweepRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return 0, sweepRequest{}, false
	}
	return teamID, req, true
}

func (h *Handler) respondSweepError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSweepInProgress) {
		httpx.Problem(w, http.StatusConflict, "Sweep In Progress", err.Error())
		return
	}
	httpx.RespondError(w, err)
}
