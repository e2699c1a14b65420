package fiscal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the fiscal calendar.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers fiscal calendar routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/fiscal/years", h.handleCreateYear)
	r.Get("/fiscal/years/{yearID}/periods", h.handleListPeriods)
	r.Post("/fiscal/periods/{id}/close", h.handleClose)
	r.Post("/fiscal/periods/{id}/reopen", h.handleReopen)
	r.Post("/fiscal/periods/{id}/lock", h.handleLock)
	r.Put("/fiscal/periods/{id}/stores/{storeID}", h.handleStoreOverride)
	r.Get("/fiscal/periods/{id}/status", h.handleEffectiveStatus)
}

type createYearRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	ActorID   int64  `json:"actor_id" validate:"required"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required"`
}

type reopenRequest struct {
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"actor_id" validate:"required"`
}

type overrideRequest struct {
	Status  PeriodStatus `json:"status" validate:"required"`
	ActorID int64        `json:"actor_id" validate:"required"`
}

type periodResponse struct {
	ID        int64        `json:"id"`
	YearID    int64        `json:"year_id"`
	Code      string       `json:"code"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Status    PeriodStatus `json:"status"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:        p.ID,
		YearID:    p.YearID,
		Code:      p.Code,
		StartDate: p.StartDate.Format("2006-01-02"),
		EndDate:   p.EndDate.Format("2006-01-02"),
		Status:    p.Status,
	}
}

func (h *Handler) handleCreateYear(w http.ResponseWriter, r *http.Request) {
	var req createYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}
	year, periods, err := h.service.CreateFiscalYear(r.Context(), start, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":      year.ID,
		"code":    year.Code,
		"periods": out,
	})
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	yearID, err := strconv.ParseInt(chi.URLParam(r, "yearID"), 10, 64)
	if err != nil || yearID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year id")
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), yearID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, periodID, actorID int64) (Period, error)) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || periodID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := fn(r.Context(), periodID, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ClosePeriod)
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.LockPeriod)
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || periodID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := h.service.ReopenPeriod(r.Context(), periodID, req.ActorID, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

func (h *Handler) handleStoreOverride(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || periodID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return
	}
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil || storeID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid store id")
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetStoreStatus(r.Context(), periodID, storeID, req.Status, req.ActorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period_id": periodID, "store_id": storeID, "status": req.Status})
}

func (h *Handler) handleEffectiveStatus(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || periodID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return
	}
	var storeID *int64
	if raw := r.URL.Query().Get("store_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid store id")
			return
		}
		storeID = &v
	}
	status, err := h.service.GetEffectiveStatus(r.Context(), periodID, storeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period_id": periodID, "status": status})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPeriodNotFound), errors.Is(err, ErrNoPeriodForDate):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrYearOverlap):
		httpx.Problem(w, http.StatusConflict, "Year Overlap", err.Error())
	case errors.Is(err, ErrPeriodLocked), errors.Is(err, ErrPeriodNotOpen), errors.Is(err, ErrPeriodNotClosed),
		errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("fiscal request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
