package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for manual journal vouchers.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/journal/entries", h.handlePost)
	r.Post("/journal/entries/{id}/void", h.handleVoid)
	r.Get("/journal/entries/{id}", h.handleGet)
	r.Get("/journal/entries", h.handleList)
}

type lineRequest struct {
	AccountID int64           `json:"account_id" validate:"required"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	StoreID   *int64          `json:"store_id"`
	Memo      string          `json:"memo"`
}

type postRequest struct {
	Description string        `json:"description" validate:"required"`
	EntryDate   string        `json:"entry_date" validate:"required"`
	StoreID     *int64        `json:"store_id"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
	ActorID     int64         `json:"actor_id" validate:"required"`
}

type voidRequest struct {
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"actor_id" validate:"required"`
}

type lineResponse struct {
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	StoreID   *int64          `json:"store_id,omitempty"`
	Memo      string          `json:"memo,omitempty"`
}

type entryResponse struct {
	ID                int64           `json:"id"`
	Number            int64           `json:"number"`
	Type              string          `json:"type"`
	Description       string          `json:"description"`
	EntryDate         string          `json:"entry_date"`
	PostingDate       string          `json:"posting_date"`
	StoreID           *int64          `json:"store_id,omitempty"`
	Status            EntryStatus     `json:"status"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	IsSystemEntry     bool            `json:"is_system_entry"`
	ReversesEntryID   *int64          `json:"reverses_entry_id,omitempty"`
	ReversedByEntryID *int64          `json:"reversed_by_entry_id,omitempty"`
	Lines             []lineResponse  `json:"lines,omitempty"`
}

func toEntryResponse(entry JournalEntry) entryResponse {
	out := entryResponse{
		ID:                entry.ID,
		Number:            entry.Number,
		Type:              entry.Type,
		Description:       entry.Description,
		EntryDate:         entry.EntryDate.Format("2006-01-02"),
		PostingDate:       entry.PostingDate.Format("2006-01-02"),
		StoreID:           entry.StoreID,
		Status:            entry.Status,
		TotalDebit:        entry.TotalDebit,
		TotalCredit:       entry.TotalCredit,
		IsSystemEntry:     entry.IsSystemEntry,
		ReversesEntryID:   entry.ReversesEntryID,
		ReversedByEntryID: entry.ReversedByEntryID,
	}
	for _, line := range entry.Lines {
		out.Lines = append(out.Lines, lineResponse{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			StoreID:   line.StoreID,
			Memo:      line.Memo,
		})
	}
	return out
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			StoreID:   line.StoreID,
			Memo:      line.Memo,
		})
	}
	entry, err := h.service.Post(r.Context(), PostingInput{
		Type:        EntryTypeManual,
		Description: req.Description,
		EntryDate:   entryDate,
		PostingDate: entryDate,
		StoreID:     req.StoreID,
		ActorID:     req.ActorID,
		Lines:       lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || entryID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	reversal, err := h.service.Void(r.Context(), VoidInput{EntryID: entryID, Reason: req.Reason, ActorID: req.ActorID})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(reversal))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || entryID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), entryID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	entries, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyJournal), errors.Is(err, ErrUnbalanced), errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrLineBothSides), errors.Is(err, ErrLineNoAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnknownAccount), errors.Is(err, ErrInactiveAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Account Not Postable", err.Error())
	case errors.Is(err, fiscal.ErrPeriodClosed), errors.Is(err, fiscal.ErrPeriodLocked),
		errors.Is(err, fiscal.ErrNoPeriodForDate):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Period Not Open", err.Error())
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotPosted), errors.Is(err, ErrAlreadyVoid), errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSystemEntryVoid):
		httpx.Problem(w, http.StatusForbidden, "System Entry", err.Error())
	default:
		h.logger.Error("journal request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
