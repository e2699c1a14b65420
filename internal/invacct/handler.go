package invacct

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/fifo"
	"github.com/meridian-erp/meridian-erp/internal/fiscal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory-accounting events.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers event routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/events/sales", h.handleSale)
	r.Post("/events/sale-returns", h.handleSaleReturn)
	r.Post("/events/purchases", h.handlePurchase)
	r.Post("/events/purchase-returns", h.handlePurchaseReturn)
	r.Post("/events/adjustments", h.handleAdjustment)
	r.Post("/events/transfers", h.handleTransfer)
	r.Post("/events/write-offs", h.handleWriteOff)
	r.Post("/events/void", h.handleVoid)
}

type eventLineDTO struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type saleRequest struct {
	StoreID           int64          `json:"store_id" validate:"required"`
	EventID           uuid.UUID      `json:"event_id" validate:"required"`
	EventDate         string         `json:"event_date" validate:"required"`
	Lines             []eventLineDTO `json:"lines" validate:"required,min=1,dive"`
	SettlementAccount int64          `json:"settlement_account" validate:"required"`
	ActorID           int64          `json:"actor_id" validate:"required"`
}

type saleReturnRequest struct {
	saleRequest
	UnitCosts []decimal.Decimal `json:"unit_costs" validate:"required,min=1"`
}

type purchaseRequest struct {
	StoreID   int64          `json:"store_id" validate:"required"`
	EventID   uuid.UUID      `json:"event_id" validate:"required"`
	EventDate string         `json:"event_date" validate:"required"`
	Lines     []eventLineDTO `json:"lines" validate:"required,min=1,dive"`
	ActorID   int64          `json:"actor_id" validate:"required"`
}

type adjustmentRequest struct {
	StoreID   int64           `json:"store_id" validate:"required"`
	EventID   uuid.UUID       `json:"event_id" validate:"required"`
	EventDate string          `json:"event_date" validate:"required"`
	ProductID int64           `json:"product_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reason    string          `json:"reason" validate:"required"`
	ActorID   int64           `json:"actor_id" validate:"required"`
}

type transferRequest struct {
	SrcStoreID int64          `json:"src_store_id" validate:"required"`
	DstStoreID int64          `json:"dst_store_id" validate:"required"`
	EventID    uuid.UUID      `json:"event_id" validate:"required"`
	EventDate  string         `json:"event_date" validate:"required"`
	Lines      []eventLineDTO `json:"lines" validate:"required,min=1,dive"`
	ActorID    int64          `json:"actor_id" validate:"required"`
}

type writeOffRequest struct {
	purchaseRequest
	Reason string `json:"reason" validate:"required"`
}

type lotMutationDTO struct {
	LotID    int64           `json:"lot_id" validate:"required"`
	Qty      decimal.Decimal `json:"qty" validate:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type voidRequest struct {
	JournalEntryID int64            `json:"journal_entry_id" validate:"required"`
	LotMutations   []lotMutationDTO `json:"lot_mutations"`
	Reason         string           `json:"reason" validate:"required"`
	ActorID        int64            `json:"actor_id" validate:"required"`
}

type resultResponse struct {
	Success        bool             `json:"success"`
	JournalEntryID int64            `json:"journal_entry_id"`
	EntryNumber    int64            `json:"entry_number"`
	LotMutations   []lotMutationDTO `json:"lot_mutations"`
	TotalCost      decimal.Decimal  `json:"total_cost"`
}

func toResponse(res InventoryAccountingResult) resultResponse {
	out := resultResponse{
		Success:        res.Success,
		JournalEntryID: res.JournalEntryID,
		EntryNumber:    res.EntryNumber,
		TotalCost:      res.TotalCost,
	}
	for _, m := range res.LotMutations {
		out.LotMutations = append(out.LotMutations, lotMutationDTO{LotID: m.LotID, Qty: m.Qty, UnitCost: m.UnitCost})
	}
	return out
}

func toLines(dtos []eventLineDTO) []EventLine {
	out := make([]EventLine, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, EventLine{ProductID: d.ProductID, Qty: d.Qty, UnitPrice: d.UnitPrice})
	}
	return out
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func parseEventDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "event_date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostSale(r.Context(), SaleInput{
		StoreID:           req.StoreID,
		EventID:           req.EventID,
		EventDate:         date,
		Lines:             toLines(req.Lines),
		SettlementAccount: req.SettlementAccount,
		ActorID:           req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handleSaleReturn(w http.ResponseWriter, r *http.Request) {
	var req saleReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostSaleReturn(r.Context(), SaleReturnInput{
		StoreID:           req.StoreID,
		EventID:           req.EventID,
		EventDate:         date,
		Lines:             toLines(req.Lines),
		UnitCosts:         req.UnitCosts,
		SettlementAccount: req.SettlementAccount,
		ActorID:           req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostPurchase(r.Context(), PurchaseInput{
		StoreID:   req.StoreID,
		EventID:   req.EventID,
		EventDate: date,
		Lines:     toLines(req.Lines),
		ActorID:   req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handlePurchaseReturn(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostPurchaseReturn(r.Context(), PurchaseReturnInput{
		StoreID:   req.StoreID,
		EventID:   req.EventID,
		EventDate: date,
		Lines:     toLines(req.Lines),
		ActorID:   req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		StoreID:   req.StoreID,
		EventID:   req.EventID,
		EventDate: date,
		ProductID: req.ProductID,
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostTransfer(r.Context(), TransferInput{
		SrcStoreID: req.SrcStoreID,
		DstStoreID: req.DstStoreID,
		EventID:    req.EventID,
		EventDate:  date,
		Lines:      toLines(req.Lines),
		ActorID:    req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handleWriteOff(w http.ResponseWriter, r *http.Request) {
	var req writeOffRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseEventDate(w, req.EventDate)
	if !ok {
		return
	}
	res, err := h.service.PostWriteOff(r.Context(), WriteOffInput{
		StoreID:   req.StoreID,
		EventID:   req.EventID,
		EventDate: date,
		Lines:     toLines(req.Lines),
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	})
	h.respond(w, res, err)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if !h.decode(w, r, &req) {
		return
	}
	mutations := make([]fifo.LotMutation, 0, len(req.LotMutations))
	for _, m := range req.LotMutations {
		mutations = append(mutations, fifo.LotMutation{LotID: m.LotID, Qty: m.Qty, UnitCost: m.UnitCost})
	}
	reversal, err := h.service.VoidEvent(r.Context(), VoidEventInput{
		JournalEntryID: req.JournalEntryID,
		LotMutations:   mutations,
		Reason:         req.Reason,
		ActorID:        req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reversal_entry_id": reversal.ID,
		"reversal_number":   reversal.Number,
	})
}

func (h *Handler) respond(w http.ResponseWriter, res InventoryAccountingResult, err error) {
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(res))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine), errors.Is(err, ErrEventRequired),
		errors.Is(err, ErrSameStore), errors.Is(err, ErrCostRequired),
		errors.Is(err, fifo.ErrInvalidQuantity), errors.Is(err, fifo.ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, fifo.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, fifo.ErrLotStateDiverged):
		httpx.Problem(w, http.StatusConflict, "Lot State Diverged", err.Error())
	case errors.Is(err, ErrReceiveEventVoid):
		httpx.Problem(w, http.StatusConflict, "Void Not Allowed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Event", err.Error())
	case errors.Is(err, fifo.ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", "the event conflicted with another movement, retry")
	case errors.Is(err, fiscal.ErrPeriodClosed), errors.Is(err, fiscal.ErrPeriodLocked),
		errors.Is(err, fiscal.ErrNoPeriodForDate):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Period Not Open", err.Error())
	case errors.Is(err, ledger.ErrSourceAlreadyLinked), errors.Is(err, ledger.ErrAlreadyVoid),
		errors.Is(err, ledger.ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("event posting failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
