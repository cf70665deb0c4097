package scan

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/shared"
	"github.com/atlas-wms/atlas-wms/internal/stock"
)

// MetricsPort counts accepted scans. May be nil.
type MetricsPort interface {
	ObserveScan()
}

// Handler wires scan-session HTTP endpoints. The session identity comes from
// the authenticated actor, one aggregate per operator session.
type Handler struct {
	logger     *slog.Logger
	aggregator *Aggregator
	metrics    MetricsPort
	validate   *validator.Validate
}

// NewHandler constructs the scan handler.
func NewHandler(logger *slog.Logger, aggregator *Aggregator, metrics MetricsPort) *Handler {
	return &Handler{logger: logger, aggregator: aggregator, metrics: metrics, validate: validator.New()}
}

// MountRoutes registers scan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleScan)
	r.Get("/items", h.handleItems)
	r.Put("/items/{barcode}", h.handleSetQuantity)
	r.Delete("/items/{barcode}", h.handleRemove)
	r.Delete("/items", h.handleClear)
	r.Post("/submit", h.handleSubmit)
}

type scanRequest struct {
	Barcode string `json:"barcode" validate:"required,max=32"`
}

type quantityRequest struct {
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

type submitRequest struct {
	ReferenceNumber string `json:"reference_number" validate:"omitempty,max=64"`
	Kind            string `json:"movement_type" validate:"required,oneof=stock_in stock_out stock_return"`
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req scanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.aggregator.OnScan(r.Context(), actor.Session, req.Barcode)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveScan()
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	items, err := h.aggregator.Items(r.Context(), actor.Session)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.aggregator.SetQuantity(r.Context(), actor.Session, chi.URLParam(r, "barcode"), req.Quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.aggregator.Remove(r.Context(), actor.Session, chi.URLParam(r, "barcode")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.aggregator.Clear(r.Context(), actor.Session); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.aggregator.Submit(r.Context(), actor.Session, req.ReferenceNumber, stock.MovementKind(req.Kind), actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("scan session submitted",
		slog.String("session", actor.Session),
		slog.Int("lines", len(entries)))
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": entries})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var unknown *UnknownBarcodeError
	var insufficient *stock.InsufficientStockError
	switch {
	case errors.As(err, &unknown):
		httpx.ProblemExtra(w, http.StatusNotFound, "Unknown Barcode", unknown.Error(), map[string]any{
			"barcode": unknown.Barcode,
		})
	case errors.As(err, &insufficient):
		httpx.ProblemExtra(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error(), map[string]any{
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, ErrEmptySession):
		httpx.Problem(w, http.StatusBadRequest, "Empty Session", err.Error())
	case errors.Is(err, stock.ErrInvalidMovementKind), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("scan operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
