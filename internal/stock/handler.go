package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// MetricsPort counts committed movement lines. May be nil.
type MetricsPort interface {
	ObserveMovement(kind string)
}

// Handler wires the ledger HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  MetricsPort
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, metrics MetricsPort) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Post("/commit", h.handleCommit)
	})
	r.Get("/history/{productID}", h.handleHistory)
}

type commitLineRequest struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	MovementKind string `json:"movement_type" validate:"required,oneof=stock_in stock_out stock_return"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
}

type commitRequest struct {
	ReferenceNumber string              `json:"reference_number" validate:"max=64"`
	Entries         []commitLineRequest `json:"entries" validate:"required,min=1,dive"`
}

type commitResponse struct {
	Success         bool            `json:"success"`
	ReferenceNumber string          `json:"reference_number"`
	Entries         []MovementEntry `json:"entries"`
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	input := BatchInput{ReferenceNumber: req.ReferenceNumber}
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		input.ActorID = actor.ID
	}
	for _, line := range req.Entries {
		input.Lines = append(input.Lines, BatchLine{
			ProductID: line.ProductID,
			Kind:      MovementKind(line.MovementKind),
			Quantity:  line.Quantity,
		})
	}

	entries, err := h.service.CommitBatch(r.Context(), input)
	if err != nil {
		h.respondCommitError(w, err)
		return
	}
	reference := req.ReferenceNumber
	if len(entries) > 0 {
		reference = entries[0].ReferenceNumber
	}
	if h.metrics != nil {
		for _, entry := range entries {
			h.metrics.ObserveMovement(string(entry.Kind))
		}
	}
	h.logger.Info("stock batch committed",
		slog.String("reference_number", reference),
		slog.Int("lines", len(entries)))
	httpx.JSON(w, http.StatusCreated, commitResponse{Success: true, ReferenceNumber: reference, Entries: entries})
}

func (h *Handler) respondCommitError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemExtra(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficient.Error(), map[string]any{
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidMovementKind), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("commit batch failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type historyResponse struct {
	Data []MovementEntry `json:"data"`
	Meta shared.PageMeta `json:"meta"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id must be a positive integer")
		return
	}
	q := r.URL.Query()
	filter := HistoryFilter{Kind: MovementKind(q.Get("movement_type"))}
	if from := q.Get("start_date"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if to := q.Get("end_date"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
			return
		}
		// end of day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	entries, meta, err := h.service.History(r.Context(), productID, filter, page, perPage)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidMovementKind), errors.Is(err, shared.ErrValidation):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("stock history failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, historyResponse{Data: entries, Meta: meta})
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return "invalid field: " + fieldErrs[0].Namespace()
	}
	return "invalid request"
}
