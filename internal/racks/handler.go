package racks

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Handler wires rack HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the racks handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers rack routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{rackID}", h.handleGet)
	r.Put("/{rackID}", h.handleUpdate)
	r.Get("/{rackID}/occupancy", h.handleOccupancy)
	r.Get("/{rackID}/capacity", h.handleCheckCapacity)
}

type rackRequest struct {
	RackNumber string `json:"rack_number" validate:"required,max=32"`
	Capacity   int    `json:"capacity" validate:"gte=0"`
	Status     string `json:"status" validate:"omitempty,oneof=Available Unavailable"`
}

type listResponse struct {
	Data []Rack          `json:"data"`
	Meta shared.PageMeta `json:"meta"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	items, meta, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list racks failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Meta: meta})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req rackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rack, err := h.service.Create(r.Context(), Rack{RackNumber: req.RackNumber, Capacity: req.Capacity, Status: req.Status})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("rack created", slog.String("rack_number", rack.RackNumber), slog.Int("capacity", rack.Capacity))
	httpx.JSON(w, http.StatusCreated, rack)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseRackID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rack, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rack)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseRackID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req rackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rack, err := h.service.Update(r.Context(), id, Rack{RackNumber: req.RackNumber, Capacity: req.Capacity, Status: req.Status})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rack)
}

func (h *Handler) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	id, err := parseRackID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	occ, err := h.service.GetOccupancy(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, occ)
}

type capacityCheckResponse struct {
	RackID    int64 `json:"rack_id"`
	Requested int   `json:"requested"`
	OK        bool  `json:"ok"`
}

// handleCheckCapacity is the advisory pre-check a placement UI calls before
// submitting; the binding check still happens inside the placement
// transaction.
func (h *Handler) handleCheckCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := parseRackID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	q := r.URL.Query()
	units := 1
	if raw := q.Get("units"); raw != "" {
		units, err = strconv.Atoi(raw)
		if err != nil || units <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "units must be a positive integer")
			return
		}
	}
	var exclude int64
	if raw := q.Get("exclude_product_id"); raw != "" {
		exclude, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || exclude <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "exclude_product_id must be a positive integer")
			return
		}
	}
	if err := h.service.CheckCapacity(r.Context(), id, units, exclude); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, capacityCheckResponse{RackID: id, Requested: units, OK: true})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var capErr *CapacityError
	switch {
	case errors.As(err, &capErr):
		httpx.ProblemExtra(w, http.StatusConflict, "Capacity Exceeded", capErr.Error(), map[string]any{
			"available": capErr.Available,
		})
	case errors.Is(err, ErrCapacityBelowOccupancy):
		httpx.Problem(w, http.StatusConflict, "Capacity Below Occupancy", err.Error())
	case errors.Is(err, ErrDuplicateRackNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidCapacity), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("rack operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseRackID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "rackID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("rack id must be a positive integer")
	}
	return id, nil
}
