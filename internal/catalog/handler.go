package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-wms/atlas-wms/internal/codegen"
	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/racks"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Handler wires product HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{productID}", h.handleGet)
	r.Put("/{productID}", h.handleUpdate)
	r.Get("/barcode/{barcode}", h.handleResolveBarcode)
}

type productRequest struct {
	Name            string  `json:"name" validate:"required,max=255"`
	Description     string  `json:"description"`
	Price           float64 `json:"price" validate:"gte=0"`
	InitialQuantity int64   `json:"initial_quantity" validate:"gte=0"`
	ZoneID          *int64  `json:"zone_id" validate:"omitempty,gt=0"`
	RackID          *int64  `json:"rack_id" validate:"omitempty,gt=0"`
	Status          string  `json:"status" validate:"omitempty,oneof=Available Unavailable"`
	SKUCode         string  `json:"sku_code" validate:"omitempty,max=64"`
	BarcodeNumber   string  `json:"barcode_number" validate:"omitempty,max=32"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory"`
	Brand           string  `json:"brand"`
	Color           string  `json:"color"`
}

type listResponse struct {
	Data []Product       `json:"data"`
	Meta shared.PageMeta `json:"meta"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	filter := ListFilter{Search: q.Get("search"), Status: q.Get("status")}
	if raw := q.Get("rack_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rack_id must be a positive integer")
			return
		}
		filter.RackID = &id
	}

	items, meta, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Meta: meta})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	product, err := h.service.Create(r.Context(), CreateInput{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		InitialQuantity: req.InitialQuantity,
		ZoneID:          req.ZoneID,
		RackID:          req.RackID,
		Status:          req.Status,
		SKUCode:         req.SKUCode,
		BarcodeNumber:   req.BarcodeNumber,
		Category:        req.Category,
		Subcategory:     req.Subcategory,
		Brand:           req.Brand,
		Color:           req.Color,
		ActorID:         actor.ID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("product created",
		slog.Int64("product_id", product.ID),
		slog.String("sku", product.Variant.SKUCode))
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	product, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		ZoneID:        req.ZoneID,
		RackID:        req.RackID,
		Status:        req.Status,
		SKUCode:       req.SKUCode,
		BarcodeNumber: req.BarcodeNumber,
		ActorID:       actor.ID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleResolveBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.ResolveBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var capErr *racks.CapacityError
	switch {
	case errors.As(err, &capErr):
		httpx.ProblemExtra(w, http.StatusConflict, "Capacity Exceeded", capErr.Error(), map[string]any{
			"rack_id":   capErr.RackID,
			"available": capErr.Available,
		})
	case errors.Is(err, ErrRackUnavailable):
		httpx.Problem(w, http.StatusConflict, "Rack Unavailable", err.Error())
	case errors.Is(err, shared.ErrDuplicateIdentifier):
		httpx.Problem(w, http.StatusConflict, "Duplicate Identifier", err.Error())
	case errors.Is(err, codegen.ErrGenerationExhausted):
		// exhausting the retry bound points at a degenerate naming collision
		// pattern, so it needs operator attention rather than a client retry
		h.logger.Error("identifier generation exhausted", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Generation Exhausted", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("product operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseProductID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("product id must be a positive integer")
	}
	return id, nil
}
