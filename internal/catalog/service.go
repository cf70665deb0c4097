package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atlas-wms/atlas-wms/internal/codegen"
	"github.com/atlas-wms/atlas-wms/internal/racks"
	"github.com/atlas-wms/atlas-wms/internal/shared"
	"github.com/atlas-wms/atlas-wms/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Product, error)
	GetByBarcode(ctx context.Context, barcode string) (Product, error)
	List(ctx context.Context, filter ListFilter, meta shared.PageMeta) ([]Product, int, error)
}

// LedgerPort lets product creation book initial stock through the ledger, so
// quantity stays ledger-owned even for the opening balance.
type LedgerPort interface {
	CommitBatch(ctx context.Context, input stock.BatchInput) ([]stock.MovementEntry, error)
}

// ImageEnqueuer schedules barcode image rendering in the background.
type ImageEnqueuer interface {
	EnqueueBarcodeRender(ctx context.Context, barcode string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrRackUnavailable rejects placements into a rack marked unavailable.
var ErrRackUnavailable = errors.New("catalog: rack is unavailable")

// Service coordinates product creation and editing: identifier generation,
// rack capacity enforcement and variant uniqueness all happen inside one
// transaction.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	ledger LedgerPort
	images ImageEnqueuer
	audit  AuditPort
}

// NewService builds Service. images and audit may be nil.
func NewService(logger *slog.Logger, repo RepositoryPort, ledger LedgerPort, images ImageEnqueuer, audit AuditPort) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, ledger: ledger, images: images, audit: audit}
}

// Create registers a product with its variant. Omitted SKU/barcode values are
// generated; supplied ones are re-validated for uniqueness inside the insert
// transaction. A rack placement is checked against capacity under a rack row
// lock so concurrent placements cannot jointly overflow the rack.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	if err := validateCommon(input.Name, input.Price); err != nil {
		return Product{}, err
	}
	if input.InitialQuantity < 0 {
		return Product{}, fmt.Errorf("catalog: initial quantity must not be negative: %w", shared.ErrValidation)
	}
	status := input.Status
	if status == "" {
		status = StatusAvailable
	}
	if status != StatusAvailable && status != StatusUnavailable {
		return Product{}, fmt.Errorf("catalog: unknown status %q: %w", status, shared.ErrValidation)
	}

	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.RackID != nil {
			if err := checkRackCapacity(ctx, tx, *input.RackID, 0); err != nil {
				return err
			}
		}

		gen := codegen.New(tx)
		sku := codegen.NormalizeSKU(input.SKUCode)
		if sku == "" {
			generated, err := gen.GenerateSKU(ctx, codegen.SKUParts{
				Category:    input.Category,
				Subcategory: input.Subcategory,
				Brand:       input.Brand,
				Color:       input.Color,
			})
			if err != nil {
				return err
			}
			sku = generated
		} else {
			taken, err := tx.SKUExists(ctx, sku)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("catalog: sku %s: %w", sku, shared.ErrDuplicateIdentifier)
			}
		}

		barcode := strings.TrimSpace(input.BarcodeNumber)
		if barcode == "" {
			generated, err := gen.GenerateBarcode(ctx, sku)
			if err != nil {
				return err
			}
			barcode = generated
		} else {
			taken, err := tx.BarcodeExists(ctx, barcode)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("catalog: barcode %s: %w", barcode, shared.ErrDuplicateIdentifier)
			}
		}

		inserted, err := tx.InsertProduct(ctx, Product{
			Name:        strings.TrimSpace(input.Name),
			Description: input.Description,
			Price:       input.Price,
			Quantity:    0,
			ZoneID:      input.ZoneID,
			RackID:      input.RackID,
			Status:      status,
		})
		if err != nil {
			return err
		}
		variant := Variant{SKUCode: sku, BarcodeNumber: barcode}
		if err := tx.InsertVariant(ctx, inserted.ID, variant); err != nil {
			return err
		}
		inserted.Variant = variant
		product = inserted
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	if input.InitialQuantity > 0 && s.ledger != nil {
		entries, err := s.ledger.CommitBatch(ctx, stock.BatchInput{
			ReferenceNumber: fmt.Sprintf("INIT-%s", product.Variant.SKUCode),
			ActorID:         input.ActorID,
			Lines: []stock.BatchLine{
				{ProductID: product.ID, Kind: stock.MovementStockIn, Quantity: input.InitialQuantity},
			},
		})
		if err != nil {
			return Product{}, fmt.Errorf("catalog: book initial stock: %w", err)
		}
		product.Quantity = entries[len(entries)-1].CurrentStock
	}

	if s.images != nil {
		if err := s.images.EnqueueBarcodeRender(ctx, product.Variant.BarcodeNumber); err != nil {
			s.logger.Warn("enqueue barcode render failed", slog.String("barcode", product.Variant.BarcodeNumber), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, "catalog:create", product.Variant.SKUCode, map[string]any{"product_id": product.ID, "rack_id": input.RackID}, input.ActorID)
	return product, nil
}

// Update edits a product. Placement moves re-run the capacity check excluding
// the product itself; replaced identifiers are re-validated and a changed
// barcode re-enqueues image rendering.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("catalog: invalid product id: %w", shared.ErrValidation)
	}
	if err := validateCommon(input.Name, input.Price); err != nil {
		return Product{}, err
	}
	if input.Status != "" && input.Status != StatusAvailable && input.Status != StatusUnavailable {
		return Product{}, fmt.Errorf("catalog: unknown status %q: %w", input.Status, shared.ErrValidation)
	}

	var product Product
	barcodeChanged := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if input.RackID != nil {
			if err := checkRackCapacity(ctx, tx, *input.RackID, id); err != nil {
				return err
			}
		}

		sku := codegen.NormalizeSKU(input.SKUCode)
		if sku == "" {
			sku = current.Variant.SKUCode
		}
		if sku != current.Variant.SKUCode {
			taken, err := tx.SKUTakenByOther(ctx, sku, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("catalog: sku %s: %w", sku, shared.ErrDuplicateIdentifier)
			}
		}

		barcode := strings.TrimSpace(input.BarcodeNumber)
		if barcode == "" {
			barcode = current.Variant.BarcodeNumber
		}
		if barcode != current.Variant.BarcodeNumber {
			taken, err := tx.BarcodeTakenByOther(ctx, barcode, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("catalog: barcode %s: %w", barcode, shared.ErrDuplicateIdentifier)
			}
			barcodeChanged = true
		}

		status := input.Status
		if status == "" {
			status = current.Status
		}
		updated := current
		updated.Name = strings.TrimSpace(input.Name)
		updated.Description = input.Description
		updated.Price = input.Price
		updated.ZoneID = input.ZoneID
		updated.RackID = input.RackID
		updated.Status = status
		updated.Variant = Variant{SKUCode: sku, BarcodeNumber: barcode}

		if err := tx.UpdateProduct(ctx, id, updated); err != nil {
			return err
		}
		if err := tx.UpdateVariant(ctx, id, updated.Variant); err != nil {
			return err
		}
		product = updated
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	if barcodeChanged && s.images != nil {
		if err := s.images.EnqueueBarcodeRender(ctx, product.Variant.BarcodeNumber); err != nil {
			s.logger.Warn("enqueue barcode render failed", slog.String("barcode", product.Variant.BarcodeNumber), slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, "catalog:update", product.Variant.SKUCode, map[string]any{"product_id": id, "rack_id": input.RackID}, input.ActorID)
	return product, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("catalog: invalid product id: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// ResolveBarcode resolves a scanned barcode to a product.
func (s *Service) ResolveBarcode(ctx context.Context, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Product{}, fmt.Errorf("catalog: barcode required: %w", shared.ErrValidation)
	}
	return s.repo.GetByBarcode(ctx, barcode)
}

// List returns one page of products.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Product, shared.PageMeta, error) {
	meta := shared.NewPageMeta(page, perPage, 0)
	items, total, err := s.repo.List(ctx, filter, meta)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return items, shared.NewPageMeta(meta.CurrentPage, meta.PerPage, total), nil
}

// recordAudit writes an audit entry, best effort.
func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any, actorID int64) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func validateCommon(name string, price float64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("catalog: name required: %w", shared.ErrValidation)
	}
	if price < 0 {
		return fmt.Errorf("catalog: price must not be negative: %w", shared.ErrValidation)
	}
	return nil
}

// checkRackCapacity enforces the occupancy invariant under a rack row lock.
// Each product occupies one slot regardless of its quantity.
func checkRackCapacity(ctx context.Context, tx TxRepository, rackID, excludeProductID int64) error {
	capacity, status, err := tx.GetRackCapacityForUpdate(ctx, rackID)
	if err != nil {
		return err
	}
	if status != racks.StatusAvailable {
		return ErrRackUnavailable
	}
	occupied, err := tx.CountRackOccupancy(ctx, rackID, excludeProductID)
	if err != nil {
		return err
	}
	if capErr := racks.Evaluate(rackID, capacity, occupied, 1); capErr != nil {
		return capErr
	}
	return nil
}
