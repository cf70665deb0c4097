package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, productID int64, filter HistoryFilter, meta shared.PageMeta) ([]MovementEntry, int, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the sole writer of product quantities. Every change flows
// through a ledger entry with before/after balances.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, audit: audit}
}

const (
	defaultHistoryPerPage = 20
	maxHistoryPerPage     = 100
)

// CommitBatch applies every line of the batch in order inside one
// transaction. Either all lines commit or none do. Lines referencing the same
// product produce sequential entries whose balances chain.
func (s *Service) CommitBatch(ctx context.Context, input BatchInput) ([]MovementEntry, error) {
	if len(input.Lines) == 0 {
		return nil, ErrEmptyBatch
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 {
			return nil, fmt.Errorf("stock: product required: %w", shared.ErrValidation)
		}
		if !line.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMovementKind, line.Kind)
		}
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	now := time.Now().UTC()
	reference := input.ReferenceNumber
	if reference == "" {
		reference = fmt.Sprintf("REF-%d", now.UnixNano())
	}

	entries := make([]MovementEntry, 0, len(input.Lines))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			previous, err := tx.GetProductQuantityForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			delta := line.Kind.Delta(line.Quantity)
			current := previous + delta
			if current < 0 {
				return &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: previous}
			}
			entry := MovementEntry{
				ProductID:       line.ProductID,
				Kind:            line.Kind,
				Quantity:        line.Quantity,
				Delta:           delta,
				PreviousStock:   previous,
				CurrentStock:    current,
				ReferenceNumber: reference,
				ActorID:         input.ActorID,
				CreatedAt:       now,
			}
			id, err := tx.InsertMovement(ctx, entry)
			if err != nil {
				return err
			}
			entry.ID = id
			if err := tx.UpdateProductQuantity(ctx, line.ProductID, current); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		// best effort, the committed batch stands either way
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "stock:commit",
			Entity:   "stock_batch",
			EntityID: reference,
			Meta: map[string]any{
				"lines":            len(entries),
				"reference_number": reference,
			},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("action", "stock:commit"), slog.Any("error", err))
		}
	}
	return entries, nil
}

// History returns ledger entries for a product, newest first, with page
// metadata for UI consumption.
func (s *Service) History(ctx context.Context, productID int64, filter HistoryFilter, page, perPage int) ([]MovementEntry, shared.PageMeta, error) {
	if productID <= 0 {
		return nil, shared.PageMeta{}, fmt.Errorf("stock: product required: %w", shared.ErrValidation)
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.PageMeta{}, fmt.Errorf("%w: %q", ErrInvalidMovementKind, filter.Kind)
	}
	exists, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	if !exists {
		return nil, shared.PageMeta{}, fmt.Errorf("stock: product %d: %w", productID, shared.ErrNotFound)
	}
	if perPage <= 0 {
		perPage = defaultHistoryPerPage
	}
	if perPage > maxHistoryPerPage {
		perPage = maxHistoryPerPage
	}
	meta := shared.NewPageMeta(page, perPage, 0)
	entries, total, err := s.repo.ListMovements(ctx, productID, filter, meta)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return entries, shared.NewPageMeta(meta.CurrentPage, meta.PerPage, total), nil
}
