package stock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryRepo struct {
	quantities map[int64]int64
	movements  []MovementEntry
	nextID     int64
}

type memoryTx struct {
	repo       *memoryRepo
	quantities map[int64]int64
	movements  []MovementEntry
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{quantities: make(map[int64]int64)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, quantities: make(map[int64]int64), nextID: r.nextID}
	for id, qty := range r.quantities {
		tx.quantities[id] = qty
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// commit
	r.quantities = tx.quantities
	r.movements = append(r.movements, tx.movements...)
	r.nextID = tx.nextID
	return nil
}

func (r *memoryRepo) ProductExists(ctx context.Context, productID int64) (bool, error) {
	_, ok := r.quantities[productID]
	return ok, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, productID int64, filter HistoryFilter, meta shared.PageMeta) ([]MovementEntry, int, error) {
	var matched []MovementEntry
	for i := len(r.movements) - 1; i >= 0; i-- {
		e := r.movements[i]
		if e.ProductID != productID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	start := meta.Offset()
	if start > total {
		start = total
	}
	end := start + meta.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (tx *memoryTx) GetProductQuantityForUpdate(ctx context.Context, productID int64) (int64, error) {
	qty, ok := tx.quantities[productID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return qty, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, entry MovementEntry) (int64, error) {
	tx.nextID++
	entry.ID = tx.nextID
	tx.movements = append(tx.movements, entry)
	return entry.ID, nil
}

func (tx *memoryTx) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	tx.quantities[productID] = quantity
	return nil
}

func TestCommitBatchChainsBalances(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[1] = 10
	svc := NewService(testLogger(), repo, nil)
	ctx := context.Background()

	entries, err := svc.CommitBatch(ctx, BatchInput{ReferenceNumber: "REF-100", Lines: []BatchLine{
		{ProductID: 1, Kind: MovementStockIn, Quantity: 5},
		{ProductID: 1, Kind: MovementStockIn, Quantity: 3},
	}})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.EqualValues(t, 10, entries[0].PreviousStock)
	require.EqualValues(t, 15, entries[0].CurrentStock)
	require.EqualValues(t, 15, entries[1].PreviousStock)
	require.EqualValues(t, 18, entries[1].CurrentStock)
	for _, e := range entries {
		require.Equal(t, "REF-100", e.ReferenceNumber)
		require.Equal(t, e.PreviousStock+e.Delta, e.CurrentStock)
	}
	require.EqualValues(t, 18, repo.quantities[1])
}

func TestCommitBatchRejectsNegativeBalance(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[1] = 3
	svc := NewService(testLogger(), repo, nil)

	_, err := svc.CommitBatch(context.Background(), BatchInput{Lines: []BatchLine{
		{ProductID: 1, Kind: MovementStockOut, Quantity: 5},
	}})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 3, insufficient.Available)
	require.EqualValues(t, 5, insufficient.Requested)
	// quantity unchanged
	require.EqualValues(t, 3, repo.quantities[1])
	require.Empty(t, repo.movements)
}

func TestCommitBatchIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[1] = 10
	repo.quantities[2] = 0
	svc := NewService(testLogger(), repo, nil)

	// second line fails, so the first must not be applied
	_, err := svc.CommitBatch(context.Background(), BatchInput{Lines: []BatchLine{
		{ProductID: 1, Kind: MovementStockIn, Quantity: 4},
		{ProductID: 2, Kind: MovementStockOut, Quantity: 1},
	}})
	require.Error(t, err)
	require.EqualValues(t, 10, repo.quantities[1])
	require.EqualValues(t, 0, repo.quantities[2])
	require.Empty(t, repo.movements)
}

func TestCommitBatchStockReturnRestocks(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[7] = 2
	svc := NewService(testLogger(), repo, nil)

	entries, err := svc.CommitBatch(context.Background(), BatchInput{Lines: []BatchLine{
		{ProductID: 7, Kind: MovementStockReturn, Quantity: 4},
	}})
	require.NoError(t, err)
	require.EqualValues(t, 6, entries[0].CurrentStock)
	require.EqualValues(t, 4, entries[0].Delta)
}

func TestCommitBatchValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, nil)
	ctx := context.Background()

	_, err := svc.CommitBatch(ctx, BatchInput{})
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = svc.CommitBatch(ctx, BatchInput{Lines: []BatchLine{{ProductID: 1, Kind: "stock_borrow", Quantity: 1}}})
	require.ErrorIs(t, err, ErrInvalidMovementKind)

	_, err = svc.CommitBatch(ctx, BatchInput{Lines: []BatchLine{{ProductID: 1, Kind: MovementStockIn, Quantity: 0}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CommitBatch(ctx, BatchInput{Lines: []BatchLine{{ProductID: 99, Kind: MovementStockIn, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCommitBatchGeneratesReference(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[1] = 0
	svc := NewService(testLogger(), repo, nil)

	entries, err := svc.CommitBatch(context.Background(), BatchInput{Lines: []BatchLine{
		{ProductID: 1, Kind: MovementStockIn, Quantity: 2},
	}})
	require.NoError(t, err)
	require.NotEmpty(t, entries[0].ReferenceNumber)
}

func TestHistoryFiltersAndPaginates(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[1] = 0
	svc := NewService(testLogger(), repo, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CommitBatch(ctx, BatchInput{Lines: []BatchLine{{ProductID: 1, Kind: MovementStockIn, Quantity: 1}}})
		require.NoError(t, err)
	}
	_, err := svc.CommitBatch(ctx, BatchInput{Lines: []BatchLine{{ProductID: 1, Kind: MovementStockOut, Quantity: 2}}})
	require.NoError(t, err)

	entries, meta, err := svc.History(ctx, 1, HistoryFilter{}, 1, 4)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, 6, meta.Total)
	require.Equal(t, 2, meta.LastPage)
	require.Equal(t, 1, meta.From)
	require.Equal(t, 4, meta.To)

	outs, _, err := svc.History(ctx, 1, HistoryFilter{Kind: MovementStockOut}, 1, 10)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.EqualValues(t, 3, outs[0].CurrentStock)

	_, _, err = svc.History(ctx, 42, HistoryFilter{}, 1, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)

	old := HistoryFilter{To: time.Now().Add(-time.Hour)}
	none, metaNone, err := svc.History(ctx, 1, old, 1, 10)
	require.NoError(t, err)
	require.Empty(t, none)
	require.Equal(t, 0, metaNone.Total)
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	return errors.New("audit store down")
}

func TestCommitBatchAuditFailureIsNonFatal(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[1] = 0
	svc := NewService(testLogger(), repo, failingAudit{})

	entries, err := svc.CommitBatch(context.Background(), BatchInput{
		ReferenceNumber: "REF-1",
		Lines:           []BatchLine{{ProductID: 1, Kind: MovementStockIn, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 4, repo.quantities[1])
}
