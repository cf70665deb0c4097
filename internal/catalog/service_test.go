package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-wms/atlas-wms/internal/racks"
	"github.com/atlas-wms/atlas-wms/internal/shared"
	"github.com/atlas-wms/atlas-wms/internal/stock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryRack struct {
	capacity int
	status   string
}

type memoryRepo struct {
	products map[int64]Product
	racks    map[int64]memoryRack
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product), racks: make(map[int64]memoryRack)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetByBarcode(ctx context.Context, barcode string) (Product, error) {
	for _, p := range r.products {
		if p.Variant.BarcodeNumber == barcode {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter, meta shared.PageMeta) ([]Product, int, error) {
	var items []Product
	for _, p := range r.products {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		items = append(items, p)
	}
	return items, len(items), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) InsertProduct(ctx context.Context, p Product) (Product, error) {
	tx.repo.nextID++
	p.ID = tx.repo.nextID
	tx.repo.products[p.ID] = p
	return p, nil
}

func (tx *memoryTx) InsertVariant(ctx context.Context, productID int64, v Variant) error {
	p := tx.repo.products[productID]
	p.Variant = v
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) UpdateProduct(ctx context.Context, id int64, p Product) error {
	if _, ok := tx.repo.products[id]; !ok {
		return shared.ErrNotFound
	}
	p.ID = id
	p.Variant = tx.repo.products[id].Variant
	tx.repo.products[id] = p
	return nil
}

func (tx *memoryTx) UpdateVariant(ctx context.Context, productID int64, v Variant) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Variant = v
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) GetRackCapacityForUpdate(ctx context.Context, rackID int64) (int, string, error) {
	rack, ok := tx.repo.racks[rackID]
	if !ok {
		return 0, "", shared.ErrNotFound
	}
	return rack.capacity, rack.status, nil
}

func (tx *memoryTx) CountRackOccupancy(ctx context.Context, rackID, excludeProductID int64) (int, error) {
	count := 0
	for id, p := range tx.repo.products {
		if p.RackID != nil && *p.RackID == rackID && id != excludeProductID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) SKUExists(ctx context.Context, sku string) (bool, error) {
	for _, p := range tx.repo.products {
		if p.Variant.SKUCode == sku {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	for _, p := range tx.repo.products {
		if p.Variant.BarcodeNumber == barcode {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) CountSKUsWithPrefix(ctx context.Context, prefix string) (int, error) {
	count := 0
	for _, p := range tx.repo.products {
		if strings.HasPrefix(p.Variant.SKUCode, prefix) {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) SKUTakenByOther(ctx context.Context, sku string, productID int64) (bool, error) {
	for id, p := range tx.repo.products {
		if id != productID && p.Variant.SKUCode == sku {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) BarcodeTakenByOther(ctx context.Context, barcode string, productID int64) (bool, error) {
	for id, p := range tx.repo.products {
		if id != productID && p.Variant.BarcodeNumber == barcode {
			return true, nil
		}
	}
	return false, nil
}

type fakeLedger struct {
	batches []stock.BatchInput
}

func (l *fakeLedger) CommitBatch(ctx context.Context, input stock.BatchInput) ([]stock.MovementEntry, error) {
	l.batches = append(l.batches, input)
	entries := make([]stock.MovementEntry, 0, len(input.Lines))
	balance := int64(0)
	for _, line := range input.Lines {
		balance += line.Kind.Delta(line.Quantity)
		entries = append(entries, stock.MovementEntry{ProductID: line.ProductID, Kind: line.Kind, Quantity: line.Quantity, CurrentStock: balance})
	}
	return entries, nil
}

type fakeEnqueuer struct {
	barcodes []string
}

func (e *fakeEnqueuer) EnqueueBarcodeRender(ctx context.Context, barcode string) error {
	e.barcodes = append(e.barcodes, barcode)
	return nil
}

func rackID(id int64) *int64 { return &id }

func TestCreateGeneratesIdentifiers(t *testing.T) {
	repo := newMemoryRepo()
	ledger := &fakeLedger{}
	images := &fakeEnqueuer{}
	svc := NewService(testLogger(), repo, ledger, images, nil)

	product, err := svc.Create(context.Background(), CreateInput{
		Name:            "Trail Runner",
		Price:           129.90,
		InitialQuantity: 10,
		Category:        "Shoes",
		Subcategory:     "Running",
		Brand:           "Nimbus",
		Color:           "Red",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(product.Variant.SKUCode, "SHORUNIMRE"), product.Variant.SKUCode)
	require.Len(t, product.Variant.BarcodeNumber, 13)
	require.Equal(t, StatusAvailable, product.Status)

	// opening balance goes through the ledger, not a direct quantity write
	require.Len(t, ledger.batches, 1)
	require.Equal(t, "INIT-"+product.Variant.SKUCode, ledger.batches[0].ReferenceNumber)
	require.Equal(t, int64(10), product.Quantity)

	require.Equal(t, []string{product.Variant.BarcodeNumber}, images.barcodes)
}

func TestCreateZeroInitialQuantitySkipsLedger(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewService(testLogger(), newMemoryRepo(), ledger, nil, nil)

	product, err := svc.Create(context.Background(), CreateInput{Name: "Box", Price: 1})
	require.NoError(t, err)
	require.Empty(t, ledger.batches)
	require.Zero(t, product.Quantity)
}

func TestCreateDuplicateSuppliedSKU(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "First", Price: 1, SKUCode: "ABC123"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Name: "Second", Price: 1, SKUCode: "abc123"})
	require.ErrorIs(t, err, shared.ErrDuplicateIdentifier)
	require.Len(t, repo.products, 1)
}

func TestCreateRackCapacity(t *testing.T) {
	repo := newMemoryRepo()
	repo.racks[7] = memoryRack{capacity: 1, status: racks.StatusAvailable}
	svc := NewService(testLogger(), repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "First", Price: 1, RackID: rackID(7)})
	require.NoError(t, err)

	// one product per slot, regardless of quantity
	_, err = svc.Create(ctx, CreateInput{Name: "Second", Price: 1, RackID: rackID(7)})
	var capErr *racks.CapacityError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, 0, capErr.Available)
	require.Len(t, repo.products, 1)
}

func TestCreateRackUnavailable(t *testing.T) {
	repo := newMemoryRepo()
	repo.racks[3] = memoryRack{capacity: 10, status: racks.StatusUnavailable}
	svc := NewService(testLogger(), repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{Name: "Crate", Price: 1, RackID: rackID(3)})
	require.ErrorIs(t, err, ErrRackUnavailable)
}

func TestUpdateSameRackExcludesSelf(t *testing.T) {
	repo := newMemoryRepo()
	repo.racks[7] = memoryRack{capacity: 1, status: racks.StatusAvailable}
	svc := NewService(testLogger(), repo, nil, nil, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateInput{Name: "Only", Price: 1, RackID: rackID(7)})
	require.NoError(t, err)

	// editing the product already occupying the only slot must not overflow
	updated, err := svc.Update(ctx, product.ID, UpdateInput{Name: "Only renamed", Price: 2, RackID: rackID(7)})
	require.NoError(t, err)
	require.Equal(t, "Only renamed", updated.Name)
}

func TestUpdateBarcodeChangeEnqueuesRender(t *testing.T) {
	repo := newMemoryRepo()
	images := &fakeEnqueuer{}
	svc := NewService(testLogger(), repo, nil, images, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, CreateInput{Name: "Box", Price: 1, BarcodeNumber: "1234567890123"})
	require.NoError(t, err)
	require.Equal(t, []string{"1234567890123"}, images.barcodes)

	_, err = svc.Update(ctx, product.ID, UpdateInput{Name: "Box", Price: 1, BarcodeNumber: "9999999990123"})
	require.NoError(t, err)
	require.Equal(t, []string{"1234567890123", "9999999990123"}, images.barcodes)

	// unchanged barcode does not re-render
	_, err = svc.Update(ctx, product.ID, UpdateInput{Name: "Box", Price: 3})
	require.NoError(t, err)
	require.Len(t, images.barcodes, 2)
}

func TestUpdateDuplicateBarcode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "First", Price: 1, BarcodeNumber: "1111111111111"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{Name: "Second", Price: 1, BarcodeNumber: "2222222222222"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, second.ID, UpdateInput{Name: "Second", Price: 1, BarcodeNumber: "1111111111111"})
	require.ErrorIs(t, err, shared.ErrDuplicateIdentifier)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(testLogger(), newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Price: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Name: "X", Price: -1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Name: "X", Price: 1, InitialQuantity: -5})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Name: "X", Price: 1, Status: "Broken"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveBarcode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Box", Price: 1, BarcodeNumber: "1234567890123"})
	require.NoError(t, err)

	found, err := svc.ResolveBarcode(ctx, " 1234567890123 ")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.ResolveBarcode(ctx, "0000000000000")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	return errors.New("audit store down")
}

func TestCreateAuditFailureIsNonFatal(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, nil, nil, failingAudit{})

	product, err := svc.Create(context.Background(), CreateInput{Name: "Crate", Price: 5, Category: "Storage"})
	require.NoError(t, err)
	require.NotZero(t, product.ID)
	require.NotEmpty(t, product.Variant.SKUCode)
}
