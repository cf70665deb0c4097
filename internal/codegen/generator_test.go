package codegen

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	skus     map[string]bool
	barcodes map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{skus: make(map[string]bool), barcodes: make(map[string]bool)}
}

func (s *memoryStore) SKUExists(ctx context.Context, sku string) (bool, error) {
	return s.skus[sku], nil
}

func (s *memoryStore) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	return s.barcodes[barcode], nil
}

func (s *memoryStore) CountSKUsWithPrefix(ctx context.Context, prefix string) (int, error) {
	count := 0
	for sku := range s.skus {
		if strings.HasPrefix(sku, prefix) {
			count++
		}
	}
	return count, nil
}

func testGenerator(store Store) *Generator {
	return &Generator{
		store: store,
		now:   func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) },
		rand:  rand.New(rand.NewSource(1)),
	}
}

func TestGenerateSKUComposition(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)

	sku, err := gen.GenerateSKU(context.Background(), SKUParts{
		Category: "Shoes", Subcategory: "Running", Brand: "Nimbus", Color: "Red",
	})
	require.NoError(t, err)
	require.Equal(t, "SHORUNIMRE250314001", sku)
}

func TestGenerateSKUPlaceholders(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)

	sku, err := gen.GenerateSKU(context.Background(), SKUParts{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sku, "GENXXBRDXX"), sku)
}

func TestGenerateSKUFoldsDiacritics(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)

	sku, err := gen.GenerateSKU(context.Background(), SKUParts{Category: "Électronique"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sku, "ELE"), sku)
}

func TestGenerateSKUSequenceScopedToPrefix(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)
	ctx := context.Background()
	parts := SKUParts{Category: "Shoes", Subcategory: "Running", Brand: "Nimbus", Color: "Red"}

	first, err := gen.GenerateSKU(ctx, parts)
	require.NoError(t, err)
	store.skus[first] = true

	second, err := gen.GenerateSKU(ctx, parts)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.True(t, strings.HasSuffix(first, "001"), first)
	require.True(t, strings.HasSuffix(second, "002"), second)

	// different brand, independent sequence
	other, err := gen.GenerateSKU(ctx, SKUParts{Category: "Shoes", Subcategory: "Running", Brand: "Zephyr"})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(other, "001"), other)
}

func TestGenerateSKUCollisionSuffix(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)
	ctx := context.Background()
	parts := SKUParts{Category: "Shoes", Subcategory: "Running", Brand: "Nimbus", Color: "Red"}

	first, err := gen.GenerateSKU(ctx, parts)
	require.NoError(t, err)
	// a concurrent writer took the sequence number this prefix count implies
	taken := strings.TrimSuffix(first, "001") + "002"
	store.skus[taken] = true

	second, err := gen.GenerateSKU(ctx, parts)
	require.NoError(t, err)
	require.Equal(t, taken+"-1", second)
}

// saturatedStore reports every candidate as taken.
type saturatedStore struct{ *memoryStore }

func (saturatedStore) SKUExists(ctx context.Context, sku string) (bool, error) {
	return true, nil
}

func (saturatedStore) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	return true, nil
}

func TestGenerationExhausted(t *testing.T) {
	gen := testGenerator(saturatedStore{newMemoryStore()})
	ctx := context.Background()

	_, err := gen.GenerateSKU(ctx, SKUParts{Category: "Shoes", Subcategory: "Running", Brand: "Nimbus"})
	require.ErrorIs(t, err, ErrGenerationExhausted)

	_, err = gen.GenerateBarcode(ctx, "SKU1")
	require.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestGenerateBarcode(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)

	code, err := gen.GenerateBarcode(context.Background(), "SHO-RU-NIM")
	require.NoError(t, err)
	require.Len(t, code, barcodeLength)
	for _, r := range code {
		require.True(t, (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z'), code)
	}
}

func TestGenerateBarcodeCollisionCounter(t *testing.T) {
	store := newMemoryStore()
	gen := testGenerator(store)
	ctx := context.Background()

	first, err := gen.GenerateBarcode(ctx, "SKU1")
	require.NoError(t, err)
	store.barcodes[first] = true

	// same clock and reseeded rand reproduce the base value
	gen.rand = rand.New(rand.NewSource(1))
	second, err := gen.GenerateBarcode(ctx, "SKU1")
	require.NoError(t, err)
	require.Equal(t, first+"1", second)
}

func TestFragment(t *testing.T) {
	require.Equal(t, "SHO", fragment("Shoes", 3, "GEN"))
	require.Equal(t, "XX", fragment("  123 ", 2, "XX"))
	require.Equal(t, "AB", fragment("a-b-c", 2, "XX"))
	require.Equal(t, "GEN", fragment("", 3, "GEN"))
}

func TestNormalizeSKU(t *testing.T) {
	require.Equal(t, "ABC-01", NormalizeSKU("  abc-01 "))
}

