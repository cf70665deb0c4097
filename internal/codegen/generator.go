// Package codegen produces unique SKU codes and barcode numbers for product
// variants. Uniqueness is re-checked through the Store at commit time; the
// database unique indexes remain the last line of defence.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Store answers uniqueness questions against the catalog. Implementations
// bound to an open transaction make the check-and-insert atomic.
type Store interface {
	SKUExists(ctx context.Context, sku string) (bool, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	CountSKUsWithPrefix(ctx context.Context, prefix string) (int, error)
}

// maxAttempts bounds the collision-suffix retry loop. Exhausting it means a
// degenerate naming collision pattern worth operator investigation.
const maxAttempts = 1000

// ErrGenerationExhausted indicates no free identifier was found within the
// retry bound.
var ErrGenerationExhausted = errors.New("codegen: could not find a free identifier")

// SKUParts are the reference-data names a SKU is composed from. Blank parts
// fall back to fixed placeholder fragments.
type SKUParts struct {
	Category    string
	Subcategory string
	Brand       string
	Color       string
}

// Generator composes identifiers.
type Generator struct {
	store Store
	now   func() time.Time
	rand  *rand.Rand
}

// New constructs a Generator backed by the given store.
func New(store Store) *Generator {
	return &Generator{
		store: store,
		now:   time.Now,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateSKU composes a human-readable SKU: category/subcategory/brand/color
// fragments, a YYMMDD stamp and a 3-digit sequence scoped to the
// category+subcategory+brand prefix. Collisions append -1, -2, ...
func (g *Generator) GenerateSKU(ctx context.Context, parts SKUParts) (string, error) {
	prefix := fragment(parts.Category, 3, "GEN") +
		fragment(parts.Subcategory, 2, "XX") +
		fragment(parts.Brand, 3, "BRD")
	color := fragment(parts.Color, 2, "XX")

	count, err := g.store.CountSKUsWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s%s%s%03d", prefix, color, g.now().UTC().Format("060102"), count+1)

	candidate := base
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		exists, err := g.store.SKUExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return "", fmt.Errorf("%w: sku prefix %s", ErrGenerationExhausted, prefix)
}

// GenerateBarcode derives a machine-readable number from the SKU: the SKU
// stripped of non-alphanumerics, the last 6 digits of the Unix timestamp and
// a 3-digit random suffix, normalised to 13 characters. Collisions append an
// incrementing counter.
func (g *Generator) GenerateBarcode(ctx context.Context, sku string) (string, error) {
	compact := stripNonAlphanumeric(sku)
	stamp := g.now().UTC().Unix() % 1_000_000
	base := normaliseBarcode(fmt.Sprintf("%s%06d%03d", compact, stamp, g.rand.Intn(1000)))

	candidate := base
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		exists, err := g.store.BarcodeExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, attempt)
	}
	return "", fmt.Errorf("%w: barcode for sku %s", ErrGenerationExhausted, sku)
}

// NormalizeSKU canonicalises an operator-supplied SKU.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

const barcodeLength = 13

func normaliseBarcode(raw string) string {
	if len(raw) > barcodeLength {
		return raw[len(raw)-barcodeLength:]
	}
	if len(raw) < barcodeLength {
		return raw + strings.Repeat("0", barcodeLength-len(raw))
	}
	return raw
}
