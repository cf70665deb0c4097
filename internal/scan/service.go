package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlas-wms/atlas-wms/internal/catalog"
	"github.com/atlas-wms/atlas-wms/internal/shared"
	"github.com/atlas-wms/atlas-wms/internal/stock"
)

// CatalogPort resolves scanned barcodes to products.
type CatalogPort interface {
	ResolveBarcode(ctx context.Context, barcode string) (catalog.Product, error)
}

// LedgerPort commits the aggregated session as one stock batch.
type LedgerPort interface {
	CommitBatch(ctx context.Context, input stock.BatchInput) ([]stock.MovementEntry, error)
}

// UnknownBarcodeError reports a scan that resolved to no product. The scanned
// value is kept so the operator sees exactly what the device read.
type UnknownBarcodeError struct {
	Barcode string
}

func (e *UnknownBarcodeError) Error() string {
	return fmt.Sprintf("scan: unknown barcode %q", e.Barcode)
}

// ErrEmptySession rejects submitting a session with nothing scanned.
var ErrEmptySession = errors.New("scan: session has no items")

// Item is one aggregated line of a scan session.
type Item struct {
	Product  catalog.Product `json:"product"`
	Quantity int64           `json:"quantity"`
}

// Aggregator accumulates scans per operator session in a Redis hash keyed by
// barcode. A session has a single writer, so plain HINCRBY is enough.
type Aggregator struct {
	rdb     *redis.Client
	catalog CatalogPort
	ledger  LedgerPort
	ttl     time.Duration
}

// NewAggregator constructs Aggregator. ttl bounds how long an abandoned
// session survives.
func NewAggregator(rdb *redis.Client, cat CatalogPort, ledger LedgerPort, ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Aggregator{rdb: rdb, catalog: cat, ledger: ledger, ttl: ttl}
}

func sessionKey(session string) string {
	return "scan:agg:" + session
}

// OnScan records one scan of barcode and returns the resolved product with
// the new aggregated count.
func (a *Aggregator) OnScan(ctx context.Context, session, barcode string) (Item, error) {
	product, err := a.catalog.ResolveBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Item{}, &UnknownBarcodeError{Barcode: barcode}
		}
		return Item{}, err
	}
	key := sessionKey(session)
	count, err := a.rdb.HIncrBy(ctx, key, product.Variant.BarcodeNumber, 1).Result()
	if err != nil {
		return Item{}, fmt.Errorf("scan: increment: %w", err)
	}
	a.rdb.Expire(ctx, key, a.ttl)
	return Item{Product: product, Quantity: count}, nil
}

// SetQuantity overrides the aggregated count for barcode. Zero removes the
// line.
func (a *Aggregator) SetQuantity(ctx context.Context, session, barcode string, quantity int64) (Item, error) {
	if quantity < 0 {
		return Item{}, fmt.Errorf("scan: quantity must not be negative: %w", shared.ErrValidation)
	}
	product, err := a.catalog.ResolveBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Item{}, &UnknownBarcodeError{Barcode: barcode}
		}
		return Item{}, err
	}
	key := sessionKey(session)
	if quantity == 0 {
		if err := a.rdb.HDel(ctx, key, product.Variant.BarcodeNumber).Err(); err != nil {
			return Item{}, fmt.Errorf("scan: remove: %w", err)
		}
		return Item{Product: product, Quantity: 0}, nil
	}
	if err := a.rdb.HSet(ctx, key, product.Variant.BarcodeNumber, quantity).Err(); err != nil {
		return Item{}, fmt.Errorf("scan: set quantity: %w", err)
	}
	a.rdb.Expire(ctx, key, a.ttl)
	return Item{Product: product, Quantity: quantity}, nil
}

// Remove drops one barcode from the session.
func (a *Aggregator) Remove(ctx context.Context, session, barcode string) error {
	if err := a.rdb.HDel(ctx, sessionKey(session), barcode).Err(); err != nil {
		return fmt.Errorf("scan: remove: %w", err)
	}
	return nil
}

// Items returns the aggregated session lines sorted by barcode so repeated
// reads render identically.
func (a *Aggregator) Items(ctx context.Context, session string) ([]Item, error) {
	raw, err := a.rdb.HGetAll(ctx, sessionKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("scan: read session: %w", err)
	}
	barcodes := make([]string, 0, len(raw))
	for barcode := range raw {
		barcodes = append(barcodes, barcode)
	}
	sort.Strings(barcodes)

	items := make([]Item, 0, len(barcodes))
	for _, barcode := range barcodes {
		quantity, err := strconv.ParseInt(raw[barcode], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("scan: corrupt count for %s: %w", barcode, err)
		}
		product, err := a.catalog.ResolveBarcode(ctx, barcode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// product deleted after it was scanned; surface, don't hide
				return nil, &UnknownBarcodeError{Barcode: barcode}
			}
			return nil, err
		}
		items = append(items, Item{Product: product, Quantity: quantity})
	}
	return items, nil
}

// Clear drops the whole session aggregate.
func (a *Aggregator) Clear(ctx context.Context, session string) error {
	if err := a.rdb.Del(ctx, sessionKey(session)).Err(); err != nil {
		return fmt.Errorf("scan: clear session: %w", err)
	}
	return nil
}

// Submit commits the session as one ledger batch, one line per product. The
// aggregate is cleared only after the batch commits; on failure it stays
// intact so the operator can correct and retry.
func (a *Aggregator) Submit(ctx context.Context, session, referenceNumber string, kind stock.MovementKind, actorID int64) ([]stock.MovementEntry, error) {
	if !kind.Valid() {
		return nil, stock.ErrInvalidMovementKind
	}
	items, err := a.Items(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptySession
	}

	lines := make([]stock.BatchLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, stock.BatchLine{
			ProductID: item.Product.ID,
			Kind:      kind,
			Quantity:  item.Quantity,
		})
	}
	entries, err := a.ledger.CommitBatch(ctx, stock.BatchInput{
		ReferenceNumber: referenceNumber,
		ActorID:         actorID,
		Lines:           lines,
	})
	if err != nil {
		return nil, err
	}
	if err := a.Clear(ctx, session); err != nil {
		return entries, err
	}
	return entries, nil
}
