package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Repository persists products and variants in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service. It also
// satisfies codegen.Store so identifier uniqueness is re-checked inside the
// same transaction that inserts the variant.
type TxRepository interface {
	InsertProduct(ctx context.Context, p Product) (Product, error)
	InsertVariant(ctx context.Context, productID int64, v Variant) error
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, id int64, p Product) error
	UpdateVariant(ctx context.Context, productID int64, v Variant) error
	GetRackCapacityForUpdate(ctx context.Context, rackID int64) (int, string, error)
	CountRackOccupancy(ctx context.Context, rackID, excludeProductID int64) (int, error)
	SKUTakenByOther(ctx context.Context, sku string, productID int64) (bool, error)
	BarcodeTakenByOther(ctx context.Context, barcode string, productID int64) (bool, error)

	SKUExists(ctx context.Context, sku string) (bool, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	CountSKUsWithPrefix(ctx context.Context, prefix string) (int, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const productColumns = `p.id, p.name, p.description, p.price, p.quantity, p.zone_id, p.rack_id, p.status, v.sku_code, v.barcode_number, p.created_at, p.updated_at`

const productSelect = `SELECT ` + productColumns + ` FROM products p JOIN product_variants v ON v.product_id = p.id`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.ZoneID, &p.RackID, &p.Status, &p.Variant.SKUCode, &p.Variant.BarcodeNumber, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Get returns one product with its variant.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE p.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// GetByBarcode resolves a scanned barcode to a product.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE v.barcode_number=$1`, barcode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("catalog: barcode %s: %w", barcode, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// List returns one page of products matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter, meta shared.PageMeta) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(` AND (p.name ILIKE $%d OR v.sku_code ILIKE $%d)`, len(args), len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(` AND p.status = $%d`, len(args))
	}
	if filter.RackID != nil {
		args = append(args, *filter.RackID)
		where += fmt.Sprintf(` AND p.rack_id = $%d`, len(args))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM products p JOIN product_variants v ON v.product_id = p.id` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := productSelect + where + fmt.Sprintf(` ORDER BY p.name ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, meta.PerPage, meta.Offset())
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO products (name, description, price, quantity, zone_id, rack_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.Price, p.Quantity, p.ZoneID, p.RackID, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) InsertVariant(ctx context.Context, productID int64, v Variant) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_variants (product_id, sku_code, barcode_number, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW())`, productID, v.SKUCode, v.BarcodeNumber)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("catalog: sku or barcode: %w", shared.ErrDuplicateIdentifier)
	}
	return err
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, productSelect+` WHERE p.id=$1 FOR UPDATE OF p`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateProduct(ctx context.Context, id int64, p Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET name=$1, description=$2, price=$3, zone_id=$4, rack_id=$5, status=$6, updated_at=NOW() WHERE id=$7`,
		p.Name, p.Description, p.Price, p.ZoneID, p.RackID, p.Status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: product %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *txRepository) UpdateVariant(ctx context.Context, productID int64, v Variant) error {
	_, err := r.tx.Exec(ctx, `UPDATE product_variants SET sku_code=$1, barcode_number=$2, updated_at=NOW() WHERE product_id=$3`,
		v.SKUCode, v.BarcodeNumber, productID)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("catalog: sku or barcode: %w", shared.ErrDuplicateIdentifier)
	}
	return err
}

func (r *txRepository) GetRackCapacityForUpdate(ctx context.Context, rackID int64) (int, string, error) {
	var capacity int
	var status string
	err := r.tx.QueryRow(ctx, `SELECT capacity, status FROM racks WHERE id=$1 FOR UPDATE`, rackID).Scan(&capacity, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", fmt.Errorf("catalog: rack %d: %w", rackID, shared.ErrNotFound)
		}
		return 0, "", err
	}
	return capacity, status, nil
}

func (r *txRepository) CountRackOccupancy(ctx context.Context, rackID, excludeProductID int64) (int, error) {
	var count int
	var err error
	if excludeProductID > 0 {
		err = r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE rack_id=$1 AND id<>$2`, rackID, excludeProductID).Scan(&count)
	} else {
		err = r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE rack_id=$1`, rackID).Scan(&count)
	}
	return count, err
}

func (r *txRepository) SKUExists(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_variants WHERE sku_code=$1)`, sku).Scan(&exists)
	return exists, err
}

func (r *txRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_variants WHERE barcode_number=$1)`, barcode).Scan(&exists)
	return exists, err
}

func (r *txRepository) CountSKUsWithPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM product_variants WHERE sku_code LIKE $1 || '%'`, prefix).Scan(&count)
	return count, err
}

func (r *txRepository) SKUTakenByOther(ctx context.Context, sku string, productID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_variants WHERE sku_code=$1 AND product_id<>$2)`, sku, productID).Scan(&exists)
	return exists, err
}

func (r *txRepository) BarcodeTakenByOther(ctx context.Context, barcode string, productID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_variants WHERE barcode_number=$1 AND product_id<>$2)`, barcode, productID).Scan(&exists)
	return exists, err
}
