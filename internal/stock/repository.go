package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetProductQuantityForUpdate(ctx context.Context, productID int64) (int64, error)
	InsertMovement(ctx context.Context, entry MovementEntry) (int64, error)
	UpdateProductQuantity(ctx context.Context, productID, quantity int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ProductExists reports whether the product row is present.
func (r *Repository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists)
	return exists, err
}

// ListMovements returns one page of ledger entries, newest first, plus the
// total row count for the filter.
func (r *Repository) ListMovements(ctx context.Context, productID int64, filter HistoryFilter, meta shared.PageMeta) ([]MovementEntry, int, error) {
	where := `WHERE product_id=$1`
	args := []any{productID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where += fmt.Sprintf(` AND movement_type=$%d`, len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, product_id, movement_type, quantity, previous_stock, current_stock, reference_number, user_id, created_at
FROM stock_movements ` + where + fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, meta.PerPage, meta.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entries := []MovementEntry{}
	for rows.Next() {
		var e MovementEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Kind, &e.Quantity, &e.PreviousStock, &e.CurrentStock, &e.ReferenceNumber, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Delta = e.Kind.Delta(e.Quantity)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// BalanceMismatch is a product whose quantity disagrees with its ledger.
type BalanceMismatch struct {
	ProductID    int64
	Quantity     int64
	LedgerStock  int64
	LastMovement time.Time
}

// FindBalanceMismatches compares each product's quantity against the
// resulting balance of its most recent ledger entry. Used by the nightly
// integrity scan.
func (r *Repository) FindBalanceMismatches(ctx context.Context) ([]BalanceMismatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.quantity, m.current_stock, m.created_at
FROM products p
JOIN LATERAL (
    SELECT current_stock, created_at FROM stock_movements
    WHERE product_id = p.id ORDER BY created_at DESC, id DESC LIMIT 1
) m ON TRUE
WHERE p.quantity <> m.current_stock`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mismatches []BalanceMismatch
	for rows.Next() {
		var m BalanceMismatch
		if err := rows.Scan(&m.ProductID, &m.Quantity, &m.LedgerStock, &m.LastMovement); err != nil {
			return nil, err
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}

func (r *txRepository) GetProductQuantityForUpdate(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("stock: product %d: %w", productID, shared.ErrNotFound)
		}
		return 0, err
	}
	return qty, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, entry MovementEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, movement_type, quantity, previous_stock, current_stock, reference_number, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		entry.ProductID, string(entry.Kind), entry.Quantity, entry.PreviousStock, entry.CurrentStock, entry.ReferenceNumber, nullInt(entry.ActorID), entry.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET quantity=$1, updated_at=NOW() WHERE id=$2`, quantity, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock: product %d: %w", productID, shared.ErrNotFound)
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
