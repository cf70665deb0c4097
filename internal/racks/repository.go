package racks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Repository persists racks in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetRackForUpdate(ctx context.Context, id int64) (Rack, error)
	CountOccupancy(ctx context.Context, rackID int64, excludeProductID int64) (int, error)
	UpdateRack(ctx context.Context, id int64, rack Rack) (Rack, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("racks repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const rackColumns = `id, rack_number, capacity, status, created_at, updated_at`

// List returns one page of racks ordered by rack number.
func (r *Repository) List(ctx context.Context, meta shared.PageMeta) ([]Rack, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM racks`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+rackColumns+` FROM racks ORDER BY rack_number ASC LIMIT $1 OFFSET $2`, meta.PerPage, meta.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Rack{}
	for rows.Next() {
		var rack Rack
		if err := rows.Scan(&rack.ID, &rack.RackNumber, &rack.Capacity, &rack.Status, &rack.CreatedAt, &rack.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, rack)
	}
	return items, total, rows.Err()
}

// Get returns one rack by id.
func (r *Repository) Get(ctx context.Context, id int64) (Rack, error) {
	var rack Rack
	err := r.pool.QueryRow(ctx, `SELECT `+rackColumns+` FROM racks WHERE id=$1`, id).
		Scan(&rack.ID, &rack.RackNumber, &rack.Capacity, &rack.Status, &rack.CreatedAt, &rack.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rack{}, fmt.Errorf("racks: rack %d: %w", id, shared.ErrNotFound)
		}
		return Rack{}, err
	}
	return rack, nil
}

// Create inserts a rack.
func (r *Repository) Create(ctx context.Context, rack Rack) (Rack, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO racks (rack_number, capacity, status, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING `+rackColumns,
		rack.RackNumber, rack.Capacity, rack.Status).
		Scan(&rack.ID, &rack.RackNumber, &rack.Capacity, &rack.Status, &rack.CreatedAt, &rack.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Rack{}, ErrDuplicateRackNumber
		}
		return Rack{}, err
	}
	return rack, nil
}

// CountOccupancy counts products assigned to the rack, optionally excluding
// one product id.
func (r *Repository) CountOccupancy(ctx context.Context, rackID int64, excludeProductID int64) (int, error) {
	return countOccupancy(ctx, r.pool, rackID, excludeProductID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countOccupancy(ctx context.Context, q queryRower, rackID int64, excludeProductID int64) (int, error) {
	var count int
	var err error
	if excludeProductID > 0 {
		err = q.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE rack_id=$1 AND id<>$2`, rackID, excludeProductID).Scan(&count)
	} else {
		err = q.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE rack_id=$1`, rackID).Scan(&count)
	}
	return count, err
}

func (r *txRepository) GetRackForUpdate(ctx context.Context, id int64) (Rack, error) {
	var rack Rack
	err := r.tx.QueryRow(ctx, `SELECT `+rackColumns+` FROM racks WHERE id=$1 FOR UPDATE`, id).
		Scan(&rack.ID, &rack.RackNumber, &rack.Capacity, &rack.Status, &rack.CreatedAt, &rack.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rack{}, fmt.Errorf("racks: rack %d: %w", id, shared.ErrNotFound)
		}
		return Rack{}, err
	}
	return rack, nil
}

func (r *txRepository) CountOccupancy(ctx context.Context, rackID int64, excludeProductID int64) (int, error) {
	return countOccupancy(ctx, r.tx, rackID, excludeProductID)
}

func (r *txRepository) UpdateRack(ctx context.Context, id int64, rack Rack) (Rack, error) {
	err := r.tx.QueryRow(ctx, `UPDATE racks SET rack_number=$1, capacity=$2, status=$3, updated_at=NOW() WHERE id=$4 RETURNING `+rackColumns,
		rack.RackNumber, rack.Capacity, rack.Status, id).
		Scan(&rack.ID, &rack.RackNumber, &rack.Capacity, &rack.Status, &rack.CreatedAt, &rack.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Rack{}, ErrDuplicateRackNumber
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return Rack{}, fmt.Errorf("racks: rack %d: %w", id, shared.ErrNotFound)
		}
		return Rack{}, err
	}
	return rack, nil
}
