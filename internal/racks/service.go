package racks

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	List(ctx context.Context, meta shared.PageMeta) ([]Rack, int, error)
	Get(ctx context.Context, id int64) (Rack, error)
	Create(ctx context.Context, rack Rack) (Rack, error)
	CountOccupancy(ctx context.Context, rackID int64, excludeProductID int64) (int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service answers capacity questions and manages rack reference data.
type Service struct {
	repo   RepositoryPort
	occupy singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CurrentOccupancy counts products currently assigned to the rack, optionally
// excluding one product (used when re-validating a product already placed
// there). Concurrent reads for the same rack are collapsed.
func (s *Service) CurrentOccupancy(ctx context.Context, rackID, excludeProductID int64) (int, error) {
	key := fmt.Sprintf("%d:%d", rackID, excludeProductID)
	v, err, _ := s.occupy.Do(key, func() (any, error) {
		return s.repo.CountOccupancy(ctx, rackID, excludeProductID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// CheckCapacity reports whether the rack can accept unitsRequested more
// products. This is the advisory read path; commit-time enforcement happens
// inside the placement transaction.
func (s *Service) CheckCapacity(ctx context.Context, rackID int64, unitsRequested int, excludeProductID int64) error {
	if unitsRequested <= 0 {
		return fmt.Errorf("racks: units requested must be positive: %w", shared.ErrValidation)
	}
	rack, err := s.repo.Get(ctx, rackID)
	if err != nil {
		return err
	}
	occupied, err := s.CurrentOccupancy(ctx, rackID, excludeProductID)
	if err != nil {
		return err
	}
	if capErr := Evaluate(rack.ID, rack.Capacity, occupied, unitsRequested); capErr != nil {
		return capErr
	}
	return nil
}

// GetOccupancy returns the rack's occupancy summary.
func (s *Service) GetOccupancy(ctx context.Context, rackID int64) (Occupancy, error) {
	rack, err := s.repo.Get(ctx, rackID)
	if err != nil {
		return Occupancy{}, err
	}
	occupied, err := s.CurrentOccupancy(ctx, rackID, 0)
	if err != nil {
		return Occupancy{}, err
	}
	available := rack.Capacity - occupied
	if available < 0 {
		available = 0
	}
	return Occupancy{RackID: rack.ID, Capacity: rack.Capacity, Occupied: occupied, Available: available}, nil
}

// List returns one page of racks.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Rack, shared.PageMeta, error) {
	meta := shared.NewPageMeta(page, perPage, 0)
	items, total, err := s.repo.List(ctx, meta)
	if err != nil {
		return nil, shared.PageMeta{}, err
	}
	return items, shared.NewPageMeta(meta.CurrentPage, meta.PerPage, total), nil
}

// Get returns one rack.
func (s *Service) Get(ctx context.Context, id int64) (Rack, error) {
	if id <= 0 {
		return Rack{}, fmt.Errorf("racks: invalid id: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Create registers a new rack. Capacity defaults to DefaultCapacity.
func (s *Service) Create(ctx context.Context, rack Rack) (Rack, error) {
	rack.RackNumber = strings.TrimSpace(rack.RackNumber)
	if rack.RackNumber == "" {
		return Rack{}, fmt.Errorf("racks: rack number required: %w", shared.ErrValidation)
	}
	if rack.Capacity == 0 {
		rack.Capacity = DefaultCapacity
	}
	if rack.Capacity < 0 {
		return Rack{}, ErrInvalidCapacity
	}
	if rack.Status == "" {
		rack.Status = StatusAvailable
	}
	if rack.Status != StatusAvailable && rack.Status != StatusUnavailable {
		return Rack{}, fmt.Errorf("racks: unknown status %q: %w", rack.Status, shared.ErrValidation)
	}
	return s.repo.Create(ctx, rack)
}

// Update edits a rack. A capacity reduction is checked against current
// occupancy inside a transaction that locks the rack row, so the occupancy
// invariant holds after the edit even with concurrent placements.
func (s *Service) Update(ctx context.Context, id int64, rack Rack) (Rack, error) {
	if id <= 0 {
		return Rack{}, fmt.Errorf("racks: invalid id: %w", shared.ErrValidation)
	}
	rack.RackNumber = strings.TrimSpace(rack.RackNumber)
	if rack.RackNumber == "" {
		return Rack{}, fmt.Errorf("racks: rack number required: %w", shared.ErrValidation)
	}
	if rack.Capacity <= 0 {
		return Rack{}, ErrInvalidCapacity
	}
	if rack.Status != StatusAvailable && rack.Status != StatusUnavailable {
		return Rack{}, fmt.Errorf("racks: unknown status %q: %w", rack.Status, shared.ErrValidation)
	}
	var updated Rack
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRackForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rack.Capacity < current.Capacity {
			occupied, err := tx.CountOccupancy(ctx, id, 0)
			if err != nil {
				return err
			}
			if occupied > rack.Capacity {
				return fmt.Errorf("%w: %d product(s) currently placed, capacity %d", ErrCapacityBelowOccupancy, occupied, rack.Capacity)
			}
		}
		updated, err = tx.UpdateRack(ctx, id, rack)
		return err
	})
	if err != nil {
		return Rack{}, err
	}
	return updated, nil
}
