package racks

import (
	"errors"
	"fmt"
	"time"
)

// Rack is a physical storage slot group with a fixed capacity, measured in
// product slots: one product occupies one slot regardless of its quantity.
type Rack struct {
	ID         int64     `json:"id"`
	RackNumber string    `json:"rack_number"`
	Capacity   int       `json:"capacity"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DefaultCapacity applies when a rack is created without one.
const DefaultCapacity = 50

const (
	// StatusAvailable marks a rack open for placements.
	StatusAvailable = "Available"
	// StatusUnavailable marks a rack closed for placements.
	StatusUnavailable = "Unavailable"
)

// Occupancy summarises a rack's usage.
type Occupancy struct {
	RackID    int64 `json:"rack_id"`
	Capacity  int   `json:"capacity"`
	Occupied  int   `json:"occupied"`
	Available int   `json:"available"`
}

// CapacityError rejects a placement or capacity edit that would leave a rack
// holding more products than its declared capacity. Available carries the
// remaining slot count for the operator-facing message.
type CapacityError struct {
	RackID    int64
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("racks: rack %d cannot hold %d more item(s), %d slot(s) available", e.RackID, e.Requested, e.Available)
}

// ErrDuplicateRackNumber indicates a rack number collision.
var ErrDuplicateRackNumber = errors.New("racks: rack number already in use")

// ErrInvalidCapacity indicates a non-positive capacity.
var ErrInvalidCapacity = errors.New("racks: capacity must be positive")

// ErrCapacityBelowOccupancy rejects a capacity edit that would leave the rack
// over-full.
var ErrCapacityBelowOccupancy = errors.New("racks: capacity below current occupancy")

// Evaluate decides whether a rack with the given capacity and occupancy can
// accept requested more products.
func Evaluate(rackID int64, capacity, occupied, requested int) *CapacityError {
	available := capacity - occupied
	if available < 0 {
		available = 0
	}
	if requested > available {
		return &CapacityError{RackID: rackID, Requested: requested, Available: available}
	}
	return nil
}
