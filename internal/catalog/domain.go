package catalog

import (
	"time"
)

const (
	// StatusAvailable marks a product visible for stock operations.
	StatusAvailable = "Available"
	// StatusUnavailable hides a product from stock operations.
	StatusUnavailable = "Unavailable"
)

// Variant carries the unique identifiers of a product. One product owns
// exactly one variant.
type Variant struct {
	SKUCode       string `json:"sku_code"`
	BarcodeNumber string `json:"barcode_number"`
}

// Product is a catalog item. Quantity is owned by the stock ledger and never
// written by this package outside of initial creation at zero.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Quantity    int64     `json:"quantity"`
	ZoneID      *int64    `json:"zone_id,omitempty"`
	RackID      *int64    `json:"rack_id,omitempty"`
	Status      string    `json:"status"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput describes a product creation request. Category/Subcategory/
// Brand/Color are reference-data names resolved upstream; they only feed SKU
// composition. SKUCode/BarcodeNumber are optional operator-supplied values.
type CreateInput struct {
	Name            string
	Description     string
	Price           float64
	InitialQuantity int64
	ZoneID          *int64
	RackID          *int64
	Status          string
	SKUCode         string
	BarcodeNumber   string
	Category        string
	Subcategory     string
	Brand           string
	Color           string
	ActorID         int64
}

// UpdateInput describes a product edit. Identifier replacement re-validates
// uniqueness; a changed barcode regenerates the image artifact.
type UpdateInput struct {
	Name          string
	Description   string
	Price         float64
	ZoneID        *int64
	RackID        *int64
	Status        string
	SKUCode       string
	BarcodeNumber string
	ActorID       int64
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search string
	Status string
	RackID *int64
}
