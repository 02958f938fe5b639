package model

import "time"

// ProductStatus describes whether a product accepts new reservations.
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

// Product is a sellable item with a reservation-tracked inventory.
// Reserved counts units currently held by active cart sessions; the store
// guarantees 0 <= reserved <= inventory at every committed state.
type Product struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Inventory int           `json:"inventory"`
	Reserved  int           `json:"reserved"`
	Status    ProductStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Available returns the quantity still purchasable right now.
func (p *Product) Available() int {
	return p.Inventory - p.Reserved
}

// IsActive reports whether the product accepts new reservations.
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}
