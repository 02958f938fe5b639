package model

import "time"

// StockSnapshot is a point-in-time view of a product's stock, pushed to
// subscribed clients and served from the snapshot cache. Each snapshot is
// self-consistent; clients keep the one with the newest timestamp and
// discard the rest.
type StockSnapshot struct {
	ID        int64         `json:"id"`
	Inventory int           `json:"inventory"`
	Reserved  int           `json:"reserved"`
	Available int           `json:"available"`
	Status    ProductStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}
