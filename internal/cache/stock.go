package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"snackstore-api/internal/model"

	"github.com/rs/zerolog/log"
)

const stockKeyPrefix = "stock:"

// SnapshotReader reads a product's current stock from the store.
// Returns (nil, nil) when the product does not exist.
type SnapshotReader interface {
	GetStockSnapshot(ctx context.Context, productID int64) (*model.StockSnapshot, error)
}

// StockCache serves stock snapshots cache-aside for display reads, and
// refreshes the cached entry whenever a broadcast re-reads the store.
// Cache failures degrade to store reads, never to request failures.
type StockCache struct {
	reader  SnapshotReader
	backend Cache
	ttl     time.Duration
}

// NewStockCache creates a snapshot cache over the given store and backend.
func NewStockCache(reader SnapshotReader, backend Cache, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockCache{reader: reader, backend: backend, ttl: ttl}
}

// Get returns the cached snapshot, falling back to a fresh store read on a
// miss. Returns (nil, nil) if the product does not exist.
func (c *StockCache) Get(ctx context.Context, productID int64) (*model.StockSnapshot, error) {
	data, err := c.backend.Get(ctx, stockKey(productID))
	if err == nil {
		var snap model.StockSnapshot
		if jsonErr := json.Unmarshal(data, &snap); jsonErr == nil {
			return &snap, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Int64("product_id", productID).Msg("snapshot cache read failed")
	}

	return c.Refresh(ctx, productID)
}

// Refresh re-reads the product from the store and replaces the cached
// entry, so broadcasts always carry stock as of broadcast time.
func (c *StockCache) Refresh(ctx context.Context, productID int64) (*model.StockSnapshot, error) {
	snap, err := c.reader.GetStockSnapshot(ctx, productID)
	if err != nil {
		return nil, err
	}

	key := stockKey(productID)
	if snap == nil {
		if err := c.backend.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Int64("product_id", productID).Msg("snapshot cache delete failed")
		}
		return nil, nil
	}

	if data, err := json.Marshal(snap); err == nil {
		if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
			log.Warn().Err(err).Int64("product_id", productID).Msg("snapshot cache write failed")
		}
	}
	return snap, nil
}

func stockKey(productID int64) string {
	return fmt.Sprintf("%s%d", stockKeyPrefix, productID)
}
