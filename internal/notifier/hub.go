// Package notifier fans stock snapshots out to subscribed clients over
// long-lived websocket connections. The subscriber registry is in-memory
// and process-local; clients re-subscribe after a restart.
package notifier

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"snackstore-api/internal/cache"
	"snackstore-api/internal/metrics"
	"snackstore-api/internal/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// SnapshotSource provides the fresh stock read behind every broadcast.
// *cache.StockCache satisfies it.
type SnapshotSource interface {
	// Refresh re-reads the product's stock; (nil, nil) means it no longer
	// exists and nothing should be broadcast.
	Refresh(ctx context.Context, productID int64) (*model.StockSnapshot, error)
}

var _ SnapshotSource = (*cache.StockCache)(nil)

// Hub owns the productID -> subscribers mapping behind its own mutex. It is
// constructed once per process and handed to the connection acceptor; it is
// not a singleton.
type Hub struct {
	source SnapshotSource

	mu          sync.RWMutex
	clients     map[*Client]struct{}
	subscribers map[int64]map[*Client]struct{}

	// group coalesces concurrent snapshot reads for the same product.
	group singleflight.Group

	readTimeout time.Duration
}

// NewHub creates a stock notification hub reading snapshots from source.
func NewHub(source SnapshotSource) *Hub {
	return &Hub{
		source:      source,
		clients:     make(map[*Client]struct{}),
		subscribers: make(map[int64]map[*Client]struct{}),
		readTimeout: 5 * time.Second,
	}
}

// Register adds a freshly upgraded connection and greets it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	metrics.ConnectedClients.Inc()
	c.enqueue(marshalMessage(model.ServerMessage{
		Type:    model.MessageTypeConnected,
		Message: "connected to stock updates",
	}))
}

// Subscribe adds the client to a product's subscriber set and immediately
// pushes a fresh snapshot to that client only.
func (h *Hub) Subscribe(c *Client, productID int64) {
	h.mu.Lock()
	set, ok := h.subscribers[productID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subscribers[productID] = set
	}
	if _, already := set[c]; !already {
		set[c] = struct{}{}
		metrics.Subscriptions.Inc()
	}
	h.mu.Unlock()

	h.SendSnapshot(c, productID)
}

// Unsubscribe removes the client from a product's subscriber set, dropping
// the set once empty.
func (h *Hub) Unsubscribe(c *Client, productID int64) {
	h.mu.Lock()
	if set, ok := h.subscribers[productID]; ok {
		if _, member := set[c]; member {
			delete(set, c)
			metrics.Subscriptions.Dec()
		}
		if len(set) == 0 {
			delete(h.subscribers, productID)
		}
	}
	h.mu.Unlock()
}

// RemoveClient sweeps a disconnected client out of every subscriber set.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, registered := h.clients[c]; !registered {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for productID, set := range h.subscribers {
		if _, member := set[c]; member {
			delete(set, c)
			metrics.Subscriptions.Dec()
		}
		if len(set) == 0 {
			delete(h.subscribers, productID)
		}
	}
	h.mu.Unlock()

	metrics.ConnectedClients.Dec()
}

// NotifyProductChanged implements service.ProductChangeNotifier. Dispatch is
// asynchronous and best-effort: the committing request never blocks on
// fan-out.
func (h *Hub) NotifyProductChanged(productID int64) {
	go h.BroadcastStockUpdate(productID)
}

// BroadcastStockUpdate re-reads the product's stock and pushes the snapshot
// to every subscriber. A vanished product broadcasts nothing; a failed read
// is logged and dropped; a dead subscriber is pruned, not fatal. Broadcasts
// for the same product are not ordered across concurrent writers — every
// snapshot is self-consistent and timestamped, and clients keep the newest.
func (h *Hub) BroadcastStockUpdate(productID int64) {
	snap, err := h.snapshot(productID)
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("stock broadcast read failed")
		return
	}
	if snap == nil {
		return
	}

	// Serialize once, send to all.
	data := marshalMessage(model.ServerMessage{
		Type:      model.MessageTypeStockUpdate,
		ProductID: productID,
		Stock:     snap,
		Timestamp: time.Now().UTC(),
	})

	var stale []*Client
	h.mu.RLock()
	for c := range h.subscribers[productID] {
		if !c.enqueue(data) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.RemoveClient(c)
		c.close()
	}
	metrics.Broadcasts.Inc()
}

// SendSnapshot pushes a fresh snapshot to one client, or an error frame if
// the product does not exist.
func (h *Hub) SendSnapshot(c *Client, productID int64) {
	snap, err := h.snapshot(productID)
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("snapshot read failed")
		c.enqueue(marshalMessage(model.ServerMessage{
			Type:      model.MessageTypeError,
			ProductID: productID,
			Message:   "failed to read stock",
		}))
		return
	}
	if snap == nil {
		c.enqueue(marshalMessage(model.ServerMessage{
			Type:      model.MessageTypeError,
			ProductID: productID,
			Message:   "product not found",
		}))
		return
	}

	c.enqueue(marshalMessage(model.ServerMessage{
		Type:      model.MessageTypeStockUpdate,
		ProductID: productID,
		Stock:     snap,
		Timestamp: time.Now().UTC(),
	}))
}

// snapshot reads the product's current stock, coalescing concurrent reads
// for the same product.
func (h *Hub) snapshot(productID int64) (*model.StockSnapshot, error) {
	v, err, _ := h.group.Do(strconv.FormatInt(productID, 10), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), h.readTimeout)
		defer cancel()
		return h.source.Refresh(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	snap, _ := v.(*model.StockSnapshot)
	return snap, nil
}

func marshalMessage(msg model.ServerMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal server message")
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return data
}
