package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"snackstore-api/internal/model"

	"github.com/stretchr/testify/require"
)

// fakeSource serves snapshots from a map. A nil entry means the product
// does not exist.
type fakeSource struct {
	mu    sync.Mutex
	stock map[int64]*model.StockSnapshot
	err   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{stock: make(map[int64]*model.StockSnapshot)}
}

func (s *fakeSource) set(productID int64, inventory, reserved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = &model.StockSnapshot{
		ID: productID, Inventory: inventory, Reserved: reserved,
		Available: inventory - reserved, Status: model.ProductStatusActive,
		Timestamp: time.Now().UTC(),
	}
}

func (s *fakeSource) Refresh(ctx context.Context, productID int64) (*model.StockSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	snap, ok := s.stock[productID]
	if !ok {
		return nil, nil
	}
	copied := *snap
	return &copied, nil
}

// testClient returns a hub client with no underlying connection; frames land
// in its send buffer.
func testClient(hub *Hub) *Client {
	return NewClient(hub, nil)
}

func receive(t *testing.T, c *Client) model.ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg model.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return model.ServerMessage{}
	}
}

func requireEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func TestHubRegisterGreetsClient(t *testing.T) {
	hub := NewHub(newFakeSource())
	c := testClient(hub)
	hub.Register(c)

	msg := receive(t, c)
	require.Equal(t, model.MessageTypeConnected, msg.Type)
}

func TestHubSubscribeSendsSnapshot(t *testing.T) {
	source := newFakeSource()
	source.set(7, 20, 5)
	hub := NewHub(source)

	c := testClient(hub)
	hub.Register(c)
	receive(t, c) // greeting

	hub.Subscribe(c, 7)

	msg := receive(t, c)
	require.Equal(t, model.MessageTypeStockUpdate, msg.Type)
	require.EqualValues(t, 7, msg.ProductID)
	require.NotNil(t, msg.Stock)
	require.Equal(t, 15, msg.Stock.Available)
}

func TestHubSubscribeUnknownProduct(t *testing.T) {
	hub := NewHub(newFakeSource())
	c := testClient(hub)
	hub.Register(c)
	receive(t, c)

	hub.Subscribe(c, 404)

	msg := receive(t, c)
	require.Equal(t, model.MessageTypeError, msg.Type)
	require.Equal(t, "product not found", msg.Message)
}

func TestHubBroadcastRoutesToSubscribersOnly(t *testing.T) {
	source := newFakeSource()
	source.set(1, 10, 2)
	source.set(2, 10, 0)
	hub := NewHub(source)

	subscriberA := testClient(hub)
	subscriberB := testClient(hub)
	bystander := testClient(hub)
	for _, c := range []*Client{subscriberA, subscriberB, bystander} {
		hub.Register(c)
		receive(t, c)
	}

	hub.Subscribe(subscriberA, 1)
	receive(t, subscriberA)
	hub.Subscribe(subscriberB, 1)
	receive(t, subscriberB)
	hub.Subscribe(bystander, 2)
	receive(t, bystander)

	source.set(1, 10, 7)
	hub.BroadcastStockUpdate(1)

	for _, c := range []*Client{subscriberA, subscriberB} {
		msg := receive(t, c)
		require.Equal(t, model.MessageTypeStockUpdate, msg.Type)
		require.EqualValues(t, 1, msg.ProductID)
		require.Equal(t, 3, msg.Stock.Available)
	}
	requireEmpty(t, bystander)
}

func TestHubBroadcastVanishedProduct(t *testing.T) {
	hub := NewHub(newFakeSource())
	c := testClient(hub)
	hub.Register(c)
	receive(t, c)

	hub.Subscribe(c, 9)
	receive(t, c) // "product not found" error frame from subscribe

	hub.BroadcastStockUpdate(9)
	requireEmpty(t, c)
}

func TestHubBroadcastReadFailure(t *testing.T) {
	source := newFakeSource()
	source.set(1, 5, 0)
	hub := NewHub(source)

	c := testClient(hub)
	hub.Register(c)
	receive(t, c)
	hub.Subscribe(c, 1)
	receive(t, c)

	source.mu.Lock()
	source.err = errors.New("store down")
	source.mu.Unlock()

	// Dropped, not fatal: no frame, client stays registered.
	hub.BroadcastStockUpdate(1)
	requireEmpty(t, c)

	hub.mu.RLock()
	_, registered := hub.clients[c]
	hub.mu.RUnlock()
	require.True(t, registered)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	source := newFakeSource()
	source.set(1, 10, 0)
	hub := NewHub(source)

	c := testClient(hub)
	hub.Register(c)
	receive(t, c)
	hub.Subscribe(c, 1)
	receive(t, c)

	hub.Unsubscribe(c, 1)
	hub.BroadcastStockUpdate(1)
	requireEmpty(t, c)

	// Empty subscriber sets are dropped entirely.
	hub.mu.RLock()
	_, exists := hub.subscribers[1]
	hub.mu.RUnlock()
	require.False(t, exists)
}

func TestHubRemoveClientSweepsAllSubscriptions(t *testing.T) {
	source := newFakeSource()
	source.set(1, 10, 0)
	source.set(2, 10, 0)
	hub := NewHub(source)

	c := testClient(hub)
	hub.Register(c)
	receive(t, c)
	hub.Subscribe(c, 1)
	hub.Subscribe(c, 2)

	hub.RemoveClient(c)
	hub.RemoveClient(c) // idempotent

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Empty(t, hub.clients)
	require.Empty(t, hub.subscribers)
}

func TestHubPrunesSlowSubscriber(t *testing.T) {
	source := newFakeSource()
	source.set(1, 10, 0)
	hub := NewHub(source)

	c := testClient(hub)
	hub.Register(c)
	hub.Subscribe(c, 1)

	// Jam the client's buffer so the next broadcast cannot be queued.
	for len(c.send) < cap(c.send) {
		c.send <- []byte("backlog")
	}

	hub.BroadcastStockUpdate(1)

	hub.mu.RLock()
	_, registered := hub.clients[c]
	hub.mu.RUnlock()
	require.False(t, registered, "slow client should be pruned")

	select {
	case <-c.done:
	default:
		t.Fatal("pruned client should be closed")
	}
}
