package repository

import (
	"context"
	"time"

	"snackstore-api/internal/model"
)

// Store is the inventory store consumed by the reservation engine and the
// stock notifier. This abstraction allows swapping between SQLite
// (development/testing) and MySQL (production) without changing business
// logic. Reads that need no transactional consistency (snapshots, cart
// views) run outside a transaction.
//
// Not-found reads return (nil, nil); errors are reserved for store failures.
type Store interface {
	// BeginTx opens a serializable transaction. The returned Tx must be
	// finished with Commit or Rollback; lock waits and total execution are
	// bounded by the store's configured timeouts.
	BeginTx(ctx context.Context) (Tx, error)

	// GetStockSnapshot reads a product's current stock outside any
	// transaction. Returns (nil, nil) if the product does not exist.
	GetStockSnapshot(ctx context.Context, productID int64) (*model.StockSnapshot, error)

	// GetSession reads a session row regardless of status.
	GetSession(ctx context.Context, sessionID string) (*model.CartSession, error)

	// ListCartItems returns the items of a session, outside any transaction.
	ListCartItems(ctx context.Context, sessionID string) ([]model.CartItem, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Tx is one serializable unit of work. All reservation mutations go through
// a Tx; a client-visible success implies the whole transaction committed.
type Tx interface {
	GetProduct(ctx context.Context, productID int64) (*model.Product, error)

	// ConditionalIncrementReserved applies "reserved = reserved + delta"
	// only if the result stays within [0, inventory], as a single guarded
	// UPDATE. It returns the number of rows affected; zero means the guard
	// failed (insufficient stock, or a release that would underflow).
	ConditionalIncrementReserved(ctx context.Context, productID int64, delta int) (int64, error)

	GetCartItem(ctx context.Context, sessionID string, productID int64) (*model.CartItem, error)
	UpsertCartItem(ctx context.Context, item model.CartItem) error
	DeleteCartItem(ctx context.Context, sessionID string, productID int64) error
	ListSessionItems(ctx context.Context, sessionID string) ([]model.CartItem, error)

	GetSession(ctx context.Context, sessionID string) (*model.CartSession, error)

	// FindActiveSessionByUser returns the user's ACTIVE, non-expired session,
	// or (nil, nil) if the user has none.
	FindActiveSessionByUser(ctx context.Context, userID string, now time.Time) (*model.CartSession, error)

	CreateSession(ctx context.Context, session model.CartSession) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error

	// ListReclaimableSessions returns sessions eligible for cleanup: ACTIVE
	// past their expiry, or flagged CONVERTED but never finalized.
	ListReclaimableSessions(ctx context.Context, now time.Time, limit int) ([]model.CartSession, error)

	Commit() error
	Rollback() error
}
