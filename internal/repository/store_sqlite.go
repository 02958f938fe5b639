package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snackstore-api/internal/model"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements Store using SQLite. Intended for development and
// testing; SQLite serializes all writers, which satisfies the isolation the
// reservation engine expects.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed inventory store.
// dbPath is the path to the database file (e.g. "./data/snackstore.db");
// use ":memory:" for tests.
func NewSQLiteStore(dbPath string, busyTimeout time.Duration) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		dbPath, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("SQLite store initialized")
	return &SQLiteStore{db: db}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		inventory INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (reserved >= 0 AND reserved <= inventory)
	);
	CREATE TABLE IF NOT EXISTS cart_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON cart_sessions(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON cart_sessions(status, expires_at);
	CREATE TABLE IF NOT EXISTS cart_items (
		session_id TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, product_id)
	);
	CREATE INDEX IF NOT EXISTS idx_items_product ON cart_items(product_id);
	`
	_, err := db.Exec(query)
	return err
}

// BeginTx opens a serializable transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// GetStockSnapshot reads a product's stock outside any transaction.
func (s *SQLiteStore) GetStockSnapshot(ctx context.Context, productID int64) (*model.StockSnapshot, error) {
	var snap model.StockSnapshot
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, inventory, reserved, status FROM products WHERE id = ?`, productID,
	).Scan(&snap.ID, &snap.Inventory, &snap.Reserved, &status)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product %d: %w", productID, err)
	}

	snap.Status = model.ProductStatus(status)
	snap.Available = snap.Inventory - snap.Reserved
	snap.Timestamp = time.Now().UTC()
	return &snap, nil
}

// GetSession reads a session row regardless of status.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.CartSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions WHERE id = ?`, sessionID))
}

// ListCartItems returns the items of a session.
func (s *SQLiteStore) ListCartItems(ctx context.Context, sessionID string) ([]model.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE session_id = ? ORDER BY product_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// Ping verifies the store is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements Tx on a SQLite transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
	var p model.Product
	var status string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, inventory, reserved, status, created_at, updated_at
		FROM products WHERE id = ?`, productID,
	).Scan(&p.ID, &p.Name, &p.Inventory, &p.Reserved, &status, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product %d: %w", productID, err)
	}

	p.Status = model.ProductStatus(status)
	return &p, nil
}

func (t *sqliteTx) ConditionalIncrementReserved(ctx context.Context, productID int64, delta int) (int64, error) {
	// Single guarded UPDATE: only applies if the new reserved value stays
	// within [0, inventory]. Zero rows affected means the guard failed.
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET reserved = reserved + ?, updated_at = ?
		WHERE id = ? AND reserved + ? >= 0 AND reserved + ? <= inventory`,
		delta, time.Now().UTC(), productID, delta, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update reserved for product %d: %w", productID, err)
	}
	return result.RowsAffected()
}

func (t *sqliteTx) GetCartItem(ctx context.Context, sessionID string, productID int64) (*model.CartItem, error) {
	var item model.CartItem
	err := t.tx.QueryRowContext(ctx, `
		SELECT session_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE session_id = ? AND product_id = ?`, sessionID, productID,
	).Scan(&item.SessionID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cart item: %w", err)
	}
	return &item, nil
}

func (t *sqliteTx) UpsertCartItem(ctx context.Context, item model.CartItem) error {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (session_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, product_id) DO UPDATE SET
			quantity = excluded.quantity,
			updated_at = excluded.updated_at`,
		item.SessionID, item.ProductID, item.Quantity, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteCartItem(ctx context.Context, sessionID string, productID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE session_id = ? AND product_id = ?`, sessionID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListSessionItems(ctx context.Context, sessionID string) ([]model.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT session_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE session_id = ? ORDER BY product_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (t *sqliteTx) GetSession(ctx context.Context, sessionID string) (*model.CartSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions WHERE id = ?`, sessionID))
}

func (t *sqliteTx) FindActiveSessionByUser(ctx context.Context, userID string, now time.Time) (*model.CartSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions
		WHERE user_id = ? AND status = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		userID, model.SessionStatusActive, now.UTC()))
}

func (t *sqliteTx) CreateSession(ctx context.Context, session model.CartSession) error {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_sessions (id, user_id, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Status, session.ExpiresAt.UTC(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE cart_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListReclaimableSessions(ctx context.Context, now time.Time, limit int) ([]model.CartSession, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions
		WHERE (status = ? AND expires_at < ?) OR status = ?
		ORDER BY expires_at LIMIT ?`,
		model.SessionStatusActive, now.UTC(), model.SessionStatusConverted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reclaimable sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.CartSession
	for rows.Next() {
		var sess model.CartSession
		var status string
		if err := rows.Scan(&sess.ID, &sess.UserID, &status, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.Status = model.SessionStatus(status)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.CartSession, error) {
	var sess model.CartSession
	var status string
	err := row.Scan(&sess.ID, &sess.UserID, &status, &sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.Status = model.SessionStatus(status)
	return &sess, nil
}

func scanItems(rows *sql.Rows) ([]model.CartItem, error) {
	var items []model.CartItem
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.SessionID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
