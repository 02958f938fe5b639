package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snackstore-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

// MySQLStore implements Store using MySQL/InnoDB. Multiple engine instances
// may share one database; correctness relies on the database's transaction
// isolation, never on in-process locks.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a MySQL-backed inventory store. The DSN should carry
// innodb_lock_wait_timeout so lock waits stay bounded (see config.MySQLDSN).
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createMySQLTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info().Msg("MySQL store initialized")
	return &MySQLStore{db: db}, nil
}

func createMySQLTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			inventory INT NOT NULL DEFAULT 0,
			reserved INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS cart_sessions (
			id CHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_sessions_user (user_id, status),
			INDEX idx_sessions_expiry (status, expires_at)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			session_id CHAR(36) NOT NULL,
			product_id BIGINT NOT NULL,
			quantity INT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, product_id),
			INDEX idx_items_product (product_id)
		) ENGINE=InnoDB`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// BeginTx opens a serializable transaction.
func (s *MySQLStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &mysqlTx{tx: tx}, nil
}

// GetStockSnapshot reads a product's stock outside any transaction.
func (s *MySQLStore) GetStockSnapshot(ctx context.Context, productID int64) (*model.StockSnapshot, error) {
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
func (s *MySQLStore) GetSession(ctx context.Context, sessionID string) (*model.CartSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions WHERE id = ?`, sessionID))
}

// ListCartItems returns the items of a session.
func (s *MySQLStore) ListCartItems(ctx context.Context, sessionID string) ([]model.CartItem, error) {
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
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// mysqlTx implements Tx on a MySQL transaction.
type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
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

func (t *mysqlTx) ConditionalIncrementReserved(ctx context.Context, productID int64, delta int) (int64, error) {
	// Single guarded UPDATE: only applies if the new reserved value stays
	// within [0, inventory]. Zero rows affected means the guard failed.
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET reserved = reserved + ?
		WHERE id = ? AND reserved + ? >= 0 AND reserved + ? <= inventory`,
		delta, productID, delta, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update reserved for product %d: %w", productID, err)
	}
	return result.RowsAffected()
}

func (t *mysqlTx) GetCartItem(ctx context.Context, sessionID string, productID int64) (*model.CartItem, error) {
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

func (t *mysqlTx) UpsertCartItem(ctx context.Context, item model.CartItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (session_id, product_id, quantity)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`,
		item.SessionID, item.ProductID, item.Quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return nil
}

func (t *mysqlTx) DeleteCartItem(ctx context.Context, sessionID string, productID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE session_id = ? AND product_id = ?`, sessionID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

func (t *mysqlTx) ListSessionItems(ctx context.Context, sessionID string) ([]model.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT session_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE session_id = ? ORDER BY product_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (t *mysqlTx) GetSession(ctx context.Context, sessionID string) (*model.CartSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions WHERE id = ?`, sessionID))
}

func (t *mysqlTx) FindActiveSessionByUser(ctx context.Context, userID string, now time.Time) (*model.CartSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, expires_at, created_at, updated_at
		FROM cart_sessions
		WHERE user_id = ? AND status = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		userID, model.SessionStatusActive, now.UTC()))
}

func (t *mysqlTx) CreateSession(ctx context.Context, session model.CartSession) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_sessions (id, user_id, status, expires_at)
		VALUES (?, ?, ?, ?)`,
		session.ID, session.UserID, session.Status, session.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE cart_sessions SET status = ? WHERE id = ?`, status, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

func (t *mysqlTx) ListReclaimableSessions(ctx context.Context, now time.Time, limit int) ([]model.CartSession, error) {
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

func (t *mysqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *mysqlTx) Rollback() error {
	return t.tx.Rollback()
}
