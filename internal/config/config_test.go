package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	require.Equal(t, "sqlite", cfg.Store.Type)
	require.Equal(t, 5*time.Second, cfg.Store.LockWait)
	require.Equal(t, 10*time.Second, cfg.Store.TxTimeout)
	require.Equal(t, "memory", cfg.Cache.Type)
	require.Equal(t, 30*time.Second, cfg.Cache.SnapshotTTL)
	require.Equal(t, 30*time.Minute, cfg.Cart.SessionTTL)
	require.Equal(t, 99, cfg.Cart.MaxQuantity)
	require.Equal(t, 5*time.Minute, cfg.Cleanup.Interval)
	require.Equal(t, 100, cfg.Cleanup.BatchLimit)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_TYPE", "mysql")
	t.Setenv("CART_SESSION_TTL", "45m")
	t.Setenv("CACHE_TYPE", "redis")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "mysql", cfg.Store.Type)
	require.Equal(t, 45*time.Minute, cfg.Cart.SessionTTL)
	require.Equal(t, "redis", cfg.Cache.Type)
}

func TestMySQLDSNCarriesLockWait(t *testing.T) {
	store := StoreConfig{
		Host: "db.internal", Port: 3306, Name: "snackstore",
		User: "app", Password: "secret",
		LockWait: 5 * time.Second,
	}
	require.Equal(t,
		"app:secret@tcp(db.internal:3306)/snackstore?parseTime=true&innodb_lock_wait_timeout=5",
		store.MySQLDSN())

	// Sub-second waits clamp to the MySQL minimum of one second.
	store.LockWait = 100 * time.Millisecond
	require.Contains(t, store.MySQLDSN(), "innodb_lock_wait_timeout=1")
}
