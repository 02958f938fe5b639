package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	App     AppConfig
	Store   StoreConfig
	Cache   CacheConfig
	Cart    CartConfig
	Cleanup CleanupConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"snackstore-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// StoreConfig holds inventory store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite or mysql

	// SQLite settings
	Path string `envconfig:"STORE_SQLITE_PATH" default:"./data/snackstore.db"`

	// MySQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"3306"`
	Name     string `envconfig:"STORE_DB_NAME" default:"snackstore"`
	User     string `envconfig:"STORE_DB_USER" default:"root"`
	Password string `envconfig:"STORE_DB_PASS" default:""`

	// LockWait bounds how long a transaction waits for a row lock before
	// failing with a retryable conflict.
	LockWait time.Duration `envconfig:"STORE_LOCK_WAIT" default:"5s"`

	// TxTimeout bounds the total execution time of a single transaction.
	TxTimeout time.Duration `envconfig:"STORE_TX_TIMEOUT" default:"10s"`
}

// CacheConfig holds stock snapshot cache settings.
type CacheConfig struct {
	Type        string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	SnapshotTTL time.Duration `envconfig:"CACHE_SNAPSHOT_TTL" default:"30s"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// CartConfig holds reservation engine settings.
type CartConfig struct {
	// SessionTTL is the fixed lifetime of a cart session from creation.
	SessionTTL time.Duration `envconfig:"CART_SESSION_TTL" default:"30m"`

	// MaxQuantity caps the units of one product a single cart may hold.
	MaxQuantity int `envconfig:"CART_MAX_QUANTITY" default:"99"`
}

// CleanupConfig holds expiry sweeper settings.
type CleanupConfig struct {
	Interval     time.Duration `envconfig:"CLEANUP_INTERVAL" default:"5m"`
	InitialDelay time.Duration `envconfig:"CLEANUP_INITIAL_DELAY" default:"1m"`
	BatchLimit   int           `envconfig:"CLEANUP_BATCH_LIMIT" default:"100"`
}

// MySQLDSN returns the MySQL data source name. The lock wait bound rides
// along as a session variable so every pooled connection gets it.
func (s *StoreConfig) MySQLDSN() string {
	lockWait := int(s.LockWait.Seconds())
	if lockWait < 1 {
		lockWait = 1
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&innodb_lock_wait_timeout=%d",
		s.User, s.Password, s.Host, s.Port, s.Name, lockWait)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
