package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"snackstore-api/internal/cache"
	"snackstore-api/internal/config"
	"snackstore-api/internal/handler"
	"snackstore-api/internal/notifier"
	"snackstore-api/internal/repository"
	"snackstore-api/internal/router"
	"snackstore-api/internal/service"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.MustLoad()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()
	if cfg.App.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Str("env", cfg.App.Environment).Str("version", cfg.App.Version).Msg("starting snackstore API")

	// Inventory store
	var store repository.Store
	switch cfg.Store.Type {
	case "mysql":
		mysqlStore, err := repository.NewMySQLStore(cfg.Store.MySQLDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize MySQL store")
		}
		store = mysqlStore
	default: // sqlite
		sqliteStore, err := repository.NewSQLiteStore(cfg.Store.Path, cfg.Store.LockWait)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize SQLite store")
		}
		store = sqliteStore
	}
	defer store.Close()

	// Snapshot cache backend
	var backend cache.Cache
	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to memory cache")
			backend = cache.NewMemoryCache()
		} else {
			log.Info().Msg("Redis snapshot cache initialized")
			backend = redisCache
		}
	} else {
		backend = cache.NewMemoryCache()
	}
	defer backend.Close()

	snapshots := cache.NewStockCache(store, backend, cfg.Cache.SnapshotTTL)

	// Stock notification hub
	hub := notifier.NewHub(snapshots)

	// Reservation engine
	engine := service.NewReservationService(store, hub, service.ReservationConfig{
		SessionTTL:  cfg.Cart.SessionTTL,
		MaxQuantity: cfg.Cart.MaxQuantity,
		TxTimeout:   cfg.Store.TxTimeout,
	})

	// Expiry sweeper
	sweeper := service.NewCleanupScheduler(engine, service.CleanupConfig{
		Interval:     cfg.Cleanup.Interval,
		InitialDelay: cfg.Cleanup.InitialDelay,
		BatchLimit:   cfg.Cleanup.BatchLimit,
	})
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP surface
	r := router.New(router.Config{
		Handler:      handler.New(store, cfg.App.Version),
		CartHandler:  handler.NewCartHandler(engine),
		StockHandler: handler.NewStockHandler(snapshots, hub),
		StockChannel: handler.NewStockChannelHandler(hub),
		AdminHandler: handler.NewAdminHandler(sweeper),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
