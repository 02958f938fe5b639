package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"snackstore-api/internal/metrics"

	"github.com/rs/zerolog/log"
)

// CleanupConfig holds configuration for the expiry sweeper.
type CleanupConfig struct {
	// Interval is how often the sweep runs.
	Interval time.Duration

	// InitialDelay postpones the first sweep after startup.
	InitialDelay time.Duration

	// BatchLimit caps how many sessions one sweep reclaims.
	BatchLimit int

	// RunTimeout bounds one whole sweep.
	RunTimeout time.Duration
}

// DefaultCleanupConfig returns default sweeper configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:     5 * time.Minute,
		InitialDelay: 1 * time.Minute,
		BatchLimit:   100,
		RunTimeout:   5 * time.Minute,
	}
}

// CleanupScheduler periodically reclaims expired cart sessions through the
// reservation engine. A tick that fires while a sweep is still running is
// skipped, never queued; a store outage is logged and retried next tick.
type CleanupScheduler struct {
	engine *ReservationService
	config CleanupConfig

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	// inFlight is the single-flight guard for overlapping ticks.
	inFlight atomic.Bool
}

// NewCleanupScheduler creates a new expiry sweeper.
func NewCleanupScheduler(engine *ReservationService, config CleanupConfig) *CleanupScheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 100
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 5 * time.Minute
	}

	return &CleanupScheduler{
		engine: engine,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Info().
		Dur("interval", s.config.Interval).
		Int("batch_limit", s.config.BatchLimit).
		Msg("cleanup scheduler started")

	if s.config.InitialDelay > 0 {
		go func() {
			select {
			case <-time.After(s.config.InitialDelay):
				s.runSweep()
			case <-s.stopCh:
			}
		}()
	}

	go s.run()
}

func (s *CleanupScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runSweep()
		case <-s.stopCh:
			log.Info().Msg("cleanup scheduler stopped")
			return
		}
	}
}

// runSweep performs one sweep unless one is already in flight.
func (s *CleanupScheduler) runSweep() {
	if !s.inFlight.CompareAndSwap(false, true) {
		log.Warn().Msg("previous sweep still running, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	cleaned, err := s.engine.CleanupExpiredSessions(ctx, s.config.BatchLimit)
	if err != nil {
		// Store outage or similar: retry on the next tick, never crash.
		metrics.CleanupRuns.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("cleanup sweep failed")
		return
	}

	metrics.CleanupRuns.WithLabelValues("success").Inc()
	metrics.CleanupSessions.Add(float64(cleaned))
	if cleaned > 0 {
		log.Info().Int("sessions", cleaned).Msg("reclaimed expired cart sessions")
	}
}

// Stop stops the sweep loop.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate sweep, subject to the same single-flight
// guard. Returns the number of sessions reclaimed.
func (s *CleanupScheduler) RunNow(ctx context.Context) (int, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()
	return s.engine.CleanupExpiredSessions(ctx, s.config.BatchLimit)
}
