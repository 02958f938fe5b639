package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"snackstore-api/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCleanupScheduler_SweepsOnTick(t *testing.T) {
	store := newFakeStore()
	store.addProduct(1, 10, 0, model.ProductStatusActive)
	engine, _ := newTestEngine(store)

	base := time.Now()
	engine.SetClock(func() time.Time { return base })

	_, err := engine.AddToCart(context.Background(), AddToCartInput{ProductID: 1, Quantity: 4})
	require.NoError(t, err)

	engine.SetClock(func() time.Time { return base.Add(time.Hour) })

	scheduler := NewCleanupScheduler(engine, CleanupConfig{
		Interval:   10 * time.Millisecond,
		BatchLimit: 100,
		RunTimeout: time.Second,
	})
	scheduler.Start()
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		return store.product(1).Reserved == 0
	}, time.Second, 5*time.Millisecond, "ticker sweep should release the expired reservation")
}

func TestCleanupScheduler_RunNow(t *testing.T) {
	store := newFakeStore()
	store.addProduct(1, 10, 0, model.ProductStatusActive)
	engine, _ := newTestEngine(store)

	base := time.Now()
	engine.SetClock(func() time.Time { return base })

	_, err := engine.AddToCart(context.Background(), AddToCartInput{ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	engine.SetClock(func() time.Time { return base.Add(time.Hour) })

	scheduler := NewCleanupScheduler(engine, DefaultCleanupConfig())
	cleaned, err := scheduler.RunNow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)
	require.Equal(t, 0, store.product(1).Reserved)
}

func TestCleanupScheduler_SkipsOverlappingSweep(t *testing.T) {
	engine, _ := newTestEngine(newFakeStore())
	scheduler := NewCleanupScheduler(engine, DefaultCleanupConfig())

	// Simulate a sweep still in flight.
	require.True(t, scheduler.inFlight.CompareAndSwap(false, true))
	defer scheduler.inFlight.Store(false)

	cleaned, err := scheduler.RunNow(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, cleaned)
}

func TestCleanupScheduler_SurvivesStoreOutage(t *testing.T) {
	store := newFakeStore()
	store.addProduct(1, 10, 0, model.ProductStatusActive)
	engine, _ := newTestEngine(store)

	base := time.Now()
	engine.SetClock(func() time.Time { return base })
	_, err := engine.AddToCart(context.Background(), AddToCartInput{ProductID: 1, Quantity: 3})
	require.NoError(t, err)
	engine.SetClock(func() time.Time { return base.Add(time.Hour) })

	store.mu.Lock()
	store.beginErr = errors.New("store down")
	store.mu.Unlock()

	scheduler := NewCleanupScheduler(engine, CleanupConfig{
		Interval:   10 * time.Millisecond,
		BatchLimit: 100,
		RunTimeout: time.Second,
	})
	scheduler.Start()
	defer scheduler.Stop()

	// Let a few failing ticks pass, then bring the store back.
	time.Sleep(50 * time.Millisecond)
	store.mu.Lock()
	store.beginErr = nil
	store.mu.Unlock()

	require.Eventually(t, func() bool {
		return store.product(1).Reserved == 0
	}, time.Second, 5*time.Millisecond, "scheduler should recover once the store is back")
}

func TestCleanupScheduler_StopIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(newFakeStore())
	scheduler := NewCleanupScheduler(engine, DefaultCleanupConfig())
	scheduler.Start()
	scheduler.Stop()
	scheduler.Stop()
}
