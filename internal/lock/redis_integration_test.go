//go:build integration

package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Integration tests run against a real Redis
// Run with: REDIS_URL=redis://localhost:6379/15 go test -tags=integration ./internal/lock

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func uniqueKey(name string) string {
	return "it:" + name + ":" + time.Now().Format("150405.000000000")
}

func TestIntegration_RedisLockIsExclusive(t *testing.T) {
	locker := NewRedis(redisClient(t), 5*time.Second)
	key := uniqueKey("exclusive")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, key)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			if err := unlock(context.Background()); err != nil {
				t.Errorf("unlock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestIntegration_RedisLockTimesOut(t *testing.T) {
	locker := NewRedis(redisClient(t), 5*time.Second)
	key := uniqueKey("timeout")

	unlock, err := locker.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, key); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected ErrNotObtained, got %v", err)
	}
}

func TestIntegration_RedisLockReleaseAndExpiry(t *testing.T) {
	locker := NewRedis(redisClient(t), 500*time.Millisecond)
	key := uniqueKey("expiry")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := unlock(ctx); err != nil {
		t.Errorf("second unlock should be a no-op, got %v", err)
	}

	// A holder that never unlocks is evicted by the TTL.
	if _, err := locker.Lock(ctx, key); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	start := time.Now()
	unlock, err = locker.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock should be obtainable after TTL: %v", err)
	}
	defer unlock(context.Background())
	if waited := time.Since(start); waited < 300*time.Millisecond {
		t.Errorf("second holder got the lock after %v, before the first expired", waited)
	}
}
