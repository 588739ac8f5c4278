package locking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"case_timeline_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestKeyedMutexSerializesSameCase(t *testing.T) {
	k := NewKeyedMutex()
	caseID := uuid.New()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), caseID)
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if k.held() != 0 {
		t.Fatalf("expected entries to be released, %d left", k.held())
	}
}

func TestKeyedMutexHonorsContext(t *testing.T) {
	k := NewKeyedMutex()
	caseID := uuid.New()

	unlock, err := k.Lock(context.Background(), caseID)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, caseID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Other cases are unaffected.
	other, err := k.Lock(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Lock() on other case error = %v", err)
	}
	other()

	unlock()
	unlock()
	if k.held() != 0 {
		t.Fatalf("expected entries to be released, %d left", k.held())
	}
}

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, ttl, logger.Discard())
	l.retryDelay = 5 * time.Millisecond
	return l, mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Minute)
	caseID := uuid.New()

	unlock, err := l.Lock(context.Background(), caseID)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !mr.Exists("casetimeline:lock:" + caseID.String()) {
		t.Fatalf("expected lock key to exist")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, caseID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while held, got %v", err)
	}

	unlock()
	if mr.Exists("casetimeline:lock:" + caseID.String()) {
		t.Fatalf("expected lock key to be deleted on release")
	}

	again, err := l.Lock(context.Background(), caseID)
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	again()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Second)
	caseID := uuid.New()
	key := "casetimeline:lock:" + caseID.String()

	unlock, err := l.Lock(context.Background(), caseID)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// The lock expires and another instance takes it.
	mr.FastForward(2 * time.Second)
	if err := mr.Set(key, "other-instance"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	unlock()
	got, err := mr.Get(key)
	if err != nil || got != "other-instance" {
		t.Fatalf("expected foreign lock to survive, got %q (%v)", got, err)
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	if _, err := NewRedisClient(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisClient("not a url"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}
