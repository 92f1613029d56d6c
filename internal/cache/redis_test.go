package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/csvguard/internal/core"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

type memStore struct {
	mu      sync.Mutex
	scripts map[string]string
	lookups int
}

func newMemStore() *memStore {
	return &memStore{scripts: make(map[string]string)}
}

func (m *memStore) Lookup(_ context.Context, fp string) (*core.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	body, ok := m.scripts[fp]
	if !ok {
		return nil, nil
	}
	return &core.Script{Fingerprint: fp, Body: body}, nil
}

func (m *memStore) Store(_ context.Context, fp, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[fp] = body
	return nil
}

// deadClient points at a port nothing listens on.
func deadClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestScriptCache_DegradesWithoutRedis(t *testing.T) {
	ctx := context.Background()
	client := deadClient()
	defer client.Close()

	store := newMemStore()
	c := NewScriptCache(client, store, time.Minute, "test:")

	if got, err := c.Lookup(ctx, "fp"); err != nil || got != nil {
		t.Fatalf("Lookup(miss) = %v, %v; want nil, nil", got, err)
	}
	if err := c.Store(ctx, "fp", "body"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := c.Lookup(ctx, "fp")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil || got.Body != "body" {
		t.Errorf("Lookup = %+v, want body from the store", got)
	}
}

func TestLocker_FailsWithoutRedis(t *testing.T) {
	client := deadClient()
	defer client.Close()

	l := NewLocker(client, "test:", time.Second, 200*time.Millisecond)
	unlock, err := l.Lock(context.Background(), "fp")
	if err == nil {
		unlock()
		t.Fatal("Lock succeeded without Redis, want error")
	}
	if unlock != nil {
		t.Error("unlock should be nil when the lock was not obtained")
	}
}

func TestLocker_CanceledContext(t *testing.T) {
	client := deadClient()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLocker(client, "test:", time.Second, time.Second)
	if _, err := l.Lock(ctx, "fp"); err == nil {
		t.Error("Lock with canceled context should fail")
	}
}

func liveClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestScriptCache_ReadThrough(t *testing.T) {
	client := liveClient(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("csvguard-test-%d:", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(ctx, prefix+"script:fp") })

	store := newMemStore()
	store.scripts["fp"] = "from store"
	c := NewScriptCache(client, store, time.Minute, prefix)

	for i := 0; i < 3; i++ {
		got, err := c.Lookup(ctx, "fp")
		if err != nil || got == nil || got.Body != "from store" {
			t.Fatalf("Lookup #%d = %+v, %v", i, got, err)
		}
	}
	if store.lookups != 1 {
		t.Errorf("store lookups = %d, want 1", store.lookups)
	}

	if err := c.Store(ctx, "fp", "updated"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, _ := c.Lookup(ctx, "fp")
	if got.Body != "updated" {
		t.Errorf("Body after Store = %q, want updated", got.Body)
	}
}

func TestLocker_Serializes(t *testing.T) {
	client := liveClient(t)
	prefix := fmt.Sprintf("csvguard-test-%d:", time.Now().UnixNano())
	l := NewLocker(client, prefix, 5*time.Second, 3*time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "fp")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan time.Time, 1)
	go func() {
		u, err := l.Lock(ctx, "fp")
		if err == nil {
			acquired <- time.Now()
			u()
		}
	}()

	time.Sleep(400 * time.Millisecond)
	released := time.Now()
	unlock()

	select {
	case at := <-acquired:
		if at.Before(released) {
			t.Error("second holder acquired the lock before it was released")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}

func TestLocker_WaitExpires(t *testing.T) {
	client := liveClient(t)
	prefix := fmt.Sprintf("csvguard-test-%d:", time.Now().UnixNano())
	l := NewLocker(client, prefix, 5*time.Second, 300*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "fp")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	if _, err := l.Lock(ctx, "fp"); !errors.Is(err, redislock.ErrNotObtained) {
		t.Errorf("second Lock: got %v, want ErrNotObtained", err)
	}
}
