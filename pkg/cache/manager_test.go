package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client, skipping when Redis is
// not reachable locally.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestManager_SetGet(t *testing.T) {
	redisClient := setupTestRedis(t)
	m := NewManager(redisClient)
	ctx := context.Background()

	key := Key{URL: "https://school.instructure.com/api/v1/courses"}
	entry := &Entry{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`[{"id":1}]`),
		CachedAt:   time.Now(),
		Expires:    time.Now().Add(time.Minute),
	}

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", got.StatusCode)
	}
	if string(got.Body) != `[{"id":1}]` {
		t.Errorf("Body = %s, want original body", got.Body)
	}
}

func TestManager_GetMiss(t *testing.T) {
	redisClient := setupTestRedis(t)
	m := NewManager(redisClient)

	_, err := m.Get(context.Background(), Key{URL: "https://nowhere/x"})
	if err != ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_ExpiredEntryIsAMiss(t *testing.T) {
	redisClient := setupTestRedis(t)
	m := NewManager(redisClient)
	ctx := context.Background()

	key := Key{URL: "https://school.instructure.com/api/v1/old"}
	shortLived := &Entry{
		StatusCode: 200,
		Body:       []byte(`{}`),
		CachedAt:   time.Now(),
		Expires:    time.Now().Add(50 * time.Millisecond),
	}

	if err := m.Set(ctx, key, shortLived); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrCacheMiss for expired entry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	redisClient := setupTestRedis(t)
	m := NewManager(redisClient)
	ctx := context.Background()

	key := Key{URL: "https://school.instructure.com/api/v1/tmp"}
	entry := &Entry{
		StatusCode: 200,
		Body:       []byte(`{}`),
		CachedAt:   time.Now(),
		Expires:    time.Now().Add(time.Minute),
	}

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() after Delete() error = %v, want ErrCacheMiss", err)
	}
}
