//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/coursekit/canvas-client/internal/testutil"
	"github.com/coursekit/canvas-client/pkg/canvas"
	"github.com/coursekit/canvas-client/pkg/pagination"
	"github.com/coursekit/canvas-client/pkg/seq"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func newCachedClient(t *testing.T, mock *testutil.MockCanvas, redisClient *redis.Client) *canvas.Client {
	t.Helper()

	cfg := canvas.DefaultConfig(mock.URL()+"/api/v1", "test-token")
	cfg.Redis = redisClient
	cfg.CacheTTL = time.Minute
	cfg.RateLimitInterval = 100 * time.Millisecond

	client, err := canvas.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestIntegration_ResponseCacheAvoidsSecondRequest(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Respond("/api/v1/courses/1", testutil.MockResponse{Body: `{"id":1,"name":"Biology"}`})

	client := newCachedClient(t, mock, redisClient)
	ctx := context.Background()

	first, err := client.Get(ctx, "courses/1", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	second, err := client.Get(ctx, "courses/1", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got := mock.Requests("/api/v1/courses/1"); got != 1 {
		t.Errorf("requests = %d, want 1 (second served from cache)", got)
	}
	if first.Text != second.Text {
		t.Errorf("cached body = %q, want %q", second.Text, first.Text)
	}
}

func TestIntegration_CachedPagination(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Paginate("/api/v1/numbers", []string{`[1,2,3]`, `[4,5]`})

	client := newCachedClient(t, mock, redisClient)
	pager := pagination.NewPager(client)
	ctx := context.Background()

	items, err := seq.Collect(ctx, pager.Items("numbers", nil))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("len(items) = %d, want 5", len(items))
	}

	// A second traversal is served from cache, headers included, so
	// pagination still finds the next links.
	again, err := seq.Collect(ctx, pager.Items("numbers", nil))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(again) != 5 {
		t.Fatalf("len(again) = %d, want 5", len(again))
	}
	if got := mock.Requests("/api/v1/numbers"); got != 2 {
		t.Errorf("requests = %d, want 2 (second traversal cached)", got)
	}
}
