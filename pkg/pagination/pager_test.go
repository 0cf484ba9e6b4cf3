package pagination

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/coursekit/canvas-client/internal/testutil"
	"github.com/coursekit/canvas-client/pkg/canvas"
	"github.com/coursekit/canvas-client/pkg/seq"
)

func newTestPager(t *testing.T, mock *testutil.MockCanvas) *Pager {
	t.Helper()

	cfg := canvas.DefaultConfig(mock.URL()+"/api/v1", "test-token")
	cfg.DisableThrottling = true
	cfg.CacheTTL = time.Second

	client, err := canvas.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return NewPager(client)
}

func TestItems_FlattensPagesInOrder(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Paginate("/api/v1/numbers", []string{`[1,2,3]`, `[4,5]`})

	p := newTestPager(t, mock)

	items, err := seq.Collect(context.Background(), p.Items("numbers", nil))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{"1", "2", "3", "4", "5"}
	if len(items) != len(want) {
		t.Fatalf("len(items) = %d, want %d", len(items), len(want))
	}
	for i, w := range want {
		if string(items[i]) != w {
			t.Errorf("items[%d] = %s, want %s", i, items[i], w)
		}
	}
	if got := mock.Requests("/api/v1/numbers"); got != 2 {
		t.Errorf("requests = %d, want 2 (one per page)", got)
	}
}

func TestItems_NonListBodyFailsWithPaginationError(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Respond("/api/v1/profile", testutil.MockResponse{Body: `{"id":1,"name":"self"}`})

	p := newTestPager(t, mock)

	_, err := seq.Collect(context.Background(), p.Items("profile", nil))
	var pagErr *canvas.PaginationError
	if !errors.As(err, &pagErr) {
		t.Fatalf("Collect() error = %v, want *PaginationError", err)
	}
	if pagErr.Response.StatusCode != 200 {
		t.Errorf("StatusCode = %d, envelope must carry the offending page", pagErr.Response.StatusCode)
	}
}

func TestItems_SkipsEmptyPages(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Paginate("/api/v1/sparse", []string{`[1]`, `[]`, `[2]`})

	p := newTestPager(t, mock)

	items, err := seq.Collect(context.Background(), p.Items("sparse", nil))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
}

func TestPages_LazyFetch(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Paginate("/api/v1/numbers", []string{`[1]`, `[2]`, `[3]`})

	p := newTestPager(t, mock)
	ctx := context.Background()

	// Take(1) over three pages must fetch exactly one page.
	pages, err := seq.Collect(ctx, seq.Take(p.Pages("numbers", nil), 1))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("len(pages) = %d, want 1", len(pages))
	}
	if got := mock.Requests("/api/v1/numbers"); got != 1 {
		t.Errorf("requests = %d, unconsumed pages must not be fetched", got)
	}

	// Take(0) must not fetch at all.
	if _, err := seq.Collect(ctx, seq.Take(p.Pages("numbers", nil), 0)); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if got := mock.Requests("/api/v1/numbers"); got != 1 {
		t.Errorf("requests = %d, Take(0) must not invoke the producer", got)
	}
}

func TestPages_ParamsApplyToFirstRequestOnly(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()

	var queries []string
	mock.Handle("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", `<`+mock.URL()+`/api/v1/courses?page=2>; rel="next"`)
		}
		w.Write([]byte(`[]`))
	})

	p := newTestPager(t, mock)

	if _, err := seq.Collect(context.Background(), p.Pages("courses", canvas.Params{"per_page": 50})); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(queries) != 2 {
		t.Fatalf("queries = %v, want 2 requests", queries)
	}
	if queries[0] != "per_page=50" {
		t.Errorf("first query = %q, want original params", queries[0])
	}
	if queries[1] != "page=2" {
		t.Errorf("second query = %q, next URL is opaque and params are not re-merged", queries[1])
	}
}

func TestPages_EndsWithoutNextLink(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.Respond("/api/v1/single", testutil.MockResponse{Body: `[1]`})

	p := newTestPager(t, mock)

	pages, err := seq.Collect(context.Background(), p.Pages("single", nil))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(pages) != 1 {
		t.Errorf("len(pages) = %d, absence of next link is the natural end", len(pages))
	}
}
