// Package testutil provides testing utilities for the Canvas client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RateLimitBody is the body Canvas sends with a rate-limit 403.
const RateLimitBody = "403 Forbidden (Rate Limit Exceeded)"

// MockResponse defines the behavior for one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockCanvas is a configurable mock Canvas API server for testing.
type MockCanvas struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	RequestsByPath    map[string]int
	LastRequestHeader http.Header
}

// NewMockCanvas creates a new mock Canvas server.
func NewMockCanvas() *MockCanvas {
	mock := &MockCanvas{
		handlers:       make(map[string]http.HandlerFunc),
		RequestsByPath: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.RequestsByPath[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"errors":[{"message":"The specified resource does not exist."}]}`)
	}))

	return mock
}

// URL returns the base URL of the mock server.
func (m *MockCanvas) URL() string {
	return m.server.URL
}

// Close shuts the mock server down.
func (m *MockCanvas) Close() {
	m.server.Close()
}

// Handle registers a custom handler for a path.
func (m *MockCanvas) Handle(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Respond registers a fixed response for a path.
func (m *MockCanvas) Respond(path string, resp MockResponse) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		fmt.Fprint(w, resp.Body)
	})
}

// RateLimitFirst makes a path answer the first n requests with a
// rate-limit 403 and every request after that with the given body.
func (m *MockCanvas) RateLimitFirst(path string, n int, body string) {
	var mu sync.Mutex
	count := 0
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		limited := count <= n
		mu.Unlock()

		if limited {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, RateLimitBody)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body)
	})
}

// Paginate registers a chain of pages under path. Page i links to page
// i+1 via a Link rel="next" header; the last page carries no next link.
// Page URLs after the first are `path?page=N`.
func (m *MockCanvas) Paginate(path string, pages []string) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			fmt.Sscanf(p, "%d", &page)
		}
		if page < 1 || page > len(pages) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if page < len(pages) {
			next := fmt.Sprintf("%s%s?page=%d", m.server.URL, path, page+1)
			last := fmt.Sprintf("%s%s?page=%d", m.server.URL, path, len(pages))
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next", <%s>; rel="last"`, next, last))
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, pages[page-1])
	})
}

// Requests returns the number of requests seen for a path.
func (m *MockCanvas) Requests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestsByPath[path]
}
