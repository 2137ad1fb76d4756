// Package testutil provides a mock upstream registry server for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockRegistry is an httptest server with per-path handlers and request
// counting. Unregistered paths return 404.
type MockRegistry struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int
}

// NewMockRegistry starts the server. Call Close when done.
func NewMockRegistry() *MockRegistry {
	m := &MockRegistry{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

func (m *MockRegistry) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.counts[r.URL.Path]++
	handler, ok := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

// Handle registers a handler for an exact path.
func (m *MockRegistry) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// HandleJSON registers a handler returning a fixed JSON payload.
func (m *MockRegistry) HandleJSON(path, payload string) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	})
}

// RequestCount returns how many requests hit the path, query ignored.
func (m *MockRegistry) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// TotalRequests returns the request count across all paths.
func (m *MockRegistry) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

// Reset clears handlers and counts.
func (m *MockRegistry) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[string]http.HandlerFunc)
	m.counts = make(map[string]int)
}

// URL returns the server's base URL.
func (m *MockRegistry) URL() string {
	return m.Server.URL
}

// Close shuts the server down.
func (m *MockRegistry) Close() {
	m.Server.Close()
}
