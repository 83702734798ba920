package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// received is one request observed by the mock remote API.
type received struct {
	Path        string
	ContentType string
	Body        string
	ArrivedAt   time.Time
}

// mockAPI answers requests with scripted status codes, in arrival order.
type mockAPI struct {
	mu       sync.Mutex
	requests []received
	statuses []int
	delays   []time.Duration
}

func newMockAPI(t *testing.T, statuses []int, delays []time.Duration) (*mockAPI, *httptest.Server) {
	t.Helper()
	m := &mockAPI{statuses: statuses, delays: delays}
	srv := httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(srv.Close)
	return m, srv
}

func (m *mockAPI) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, received{
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
		ArrivedAt:   time.Now(),
	})
	status := http.StatusOK
	if n < len(m.statuses) {
		status = m.statuses[n]
	}
	var delay time.Duration
	if n < len(m.delays) {
		delay = m.delays[n]
	}
	m.mu.Unlock()

	time.Sleep(delay)
	w.WriteHeader(status)
	if status >= 200 && status < 300 {
		io.WriteString(w, "Success!")
	} else {
		io.WriteString(w, "Fail!")
	}
}

func (m *mockAPI) Requests() []received {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]received, len(m.requests))
	copy(out, m.requests)
	return out
}

// captureSink collects records handed to sinks.
type captureSink struct {
	mu      sync.Mutex
	records []Record
}

func (c *captureSink) RecordOutcome(_ context.Context, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func (c *captureSink) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func decodeBody(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}
