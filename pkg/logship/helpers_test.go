package logship

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// collector is an httptest server that records decoded batches.
type collector struct {
	*httptest.Server

	mu      sync.Mutex
	batches [][]string
	headers []http.Header
	status  int
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{status: http.StatusOK}
	c.Server = httptest.NewServer(http.HandlerFunc(c.handle))
	t.Cleanup(c.Close)
	return c
}

func (c *collector) handle(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body = zr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var msgs []string
	if err := msgpack.Unmarshal(raw, &msgs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	status := c.status
	if status/100 == 2 {
		c.batches = append(c.batches, msgs)
		c.headers = append(c.headers, r.Header.Clone())
	}
	c.mu.Unlock()

	w.WriteHeader(status)
}

func (c *collector) Batches() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string{}, c.batches...)
}

func (c *collector) Headers() []http.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]http.Header{}, c.headers...)
}

func (c *collector) Messages() []string {
	var out []string
	for _, b := range c.Batches() {
		out = append(out, b...)
	}
	return out
}

func (c *collector) SetStatus(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func testConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.APIKey = "MYKEY"
	cfg.Endpoint = endpoint
	cfg.FlushInterval = time.Hour
	cfg.ShutdownPollInterval = 20 * time.Millisecond
	return cfg
}

// blockingDialer opens connections whose Send waits on release.
type blockingDialer struct {
	mu      sync.Mutex
	opened  int
	sent    []*Request
	release chan struct{}
	fail    bool
}

func newBlockingDialer() *blockingDialer {
	return &blockingDialer{release: make(chan struct{})}
}

func (d *blockingDialer) Open(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	return blockingConn{d}, nil
}

func (d *blockingDialer) Sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type blockingConn struct{ d *blockingDialer }

func (c blockingConn) Send(ctx context.Context, req *Request) error {
	select {
	case <-c.d.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.fail {
		return errors.New("server returned 503")
	}
	c.d.sent = append(c.d.sent, req)
	return nil
}

func (blockingConn) Close() error { return nil }

// recordingHandler records every event.
type recordingHandler struct {
	BaseEventHandler
	mu      sync.Mutex
	states  []StateChangeEvent
	drops   []DropEvent
	success []SendSuccessEvent
	errs    []SendErrorEvent
}

func (h *recordingHandler) OnStateChange(e StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e)
}

func (h *recordingHandler) OnDrop(e DropEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drops = append(h.drops, e)
}

func (h *recordingHandler) OnSendSuccess(e SendSuccessEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.success = append(h.success, e)
}

func (h *recordingHandler) OnSendError(e SendErrorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, e)
}

func (h *recordingHandler) States() []StateChangeEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]StateChangeEvent{}, h.states...)
}

func (h *recordingHandler) Drops() []DropEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]DropEvent{}, h.drops...)
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// backoffSkippingClock fires retry backoff waits at once and keeps every
// other timer real.
type backoffSkippingClock struct {
	clock.Clock
}

func newBackoffSkippingClock() backoffSkippingClock {
	return backoffSkippingClock{Clock: clock.New()}
}

func (c backoffSkippingClock) After(d time.Duration) <-chan time.Time {
	if d >= time.Second && d <= 30*time.Second {
		ch := make(chan time.Time, 1)
		ch <- c.Now()
		return ch
	}
	return c.Clock.After(d)
}
