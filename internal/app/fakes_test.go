package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bft-labs/logship/internal/codec"
	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// recordingLogger keeps every message logged at Warn or Error.
type recordingLogger struct {
	mockLogger
	mu     sync.Mutex
	errors []string
}

func (r *recordingLogger) Warn(msg string, fields ...ports.Field)  { r.add(msg) }
func (r *recordingLogger) Error(msg string, fields ...ports.Field) { r.add(msg) }

func (r *recordingLogger) add(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingLogger) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.errors...)
}

// fakeDialer hands out fakeConns that share one send function.
type fakeDialer struct {
	mu      sync.Mutex
	opened  int
	openErr error
	send    func(req *domain.Request) error
	sent    []*domain.Request
}

func (d *fakeDialer) Open(ctx context.Context) (ports.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened++
	return &fakeConn{dialer: d, id: d.opened}, nil
}

func (d *fakeDialer) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *fakeDialer) Sent() []*domain.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*domain.Request{}, d.sent...)
}

type fakeConn struct {
	dialer *fakeDialer
	id     int
	closed bool
}

func (c *fakeConn) Send(ctx context.Context, req *domain.Request) error {
	if c.closed {
		return errors.New("send on closed connection")
	}
	c.dialer.mu.Lock()
	send := c.dialer.send
	c.dialer.mu.Unlock()

	if send != nil {
		if err := send(req); err != nil {
			return err
		}
	}

	c.dialer.mu.Lock()
	c.dialer.sent = append(c.dialer.sent, req)
	c.dialer.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// recordingClock is a real clock whose After fires immediately and records
// the requested duration.
type recordingClock struct {
	clock.Clock
	mu     sync.Mutex
	sleeps []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{Clock: clock.New()}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.Clock.Now()
	return ch
}

func (c *recordingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration{}, c.sleeps...)
}

// recordingSink collects the requests handed to it.
type recordingSink struct {
	mu   sync.Mutex
	reqs []*domain.Request
	err  error
}

func (s *recordingSink) Sink(ctx context.Context, req *domain.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reqs = append(s.reqs, req)
	return nil
}

func (s *recordingSink) Requests() []*domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Request{}, s.reqs...)
}

func (s *recordingSink) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func testBuilder() *RequestBuilder {
	return NewRequestBuilder(BuilderConfig{
		URL:       "http://collector.test/frames",
		APIKey:    "MYKEY",
		UserAgent: "logship-go/test (HTTP)",
		Encoder:   codec.Msgpack{},
	})
}

func decodeBody(t *testing.T, req *domain.Request) []string {
	t.Helper()
	var out []string
	if err := msgpack.Unmarshal(req.Body, &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func newRequest(id string) *domain.Request {
	return &domain.Request{ID: id, Messages: 1}
}

// waitFor polls cond until it holds or the deadline passes.
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
