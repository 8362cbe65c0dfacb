package logship

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDevice_FlushDeliversInOrder(t *testing.T) {
	c := newCollector(t)
	dev, err := New(testConfig(c.URL + "/frames"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer dev.Close()

	for _, m := range []string{"A", "B"} {
		if n, err := dev.Write([]byte(m)); err != nil || n != 1 {
			t.Fatalf("Write(%q) = %d, %v", m, n, err)
		}
	}
	if err := dev.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	batches := c.Batches()
	if len(batches) != 1 || !equalStrings(batches[0], []string{"A", "B"}) {
		t.Fatalf("collector got %v, want [[A B]]", batches)
	}

	h := c.Headers()[0]
	want := map[string]string{
		"Authorization": "Basic TVlLRVk=",
		"Content-Type":  "application/msgpack",
		"Accept":        "application/json",
		"User-Agent":    UserAgent,
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	if h.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
}

func TestDevice_WriteCopiesInput(t *testing.T) {
	c := newCollector(t)
	dev, _ := New(testConfig(c.URL))
	defer dev.Close()

	buf := []byte("first")
	dev.Write(buf)
	copy(buf, "XXXXX")

	if err := dev.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := c.Messages(); !equalStrings(got, []string{"first"}) {
		t.Errorf("collector got %v, want [first]", got)
	}
}

func TestDevice_FlushEmpty(t *testing.T) {
	c := newCollector(t)
	dev, _ := New(testConfig(c.URL))
	defer dev.Close()

	if err := dev.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n := len(c.Batches()); n != 0 {
		t.Errorf("empty flush sent %d requests", n)
	}
}

func TestDevice_CloseDeliversPendingMessage(t *testing.T) {
	c := newCollector(t)
	dev, _ := New(testConfig(c.URL))

	dev.Write([]byte("only"))
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	batches := c.Batches()
	if len(batches) != 1 || !equalStrings(batches[0], []string{"only"}) {
		t.Errorf("collector got %v, want [[only]]", batches)
	}
	if got := dev.Stats().Delivered; got != 1 {
		t.Errorf("Stats().Delivered = %d, want 1", got)
	}
}

func TestDevice_SizeTriggerFlushesWithinWrite(t *testing.T) {
	c := newCollector(t)
	cfg := testConfig(c.URL)
	cfg.BatchSize = 2
	cfg.Synchronous = true
	dev, _ := New(cfg)
	defer dev.Close()

	dev.Write([]byte("A"))
	if n := len(c.Batches()); n != 0 {
		t.Fatalf("collector got %d requests below batch size", n)
	}

	dev.Write([]byte("B"))
	batches := c.Batches()
	if len(batches) != 1 || !equalStrings(batches[0], []string{"A", "B"}) {
		t.Fatalf("collector got %v right after second Write, want [[A B]]", batches)
	}
	if dev.Status() != StateStopped {
		t.Errorf("Status() = %v, want Stopped without continuous flushing", dev.Status())
	}
}

func TestDevice_IntervalFlush(t *testing.T) {
	c := newCollector(t)
	cfg := testConfig(c.URL)
	cfg.FlushInterval = 30 * time.Millisecond
	dev, _ := New(cfg)
	defer dev.Close()

	dev.Write([]byte("tick"))

	if !waitFor(3*time.Second, func() bool { return len(c.Messages()) == 1 }) {
		t.Fatal("interval flush did not deliver the message")
	}
}

func TestDevice_DropPolicy(t *testing.T) {
	dialer := newBlockingDialer()
	handler := &recordingHandler{}
	cfg := testConfig("http://collector.invalid")
	cfg.BatchSize = 1
	cfg.QueueCapacity = 1
	cfg.QueuePolicy = QueuePolicyDrop
	dev, err := New(cfg, WithDialer(dialer), WithEventHandler(handler))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dev.Write([]byte("m1"))
	if !waitFor(2*time.Second, func() bool { s := dev.Stats(); return s.InFlight == 1 && s.Queued == 0 }) {
		t.Fatalf("first request never went in flight: %+v", dev.Stats())
	}

	dev.Write([]byte("m2"))
	dev.Write([]byte("m3"))

	stats := dev.Stats()
	if stats.Queued != 1 || stats.Dropped != 1 {
		t.Errorf("Stats() = %+v, want Queued 1, Dropped 1", stats)
	}
	if drops := handler.Drops(); len(drops) != 1 || drops[0].Messages != 1 {
		t.Errorf("drop events = %v, want one", drops)
	}

	close(dialer.release)
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if dialer.Sent() != 2 {
		t.Errorf("delivered %d requests, want 2", dialer.Sent())
	}
}

func TestDevice_BlockPolicyAppliesBackpressure(t *testing.T) {
	dialer := newBlockingDialer()
	cfg := testConfig("http://collector.invalid")
	cfg.BatchSize = 1
	cfg.QueueCapacity = 1
	dev, _ := New(cfg, WithDialer(dialer))

	dev.Write([]byte("m1"))
	if !waitFor(2*time.Second, func() bool { return dev.Stats().InFlight == 1 }) {
		t.Fatal("first request never went in flight")
	}
	dev.Write([]byte("m2"))

	done := make(chan struct{})
	go func() {
		dev.Write([]byte("m3"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Write returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(dialer.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write still blocked after the worker drained the queue")
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if dialer.Sent() != 3 {
		t.Errorf("delivered %d requests, want 3", dialer.Sent())
	}
	if dev.Stats().Dropped != 0 {
		t.Errorf("Dropped = %d under block policy", dev.Stats().Dropped)
	}
}

func TestDevice_CloseTimeout(t *testing.T) {
	dialer := newBlockingDialer()
	dialer.fail = true
	close(dialer.release)

	cfg := testConfig("http://collector.invalid")
	cfg.ShutdownAttempts = 2
	dev, _ := New(cfg, WithDialer(dialer))

	dev.Write([]byte("never delivered"))

	start := time.Now()
	err := dev.Close()
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Close() error = %v, want ErrShutdownTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close() took %v", elapsed)
	}
	if dev.Stats().Failed == 0 {
		t.Error("no failed attempt recorded")
	}
}

func TestDevice_CloseIdempotentAndWriteAfterClose(t *testing.T) {
	c := newCollector(t)
	dev, _ := New(testConfig(c.URL))

	if err := dev.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	if n, err := dev.Write([]byte("late")); !errors.Is(err, ErrClosed) || n != 0 {
		t.Errorf("Write after Close = %d, %v; want 0, ErrClosed", n, err)
	}
	if err := dev.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close = %v, want ErrClosed", err)
	}
	if n := len(c.Batches()); n != 0 {
		t.Errorf("collector got %d requests from an unused device", n)
	}
}

func TestDevice_LifecycleEvents(t *testing.T) {
	c := newCollector(t)
	handler := &recordingHandler{}
	dev, _ := New(testConfig(c.URL), WithEventHandler(handler))

	if dev.Status() != StateStopped {
		t.Fatalf("Status() before Write = %v, want Stopped", dev.Status())
	}
	dev.Write([]byte("x"))
	if dev.Status() != StateRunning {
		t.Fatalf("Status() after Write = %v, want Running", dev.Status())
	}
	dev.Close()
	if dev.Status() != StateStopped {
		t.Fatalf("Status() after Close = %v, want Stopped", dev.Status())
	}

	want := []struct{ from, to State }{
		{StateStopped, StateStarting},
		{StateStarting, StateRunning},
		{StateRunning, StateStopping},
		{StateStopping, StateStopped},
	}
	got := handler.States()
	if len(got) != len(want) {
		t.Fatalf("got %d state events %v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i].Previous != w.from || got[i].Current != w.to {
			t.Errorf("event %d = %v->%v, want %v->%v", i, got[i].Previous, got[i].Current, w.from, w.to)
		}
	}
}

func TestDevice_RestartsExitedTask(t *testing.T) {
	c := newCollector(t)
	handler := &recordingHandler{}
	dev, _ := New(testConfig(c.URL), WithEventHandler(handler))
	defer dev.Close()

	dev.Write([]byte("first"))
	if !dev.workerTask.Stop(time.Second) {
		t.Fatal("worker did not stop")
	}

	dev.Write([]byte("second"))
	if !dev.workerTask.Alive() {
		t.Fatal("worker was not restarted by Write")
	}
	if dev.Status() != StateRunning {
		t.Errorf("Status() = %v, want Running", dev.Status())
	}

	crashed := false
	for _, e := range handler.States() {
		if e.Current == StateCrashed {
			crashed = true
		}
	}
	if !crashed {
		t.Error("no transition to Crashed recorded")
	}
	if got := dev.Stats().Restarts; got != 1 {
		t.Errorf("Stats().Restarts = %d, want 1", got)
	}

	if err := dev.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := c.Messages(); !equalStrings(got, []string{"first", "second"}) {
		t.Errorf("collector got %v, want [first second]", got)
	}
}

// panicOnFirstError recovers the collector, then panics.
type panicOnFirstError struct {
	BaseEventHandler
	collector *collector
	calls     atomic.Int32
}

func (h *panicOnFirstError) OnSendError(SendErrorEvent) {
	if h.calls.Add(1) == 1 {
		h.collector.SetStatus(http.StatusOK)
		panic("handler bug")
	}
}

func TestDevice_PanickingHandlerDoesNotLoseRequest(t *testing.T) {
	c := newCollector(t)
	c.SetStatus(http.StatusServiceUnavailable)
	handler := &panicOnFirstError{collector: c}

	cfg := testConfig(c.URL)
	cfg.BatchSize = 1
	cfg.ShutdownAttempts = 100
	dev, err := New(cfg, WithEventHandler(handler), WithClock(newBackoffSkippingClock()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dev.Write([]byte("A"))
	if !waitFor(5*time.Second, func() bool { return dev.Stats().Delivered == 1 }) {
		t.Fatalf("Stats() = %+v, want one delivered request", dev.Stats())
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := c.Messages(); !equalStrings(got, []string{"A"}) {
		t.Errorf("collector got %v, want [A]", got)
	}
	if got := handler.calls.Load(); got != 1 {
		t.Errorf("OnSendError called %d times, want 1", got)
	}
}

func TestDevice_ZeroConfigFlushesInBackground(t *testing.T) {
	c := newCollector(t)
	dev, err := New(Config{APIKey: "MYKEY", Endpoint: c.URL, FlushInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer dev.Close()

	dev.Write([]byte("background"))
	if dev.Status() != StateRunning {
		t.Errorf("Status() = %v, want Running", dev.Status())
	}
	if !waitFor(5*time.Second, func() bool { return len(c.Messages()) == 1 }) {
		t.Fatalf("interval flush did not deliver, collector got %v", c.Messages())
	}
}

func TestDevice_FlushErrorKeepsBatch(t *testing.T) {
	c := newCollector(t)
	c.SetStatus(http.StatusInternalServerError)
	dev, _ := New(testConfig(c.URL))
	defer dev.Close()

	dev.Write([]byte("retry me"))
	if err := dev.Flush(context.Background()); err == nil {
		t.Fatal("Flush() error = nil against failing collector")
	}
	if dev.Stats().Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", dev.Stats().Failed)
	}

	c.SetStatus(http.StatusOK)
	if err := dev.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if got := c.Messages(); !equalStrings(got, []string{"retry me"}) {
		t.Errorf("collector got %v, want [retry me]", got)
	}
}

func TestDevice_Compression(t *testing.T) {
	c := newCollector(t)
	cfg := testConfig(c.URL)
	cfg.Compress = true
	dev, _ := New(cfg)
	defer dev.Close()

	dev.Write([]byte("zipped"))
	if err := dev.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := c.Headers()[0].Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
	if got := c.Messages(); !equalStrings(got, []string{"zipped"}) {
		t.Errorf("collector got %v", got)
	}
}

func TestDevice_ConcurrentWriters(t *testing.T) {
	c := newCollector(t)
	cfg := testConfig(c.URL)
	cfg.BatchSize = 7
	cfg.ShutdownPollInterval = 250 * time.Millisecond
	dev, _ := New(cfg)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 125; i++ {
				fmt.Fprintf(dev, "g%d-%d", g, i)
			}
		}(g)
	}
	wg.Wait()

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, m := range c.Messages() {
		seen[m] = true
	}
	if len(seen) != 1000 {
		t.Errorf("collector got %d distinct messages, want 1000", len(seen))
	}
}

// fakePlugin writes one message on initialization.
type fakePlugin struct {
	name    string
	initErr error
	message string

	// lastWords is written on shutdown.
	lastWords string
	writer    io.Writer
	writeErr  error

	mu       sync.Mutex
	shutdown bool
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	if p.initErr != nil {
		return p.initErr
	}
	p.writer = cfg.Writer
	if p.message != "" {
		_, err := io.WriteString(cfg.Writer, p.message)
		return err
	}
	return nil
}

func (p *fakePlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	if p.lastWords != "" {
		_, p.writeErr = io.WriteString(p.writer, p.lastWords)
	}
	return nil
}

func (p *fakePlugin) ShutDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

func TestDevice_Plugins(t *testing.T) {
	c := newCollector(t)
	p := &fakePlugin{name: "source", message: "from plugin"}
	dev, err := New(testConfig(c.URL), WithPlugin(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.ShutDown() {
		t.Error("plugin was not shut down")
	}
	if got := c.Messages(); !equalStrings(got, []string{"from plugin"}) {
		t.Errorf("collector got %v, want [from plugin]", got)
	}
}

func TestDevice_PluginWritesDuringShutdown(t *testing.T) {
	c := newCollector(t)
	p := &fakePlugin{name: "tail", lastWords: "partial line"}
	dev, err := New(testConfig(c.URL), WithPlugin(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.writeErr != nil {
		t.Errorf("write during plugin shutdown: %v", p.writeErr)
	}
	if got := c.Messages(); !equalStrings(got, []string{"partial line"}) {
		t.Errorf("collector got %v, want [partial line]", got)
	}
	if _, err := dev.Write([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close error = %v, want ErrClosed", err)
	}
}

func TestDevice_PluginInitFailure(t *testing.T) {
	first := &fakePlugin{name: "first"}
	second := &fakePlugin{name: "second", initErr: errors.New("no such file")}

	_, err := New(testConfig("http://collector.invalid"), WithPlugin(first), WithPlugin(second))
	if err == nil {
		t.Fatal("New() error = nil with failing plugin")
	}
	if !first.ShutDown() {
		t.Error("initialized plugin was not shut down after a later failure")
	}
}
