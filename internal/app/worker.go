package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// DefaultRequestsPerConn is the number of requests sent before a connection
// is rotated.
const DefaultRequestsPerConn = 2500

// SendEvents is notified about the outcome of each send attempt.
type SendEvents interface {
	OnSendSuccess(req *domain.Request, duration time.Duration)
	OnSendError(req *domain.Request, err error, retryIn time.Duration)
}

// WorkerConfig configures a DeliveryWorker.
type WorkerConfig struct {
	Queue           *DeliveryQueue
	Dialer          ports.Dialer
	RequestsPerConn int
	BackoffStep     time.Duration
	BackoffMax      time.Duration
	Clock           clock.Clock
	Logger          ports.Logger
	Recorder        ports.Recorder
	Events          SendEvents
}

// DeliveryWorker is the single consumer of the delivery queue. It owns one
// connection at a time and rotates it every RequestsPerConn requests or after
// the first failure.
type DeliveryWorker struct {
	queue           *DeliveryQueue
	dialer          ports.Dialer
	requestsPerConn int
	backoff         *backoff
	clock           clock.Clock
	logger          ports.Logger
	recorder        ports.Recorder
	events          SendEvents

	inFlight    atomic.Int64
	delivered   atomic.Int64
	failed      atomic.Int64
	connsOpened atomic.Int64

	mu       sync.Mutex
	retained []*domain.Request
}

// NewDeliveryWorker creates a worker.
func NewDeliveryWorker(cfg WorkerConfig) *DeliveryWorker {
	if cfg.RequestsPerConn <= 0 {
		cfg.RequestsPerConn = DefaultRequestsPerConn
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = DefaultBackoffStep
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = ports.NopRecorder{}
	}
	return &DeliveryWorker{
		queue:           cfg.Queue,
		dialer:          cfg.Dialer,
		requestsPerConn: cfg.RequestsPerConn,
		backoff:         newBackoff(cfg.BackoffStep, cfg.BackoffMax),
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		recorder:        cfg.Recorder,
		events:          cfg.Events,
	}
}

// Run opens connections and delivers queued requests until ctx is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) {
	w.logger.Debug("delivery worker started")
	defer w.logger.Debug("delivery worker stopped")

	for ctx.Err() == nil {
		w.cycle(ctx)
	}
}

// cycle runs one connection from open to close.
func (w *DeliveryWorker) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("connection cycle panicked", ports.Err(fmt.Errorf("panic: %v", r)))
		}
	}()

	conn, err := w.dialer.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		delay := w.backoff.Next()
		w.logger.Warn("failed to open connection",
			ports.Err(err),
			ports.Int("consecutive_errors", w.backoff.Failures()),
			ports.Duration("retry_in", delay),
		)
		w.sleep(ctx, delay)
		return
	}

	w.connsOpened.Add(1)
	w.recorder.ConnectionOpened()
	w.logger.Debug("connection opened", ports.Int64("connections", w.connsOpened.Load()))

	defer func() {
		if err := conn.Close(); err != nil {
			w.logger.Debug("connection close failed", ports.Err(err))
		}
	}()

	for i := 0; i < w.requestsPerConn; i++ {
		req, err := w.next(ctx)
		if err != nil {
			return
		}
		if !w.deliver(ctx, conn, req) {
			return
		}
	}
	w.logger.Debug("rotating connection", ports.Int("requests", w.requestsPerConn))
}

// next returns the retained request if any, otherwise waits on the queue.
func (w *DeliveryWorker) next(ctx context.Context) (*domain.Request, error) {
	w.mu.Lock()
	if len(w.retained) > 0 {
		req := w.retained[0]
		w.retained = w.retained[1:]
		w.mu.Unlock()
		return req, nil
	}
	w.mu.Unlock()

	req, err := w.queue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	w.recorder.QueueDepth(w.queue.Len())
	return req, nil
}

// deliver sends req on conn. It returns false when the connection must be
// abandoned; req has then been requeued or retained.
func (w *DeliveryWorker) deliver(ctx context.Context, conn ports.Conn, req *domain.Request) bool {
	w.recorder.InFlight(int(w.inFlight.Add(1)))
	defer func() {
		w.recorder.InFlight(int(w.inFlight.Add(-1)))
	}()

	req.Attempts++
	start := w.clock.Now()
	err := w.send(ctx, conn, req)
	if err == nil {
		elapsed := w.clock.Since(start)
		w.backoff.Reset()
		w.delivered.Add(1)
		w.queue.Done()
		w.recorder.RequestDelivered(req.Messages, elapsed)
		if w.events != nil {
			w.notify("send success", func() { w.events.OnSendSuccess(req, elapsed) })
		}
		return true
	}

	if ctx.Err() != nil {
		w.requeue(req)
		return false
	}

	w.failed.Add(1)
	w.recorder.RequestFailed(req.Messages)
	delay := w.backoff.Next()
	w.logger.Warn("send failed",
		ports.Err(err),
		ports.String("request_id", req.ID),
		ports.Int("attempt", req.Attempts),
		ports.Int("consecutive_errors", w.backoff.Failures()),
		ports.Duration("retry_in", delay),
	)
	if w.events != nil {
		w.notify("send error", func() { w.events.OnSendError(req, err, delay) })
	}

	w.sleep(ctx, delay)
	w.requeue(req)
	return false
}

func (w *DeliveryWorker) send(ctx context.Context, conn ports.Conn, req *domain.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return conn.Send(ctx, req)
}

// notify runs an event callback. A panicking callback is logged and must
// not unwind the delivery of the request it reports on.
func (w *DeliveryWorker) notify(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event handler panicked",
				ports.String("event", event),
				ports.Any("panic", r))
		}
	}()
	fn()
}

// requeue puts req at the back of the queue. The worker is the queue's only
// consumer, so it cannot wait for space; a full queue leaves req retained.
func (w *DeliveryWorker) requeue(req *domain.Request) {
	if w.queue.Requeue(req) {
		return
	}
	w.mu.Lock()
	w.retained = append(w.retained, req)
	w.mu.Unlock()
	w.logger.Debug("queue full, retaining request for next connection",
		ports.String("request_id", req.ID),
	)
}

func (w *DeliveryWorker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.clock.After(d):
	}
}

// SendDirect delivers req on a one-off connection, bypassing the queue.
func (w *DeliveryWorker) SendDirect(ctx context.Context, req *domain.Request) error {
	conn, err := w.dialer.Open(ctx)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer conn.Close()

	w.connsOpened.Add(1)
	w.recorder.ConnectionOpened()

	req.Attempts++
	start := w.clock.Now()
	if err := w.send(ctx, conn, req); err != nil {
		w.failed.Add(1)
		w.recorder.RequestFailed(req.Messages)
		if w.events != nil {
			w.events.OnSendError(req, err, 0)
		}
		return fmt.Errorf("send request %s: %w", req.ID, err)
	}

	elapsed := w.clock.Since(start)
	w.delivered.Add(1)
	w.recorder.RequestDelivered(req.Messages, elapsed)
	if w.events != nil {
		w.events.OnSendSuccess(req, elapsed)
	}
	return nil
}

// Idle reports whether no request is queued, being sent, or awaiting retry.
func (w *DeliveryWorker) Idle() bool {
	return w.inFlight.Load() == 0 &&
		w.queue.Len() == 0 &&
		w.queue.Unfinished() == 0 &&
		w.Retained() == 0
}

// InFlight returns the number of requests currently being sent.
func (w *DeliveryWorker) InFlight() int64 { return w.inFlight.Load() }

// Delivered returns the number of accepted requests.
func (w *DeliveryWorker) Delivered() int64 { return w.delivered.Load() }

// Failed returns the number of failed send attempts.
func (w *DeliveryWorker) Failed() int64 { return w.failed.Load() }

// ConnectionsOpened returns the number of connections opened so far.
func (w *DeliveryWorker) ConnectionsOpened() int64 { return w.connsOpened.Load() }

// Retained returns the number of requests held back because the queue was full.
func (w *DeliveryWorker) Retained() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.retained)
}
