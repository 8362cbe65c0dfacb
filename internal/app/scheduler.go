package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// DefaultPollQuantum is how often the interval loop checks the flush deadline.
const DefaultPollQuantum = 100 * time.Millisecond

// DefaultMaxCarry bounds the requests held for the next flush.
const DefaultMaxCarry = 16

// Sink receives every request a flush produces.
type Sink func(ctx context.Context, req *domain.Request) error

// SchedulerConfig configures a FlushScheduler.
type SchedulerConfig struct {
	Buffer      *MessageBuffer
	Builder     *RequestBuilder
	Sink        Sink
	Interval    time.Duration
	PollQuantum time.Duration
	Clock       clock.Clock
	Logger      ports.Logger
	Recorder    ports.Recorder

	// MaxCarry bounds the carried requests; the oldest are dropped beyond it.
	MaxCarry int
	// OnDrop is called for every carried request dropped. Optional.
	OnDrop func(*domain.Request)
}

// FlushScheduler decides when buffered messages become a request.
//
// A flush is triggered by the producer when the buffer fills up, by the
// interval loop when FlushInterval has passed since the last flush, or
// explicitly. A request whose sink call failed is carried over and handed
// to the sink again, ahead of newer requests, by the next flush.
type FlushScheduler struct {
	buffer      *MessageBuffer
	builder     *RequestBuilder
	sink        Sink
	interval    time.Duration
	pollQuantum time.Duration
	clock       clock.Clock
	logger      ports.Logger
	recorder    ports.Recorder
	maxCarry    int
	onDrop      func(*domain.Request)

	mu        sync.Mutex
	lastFlush time.Time
	carry     []*domain.Request
	dropped   int64
}

// NewFlushScheduler creates a scheduler. lastFlush starts at construction time.
func NewFlushScheduler(cfg SchedulerConfig) *FlushScheduler {
	if cfg.PollQuantum <= 0 {
		cfg.PollQuantum = DefaultPollQuantum
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = ports.NopRecorder{}
	}
	if cfg.MaxCarry <= 0 {
		cfg.MaxCarry = DefaultMaxCarry
	}
	return &FlushScheduler{
		buffer:      cfg.Buffer,
		builder:     cfg.Builder,
		sink:        cfg.Sink,
		interval:    cfg.Interval,
		pollQuantum: cfg.PollQuantum,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		recorder:    cfg.Recorder,
		maxCarry:    cfg.MaxCarry,
		onDrop:      cfg.OnDrop,
		lastFlush:   cfg.Clock.Now(),
	}
}

// Enqueue appends msg to the buffer and flushes in the caller's goroutine
// when the buffer reaches the batch size.
func (s *FlushScheduler) Enqueue(ctx context.Context, msg domain.Message) error {
	s.recorder.MessageWritten(len(msg))
	if !s.buffer.Enqueue(msg) {
		return nil
	}
	return s.Flush(ctx)
}

// Flush drains the buffer into the scheduler's sink.
func (s *FlushScheduler) Flush(ctx context.Context) error {
	return s.FlushTo(ctx, s.sink)
}

// FlushTo drains the buffer and hands carried-over requests followed by the
// new one to sink, in that order. An empty buffer builds nothing.
func (s *FlushScheduler) FlushTo(ctx context.Context, sink Sink) error {
	s.markFlushed()

	var buildErr error
	req, err := s.builder.Build(s.buffer.Drain())
	if err != nil {
		// The drained batch cannot be encoded and is discarded.
		s.logger.Error("failed to build request", ports.Err(err))
		buildErr = fmt.Errorf("build request: %w", err)
	}

	pending := s.takeCarry()
	if req != nil {
		s.recorder.BatchBuilt(req.Messages, len(req.Body))
		pending = append(pending, req)
	}

	for i, r := range pending {
		if err := sink(ctx, r); err != nil {
			s.keepCarry(pending[i:])
			return errors.Join(buildErr, err)
		}
	}
	return buildErr
}

// Run is the interval loop. It waits one interval, then checks the flush
// deadline every poll quantum until ctx is cancelled.
func (s *FlushScheduler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(s.interval):
	}

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.pollQuantum):
		}
	}
}

func (s *FlushScheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("flush loop iteration panicked", ports.Err(fmt.Errorf("panic: %v", r)))
		}
	}()

	if s.clock.Since(s.LastFlush()) < s.interval {
		return
	}
	if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("interval flush failed", ports.Err(err))
	}
}

// LastFlush returns the start time of the most recent flush.
func (s *FlushScheduler) LastFlush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFlush
}

// Carried returns the number of requests waiting for the next flush.
func (s *FlushScheduler) Carried() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carry)
}

func (s *FlushScheduler) markFlushed() {
	s.mu.Lock()
	s.lastFlush = s.clock.Now()
	s.mu.Unlock()
}

func (s *FlushScheduler) takeCarry() []*domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	carry := s.carry
	s.carry = nil
	return carry
}

// Dropped returns the number of carried requests dropped over MaxCarry.
func (s *FlushScheduler) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *FlushScheduler) keepCarry(reqs []*domain.Request) {
	s.mu.Lock()
	// Another flush may have carried requests meanwhile; ours are older.
	carry := append(append([]*domain.Request(nil), reqs...), s.carry...)
	var overflow []*domain.Request
	if n := len(carry) - s.maxCarry; n > 0 {
		overflow = carry[:n]
		carry = carry[n:]
		s.dropped += int64(n)
	}
	s.carry = carry
	s.mu.Unlock()

	for _, req := range overflow {
		s.recorder.RequestDropped(req.Messages)
		s.logger.Warn("carried requests over limit, oldest dropped",
			ports.String("request_id", req.ID),
			ports.Int("messages", req.Messages),
			ports.Int("max_carry", s.maxCarry),
		)
		if s.onDrop != nil {
			s.onDrop(req)
		}
	}
}

// QueueSink returns a sink that pushes requests onto q. Under PolicyDrop a
// full queue is not an error: onDrop is called and the request is discarded.
func QueueSink(q *DeliveryQueue, recorder ports.Recorder, logger ports.Logger, onDrop func(*domain.Request)) Sink {
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return func(ctx context.Context, req *domain.Request) error {
		if q.Push(ctx, req) {
			recorder.QueueDepth(q.Len())
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("push request: %w", err)
		}

		recorder.RequestDropped(req.Messages)
		logger.Warn("delivery queue full, request dropped",
			ports.String("request_id", req.ID),
			ports.Int("messages", req.Messages),
		)
		if onDrop != nil {
			onDrop(req)
		}
		return nil
	}
}
