package logship

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	httpAdapter "github.com/bft-labs/logship/internal/adapters/http"
	"github.com/bft-labs/logship/internal/app"
	"github.com/bft-labs/logship/internal/codec"
	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// Device is an io.Writer that ships every written message to the collector.
//
// Messages are buffered and sent in batches, either when BatchSize messages
// are buffered or FlushInterval after the last flush. Background tasks start
// on the first Write. Close drains what is pending.
type Device struct {
	config  Config
	logger  ports.Logger
	clock   clock.Clock
	emitter *eventEmitterWrapper
	plugins []Plugin

	lifecycle *app.Lifecycle
	buffer    *app.MessageBuffer
	queue     *app.DeliveryQueue
	scheduler *app.FlushScheduler
	worker    *app.DeliveryWorker

	flushTask  *app.Task
	workerTask *app.Task

	// writeCtx bounds producers waiting on a full queue; cancelled when
	// Close begins. runCtx parents the background tasks and plugins.
	writeCtx    context.Context
	writeCancel context.CancelFunc
	runCtx      context.Context
	runCancel   context.CancelFunc

	// Write holds mu for reading; Close takes it for writing so no message
	// lands in the buffer after the final flush.
	mu      sync.RWMutex
	startMu sync.Mutex
	// closed is set when Close begins; sealed once plugins have stopped.
	// Writes are accepted until sealed so plugins can drain on shutdown.
	closed atomic.Bool
	sealed atomic.Bool
}

// New creates a Device. No goroutine is started until the first Write.
// Returns ErrMissingAPIKey for a blank key and an error wrapping
// ErrInvalidConfig for any other invalid setting.
func New(cfg Config, opts ...Option) (*Device, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	policy, _ := app.ParseQueuePolicy(cfg.QueuePolicy)
	encoding, _ := codec.ParseEncoding(cfg.Encoding)
	encoder, err := codec.NewEncoder(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	var compressor ports.BodyCompressor
	if cfg.Compress {
		compressor = codec.Gzip{}
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = httpAdapter.NewDialer(httpAdapter.DialerConfig{
			DialTimeout: cfg.DialTimeout,
			TLSTimeout:  cfg.TLSTimeout,
			ReadTimeout: cfg.ReadTimeout,
			Client:      o.httpClient,
			Logger:      o.logger,
		})
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler, logger: o.logger}

	d := &Device{
		config:     cfg,
		logger:     o.logger,
		clock:      o.clock,
		emitter:    emitter,
		plugins:    o.plugins,
		lifecycle:  app.NewLifecycle(o.logger, emitter),
		buffer:     app.NewMessageBuffer(cfg.BatchSize),
		queue:      app.NewDeliveryQueue(cfg.QueueCapacity, policy),
		flushTask:  app.NewTask("flush-loop", o.logger),
		workerTask: app.NewTask("delivery-worker", o.logger),
	}
	d.writeCtx, d.writeCancel = context.WithCancel(context.Background())
	d.runCtx, d.runCancel = context.WithCancel(context.Background())

	d.worker = app.NewDeliveryWorker(app.WorkerConfig{
		Queue:           d.queue,
		Dialer:          dialer,
		RequestsPerConn: cfg.RequestsPerConn,
		Clock:           o.clock,
		Logger:          o.logger,
		Recorder:        o.recorder,
		Events:          emitter,
	})

	sink := d.directSink
	if cfg.flushContinuously() {
		sink = app.QueueSink(d.queue, o.recorder, o.logger, emitter.OnDrop)
	}
	d.scheduler = app.NewFlushScheduler(app.SchedulerConfig{
		Buffer: d.buffer,
		Builder: app.NewRequestBuilder(app.BuilderConfig{
			URL:        cfg.Endpoint,
			APIKey:     cfg.APIKey,
			UserAgent:  UserAgent,
			Encoder:    encoder,
			Compressor: compressor,
		}),
		Sink:     sink,
		Interval: cfg.FlushInterval,
		Clock:    o.clock,
		Logger:   o.logger,
		Recorder: o.recorder,
		OnDrop:   emitter.OnDrop,
	})

	if err := d.initPlugins(); err != nil {
		d.writeCancel()
		d.runCancel()
		return nil, err
	}
	return d, nil
}

func (d *Device) initPlugins() error {
	cfg := PluginConfig{Writer: d, Logger: d.logger}
	for i, p := range d.plugins {
		if err := p.Initialize(d.runCtx, cfg); err != nil {
			d.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			d.shutdownPlugins(d.plugins[:i])
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		d.logger.Debug("plugin initialized", ports.String("plugin", p.Name()))
	}
	if len(d.plugins) > 0 {
		names := make([]string, 0, len(d.plugins))
		for _, p := range d.plugins {
			names = append(names, p.Name())
		}
		d.logger.Info("plugins initialized", ports.Strings("plugins", names))
	}
	return nil
}

// shutdownPlugins stops plugins in reverse order.
func (d *Device) shutdownPlugins(plugins []Plugin) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.shutdownBound())
	defer cancel()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			d.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			d.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
}

// Write buffers one message. p is copied; the caller may reuse it.
//
// When the buffer reaches BatchSize, the batch is flushed before Write
// returns. Under the block queue policy that flush waits for queue space.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.sealed.Load() {
		return 0, domain.ErrClosed
	}

	msg := make(domain.Message, len(p))
	copy(msg, p)

	d.ensureRunning()

	if err := d.scheduler.Enqueue(d.writeCtx, msg); err != nil {
		// The message is buffered or carried to the next flush.
		d.logger.Warn("size-triggered flush failed", ports.Err(err))
	}
	return len(p), nil
}

// ensureRunning starts the background tasks on first use and restarts any
// task that has exited.
func (d *Device) ensureRunning() {
	if !d.config.flushContinuously() {
		return
	}
	if d.flushTask.Alive() && d.workerTask.Alive() {
		return
	}

	d.startMu.Lock()
	defer d.startMu.Unlock()

	if d.closed.Load() || (d.flushTask.Alive() && d.workerTask.Alive()) {
		return
	}

	reason := "first write"
	if d.lifecycle.State() != app.StateStopped {
		reason = "background task exited"
		if d.lifecycle.State() == app.StateRunning {
			_ = d.lifecycle.TransitionTo(app.StateCrashed, reason)
		}
		d.logger.Warn("restarting background tasks",
			ports.Bool("flush_loop_alive", d.flushTask.Alive()),
			ports.Bool("worker_alive", d.workerTask.Alive()),
		)
	}

	if err := d.lifecycle.TransitionTo(app.StateStarting, reason); err != nil {
		d.logger.Error("cannot start background tasks", ports.Err(err))
		return
	}
	d.flushTask.Start(d.runCtx, d.scheduler.Run)
	d.workerTask.Start(d.runCtx, d.worker.Run)
	_ = d.lifecycle.TransitionTo(app.StateRunning, "background tasks started")
}

// directSink sends a request on a one-off connection.
func (d *Device) directSink(ctx context.Context, req *domain.Request) error {
	return d.worker.SendDirect(ctx, req)
}

// Flush synchronously sends everything buffered on a one-off connection,
// bypassing the delivery queue. Requests already queued are not affected.
func (d *Device) Flush(ctx context.Context) error {
	if d.closed.Load() {
		return domain.ErrClosed
	}
	return d.scheduler.FlushTo(ctx, d.directSink)
}

// Close flushes what is buffered, waits a bounded time for queued and
// in-flight requests to be delivered, and stops the background tasks.
// It returns ErrShutdownTimeout if the pipeline did not drain in time.
// Calls after the first return nil.
//
// Plugins are shut down before the interval loop is cancelled, so a
// plugin's last writes are part of the final flush. Until they return,
// the loop may still flush on its own schedule.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Release producers blocked on a full queue, then wait for them.
	d.writeCancel()
	d.shutdownPlugins(d.plugins)
	d.sealed.Store(true)
	d.mu.Lock()
	defer d.mu.Unlock()

	d.startMu.Lock()
	defer d.startMu.Unlock()

	if d.lifecycle.CanStop() {
		_ = d.lifecycle.TransitionTo(app.StateStopping, "Close() called")
	}

	bound := d.config.shutdownBound()
	d.flushTask.Stop(bound)

	ctx, cancel := context.WithTimeout(context.Background(), bound)
	defer cancel()

	var err error
	if d.config.flushContinuously() {
		if flushErr := d.scheduler.Flush(ctx); flushErr != nil {
			d.logger.Warn("final flush failed", ports.Err(flushErr))
		}
		// Messages written while plugins shut down may arrive before any
		// task ever ran; the worker is needed to drain them.
		if !d.workerTask.Alive() && !d.idle() {
			d.workerTask.Start(d.runCtx, d.worker.Run)
		}
		if !d.waitIdle() {
			err = domain.ErrShutdownTimeout
		}
	} else if flushErr := d.scheduler.FlushTo(ctx, d.directSink); flushErr != nil {
		d.logger.Warn("final flush failed", ports.Err(flushErr))
		err = domain.ErrShutdownTimeout
	}

	d.workerTask.Stop(bound)
	d.runCancel()

	if d.lifecycle.State() == app.StateStopping {
		_ = d.lifecycle.TransitionTo(app.StateStopped, "closed")
	}

	if err != nil {
		d.logger.Warn("shutdown incomplete, pending data may be lost",
			ports.Int("buffered", d.buffer.Len()),
			ports.Int("queued", d.queue.Len()),
			ports.Int64("in_flight", d.worker.InFlight()),
			ports.Int("retained", d.worker.Retained()+d.scheduler.Carried()),
		)
		return err
	}
	d.logger.Info("device closed", ports.Int64("delivered", d.worker.Delivered()))
	return nil
}

// waitIdle polls up to ShutdownAttempts times for an empty pipeline.
func (d *Device) waitIdle() bool {
	for i := 0; i < d.config.ShutdownAttempts; i++ {
		if d.idle() {
			return true
		}
		d.logger.Debug("waiting for pipeline to drain",
			ports.Int("attempt", i+1),
			ports.Int("queued", d.queue.Len()),
			ports.Int64("in_flight", d.worker.InFlight()),
		)
		d.clock.Sleep(d.config.ShutdownPollInterval)
	}
	return d.idle()
}

func (d *Device) idle() bool {
	return d.worker.Idle() && d.scheduler.Carried() == 0
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	// Buffered is the number of messages not yet built into a request.
	Buffered int
	// Queued is the number of requests waiting for delivery, including
	// requests held for retry.
	Queued int
	// InFlight is the number of requests being sent.
	InFlight int64
	// Delivered is the number of requests the collector accepted.
	Delivered int64
	// Failed is the number of failed send attempts.
	Failed int64
	// Dropped is the number of requests discarded by the drop policy or
	// because too many failed flushes were waiting to be resent.
	Dropped int64
	// ConnectionsOpened is the number of collector connections opened.
	ConnectionsOpened int64
	// Restarts is the number of times exited background tasks were restarted.
	Restarts int
}

// Stats returns a snapshot of the pipeline counters.
func (d *Device) Stats() Stats {
	return Stats{
		Buffered:          d.buffer.Len(),
		Queued:            d.queue.Len() + d.worker.Retained() + d.scheduler.Carried(),
		InFlight:          d.worker.InFlight(),
		Delivered:         d.worker.Delivered(),
		Failed:            d.worker.Failed(),
		Dropped:           d.queue.Dropped() + d.scheduler.Dropped(),
		ConnectionsOpened: d.worker.ConnectionsOpened(),
		Restarts:          d.lifecycle.Restarts(),
	}
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (d *Device) Status() State {
	return convertState(d.lifecycle.State())
}
