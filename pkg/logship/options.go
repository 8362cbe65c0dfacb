package logship

import (
	"github.com/benbjohnson/clock"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
	"github.com/bft-labs/logship/pkg/log"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = log.Logger

// Dialer opens collector connections. Replace it to deliver over a
// transport other than the built-in HTTP one.
type Dialer = ports.Dialer

// Conn is one collector connection returned by a Dialer.
type Conn = ports.Conn

// Request is a fully built delivery request, as seen by a Conn.
type Request = domain.Request

// Recorder receives pipeline events for metrics.
type Recorder = ports.Recorder

// Option configures optional behavior of a Device.
type Option func(*options)

// options holds the optional configuration for a Device.
type options struct {
	httpClient   ports.HTTPClient
	dialer       ports.Dialer
	logger       ports.Logger
	eventHandler EventHandler
	recorder     ports.Recorder
	clock        clock.Clock
	plugins      []Plugin
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger:   log.NewNoopLogger(),
		recorder: ports.NopRecorder{},
		clock:    clock.New(),
	}
}

// WithHTTPClient shares client between all connections instead of giving
// each connection its own transport. Connection rotation then no longer
// guarantees fresh sockets.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithDialer replaces the HTTP transport entirely.
func WithDialer(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for device events.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMetricsRecorder sets the recorder for pipeline metrics.
func WithMetricsRecorder(recorder Recorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// WithClock sets the clock used for flush intervals, retry delays and
// shutdown polling.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithPlugin registers a plugin to be initialized by New.
// Plugins are initialized in registration order and shut down in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}
