package logship

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bft-labs/logship/internal/app"
	"github.com/bft-labs/logship/internal/codec"
	"github.com/bft-labs/logship/internal/domain"
)

// DefaultEndpoint is the collector URL used when Endpoint is empty.
const DefaultEndpoint = "https://logs.timber.io/frames"

// EndpointEnv overrides DefaultEndpoint when set.
const EndpointEnv = "LOGSHIP_ENDPOINT"

// Queue policies.
const (
	QueuePolicyBlock = "block"
	QueuePolicyDrop  = "drop"
)

// Batch encodings.
const (
	EncodingMsgpack    = string(codec.EncodingMsgpack)
	EncodingMsgpackRaw = string(codec.EncodingMsgpackRaw)
	EncodingCBOR       = string(codec.EncodingCBOR)
)

// Config holds the configuration for a Device.
// The zero value of every field selects its default; zero durations and
// counts are filled in by SetDefaults.
type Config struct {
	// APIKey authenticates with the collector. Required.
	APIKey string

	// Endpoint is the collector URL requests are posted to.
	Endpoint string

	// BatchSize is the number of buffered messages that triggers a flush.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// RequestsPerConn is the number of requests sent on one connection
	// before it is replaced.
	RequestsPerConn int

	// QueueCapacity bounds the number of requests waiting for delivery.
	QueueCapacity int

	// QueuePolicy is "block" (Write waits when the queue is full) or
	// "drop" (the new request is discarded).
	QueuePolicy string

	// Synchronous disables the background interval flush loop and
	// delivery worker: flushes send in the caller's goroutine and Close
	// sends what is left. By default the device flushes continuously.
	Synchronous bool

	// Encoding is the batch wire format: "msgpack", "msgpack-raw" or "cbor".
	Encoding string

	// Compress gzips request bodies.
	Compress bool

	DialTimeout time.Duration
	TLSTimeout  time.Duration
	ReadTimeout time.Duration

	// ShutdownAttempts and ShutdownPollInterval bound how long Close waits
	// for the pipeline to drain.
	ShutdownAttempts     int
	ShutdownPollInterval time.Duration
}

// DefaultConfig returns a Config with default values. APIKey must still be set.
func DefaultConfig() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero-valued fields with defaults.
func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint()
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = time.Second
	}
	if c.RequestsPerConn == 0 {
		c.RequestsPerConn = app.DefaultRequestsPerConn
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 3
	}
	if c.QueuePolicy == "" {
		c.QueuePolicy = QueuePolicyBlock
	}
	if c.Encoding == "" {
		c.Encoding = EncodingMsgpack
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.TLSTimeout == 0 {
		c.TLSTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.ShutdownAttempts == 0 {
		c.ShutdownAttempts = 4
	}
	if c.ShutdownPollInterval == 0 {
		c.ShutdownPollInterval = time.Second
	}
}

func defaultEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(EndpointEnv)); v != "" {
		return v
	}
	return DefaultEndpoint
}

// Validate checks the configuration.
// A blank APIKey yields ErrMissingAPIKey; other problems wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return domain.ErrMissingAPIKey
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint: %v", domain.ErrInvalidConfig, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q must be an http(s) URL", domain.ErrInvalidConfig, c.Endpoint)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"batch size", int64(c.BatchSize)},
		{"flush interval", int64(c.FlushInterval)},
		{"requests per connection", int64(c.RequestsPerConn)},
		{"queue capacity", int64(c.QueueCapacity)},
		{"dial timeout", int64(c.DialTimeout)},
		{"tls timeout", int64(c.TLSTimeout)},
		{"read timeout", int64(c.ReadTimeout)},
		{"shutdown attempts", int64(c.ShutdownAttempts)},
		{"shutdown poll interval", int64(c.ShutdownPollInterval)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, p.name)
		}
	}

	if _, err := app.ParseQueuePolicy(c.QueuePolicy); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if _, err := codec.ParseEncoding(c.Encoding); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

// flushContinuously reports whether background tasks deliver requests.
func (c Config) flushContinuously() bool {
	return !c.Synchronous
}

// shutdownBound is the longest Close waits for the pipeline to drain.
func (c Config) shutdownBound() time.Duration {
	return time.Duration(c.ShutdownAttempts) * c.ShutdownPollInterval
}
