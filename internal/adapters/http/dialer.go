package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// Default network timeouts.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultTLSTimeout  = 10 * time.Second
	DefaultReadTimeout = 30 * time.Second
)

// maxErrorBody bounds how much of a rejected response is kept in the error.
const maxErrorBody = 4 << 10

// DialerConfig configures a Dialer.
type DialerConfig struct {
	DialTimeout time.Duration
	TLSTimeout  time.Duration
	ReadTimeout time.Duration

	// Client, when set, is shared by every connection instead of a
	// dedicated transport per connection.
	Client ports.HTTPClient

	Logger ports.Logger
}

// Dialer implements ports.Dialer over HTTP. Each Open creates its own
// transport, so rotating a connection really closes the old sockets.
type Dialer struct {
	cfg DialerConfig
}

// NewDialer creates a new HTTP dialer.
func NewDialer(cfg DialerConfig) *Dialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.TLSTimeout <= 0 {
		cfg.TLSTimeout = DefaultTLSTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Dialer{cfg: cfg}
}

// Open returns a connection backed by a fresh keep-alive transport.
func (d *Dialer) Open(ctx context.Context) (ports.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.cfg.Client != nil {
		return &Conn{client: d.cfg.Client, logger: d.cfg.Logger}, nil
	}

	dialer := &net.Dialer{
		Timeout:   d.cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   d.cfg.TLSTimeout,
		ResponseHeaderTimeout: d.cfg.ReadTimeout,
		MaxConnsPerHost:       1,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &Conn{
		client:    &http.Client{Transport: transport},
		transport: transport,
		logger:    d.cfg.Logger,
	}, nil
}

// Conn implements ports.Conn on top of an HTTP client.
type Conn struct {
	client    ports.HTTPClient
	transport *http.Transport
	logger    ports.Logger
}

// Send posts req and fails on any non-2xx response.
func (c *Conn) Send(ctx context.Context, req *domain.Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header = req.Header.Clone()
	httpReq.ContentLength = int64(len(req.Body))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	// Drain so the keep-alive connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if c.logger != nil {
		c.logger.Debug("request accepted",
			ports.String("request_id", req.ID),
			ports.Int("status", resp.StatusCode),
		)
	}
	return nil
}

// Close releases the connection's idle sockets.
func (c *Conn) Close() error {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}
