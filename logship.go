// Package logship ships newline-delimited log messages to a collector in
// batches.
//
// Example usage:
//
//	cfg := logship.DefaultConfig()
//	cfg.APIKey = "your-api-key"
//	if err := logship.Ship(context.Background(), cfg, os.Stdin); err != nil {
//	    log.Fatal(err)
//	}
//
// For a long-lived io.Writer use New; see package pkg/logship.
package logship

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/logship/internal/linesource"
	"github.com/bft-labs/logship/pkg/logship"
)

// Config holds the device configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = logship.Config

// Device is a batching io.Writer.
type Device = logship.Device

// Option configures a Device.
type Option = logship.Option

// DefaultConfig returns a Config with sensible default values.
// At minimum, APIKey must be set.
func DefaultConfig() Config {
	return logship.DefaultConfig()
}

// New creates a Device.
func New(cfg Config, opts ...Option) (*Device, error) {
	return logship.New(cfg, opts...)
}

// Ship writes every line read from r to a new Device and closes it once r
// is exhausted or ctx is cancelled. It returns the number of lines shipped.
func Ship(ctx context.Context, cfg Config, r io.Reader, opts ...Option) (int, error) {
	dev, err := logship.New(cfg, opts...)
	if err != nil {
		return 0, err
	}

	n, copyErr := linesource.Copy(ctx, dev, r)
	if copyErr != nil {
		copyErr = fmt.Errorf("read input: %w", copyErr)
	}
	if err := dev.Close(); err != nil {
		return n, errors.Join(copyErr, fmt.Errorf("close: %w", err))
	}
	return n, copyErr
}

// DefaultEndpoint is the collector used when none is configured.
const DefaultEndpoint = logship.DefaultEndpoint

// Errors returned by New, Write and Close.
var (
	ErrMissingAPIKey   = logship.ErrMissingAPIKey
	ErrInvalidConfig   = logship.ErrInvalidConfig
	ErrClosed          = logship.ErrClosed
	ErrShutdownTimeout = logship.ErrShutdownTimeout
)
