package domain

import "errors"

// Domain errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrMissingAPIKey is returned by New when the API key is blank.
	ErrMissingAPIKey = errors.New("logship: api key cannot be blank")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("logship: invalid configuration")

	// ErrClosed is returned by Write and Flush after Close.
	ErrClosed = errors.New("logship: device closed")

	// ErrAlreadyRunning is returned on an invalid transition out of an active state.
	ErrAlreadyRunning = errors.New("logship: already running")

	// ErrNotRunning is returned on an invalid transition out of an idle state.
	ErrNotRunning = errors.New("logship: not running")

	// ErrShutdownTimeout is returned by Close when queued or in-flight
	// requests were still pending after the shutdown bound.
	ErrShutdownTimeout = errors.New("logship: shutdown timeout, pending data may be lost")
)
