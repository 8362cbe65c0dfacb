package logship

import "github.com/bft-labs/logship/internal/domain"

// Errors returned by the Device API. Match them with errors.Is.
var (
	ErrMissingAPIKey   = domain.ErrMissingAPIKey
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrClosed          = domain.ErrClosed
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
)
