package ports

import (
	"context"

	"github.com/bft-labs/logship/internal/domain"
)

// Dialer opens persistent connections to the collector.
type Dialer interface {
	// Open returns a fresh connection. Every call must return a connection
	// that shares no sockets with previously opened ones.
	Open(ctx context.Context) (Conn, error)
}

// Conn is one persistent, authenticated collector session.
// A Conn is used by a single goroutine at a time.
type Conn interface {
	// Send delivers one request. A nil error means the collector accepted it.
	// Send must not modify req.
	Send(ctx context.Context, req *domain.Request) error

	// Close releases the underlying sockets.
	Close() error
}
