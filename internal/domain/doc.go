// Package domain contains the core entities of the log device.
//
// This package is the innermost layer. It has no dependencies on transport,
// encoding, or logging and holds only the values that move through the
// delivery pipeline.
//
// # Entities
//
//   - [Message]: one opaque, already-serialized log record
//   - [Batch]: an ordered group of messages drained from the buffer in one swap
//   - [Request]: an encoded batch ready for delivery, retried as the same instance
//
// # Lifecycle
//
// A Message lives until it is encoded into a Batch. A Batch lives until it is
// encoded into a Request. A Request lives until its first successful delivery;
// on failure the same Request (same ID, same body bytes) is requeued.
package domain
