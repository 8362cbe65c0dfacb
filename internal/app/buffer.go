package app

import (
	"sync"

	"github.com/bft-labs/logship/internal/domain"
)

// MessageBuffer accumulates messages until they are drained into a batch.
// The batch size is a soft threshold: Enqueue never rejects a message, it
// only reports that the buffer is full so the caller can flush.
type MessageBuffer struct {
	mu        sync.Mutex
	batchSize int
	msgs      domain.Batch
}

// NewMessageBuffer creates a buffer that reports full at batchSize messages.
func NewMessageBuffer(batchSize int) *MessageBuffer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &MessageBuffer{batchSize: batchSize}
}

// Enqueue appends msg and reports whether the buffer is now full.
func (b *MessageBuffer) Enqueue(msg domain.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return len(b.msgs) >= b.batchSize
}

// Full returns true when the buffer holds at least batchSize messages.
func (b *MessageBuffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs) >= b.batchSize
}

// Drain swaps the live storage for an empty one and returns the previous
// contents in enqueue order. No message is copied.
func (b *MessageBuffer) Drain() domain.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.msgs
	b.msgs = nil
	return old
}

// Len returns the number of buffered messages.
func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// BatchSize returns the configured flush threshold.
func (b *MessageBuffer) BatchSize() int {
	return b.batchSize
}
