package domain

// Message is a single opaque log record supplied by the caller.
// The device never looks inside it.
type Message []byte

// Batch is an ordered group of messages.
// Order within a batch is the order in which messages were enqueued.
type Batch []Message

// Len returns the number of messages in the batch.
func (b Batch) Len() int {
	return len(b)
}

// Empty returns true if the batch has no messages.
func (b Batch) Empty() bool {
	return len(b) == 0
}

// Bytes returns the sum of all message lengths.
func (b Batch) Bytes() int {
	total := 0
	for _, m := range b {
		total += len(m)
	}
	return total
}
