package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bft-labs/logship/internal/domain"
)

// QueuePolicy decides what Push does when the queue is full.
type QueuePolicy int

const (
	// PolicyBlock makes Push wait for space (backpressure).
	PolicyBlock QueuePolicy = iota
	// PolicyDrop makes Push discard the request and return false.
	PolicyDrop
)

// String returns the policy name.
func (p QueuePolicy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseQueuePolicy parses "block" or "drop". The empty string selects block.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block", "blocking":
		return PolicyBlock, nil
	case "drop", "dropping":
		return PolicyDrop, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown queue policy %q", s)
	}
}

// DeliveryQueue is the bounded queue between batching and network I/O.
//
// Besides the queued items it tracks unfinished requests: a request counts
// from a successful Push until the consumer calls Done for it, including the
// time it spends being sent or waiting for a retry. Requeue does not count
// it twice.
type DeliveryQueue struct {
	ch         chan *domain.Request
	policy     QueuePolicy
	unfinished atomic.Int64
	dropped    atomic.Int64
}

// NewDeliveryQueue creates a queue holding at most capacity requests.
func NewDeliveryQueue(capacity int, policy QueuePolicy) *DeliveryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &DeliveryQueue{
		ch:     make(chan *domain.Request, capacity),
		policy: policy,
	}
}

// Push adds req to the back of the queue.
//
// Under PolicyBlock it waits for space and returns false only if ctx ends
// first. Under PolicyDrop it never waits: a full queue discards req, counts
// the drop, and returns false.
func (q *DeliveryQueue) Push(ctx context.Context, req *domain.Request) bool {
	if q.policy == PolicyDrop {
		if q.TryPush(req) {
			return true
		}
		q.dropped.Add(1)
		return false
	}

	q.unfinished.Add(1)
	select {
	case q.ch <- req:
		return true
	case <-ctx.Done():
		q.unfinished.Add(-1)
		return false
	}
}

// TryPush adds req without waiting. Returns false if the queue is full.
func (q *DeliveryQueue) TryPush(req *domain.Request) bool {
	q.unfinished.Add(1)
	select {
	case q.ch <- req:
		return true
	default:
		q.unfinished.Add(-1)
		return false
	}
}

// Requeue puts an unfinished request back at the end of the queue without
// waiting. Returns false if the queue is full; the caller keeps ownership.
func (q *DeliveryQueue) Requeue(req *domain.Request) bool {
	select {
	case q.ch <- req:
		return true
	default:
		return false
	}
}

// Pop removes the request at the front, waiting until one is available.
func (q *DeliveryQueue) Pop(ctx context.Context) (*domain.Request, error) {
	select {
	case req := <-q.ch:
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done marks a popped request as finished (delivered or abandoned).
func (q *DeliveryQueue) Done() {
	q.unfinished.Add(-1)
}

// Len returns the number of queued requests.
func (q *DeliveryQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *DeliveryQueue) Cap() int {
	return cap(q.ch)
}

// Unfinished returns the number of requests pushed and not yet Done.
func (q *DeliveryQueue) Unfinished() int64 {
	return q.unfinished.Load()
}

// Dropped returns the number of requests discarded by PolicyDrop.
func (q *DeliveryQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Policy returns the queue policy.
func (q *DeliveryQueue) Policy() QueuePolicy {
	return q.policy
}
