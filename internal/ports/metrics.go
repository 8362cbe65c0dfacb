package ports

import "time"

// Recorder receives pipeline events for metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	MessageWritten(bytes int)
	BatchBuilt(messages, bytes int)
	RequestDropped(messages int)
	RequestDelivered(messages int, duration time.Duration)
	RequestFailed(messages int)
	ConnectionOpened()
	QueueDepth(n int)
	InFlight(n int)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) MessageWritten(int)                  {}
func (NopRecorder) BatchBuilt(int, int)                 {}
func (NopRecorder) RequestDropped(int)                  {}
func (NopRecorder) RequestDelivered(int, time.Duration) {}
func (NopRecorder) RequestFailed(int)                   {}
func (NopRecorder) ConnectionOpened()                   {}
func (NopRecorder) QueueDepth(int)                      {}
func (NopRecorder) InFlight(int)                        {}
