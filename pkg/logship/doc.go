// Package logship provides an embeddable log delivery device.
//
// A [Device] is an io.Writer: every Write call is one log message. Messages
// are buffered, grouped into batches, encoded, and posted to a collector
// over a persistent, periodically rotated connection. A bounded queue sits
// between batching and the network so that a slow collector either applies
// backpressure to writers or drops batches, depending on the queue policy.
//
// # Basic Usage
//
//	cfg := logship.DefaultConfig()
//	cfg.APIKey = "your-api-key"
//
//	dev, err := logship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	logger := stdlog.New(dev, "", 0)
//	logger.Println("hello")
//
// # Flushing
//
// A batch is flushed when BatchSize messages are buffered (inside the Write
// that filled the buffer) or when FlushInterval has passed since the last
// flush. [Device.Flush] sends the buffer synchronously. [Device.Close] flushes,
// waits up to ShutdownAttempts × ShutdownPollInterval for delivery, and
// returns [ErrShutdownTimeout] if requests were still pending.
//
// # Delivery Guarantees
//
// Failed sends are retried with a linear backoff capped at 30 seconds, in
// the background and without bound. Under the drop policy a batch that finds
// the queue full is discarded and reported through [EventHandler.OnDrop].
// Retried batches may be delivered after newer ones.
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler]) and pass it via
// [WithEventHandler] to observe lifecycle changes, sends, and drops.
//
// # Lifecycle States
//
// A Device can be in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Use [Device.Status] to
// query the current state.
package logship
