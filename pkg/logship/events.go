package logship

import (
	"time"

	"github.com/bft-labs/logship/internal/app"
	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/pkg/log"
)

// State represents the lifecycle state of a Device.
type State int

const (
	// StateStopped: no background task is running. A new Device starts here
	// and returns here after Close.
	StateStopped State = iota
	// StateStarting: background tasks are being launched.
	StateStarting
	// StateRunning: the flush loop and delivery worker are running.
	StateRunning
	// StateStopping: Close is draining the pipeline.
	StateStopping
	// StateCrashed: a background task died and will be restarted by the next Write.
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// SendSuccessEvent is emitted when the collector accepts a request.
type SendSuccessEvent struct {
	RequestID string
	Messages  int
	Bytes     int
	Attempts  int
	Duration  time.Duration
}

// SendErrorEvent is emitted when a send attempt fails. The request is
// retried after RetryIn; a zero RetryIn means the caller of Flush got the error.
type SendErrorEvent struct {
	RequestID string
	Messages  int
	Attempts  int
	Error     error
	RetryIn   time.Duration
}

// DropEvent is emitted when the drop queue policy discards a request.
type DropEvent struct {
	RequestID string
	Messages  int
}

// EventHandler receives device events. Handlers are called synchronously
// from the goroutine that caused the event and should return quickly.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnSendSuccess(SendSuccessEvent)
	OnSendError(SendErrorEvent)
	OnDrop(DropEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the events you need.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnSendSuccess(SendSuccessEvent) {}
func (BaseEventHandler) OnSendError(SendErrorEvent)     {}
func (BaseEventHandler) OnDrop(DropEvent)               {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
// A panicking handler is logged and never interrupts the pipeline.
type eventEmitterWrapper struct {
	handler EventHandler
	logger  Logger
}

func (e *eventEmitterWrapper) guard(event string) {
	if r := recover(); r != nil && e.logger != nil {
		e.logger.Error("event handler panicked",
			log.String("event", event),
			log.Any("panic", r))
	}
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	defer e.guard("state change")
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnSendSuccess(req *domain.Request, duration time.Duration) {
	if e.handler == nil {
		return
	}
	defer e.guard("send success")
	e.handler.OnSendSuccess(SendSuccessEvent{
		RequestID: req.ID,
		Messages:  req.Messages,
		Bytes:     len(req.Body),
		Attempts:  req.Attempts,
		Duration:  duration,
	})
}

func (e *eventEmitterWrapper) OnSendError(req *domain.Request, err error, retryIn time.Duration) {
	if e.handler == nil {
		return
	}
	defer e.guard("send error")
	e.handler.OnSendError(SendErrorEvent{
		RequestID: req.ID,
		Messages:  req.Messages,
		Attempts:  req.Attempts,
		Error:     err,
		RetryIn:   retryIn,
	})
}

func (e *eventEmitterWrapper) OnDrop(req *domain.Request) {
	if e.handler == nil {
		return
	}
	defer e.guard("drop")
	e.handler.OnDrop(DropEvent{RequestID: req.ID, Messages: req.Messages})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
