package app

import (
	"fmt"
	"sync"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

// State is the lifecycle state of a device's background tasks.
type State int

const (
	// StateStopped: no background task has started yet, or the device is closed.
	StateStopped State = iota
	// StateStarting: background tasks are being launched.
	StateStarting
	// StateRunning: both background tasks are alive.
	StateRunning
	// StateStopping: Close is draining the pipeline.
	StateStopping
	// StateCrashed: a background task exited and waits for the next Write.
	StateCrashed
)

var stateNames = [...]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateCrashed, StateStopping},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped},
	StateCrashed:  {StateStarting, StateStopping},
}

// EventEmitter receives every accepted transition.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle guards the device state machine. Rejected transitions leave
// the state untouched.
type Lifecycle struct {
	mu       sync.RWMutex
	state    State
	restarts int

	logger  ports.Logger
	emitter EventEmitter
}

// NewLifecycle returns a Lifecycle in StateStopped. emitter may be nil.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{state: StateStopped, logger: logger, emitter: emitter}
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Restarts counts recoveries from StateCrashed.
func (l *Lifecycle) Restarts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.restarts
}

// TransitionTo moves to next. It fails with an error wrapping
// ErrNotRunning when leaving Stopped or Crashed the wrong way, and
// ErrAlreadyRunning otherwise.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !reachable(prev, next) {
		l.mu.Unlock()
		return rejectTransition(prev, next)
	}
	l.state = next
	if prev == StateCrashed && next == StateStarting {
		l.restarts++
	}
	l.mu.Unlock()

	// outside the lock; handlers may call State()
	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}
	l.logger.Debug("state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

// CanStop reports whether Close has tasks to stop.
func (l *Lifecycle) CanStop() bool {
	return reachable(l.State(), StateStopping)
}

func reachable(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func rejectTransition(from, to State) error {
	sentinel := domain.ErrAlreadyRunning
	if from == StateStopped || from == StateCrashed {
		sentinel = domain.ErrNotRunning
	}
	return fmt.Errorf("%w: cannot go from %s to %s", sentinel, from, to)
}
