package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State tracks the lifecycle of a composed service.
type State uint16

const (
	StateInit State = iota
	StatePendingWarmup
	StateWarmup
	StatePendingRecovery
	StateRecovery
	StatePendingActive
	StateActive
	StatePendingReset
	StateReset
	StatePendingStop
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePendingWarmup:
		return "pending-warmup"
	case StateWarmup:
		return "warmup"
	case StatePendingRecovery:
		return "pending-recovery"
	case StateRecovery:
		return "recovery"
	case StatePendingActive:
		return "pending-active"
	case StateActive:
		return "active"
	case StatePendingReset:
		return "pending-reset"
	case StateReset:
		return "reset"
	case StatePendingStop:
		return "pending-stop"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint16(s))
	}
}

// validTransitions lists legal target states per resting state. Stopped is
// terminal.
var validTransitions = map[State][]State{
	StateInit:     {StateWarmup, StateRecovery, StateActive, StateStopped},
	StateWarmup:   {StateReset, StateStopped},
	StateRecovery: {StateActive, StateReset, StateStopped},
	StateActive:   {StateReset, StateStopped},
	StateReset:    {StateRecovery, StateActive, StateWarmup, StateStopped},
	StateStopped:  {},
}

// Hooks are invoked around each transition. A nil hook is a no-op. The
// Pending hook prepares children for the target state; the enter hook
// confirms it. Either returning an error aborts the transition.
type Hooks struct {
	PendingWarmup   func(context.Context) error
	Warmup          func(context.Context) error
	PendingRecovery func(context.Context) error
	Recovery        func(context.Context) error
	PendingActive   func(context.Context) error
	Active          func(context.Context) error
	PendingReset    func(context.Context) error
	Reset           func(context.Context) error
	PendingStop     func(context.Context) error
	Stop            func(context.Context) error
}

// Controller drives a service through its lifecycle. Each transition runs as
// a linear sequence: mark pending, run the pending hook, run the enter hook,
// commit. The first failure aborts and restores the previous resting state.
// Transitions are serialized; the current state is readable from any
// goroutine.
type Controller struct {
	name  string
	state atomic.Uint32
	hooks Hooks

	mu sync.Mutex
}

// NewController creates a controller in Init.
func NewController(name string, hooks Hooks) *Controller {
	c := &Controller{name: name, hooks: hooks}
	c.state.Store(uint32(StateInit))
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// TransitionTo drives the service to target. Transitioning to the current
// state is a no-op.
func (c *Controller) TransitionTo(ctx context.Context, target State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.State()
	if from == target {
		return nil
	}
	if !transitionAllowed(from, target) {
		return errors.Wrap(ErrInvalidTransition, fmt.Sprintf("%s: %s -> %s", c.name, from, target))
	}

	pendingState, pendingHook, enterHook := c.phase(target)
	c.state.Store(uint32(pendingState))
	logs.Infof("%s: %s -> %s", c.name, from, pendingState)

	if pendingHook != nil {
		if err := pendingHook(ctx); err != nil {
			c.state.Store(uint32(from))
			return errors.Wrap(err, fmt.Sprintf("%s: %s aborted", c.name, pendingState))
		}
	}
	if enterHook != nil {
		if err := enterHook(ctx); err != nil {
			c.state.Store(uint32(from))
			return errors.Wrap(err, fmt.Sprintf("%s: enter %s aborted", c.name, target))
		}
	}

	c.state.Store(uint32(target))
	logs.Infof("%s: %s -> %s", c.name, pendingState, target)
	return nil
}

func transitionAllowed(from, to State) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (c *Controller) phase(target State) (State, func(context.Context) error, func(context.Context) error) {
	switch target {
	case StateWarmup:
		return StatePendingWarmup, c.hooks.PendingWarmup, c.hooks.Warmup
	case StateRecovery:
		return StatePendingRecovery, c.hooks.PendingRecovery, c.hooks.Recovery
	case StateActive:
		return StatePendingActive, c.hooks.PendingActive, c.hooks.Active
	case StateReset:
		return StatePendingReset, c.hooks.PendingReset, c.hooks.Reset
	case StateStopped:
		return StatePendingStop, c.hooks.PendingStop, c.hooks.Stop
	default:
		return target, nil, nil
	}
}
