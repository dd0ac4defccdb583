package linehandler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"omes/internal/executor"
	"omes/internal/lifecycle"
	"omes/internal/reconcile"
	"omes/internal/schema"
)

const (
	defaultStopTimeout     = 5 * time.Second
	defaultRecoveryTimeout = 30 * time.Second
)

// Engine is the exchange-facing collaborator: it owns the session transport,
// decodes execution reports and feeds them back through OnReport.
type Engine interface {
	Send(req schema.Request) error
	Warmup(ctx context.Context) error
	// StartRecovery asks the exchange side to replay current order state.
	// Replayed reports arrive through the normal report path, terminated by
	// an end-of-recovery marker.
	StartRecovery(ctx context.Context) error
	Active(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset() error
	IsClear() bool
}

// Config sizes the line handler.
type Config struct {
	Name            string
	Session         uuid.UUID
	StopTimeout     time.Duration
	RecoveryTimeout time.Duration
}

// LineHandler composes the dispatcher, the update-processing stage and the
// exchange-facing engine behind one lifecycle state machine. Transition
// ordering is what makes recovery and shutdown safe: children reach their
// state before the engine is told to move.
type LineHandler struct {
	cfg     Config
	session uuid.UUID
	engine  Engine
	exec    *executor.Executor
	proc    *reconcile.Processor
	ctrl    *lifecycle.Controller
}

// New wires a line handler. Start must be called before any transition.
func New(cfg Config, engine Engine, exec *executor.Executor, proc *reconcile.Processor) *LineHandler {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = defaultRecoveryTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "line"
	}
	if cfg.Session == uuid.Nil {
		cfg.Session = uuid.New()
	}
	lh := &LineHandler{
		cfg:     cfg,
		session: cfg.Session,
		engine:  engine,
		exec:    exec,
		proc:    proc,
	}
	lh.ctrl = lifecycle.NewController(cfg.Name, lifecycle.Hooks{
		PendingWarmup:   lh.onPendingWarmup,
		Warmup:          lh.onWarmup,
		PendingRecovery: lh.onPendingRecovery,
		Recovery:        lh.onRecovery,
		Active:          lh.onActive,
		Reset:           lh.onReset,
		PendingStop:     lh.onPendingStop,
		Stop:            lh.onStop,
	})
	return lh
}

// Session identifies this line across restarts.
func (lh *LineHandler) Session() uuid.UUID {
	return lh.session
}

// Start launches the dispatcher and update-processing goroutines.
func (lh *LineHandler) Start(ctx context.Context) {
	logs.Infof("%s: starting session %s", lh.cfg.Name, lh.session)
	lh.exec.Start(ctx)
	lh.proc.Start(ctx)
}

// State returns the current lifecycle state.
func (lh *LineHandler) State() lifecycle.State {
	return lh.ctrl.State()
}

// Transition drives the line to target.
func (lh *LineHandler) Transition(ctx context.Context, target lifecycle.State) error {
	return lh.ctrl.TransitionTo(ctx, target)
}

// Offer hands an admitted request to the dispatcher.
func (lh *LineHandler) Offer(req schema.Request) error {
	return lh.exec.Offer(req)
}

// OnReport feeds a decoded execution report into the update stage.
func (lh *LineHandler) OnReport(rep schema.Report) error {
	return lh.proc.Offer(rep)
}

// IsClear reports whether every child holds no state.
func (lh *LineHandler) IsClear() bool {
	return lh.exec.IsClear() && lh.proc.IsClear() && lh.engine.IsClear()
}

func (lh *LineHandler) onPendingWarmup(context.Context) error {
	lh.exec.Warmup()
	lh.proc.Warmup()
	return nil
}

func (lh *LineHandler) onWarmup(ctx context.Context) error {
	return lh.engine.Warmup(ctx)
}

// onPendingRecovery moves the children into recovery before the engine is
// told to replay, so the first replayed reports land on listeners that are
// already installed.
func (lh *LineHandler) onPendingRecovery(context.Context) error {
	lh.exec.Recover()
	lh.proc.Recover()
	return nil
}

func (lh *LineHandler) onRecovery(ctx context.Context) error {
	if err := lh.engine.StartRecovery(ctx); err != nil {
		return errors.Wrap(err, "start recovery")
	}
	select {
	case <-lh.proc.EndOfRecovery():
		return nil
	case <-time.After(lh.cfg.RecoveryTimeout):
		return errors.New("recovery did not complete within bound")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lh *LineHandler) onActive(ctx context.Context) error {
	lh.exec.Active()
	lh.proc.Active()
	return lh.engine.Active(ctx)
}

func (lh *LineHandler) onReset(context.Context) error {
	lh.exec.Reset()
	lh.proc.Reset()
	if err := lh.engine.Reset(); err != nil {
		return errors.Wrap(err, "engine reset")
	}
	if !lh.IsClear() {
		return errors.New("reset incomplete: a child still holds state")
	}
	return nil
}

// onPendingStop drains the child goroutines before the engine is told to
// stop. A child missing the bound is an error log, not a crash.
func (lh *LineHandler) onPendingStop(context.Context) error {
	lh.exec.Stop()
	waitDone(lh.exec.Done(), lh.cfg.StopTimeout, lh.cfg.Name+" dispatcher")
	lh.proc.Stop()
	waitDone(lh.proc.Done(), lh.cfg.StopTimeout, lh.cfg.Name+" update stage")
	return nil
}

func (lh *LineHandler) onStop(ctx context.Context) error {
	return lh.engine.Stop(ctx)
}

func waitDone(done <-chan struct{}, bound time.Duration, name string) bool {
	timer := time.NewTimer(bound)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		logs.Errorf("%s did not stop within %s", name, bound)
		return false
	}
}
