package executor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"omes/internal/bus"
	"omes/internal/obs"
	"omes/internal/schema"
	"omes/internal/throttle"
)

// WarmupNumThrottles is the effectively unlimited budget installed while
// warming up, so synthetic traffic is never paced.
const WarmupNumThrottles = 1 << 20

// Engine is the exchange-facing sender.
type Engine interface {
	Send(req schema.Request) error
}

// CompletionHandler receives dispatch outcomes. Timeout, Throttled and
// ThrottledThenTimeout are terminal for the request; SentToExchange means
// the request is now in flight and its completion arrives via reconciliation.
type CompletionHandler interface {
	Timeout(req schema.Request)
	Throttled(req schema.Request)
	ThrottledThenTimeout(req schema.Request)
	SentToExchange(req schema.Request)
	Fail(req schema.Request, err error)
}

// ThrottleConfig sizes one throttle domain.
type ThrottleConfig struct {
	NumThrottles int
	Window       time.Duration
}

// Config sizes the dispatcher.
type Config struct {
	QueueCapacity int
	MaxBatchSize  int
	Throttles     []ThrottleConfig
}

type outcome uint16

const (
	outcomeTimeout outcome = iota
	outcomeThrottled
	outcomeThrottledThenTimeout
	outcomeSent
	outcomeFailed
)

type action struct {
	req schema.Request
	out outcome
	err error
}

type mode uint32

const (
	modeNoop mode = iota
	modeActive
)

// Executor is the single-consumer, throttle-gated, batching dispatcher. One
// goroutine drains the admitted-request queue into per-cycle batches,
// acquires throttle tokens, and forwards sends to the engine. It is the sole
// mutator of the throttle trackers.
type Executor struct {
	cfg      Config
	queue    *bus.Queue[schema.Request]
	trackers []*throttle.SlidingWindowTracker
	engine   Engine
	handler  CompletionHandler
	clock    throttle.Clock
	metrics  *obs.Metrics

	mode    atomic.Uint32
	running atomic.Bool
	done    chan struct{}

	sendBatch []schema.Request
	actions   []action
}

// New creates a dispatcher. The clock may be nil for wall time.
func New(cfg Config, engine Engine, handler CompletionHandler, clock throttle.Clock, metrics *obs.Metrics) *Executor {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 8
	}
	if clock == nil {
		clock = throttle.SystemClock
	}
	trackers := make([]*throttle.SlidingWindowTracker, 0, len(cfg.Throttles))
	for _, tc := range cfg.Throttles {
		trackers = append(trackers, throttle.NewSlidingWindowTracker(tc.NumThrottles, tc.Window, clock))
	}
	return &Executor{
		cfg:       cfg,
		queue:     bus.NewQueue[schema.Request](cfg.QueueCapacity),
		trackers:  trackers,
		engine:    engine,
		handler:   handler,
		clock:     clock,
		metrics:   metrics,
		done:      make(chan struct{}),
		sendBatch: make([]schema.Request, 0, cfg.MaxBatchSize),
		actions:   make([]action, 0, cfg.MaxBatchSize*2),
	}
}

// Offer hands an admitted request to the dispatcher without blocking.
func (e *Executor) Offer(req schema.Request) error {
	err := e.queue.TryPublish(req)
	if err != nil {
		e.metrics.IncQueueDrop()
	}
	return err
}

// QueueLen returns the number of requests awaiting dispatch.
func (e *Executor) QueueLen() int {
	return e.queue.Len()
}

// Start launches the consume loop. The loop exits when Stop is called or the
// context is cancelled.
func (e *Executor) Start(ctx context.Context) {
	e.running.Store(true)
	go e.run(ctx)
}

func (e *Executor) run(ctx context.Context) {
	defer close(e.done)
	for e.running.Load() {
		req, ok := e.recv(ctx)
		if !ok {
			return
		}
		e.process(req)
		// every processed request lands in actions exactly once, so the
		// action count is the batch size
		for len(e.actions) < e.cfg.MaxBatchSize {
			next, more := e.queue.TryPoll()
			if !more {
				break
			}
			e.process(next)
		}
		e.flush()
	}
}

func (e *Executor) recv(ctx context.Context) (schema.Request, bool) {
	return e.queue.Poll(ctx)
}

// process decides one request's fate: timeout before any throttle is
// touched, token acquired and batched for send, or a throttle outcome.
func (e *Executor) process(req schema.Request) {
	if mode(e.mode.Load()) != modeActive {
		e.addAction(req, outcomeFailed, errNotActive)
		return
	}
	base := req.Base()
	now := e.clock()
	if base.Deadline > 0 && now > base.Deadline {
		e.addAction(req, outcomeTimeout, nil)
		return
	}

	if base.ThrottleID < 0 || base.ThrottleID >= len(e.trackers) {
		e.addAction(req, outcomeFailed, errNoThrottleDomain)
		return
	}
	tracker := e.trackers[base.ThrottleID]
	tokens := base.Throttles
	if tokens <= 0 {
		tokens = 1
	}

	if tracker.TryAcquireN(tokens) {
		e.batchSend(req)
		return
	}

	// A throttled request means everything behind it in this batch would
	// throttle too, so stop optimistic batching and release what we have.
	e.flushSends()
	e.metrics.IncThrottleHit()

	// A request without a deadline has nothing to bound the wait, so it is
	// not waitable.
	if !base.Retry || tokens > 1 || base.Deadline == 0 {
		e.addAction(req, outcomeThrottled, nil)
		return
	}
	e.waitForToken(req, tracker, tokens)
}

// waitForToken busy-waits for the next token, bounded by the request's own
// deadline and the running flag. Sub-window latency matters here, so this is
// the one deliberate spin in the system.
func (e *Executor) waitForToken(req schema.Request, tracker *throttle.SlidingWindowTracker, tokens int) {
	base := req.Base()
	for e.running.Load() {
		now := e.clock()
		if base.Deadline > 0 && now > base.Deadline {
			e.addAction(req, outcomeThrottledThenTimeout, nil)
			return
		}
		if tracker.TryAcquireN(tokens) {
			e.batchSend(req)
			return
		}
		runtime.Gosched()
	}
	e.addAction(req, outcomeFailed, errStopped)
}

func (e *Executor) batchSend(req schema.Request) {
	e.sendBatch = append(e.sendBatch, req)
	e.addAction(req, outcomeSent, nil)
}

func (e *Executor) addAction(req schema.Request, out outcome, err error) {
	e.actions = append(e.actions, action{req: req, out: out, err: err})
}

// flush sends every batched order first, so a failure on one does not block
// sibling sends, then reports outcomes in original arrival order.
func (e *Executor) flush() {
	e.flushSends()
	for i := range e.actions {
		a := &e.actions[i]
		switch a.out {
		case outcomeTimeout:
			e.metrics.IncDispatchTimeout()
			e.handler.Timeout(a.req)
		case outcomeThrottled:
			e.handler.Throttled(a.req)
		case outcomeThrottledThenTimeout:
			e.handler.ThrottledThenTimeout(a.req)
		case outcomeSent:
			e.metrics.IncDispatchSent()
			e.handler.SentToExchange(a.req)
		case outcomeFailed:
			e.handler.Fail(a.req, a.err)
		}
	}
	e.actions = e.actions[:0]
}

func (e *Executor) flushSends() {
	for i, req := range e.sendBatch {
		if err := e.engine.Send(req); err != nil {
			logs.Errorf("send failed for order sid %d: %v", req.Base().OrderSid, err)
			e.demoteSent(req, err)
		}
		e.sendBatch[i] = nil
	}
	e.sendBatch = e.sendBatch[:0]
}

// demoteSent rewrites the pending Sent outcome of a failed send so the
// originator hears Fail instead.
func (e *Executor) demoteSent(req schema.Request, err error) {
	for i := range e.actions {
		if e.actions[i].req == req && e.actions[i].out == outcomeSent {
			e.actions[i].out = outcomeFailed
			e.actions[i].err = err
			return
		}
	}
}

// Warmup installs unlimited budgets so synthetic traffic is never paced.
func (e *Executor) Warmup() {
	for _, t := range e.trackers {
		t.SetNumThrottles(WarmupNumThrottles)
	}
	e.mode.Store(uint32(modeActive))
}

// Recover enables dispatch with configured budgets.
func (e *Executor) Recover() {
	e.restoreBudgets()
	e.mode.Store(uint32(modeActive))
}

// Active enables dispatch with configured budgets.
func (e *Executor) Active() {
	e.restoreBudgets()
	e.mode.Store(uint32(modeActive))
}

// Reset disables dispatch and restores throttle budgets to their configured
// starting values.
func (e *Executor) Reset() {
	e.mode.Store(uint32(modeNoop))
	for _, t := range e.trackers {
		t.Clear()
	}
}

// Stop signals the consume loop to exit. Done reports when it has.
func (e *Executor) Stop() {
	e.running.Store(false)
	e.queue.Close()
}

// Done is closed when the consume loop has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Running reports whether the consume loop is still live.
func (e *Executor) Running() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// IsClear reports whether nothing is queued and every tracker is at its
// configured budget.
func (e *Executor) IsClear() bool {
	if e.queue.Len() != 0 {
		return false
	}
	for _, t := range e.trackers {
		if !t.IsClear() {
			return false
		}
	}
	return true
}

func (e *Executor) restoreBudgets() {
	for i, t := range e.trackers {
		t.SetNumThrottles(e.cfg.Throttles[i].NumThrottles)
	}
}

var (
	errNotActive        = errors.New("dispatcher not active")
	errNoThrottleDomain = errors.New("no such throttle domain")
	errStopped          = errors.New("dispatcher stopped")
)
