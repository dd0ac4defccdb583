package reconcile

import (
	"context"
	"sync"

	"omes/internal/bus"
	"omes/internal/schema"
)

// Processor is the update-processing stage: one goroutine consumes decoded
// execution reports off a bounded queue and feeds the manager. The engine
// publishes an end-of-recovery marker into the same stream so completion
// ordering matches delivery ordering.
type Processor struct {
	queue *bus.Queue[schema.Report]
	mgr   *Manager
	done  chan struct{}

	mu            sync.Mutex
	endOfRecovery chan struct{}
}

// NewProcessor creates a processor over the given manager.
func NewProcessor(mgr *Manager, queueCapacity int) *Processor {
	return &Processor{
		queue:         bus.NewQueue[schema.Report](queueCapacity),
		mgr:           mgr,
		done:          make(chan struct{}),
		endOfRecovery: make(chan struct{}),
	}
}

// Manager returns the wrapped reconciliation manager.
func (p *Processor) Manager() *Manager {
	return p.mgr
}

// Offer hands a decoded report to the stage without blocking.
func (p *Processor) Offer(rep schema.Report) error {
	return p.queue.TryPublish(rep)
}

// Start launches the consume loop.
func (p *Processor) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)
	for {
		rep, ok := p.queue.Poll(ctx)
		if !ok {
			return
		}
		if rep.Kind == schema.ReportEndOfRecovery {
			p.signalEndOfRecovery()
			continue
		}
		p.mgr.Handle(rep)
	}
}

func (p *Processor) signalEndOfRecovery() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.endOfRecovery:
	default:
		close(p.endOfRecovery)
	}
}

// EndOfRecovery is closed once the end-of-recovery marker has been consumed.
// Recover rearms it.
func (p *Processor) EndOfRecovery() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endOfRecovery
}

// Warmup enables the manager for synthetic traffic.
func (p *Processor) Warmup() {
	p.mgr.Warmup()
}

// Recover rearms the end-of-recovery signal and installs the recovery pass.
func (p *Processor) Recover() {
	p.mu.Lock()
	p.endOfRecovery = make(chan struct{})
	p.mu.Unlock()
	p.mgr.Recover()
}

// Active switches the manager to normal dispatch.
func (p *Processor) Active() {
	p.mgr.Active()
}

// Reset clears all reconciliation state.
func (p *Processor) Reset() {
	p.mgr.Reset()
}

// Stop closes the report queue; the loop exits after draining it.
func (p *Processor) Stop() {
	p.queue.Close()
}

// Done is closed when the consume loop has exited.
func (p *Processor) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the consume loop is still live.
func (p *Processor) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// IsClear reports whether the stage holds no state.
func (p *Processor) IsClear() bool {
	return p.queue.Len() == 0 && p.mgr.IsClear()
}
