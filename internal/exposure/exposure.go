package exposure

import (
	"omes/internal/schema"
)

// Exposure is the purchasing-power ledger. Buy admissions reserve notional
// eagerly; terminal outcomes release it by the reset quantity. Not thread
// safe: only one lifecycle phase touches it at a time.
type Exposure struct {
	initial schema.Notional
	current schema.Notional
}

// New creates a ledger with the given initial purchasing power.
func New(initial schema.Notional) *Exposure {
	return &Exposure{initial: initial, current: initial}
}

// OkToBuy reports whether the notional fits the remaining purchasing power.
func (e *Exposure) OkToBuy(notional schema.Notional) bool {
	return notional <= e.current
}

// Dec reserves notional for a buy submission.
func (e *Exposure) Dec(notional schema.Notional) {
	e.current -= notional
}

// Inc credits notional back to the purchasing power: a released reservation
// or sale proceeds. Proceeds can carry the ledger above its initial value.
func (e *Exposure) Inc(notional schema.Notional) {
	e.current += notional
}

// Current returns the remaining purchasing power.
func (e *Exposure) Current() schema.Notional {
	return e.current
}

// Initial returns the configured purchasing power.
func (e *Exposure) Initial() schema.Notional {
	return e.initial
}

// Clear restores the ledger to its initial value.
func (e *Exposure) Clear() {
	e.current = e.initial
}

// IsClear reports whether no notional is reserved.
func (e *Exposure) IsClear() bool {
	return e.current == e.initial
}
