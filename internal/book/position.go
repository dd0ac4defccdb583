package book

import "omes/internal/schema"

// Position tracks the long quantity available to sell on one instrument.
type Position struct {
	initial schema.Quantity
	current schema.Quantity
}

// NewPosition creates a position with the given starting quantity.
func NewPosition(initial schema.Quantity) *Position {
	return &Position{initial: initial, current: initial}
}

// OkToSell reports whether qty can be covered by the current position.
func (p *Position) OkToSell(qty schema.Quantity) bool {
	return qty <= p.current
}

// Dec reserves qty from the position for a sell submission.
func (p *Position) Dec(qty schema.Quantity) {
	p.current -= qty
}

// Inc returns qty to the position.
func (p *Position) Inc(qty schema.Quantity) {
	p.current += qty
}

// Current returns the available long quantity.
func (p *Position) Current() schema.Quantity {
	return p.current
}

// Clear restores the position to its initial quantity.
func (p *Position) Clear() {
	p.current = p.initial
}

// IsClear reports whether nothing is reserved from the position.
func (p *Position) IsClear() bool {
	return p.current == p.initial
}
