package reconcile

// ContextState tags an order context inside the single context arena.
// Archived contexts stay indexed so late updates are recognizable as
// anomalies instead of resurrecting state.
type ContextState uint16

const (
	ContextActive ContextState = iota
	ContextArchived
)

// OrderContext binds one Order to its sequencing channel. It is the unit of
// reconciliation state, owned by the Manager.
type OrderContext struct {
	channel *Channel
	order   *Order
	state   ContextState
}

func newOrderContext(order *Order, channel *Channel) *OrderContext {
	return &OrderContext{channel: channel, order: order, state: ContextActive}
}

// Order returns the bound order projection.
func (c *OrderContext) Order() *Order {
	return c.order
}

// Channel returns the bound sequencing channel.
func (c *OrderContext) Channel() *Channel {
	return c.channel
}

// State returns the context lifecycle tag.
func (c *OrderContext) State() ContextState {
	return c.state
}

func (c *OrderContext) archive() {
	c.state = ContextArchived
}
