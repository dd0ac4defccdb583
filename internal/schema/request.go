package schema

// RequestKind distinguishes order request variants.
type RequestKind uint16

const (
	RequestKindUnknown RequestKind = iota
	RequestKindNew
	RequestKindCancel
	RequestKindAmend
)

// RequestBase carries the dispatch fields shared by all request kinds.
type RequestBase struct {
	Kind       RequestKind
	OrderSid   uint64
	ClientKey  uint32
	SymbolID   uint32
	Deadline   int64 // unix nanos, 0 means no deadline
	Retry      bool  // permits waiting for a throttle token
	ThrottleID int   // throttle domain index
	Throttles  int   // tokens required, at least 1

	Completion CompletionType
	Reject     RejectType
	Reason     string
}

// Request is the dispatcher-facing view of an order request.
type Request interface {
	Base() *RequestBase
}

// NewOrderRequest asks the exchange to place a new order.
type NewOrderRequest struct {
	RequestBase
	Side      Side
	Type      OrderType
	TIF       TimeInForce
	Price     Price
	StopPrice Price
	Qty       Quantity
	IsAlgo    bool

	// Guessed marks a request reconstructed from execution reports during
	// recovery. Bookkeeping only, never resent.
	Guessed bool
}

// Base returns the shared dispatch fields.
func (r *NewOrderRequest) Base() *RequestBase { return &r.RequestBase }

// CancelOrderRequest asks the exchange to cancel an in-flight order.
type CancelOrderRequest struct {
	RequestBase
	OrderSidToCancel uint64
	Side             Side
	Force            bool
}

// Base returns the shared dispatch fields.
func (r *CancelOrderRequest) Base() *RequestBase { return &r.RequestBase }

// AmendOrderRequest is accepted at the interface but not supported.
type AmendOrderRequest struct {
	RequestBase
	OrderSidToAmend uint64
	Price           Price
	Qty             Quantity
}

// Base returns the shared dispatch fields.
func (r *AmendOrderRequest) Base() *RequestBase { return &r.RequestBase }

// RequestCompletion is delivered exactly once per request to its originator.
type RequestCompletion struct {
	ClientKey uint32
	OrderSid  uint64
	Type      CompletionType
	Reject    RejectType
	Reason    string
}
