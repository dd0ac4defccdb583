package schema

// Price is a scaled integer. The scale is defined by configuration.
type Price int64

// Quantity is a scaled integer. The scale is defined by configuration.
type Quantity int64

// Notional is a scaled integer. The scale is defined by configuration.
type Notional int64

// NotionalOf returns price * qty in notional units.
func NotionalOf(price Price, qty Quantity) Notional {
	return Notional(int64(price) * int64(qty))
}

// Side describes order direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceDay
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

// OrderStatus is the exchange-visible state of an order.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusNew
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusExpired
)

// Terminal reports whether no further updates are expected after the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// CompletionType is the final outcome of an order request.
type CompletionType uint16

const (
	CompletionUnknown CompletionType = iota
	CompletionOK
	CompletionRejected
	CompletionRejectedInternally
	CompletionFailed
	CompletionAlreadyInPendingCancel
	CompletionTimeout
	CompletionThrottled
	CompletionThrottledThenTimeout
	CompletionSent
	CompletionNotSupported
)

// RejectType is a coarse reason code for rejected requests.
type RejectType uint16

const (
	RejectNone RejectType = iota
	RejectExceedPurchasingPower
	RejectCrossed
	RejectInsufficientLongPosition
	RejectExceedUnderlyingThrottle
	RejectUnknownOrder
	RejectDuplicateOrder
	RejectIncorrectQty
	RejectExchange
	RejectOther
)
