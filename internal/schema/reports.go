package schema

// ReportKind identifies the execution-report variants coming back from the
// exchange-facing engine, already decoded from the wire.
type ReportKind uint16

const (
	ReportUnknown ReportKind = iota
	ReportOrderAccepted
	ReportOrderRejected
	ReportOrderCancelled
	ReportOrderExpired
	ReportCancelRejected
	ReportAmendRejected
	ReportTradeCreated
	ReportTradeCancelled
	ReportEndOfRecovery
)

// OrderAccepted reports an order resting on the exchange.
type OrderAccepted struct {
	OrderSid   uint64
	SymbolID   uint32
	OrderID    int64 // exchange-assigned
	Side       Side
	Status     OrderStatus
	Price      Price
	LeavesQty  Quantity
	CumQty     Quantity
	UpdateTime int64
}

// OrderRejected reports an order refused by the exchange.
type OrderRejected struct {
	OrderSid   uint64
	SymbolID   uint32
	OrderID    int64
	Side       Side
	Status     OrderStatus
	Price      Price
	LeavesQty  Quantity
	CumQty     Quantity
	Reject     RejectType
	Reason     string
	UpdateTime int64
}

// OrderCancelled reports a cancelled order. OrigOrderSid is the cancelled
// order; OrderSid is the sid the exchange echoed back, which may be either
// the cancel request or the cancelled order itself.
type OrderCancelled struct {
	OrderSid     uint64
	OrigOrderSid uint64
	SymbolID     uint32
	OrderID      int64
	Side         Side
	Status       OrderStatus
	Price        Price
	LeavesQty    Quantity
	CumQty       Quantity
	UpdateTime   int64
}

// OrderExpired reports an order expired by the exchange.
type OrderExpired struct {
	OrderSid   uint64
	SymbolID   uint32
	OrderID    int64
	Side       Side
	Status     OrderStatus
	Price      Price
	LeavesQty  Quantity
	CumQty     Quantity
	UpdateTime int64
}

// CancelRejected reports a refused cancel request.
type CancelRejected struct {
	OrderSid   uint64 // sid of the cancel request
	SymbolID   uint32
	Status     OrderStatus
	Reject     RejectType
	Reason     string
	UpdateTime int64
}

// AmendRejected reports a refused amend request.
type AmendRejected struct {
	OrderSid   uint64 // sid of the amend request
	SymbolID   uint32
	Status     OrderStatus
	Reject     RejectType
	Reason     string
	UpdateTime int64
}

// TradeCreated reports an execution against a resting or incoming order.
type TradeCreated struct {
	TradeSid   uint64
	OrderSid   uint64
	SymbolID   uint32
	OrderID    int64
	Side       Side
	Status     OrderStatus
	ExecPrice  Price
	ExecQty    Quantity
	LeavesQty  Quantity
	CumQty     Quantity
	UpdateTime int64
}

// TradeCancelled reports a bust of a previously reported trade.
type TradeCancelled struct {
	TradeSid   uint64
	OrderSid   uint64
	SymbolID   uint32
	Side       Side
	Status     OrderStatus
	ExecPrice  Price
	ExecQty    Quantity
	CumQty     Quantity
	LeavesQty  Quantity
	UpdateTime int64
}

// Report is one decoded execution report. Exactly one payload pointer is set,
// matching Kind.
type Report struct {
	Kind           ReportKind
	Accepted       *OrderAccepted
	Rejected       *OrderRejected
	Cancelled      *OrderCancelled
	Expired        *OrderExpired
	CancelRejected *CancelRejected
	AmendRejected  *AmendRejected
	Trade          *TradeCreated
	TradeCancelled *TradeCancelled
}
