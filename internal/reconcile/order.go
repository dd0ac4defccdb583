package reconcile

import "omes/internal/schema"

// Order is the mutable projection of exchange-visible order state. Created
// on first evidence, mutated in place by the reconciliation goroutine, never
// shared outside its OrderContext except as a copy inside an Update.
type Order struct {
	Sid       uint64
	ClientKey uint32
	SymbolID  uint32
	OrderID   int64
	Side      schema.Side
	Type      schema.OrderType
	TIF       schema.TimeInForce
	Price     schema.Price
	StopPrice schema.Price
	Qty       schema.Quantity
	LeavesQty schema.Quantity
	CumQty    schema.Quantity
	Status    schema.OrderStatus
	Reject    schema.RejectType
	Reason    string

	CreateTime int64
	UpdateTime int64
}

// OrderFromRequest builds the initial projection from the retained request
// plus the first report's quantities.
func OrderFromRequest(req *schema.NewOrderRequest, status schema.OrderStatus, leaves, cum schema.Quantity, updateTime int64) *Order {
	return &Order{
		Sid:        req.OrderSid,
		ClientKey:  req.ClientKey,
		SymbolID:   req.SymbolID,
		Side:       req.Side,
		Type:       req.Type,
		TIF:        req.TIF,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		Qty:        req.Qty,
		LeavesQty:  leaves,
		CumQty:     cum,
		Status:     status,
		CreateTime: updateTime,
		UpdateTime: updateTime,
	}
}
