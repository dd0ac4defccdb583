package book

import (
	"github.com/tidwall/btree"
	"github.com/yanun0323/logs"

	"omes/internal/schema"
)

// ValidationBook tracks the resting orders this gateway itself has out on
// one instrument, as price levels carrying an order count, plus the net long
// position. It answers admission questions only; it is not a matching book.
// Not thread safe: ownership moves between the admission path and the
// recovery listener, one lifecycle phase at a time.
type ValidationBook struct {
	symbolID uint32
	bids     *btree.Map[int64, int]
	asks     *btree.Map[int64, int]
	position *Position
}

// New creates a book for one instrument with the given starting position.
func New(symbolID uint32, initialPosition schema.Quantity) *ValidationBook {
	return &ValidationBook{
		symbolID: symbolID,
		bids:     btree.NewMap[int64, int](8),
		asks:     btree.NewMap[int64, int](8),
		position: NewPosition(initialPosition),
	}
}

// SymbolID returns the instrument this book validates.
func (b *ValidationBook) SymbolID() uint32 {
	return b.symbolID
}

// Position returns the position counter.
func (b *ValidationBook) Position() *Position {
	return b.position
}

// OkToBuy reports whether a buy at price would cross our own resting sells.
func (b *ValidationBook) OkToBuy(price schema.Price) schema.RejectType {
	if bestAsk, _, ok := b.asks.Min(); ok && int64(price) >= bestAsk {
		return schema.RejectCrossed
	}
	return schema.RejectNone
}

// OkToSell reports whether a sell at price/qty would cross our own resting
// buys or exceed the available long position.
func (b *ValidationBook) OkToSell(price schema.Price, qty schema.Quantity) schema.RejectType {
	if bestBid, _, ok := b.bids.Max(); ok && int64(price) <= bestBid {
		return schema.RejectCrossed
	}
	if !b.position.OkToSell(qty) {
		return schema.RejectInsufficientLongPosition
	}
	return schema.RejectNone
}

// NewBuy records an admitted buy resting at price.
func (b *ValidationBook) NewBuy(price schema.Price) {
	incLevel(b.bids, int64(price))
}

// NewSell records an admitted sell resting at price and reserves qty from
// the long position.
func (b *ValidationBook) NewSell(price schema.Price, qty schema.Quantity) {
	b.position.Dec(qty)
	incLevel(b.asks, int64(price))
}

// BuyClosed removes one buy order from the level at price. Used for filled,
// cancelled, expired and rejected terminal outcomes.
func (b *ValidationBook) BuyClosed(price schema.Price) {
	decLevel(b.bids, int64(price), "bid")
}

// SellClosed removes one sell order from the level at price and returns the
// reset quantity to the long position.
func (b *ValidationBook) SellClosed(price schema.Price, resetQty schema.Quantity) {
	decLevel(b.asks, int64(price), "ask")
	b.position.Inc(resetQty)
}

// BuyTrade credits the long position with an executed buy quantity.
func (b *ValidationBook) BuyTrade(execQty schema.Quantity) {
	b.position.Inc(execQty)
}

// BuyTradeCancelled reverses a busted buy execution.
func (b *ValidationBook) BuyTradeCancelled(execQty schema.Quantity) {
	b.position.Dec(execQty)
}

// SellTradeCancelled reverses a busted sell execution, returning the
// quantity to the long position.
func (b *ValidationBook) SellTradeCancelled(execQty schema.Quantity) {
	b.position.Inc(execQty)
}

// BestBid returns the highest resting buy price.
func (b *ValidationBook) BestBid() (schema.Price, bool) {
	p, _, ok := b.bids.Max()
	return schema.Price(p), ok
}

// BestAsk returns the lowest resting sell price.
func (b *ValidationBook) BestAsk() (schema.Price, bool) {
	p, _, ok := b.asks.Min()
	return schema.Price(p), ok
}

// LevelCount returns the number of resting orders at price on the side.
func (b *ValidationBook) LevelCount(side schema.Side, price schema.Price) int {
	var n int
	switch side {
	case schema.SideBuy:
		n, _ = b.bids.Get(int64(price))
	case schema.SideSell:
		n, _ = b.asks.Get(int64(price))
	}
	return n
}

// Clear empties both sides and restores the position to its initial value.
func (b *ValidationBook) Clear() {
	b.bids.Clear()
	b.asks.Clear()
	b.position.Clear()
}

// IsClear reports whether no levels rest and the position is at its initial
// value.
func (b *ValidationBook) IsClear() bool {
	return b.bids.Len() == 0 && b.asks.Len() == 0 && b.position.IsClear()
}

func incLevel(m *btree.Map[int64, int], price int64) {
	n, _ := m.Get(price)
	m.Set(price, n+1)
}

func decLevel(m *btree.Map[int64, int], price int64, side string) {
	n, ok := m.Get(price)
	if !ok {
		logs.Errorf("no %s level at price %d to release", side, price)
		return
	}
	if n <= 1 {
		m.Delete(price)
		return
	}
	m.Set(price, n-1)
}
