package book

import (
	"testing"

	"omes/internal/schema"
)

func TestCrossingChecks(t *testing.T) {
	b := New(1, 100)

	b.NewSell(105, 10)
	if rt := b.OkToBuy(104); rt != schema.RejectNone {
		t.Fatalf("buy below best ask should pass, got reject %d", rt)
	}
	if rt := b.OkToBuy(105); rt != schema.RejectCrossed {
		t.Fatalf("buy at best ask should cross, got reject %d", rt)
	}
	if rt := b.OkToBuy(106); rt != schema.RejectCrossed {
		t.Fatalf("buy through best ask should cross, got reject %d", rt)
	}

	b.NewBuy(100)
	if rt := b.OkToSell(101, 1); rt != schema.RejectNone {
		t.Fatalf("sell above best bid should pass, got reject %d", rt)
	}
	if rt := b.OkToSell(100, 1); rt != schema.RejectCrossed {
		t.Fatalf("sell at best bid should cross, got reject %d", rt)
	}
	if rt := b.OkToSell(99, 1); rt != schema.RejectCrossed {
		t.Fatalf("sell through best bid should cross, got reject %d", rt)
	}
}

func TestSellBoundedByPosition(t *testing.T) {
	b := New(1, 5)
	if rt := b.OkToSell(200, 5); rt != schema.RejectNone {
		t.Fatalf("sell of full position should pass, got reject %d", rt)
	}
	if rt := b.OkToSell(200, 6); rt != schema.RejectInsufficientLongPosition {
		t.Fatalf("oversell should be refused, got reject %d", rt)
	}

	b.NewSell(200, 3)
	if rt := b.OkToSell(201, 3); rt != schema.RejectInsufficientLongPosition {
		t.Fatalf("reserved position must not be sellable again, got reject %d", rt)
	}
}

func TestLevelLifecycle(t *testing.T) {
	b := New(1, 10)

	b.NewBuy(100)
	b.NewBuy(100)
	b.NewBuy(99)
	if n := b.LevelCount(schema.SideBuy, 100); n != 2 {
		t.Fatalf("level 100 count = %d, want 2", n)
	}
	if best, ok := b.BestBid(); !ok || best != 100 {
		t.Fatalf("best bid = %d ok=%t, want 100", best, ok)
	}

	b.BuyClosed(100)
	b.BuyClosed(100)
	if n := b.LevelCount(schema.SideBuy, 100); n != 0 {
		t.Fatalf("drained level should disappear, count %d", n)
	}
	if best, ok := b.BestBid(); !ok || best != 99 {
		t.Fatalf("best bid = %d ok=%t, want 99 after level drain", best, ok)
	}
	b.BuyClosed(99)

	if !b.IsClear() {
		t.Fatalf("reversed book should be clear")
	}
}

func TestSellReversalRestoresPosition(t *testing.T) {
	b := New(1, 10)

	b.NewSell(105, 6)
	if b.Position().Current() != 4 {
		t.Fatalf("position = %d, want 4 after reservation", b.Position().Current())
	}

	// two executed, four returned at the terminal event
	b.SellClosed(105, 4)
	if b.Position().Current() != 8 {
		t.Fatalf("position = %d, want 8 after reset credit", b.Position().Current())
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatalf("ask level should be gone after close")
	}
}

func TestBuyTradeFlow(t *testing.T) {
	b := New(1, 0)

	b.NewBuy(100)
	b.BuyTrade(5)
	if b.Position().Current() != 5 {
		t.Fatalf("position = %d, want 5 after buy execution", b.Position().Current())
	}
	b.BuyTradeCancelled(5)
	if b.Position().Current() != 0 {
		t.Fatalf("position = %d, want 0 after bust", b.Position().Current())
	}
	b.BuyClosed(100)
	if !b.IsClear() {
		t.Fatalf("book should be clear after reversal")
	}
}

func TestClear(t *testing.T) {
	b := New(7, 42)
	b.NewBuy(10)
	b.NewSell(20, 5)
	b.Clear()
	if !b.IsClear() {
		t.Fatalf("clear should empty levels and restore position")
	}
	if b.Position().Current() != 42 {
		t.Fatalf("position = %d, want initial 42", b.Position().Current())
	}
}
