package exposure

import (
	"testing"

	"omes/internal/schema"
)

func TestReserveAndCredit(t *testing.T) {
	e := New(1000)

	if !e.OkToBuy(1000) {
		t.Fatalf("full budget should be spendable")
	}
	if e.OkToBuy(1001) {
		t.Fatalf("over-budget notional should be refused")
	}

	e.Dec(600)
	if e.Current() != 400 {
		t.Fatalf("current = %d, want 400", e.Current())
	}
	if e.OkToBuy(401) {
		t.Fatalf("reserved notional must not be spendable again")
	}

	e.Inc(600)
	if e.Current() != 1000 {
		t.Fatalf("current = %d, want 1000 after full credit", e.Current())
	}
	if !e.IsClear() {
		t.Fatalf("fully credited ledger should be clear")
	}
}

func TestSaleProceedsExceedInitial(t *testing.T) {
	e := New(500)
	e.Inc(300)
	if e.Current() != 800 {
		t.Fatalf("current = %d, want 800 after sale proceeds", e.Current())
	}
	if e.IsClear() {
		t.Fatalf("ledger above initial is not clear")
	}
}

func TestConservationAcrossPartialFill(t *testing.T) {
	e := New(10_000)

	// reserve price*qty, credit the executed part, then the reset part
	e.Dec(schema.NotionalOf(100, 50))
	e.Inc(schema.NotionalOf(100, 20))
	e.Inc(schema.NotionalOf(100, 30))

	if !e.IsClear() {
		t.Fatalf("exec credit + reset credit must equal the reservation, current %d", e.Current())
	}
}

func TestClear(t *testing.T) {
	e := New(777)
	e.Dec(700)
	e.Clear()
	if !e.IsClear() || e.Current() != 777 {
		t.Fatalf("clear should restore initial, current %d", e.Current())
	}
}
