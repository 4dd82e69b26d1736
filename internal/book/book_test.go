package book

import (
	"testing"

	"github.com/rishav/mdbook-pipeline/internal/wire"
)

func newOrderMsg(side wire.Side, price, qty int64, orderID uint64, ts int64) wire.WireMessage {
	return wire.WireMessage{
		Kind:       wire.KindNewOrder,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		OrderID:    orderID,
		DecodeTsNs: ts,
	}
}

// OB-1: a first resting order becomes the top of book.
func TestApply_NewOrder_FirstBecomesTop(t *testing.T) {
	ob := New(0)
	changed := ob.Apply(newOrderMsg(wire.SideBuy, 100, 10, 1, 1))
	if !changed {
		t.Fatal("expected top-of-book change")
	}
	snap := ob.Snapshot()
	if snap.BestBidPrice != 100 || snap.BestBidQty != 10 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.UpdateCount != 1 {
		t.Fatalf("expected UpdateCount=1, got %d", snap.UpdateCount)
	}
}

// OB-1 continued: a second order at a worse price does not change the top.
func TestApply_NewOrder_WorsePriceNoTopChange(t *testing.T) {
	ob := New(0)
	ob.Apply(newOrderMsg(wire.SideBuy, 100, 10, 1, 1))
	changed := ob.Apply(newOrderMsg(wire.SideBuy, 99, 5, 2, 2))
	if changed {
		t.Fatal("expected no top-of-book change for a worse bid")
	}
	if ob.BidLevels() != 2 {
		t.Fatalf("expected 2 bid levels, got %d", ob.BidLevels())
	}
}

// OB-2: zero price or zero quantity is rejected.
func TestApply_NewOrder_RejectsZero(t *testing.T) {
	ob := New(0)
	if ob.Apply(newOrderMsg(wire.SideBuy, 0, 10, 1, 1)) {
		t.Fatal("expected zero price to be rejected")
	}
	if ob.Apply(newOrderMsg(wire.SideBuy, 100, 0, 1, 1)) {
		t.Fatal("expected zero quantity to be rejected")
	}
	if ob.BidLevels() != 0 {
		t.Fatalf("expected no levels created, got %d", ob.BidLevels())
	}
}

// OB-3: cancel removes the order and collapses an emptied level.
func TestApply_Cancel_CollapsesEmptyLevel(t *testing.T) {
	ob := New(0)
	ob.Apply(newOrderMsg(wire.SideBuy, 100, 10, 1, 1))

	cancel := wire.WireMessage{Kind: wire.KindCancel, Side: wire.SideBuy, Price: 100, OrderID: 1, DecodeTsNs: 2}
	changed := ob.Apply(cancel)
	if !changed {
		t.Fatal("expected top-of-book change after cancelling the only bid")
	}
	if ob.BidLevels() != 0 {
		t.Fatalf("expected level to collapse, got %d levels", ob.BidLevels())
	}

	// Cancel of a missing order id is a no-op.
	if ob.Apply(cancel) {
		t.Fatal("expected repeated cancel to be a no-op")
	}
}

// OB-4: execution decrements quantity, clamped at zero, removing the order
// and collapsing the level once it empties.
func TestApply_Execution_ClampsAndCollapses(t *testing.T) {
	ob := New(0)
	ob.Apply(newOrderMsg(wire.SideSell, 200, 10, 5, 1))

	partial := wire.WireMessage{Kind: wire.KindExecution, Side: wire.SideSell, Price: 200, OrderID: 5, TradeQuantity: 4, DecodeTsNs: 2}
	if !ob.Apply(partial) {
		t.Fatal("expected top-of-book change: the best ask keeps its price but its qty shrinks")
	}
	snap := ob.Snapshot()
	if snap.BestAskQty != 6 {
		t.Fatalf("expected remaining qty 6, got %d", snap.BestAskQty)
	}

	overfill := wire.WireMessage{Kind: wire.KindExecution, Side: wire.SideSell, Price: 200, OrderID: 5, TradeQuantity: 999, DecodeTsNs: 3}
	changed := ob.Apply(overfill)
	if !changed {
		t.Fatal("expected top-of-book change once the level empties")
	}
	if ob.AskLevels() != 0 {
		t.Fatalf("expected ask level to collapse, got %d", ob.AskLevels())
	}
}

// OB-5: IncrementalRefresh sets aggregate quantity directly and discards
// per-order detail; quantity 0 removes the level.
func TestApply_IncrementalRefresh(t *testing.T) {
	ob := New(0)
	ob.Apply(newOrderMsg(wire.SideBuy, 100, 10, 1, 1))
	ob.Apply(newOrderMsg(wire.SideBuy, 100, 5, 2, 1))

	refresh := wire.WireMessage{Kind: wire.KindIncrementalRefresh, Side: wire.SideBuy, Price: 100, Quantity: 500, DecodeTsNs: 2}
	ob.Apply(refresh)
	snap := ob.Snapshot()
	if snap.BestBidQty != 500 {
		t.Fatalf("expected refreshed qty 500, got %d", snap.BestBidQty)
	}
	if ob.bid.levels[0].OrderCount != 0 {
		t.Fatalf("expected per-order detail discarded, got %d orders", ob.bid.levels[0].OrderCount)
	}

	zero := wire.WireMessage{Kind: wire.KindIncrementalRefresh, Side: wire.SideBuy, Price: 100, Quantity: 0, DecodeTsNs: 3}
	changed := ob.Apply(zero)
	if !changed {
		t.Fatal("expected top-of-book change when the level is removed")
	}
	if ob.BidLevels() != 0 {
		t.Fatalf("expected level removed, got %d", ob.BidLevels())
	}
}

func TestApply_Unknown_IsNoOp(t *testing.T) {
	ob := New(0)
	if ob.Apply(wire.WireMessage{Kind: wire.KindUnknown}) {
		t.Fatal("expected Unknown kind to be a no-op")
	}
	if ob.UpdateCount() != 0 {
		t.Fatalf("expected no update recorded, got %d", ob.UpdateCount())
	}
}

// Level overflow: the 257th distinct price on a side is a silent no-op.
func TestApply_NewOrder_LevelOverflow(t *testing.T) {
	ob := New(0)
	for i := int64(1); i <= MaxPriceLevels; i++ {
		ob.Apply(newOrderMsg(wire.SideBuy, i, 1, uint64(i), i))
	}
	if ob.BidLevels() != MaxPriceLevels {
		t.Fatalf("expected %d levels, got %d", MaxPriceLevels, ob.BidLevels())
	}

	changed := ob.Apply(newOrderMsg(wire.SideBuy, MaxPriceLevels+1, 1, 9999, 1))
	if changed {
		t.Fatal("expected overflow insert to be a no-op")
	}
	if ob.LevelOverflowCount() != 1 {
		t.Fatalf("expected LevelOverflowCount=1, got %d", ob.LevelOverflowCount())
	}
	if ob.BidLevels() != MaxPriceLevels {
		t.Fatalf("expected level count unchanged at %d, got %d", MaxPriceLevels, ob.BidLevels())
	}
}

// Order overflow: the 33rd order at one level is silently dropped and
// counted, and the full level itself stays in the book.
func TestApply_NewOrder_OrderOverflow(t *testing.T) {
	ob := New(0)
	for i := uint64(1); i <= MaxOrdersPerLevel; i++ {
		ob.Apply(newOrderMsg(wire.SideBuy, 100, 1, i, 1))
	}
	changed := ob.Apply(newOrderMsg(wire.SideBuy, 100, 1, 9999, 2))
	if changed {
		t.Fatal("expected order overflow to be a no-op")
	}
	if ob.OrderOverflowCount() != 1 {
		t.Fatalf("expected OrderOverflowCount=1, got %d", ob.OrderOverflowCount())
	}
	if ob.BidLevels() != 1 {
		t.Fatalf("expected the single level to survive, got %d levels", ob.BidLevels())
	}
}

// Scenario 2 from spec.md §8: building a two-sided book and reading its top of book.
func TestScenario_TwoSidedBook(t *testing.T) {
	ob := New(3)
	ob.Apply(newOrderMsg(wire.SideBuy, 100, 10, 1, 1))
	ob.Apply(newOrderMsg(wire.SideBuy, 101, 5, 2, 2))
	ob.Apply(newOrderMsg(wire.SideSell, 105, 7, 3, 3))
	ob.Apply(newOrderMsg(wire.SideSell, 104, 8, 4, 4))

	snap := ob.Snapshot()
	if snap.SymbolIndex != 3 {
		t.Fatalf("expected SymbolIndex=3, got %d", snap.SymbolIndex)
	}
	if snap.BestBidPrice != 101 || snap.BestBidQty != 5 {
		t.Fatalf("expected best bid (101,5), got (%d,%d)", snap.BestBidPrice, snap.BestBidQty)
	}
	if snap.BestAskPrice != 104 || snap.BestAskQty != 8 {
		t.Fatalf("expected best ask (104,8), got (%d,%d)", snap.BestAskPrice, snap.BestAskQty)
	}
}

// Scenario 3 from spec.md §8: cancelling the best bid exposes the next
// level.
func TestScenario_CancelExposesNextLevel(t *testing.T) {
	ob := New(0)
	ob.Apply(newOrderMsg(wire.SideBuy, 100, 10, 1, 1))
	ob.Apply(newOrderMsg(wire.SideBuy, 101, 5, 2, 2))

	ob.Apply(wire.WireMessage{Kind: wire.KindCancel, Side: wire.SideBuy, Price: 101, OrderID: 2, DecodeTsNs: 3})

	snap := ob.Snapshot()
	if snap.BestBidPrice != 100 || snap.BestBidQty != 10 {
		t.Fatalf("expected best bid to fall back to (100,10), got (%d,%d)", snap.BestBidPrice, snap.BestBidQty)
	}
}

// Scenario 4 from spec.md §8: IncrementalRefresh(Buy, 100, 500) then
// IncrementalRefresh(Buy, 100, 0) drives best_bid to (0,0).
func TestScenario_RefreshThenZero(t *testing.T) {
	ob := New(0)
	ob.Apply(wire.WireMessage{Kind: wire.KindIncrementalRefresh, Side: wire.SideBuy, Price: 100, Quantity: 500, DecodeTsNs: 1})
	snap := ob.Snapshot()
	if snap.BestBidPrice != 100 || snap.BestBidQty != 500 {
		t.Fatalf("expected best bid (100,500), got (%d,%d)", snap.BestBidPrice, snap.BestBidQty)
	}

	ob.Apply(wire.WireMessage{Kind: wire.KindIncrementalRefresh, Side: wire.SideBuy, Price: 100, Quantity: 0, DecodeTsNs: 2})
	snap = ob.Snapshot()
	if snap.BestBidPrice != 0 || snap.BestBidQty != 0 {
		t.Fatalf("expected best bid (0,0), got (%d,%d)", snap.BestBidPrice, snap.BestBidQty)
	}
}
