// Package book implements a pre-allocated, fixed-capacity Level-3 order book.
// An OrderBook never allocates once constructed: every price level and order
// slot lives in a fixed array, sized so the hot path never touches the heap.
package book

import (
	"sync/atomic"

	"github.com/rishav/mdbook-pipeline/internal/wire"
)

// MaxPriceLevels bounds the number of distinct price levels tracked per
// side. NewOrder messages that would create a 257th level are a silent
// no-op; LevelOverflowCount records how often this happened.
const MaxPriceLevels = 256

// bookSide is one side (bid or ask) of an OrderBook: a dense, sorted array
// of price levels, best price always at index 0.
type bookSide struct {
	levels [MaxPriceLevels]PriceLevel
	count  int
}

// better reports whether candidate should sit ahead of current in this
// side's priority order (bids: higher price wins; asks: lower price wins).
type betterFunc func(candidate, current int64) bool

func bidBetter(candidate, current int64) bool { return candidate > current }
func askBetter(candidate, current int64) bool { return candidate < current }

// findLevel returns the index of the level at price, or -1 if absent.
func (s *bookSide) findLevel(price int64) int {
	for i := 0; i < s.count; i++ {
		if s.levels[i].Price == price {
			return i
		}
	}
	return -1
}

// findOrCreate returns the index of the level at price, creating and
// inserting it in sorted order if absent. ok is false iff the side is
// already at MaxPriceLevels and price does not match an existing level.
func (s *bookSide) findOrCreate(price int64, better betterFunc) (idx int, ok bool) {
	if i := s.findLevel(price); i >= 0 {
		return i, true
	}
	if s.count >= MaxPriceLevels {
		return -1, false
	}

	insertAt := s.count
	for i := 0; i < s.count; i++ {
		if better(price, s.levels[i].Price) {
			insertAt = i
			break
		}
	}

	for i := s.count; i > insertAt; i-- {
		s.levels[i] = s.levels[i-1]
	}
	s.levels[insertAt] = PriceLevel{Price: price}
	s.count++
	return insertAt, true
}

// removeLevel deletes the level at idx, shifting trailing levels down.
func (s *bookSide) removeLevel(idx int) {
	for i := idx; i < s.count-1; i++ {
		s.levels[i] = s.levels[i+1]
	}
	s.count--
	var zero PriceLevel
	s.levels[s.count] = zero
}

// collapseIfEmpty removes the level at idx if it has gone to zero orders.
func (s *bookSide) collapseIfEmpty(idx int) {
	if idx >= 0 && idx < s.count && s.levels[idx].isEmpty() {
		s.removeLevel(idx)
	}
}

func (s *bookSide) best() (price, qty int64) {
	if s.count == 0 {
		return 0, 0
	}
	return s.levels[0].Price, s.levels[0].AggQty
}

// OrderBook is a Level-3 book for a single symbol: bid and ask sides, each a
// fixed array of price levels, each holding a fixed array of resting
// orders. It is owned exclusively by one goroutine (the book-builder
// worker); external readers observe it only through Snapshot.
type OrderBook struct {
	symbolIndex int

	bid bookSide
	ask bookSide

	updateCount    atomic.Uint64
	lastUpdateTsNs atomic.Int64

	levelOverflowCount atomic.Uint64
	orderOverflowCount atomic.Uint64
}

// New constructs an empty OrderBook for the given dense symbol index.
func New(symbolIndex int) *OrderBook {
	return &OrderBook{symbolIndex: symbolIndex}
}

// SymbolIndex returns the dense symbol index this book was constructed for.
func (ob *OrderBook) SymbolIndex() int {
	return ob.symbolIndex
}

func (ob *OrderBook) side(s wire.Side) *bookSide {
	if s == wire.SideSell {
		return &ob.ask
	}
	return &ob.bid
}

func (ob *OrderBook) betterFn(s wire.Side) betterFunc {
	if s == wire.SideSell {
		return askBetter
	}
	return bidBetter
}

// Apply dispatches msg to the matching operation and reports whether the
// top-of-book (best price, quantity) changed on either side. It never
// panics and never allocates; every input, well-formed or not, resolves to
// either a state change or a documented no-op.
func (ob *OrderBook) Apply(msg wire.WireMessage) bool {
	switch msg.Kind {
	case wire.KindNewOrder:
		return ob.applyNewOrder(msg)
	case wire.KindCancel:
		return ob.applyCancel(msg)
	case wire.KindExecution:
		return ob.applyExecution(msg)
	case wire.KindIncrementalRefresh:
		return ob.applyIncrementalRefresh(msg)
	default:
		return false
	}
}

func (ob *OrderBook) applyNewOrder(msg wire.WireMessage) bool {
	if msg.Price == 0 || msg.Quantity == 0 {
		return false
	}

	s := ob.side(msg.Side)
	bidPrice, bidQty := ob.bid.best()
	askPrice, askQty := ob.ask.best()

	idx, ok := s.findOrCreate(msg.Price, ob.betterFn(msg.Side))
	if !ok {
		ob.levelOverflowCount.Add(1)
		return false
	}
	if !s.levels[idx].addOrder(msg.OrderID, msg.Quantity) {
		ob.orderOverflowCount.Add(1)
		// The level was created (or already existed) even if the order
		// itself overflowed; an empty freshly created level must not
		// linger, so collapse it back out.
		s.collapseIfEmpty(idx)
		return false
	}

	ob.recordUpdate(msg.DecodeTsNs)
	return ob.topChanged(bidPrice, bidQty, askPrice, askQty)
}

func (ob *OrderBook) applyCancel(msg wire.WireMessage) bool {
	s := ob.side(msg.Side)
	idx := s.findLevel(msg.Price)
	if idx < 0 {
		return false
	}

	bidPrice, bidQty := ob.bid.best()
	askPrice, askQty := ob.ask.best()

	if !s.levels[idx].removeOrder(msg.OrderID) {
		return false
	}
	s.collapseIfEmpty(idx)

	ob.recordUpdate(msg.DecodeTsNs)
	return ob.topChanged(bidPrice, bidQty, askPrice, askQty)
}

func (ob *OrderBook) applyExecution(msg wire.WireMessage) bool {
	s := ob.side(msg.Side)
	idx := s.findLevel(msg.Price)
	if idx < 0 {
		return false
	}

	bidPrice, bidQty := ob.bid.best()
	askPrice, askQty := ob.ask.best()

	if !s.levels[idx].applyExecution(msg.OrderID, msg.TradeQuantity) {
		return false
	}
	s.collapseIfEmpty(idx)

	ob.recordUpdate(msg.DecodeTsNs)
	return ob.topChanged(bidPrice, bidQty, askPrice, askQty)
}

func (ob *OrderBook) applyIncrementalRefresh(msg wire.WireMessage) bool {
	s := ob.side(msg.Side)
	bidPrice, bidQty := ob.bid.best()
	askPrice, askQty := ob.ask.best()

	if msg.Quantity == 0 {
		if idx := s.findLevel(msg.Price); idx >= 0 {
			s.removeLevel(idx)
		}
	} else {
		idx, ok := s.findOrCreate(msg.Price, ob.betterFn(msg.Side))
		if !ok {
			ob.levelOverflowCount.Add(1)
			return false
		}
		// A full refresh replaces per-order detail at this level wholesale.
		s.levels[idx].OrderCount = 0
		s.levels[idx].Orders = [MaxOrdersPerLevel]Order{}
		s.levels[idx].AggQty = msg.Quantity
	}

	ob.recordUpdate(msg.DecodeTsNs)
	return ob.topChanged(bidPrice, bidQty, askPrice, askQty)
}

func (ob *OrderBook) recordUpdate(decodeTsNs int64) {
	ob.updateCount.Add(1)
	ob.lastUpdateTsNs.Store(decodeTsNs)
}

func (ob *OrderBook) topChanged(prevBidPrice, prevBidQty, prevAskPrice, prevAskQty int64) bool {
	bidPrice, bidQty := ob.bid.best()
	askPrice, askQty := ob.ask.best()
	return bidPrice != prevBidPrice || bidQty != prevBidQty ||
		askPrice != prevAskPrice || askQty != prevAskQty
}

// UpdateCount returns the number of accepted (state-changing or not, but
// recognized) messages applied to this book.
func (ob *OrderBook) UpdateCount() uint64 {
	return ob.updateCount.Load()
}

// LevelOverflowCount returns how many times a NewOrder or IncrementalRefresh
// was dropped because a side was already at MaxPriceLevels.
func (ob *OrderBook) LevelOverflowCount() uint64 {
	return ob.levelOverflowCount.Load()
}

// OrderOverflowCount returns how many times a NewOrder was dropped because
// its level was already at MaxOrdersPerLevel.
func (ob *OrderBook) OrderOverflowCount() uint64 {
	return ob.orderOverflowCount.Load()
}

// Snapshot returns an immutable, non-blocking view of the book's top of
// book. It never allocates beyond the returned value itself.
func (ob *OrderBook) Snapshot() Snapshot {
	bidPrice, bidQty := ob.bid.best()
	askPrice, askQty := ob.ask.best()
	return Snapshot{
		SymbolIndex:  ob.symbolIndex,
		BestBidPrice: bidPrice,
		BestBidQty:   bidQty,
		BestAskPrice: askPrice,
		BestAskQty:   askQty,
		TimestampNs:  ob.lastUpdateTsNs.Load(),
		UpdateCount:  ob.updateCount.Load(),
	}
}

// BidLevels returns the number of distinct bid price levels currently held.
func (ob *OrderBook) BidLevels() int { return ob.bid.count }

// AskLevels returns the number of distinct ask price levels currently held.
func (ob *OrderBook) AskLevels() int { return ob.ask.count }
