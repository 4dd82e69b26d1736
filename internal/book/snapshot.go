package book

// Snapshot is an immutable top-of-book value, the unit published onto the
// cold-path ring buffer. Constructing one never blocks and never
// allocates.
type Snapshot struct {
	SymbolIndex  int
	BestBidPrice int64
	BestBidQty   int64
	BestAskPrice int64
	BestAskQty   int64
	TimestampNs  int64
	UpdateCount  uint64
}
