// Package wire implements a stateless stop-bit/variable-length decoder for
// a FAST-family market-data wire format. TryDecode is a pure transform from
// a byte slice and side-channel metadata to a WireMessage value: no
// allocation, no shared state, no panics regardless of input.
//
// This implements only the subset of FAST actually exercised by the wire
// format in use here — no template dictionaries, no copy/increment
// operators, no nullable-field encodings (see the module's non-goals).
package wire

// MessageKind identifies the semantic type of a decoded message. It is a
// closed enumeration, not a polymorphic hierarchy: message kind and side are
// plain tagged values so WireMessage stays a flat record.
type MessageKind uint8

const (
	KindUnknown MessageKind = iota
	KindNewOrder
	KindCancel
	KindExecution
	KindQuote
	KindFullSnapshot
	KindIncrementalRefresh
)

func (k MessageKind) String() string {
	switch k {
	case KindNewOrder:
		return "NewOrder"
	case KindCancel:
		return "Cancel"
	case KindExecution:
		return "Execution"
	case KindQuote:
		return "Quote"
	case KindFullSnapshot:
		return "FullSnapshot"
	case KindIncrementalRefresh:
		return "IncrementalRefresh"
	default:
		return "Unknown"
	}
}

// Side identifies the side of an order or quote.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// WireMessage is a plain value record produced by WireDecoder. It holds no
// pointers or slices into the decoder's input buffer, so it can be copied
// into a ring.RingBuffer slot without aliasing concerns.
type WireMessage struct {
	Kind MessageKind
	Side Side

	SeqNum      uint64
	SendingTime int64

	SecurityID  uint64
	SymbolIndex int

	OrderID  uint64
	Price    int64 // fixed-point, scale 10^8
	Quantity int64

	TradeID       uint64
	TradePrice    int64 // fixed-point, scale 10^8
	TradeQuantity int64

	ReceiveTsNs int64
	DecodeTsNs  int64
	ChannelID   uint32
}
