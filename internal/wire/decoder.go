package wire

import "github.com/rishav/mdbook-pipeline/internal/clock"

const minPacketSize = 16

// Presence-map bit positions (spec.md §4.2).
const (
	presenceSecurityID byte = 0x01
	presencePrice      byte = 0x02
	presenceQuantity   byte = 0x04
	presenceSide       byte = 0x08
	presenceOrderID    byte = 0x10
	presenceTrade      byte = 0x20
)

// powTen is a precomputed power-of-ten table so decimal scaling never calls
// an exponentiation routine on the hot path. 10^20 overflows int64 but we
// only ever index up to 10, well within range.
var powTen = [...]int64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000,
	1_000_000_000, 10_000_000_000,
}

// WireDecoder is a stateless transform from raw bytes plus side-channel
// metadata to a WireMessage. It carries no state of its own beyond the
// clock used to stamp decode_ts_ns, so a single WireDecoder may be shared
// (read-only) across goroutines — though in this pipeline exactly one
// decoder loop ever calls TryDecode.
type WireDecoder struct {
	clk clock.Clock
}

// NewDecoder constructs a WireDecoder backed by the given clock.
func NewDecoder(clk clock.Clock) *WireDecoder {
	return &WireDecoder{clk: clk}
}

// TryDecode decodes a single wire packet. It returns (message, true) on
// success, or (zero value, false) for any input that is too short, runs off
// the end of bytes while decoding, or would otherwise corrupt the output.
// TryDecode never panics, regardless of input.
func (d *WireDecoder) TryDecode(data []byte, receiveTsNs int64, channelID uint32) (WireMessage, bool) {
	var msg WireMessage

	if len(data) < minPacketSize {
		return msg, false
	}

	presence := data[0]
	pos := 1

	// Template-ID: stop-bit, discarded by the core.
	if _, pos2, ok := readStopBit(data, pos); ok {
		pos = pos2
	} else {
		return msg, false
	}

	seqNum, pos, ok := readStopBit(data, pos)
	if !ok {
		return msg, false
	}

	if pos >= len(data) {
		return msg, false
	}
	msgType := data[pos]
	pos++

	sendingTime, pos, ok := readStopBit(data, pos)
	if !ok {
		return msg, false
	}

	msg.Kind = kindFromMsgType(msgType)
	msg.SeqNum = seqNum
	msg.SendingTime = int64(sendingTime)

	if presence&presenceSecurityID != 0 {
		securityID, next, ok := readStopBit(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.SecurityID = securityID
		msg.SymbolIndex = int(securityID % 1000)
	}

	if presence&presencePrice != 0 {
		price, next, ok := readDecimal(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.Price = price
	}

	if presence&presenceQuantity != 0 {
		quantity, next, ok := readStopBit(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.Quantity = int64(quantity)
	}

	if presence&presenceSide != 0 {
		if pos >= len(data) {
			return WireMessage{}, false
		}
		msg.Side = sideFromByte(data[pos])
		pos++
	}

	if presence&presenceOrderID != 0 {
		orderID, next, ok := readStopBit(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.OrderID = orderID
	}

	if msg.Kind == KindExecution && presence&presenceTrade != 0 {
		tradeID, next, ok := readStopBit(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.TradeID = tradeID

		tradePrice, next, ok := readDecimal(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.TradePrice = tradePrice

		tradeQuantity, next, ok := readStopBit(data, pos)
		if !ok {
			return WireMessage{}, false
		}
		pos = next
		msg.TradeQuantity = int64(tradeQuantity)
	}

	msg.ReceiveTsNs = receiveTsNs
	msg.DecodeTsNs = d.clk.NowNano()
	msg.ChannelID = channelID

	return msg, true
}

// readStopBit decodes a stop-bit (FAST-style) variable-length integer
// starting at data[pos]. Each byte contributes its low 7 bits to the
// accumulator; the byte whose high bit is set terminates the sequence. It
// returns the decoded value, the position just past the consumed bytes, and
// false if the input runs out before a terminating byte is found.
func readStopBit(data []byte, pos int) (uint64, int, bool) {
	var v uint64
	for pos < len(data) {
		b := data[pos]
		pos++
		v = (v << 7) | uint64(b&0x7F)
		if b&0x80 != 0 {
			return v, pos, true
		}
	}
	return 0, pos, false
}

// readDecimal decodes a (exponent, mantissa) pair and scales it to
// fixed-point ×10^8, per spec.md §4.2.
func readDecimal(data []byte, pos int) (int64, int, bool) {
	exponent, pos, ok := readStopBit(data, pos)
	if !ok {
		return 0, pos, false
	}
	mantissaRaw, pos, ok := readStopBit(data, pos)
	if !ok {
		return 0, pos, false
	}
	mantissa := int64(mantissaRaw)
	// The wire carries exponent as the low 32 bits of the stop-bit
	// accumulator, two's-complement: a negative exponent (shifting the
	// decimal point left, the common case for prices) is transmitted as its
	// 32-bit unsigned bit pattern.
	signedExponent := int64(int32(uint32(exponent)))
	k := 8 + signedExponent

	switch {
	case k >= 0 && k <= 10:
		mantissa *= powTen[k]
	case k < 0 && k >= -10:
		mantissa /= powTen[-k]
	}
	return mantissa, pos, true
}

func kindFromMsgType(b byte) MessageKind {
	switch b {
	case 'D':
		return KindNewOrder
	case 'F':
		return KindCancel
	case '8':
		return KindExecution
	case 'S':
		return KindQuote
	case 'W':
		return KindFullSnapshot
	case 'X':
		return KindIncrementalRefresh
	default:
		return KindUnknown
	}
}

func sideFromByte(b byte) Side {
	switch b {
	case '1':
		return SideBuy
	case '2':
		return SideSell
	default:
		return SideUnknown
	}
}
