// Package sink defines the cold-path outlet that snapshots are handed to
// once they leave the pipeline's third ring buffer.
package sink

import (
	"go.uber.org/zap"

	"github.com/rishav/mdbook-pipeline/internal/book"
)

// Sink consumes book snapshots off the cold path. Accept must not block for
// long: the cold-path worker calls it once per dequeued snapshot and has no
// other backpressure mechanism beyond the ring buffer itself.
type Sink interface {
	Accept(snap book.Snapshot) error
}

// LogSink is a Sink that records every snapshot as a structured log line.
// It is meant for development and for the reference binary; production
// deployments are expected to supply their own Sink (a feed publisher, a
// time-series write, a WebSocket broadcaster).
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink writing through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Accept logs the snapshot at debug level and never fails.
func (s *LogSink) Accept(snap book.Snapshot) error {
	s.logger.Debug("snapshot",
		zap.Int("symbol_index", snap.SymbolIndex),
		zap.Int64("best_bid_price", snap.BestBidPrice),
		zap.Int64("best_bid_qty", snap.BestBidQty),
		zap.Int64("best_ask_price", snap.BestAskPrice),
		zap.Int64("best_ask_qty", snap.BestAskQty),
		zap.Int64("timestamp_ns", snap.TimestampNs),
		zap.Uint64("update_count", snap.UpdateCount),
	)
	return nil
}
