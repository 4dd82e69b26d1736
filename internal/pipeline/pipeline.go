// Package pipeline wires a BufferPool and three SPSC ring buffers into the
// three-stage decode → book → publish path: a decoder worker, a
// book-builder worker, and a lower-priority cold-path worker, each reading
// one ring and (except the last) writing the next.
package pipeline

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rishav/mdbook-pipeline/internal/book"
	"github.com/rishav/mdbook-pipeline/internal/clock"
	"github.com/rishav/mdbook-pipeline/internal/ring"
	"github.com/rishav/mdbook-pipeline/internal/sink"
	"github.com/rishav/mdbook-pipeline/internal/wire"
)

// MaxSymbols bounds the dense symbol-index space; a message whose
// symbol_index falls outside [0, MaxSymbols) is skipped rather than
// growing the book array.
const MaxSymbols = 1000

// Default ring and pool sizes, per the pipeline's composition.
const (
	DefaultRB0Capacity   = 1 << 16
	DefaultRB1Capacity   = 1 << 16
	DefaultRB2Capacity   = 1 << 15
	DefaultBufferCount   = 1024
	DefaultBufferSlotSize = 2048
)

const coldPathBackoff = time.Millisecond

// RawPacket is a non-owning reference into a BufferPool slot: the offset
// and length of one ingress packet's bytes.
type RawPacket struct {
	BufferID int
	Offset   int
	Length   int
	SeqNum   uint64
	ChannelID uint32
	ReceiveTsNs int64
}

// Config controls the pipeline's ring capacities, pool shape, and
// collaborators. Zero-value fields fall back to the package defaults.
type Config struct {
	RB0Capacity    uint64
	RB1Capacity    uint64
	RB2Capacity    uint64
	BufferCount    int
	BufferSlotSize int

	Logger *zap.Logger
	Clock  clock.Clock
	Sink   sink.Sink
}

// DefaultConfig returns a Config with every field set to its package
// default. Logger defaults to zap.NewNop() and Clock to clock.System{} —
// callers running a real deployment should supply their own.
func DefaultConfig() Config {
	return Config{
		RB0Capacity:    DefaultRB0Capacity,
		RB1Capacity:    DefaultRB1Capacity,
		RB2Capacity:    DefaultRB2Capacity,
		BufferCount:    DefaultBufferCount,
		BufferSlotSize: DefaultBufferSlotSize,
		Logger:         zap.NewNop(),
		Clock:          clock.System{},
	}
}

// Stats is a point-in-time, non-blocking read of the pipeline's counters.
// Every field is read from an atomic; the set as a whole may be slightly
// inconsistent across fields, which is acceptable for operational
// observation.
type Stats struct {
	TotalPackets     uint64
	DecodeErrors     uint64
	BookUpdates      uint64
	SnapshotsDropped uint64
	RB0Available     uint64
	RB1Available     uint64
	RB2Available     uint64
}

// Pipeline is the three-stage decode/book/publish engine described by the
// module. Exactly one goroutine publishes into RB0 (via PublishRaw), exactly
// one goroutine (DecoderLoop) reads RB0 and writes RB1, exactly one
// goroutine (BookLoop) reads RB1 and writes RB2, and exactly one goroutine
// (ColdLoop) reads RB2 and hands snapshots to the configured Sink.
type Pipeline struct {
	cfg Config

	pool *BufferPool
	rb0  *ring.RingBuffer[RawPacket]
	rb1  *ring.RingBuffer[wire.WireMessage]
	rb2  *ring.RingBuffer[book.Snapshot]

	decoder *wire.WireDecoder
	books   [MaxSymbols]*book.OrderBook
	sink    sink.Sink
	logger  *zap.Logger
	clk     clock.Clock

	totalPackets     atomic.Uint64
	decodeErrors     atomic.Uint64
	bookUpdates      atomic.Uint64
	snapshotsDropped atomic.Uint64

	shuttingDown atomic.Bool

	decoderDone chan struct{}
	bookDone    chan struct{}
	coldDone    chan struct{}
}

// New constructs a Pipeline from cfg, pre-allocating every ring, pool slot,
// and per-symbol order book. Nothing in the returned Pipeline allocates
// again on the hot path.
func New(cfg Config) (*Pipeline, error) {
	if cfg.RB0Capacity == 0 {
		cfg.RB0Capacity = DefaultRB0Capacity
	}
	if cfg.RB1Capacity == 0 {
		cfg.RB1Capacity = DefaultRB1Capacity
	}
	if cfg.RB2Capacity == 0 {
		cfg.RB2Capacity = DefaultRB2Capacity
	}
	if cfg.BufferCount == 0 {
		cfg.BufferCount = DefaultBufferCount
	}
	if cfg.BufferSlotSize == 0 {
		cfg.BufferSlotSize = DefaultBufferSlotSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Sink == nil {
		cfg.Sink = sink.NewLogSink(cfg.Logger)
	}

	rb0, err := ring.New[RawPacket](cfg.RB0Capacity)
	if err != nil {
		return nil, err
	}
	rb1, err := ring.New[wire.WireMessage](cfg.RB1Capacity)
	if err != nil {
		return nil, err
	}
	rb2, err := ring.New[book.Snapshot](cfg.RB2Capacity)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		pool:    NewBufferPool(cfg.BufferCount, cfg.BufferSlotSize),
		rb0:     rb0,
		rb1:     rb1,
		rb2:     rb2,
		decoder: wire.NewDecoder(cfg.Clock),
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		clk:     cfg.Clock,
	}
	for i := range p.books {
		p.books[i] = book.New(i)
	}
	return p, nil
}

// PublishRaw is the ingress entry point. It rents a pool slot by
// seqNum % BufferCount, copies up to the slot size of data into it, and
// attempts to publish a RawPacket descriptor onto RB0. It returns false if
// RB0 is full — caller-visible backpressure, same as any other ring write.
func (p *Pipeline) PublishRaw(data []byte, seqNum uint64, channelID uint32) bool {
	bufferID, length := p.pool.write(seqNum, data)
	pkt := RawPacket{
		BufferID:    bufferID,
		Offset:      0,
		Length:      length,
		SeqNum:      seqNum,
		ChannelID:   channelID,
		ReceiveTsNs: p.clk.NowNano(),
	}
	if !p.rb0.TryWrite(pkt) {
		return false
	}
	p.totalPackets.Add(1)
	return true
}

// InjectMessage publishes directly onto RB1, bypassing decode. Used by
// synthetic feeds and tests that want to drive the book worker without a
// wire-format payload.
func (p *Pipeline) InjectMessage(msg wire.WireMessage) bool {
	return p.rb1.TryWrite(msg)
}

// TryReadSnapshot dequeues the oldest pending snapshot, if any.
func (p *Pipeline) TryReadSnapshot() (book.Snapshot, bool) {
	return p.rb2.TryRead()
}

// PendingSnapshotCount estimates how many snapshots are waiting on RB2.
func (p *Pipeline) PendingSnapshotCount() uint64 {
	return p.rb2.AvailableToRead()
}

// Stats returns a point-in-time snapshot of the pipeline's counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		TotalPackets:     p.totalPackets.Load(),
		DecodeErrors:     p.decodeErrors.Load(),
		BookUpdates:      p.bookUpdates.Load(),
		SnapshotsDropped: p.snapshotsDropped.Load(),
		RB0Available:     p.rb0.AvailableToRead(),
		RB1Available:     p.rb1.AvailableToRead(),
		RB2Available:     p.rb2.AvailableToRead(),
	}
}

// Start launches the three long-lived workers. Decoder and book-builder
// are non-daemon (Stop waits for them to drain); the cold-path worker is a
// daemon, run at default scheduling priority.
func (p *Pipeline) Start() {
	p.decoderDone = make(chan struct{})
	p.bookDone = make(chan struct{})
	p.coldDone = make(chan struct{})

	go p.decoderLoop()
	go p.bookLoop()
	go p.coldLoop()
}

// Stop signals shutdown and joins each worker with a bounded timeout
// (5s, 5s, 2s, matching the relative priority of decode, book-build, and
// cold-path publish). A worker that misses its timeout is abandoned; Stop
// still returns so the caller can release other resources.
func (p *Pipeline) Stop() {
	p.shuttingDown.Store(true)
	p.joinWithTimeout(p.decoderDone, 5*time.Second, "decoder")
	p.joinWithTimeout(p.bookDone, 5*time.Second, "book-builder")
	p.joinWithTimeout(p.coldDone, 2*time.Second, "cold-path")
}

func (p *Pipeline) joinWithTimeout(done chan struct{}, timeout time.Duration, name string) {
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("worker did not shut down within timeout, abandoning", zap.String("worker", name))
	}
}

// decoderLoop reads RawPacket descriptors off RB0, decodes them, and
// forwards successfully decoded messages to RB1. It exits once shutdown
// has been requested and RB0 is drained.
func (p *Pipeline) decoderLoop() {
	defer close(p.decoderDone)

	for {
		pkt, ok := p.rb0.TryRead()
		if !ok {
			if p.shuttingDown.Load() {
				return
			}
			runtime.Gosched()
			continue
		}

		data := p.pool.slice(pkt.BufferID, pkt.Offset, pkt.Length)
		msg, ok := p.decoder.TryDecode(data, pkt.ReceiveTsNs, pkt.ChannelID)
		if !ok {
			p.decodeErrors.Add(1)
			continue
		}

		for !p.rb1.TryWrite(msg) {
			runtime.Gosched()
		}
	}
}

// bookLoop reads WireMessages off RB1, applies them to the owning symbol's
// book, and always publishes a fresh snapshot to RB2 — dropping it if RB2
// is full, since the cold path is lossy by design.
func (p *Pipeline) bookLoop() {
	defer close(p.bookDone)

	for {
		msg, ok := p.rb1.TryRead()
		if !ok {
			if p.shuttingDown.Load() {
				return
			}
			runtime.Gosched()
			continue
		}

		if msg.SymbolIndex < 0 || msg.SymbolIndex >= MaxSymbols {
			continue
		}

		p.books[msg.SymbolIndex].Apply(msg)
		p.bookUpdates.Add(1)

		snap := p.books[msg.SymbolIndex].Snapshot()
		if !p.rb2.TryWrite(snap) {
			p.snapshotsDropped.Add(1)
		}
	}
}

// coldLoop reads snapshots off RB2 and hands them to the configured Sink.
// It runs at default scheduling priority and is a daemon: Stop's bounded
// join does not prevent process exit if this loop is slow to notice
// shutdown.
func (p *Pipeline) coldLoop() {
	defer close(p.coldDone)

	for {
		snap, ok := p.rb2.TryRead()
		if !ok {
			if p.shuttingDown.Load() {
				return
			}
			time.Sleep(coldPathBackoff)
			continue
		}

		if err := p.sink.Accept(snap); err != nil {
			p.logger.Warn("sink rejected snapshot", zap.Error(err))
		}
	}
}

// Book returns the order book for a dense symbol index, for tests and
// admin inspection. It panics if symbolIndex is out of range, matching the
// precondition the caller is expected to have already checked.
func (p *Pipeline) Book(symbolIndex int) *book.OrderBook {
	return p.books[symbolIndex]
}
