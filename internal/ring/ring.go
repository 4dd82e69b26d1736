// Package ring implements a single-producer/single-consumer, lock-free,
// bounded ring buffer of fixed-size value records.
//
// # Thread-Safety Guarantees
//
// Exactly one goroutine may call TryWrite (the producer); exactly one
// goroutine may call TryRead (the consumer). Any other goroutine may call
// the non-synchronizing accessors (AvailableToRead, AvailableToWrite,
// IsEmpty, IsFull) for operational observation only — their results may be
// stale but are never torn. Violating the single-producer/single-consumer
// rule is undefined behavior by construction, not a detected error.
//
// # Memory layout
//
// Four monotonically increasing counters back the buffer: writePos and
// readPos are the real cursors; cachedReadPos (owned by the producer) and
// cachedWritePos (owned by the consumer) are local copies refreshed only
// when a transition near full/empty is suspected. Each counter lives in its
// own cache-line-padded struct so that producer-side and consumer-side
// writes never invalidate the same line.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New when capacity is not a positive
// power of two.
var ErrInvalidCapacity = errors.New("ring: capacity must be a positive power of two")

const cacheLineSize = 64

// paddedCounter is an atomic 64-bit counter padded out to one cache line so
// that it never shares a line with an adjacent counter.
type paddedCounter struct {
	v   atomic.Uint64
	_pad [cacheLineSize - 8]byte
}

// RingBuffer is a bounded SPSC queue of fixed-size value records. T must be
// a plain value type with no owning references; slots are reused in place,
// never reallocated.
type RingBuffer[T any] struct {
	buf  []T
	mask uint64

	// Hot counters, each isolated to its own cache line.
	writePos      paddedCounter // producer-owned
	readPos       paddedCounter // consumer-owned
	cachedReadPos paddedCounter // producer's local copy of readPos
	cachedWritePos paddedCounter // consumer's local copy of writePos
}

// New constructs a RingBuffer with the given capacity, which must be a
// positive power of two. Construction fails with ErrInvalidCapacity
// otherwise.
func New[T any](capacity uint64) (*RingBuffer[T], error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &RingBuffer[T]{
		buf:  make([]T, capacity),
		mask: capacity - 1,
	}, nil
}

// Capacity returns the fixed capacity of the ring buffer.
func (r *RingBuffer[T]) Capacity() uint64 {
	return uint64(len(r.buf))
}

// TryWrite attempts to store value in the next slot. It is producer-only,
// wait-free, and never allocates. Returns false iff the buffer is genuinely
// full.
func (r *RingBuffer[T]) TryWrite(value T) bool {
	w := r.writePos.v.Load() // owner-only read, no fence needed

	cached := r.cachedReadPos.v.Load()
	if w+1-cached > r.Capacity() {
		// Possibly full: refresh from the consumer's published position.
		cached = r.readPos.v.Load() // acquire
		r.cachedReadPos.v.Store(cached)
		if w+1-cached > r.Capacity() {
			return false
		}
	}

	r.buf[w&r.mask] = value    // non-atomic store into the slot
	r.writePos.v.Store(w + 1) // release: publishes the slot store above
	return true
}

// TryRead attempts to dequeue the oldest unread value. It is consumer-only,
// wait-free, and never allocates. Returns the zero value and false iff the
// buffer is genuinely empty.
func (r *RingBuffer[T]) TryRead() (T, bool) {
	var zero T
	rd := r.readPos.v.Load()

	cached := r.cachedWritePos.v.Load()
	if rd >= cached {
		cached = r.writePos.v.Load() // acquire: synchronizes with the release in TryWrite
		r.cachedWritePos.v.Store(cached)
		if rd >= cached {
			return zero, false
		}
	}

	value := r.buf[rd&r.mask] // non-atomic read of the slot
	r.readPos.v.Store(rd + 1) // release: publishes that the slot was consumed
	return value, true
}

// AvailableToRead returns an estimate of the number of unread entries.
// Non-synchronizing: safe to call from any goroutine, but the result may be
// stale.
func (r *RingBuffer[T]) AvailableToRead() uint64 {
	w := r.writePos.v.Load()
	rd := r.readPos.v.Load()
	if w < rd {
		return 0
	}
	return w - rd
}

// AvailableToWrite returns an estimate of the number of free slots.
func (r *RingBuffer[T]) AvailableToWrite() uint64 {
	return r.Capacity() - r.AvailableToRead()
}

// IsEmpty reports whether the buffer currently has no unread entries.
func (r *RingBuffer[T]) IsEmpty() bool {
	return r.AvailableToRead() == 0
}

// IsFull reports whether the buffer currently has no free slots.
func (r *RingBuffer[T]) IsFull() bool {
	return r.AvailableToRead() >= r.Capacity()
}

// Reset rewinds the buffer to empty. It is defined only when no concurrent
// producer or consumer is active; calling it while a writer or reader is in
// flight is undefined behavior, same as any other SPSC contract violation.
func (r *RingBuffer[T]) Reset() {
	r.writePos.v.Store(0)
	r.readPos.v.Store(0)
	r.cachedReadPos.v.Store(0)
	r.cachedWritePos.v.Store(0)
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
}
