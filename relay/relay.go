// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay provides the bounded, lossy record channel carrying cgroup
// hierarchy metadata from event producers to the periodic sampler. Many
// producers publish concurrently without blocking or allocating; a single
// consumer drains periodically. When the ring is full, records are dropped
// and the rejection is reported to the caller. Bounded capacity is the only
// load-shedding mechanism: nothing is queued or retried.
package relay // import "github.com/kernwatch/kernwatch/relay"

import (
	"fmt"
	"sync/atomic"

	"github.com/kernwatch/kernwatch/util"
)

const (
	// DefaultCapacity matches the kernel-side ring sized for bursts of
	// cgroup churn between two polls.
	DefaultCapacity = 4096

	// MaxCapacity bounds configurable ring sizes. Storage is allocated up
	// front, so arbitrarily large rings are rejected at construction.
	MaxCapacity = 1 << 20
)

type slot[T any] struct {
	// seq is the slot sequence number: equal to the slot's ticket when
	// free for writing, ticket+1 once the record is readable.
	seq atomic.Uint64
	rec T
}

// Ring is a fixed-capacity multi-producer single-consumer ring buffer of
// fixed-size records. The zero value is not usable, construct with New.
type Ring[T any] struct {
	mask    uint64
	slots   []slot[T]
	enqueue atomic.Uint64
	dequeue atomic.Uint64
	dropped atomic.Uint64

	// depthMax is the occupancy high watermark since the last MaxDepth
	// call. A rising watermark warns about capacity pressure before the
	// ring starts rejecting.
	depthMax atomic.Uint64
}

// New creates a ring with at least the requested capacity, rounded up to a
// power of two. All record storage is allocated up front; publishing never
// allocates.
func New[T any](capacity uint32) (*Ring[T], error) {
	if capacity == 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("unsupported relay capacity: %d", capacity)
	}
	size := uint64(util.NextPowerOfTwo(capacity))
	r := &Ring[T]{
		mask:  size - 1,
		slots: make([]slot[T], size),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r, nil
}

// Capacity returns the number of records the ring can hold.
func (r *Ring[T]) Capacity() int { return len(r.slots) }

// TryPublish copies rec into the ring. It returns false, dropping the
// record, when the ring is full. Safe for concurrent producers; never
// blocks and never allocates. Callers must treat delivery as best-effort.
func (r *Ring[T]) TryPublish(rec T) bool {
	pos := r.enqueue.Load()
	for {
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos:
			// Slot free at our ticket, try to claim it.
			if r.enqueue.CompareAndSwap(pos, pos+1) {
				s.rec = rec
				s.seq.Store(pos + 1)
				util.AtomicUpdateMaxUint64(&r.depthMax,
					pos+1-r.dequeue.Load())
				return true
			}
			pos = r.enqueue.Load()
		case seq < pos:
			// Consumer has not freed this slot: ring is full.
			r.dropped.Add(1)
			return false
		default:
			// Another producer claimed the ticket, advance.
			pos = r.enqueue.Load()
		}
	}
}

// Drain invokes fn for every buffered record and frees the slots. Records
// from one producer arrive in publish order; no cross-producer order is
// guaranteed. Single consumer only. fn must not retain the record pointer
// beyond the call.
func (r *Ring[T]) Drain(fn func(rec *T)) int {
	n := 0
	pos := r.dequeue.Load()
	for {
		s := &r.slots[pos&r.mask]
		if s.seq.Load() != pos+1 {
			// Next record not (fully) published yet.
			break
		}
		fn(&s.rec)
		var zero T
		s.rec = zero
		// Free the slot for the producer one lap ahead.
		s.seq.Store(pos + uint64(len(r.slots)))
		pos++
		n++
	}
	r.dequeue.Store(pos)
	return n
}

// DropCount returns the number of rejected publishes since the last call
// and resets the count. Reported through agent self-metrics each poll.
func (r *Ring[T]) DropCount() uint64 {
	return r.dropped.Swap(0)
}

// MaxDepth returns the occupancy high watermark since the last call and
// resets it. Reported through agent self-metrics each poll.
func (r *Ring[T]) MaxDepth() uint64 {
	return r.depthMax.Swap(0)
}
