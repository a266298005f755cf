// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package cgroups tracks cgroup identity across generations. The kernel
// reuses the small integer cgroup id; the serial number is unique per
// generation. The producer-side Registry detects generation changes, zeroes
// the stale per-cgroup accumulators and publishes hierarchy metadata over
// the relay exactly once per generation in the common case. The
// consumer-side NameTable applies those records idempotently, so the
// duplicates produced by racing producers never corrupt it.
package cgroups // import "github.com/kernwatch/kernwatch/cgroups"

import (
	"sync/atomic"

	"github.com/kernwatch/kernwatch/relay"
)

// Resetter is the per-cgroup accumulator interface the registry zeroes when
// a cgroup id changes hands. Implemented by counterstore.Store and
// counterstore.HistogramStore.
type Resetter interface {
	ResetUnit(unit int)
}

// Registry tracks the last-seen serial per cgroup id on the producer side.
type Registry struct {
	// serials holds the last-seen serial per id. Zero means unknown:
	// kernel css serial numbers start at one.
	serials []atomic.Uint64

	ring      *relay.Ring[Record]
	resetters []Resetter

	// generations counts observed generation changes since the last
	// GenerationCount call. Plain atomic so the slow path stays free of
	// locks and allocation like the rest of the producer path.
	generations atomic.Uint64
}

// NewRegistry creates a registry for ids below maxCgroups, publishing
// metadata records to ring. The accumulators passed in resetters are zeroed
// whenever their cgroup id is reassigned.
func NewRegistry(maxCgroups int, ring *relay.Ring[Record],
	resetters ...Resetter) *Registry {
	return &Registry{
		serials:   make([]atomic.Uint64, maxCgroups),
		ring:      ring,
		resetters: resetters,
	}
}

// AddResetter registers another per-cgroup accumulator. Not safe
// concurrently with Observe; call during wiring.
func (r *Registry) AddResetter(res Resetter) {
	r.resetters = append(r.resetters, res)
}

// Observe processes one cgroup sighting from a producer. Out-of-range ids
// are ignored and attribution degrades to unattributed. A matching serial
// is the fast path and has no side effect. On a serial change the
// per-cgroup accumulators for the id are zeroed, the metadata is published
// best-effort, and the serial is recorded.
//
// The compare/reset/publish sequence is deliberately not atomic across
// producers: two producers can both take the slow path for one transition
// and emit a duplicate reset and record. Consumers apply records
// idempotently, which is cheaper than synchronizing the hot path.
func (r *Registry) Observe(info Info) {
	if uint(info.ID) >= uint(len(r.serials)) {
		return
	}
	if r.serials[info.ID].Load() == info.Serial {
		return
	}

	for _, res := range r.resetters {
		res.ResetUnit(int(info.ID))
	}

	var rec Record
	info.Encode(&rec)
	// Best effort: a full relay drops the record, the name table keeps
	// serving the previous generation's name until the next sighting.
	r.ring.TryPublish(rec)

	r.serials[info.ID].Store(info.Serial)
	r.generations.Add(1)
}

// GenerationCount returns the number of generation changes since the last
// call and resets the count. Reported through agent self-metrics each poll.
func (r *Registry) GenerationCount() uint64 {
	return r.generations.Swap(0)
}

// Known reports whether the registry has seen id with exactly this serial.
func (r *Registry) Known(id int32, serial uint64) bool {
	if uint(id) >= uint(len(r.serials)) {
		return false
	}
	return r.serials[id].Load() == serial
}
