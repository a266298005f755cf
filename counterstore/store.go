// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package counterstore provides the fixed-layout, per-producer-unit counter
// and histogram storage shared between event producers and the periodic
// sampler. Each producer unit (a CPU core, or a cgroup id) exclusively owns
// one bank of slots; banks are padded to whole cachelines so no two units
// ever touch the same line. Updates are relaxed atomic fetch-adds, reads are
// unsynchronized bulk copies: a snapshot is a best-effort point-in-time
// approximation, never a linearizable cut.
package counterstore // import "github.com/kernwatch/kernwatch/counterstore"

import (
	"fmt"
	"sync/atomic"
)

const (
	// MaxCPUs is the default producer-unit bound for system-wide
	// accounting.
	MaxCPUs = 1024

	// MaxCgroups is the default producer-unit bound for per-cgroup
	// accounting. Kernel cgroup ids are reused below this bound.
	MaxCgroups = 4096
)

// Store holds one bank of counters per producer unit. All banks are
// allocated once and live for the process lifetime; they are never freed,
// only reset in place when a unit id is reused.
type Store struct {
	schema    Schema
	units     int
	bankWidth int
	slots     []atomic.Uint64
}

// NewStore allocates a store for units producer units laid out per schema.
func NewStore(schema Schema, units int) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if units <= 0 {
		return nil, fmt.Errorf("store %q: invalid unit count %d",
			schema.Family, units)
	}
	bw := schema.bankWidth()
	return &Store{
		schema:    schema,
		units:     units,
		bankWidth: bw,
		slots:     make([]atomic.Uint64, units*bw),
	}, nil
}

// Schema returns the declared layout of the store.
func (s *Store) Schema() Schema { return s.schema }

// Units returns the producer-unit bound of the store.
func (s *Store) Units() int { return s.units }

// Add atomically adds delta to the slot owned by (unit, metric).
// Out-of-range indices are silently dropped: the producer path runs inside
// latency-sensitive event handlers and cannot propagate errors.
func (s *Store) Add(unit, metric int, delta uint64) {
	if uint(unit) >= uint(s.units) || uint(metric) >= uint(len(s.schema.Metrics)) {
		return
	}
	s.slots[unit*s.bankWidth+metric].Add(delta)
}

// Inc atomically increments the slot owned by (unit, metric).
func (s *Store) Inc(unit, metric int) {
	s.Add(unit, metric, 1)
}

// ResetUnit zeroes every slot in one unit's bank. Called when a bounded unit
// id (a cgroup id) is reassigned to a new owner, so the new generation never
// inherits the previous occupant's counts.
func (s *Store) ResetUnit(unit int) {
	if uint(unit) >= uint(s.units) {
		return
	}
	base := unit * s.bankWidth
	for i := range s.bankWidth {
		s.slots[base+i].Store(0)
	}
}

// Snapshot bulk-reads every slot into dst, reusing its buffer when the
// shapes match. Producers keep mutating while the copy runs; torn cuts
// across slots are accepted.
func (s *Store) Snapshot(dst *Snapshot) *Snapshot {
	if dst == nil || len(dst.values) != len(s.slots) {
		dst = &Snapshot{
			schema:    s.schema,
			units:     s.units,
			bankWidth: s.bankWidth,
			values:    make([]uint64, len(s.slots)),
		}
	}
	dst.schema = s.schema
	dst.units = s.units
	dst.bankWidth = s.bankWidth
	for i := range s.slots {
		dst.values[i] = s.slots[i].Load()
	}
	return dst
}

// Snapshot is a point-in-time copy of a Store, owned by the consumer.
type Snapshot struct {
	schema    Schema
	units     int
	bankWidth int
	values    []uint64
}

// Schema returns the layout the snapshot was taken under.
func (sn *Snapshot) Schema() Schema { return sn.schema }

// Units returns the producer-unit bound of the snapshot.
func (sn *Snapshot) Units() int { return sn.units }

// Value returns the slot value for (unit, metric), zero when out of range.
func (sn *Snapshot) Value(unit, metric int) uint64 {
	if uint(unit) >= uint(sn.units) || uint(metric) >= uint(len(sn.schema.Metrics)) {
		return 0
	}
	return sn.values[unit*sn.bankWidth+metric]
}

// Merge sums the slot values of every unit for one metric, producing the
// system-wide monotonic counter.
func (sn *Snapshot) Merge(metric int) uint64 {
	if uint(metric) >= uint(len(sn.schema.Metrics)) {
		return 0
	}
	var total uint64
	for unit := range sn.units {
		total += sn.values[unit*sn.bankWidth+metric]
	}
	return total
}

// NewSnapshot allocates an empty snapshot with the given shape. Used by map
// bridges that fill snapshots from kernel-resident arrays instead of a
// userspace Store.
func NewSnapshot(schema Schema, units int) (*Snapshot, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if units <= 0 {
		return nil, fmt.Errorf("snapshot %q: invalid unit count %d",
			schema.Family, units)
	}
	bw := schema.bankWidth()
	return &Snapshot{
		schema:    schema,
		units:     units,
		bankWidth: bw,
		values:    make([]uint64, units*bw),
	}, nil
}

// SetValue stores a slot value read from an external source. Out-of-range
// indices are dropped, matching the producer-side boundary policy.
func (sn *Snapshot) SetValue(unit, metric int, value uint64) {
	if uint(unit) >= uint(sn.units) || uint(metric) >= uint(len(sn.schema.Metrics)) {
		return
	}
	sn.values[unit*sn.bankWidth+metric] = value
}
