// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package counterstore // import "github.com/kernwatch/kernwatch/counterstore"

import (
	"fmt"
	"sync/atomic"

	"github.com/kernwatch/kernwatch/histogram"
)

// HistogramStore holds one bucket array per producer unit, indexed with the
// shared log-linear index function. Bucket boundaries never change at
// runtime; counts are cumulative and monotonically non-decreasing.
type HistogramStore struct {
	name    string
	profile histogram.Profile
	units   int
	buckets int
	slots   []atomic.Uint64
}

// NewHistogramStore allocates a histogram store for units producer units
// under the given resolution profile.
func NewHistogramStore(name string, profile histogram.Profile,
	units int) (*HistogramStore, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("histogram %q: %w", name, err)
	}
	if units <= 0 {
		return nil, fmt.Errorf("histogram %q: invalid unit count %d",
			name, units)
	}
	buckets := int(profile.Buckets())
	return &HistogramStore{
		name:    name,
		profile: profile,
		units:   units,
		buckets: buckets,
		slots:   make([]atomic.Uint64, units*buckets),
	}, nil
}

// Name returns the exported metric name of the histogram.
func (h *HistogramStore) Name() string { return h.name }

// Profile returns the resolution profile of the histogram.
func (h *HistogramStore) Profile() histogram.Profile { return h.profile }

// Units returns the producer-unit bound of the histogram.
func (h *HistogramStore) Units() int { return h.units }

// Observe records one occurrence of value for unit. Out-of-range units are
// silently dropped; out-of-range values saturate at the top bucket.
func (h *HistogramStore) Observe(unit int, value uint64) {
	if uint(unit) >= uint(h.units) {
		return
	}
	idx := int(histogram.ValueToIndex(value, h.profile))
	h.slots[unit*h.buckets+idx].Add(1)
}

// ResetUnit zeroes one unit's bucket array on unit id reuse.
func (h *HistogramStore) ResetUnit(unit int) {
	if uint(unit) >= uint(h.units) {
		return
	}
	base := unit * h.buckets
	for i := range h.buckets {
		h.slots[base+i].Store(0)
	}
}

// Snapshot merges all units into a single cumulative bucket array,
// reusing dst when it has the right size. The same torn-read caveats as
// Store.Snapshot apply.
func (h *HistogramStore) Snapshot(dst []uint64) []uint64 {
	if len(dst) != h.buckets {
		dst = make([]uint64, h.buckets)
	} else {
		clear(dst)
	}
	for unit := range h.units {
		base := unit * h.buckets
		for i := range h.buckets {
			dst[i] += h.slots[base+i].Load()
		}
	}
	return dst
}
