// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package counterstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernwatch/kernwatch/histogram"
)

var testSchema = Schema{
	Family:  "blockio_latency",
	Metrics: []string{"read", "write", "flush", "discard"},
}

func TestSchemaValidate(t *testing.T) {
	tests := map[string]struct {
		schema Schema
		err    bool
	}{
		"valid":     {schema: testSchema},
		"empty":     {schema: Schema{Family: "x"}, err: true},
		"blank":     {schema: Schema{Family: "x", Metrics: []string{""}}, err: true},
		"duplicate": {schema: Schema{Family: "x", Metrics: []string{"a", "a"}}, err: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.schema.Validate()
			if tc.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchemaOffsets(t *testing.T) {
	assert.Equal(t, 0, testSchema.Offset("read"))
	assert.Equal(t, 3, testSchema.Offset("discard"))
	assert.Equal(t, -1, testSchema.Offset("nope"))
	assert.Equal(t, "blockio_latency_write", testSchema.MetricName(1))
}

func TestStoreConcurrentIncrements(t *testing.T) {
	store, err := NewStore(testSchema, 8)
	require.NoError(t, err)

	// N concurrent increments on the same slot must total exactly N.
	const perWorker = 10000
	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				store.Inc(3, 1)
			}
		}()
	}
	wg.Wait()

	snap := store.Snapshot(nil)
	assert.Equal(t, uint64(workers*perWorker), snap.Value(3, 1))
	assert.Equal(t, uint64(workers*perWorker), snap.Merge(1))
	assert.Zero(t, snap.Value(3, 0))
}

func TestStoreMergeAcrossUnits(t *testing.T) {
	store, err := NewStore(testSchema, 4)
	require.NoError(t, err)

	for unit := range 3 {
		for range 10 {
			store.Inc(unit, 0)
		}
	}
	snap := store.Snapshot(nil)
	assert.Equal(t, uint64(30), snap.Merge(0))

	for range 5 {
		store.Inc(0, 0)
	}
	snap = store.Snapshot(snap)
	assert.Equal(t, uint64(35), snap.Merge(0))
}

func TestStoreOutOfRange(t *testing.T) {
	store, err := NewStore(testSchema, 2)
	require.NoError(t, err)

	// Out-of-range writes are dropped at the boundary, never panic.
	store.Inc(-1, 0)
	store.Inc(2, 0)
	store.Inc(0, -1)
	store.Inc(0, 4)
	store.Add(99, 99, 7)
	store.ResetUnit(-1)
	store.ResetUnit(5)

	snap := store.Snapshot(nil)
	for m := range testSchema.Width() {
		assert.Zero(t, snap.Merge(m))
	}
	assert.Zero(t, snap.Value(77, 0))
}

func TestStoreResetUnit(t *testing.T) {
	store, err := NewStore(testSchema, 4)
	require.NoError(t, err)

	store.Add(1, 2, 41)
	store.Add(2, 2, 1)
	store.ResetUnit(1)

	snap := store.Snapshot(nil)
	assert.Zero(t, snap.Value(1, 2))
	assert.Equal(t, uint64(1), snap.Merge(2))
}

func TestHistogramStoreObserve(t *testing.T) {
	hist, err := NewHistogramStore("scheduler_runqueue_latency",
		histogram.ProfileStandard, 4)
	require.NoError(t, err)

	hist.Observe(0, 0)
	hist.Observe(0, 99)
	hist.Observe(1, 100)
	hist.Observe(1, 100)
	hist.Observe(2, ^uint64(0)) // saturates
	hist.Observe(9, 1)          // out of range unit, dropped

	buckets := hist.Snapshot(nil)
	require.Len(t, buckets, int(histogram.ProfileStandard.Buckets()))
	assert.Equal(t, uint64(1), buckets[0])
	assert.Equal(t, uint64(1), buckets[99])
	assert.Equal(t, uint64(2), buckets[100])
	assert.Equal(t, uint64(1), buckets[len(buckets)-1])
	assert.Zero(t, buckets[1])
}

func TestHistogramStoreResetUnit(t *testing.T) {
	hist, err := NewHistogramStore("h", histogram.ProfileCompact, 2)
	require.NoError(t, err)

	hist.Observe(0, 50)
	hist.Observe(1, 50)
	hist.ResetUnit(0)

	buckets := hist.Snapshot(nil)
	assert.Equal(t, uint64(1), buckets[50])
}
