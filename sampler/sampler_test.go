// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernwatch/kernwatch/cgroups"
	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/histogram"
	"github.com/kernwatch/kernwatch/relay"
)

// recordingSink captures reported series keyed by name and label set.
type recordingSink struct {
	deltas  map[string]uint64
	totals  map[string]uint64
	buckets map[string][]uint64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		deltas:  map[string]uint64{},
		totals:  map[string]uint64{},
		buckets: map[string][]uint64{},
	}
}

func seriesKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	return fmt.Sprintf("%s{name=%s}", name, labels["name"])
}

func (r *recordingSink) ReportCounter(name string, labels Labels,
	delta, total uint64) {
	key := seriesKey(name, labels)
	r.deltas[key] = delta
	r.totals[key] = total
}

func (r *recordingSink) ReportHistogram(name string, labels Labels,
	_ histogram.Profile, buckets []uint64) {
	r.buckets[seriesKey(name, labels)] = append([]uint64(nil), buckets...)
}

type fixture struct {
	ring    *relay.Ring[cgroups.Record]
	table   *cgroups.NameTable
	sink    *recordingSink
	sampler *Sampler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ring, err := relay.New[cgroups.Record](64)
	require.NoError(t, err)
	sink := newRecordingSink()
	table := cgroups.NewNameTable(64)
	s, err := New(ring, table, sink)
	require.NoError(t, err)
	return &fixture{ring: ring, table: table, sink: sink, sampler: s}
}

func TestPollMergesAcrossUnits(t *testing.T) {
	f := newFixture(t)
	store, err := counterstore.NewStore(counterstore.Schema{
		Family:  "tcp",
		Metrics: []string{"retransmit"},
	}, 8)
	require.NoError(t, err)
	f.sampler.AddCounterStore(store)

	// Three producer units increment metric 0 ten times each.
	for unit := range 3 {
		for range 10 {
			store.Inc(unit, 0)
		}
	}
	f.sampler.Poll()
	assert.Equal(t, uint64(30), f.sink.totals["tcp_retransmit"])
	assert.Equal(t, uint64(30), f.sink.deltas["tcp_retransmit"])

	// Five more on unit 0 alone: merged total 35, delta 5.
	for range 5 {
		store.Inc(0, 0)
	}
	f.sampler.Poll()
	assert.Equal(t, uint64(35), f.sink.totals["tcp_retransmit"])
	assert.Equal(t, uint64(5), f.sink.deltas["tcp_retransmit"])
}

func TestPollDeltaClamp(t *testing.T) {
	f := newFixture(t)
	store, err := counterstore.NewStore(counterstore.Schema{
		Family:  "softnet",
		Metrics: []string{"dropped"},
	}, 2)
	require.NoError(t, err)
	f.sampler.AddCounterStore(store)

	store.Add(0, 0, 100)
	f.sampler.Poll()
	require.Equal(t, uint64(100), f.sink.totals["softnet_dropped"])

	// The counter appears to go backward (producer restart): the delta
	// is the current value, never negative.
	store.ResetUnit(0)
	store.Add(0, 0, 40)
	f.sampler.Poll()
	assert.Equal(t, uint64(40), f.sink.totals["softnet_dropped"])
	assert.Equal(t, uint64(40), f.sink.deltas["softnet_dropped"])
}

func TestPollPerCgroupLabels(t *testing.T) {
	f := newFixture(t)
	store, err := counterstore.NewStore(counterstore.Schema{
		Family:  "cgroup_cpu",
		Metrics: []string{"usage"},
	}, 64)
	require.NoError(t, err)
	f.sampler.AddCgroupCounterStore(store)

	reg := cgroups.NewRegistry(64, f.ring, store)
	reg.Observe(cgroups.Info{ID: 7, Serial: 1, Level: 1,
		Name: "system.slice"})
	store.Add(7, 0, 123)

	// An id that never crossed the relay still shows up, unattributed.
	store.Add(9, 0, 5)

	f.sampler.Poll()
	assert.Equal(t, uint64(123),
		f.sink.totals["cgroup_cpu_usage{name=/system.slice}"])
	assert.Equal(t, uint64(5),
		f.sink.totals["cgroup_cpu_usage{name=unattributed}"])

	// Idle ids are not reported at all.
	for key := range f.sink.totals {
		assert.NotContains(t, key, "name=/}")
	}
}

func TestPollCgroupGenerationReuse(t *testing.T) {
	f := newFixture(t)
	store, err := counterstore.NewStore(counterstore.Schema{
		Family:  "cgroup_sched",
		Metrics: []string{"runqueue_wait"},
	}, 64)
	require.NoError(t, err)
	f.sampler.AddCgroupCounterStore(store)
	reg := cgroups.NewRegistry(64, f.ring, store)

	reg.Observe(cgroups.Info{ID: 3, Serial: 10, Level: 1, Name: "old"})
	store.Add(3, 0, 500)
	f.sampler.Poll()
	require.Equal(t, uint64(500),
		f.sink.totals["cgroup_sched_runqueue_wait{name=/old}"])

	// The id is reused: accumulators are zeroed, the new generation
	// starts from scratch under its own name.
	reg.Observe(cgroups.Info{ID: 3, Serial: 11, Level: 1, Name: "new"})
	store.Add(3, 0, 20)
	f.sampler.Poll()
	assert.Equal(t, uint64(20),
		f.sink.totals["cgroup_sched_runqueue_wait{name=/new}"])
	assert.Equal(t, uint64(20),
		f.sink.deltas["cgroup_sched_runqueue_wait{name=/new}"])
}

func TestPollHistograms(t *testing.T) {
	f := newFixture(t)
	hist, err := counterstore.NewHistogramStore("syscall_latency",
		histogram.ProfileStandard, 4)
	require.NoError(t, err)
	f.sampler.AddHistogramStore(hist)

	hist.Observe(0, 250)
	hist.Observe(1, 250)
	hist.Observe(2, 3)
	f.sampler.Poll()

	buckets := f.sink.buckets["syscall_latency"]
	require.Len(t, buckets, int(histogram.ProfileStandard.Buckets()))
	idx := histogram.ValueToIndex(250, histogram.ProfileStandard)
	assert.Equal(t, uint64(2), buckets[idx])
	assert.Equal(t, uint64(1), buckets[3])

	// Cumulative counts carry over across polls.
	hist.Observe(3, 250)
	f.sampler.Poll()
	assert.Equal(t, uint64(3), f.sink.buckets["syscall_latency"][idx])
}

func TestPollAppliesStaleRecordsIdempotently(t *testing.T) {
	f := newFixture(t)

	pub := func(info cgroups.Info) {
		var rec cgroups.Record
		info.Encode(&rec)
		require.True(t, f.ring.TryPublish(rec))
	}

	// Out-of-order duplicate announcements for one id: the latest
	// serial wins regardless of arrival order.
	pub(cgroups.Info{ID: 5, Serial: 2, Level: 1, Name: "new"})
	pub(cgroups.Info{ID: 5, Serial: 1, Level: 1, Name: "old"})
	pub(cgroups.Info{ID: 5, Serial: 2, Level: 1, Name: "new"})
	f.sampler.Poll()

	path, ok := f.table.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, "/new", path)
}
