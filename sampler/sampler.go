// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampler implements the consumer side of the measurement
// substrate: a periodic poll that drains the metadata relay into the name
// table, snapshots the counter stores, merges across producer units,
// computes deltas against the previous poll and hands the results to a
// sink. The sampler never blocks a producer; it owns the name table and
// all snapshots.
package sampler // import "github.com/kernwatch/kernwatch/sampler"

import (
	"context"
	"time"

	lru "github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/kernwatch/kernwatch/cgroups"
	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/metrics"
	"github.com/kernwatch/kernwatch/periodiccaller"
	"github.com/kernwatch/kernwatch/relay"
	"github.com/kernwatch/kernwatch/times"
)

// slowPollThreshold flags polls that ran long enough to distort delta
// windows.
const slowPollThreshold = 100 * time.Millisecond

// labelCacheSize bounds the per-cgroup label map cache. Sized for the
// cgroup cardinality cap.
const labelCacheSize = counterstore.MaxCgroups

// unattributed is the name label for per-cgroup units whose metadata never
// made it across the relay.
const unattributed = "unattributed"

// counterSeries tracks one counter store across polls.
type counterSeries struct {
	store     *counterstore.Store
	perCgroup bool
	prev      *counterstore.Snapshot
	cur       *counterstore.Snapshot
}

// histogramSeries tracks one histogram store across polls.
type histogramSeries struct {
	hist *counterstore.HistogramStore
	cur  []uint64
}

// Sampler periodically merges producer-side state and emits it to a sink.
type Sampler struct {
	ring     *relay.Ring[cgroups.Record]
	table    *cgroups.NameTable
	sink     Sink
	registry *cgroups.Registry
	counters []*counterSeries
	hists    []*histogramSeries

	// labelCache interns the label maps per cgroup path so steady-state
	// polls do not reallocate them.
	labelCache *lru.LRU[string, Labels]

	trigger chan bool
}

// hashString is the hash function for the label cache. xxh3 turned out to
// be the fastest hash function for strings in the FreeLRU benchmarks.
func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// New creates a sampler draining ring into table and reporting to sink.
func New(ring *relay.Ring[cgroups.Record], table *cgroups.NameTable,
	sink Sink) (*Sampler, error) {
	labelCache, err := lru.New[string, Labels](labelCacheSize, hashString)
	if err != nil {
		return nil, err
	}
	return &Sampler{
		ring:       ring,
		table:      table,
		sink:       sink,
		labelCache: labelCache,
		trigger:    make(chan bool, 1),
	}, nil
}

// SetRegistry attaches the producer-side registry so its generation count
// is drained into the self-metrics each poll. Call during wiring.
func (s *Sampler) SetRegistry(registry *cgroups.Registry) {
	s.registry = registry
}

// AddCounterStore registers a system-wide counter store: units are CPU
// cores, merged into one series per metric. Call during wiring, not
// concurrently with polls.
func (s *Sampler) AddCounterStore(store *counterstore.Store) {
	s.counters = append(s.counters, &counterSeries{store: store})
}

// AddCgroupCounterStore registers a per-cgroup counter store: units are
// cgroup ids, one labeled series per live cgroup and metric.
func (s *Sampler) AddCgroupCounterStore(store *counterstore.Store) {
	s.counters = append(s.counters, &counterSeries{store: store, perCgroup: true})
}

// AddHistogramStore registers a system-wide histogram store.
func (s *Sampler) AddHistogramStore(hist *counterstore.HistogramStore) {
	s.hists = append(s.hists, &histogramSeries{hist: hist})
}

// Start begins periodic polling until ctx is canceled.
func (s *Sampler) Start(ctx context.Context, interval time.Duration) func() {
	return periodiccaller.StartWithManualTrigger(ctx, interval, s.trigger,
		func(bool) {
			s.Poll()
		})
}

// TriggerPoll requests an immediate poll. Non-blocking; if a trigger is
// already pending the request is folded into it.
func (s *Sampler) TriggerPoll() {
	select {
	case s.trigger <- true:
	default:
	}
}

// Poll runs one drain/snapshot/merge/report cycle. Single-threaded
// relative to itself: callers must not invoke Poll concurrently.
func (s *Sampler) Poll() {
	start := times.GetKTime()

	applied, stale := s.drainRelay()

	for _, cs := range s.counters {
		s.reportCounterSeries(cs)
	}
	for _, hs := range s.hists {
		hs.cur = hs.hist.Snapshot(hs.cur)
		s.sink.ReportHistogram(hs.hist.Name(), nil, hs.hist.Profile(),
			hs.cur)
	}

	var generations uint64
	if s.registry != nil {
		generations = s.registry.GenerationCount()
	}

	duration := time.Duration(times.GetKTime() - start)
	if duration > slowPollThreshold {
		log.Warnf("Slow sampler poll: %v (started at %s)",
			duration, start.Time().Format(time.RFC3339Nano))
	}

	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDRelayRecordsApplied, Value: metrics.MetricValue(applied)},
		{ID: metrics.IDRelayRecordsStale, Value: metrics.MetricValue(stale)},
		{ID: metrics.IDRelayDrops, Value: metrics.MetricValue(s.ring.DropCount())},
		{ID: metrics.IDRelayMaxDepth, Value: metrics.MetricValue(s.ring.MaxDepth())},
		{ID: metrics.IDCgroupGenerations, Value: metrics.MetricValue(generations)},
		{ID: metrics.IDSamplerPolls, Value: 1},
		{ID: metrics.IDSamplerPollDuration,
			Value: metrics.MetricValue(duration.Microseconds())},
	})
}

// drainRelay applies all buffered metadata records to the name table.
func (s *Sampler) drainRelay() (applied, stale int) {
	s.ring.Drain(func(rec *cgroups.Record) {
		info, err := cgroups.DecodeRecord(rec)
		if err != nil {
			// A layout mismatch between producer and consumer,
			// worth surfacing.
			log.Warnf("Dropping relay record: %v", err)
			stale++
			return
		}
		if s.table.Apply(info) {
			applied++
		} else {
			stale++
		}
	})
	return applied, stale
}

// reportCounterSeries snapshots one store and emits merged deltas.
func (s *Sampler) reportCounterSeries(cs *counterSeries) {
	cs.cur = cs.store.Snapshot(cs.cur)
	schema := cs.store.Schema()

	if cs.perCgroup {
		s.reportPerCgroup(cs, schema)
	} else {
		s.reportSystemWide(cs, schema)
	}

	cs.prev, cs.cur = cs.cur, cs.prev
}

// reportSystemWide merges all units into one series per metric.
func (s *Sampler) reportSystemWide(cs *counterSeries, schema counterstore.Schema) {
	for metric := range schema.Width() {
		var delta, total uint64
		for unit := range cs.cur.Units() {
			cur := cs.cur.Value(unit, metric)
			total += cur
			delta += clampedDelta(cur, prevValue(cs.prev, unit, metric))
		}
		s.sink.ReportCounter(schema.MetricName(metric), nil, delta, total)
	}
}

// reportPerCgroup emits one labeled series per live cgroup id and metric.
// Units with no recorded counts are skipped, so the cardinality follows the
// number of active cgroups, not the table size.
func (s *Sampler) reportPerCgroup(cs *counterSeries, schema counterstore.Schema) {
	for unit := range cs.cur.Units() {
		var labels Labels
		for metric := range schema.Width() {
			cur := cs.cur.Value(unit, metric)
			delta := clampedDelta(cur, prevValue(cs.prev, unit, metric))
			if cur == 0 && delta == 0 {
				continue
			}
			if labels == nil {
				labels = s.cgroupLabels(int32(unit))
			}
			s.sink.ReportCounter(schema.MetricName(metric), labels,
				delta, cur)
		}
	}
}

// cgroupLabels returns the interned label map for one cgroup id.
func (s *Sampler) cgroupLabels(id int32) Labels {
	path, ok := s.table.Lookup(id)
	if !ok {
		path = unattributed
	}
	if labels, ok := s.labelCache.Get(path); ok {
		return labels
	}
	labels := Labels{"name": path}
	s.labelCache.Add(path, labels)
	return labels
}

// prevValue reads a slot from the previous snapshot, zero on the first
// poll.
func prevValue(prev *counterstore.Snapshot, unit, metric int) uint64 {
	if prev == nil {
		return 0
	}
	return prev.Value(unit, metric)
}

// clampedDelta implements the reset policy: a counter that appears to have
// gone backward (restarted producer, zeroed accumulator) contributes its
// current value, never a negative delta.
func clampedDelta(cur, prev uint64) uint64 {
	if cur < prev {
		metrics.Add(metrics.IDCounterResets, 1)
		return cur
	}
	return cur - prev
}

// Compile time check for interface adherence
var _ Sink = LogSink{}
