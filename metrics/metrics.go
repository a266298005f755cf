// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics implements the agent's self-metrics: bounded-cardinality
// counters and gauges about the agent itself (relay drops, poll durations,
// resource usage), reported through the OTel metric API. The kernel-derived
// telemetry does not pass through here; it flows through the sampler sinks.
package metrics // import "github.com/kernwatch/kernwatch/metrics"

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// definitions describes all self-metrics. Indexed lookups require the
// entries to stay in ID order.
var definitions = []MetricDefinition{
	{IDRelayDrops, MetricTypeCounter, "kernwatch_relay_drops",
		"1", "Relay records rejected because the ring was full"},
	{IDRelayRecordsApplied, MetricTypeCounter, "kernwatch_relay_records_applied",
		"1", "Relay records drained and applied to the name table"},
	{IDRelayRecordsStale, MetricTypeCounter, "kernwatch_relay_records_stale",
		"1", "Drained records discarded as stale by the name table"},
	{IDCgroupGenerations, MetricTypeCounter, "kernwatch_cgroup_generations",
		"1", "Observed cgroup generation changes"},
	{IDSamplerPollDuration, MetricTypeGauge, "kernwatch_sampler_poll_duration",
		"us", "Duration of the last sampler poll"},
	{IDSamplerPolls, MetricTypeCounter, "kernwatch_sampler_polls",
		"1", "Sampler polls performed"},
	{IDCounterResets, MetricTypeCounter, "kernwatch_counter_resets",
		"1", "Counter slots that regressed and were treated as resets"},
	{IDPerfReadErrors, MetricTypeCounter, "kernwatch_perf_read_errors",
		"1", "Perf counter read errors"},
	{IDAgentGoRoutines, MetricTypeGauge, "kernwatch_agent_goroutines",
		"1", "Number of agent goroutines"},
	{IDAgentHeapAlloc, MetricTypeGauge, "kernwatch_agent_heap_alloc",
		"By", "Bytes of allocated heap objects of the agent"},
	{IDAgentUTime, MetricTypeCounter, "kernwatch_agent_utime",
		"ms", "User CPU time consumed by the agent"},
	{IDAgentSTime, MetricTypeCounter, "kernwatch_agent_stime",
		"ms", "System CPU time consumed by the agent"},
	{IDRelayMaxDepth, MetricTypeGauge, "kernwatch_relay_max_depth",
		"1", "Relay occupancy high watermark observed between polls"},
}

var (
	// mutex serializes the concurrent calls to AddSlice().
	mutex sync.Mutex

	metricTypes map[MetricID]MetricType

	// OTel metric instrumentation
	meter    = otel.Meter("github.com/kernwatch/kernwatch")
	counters = map[MetricID]metric.Int64Counter{}
	gauges   = map[MetricID]metric.Int64Gauge{}
)

func init() {
	metricTypes = make(map[MetricID]MetricType, len(definitions))
	for _, md := range definitions {
		metricTypes[md.ID] = md.Type
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// GetDefinitions returns the self-metric definitions.
func GetDefinitions() []MetricDefinition {
	return definitions
}

// AddSlice reports a batch of metrics.
// Counters with a zero value are skipped as no-op deltas.
func AddSlice(newMetrics []Metric) {
	ctx := context.Background()

	mutex.Lock()
	defer mutex.Unlock()

	for _, m := range newMetrics {
		typ, ok := metricTypes[m.ID]
		if !ok {
			log.Warnf("Invalid metric id %d, skipping", m.ID)
			continue
		}
		if m.Value == 0 && typ == MetricTypeCounter {
			continue
		}
		switch typ {
		case MetricTypeCounter:
			if counter, ok := counters[m.ID]; ok {
				counter.Add(ctx, int64(m.Value))
			}
		case MetricTypeGauge:
			if gauge, ok := gauges[m.ID]; ok {
				gauge.Record(ctx, int64(m.Value))
			}
		}
	}
}

// Add reports a single metric.
func Add(id MetricID, value MetricValue) {
	AddSlice([]Metric{{ID: id, Value: value}})
}
