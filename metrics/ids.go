// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "github.com/kernwatch/kernwatch/metrics"

// Below are the different metric IDs that we currently implement.
// To add a new metric append an entry to definitions in metrics.go.
// ONLY APPEND !
const (
	// Leave out the 0 value. It's an indication of not explicitly
	// initialized variables.
	IDInvalid MetricID = 0

	// Number of relay records rejected because the ring was full.
	IDRelayDrops MetricID = 1

	// Number of relay records drained and applied to the name table.
	IDRelayRecordsApplied MetricID = 2

	// Number of drained records discarded as stale by the name table.
	IDRelayRecordsStale MetricID = 3

	// Number of cgroup generation changes observed (accumulator resets).
	IDCgroupGenerations MetricID = 4

	// Duration of the last sampler poll in microseconds.
	IDSamplerPollDuration MetricID = 5

	// Number of sampler polls performed.
	IDSamplerPolls MetricID = 6

	// Number of counter slots that regressed and were treated as resets.
	IDCounterResets MetricID = 7

	// Number of perf counter read errors.
	IDPerfReadErrors MetricID = 8

	// Absolute number of goroutines when the metric was collected.
	IDAgentGoRoutines MetricID = 9

	// Absolute number in bytes of allocated heap objects of the agent.
	IDAgentHeapAlloc MetricID = 10

	// Difference to previous user CPU time of the agent in milliseconds.
	IDAgentUTime MetricID = 11

	// Difference to previous system CPU time of the agent in milliseconds.
	IDAgentSTime MetricID = 12

	// Relay occupancy high watermark observed between polls.
	IDRelayMaxDepth MetricID = 13

	// IDMax bounds the ID space, keep this last.
	IDMax MetricID = 14
)
