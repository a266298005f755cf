// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package probes // import "github.com/kernwatch/kernwatch/probes"

import (
	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/histogram"
)

// tlbFlushReasons mirrors the kernel's tlb_flush_reason enum order. The
// producer indexes metric offsets directly with the enum value.
var tlbFlushReasons = []string{
	"task_switch", "remote_shootdown", "local_shootdown",
	"local_mm_shootdown", "remote_send_ipi", "unknown",
}

// Catalog lists every probe the agent ships. The sampler and the loaders
// iterate this; adding a probe means adding an entry, not new plumbing.
var Catalog = []Probe{
	{
		Name: "cpu_usage",
		Counters: counterstore.Schema{
			Family: "cpu_usage",
			Metrics: []string{"user", "nice", "system", "softirq",
				"irq", "steal"},
		},
		CgroupCounters: counterstore.Schema{
			Family:  "cgroup_cpu_usage",
			Metrics: []string{"user", "system"},
		},
	},
	{
		Name: "cpu_frequency",
		Counters: counterstore.Schema{
			Family:  "cpu_frequency",
			Metrics: []string{"aperf", "mperf", "tsc"},
		},
	},
	{
		Name: "cpu_perf",
		Counters: counterstore.Schema{
			Family:  "cpu_perf",
			Metrics: []string{"cycles", "instructions"},
		},
		CgroupCounters: counterstore.Schema{
			Family:  "cgroup_cpu_perf",
			Metrics: []string{"cycles", "instructions"},
		},
	},
	{
		Name: "cpu_migrations",
		Counters: counterstore.Schema{
			Family:  "cpu_migrations",
			Metrics: []string{"from", "to"},
		},
		CgroupCounters: counterstore.Schema{
			Family:  "cgroup_cpu_migrations",
			Metrics: []string{"from", "to"},
		},
	},
	{
		Name: "cpu_tlb_flush",
		Counters: counterstore.Schema{
			Family:  "cpu_tlb_flush",
			Metrics: tlbFlushReasons,
		},
		CgroupCounters: counterstore.Schema{
			Family:  "cgroup_cpu_tlb_flush",
			Metrics: tlbFlushReasons,
		},
	},
	{
		Name: "cpu_bandwidth",
		Counters: counterstore.Schema{
			Family:  "cpu_bandwidth",
			Metrics: []string{"throttled_time", "throttled_count"},
		},
		CgroupCounters: counterstore.Schema{
			Family:  "cgroup_cpu_bandwidth",
			Metrics: []string{"throttled_time", "throttled_count"},
		},
	},
	{
		Name: "scheduler_runqueue",
		Counters: counterstore.Schema{
			Family:  "scheduler",
			Metrics: []string{"ivcsw"},
		},
		Histograms: []HistogramSpec{
			{"scheduler_runqueue_latency", histogram.ProfileStandard},
			{"scheduler_running", histogram.ProfileStandard},
			{"scheduler_offcpu", histogram.ProfileExtended},
		},
		CgroupCounters: counterstore.Schema{
			Family:  "cgroup_scheduler",
			Metrics: []string{"runqueue_wait", "offcpu", "ivcsw"},
		},
	},
	{
		Name: "blockio_latency",
		Histograms: []HistogramSpec{
			{"blockio_latency", histogram.ProfileStandard},
			{"blockio_size", histogram.ProfileStandard},
		},
	},
	{
		Name: "blockio_requests",
		Counters: counterstore.Schema{
			Family: "blockio",
			Metrics: []string{"read_ops", "write_ops", "flush_ops",
				"discard_ops", "read_bytes", "write_bytes",
				"discard_bytes"},
		},
	},
	{
		Name: "syscall_counts",
		Counters: counterstore.Schema{
			Family: "syscall",
			Metrics: []string{"other", "read", "write", "poll",
				"lock", "time", "sleep", "socket", "yield"},
		},
		CgroupCounters: counterstore.Schema{
			Family: "cgroup_syscall",
			Metrics: []string{"other", "read", "write", "poll",
				"lock", "time", "sleep", "socket", "yield"},
		},
	},
	{
		Name: "syscall_latency",
		Histograms: []HistogramSpec{
			{"syscall_latency", histogram.ProfileStandard},
			{"syscall_latency_read", histogram.ProfileStandard},
			{"syscall_latency_write", histogram.ProfileStandard},
			{"syscall_latency_poll", histogram.ProfileStandard},
		},
	},
	{
		Name: "tcp_retransmit",
		Counters: counterstore.Schema{
			Family:  "tcp",
			Metrics: []string{"retransmit"},
		},
	},
	{
		Name: "tcp_traffic",
		Counters: counterstore.Schema{
			Family: "tcp_traffic",
			Metrics: []string{"rx_bytes", "tx_bytes", "rx_packets",
				"tx_packets"},
		},
		Histograms: []HistogramSpec{
			{"tcp_size", histogram.ProfileStandard},
		},
	},
	{
		Name: "tcp_packet_latency",
		Histograms: []HistogramSpec{
			{"tcp_packet_latency", histogram.ProfileStandard},
		},
	},
	{
		Name: "tcp_connect_latency",
		Histograms: []HistogramSpec{
			{"tcp_connect_latency", histogram.ProfileStandard},
		},
	},
	{
		Name: "network_softnet",
		Counters: counterstore.Schema{
			Family: "softnet",
			Metrics: []string{"processed", "dropped",
				"time_squeezed"},
		},
	},
	{
		Name: "network_interfaces",
		Counters: counterstore.Schema{
			Family: "network",
			Metrics: []string{"rx_bytes", "tx_bytes", "rx_packets",
				"tx_packets", "rx_errors", "tx_errors",
				"rx_dropped", "tx_dropped"},
		},
	},
}

// Lookup returns the catalog entry with the given name.
func Lookup(name string) (Probe, bool) {
	for _, p := range Catalog {
		if p.Name == name {
			return p, true
		}
	}
	return Probe{}, false
}
