// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package cpuperf feeds per-CPU hardware performance counters into a
// counter store. It opens one counting perf event per CPU and metric,
// and converts the monotonic readings into store increments on every
// collection.
package cpuperf // import "github.com/kernwatch/kernwatch/probes/cpuperf"

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-perf"
	log "github.com/sirupsen/logrus"

	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/metrics"
	"github.com/kernwatch/kernwatch/periodiccaller"
)

// hardwareMetrics maps the cpu_perf schema metrics to the hardware
// counters backing them. The order must match the schema declaration.
var hardwareMetrics = []struct {
	name    string
	counter perf.HardwareCounter
}{
	{"cycles", perf.CPUCycles},
	{"instructions", perf.Instructions},
}

// event is one open counting perf event together with the store slot
// its deltas land in.
type event struct {
	ev     *perf.Event
	cpu    int
	metric int
	prev   uint64
}

// Producer reads hardware counters for all online CPUs and adds the
// deltas to a counter store, one store unit per CPU.
type Producer struct {
	store  *counterstore.Store
	events []*event
	stop   func()
}

// New opens the hardware counting events for every online CPU. CPUs
// where the PMU refuses the event are skipped with a warning, which
// covers virtualized hosts without performance counters.
func New(store *counterstore.Store) (*Producer, error) {
	cpus, err := onlineCPUs()
	if err != nil {
		return nil, fmt.Errorf("failed to get online CPUs: %v", err)
	}

	p := &Producer{store: store}
	for _, cpu := range cpus {
		if cpu >= store.Units() {
			log.Warnf("CPU %d exceeds store capacity %d, skipping", cpu, store.Units())
			continue
		}
		for _, hm := range hardwareMetrics {
			metric := store.Schema().Offset(hm.name)
			if metric < 0 {
				p.Close()
				return nil, fmt.Errorf("store schema lacks metric %s", hm.name)
			}
			attr := new(perf.Attr)
			if err := hm.counter.Configure(attr); err != nil {
				p.Close()
				return nil, fmt.Errorf("failed to configure hardware counter %s: %v",
					hm.name, err)
			}
			ev, err := perf.Open(attr, perf.AllThreads, cpu, nil)
			if err != nil {
				log.Warnf("Failed to open %s counter on CPU %d: %v", hm.name, cpu, err)
				continue
			}
			if err := ev.Enable(); err != nil {
				_ = ev.Close()
				log.Warnf("Failed to enable %s counter on CPU %d: %v", hm.name, cpu, err)
				continue
			}
			e := &event{ev: ev, cpu: cpu, metric: metric}
			// Prime the baseline so the first collection reports a
			// delta, not the absolute reading.
			if count, err := ev.ReadCount(); err == nil {
				e.prev = count.Value
			}
			p.events = append(p.events, e)
		}
	}
	if len(p.events) == 0 {
		return nil, fmt.Errorf("no hardware counters could be opened")
	}
	return p, nil
}

// Collect reads all open events and adds the deltas since the previous
// collection to the store. Read failures are counted but do not abort
// the pass.
func (p *Producer) Collect() {
	var readErrors uint64
	for _, e := range p.events {
		count, err := e.ev.ReadCount()
		if err != nil {
			readErrors++
			continue
		}
		value := count.Value
		if value >= e.prev {
			p.store.Add(e.cpu, e.metric, value-e.prev)
		}
		e.prev = value
	}
	if readErrors > 0 {
		metrics.Add(metrics.IDPerfReadErrors, metrics.MetricValue(readErrors))
	}
}

// Start collects in the background on the given interval until ctx is
// canceled.
func (p *Producer) Start(ctx context.Context, interval time.Duration) {
	p.stop = periodiccaller.Start(ctx, interval, p.Collect)
}

// Close disables and closes all open events.
func (p *Producer) Close() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	for _, e := range p.events {
		_ = e.ev.Disable()
		_ = e.ev.Close()
	}
	p.events = nil
}

// onlineCPUs reads online CPUs from /sys/devices/system/cpu/online and
// reports them as a slice of CPU IDs.
func onlineCPUs() ([]int, error) {
	cpuPath := "/sys/devices/system/cpu/online"
	buf, err := os.ReadFile(cpuPath)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %v", cpuPath, err)
	}
	return readCPURange(string(buf))
}

// The online CPU format can contain comma-separated ranges or single
// values, so all forms need parsing.
// Reference: https://www.kernel.org/doc/Documentation/admin-guide/cputopology.rst
func readCPURange(cpuRangeStr string) ([]int, error) {
	var cpus []int
	cpuRangeStr = strings.Trim(cpuRangeStr, "\n ")
	for _, cpuRange := range strings.Split(cpuRangeStr, ",") {
		rangeOp := strings.SplitN(cpuRange, "-", 2)
		first, err := strconv.ParseUint(rangeOp[0], 10, 32)
		if err != nil {
			return nil, err
		}
		if len(rangeOp) == 1 {
			cpus = append(cpus, int(first))
			continue
		}
		last, err := strconv.ParseUint(rangeOp[1], 10, 32)
		if err != nil {
			return nil, err
		}
		for n := first; n <= last; n++ {
			cpus = append(cpus, int(n))
		}
	}
	return cpus, nil
}
