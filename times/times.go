// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package times holds all intervals and timeouts used across the agent in
// a central place and comes with Getters to read them.
package times // import "github.com/kernwatch/kernwatch/times"

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/kernwatch/kernwatch/periodiccaller"
)

// Number of timing samples to use when retrieving system boot time.
const sampleSize = 5

// Compile time check for interface adherence
var _ IntervalsAndTimers = (*Times)(nil)

// Monotonic-to-unixtime delta that can be added to a monotonic
// (CLOCK_MONOTONIC) timestamp to convert it to time-since-epoch.
var bootTimeUnixNano atomic.Int64

// Times holds all the intervals that are used across the agent.
type Times struct {
	sampleInterval  time.Duration
	reportInterval  time.Duration
	monitorInterval time.Duration
}

// IntervalsAndTimers is a meta-interface that exists purely to document its
// functionality.
type IntervalsAndTimers interface {
	// SampleInterval defines the interval at which the sampler drains the
	// relay and snapshots the counter stores.
	SampleInterval() time.Duration
	// ReportInterval defines the interval at which merged results are
	// handed to the metrics sink.
	ReportInterval() time.Duration
	// MonitorInterval defines the interval for agent self-metric
	// collection.
	MonitorInterval() time.Duration
}

func (t *Times) SampleInterval() time.Duration { return t.sampleInterval }

func (t *Times) ReportInterval() time.Duration { return t.reportInterval }

func (t *Times) MonitorInterval() time.Duration { return t.monitorInterval }

// New returns a new Times instance.
func New(sampleInterval, reportInterval, monitorInterval time.Duration) *Times {
	return &Times{
		sampleInterval:  sampleInterval,
		reportInterval:  reportInterval,
		monitorInterval: monitorInterval,
	}
}

// realtimeSyncJitter spreads the periodic resync so agent fleets do not
// resample the clock in lockstep.
const realtimeSyncJitter = 0.2

// StartRealtimeSync calculates a delta between the monotonic clock
// (CLOCK_MONOTONIC, rebased to unixtime) and the realtime clock. If
// syncInterval is greater than zero, it also starts a goroutine to perform
// that calculation periodically.
func StartRealtimeSync(ctx context.Context, syncInterval time.Duration) {
	bootTimeUnixNano.Store(getBootTimeUnixNano())

	if syncInterval > 0 {
		periodiccaller.StartWithJitter(ctx, syncInterval,
			realtimeSyncJitter, func() {
				bootTimeUnixNano.Store(getBootTimeUnixNano())
			})
	}
}

// getBootTimeUnixNano returns system boot time in nanoseconds since the
// epoch, temporarily locking the calling goroutine to its OS thread.
func getBootTimeUnixNano() int64 {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	samples := make([]struct {
		t1    time.Time
		ktime int64
		t2    time.Time
	}, sampleSize)

	for i := range samples {
		// To avoid noise from scheduling / other delays, we perform a
		// series of measurements and pick the one with the lowest delta.
		samples[i].t1 = time.Now()
		samples[i].ktime = int64(GetKTime())
		samples[i].t2 = time.Now()
	}

	sort.Slice(samples, func(i, j int) bool {
		di := samples[i].t2.UnixNano() - samples[i].t1.UnixNano()
		dj := samples[j].t2.UnixNano() - samples[j].t1.UnixNano()
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		return di < dj
	})

	// This should never be negative, as t1.UnixNano() >> ktime
	return samples[0].t1.UnixNano() - samples[0].ktime
}
