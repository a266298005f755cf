// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentmetrics implements the fetching and reporting of agent
// specific resource usage: goroutines, heap, and CPU time consumed by the
// agent itself. The agent instruments kernel overhead, so its own overhead
// has to stay visible too.
package agentmetrics // import "github.com/kernwatch/kernwatch/metrics/agentmetrics"

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	log "github.com/sirupsen/logrus"

	"github.com/kernwatch/kernwatch/metrics"
	"github.com/kernwatch/kernwatch/periodiccaller"
)

// rusageSelf is the indicator that we get the rusage of the calling
// process itself.
const rusageSelf = 0

// rusageTimes holds time values of a rusage call.
type rusageTimes struct {
	// utime represents the user time in usec.
	utime unix.Timeval
	// stime represents the system time in usec.
	stime unix.Timeval
}

// timeDelta calculates the difference between two time values
// and returns the difference in milliseconds.
func timeDelta(now, prev unix.Timeval) int64 {
	secDelta := (now.Sec - prev.Sec) * 1000
	usecDelta := (now.Usec - prev.Usec) / 1000
	return secDelta + usecDelta
}

// report collects agent specific metrics and forwards these to the metrics
// package for further processing.
func (r *rusageTimes) report() {
	nGoRoutines := runtime.NumGoroutine()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var rusage unix.Rusage
	if err := unix.Getrusage(rusageSelf, &rusage); err != nil {
		log.Errorf("Failed to fetch Rusage: %v", err)
		return
	}

	deltaStime := timeDelta(rusage.Stime, r.stime)
	deltaUtime := timeDelta(rusage.Utime, r.utime)

	r.stime = rusage.Stime
	r.utime = rusage.Utime

	metrics.AddSlice([]metrics.Metric{
		{
			ID:    metrics.IDAgentGoRoutines,
			Value: metrics.MetricValue(nGoRoutines),
		},
		{
			ID:    metrics.IDAgentHeapAlloc,
			Value: metrics.MetricValue(stats.HeapAlloc),
		},
		{
			ID:    metrics.IDAgentUTime,
			Value: metrics.MetricValue(deltaUtime),
		},
		{
			ID:    metrics.IDAgentSTime,
			Value: metrics.MetricValue(deltaStime),
		},
	})
}

// Start starts the agent specific metric retrieval and reporting.
func Start(mainCtx context.Context, interval time.Duration) (func(), error) {
	var rusage unix.Rusage
	if err := unix.Getrusage(rusageSelf, &rusage); err != nil {
		log.Errorf("Failed to fetch Rusage: %v", err)
		return func() {}, err
	}

	prev := rusageTimes{
		utime: rusage.Utime,
		stime: rusage.Stime,
	}

	ctx, cancel := context.WithCancel(mainCtx)
	stopReporting := periodiccaller.Start(ctx, interval, func() {
		prev.report()
	})

	return func() {
		cancel()
		stopReporting()
	}, nil
}
