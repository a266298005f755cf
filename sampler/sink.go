// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package sampler // import "github.com/kernwatch/kernwatch/sampler"

import (
	log "github.com/sirupsen/logrus"

	"github.com/kernwatch/kernwatch/histogram"
)

// Labels carries the attribution of one reported series. Per-cgroup series
// get a "name" label with the composed hierarchy path.
type Labels map[string]string

// Sink receives merged results from the sampler once per poll. Counter
// values are deltas since the previous poll with regression clamped to the
// current value; histogram buckets are raw cumulative counts, rate
// consumers difference them under the same reset policy. Implementations
// are called from the single sampler goroutine.
type Sink interface {
	// ReportCounter delivers one counter series: the delta since the
	// previous poll and the current merged total.
	ReportCounter(name string, labels Labels, delta, total uint64)

	// ReportHistogram delivers the cumulative per-bucket counts of one
	// histogram under its resolution profile.
	ReportHistogram(name string, labels Labels, profile histogram.Profile,
		buckets []uint64)
}

// LogSink writes reported series to the debug log. A debugging aid and the
// fallback when no meter provider is configured.
type LogSink struct{}

func (LogSink) ReportCounter(name string, labels Labels, delta, total uint64) {
	log.Debugf("counter %s%v delta=%d total=%d", name, labels, delta, total)
}

func (LogSink) ReportHistogram(name string, labels Labels,
	profile histogram.Profile, buckets []uint64) {
	var count uint64
	for _, b := range buckets {
		count += b
	}
	log.Debugf("histogram %s%v profile=%s observations=%d",
		name, labels, profile, count)
}
