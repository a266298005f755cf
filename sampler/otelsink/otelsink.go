// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package otelsink bridges sampler output into the OTel metric API. Counter
// deltas feed Int64Counters; histogram buckets are exported as cumulative
// bucket gauges carrying an upper-bound attribute, leaving any further
// shaping to the configured meter provider. Instruments are created lazily
// per metric name and reused.
package otelsink // import "github.com/kernwatch/kernwatch/sampler/otelsink"

import (
	"context"
	"strconv"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kernwatch/kernwatch/histogram"
	"github.com/kernwatch/kernwatch/sampler"
)

// Sink implements sampler.Sink on top of an OTel meter. Called only from
// the sampler goroutine, so the instrument maps need no locking.
type Sink struct {
	meter    metric.Meter
	counters map[string]metric.Int64Counter
	buckets  map[string]metric.Int64Gauge

	// bounds caches the formatted bucket upper bounds per profile.
	bounds map[histogram.Profile][]attribute.KeyValue
}

// Compile time check for interface adherence
var _ sampler.Sink = (*Sink)(nil)

// New creates a sink reporting through the global meter provider.
func New() *Sink {
	return &Sink{
		meter:    otel.Meter("github.com/kernwatch/kernwatch/sampler"),
		counters: map[string]metric.Int64Counter{},
		buckets:  map[string]metric.Int64Gauge{},
		bounds:   map[histogram.Profile][]attribute.KeyValue{},
	}
}

func attrs(labels sampler.Labels) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}

func (s *Sink) ReportCounter(name string, labels sampler.Labels,
	delta, _ uint64) {
	counter, ok := s.counters[name]
	if !ok {
		var err error
		counter, err = s.meter.Int64Counter(name)
		if err != nil {
			log.Errorf("Creating Int64Counter %s: %v", name, err)
			return
		}
		s.counters[name] = counter
	}
	if delta == 0 {
		return
	}
	counter.Add(context.Background(), int64(delta),
		metric.WithAttributes(attrs(labels)...))
}

func (s *Sink) ReportHistogram(name string, labels sampler.Labels,
	profile histogram.Profile, buckets []uint64) {
	gauge, ok := s.buckets[name]
	if !ok {
		var err error
		gauge, err = s.meter.Int64Gauge(name + "_bucket")
		if err != nil {
			log.Errorf("Creating Int64Gauge %s: %v", name, err)
			return
		}
		s.buckets[name] = gauge
	}

	bounds := s.profileBounds(profile)
	base := attrs(labels)
	ctx := context.Background()
	for i, count := range buckets {
		if count == 0 {
			continue
		}
		kvs := append(append([]attribute.KeyValue{}, base...), bounds[i])
		gauge.Record(ctx, int64(count), metric.WithAttributes(kvs...))
	}
}

// profileBounds formats the per-bucket upper bound attributes once per
// profile.
func (s *Sink) profileBounds(p histogram.Profile) []attribute.KeyValue {
	if bounds, ok := s.bounds[p]; ok {
		return bounds
	}
	n := p.Buckets()
	bounds := make([]attribute.KeyValue, n)
	for i := range n {
		upper := histogram.BucketUpperBound(i, p)
		var v string
		if i == n-1 {
			v = "+Inf"
		} else {
			v = strconv.FormatUint(upper, 10)
		}
		bounds[i] = attribute.String("le", v)
	}
	s.bounds[p] = bounds
	return bounds
}
