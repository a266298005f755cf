// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "github.com/kernwatch/kernwatch/metrics"

// MetricID is the type for metric IDs.
type MetricID uint16

// MetricValue is the type for metric values.
type MetricValue int64

// Metric is the type for a metric id/value pair.
type Metric struct {
	ID    MetricID
	Value MetricValue
}

// MetricType classifies how a metric value is reported.
type MetricType uint8

const (
	// MetricTypeCounter reports deltas that accumulate monotonically.
	MetricTypeCounter MetricType = iota
	// MetricTypeGauge reports point-in-time absolute values.
	MetricTypeGauge
)

// MetricDefinition describes one self-metric of the agent.
type MetricDefinition struct {
	ID          MetricID
	Type        MetricType
	Name        string
	Unit        string
	Description string
}
