// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package counterstore // import "github.com/kernwatch/kernwatch/counterstore"

import "fmt"

const (
	cachelineSize        = 64
	countersPerCacheline = cachelineSize / 8
)

// Schema declares the ordered metric layout of one counter family. Every
// producer and the sampler derive slot offsets from the same schema instead
// of hard-coded numbers, so the two sides cannot drift apart.
type Schema struct {
	// Family is the metric family prefix, e.g. "scheduler_runqueue".
	Family string

	// Metrics is the ordered list of metric names within the family. The
	// position of a name is its metric offset.
	Metrics []string
}

// Width returns the number of metric slots in the family.
func (s Schema) Width() int {
	return len(s.Metrics)
}

// bankWidth returns the per-unit stride in slots: the schema width rounded
// up to a whole number of cachelines so adjacent units never share a line.
func (s Schema) bankWidth() int {
	lines := (s.Width()*8 + cachelineSize - 1) / cachelineSize
	return lines * countersPerCacheline
}

// BankStride is the per-unit stride in slots. Kernel-side counter maps use
// the same padded layout, so readers can compute flat map indices from it.
func (s Schema) BankStride() int {
	return s.bankWidth()
}

// Offset returns the metric offset of name, or -1 if the schema does not
// declare it.
func (s Schema) Offset(name string) int {
	for i, m := range s.Metrics {
		if m == name {
			return i
		}
	}
	return -1
}

// MetricName returns the exported name for the metric at offset.
func (s Schema) MetricName(offset int) string {
	if offset < 0 || offset >= len(s.Metrics) {
		return fmt.Sprintf("%s_unknown_%d", s.Family, offset)
	}
	if s.Family == "" {
		return s.Metrics[offset]
	}
	return s.Family + "_" + s.Metrics[offset]
}

// Validate rejects schemas the store cannot lay out.
func (s Schema) Validate() error {
	if len(s.Metrics) == 0 {
		return fmt.Errorf("schema %q declares no metrics", s.Family)
	}
	seen := make(map[string]bool, len(s.Metrics))
	for _, m := range s.Metrics {
		if m == "" {
			return fmt.Errorf("schema %q declares an empty metric name",
				s.Family)
		}
		if seen[m] {
			return fmt.Errorf("schema %q declares %q twice", s.Family, m)
		}
		seen[m] = true
	}
	return nil
}
