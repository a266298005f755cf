// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package probes declares the metric-family layout of every probe the
// agent knows. Kernel-resident handlers and userspace producers fill the
// stores; the declared schemas replace the per-probe hard-coded offsets the
// measurement substrate would otherwise need. Which kernel facility a probe
// attaches to is the loader's concern, not declared here.
package probes // import "github.com/kernwatch/kernwatch/probes"

import (
	"fmt"

	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/histogram"
)

// HistogramSpec declares one distribution metric of a probe.
type HistogramSpec struct {
	Name    string
	Profile histogram.Profile
}

// Probe declares the families of one probe: system-wide counters keyed by
// CPU, distributions, and per-cgroup counters keyed by cgroup id.
type Probe struct {
	Name string

	// Counters is the per-CPU counter family, empty when the probe only
	// produces distributions.
	Counters counterstore.Schema

	// Histograms lists the probe's distribution metrics.
	Histograms []HistogramSpec

	// CgroupCounters is the per-cgroup counter family.
	CgroupCounters counterstore.Schema
}

// Validate checks all declared schemas and profiles.
func (p Probe) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("probe with empty name")
	}
	if len(p.Counters.Metrics) > 0 {
		if err := p.Counters.Validate(); err != nil {
			return fmt.Errorf("probe %s: %w", p.Name, err)
		}
	}
	if len(p.CgroupCounters.Metrics) > 0 {
		if err := p.CgroupCounters.Validate(); err != nil {
			return fmt.Errorf("probe %s: %w", p.Name, err)
		}
	}
	for _, h := range p.Histograms {
		if h.Name == "" {
			return fmt.Errorf("probe %s: histogram with empty name",
				p.Name)
		}
		if err := h.Profile.Validate(); err != nil {
			return fmt.Errorf("probe %s: %w", p.Name, err)
		}
	}
	return nil
}

// Instance bundles the allocated stores of one probe.
type Instance struct {
	Probe          Probe
	Counters       *counterstore.Store
	CgroupCounters *counterstore.Store
	Histograms     []*counterstore.HistogramStore
}

// Instantiate allocates the stores a probe declares. All storage is
// allocated up front for the maximum supported cardinality and lives for
// the process lifetime.
func Instantiate(p Probe, maxCPUs, maxCgroups int) (*Instance, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	inst := &Instance{Probe: p}
	var err error
	if len(p.Counters.Metrics) > 0 {
		inst.Counters, err = counterstore.NewStore(p.Counters, maxCPUs)
		if err != nil {
			return nil, err
		}
	}
	if len(p.CgroupCounters.Metrics) > 0 {
		inst.CgroupCounters, err = counterstore.NewStore(p.CgroupCounters,
			maxCgroups)
		if err != nil {
			return nil, err
		}
	}
	for _, h := range p.Histograms {
		hist, err := counterstore.NewHistogramStore(h.Name, h.Profile,
			maxCPUs)
		if err != nil {
			return nil, err
		}
		inst.Histograms = append(inst.Histograms, hist)
	}
	return inst, nil
}
