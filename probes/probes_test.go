// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package probes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogValid(t *testing.T) {
	names := make(map[string]bool, len(Catalog))
	for _, p := range Catalog {
		require.NoError(t, p.Validate())
		assert.False(t, names[p.Name], "duplicate probe %s", p.Name)
		names[p.Name] = true
	}
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("scheduler_runqueue")
	require.True(t, ok)
	assert.Equal(t, "cgroup_scheduler", p.CgroupCounters.Family)

	_, ok = Lookup("no_such_probe")
	assert.False(t, ok)
}

func TestInstantiate(t *testing.T) {
	p, ok := Lookup("scheduler_runqueue")
	require.True(t, ok)

	inst, err := Instantiate(p, 8, 64)
	require.NoError(t, err)
	require.NotNil(t, inst.Counters)
	require.NotNil(t, inst.CgroupCounters)
	require.Len(t, inst.Histograms, 3)

	assert.Equal(t, 8, inst.Counters.Units())
	assert.Equal(t, 64, inst.CgroupCounters.Units())
	assert.Equal(t, "scheduler_runqueue_latency", inst.Histograms[0].Name())

	// Probes without counter families simply skip those stores.
	latency, ok := Lookup("blockio_latency")
	require.True(t, ok)
	inst, err = Instantiate(latency, 8, 64)
	require.NoError(t, err)
	assert.Nil(t, inst.Counters)
	assert.Nil(t, inst.CgroupCounters)
	require.Len(t, inst.Histograms, 2)
}

func TestValidateRejectsBadProbes(t *testing.T) {
	tests := map[string]struct {
		probe Probe
	}{
		"no name": {probe: Probe{}},
		"bad histogram": {probe: Probe{
			Name:       "x",
			Histograms: []HistogramSpec{{Name: ""}},
		}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, tc.probe.Validate())
		})
	}
}
