// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package bpfbridge

import (
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernwatch/kernwatch/counterstore"
)

var testSchema = counterstore.Schema{
	Family:  "cpu_usage",
	Metrics: []string{"user", "system"},
}

func newTestArrayMap(t *testing.T, maxEntries uint32) *ebpf.Map {
	t.Helper()
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: maxEntries,
	})
	if err != nil {
		t.Skipf("skipping, eBPF map creation not permitted: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewCounterReaderRejectsSmallMap(t *testing.T) {
	// Two units of an 8-slot bank need 16 entries.
	m := newTestArrayMap(t, 8)
	_, err := NewCounterReader(m, testSchema, 2)
	require.Error(t, err)
}

func TestCounterReaderRead(t *testing.T) {
	stride := uint32(testSchema.BankStride())
	units := 2
	m := newTestArrayMap(t, uint32(units)*stride)

	set := func(unit, metric uint32, value uint64) {
		key := unit*stride + metric
		require.NoError(t, m.Update(&key, &value, ebpf.UpdateAny))
	}
	set(0, 0, 100)
	set(0, 1, 7)
	set(1, 0, 42)

	reader, err := NewCounterReader(m, testSchema, units)
	require.NoError(t, err)

	snap, err := reader.Read(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), snap.Value(0, 0))
	assert.Equal(t, uint64(7), snap.Value(0, 1))
	assert.Equal(t, uint64(42), snap.Value(1, 0))
	assert.Equal(t, uint64(0), snap.Value(1, 1))
	assert.Equal(t, uint64(142), snap.Merge(0))

	// The snapshot is reused and refreshed on the next read.
	set(1, 1, 5)
	snap2, err := reader.Read(snap)
	require.NoError(t, err)
	assert.Same(t, snap, snap2)
	assert.Equal(t, uint64(5), snap2.Value(1, 1))
}
