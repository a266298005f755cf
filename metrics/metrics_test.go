// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionsCoverIDSpace(t *testing.T) {
	defs := GetDefinitions()
	require.Len(t, defs, int(IDMax)-1)

	seen := make(map[MetricID]bool, len(defs))
	names := make(map[string]bool, len(defs))
	for i, md := range defs {
		assert.Equal(t, MetricID(i+1), md.ID, "definitions out of ID order")
		assert.False(t, seen[md.ID])
		seen[md.ID] = true
		assert.NotEmpty(t, md.Name)
		assert.False(t, names[md.Name], "duplicate name %s", md.Name)
		names[md.Name] = true
	}
}

func TestAddSliceUnknownID(t *testing.T) {
	// Unknown and invalid IDs are skipped without panicking.
	AddSlice([]Metric{
		{ID: IDInvalid, Value: 1},
		{ID: IDMax, Value: 1},
		{ID: IDRelayDrops, Value: 3},
		{ID: IDRelayDrops, Value: 0}, // zero counter delta, skipped
	})
	Add(IDSamplerPollDuration, 250)
}
