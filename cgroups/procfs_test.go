// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package cgroups

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPathFromReader(t *testing.T) {
	tests := map[string]struct {
		content string
		path    string
	}{
		"v2 only": {
			content: "0::/system.slice/ssh.service\n",
			path:    "/system.slice/ssh.service",
		},
		"hybrid hierarchy": {
			content: "12:pids:/init.scope\n" +
				"1:name=systemd:/init.scope\n" +
				"0::/user.slice/user-1000.slice\n",
			path: "/user.slice/user-1000.slice",
		},
		"escaped dash": {
			content: `0::/system.slice/foo\x2dbar.service` + "\n",
			path:    "/system.slice/foo-bar.service",
		},
		"no v2 entry": {
			content: "12:pids:/init.scope\n",
			path:    "",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cache, err := NewPIDPathCache()
			require.NoError(t, err)

			path, err := lookupPathFromReader(cache, 42,
				strings.NewReader(tc.content))
			require.NoError(t, err)
			assert.Equal(t, tc.path, path)

			// Results, including negative ones, are cached.
			cached, ok := cache.Get(42)
			require.True(t, ok)
			assert.Equal(t, tc.path, cached)
		})
	}
}
