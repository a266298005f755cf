// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package cgroups // import "github.com/kernwatch/kernwatch/cgroups"

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	lru "github.com/elastic/go-freelru"
)

// pidPathCacheSize bounds the pid to cgroup path cache. Its perfect size
// would be the number of processes on the system.
const pidPathCacheSize = 1024

// NewPIDPathCache builds the shared pid-keyed cgroup path cache used by
// software producers that resolve task identity outside the kernel.
func NewPIDPathCache() (*lru.SyncedLRU[int32, string], error) {
	return lru.NewSynced[int32, string](pidPathCacheSize,
		func(pid int32) uint32 { return uint32(pid) })
}

// LookupPath returns the cgroup v2 path for pid, consulting the cache
// first. Negative results are cached as empty strings to avoid busy
// lookups for processes outside any named cgroup.
func LookupPath(pathlru lru.Cache[int32, string], pid int32) (string, error) {
	path, ok := pathlru.Get(pid)
	if ok {
		return path, nil
	}

	// Slow path
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	return lookupPathFromReader(pathlru, pid, f)
}

func lookupPathFromReader(pathlru lru.Cache[int32, string], pid int32,
	f io.Reader) (string, error) {
	var path string
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 512)
	// The kernel caps paths at 4096 characters, lines in
	// /proc/<PID>/cgroup won't exceed 8192.
	scanner.Buffer(buf, 8192)
	for scanner.Scan() {
		path = parseCgroupLine(scanner.Text())
		if path == "" {
			continue
		}
		break
	}

	pathlru.Add(pid, path)

	return path, nil
}

// parseCgroupLine extracts the path from a cgroup v2 line of the form
// "0::/system.slice/foo.service".
func parseCgroupLine(line string) string {
	rest, ok := strings.CutPrefix(line, "0::")
	if !ok {
		return ""
	}
	return unescapeName(rest)
}
