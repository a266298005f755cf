// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package cgroups // import "github.com/kernwatch/kernwatch/cgroups"

import "strings"

// rootCgroupID is the css id the kernel assigns to the root cgroup.
const rootCgroupID = 1

// NameTable is the consumer-side mirror of cgroup hierarchy metadata. It is
// id-keyed and append/update-only: the latest serial for an id wins,
// strictly stale records are discarded, and duplicate announcements are
// idempotent. Owned by the single sampler goroutine; not safe for
// concurrent use.
type NameTable struct {
	entries []tableEntry
}

type tableEntry struct {
	serial uint64
	path   string
	valid  bool
}

// NewNameTable creates a table for ids below maxCgroups. The root cgroup is
// pre-seeded since no producer announces it.
func NewNameTable(maxCgroups int) *NameTable {
	t := &NameTable{entries: make([]tableEntry, maxCgroups)}
	if maxCgroups > rootCgroupID {
		t.entries[rootCgroupID] = tableEntry{path: "/", valid: true}
	}
	return t
}

// Apply merges one decoded relay record into the table and reports whether
// it was applied. Records for out-of-range ids are dropped; records with a
// serial below the stored one lost a race against a newer generation and
// are discarded.
func (t *NameTable) Apply(info Info) bool {
	if uint(info.ID) >= uint(len(t.entries)) {
		return false
	}
	e := &t.entries[info.ID]
	if e.valid && info.Serial < e.serial {
		return false
	}
	e.serial = info.Serial
	e.path = composePath(info)
	e.valid = true
	return true
}

// Lookup returns the composed hierarchy path for id. The second return is
// false for ids that were never announced; callers label those samples as
// unattributed.
func (t *NameTable) Lookup(id int32) (string, bool) {
	if uint(id) >= uint(len(t.entries)) {
		return "", false
	}
	e := t.entries[id]
	if !e.valid || e.path == "" {
		return "", false
	}
	return e.path, true
}

// Serial returns the stored generation serial for id, zero when unknown.
func (t *NameTable) Serial(id int32) uint64 {
	if uint(id) >= uint(len(t.entries)) {
		return 0
	}
	return t.entries[id].serial
}

// unescapeName undoes the systemd escaping of dashes in kernfs node names.
func unescapeName(s string) string {
	return strings.ReplaceAll(s, `\x2d`, "-")
}

// composePath rebuilds the hierarchy path from the up-to-three name levels
// carried in the record. Deeper hierarchies are abbreviated with a leading
// ellipsis since only three levels cross the wire.
func composePath(info Info) string {
	name := unescapeName(info.Name)
	parent := unescapeName(info.Parent)
	grandparent := unescapeName(info.Grandparent)

	switch {
	case grandparent != "":
		if info.Level > 3 {
			return ".../" + grandparent + "/" + parent + "/" + name
		}
		return "/" + grandparent + "/" + parent + "/" + name
	case parent != "":
		return "/" + parent + "/" + name
	case name != "":
		if name == "/" {
			return "/"
		}
		return "/" + name
	default:
		return ""
	}
}
