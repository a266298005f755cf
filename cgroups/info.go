// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package cgroups // import "github.com/kernwatch/kernwatch/cgroups"

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// NameLen is the fixed field width for each hierarchy name on the
	// wire, including the terminating NUL. Matches the kernel-side
	// record layout.
	NameLen = 64

	// RecordSize is the fixed wire size of one relay record.
	RecordSize = 216

	// recordKindCgroupInfo tags a cgroup hierarchy metadata record.
	recordKindCgroupInfo = 1
)

// Record is the fixed relay wire layout of one cgroup metadata record:
//
//	offset  0: kind tag (u8), 3 reserved bytes
//	offset  4: id (i32 LE)
//	offset  8: level (i32 LE), 4 reserved bytes
//	offset 16: serial (u64 LE)
//	offset 24: name, parent name, grandparent name (64 bytes each,
//	           NUL-bounded)
//
// The layout is write-once-per-event and carries no schema version; it must
// stay in lockstep with the kernel-side producers.
type Record [RecordSize]byte

// Info is the decoded identity and hierarchy metadata of one cgroup
// generation.
type Info struct {
	// ID is the kernel-assigned css id. Small, bounded, and reused over
	// time.
	ID int32

	// Serial is the globally unique, monotonically increasing generation
	// number. For a fixed ID, a serial change means the previous occupant
	// was destroyed.
	Serial uint64

	// Level is the hierarchy depth; the root cgroup is level 0.
	Level int32

	Name        string
	Parent      string
	Grandparent string
}

// putName copies s NUL-terminated into dst, truncating at NameLen-1 bytes.
func putName(dst []byte, s string) {
	n := copy(dst[:NameLen-1], s)
	dst[n] = 0
}

// getName returns the NUL-bounded string in src.
func getName(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

// Encode serializes the info into rec. Does not allocate; names longer than
// the field width are truncated.
func (ci *Info) Encode(rec *Record) {
	for i := range rec {
		rec[i] = 0
	}
	rec[0] = recordKindCgroupInfo
	binary.LittleEndian.PutUint32(rec[4:], uint32(ci.ID))
	binary.LittleEndian.PutUint32(rec[8:], uint32(ci.Level))
	binary.LittleEndian.PutUint64(rec[16:], ci.Serial)
	putName(rec[24:24+NameLen], ci.Name)
	putName(rec[88:88+NameLen], ci.Parent)
	putName(rec[152:152+NameLen], ci.Grandparent)
}

// DecodeRecord deserializes a relay record. Records with an unknown kind
// tag are rejected; the producer and consumer sides must agree on the
// layout byte for byte.
func DecodeRecord(rec *Record) (Info, error) {
	if rec[0] != recordKindCgroupInfo {
		return Info{}, fmt.Errorf("unknown relay record kind %d", rec[0])
	}
	return Info{
		ID:          int32(binary.LittleEndian.Uint32(rec[4:])),
		Level:       int32(binary.LittleEndian.Uint32(rec[8:])),
		Serial:      binary.LittleEndian.Uint64(rec[16:]),
		Name:        getName(rec[24 : 24+NameLen]),
		Parent:      getName(rec[88 : 88+NameLen]),
		Grandparent: getName(rec[152 : 152+NameLen]),
	}, nil
}
