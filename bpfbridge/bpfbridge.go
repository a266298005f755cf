// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package bpfbridge moves measurement data from eBPF maps into the
// user-space substrate. A CounterReader fills counter snapshots from a
// kernel counter array, and a RecordPump forwards cgroup records from a
// BPF ring buffer into the relay.
package bpfbridge // import "github.com/kernwatch/kernwatch/bpfbridge"

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	log "github.com/sirupsen/logrus"

	"github.com/kernwatch/kernwatch/cgroups"
	"github.com/kernwatch/kernwatch/counterstore"
	"github.com/kernwatch/kernwatch/relay"
)

// CounterReader reads a flat array map of u64 counters laid out in
// cacheline-padded per-unit banks, the same layout the user-space store
// uses, into a reusable snapshot.
type CounterReader struct {
	countersMap *ebpf.Map
	schema      counterstore.Schema
	units       int

	// Reused across Read calls to avoid per-sample allocations.
	keys   []uint32
	values []uint64
}

// NewCounterReader validates that the map is large enough for units
// banks of the schema's stride.
func NewCounterReader(countersMap *ebpf.Map, schema counterstore.Schema,
	units int) (*CounterReader, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if units <= 0 {
		return nil, fmt.Errorf("invalid unit count %d", units)
	}
	needed := uint32(units * schema.BankStride())
	if countersMap.MaxEntries() < needed {
		return nil, fmt.Errorf("map %s holds %d entries, need %d",
			countersMap, countersMap.MaxEntries(), needed)
	}

	total := units * schema.BankStride()
	return &CounterReader{
		countersMap: countersMap,
		schema:      schema,
		units:       units,
		keys:        make([]uint32, total),
		values:      make([]uint64, total),
	}, nil
}

// Read fills dst with the current map contents. dst is reused when it
// matches the reader's shape, otherwise a fresh snapshot is allocated.
func (r *CounterReader) Read(dst *counterstore.Snapshot) (*counterstore.Snapshot, error) {
	var cursor ebpf.MapBatchCursor
	total := 0
	for total < len(r.keys) {
		n, err := r.countersMap.BatchLookup(&cursor,
			r.keys[total:], r.values[total:], nil)
		total += n
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read counters map: %v", err)
		}
	}

	if dst == nil || dst.Units() != r.units {
		var err error
		dst, err = counterstore.NewSnapshot(r.schema, r.units)
		if err != nil {
			return nil, err
		}
	}
	stride := r.schema.BankStride()
	width := r.schema.Width()
	for i := 0; i < total; i++ {
		unit := int(r.keys[i]) / stride
		metric := int(r.keys[i]) % stride
		if unit >= r.units || metric >= width {
			continue
		}
		dst.SetValue(unit, metric, r.values[i])
	}
	return dst, nil
}

// PumpStats reports the drop and error counts a RecordPump accumulated
// since the previous call.
type PumpStats struct {
	ShortRecords uint64
	ReadErrors   uint64
}

// RecordPump forwards fixed-size cgroup records from a BPF ring buffer
// into the relay. Kernel-side publishes are already best effort, so a
// full relay only increments the relay's own drop counter.
type RecordPump struct {
	reader *ringbuf.Reader
	ring   *relay.Ring[cgroups.Record]

	shortRecords atomic.Uint64
	readErrors   atomic.Uint64
}

// StartRecordPump spawns a goroutine that reads records from recordsMap
// until ctx is canceled or the reader is closed.
func StartRecordPump(ctx context.Context, recordsMap *ebpf.Map,
	ring *relay.Ring[cgroups.Record]) (*RecordPump, error) {
	eventReader, err := ringbuf.NewReader(recordsMap)
	if err != nil {
		return nil, fmt.Errorf("failed to set up ring buffer reader via %s: %v",
			recordsMap, err)
	}

	p := &RecordPump{reader: eventReader, ring: ring}
	go func() {
		<-ctx.Done()
		_ = eventReader.Close()
	}()
	go func() {
		var data ringbuf.Record
		var rec cgroups.Record
		for {
			if err := eventReader.ReadInto(&data); err != nil {
				if errors.Is(err, ringbuf.ErrClosed) {
					return
				}
				p.readErrors.Add(1)
				continue
			}
			if len(data.RawSample) < cgroups.RecordSize {
				p.shortRecords.Add(1)
				continue
			}
			copy(rec[:], data.RawSample[:cgroups.RecordSize])
			p.ring.TryPublish(rec)
		}
	}()
	log.Debugf("Started record pump for %s", recordsMap)
	return p, nil
}

// Stats returns and resets the pump's error counters.
func (p *RecordPump) Stats() PumpStats {
	return PumpStats{
		ShortRecords: p.shortRecords.Swap(0),
		ReadErrors:   p.readErrors.Swap(0),
	}
}
