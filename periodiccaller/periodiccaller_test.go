// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package periodiccaller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	stop := Start(ctx, time.Millisecond, func() {
		if calls.Add(1) == 3 {
			close(done)
		}
	})
	defer stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("periodic callback was not invoked")
	}
}

func TestStartWithManualTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var manual atomic.Int32
	trigger := make(chan bool)
	done := make(chan struct{})
	stop := StartWithManualTrigger(ctx, time.Hour, trigger,
		func(manualTrigger bool) {
			if manualTrigger {
				manual.Add(1)
			}
			done <- struct{}{}
		})
	defer stop()

	trigger <- true
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manual trigger was not handled")
	}
	assert.Equal(t, int32(1), manual.Load())
}

func TestStartWithJitter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	stop := StartWithJitter(ctx, time.Millisecond, 0.2, func() {
		if calls.Add(1) == 3 {
			close(done)
		}
	})
	defer stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jittered periodic callback was not invoked")
	}
}

func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for range 100 {
		d := AddJitter(base, 0.2)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
	// Out-of-range jitter leaves the duration untouched.
	assert.Equal(t, base, AddJitter(base, -1))
	assert.Equal(t, base, AddJitter(base, 1.5))
}
