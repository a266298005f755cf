// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package util holds small helpers shared across the agent.
package util // import "github.com/kernwatch/kernwatch/util"

import (
	"math/bits"
	"sync/atomic"
)

// NextPowerOfTwo returns input value if it's a power of two,
// otherwise it returns the next power of two.
func NextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return 1 << bits.Len32(v-1)
}

// AtomicUpdateMaxUint64 places newValue in store if it is larger than the
// current value, using atomic primitives. Used for high-watermark tracking
// from concurrent producers.
func AtomicUpdateMaxUint64(store *atomic.Uint64, newValue uint64) {
	for {
		oldValue := store.Load()
		if newValue <= oldValue {
			return
		}
		if store.CompareAndSwap(oldValue, newValue) {
			return
		}
	}
}
