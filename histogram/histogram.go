// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package histogram implements the log-linear bucket indexing shared by the
// kernel-side instrumentation and the userspace sampler. The index function is
// the bucket-position contract between the two sides: both must compute
// bit-identical indices for the same magnitude, so it is kept pure, total and
// free of floating point.
//
// Index space layout: raw values 0..99 map to their own bucket (index equals
// value). Every decade above that contributes bucketsPerDecade buckets, each
// one decade/90 wide, which keeps the relative error near 1% regardless of
// magnitude. A resolution profile picks how many decades are represented
// before the top bucket saturates.
package histogram // import "github.com/kernwatch/kernwatch/histogram"

import "fmt"

const (
	// linearBuckets is the number of buckets in the linear band. Values
	// below this index directly.
	linearBuckets = 100

	// bucketsPerDecade is the number of buckets each decade band
	// contributes above the linear band.
	bucketsPerDecade = 90
)

// Profile selects how many decades a histogram covers before saturating.
type Profile uint8

const (
	// ProfileCompact covers values up to 1e9 (e.g. latencies below one
	// second in nanoseconds).
	ProfileCompact Profile = iota
	// ProfileStandard covers values up to 1e11.
	ProfileStandard
	// ProfileExtended covers values up to 1e13.
	ProfileExtended
	// ProfileWide covers values up to 1e15 (about 11.5 days in
	// nanoseconds, or a petabyte in bytes).
	ProfileWide
)

// decades returns the number of decade bands for the profile.
func (p Profile) decades() uint32 {
	switch p {
	case ProfileCompact:
		return 7
	case ProfileStandard:
		return 9
	case ProfileExtended:
		return 11
	case ProfileWide:
		return 13
	default:
		return 9
	}
}

// Buckets returns the total number of buckets for the profile.
func (p Profile) Buckets() uint32 {
	return linearBuckets + bucketsPerDecade*p.decades()
}

func (p Profile) String() string {
	switch p {
	case ProfileCompact:
		return "compact"
	case ProfileStandard:
		return "standard"
	case ProfileExtended:
		return "extended"
	case ProfileWide:
		return "wide"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// Validate rejects profiles whose bucket count does not match the expected
// tables. Guards against a skew between the producing and consuming sides
// when new profiles are introduced.
func (p Profile) Validate() error {
	switch p {
	case ProfileCompact, ProfileStandard, ProfileExtended, ProfileWide:
		return nil
	}
	return fmt.Errorf("unknown resolution profile %d", uint8(p))
}

// pow10 holds the powers of ten that fit in a uint64.
var pow10 = [20]uint64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000,
	1000000000, 10000000000, 100000000000, 1000000000000, 10000000000000,
	100000000000000, 1000000000000000, 10000000000000000,
	100000000000000000, 1000000000000000000, 10000000000000000000,
}

// ValueToIndex maps a magnitude to its bucket index under the given profile.
// Deterministic and total: every input maps to a valid index, out-of-range
// magnitudes saturate at the top bucket. A value on an exact decade boundary
// (100, 1000, ...) maps to the first bucket of the new band.
func ValueToIndex(value uint64, p Profile) uint32 {
	if value < linearBuckets {
		return uint32(value)
	}

	// Find the decade: largest power such that pow10[power] <= value.
	// Values start at 100, so power >= 2.
	power := 2
	for power < len(pow10)-1 && value >= pow10[power+1] {
		power++
	}

	// Band 1 is [100, 1000); each band is 90 buckets of 10^(power-1) width.
	band := uint32(power - 1)
	idx := linearBuckets + (band-1)*bucketsPerDecade +
		uint32((value-pow10[power])/pow10[power-1])

	if top := p.Buckets() - 1; idx > top {
		return top
	}
	return idx
}

// BucketLowerBound returns the smallest magnitude mapping to idx. Used by
// export layers to attach value ranges to raw bucket counts.
func BucketLowerBound(idx uint32, p Profile) uint64 {
	if top := p.Buckets() - 1; idx > top {
		idx = top
	}
	if idx < linearBuckets {
		return uint64(idx)
	}
	band := (idx-linearBuckets)/bucketsPerDecade + 1
	offset := uint64((idx - linearBuckets) % bucketsPerDecade)
	power := int(band) + 1
	return pow10[power] + offset*pow10[power-1]
}

// BucketUpperBound returns the largest magnitude mapping to idx. The top
// bucket is unbounded and reports the maximum uint64.
func BucketUpperBound(idx uint32, p Profile) uint64 {
	top := p.Buckets() - 1
	if idx >= top {
		return ^uint64(0)
	}
	return BucketLowerBound(idx+1, p) - 1
}
