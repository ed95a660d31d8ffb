// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import (
	"math/bits"

	"github.com/cznic/mathutil"
)

// granularityLog2 is log2(granularity); computed once the way the teacher
// precomputes headerSize/maxSlotSize/pageMask in a var block rather than as
// literal constants.
var granularityLog2 = bits.TrailingZeros(uint(granularity))

// floorLog2 returns floor(log2(n)) for n > 0, built on the same
// mathutil.BitLen the teacher uses for its own size-class computation
// (memory.go: "log := uint(mathutil.BitLen(roundup(size, mallocAllign) -
// 1))"): BitLen(n) is n's bit width, one more than its floor-log2.
func floorLog2(n uintptr) int {
	return mathutil.BitLen(int(n)) - 1
}

// sizeClassConfig holds the validated, resolved dimensions of the two-level
// index: FLLEN first-level classes, SLLEN second-level subclasses (a power
// of two), and sli = log2(SLLEN). Engine and freeIndex each hold one; kept as
// its own type because Component B (this file) and Components C/D (index.go)
// both need it but are otherwise independent.
type sizeClassConfig struct {
	flLen int
	slLen int
	sli   int
}

func newSizeClassConfig(flLen, slLen int) (sizeClassConfig, error) {
	// maxFLLen is the largest flLen for which granularity<<flLen still fits
	// in a uintptr: granularity's single set bit sits at granularityLog2,
	// and shifting it past bit bits.UintSize-1 pushes it out of the
	// word entirely, which Go defines as yielding 0 rather than wrapping.
	// maxBlockSize would then silently underflow to a bogus huge value
	// instead of a sane cap, so flLen is rejected before it gets that far.
	maxFLLen := bits.UintSize - granularityLog2 - 1
	if flLen <= 0 || flLen > maxFLLen {
		return sizeClassConfig{}, errInvalidConfigf("FLLEN must be in [1, %d], got %d", maxFLLen, flLen)
	}
	if slLen < 4 || slLen > bits.UintSize || slLen&(slLen-1) != 0 {
		return sizeClassConfig{}, errInvalidConfigf("SLLEN must be a power of two in [4, %d], got %d", bits.UintSize, slLen)
	}
	return sizeClassConfig{
		flLen: flLen,
		slLen: slLen,
		sli:   bits.TrailingZeros(uint(slLen)),
	}, nil
}

// maxBlockSize is the largest size a block in this configuration can ever
// hold: one granularity step below the first size that would map to class
// FLLEN.
func (c sizeClassConfig) maxBlockSize() uintptr {
	return (granularity << uint(c.flLen)) - granularity
}

// mapFloor selects the free-list class whose range contains size, rounding
// size *down* to the class boundary. Used when publishing a free block:
// every block actually in class (fl, sl) is at least as large as the
// class's nominal boundary, so rounding down here (as opposed to mapCeil's
// rounding up) is what keeps invariant 4 (size -> class correctness) true.
func (c sizeClassConfig) mapFloor(size uintptr) (fl, sl int, ok bool) {
	fl = floorLog2(size) - granularityLog2

	if granularityLog2 < c.sli && fl < c.sli-granularityLog2 {
		sl = int(size << uint(c.sli-granularityLog2-fl))
	} else {
		sl = int(size >> uint(fl+granularityLog2-c.sli))
	}

	if fl < 0 || fl >= c.flLen {
		return 0, 0, false
	}
	return fl, sl & (c.slLen - 1), true
}

// mapCeil selects the smallest free-list class guaranteed to satisfy a
// request of size bytes, rounding *up*. A block drawn from the returned
// class is always >= size.
func (c sizeClassConfig) mapCeil(size uintptr) (fl, sl int, ok bool) {
	fl = floorLog2(size) - granularityLog2

	if granularityLog2 < c.sli && fl < c.sli-granularityLog2 {
		sl = int(size << uint(c.sli-granularityLog2-fl))
	} else {
		shift := uint(fl + granularityLog2 - c.sli)
		sl = int(size >> shift)
		if uintptr(sl)<<shift != size {
			sl++
		}
		fl += sl >> uint(c.sli+1)
	}

	if fl < 0 || fl >= c.flLen {
		return 0, 0, false
	}
	return fl, sl & (c.slLen - 1), true
}
