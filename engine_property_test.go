// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import (
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/require"
)

// checkInvariants walks every block in e and asserts the structural
// invariants the spec places on a consistent engine: no two adjacent free
// blocks (eager coalescing held), every block's address is granularity
// aligned, and the physical chain's prevPhys links agree with forward
// traversal.
func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()

	for pi, p := range e.pools {
		var prevFree bool
		var prev *blockHeader
		var sum uintptr
		cur := p.first
		for {
			require.Zero(t, uintptr(cur.addr())%granularity,
				"pool %d: block %p not granularity-aligned", pi, cur.addr())
			require.False(t, prevFree && !cur.used(),
				"pool %d: two adjacent free blocks at %p", pi, cur.addr())
			if prev != nil {
				require.Equal(t, prev, cur.prevPhys, "pool %d: prevPhys mismatch at %p", pi, cur.addr())
			}

			sum += cur.size()
			prevFree = !cur.used()
			prev = cur
			if cur.lastInPool() {
				break
			}
			cur = cur.nextPhys()
		}
		require.Equal(t, p.end-p.start, sum, "pool %d: block sizes don't sum to aligned length", pi)
	}
}

func TestEngineInvariantsHoldAcrossRandomWorkload(t *testing.T) {
	e, err := New(Config{FLLEN: 28, SLLEN: 16})
	require.NoError(t, err)
	mem := make([]byte, 1<<16)
	require.NoError(t, e.InsertPool(mem))

	rng, err := mathutil.NewFC32(1, 512, true)
	require.NoError(t, err)
	rng.Seed(7)

	var live []unsafe.Pointer
	for i := 0; i < 2000; i++ {
		if len(live) == 0 || rng.Next()%3 != 0 {
			size := uintptr(rng.Next())
			align := uintptr(Granularity) << uint(rng.Next()%4)
			if p, ok := e.Allocate(size, align); ok {
				live = append(live, p)
			}
		} else {
			idx := rng.Next() % len(live)
			e.Deallocate(live[idx])
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	checkInvariants(t, e)

	for _, p := range live {
		e.Deallocate(p)
	}

	var used, free int
	e.IterBlocks(func(b BlockInfo) bool {
		if b.Used {
			used++
		} else {
			free++
		}
		return true
	})
	require.Zero(t, used, "blocks still marked used after freeing every live allocation")
	require.Equal(t, 1, free, "pool did not coalesce back into a single free block")
	checkInvariants(t, e)
}

func TestAllocationsNeverOverlap(t *testing.T) {
	e, err := New(Config{FLLEN: 28, SLLEN: 16})
	require.NoError(t, err)
	mem := make([]byte, 1<<15)
	require.NoError(t, e.InsertPool(mem))

	rng, err := mathutil.NewFC32(1, 200, true)
	require.NoError(t, err)
	rng.Seed(99)

	type span struct {
		start, end uintptr
	}
	var spans []span
	for i := 0; i < 200; i++ {
		size := uintptr(rng.Next())
		p, ok := e.Allocate(size, Granularity)
		if !ok {
			break
		}
		start := uintptr(p)
		end := start + e.SizeOfAllocation(p)
		for _, s := range spans {
			overlap := start < s.end && s.start < end
			require.False(t, overlap, "new allocation [%d,%d) overlaps existing [%d,%d)", start, end, s.start, s.end)
		}
		spans = append(spans, span{start, end})
	}
	require.NotEmpty(t, spans)
}
