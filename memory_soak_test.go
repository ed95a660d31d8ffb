// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
)

func caller(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(2)
	fmt.Fprintf(os.Stderr, "# caller: %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	_, fn, fl, _ = runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "# \tcallee: %s:%d: ", path.Base(fn), fl)
	fmt.Fprintln(os.Stderr)
}

func dbg(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "# dbg %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
}

func use(...interface{}) {}

func init() {
	use(caller, dbg)
}

// soakQuota bounds how much payload one soak run asks the engine for before
// it starts freeing, the same role the teacher's quota const plays against
// its page-backed Allocator.
const soakQuota = 4 << 20

// soakPayload walks an allocation's payload as a byte slice, mirroring how
// the teacher's test1/test2 treat a Malloc result as a plain []byte.
func soakPayload(p unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(p), int(n))
}

// soakAllocateVerifyFree runs the teacher's own allocate-then-verify-in-seek-
// order-then-shuffle-then-free cycle against an Engine instead of an
// Allocator: every byte of every live allocation is stamped with PRNG output
// at allocation time and checked against the same PRNG sequence, replayed
// from the position recorded just before allocation started.
func soakAllocateVerifyFree(t *testing.T, max int, shuffle bool) {
	e, err := New(Config{FLLEN: 32, SLLEN: 16})
	if err != nil {
		t.Fatal(err)
	}
	mem := make([]byte, soakQuota*2)
	if err := e.InsertPool(mem); err != nil {
		t.Fatal(err)
	}

	rem := soakQuota
	var sizes []uintptr
	var ptrs []unsafe.Pointer
	rng, err := mathutil.NewFC32(1, max, true)
	if err != nil {
		t.Fatal(err)
	}

	rng.Seed(42)
	pos := rng.Pos()
	for rem > 0 {
		size := uintptr(rng.Next())
		p, ok := e.Allocate(size, Granularity)
		if !ok {
			break
		}
		rem -= int(size)
		sizes = append(sizes, size)
		ptrs = append(ptrs, p)

		b := soakPayload(p, size)
		for i := range b {
			b[i] = byte(rng.Next())
		}
	}
	t.Logf("allocs %d, requested %d bytes", len(ptrs), soakQuota-rem)

	rng.Seek(pos)
	for i, p := range ptrs {
		if g, e := sizes[i], uintptr(rng.Next()); g != e {
			t.Fatalf("allocation %d: size %d, want %d", i, g, e)
		}
		b := soakPayload(p, sizes[i])
		for j, g := range b {
			if want := byte(rng.Next()); g != want {
				t.Fatalf("allocation %d byte %d: %#02x, want %#02x", i, j, g, want)
			}
		}
	}

	if shuffle {
		for i := range ptrs {
			j := rng.Next() % len(ptrs)
			ptrs[i], ptrs[j] = ptrs[j], ptrs[i]
		}
	}

	for _, p := range ptrs {
		e.Deallocate(p)
	}

	var used int
	e.IterBlocks(func(b BlockInfo) bool {
		if b.Used {
			used++
		}
		return true
	})
	if used != 0 {
		t.Fatalf("%d blocks still marked used after freeing every allocation", used)
	}
}

func TestSoakSmallFreeInOrder(t *testing.T)  { soakAllocateVerifyFree(t, 256, false) }
func TestSoakSmallFreeShuffled(t *testing.T) { soakAllocateVerifyFree(t, 256, true) }
func TestSoakLargeFreeShuffled(t *testing.T) { soakAllocateVerifyFree(t, 16<<10, true) }

// TestSoakMixedAllocateFree interleaves allocation and deallocation at random, the
// way the teacher's test3 does against its Allocator, checking only that the
// engine never panics and every live allocation's contents survive intact.
func TestSoakMixedAllocateFree(t *testing.T) {
	e, err := New(Config{FLLEN: 32, SLLEN: 16})
	if err != nil {
		t.Fatal(err)
	}
	mem := make([]byte, soakQuota)
	if err := e.InsertPool(mem); err != nil {
		t.Fatal(err)
	}

	rng, err := mathutil.NewFC32(1, 4096, true)
	if err != nil {
		t.Fatal(err)
	}

	live := map[unsafe.Pointer][]byte{}
	rem := soakQuota
	for rem > 0 {
		if len(live) == 0 || rng.Next()%3 != 0 {
			size := uintptr(rng.Next())
			p, ok := e.Allocate(size, Granularity)
			if !ok {
				continue
			}
			rem -= int(size)
			want := make([]byte, size)
			b := soakPayload(p, size)
			for i := range b {
				b[i] = byte(rng.Next())
				want[i] = b[i]
			}
			live[p] = want
		} else {
			for p, want := range live {
				b := soakPayload(p, uintptr(len(want)))
				for i, g := range b {
					if g != want[i] {
						t.Fatalf("%p byte %d: %#02x, want %#02x", p, i, g, want[i])
					}
				}
				e.Deallocate(p)
				delete(live, p)
				break
			}
		}
	}

	for p := range live {
		e.Deallocate(p)
	}
}
