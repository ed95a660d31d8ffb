// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import "unsafe"

// Granularity is G from the spec: the minimum alignment and size quantum
// every pool, block, and requested alignment is measured against.
const Granularity = granularity

// Config resolves the two-level index's dimensions for an Engine. The
// distilled spec treats FLLEN/SLLEN (and the word width) as compile-time
// generic parameters; Go has no way to size an array from a type parameter,
// so they are validated once at New and then fixed for the Engine's
// lifetime instead (see DESIGN.md).
type Config struct {
	// FLLEN is the number of first-level classes. It bounds the largest
	// block the Engine can ever hand out or accept: (Granularity <<
	// FLLEN) - Granularity. New rejects any FLLEN large enough that this
	// shift would push Granularity's single set bit past the width of a
	// uintptr, since Go defines that as yielding 0 rather than wrapping
	// (58 on a typical 64-bit build, narrower on 32-bit).
	FLLEN int
	// SLLEN is the number of second-level subclasses per first-level
	// class, a power of two in [4, 64].
	SLLEN int
	// Diagnostics configures optional structured logging of pool
	// insertion and rejected allocations. The zero value discards it.
	Diagnostics Diagnostics
}

// pool tracks one caller-supplied region after alignment, so IterBlocks and
// accounting can walk each pool's physical chain independently even though
// all pools share one free-list matrix.
type pool struct {
	backing []byte // keeps the GC from reclaiming memory the header graph points into
	first   *blockHeader
	start   uintptr
	end     uintptr
}

// Engine is the TLSF bookkeeping core: the public contract of this package.
// Its zero value is not ready for use; construct one with New. An Engine
// performs no synchronization of its own - callers sharing one across
// goroutines must provide external mutual exclusion, the same contract the
// teacher's own unsynchronized Allocator documents for itself.
type Engine struct {
	cfg      Config
	classCfg sizeClassConfig
	idx      *freeIndex
	pools    []*pool
}

// New creates an empty Engine: no pools, every bitmap bit and list head
// zero/nil.
func New(cfg Config) (*Engine, error) {
	classCfg, err := newSizeClassConfig(cfg.FLLEN, cfg.SLLEN)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		classCfg: classCfg,
		idx:      newFreeIndex(classCfg),
	}, nil
}

// InsertPool stitches a caller-supplied, contiguous byte slice into the
// Engine as a new pool. mem is aligned up to Granularity at the start and
// down to Granularity at the end; the caller must not touch mem again once
// this call succeeds. InsertPool fails with ErrPoolTooSmall if the aligned
// region cannot hold a minimum block plus a sentinel. If the aligned region
// is larger than the largest block FLLEN allows plus a sentinel, only that
// much of it becomes the pool and the bytes past the sentinel stay unused.
func (e *Engine) InsertPool(mem []byte) error {
	if len(mem) == 0 {
		return ErrPoolTooSmall
	}

	addr0 := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	start := roundupUintptr(addr0, granularity)
	end := rounddownUintptr(addr0+uintptr(len(mem)), granularity)

	if end <= start || end-start < 2*minBlockSize {
		e.cfg.Diagnostics.logger().Warn("tlsf: pool rejected, too small",
			"requested_bytes", len(mem))
		return ErrPoolTooSmall
	}

	size := end - start
	freeSize := size - minBlockSize

	// A free block can be no larger than the largest class FLLEN allows, so
	// a larger region is truncated to one such block plus its sentinel.
	if maxFree := e.classCfg.maxBlockSize(); freeSize > maxFree {
		e.cfg.Diagnostics.logger().Warn("tlsf: pool truncated to FLLEN capacity",
			"requested_bytes", len(mem), "max_block_size", maxFree)
		freeSize = maxFree
		end = start + freeSize + minBlockSize
		size = end - start
	}

	freeHdr := headerAt(unsafe.Pointer(start))
	freeHdr.sizeAndFlags = 0
	freeHdr.setSize(freeSize)
	freeHdr.prevPhys = nil

	sentinel := headerAt(unsafe.Pointer(start + freeSize))
	sentinel.sizeAndFlags = 0
	sentinel.setSize(minBlockSize)
	sentinel.setUsed()
	sentinel.setLastInPool()
	sentinel.prevPhys = freeHdr

	e.idx.insert(freeHdr.asFree(), freeSize)
	e.pools = append(e.pools, &pool{backing: mem, first: freeHdr, start: start, end: end})

	e.cfg.Diagnostics.logger().Info("tlsf: pool inserted",
		"bytes", size, "free_bytes", freeSize, "pools", len(e.pools))
	return nil
}

// searchSize computes the smallest block size guaranteed to satisfy a
// request for size payload bytes at the given alignment, per spec 4.E
// step 1: the requested payload rounded up to G, plus the extra alignment
// padding only an over-G alignment can demand, plus one granularity unit
// for the header (see blockHeader.payload).
func (e *Engine) searchSize(size, align uintptr) (uintptr, bool) {
	payloadSize := roundupUintptr(size, granularity)
	if payloadSize < size {
		return 0, false // overflow
	}

	var extra uintptr
	if align > granularity {
		extra = align - granularity
	}

	search := payloadSize + extra
	if search < payloadSize {
		return 0, false // overflow
	}
	search += granularity
	if search < granularity {
		return 0, false // overflow
	}
	search = roundupUintptr(search, granularity)
	if search < minBlockSize {
		search = minBlockSize
	}
	return search, true
}

// Allocate attempts to find size bytes of memory aligned to align (a power
// of two >= Granularity) across every pool inserted so far. It returns the
// payload address and true on success, or (nil, false) if no free block is
// large enough or the request overflows the largest representable class.
func (e *Engine) Allocate(size, align uintptr) (unsafe.Pointer, bool) {
	if align < granularity {
		align = granularity
	}

	search, ok := e.searchSize(size, align)
	if !ok || search > e.classCfg.maxBlockSize() {
		e.cfg.Diagnostics.logger().Warn("tlsf: allocation rejected, oversized",
			"size", size, "align", align)
		return nil, false
	}

	free := e.idx.findSuitable(search)
	if free == nil {
		e.cfg.Diagnostics.logger().Warn("tlsf: allocation rejected, exhausted",
			"size", size, "align", align)
		return nil, false
	}

	hdr := free.header()
	e.idx.remove(free, hdr.size())

	// Front-split: shift the block forward so its payload lands on an
	// align boundary, if align demands more than the natural granularity
	// placement gives us for free.
	if align > granularity {
		blockAddr := uintptr(hdr.addr())
		naturalPayload := blockAddr + granularity
		alignedPayload := roundupUintptr(naturalPayload, align)
		frontSize := alignedPayload - granularity - blockAddr

		if frontSize > 0 {
			origSize := hdr.size()
			origPrev := hdr.prevPhys
			successor := headerAt(unsafe.Add(hdr.addr(), origSize))

			frontHdr := headerAt(unsafe.Pointer(blockAddr))
			frontHdr.sizeAndFlags = 0
			frontHdr.setSize(frontSize)
			frontHdr.prevPhys = origPrev

			newHdr := headerAt(unsafe.Pointer(blockAddr + frontSize))
			newHdr.sizeAndFlags = 0
			newHdr.setSize(origSize - frontSize)
			newHdr.prevPhys = frontHdr

			successor.prevPhys = newHdr

			e.idx.insert(frontHdr.asFree(), frontSize)
			hdr = newHdr
		}
	}

	// Tail-split: if the block is bigger than header + requested payload
	// by at least a minimum block, carve the remainder off as a new free
	// block instead of handing it to the caller as unusable slack.
	payloadSize := roundupUintptr(size, granularity)
	usedSize := payloadSize + granularity
	if remainder := hdr.size() - usedSize; remainder >= minBlockSize {
		blockAddr := uintptr(hdr.addr())
		blockSize := hdr.size()
		successor := headerAt(unsafe.Add(hdr.addr(), blockSize))

		tailHdr := headerAt(unsafe.Pointer(blockAddr + usedSize))
		tailHdr.sizeAndFlags = 0
		tailHdr.setSize(remainder)
		tailHdr.prevPhys = hdr

		successor.prevPhys = tailHdr

		e.idx.insert(tailHdr.asFree(), remainder)
		hdr.setSize(usedSize)
	}

	hdr.setUsed()
	return hdr.payload(), true
}

// Deallocate returns a previously allocated block to its pool, coalescing
// with free physical neighbors. Behavior is undefined if ptr was not
// returned by Allocate on this Engine or has already been deallocated.
func (e *Engine) Deallocate(ptr unsafe.Pointer) {
	hdr := blockFromPayload(ptr)
	if !hdr.used() {
		panic("tlsf: deallocate of a block that is not in use")
	}

	size := hdr.size()

	var newNext *blockHeader
	next := hdr.nextPhys()
	if !next.used() {
		nextSize := next.size()
		e.idx.remove(next.asFree(), nextSize)
		size += nextSize
		newNext = next.nextPhys()
	} else {
		newNext = next
	}

	if hdr.prevPhys != nil && !hdr.prevPhys.used() {
		prev := hdr.prevPhys
		e.idx.remove(prev.asFree(), prev.size())
		size += prev.size()
		hdr = prev
	}

	hdr.setSize(size)
	hdr.clearUsed()
	e.idx.insert(hdr.asFree(), size)

	if newNext != nil {
		newNext.prevPhys = hdr
	}
}

// GrowInPlace attempts to satisfy a larger request for an existing
// allocation without moving it. It succeeds immediately if the block
// already has enough payload capacity; otherwise it tries to absorb the
// following physical block if that block is free and large enough. It
// returns false (leaving the Engine unchanged) if neither is possible.
func (e *Engine) GrowInPlace(ptr unsafe.Pointer, newSize uintptr) bool {
	hdr := blockFromPayload(ptr)
	capacity := hdr.size() - granularity
	newPayload := roundupUintptr(newSize, granularity)

	if newPayload <= capacity {
		return true
	}
	deficit := newPayload - capacity

	next := hdr.nextPhys()
	if next.used() {
		return false
	}
	nextSize := next.size()
	if nextSize < deficit {
		return false
	}

	e.idx.remove(next.asFree(), nextSize)
	afterNext := next.nextPhys()
	remainder := nextSize - deficit

	if remainder >= minBlockSize {
		newUsedSize := hdr.size() + deficit
		tailHdr := headerAt(unsafe.Add(hdr.addr(), newUsedSize))
		tailHdr.sizeAndFlags = 0
		tailHdr.setSize(remainder)
		tailHdr.prevPhys = hdr

		afterNext.prevPhys = tailHdr
		e.idx.insert(tailHdr.asFree(), remainder)
		hdr.setSize(newUsedSize)
	} else {
		hdr.setSize(hdr.size() + nextSize)
		afterNext.prevPhys = hdr
	}
	return true
}

// ShrinkInPlace releases trailing payload capacity back to the Engine as a
// new free block, coalescing it with the following block if that is also
// free. It never fails; if the saved tail would be smaller than a minimum
// block, it is a no-op and the allocation keeps its current capacity.
func (e *Engine) ShrinkInPlace(ptr unsafe.Pointer, newSize uintptr) {
	hdr := blockFromPayload(ptr)
	newPayload := roundupUintptr(newSize, granularity)
	newUsedSize := newPayload + granularity

	if newUsedSize >= hdr.size() {
		return
	}
	tailSize := hdr.size() - newUsedSize
	if tailSize < minBlockSize {
		return
	}

	next := hdr.nextPhys()
	tailHdr := headerAt(unsafe.Add(hdr.addr(), newUsedSize))
	tailHdr.sizeAndFlags = 0
	tailHdr.prevPhys = hdr

	if !next.used() {
		nextSize := next.size()
		e.idx.remove(next.asFree(), nextSize)
		tailSize += nextSize
		afterNext := next.nextPhys()
		afterNext.prevPhys = tailHdr
	} else {
		next.prevPhys = tailHdr
	}

	tailHdr.setSize(tailSize)
	e.idx.insert(tailHdr.asFree(), tailSize)
	hdr.setSize(newUsedSize)
}

// SizeOfAllocation returns the usable payload capacity, in bytes, of a
// previously allocated block.
func (e *Engine) SizeOfAllocation(ptr unsafe.Pointer) uintptr {
	hdr := blockFromPayload(ptr)
	return hdr.size() - granularity
}

// BlockInfo describes one block as seen by IterBlocks. Addr and Size
// describe the block's full in-band extent (header included), so summing
// Size across one pool's blocks reproduces that pool's aligned length less
// its sentinel's minimum block; use SizeOfAllocation for a used block's
// usable payload capacity instead.
type BlockInfo struct {
	Addr unsafe.Pointer
	Size uintptr
	Used bool
}

// IterBlocks walks every inserted pool's physical chain from its first
// block up to, but not including, its sentinel, calling fn with each
// block's range and state. It stops early if fn returns false. Pools are visited in an unspecified
// order; within a pool, blocks are always visited in physical order.
// IterBlocks must not be called concurrently with any mutating operation.
func (e *Engine) IterBlocks(fn func(BlockInfo) bool) {
	for _, p := range e.pools {
		cur := p.first
		for !cur.lastInPool() {
			info := BlockInfo{
				Addr: cur.addr(),
				Size: cur.size(),
				Used: cur.used(),
			}
			if !fn(info) {
				return
			}
			cur = cur.nextPhys()
		}
	}
}
