// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import "math/bits"

// freeIndex is the combined Bitmap Directory (Component C) and Free List
// Matrix (Component D): a two-level bitmap whose bits mirror which
// (fl, sl) free lists are non-empty, paired with the FLLEN x SLLEN matrix of
// list heads itself. The teacher keeps one list head per size class in a
// flat [64]*node array (a.lists); this generalizes that to two dimensions
// and adds the bitmap so FindSuitable stays O(1) instead of a 64-iteration
// scan.
type freeIndex struct {
	cfg      sizeClassConfig
	flBitmap uint64
	slBitmap []uint64            // len == cfg.flLen, SLLEN bits used per word
	matrix   [][]*freeBlockHeader // cfg.flLen x cfg.slLen
}

func newFreeIndex(cfg sizeClassConfig) *freeIndex {
	matrix := make([][]*freeBlockHeader, cfg.flLen)
	for i := range matrix {
		matrix[i] = make([]*freeBlockHeader, cfg.slLen)
	}
	return &freeIndex{
		cfg:      cfg,
		slBitmap: make([]uint64, cfg.flLen),
		matrix:   matrix,
	}
}

// insert publishes a free block into the list matching its size, at the
// head of that list (the engine's allocator reuses the most recently freed
// block first, i.e. LIFO, for better cache behavior).
func (idx *freeIndex) insert(h *freeBlockHeader, size uintptr) {
	fl, sl, ok := idx.cfg.mapFloor(size)
	if !ok {
		panic("tlsf: block size has no corresponding free list")
	}

	head := idx.matrix[fl][sl]
	h.nextFree = head
	h.prevFree = nil
	if head != nil {
		head.prevFree = h
	}
	idx.matrix[fl][sl] = h

	idx.flBitmap |= 1 << uint(fl)
	idx.slBitmap[fl] |= 1 << uint(sl)
}

// remove splices a free block out of its list, updating the bitmap if the
// list becomes empty.
func (idx *freeIndex) remove(h *freeBlockHeader, size uintptr) {
	fl, sl, ok := idx.cfg.mapFloor(size)
	if !ok {
		panic("tlsf: block size has no corresponding free list")
	}

	if h.prevFree != nil {
		h.prevFree.nextFree = h.nextFree
	} else {
		idx.matrix[fl][sl] = h.nextFree
	}
	if h.nextFree != nil {
		h.nextFree.prevFree = h.prevFree
	}

	if idx.matrix[fl][sl] == nil {
		idx.slBitmap[fl] &^= 1 << uint(sl)
		if idx.slBitmap[fl] == 0 {
			idx.flBitmap &^= 1 << uint(fl)
		}
	}
}

// findSuitable returns the head of the smallest non-empty free list whose
// blocks are guaranteed to be at least minSize, or nil if none exists.
func (idx *freeIndex) findSuitable(minSize uintptr) *freeBlockHeader {
	fl, sl, ok := idx.cfg.mapCeil(minSize)
	if !ok {
		return nil
	}

	if masked := idx.slBitmap[fl] & (^uint64(0) << uint(sl)); masked != 0 {
		sl = bits.TrailingZeros64(masked)
		return idx.matrix[fl][sl]
	}

	flMasked := idx.flBitmap & (^uint64(0) << uint(fl+1))
	if flMasked == 0 {
		return nil
	}
	fl = bits.TrailingZeros64(flMasked)
	sl = bits.TrailingZeros64(idx.slBitmap[fl])
	return idx.matrix[fl][sl]
}

// nonEmpty reports whether any free list at all is non-empty.
func (idx *freeIndex) nonEmpty() bool {
	return idx.flBitmap != 0
}
