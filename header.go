// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import "unsafe"

// wordSize is the machine word width used to size the granularity, mirroring
// the teacher's mallocAllign constant, but derived rather than hard-coded so
// the package behaves the same on 32- and 64-bit builds.
const wordSize = unsafe.Sizeof(uintptr(0))

// granularity is G from the spec: the minimum alignment and size quantum.
// It is four words (two for the header, two for the free-list links a free
// block keeps right after it), twice max(alignment of a word, size of two
// free-list link words); see blockHeader.payload for why the payload sits a
// full granularity past the block's start.
const granularity = 4 * wordSize

const (
	flagUsed       uintptr = 1 << 0
	flagLastInPool uintptr = 1 << 1
	sizeMask               = ^(granularity - 1)
)

// headerSize is the in-band overhead of every block, used and free alike.
const headerSize = unsafe.Sizeof(blockHeader{})

// minBlockSize is the smallest block the engine ever creates: header plus
// room for the two free-list link words a free block stores in its payload.
const minBlockSize = headerSize + 2*wordSize

// blockHeader is the two-word in-band header every block (used or free)
// carries at its start. It is laid directly over caller-supplied memory via
// unsafe.Pointer, the way the teacher overlays its page and node structs on
// mmap'd bytes.
type blockHeader struct {
	// sizeAndFlags packs the block's total length (a multiple of
	// granularity, so its low bits are always zero) with flagUsed and
	// flagLastInPool stolen from those always-zero low bits.
	sizeAndFlags uintptr
	// prevPhys links to the immediately preceding physical block in the
	// same pool, or nil for a pool's first block.
	prevPhys *blockHeader
}

// freeBlockHeader is a blockHeader followed by two more link words, which
// sit between the header and the payload offset. It is only valid to
// dereference these extra fields while the block is free.
type freeBlockHeader struct {
	blockHeader
	nextFree *freeBlockHeader
	prevFree *freeBlockHeader
}

func headerAt(p unsafe.Pointer) *blockHeader {
	return (*blockHeader)(p)
}

func (h *blockHeader) addr() unsafe.Pointer {
	return unsafe.Pointer(h)
}

func (h *blockHeader) size() uintptr {
	return h.sizeAndFlags & sizeMask
}

func (h *blockHeader) setSize(size uintptr) {
	h.sizeAndFlags = size | (h.sizeAndFlags &^ sizeMask)
}

func (h *blockHeader) used() bool {
	return h.sizeAndFlags&flagUsed != 0
}

func (h *blockHeader) setUsed() {
	h.sizeAndFlags |= flagUsed
}

func (h *blockHeader) clearUsed() {
	h.sizeAndFlags &^= flagUsed
}

func (h *blockHeader) lastInPool() bool {
	return h.sizeAndFlags&flagLastInPool != 0
}

func (h *blockHeader) setLastInPool() {
	h.sizeAndFlags |= flagLastInPool
}

// nextPhys returns the block immediately following this one in physical
// memory. It is only meaningful when h is not the pool's sentinel.
func (h *blockHeader) nextPhys() *blockHeader {
	return headerAt(unsafe.Add(h.addr(), h.size()))
}

// payload returns the address returned to the caller for a used block.
//
// The payload sits a full granularity past the block's start, not just
// headerSize past it: headerSize is only two words (half a granularity
// unit), so reserving just headerSize would only guarantee payload
// addresses aligned to G/2, violating invariant 5 (every payload address is
// a multiple of G) for the common align == G case. Reserving a whole
// granularity trades a few wasted bytes per block for making front-splits
// unnecessary whenever align <= G, which is exactly the case the spec's
// "front-split only if align > G" rule assumes.
func (h *blockHeader) payload() unsafe.Pointer {
	return unsafe.Add(h.addr(), granularity)
}

// blockFromPayload recovers a block header from an address previously
// handed out by Allocate.
func blockFromPayload(ptr unsafe.Pointer) *blockHeader {
	return headerAt(unsafe.Add(ptr, -int(granularity)))
}

func (h *blockHeader) asFree() *freeBlockHeader {
	return (*freeBlockHeader)(unsafe.Pointer(h))
}

func (f *freeBlockHeader) header() *blockHeader {
	return &f.blockHeader
}

// roundupUintptr rounds n up to the nearest multiple of m, m a power of two.
// Named to echo the teacher's own roundup(n, m int) helper.
func roundupUintptr(n, m uintptr) uintptr {
	return (n + m - 1) &^ (m - 1)
}

// rounddownUintptr rounds n down to the nearest multiple of m, m a power of two.
func rounddownUintptr(n, m uintptr) uintptr {
	return n &^ (m - 1)
}
