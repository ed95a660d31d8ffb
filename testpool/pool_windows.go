// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Modifications (c) 2024 The TLSF Authors.

package testpool

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// New returns a new committed, read-write VirtualAlloc region of at least
// size bytes, rounded up to the system allocation granularity.
func New(size int) ([]byte, error) {
	size = roundup(size, windowsPageSize)
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// Release frees memory previously returned by New. b must be the exact
// slice New returned.
func Release(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), 0, windows.MEM_RELEASE)
}

const windowsPageSize = 1 << 16

// roundup rounds n up to the nearest multiple of m, m a power of two.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }
