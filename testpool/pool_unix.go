// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2017 The Memory Authors.

//go:build darwin || dragonfly || freebsd || linux || openbsd || solaris || netbsd

// Package testpool sources real backing memory for tests and benchmarks
// that exercise tlsf.Engine.InsertPool against something other than a plain
// make([]byte, n) slice. It is adapted from the teacher's own OS
// page-acquisition helpers (mmap_unix.go/mmap_windows.go), which the spec
// scopes out of the core proper - a global-allocator facade that acquires
// pages from the operating system is an explicit non-goal of the TLSF
// bookkeeping engine. It hands out pools backed by real anonymous mappings
// rather than the Go heap; the tlsf package's own tests build their pools
// with make([]byte, n) and do not import it.
package testpool

import "golang.org/x/sys/unix"

// New returns a new anonymous, read-write mapping of at least size bytes,
// rounded up to the system page size. The mapping is always page-aligned,
// which comfortably satisfies tlsf.Granularity.
func New(size int) ([]byte, error) {
	size = roundup(size, unix.Getpagesize())
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// Release unmaps memory previously returned by New. b must be the exact
// slice New returned (not a reslice of it).
func Release(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}

// roundup rounds n up to the nearest multiple of m, m a power of two.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }
