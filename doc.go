// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tlsf implements a real-time dynamic memory allocator core based on
// the Two-Level Segregated Fit (TLSF) algorithm.
//
// The package carves caller-supplied, contiguous byte slices ("pools") into
// a chain of physically adjacent blocks and services allocate/deallocate/
// grow/shrink requests against them in O(1) worst-case time, using in-band
// block headers and a two-level bitmap directory over a segregated free-list
// matrix. It does not acquire memory from the operating system, does not
// synchronize concurrent access, and does not defragment: callers supply
// pools (see package testpool for one way to do that with mmap) and provide
// their own mutual exclusion if an Engine is shared across goroutines.
package tlsf
