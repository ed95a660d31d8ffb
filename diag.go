// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import (
	"io"
	"log/slog"
)

// Diagnostics configures the Engine's optional structured-logging hook,
// modeled on the Options{Enabled, ...} pattern wrapping a discard-by-default
// *slog.Logger that the rest of the corpus uses for its own CLI logger.
// It is consulted only on InsertPool and on rejected allocations - never on
// the hot Allocate/Deallocate/GrowInPlace/ShrinkInPlace path when a request
// succeeds, so a disabled (default) Engine pays nothing for it.
type Diagnostics struct {
	// Enabled turns logging on. When false (the default zero value),
	// Logger is ignored and a package-level discard logger is used.
	Enabled bool
	// Logger receives diagnostic events when Enabled is true. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func (d Diagnostics) logger() *slog.Logger {
	if !d.Enabled {
		return discardLogger
	}
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
