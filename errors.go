// Copyright 2024 The TLSF Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tlsf

import "github.com/cockroachdb/errors"

// ErrInvalidConfig is returned by New when a Config's FLLEN/SLLEN is out of
// range. Wrapped errors from newSizeClassConfig are errors.Is-able against
// this sentinel.
var ErrInvalidConfig = errors.New("tlsf: invalid config")

// ErrPoolTooSmall is returned by (*Engine).InsertPool when the supplied
// region, once aligned, cannot hold a minimum block plus a sentinel.
var ErrPoolTooSmall = errors.New("tlsf: pool too small")

func errInvalidConfigf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}
