// SPDX-License-Identifier: AGPL-3.0-only
//go:build !darwin && !windows && !linux

package sleep

import "errors"

// ErrUnsupported is returned where no sleep inhibitor is available.
var ErrUnsupported = errors.New("sleep prevention is not supported on this platform")

// Prevent always fails on this platform.
func Prevent(reason string) (func(), error) {
	return nil, ErrUnsupported
}
