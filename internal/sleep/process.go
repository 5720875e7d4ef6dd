// SPDX-License-Identifier: AGPL-3.0-only
//go:build darwin || linux

package sleep

import (
	"os/exec"
	"sync"
)

// killOnce returns a release func that stops cmd. Calling it again is a no-op.
func killOnce(cmd *exec.Cmd) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
		})
	}
}
