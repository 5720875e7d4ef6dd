// SPDX-License-Identifier: AGPL-3.0-only
package sleep

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Prevent keeps the system from idle sleeping until release is called. It
// runs caffeinate bound to our PID, so the assertion also ends if we crash.
func Prevent(reason string) (release func(), err error) {
	cmd := exec.Command("caffeinate", "-i", "-w", strconv.Itoa(os.Getpid()))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start caffeinate: %w", err)
	}
	return killOnce(cmd), nil
}
