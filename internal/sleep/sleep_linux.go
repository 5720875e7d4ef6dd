// SPDX-License-Identifier: AGPL-3.0-only
package sleep

import (
	"fmt"
	"os/exec"
)

// Prevent keeps the system from idle sleeping until release is called. It
// holds a systemd-inhibit lock for as long as a child process is alive.
func Prevent(reason string) (release func(), err error) {
	if reason == "" {
		reason = "scheduled queries"
	}
	cmd := exec.Command("systemd-inhibit",
		"--what=idle:sleep", "--who=omoikane", "--why="+reason, "--mode=block",
		"sleep", "infinity")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start systemd-inhibit: %w", err)
	}
	return killOnce(cmd), nil
}
