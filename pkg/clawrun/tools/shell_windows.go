//go:build windows

package tools

import (
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Windows has no SIGTERM; kill directly.
func terminateProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
