//go:build windows

package tools

import (
	"os"
	"os/exec"
)

// Windows cannot replace the process image; spawn a detached copy and let the
// caller end the session.
func reexecSelf() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Start()
}
