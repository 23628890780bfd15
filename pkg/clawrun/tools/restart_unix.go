//go:build unix

package tools

import (
	"os"
	"os/exec"
	"syscall"
)

// reexecSelf replaces the process image with a fresh copy of itself, keeping
// arguments and environment. Does not return on success.
func reexecSelf() error {
	self, err := os.Executable()
	if err != nil {
		if self, err = exec.LookPath(os.Args[0]); err != nil {
			return err
		}
	}
	return syscall.Exec(self, os.Args, os.Environ())
}
