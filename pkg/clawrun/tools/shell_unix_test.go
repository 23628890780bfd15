//go:build unix

package tools

import (
	"syscall"
	"testing"
)

// Closing the session must release every pipe descriptor, otherwise repeated
// restarts leak fds.
func TestShellSession_CloseReleasesDescriptors(t *testing.T) {
	s := newSession(t)
	fds := s.Fds()

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	var stat syscall.Stat_t
	for i, fd := range fds {
		if err := syscall.Fstat(int(fd), &stat); err != syscall.EBADF {
			t.Errorf("fd %d (index %d) still open after close: %v", fd, i, err)
		}
	}
}
