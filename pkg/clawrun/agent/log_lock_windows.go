//go:build windows

package agent

import "os"

// Windows has no flock; the in-process lock table still guards re-entry and
// the exclusive create of the sqlite WAL provides coarse cross-process
// protection.
func flockExclusive(f *os.File) error { return nil }

func funlock(f *os.File) {}
