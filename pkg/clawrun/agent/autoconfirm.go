// Package agent – autoconfirm.go holds the process-wide auto-confirm
// allowance. It is deliberately global rather than per-conversation: "switch
// to autonomous for the next N tools" is a user-intent knob that must apply
// uniformly whether the next confirmation arrives via the CLI or the server.
package agent

import "sync"

var autoConfirm struct {
	mu       sync.Mutex
	count    int
	infinite bool
}

// SetAutoConfirm grants n implicit confirmations. n < 0 means unlimited;
// n == 0 clears any prior grant.
func SetAutoConfirm(n int) {
	autoConfirm.mu.Lock()
	defer autoConfirm.mu.Unlock()
	if n < 0 {
		autoConfirm.infinite = true
		autoConfirm.count = 0
		return
	}
	autoConfirm.infinite = false
	autoConfirm.count = n
}

// ConsumeAutoConfirm reports whether an implicit confirmation is available,
// decrementing the allowance when finite. Once the counter reaches zero the
// next confirmation prompts normally.
func ConsumeAutoConfirm() bool {
	autoConfirm.mu.Lock()
	defer autoConfirm.mu.Unlock()
	if autoConfirm.infinite {
		return true
	}
	if autoConfirm.count > 0 {
		autoConfirm.count--
		return true
	}
	return false
}

// AutoConfirmRemaining returns the current allowance; -1 means unlimited.
func AutoConfirmRemaining() int {
	autoConfirm.mu.Lock()
	defer autoConfirm.mu.Unlock()
	if autoConfirm.infinite {
		return -1
	}
	return autoConfirm.count
}

// AutoConfirmActive reports whether any allowance remains without consuming.
func AutoConfirmActive() bool {
	autoConfirm.mu.Lock()
	defer autoConfirm.mu.Unlock()
	return autoConfirm.infinite || autoConfirm.count > 0
}
