// Package lockctx brackets region scans with the heap's exclusion lock,
// honoring the kernel rule that locks must not be taken from interrupt
// context.
package lockctx

import "sync"

// WithRegionLock runs body under l unless the caller is executing in
// interrupt context, in which case body runs unlocked: acquiring a mutual
// exclusion primitive from an interrupt handler is disallowed, and the
// resulting unsynchronized scan is an accepted source of false positives.
//
// The lock is released on every exit path, including a panic inside body.
// A nil locker means the region has no lock primitive and body runs as-is.
func WithRegionLock(l sync.Locker, inInterrupt bool, body func() error) error {
	if l == nil || inInterrupt {
		return body()
	}
	l.Lock()
	defer l.Unlock()
	return body()
}
