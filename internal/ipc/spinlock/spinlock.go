// Package spinlock provides the non-sleeping exclusion used by the message
// stack. A holder must never block while the lock is held: critical
// sections are a handful of pointer updates.
//
// Contenders busy-wait on an atomic flag and yield the processor with
// runtime.Gosched between bursts. They stay runnable the whole time and are
// never parked on a channel, mutex or timer, so acquiring the lock cannot
// suspend the caller.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// spinsBeforeYield bounds the tight loop before a contender yields.
const spinsBeforeYield = 64

// Lock is a test-and-set spin lock. The zero value is unlocked.
type Lock struct {
	held atomic.Bool
}

// Lock acquires the lock, spinning until it is free.
func (l *Lock) Lock() {
	for spins := 0; ; spins++ {
		if !l.held.Load() && l.held.CompareAndSwap(false, true) {
			return
		}
		if spins%spinsBeforeYield == spinsBeforeYield-1 {
			runtime.Gosched()
		}
	}
}

// Unlock releases the lock. Unlocking a free lock is a programming error.
func (l *Lock) Unlock() {
	if !l.held.CompareAndSwap(true, false) {
		panic("spinlock: unlock of unlocked lock")
	}
}
