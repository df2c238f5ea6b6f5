// Package waitq implements the sleeping side of the IPC synchronization
// model: a FIFO queue of suspended callers that can be interrupted.
//
// A caller registers with Prepare while it still holds the lock guarding its
// predicate, drops that lock, and then calls Wait. Registration before the
// unlock means a wakeup issued between the unlock and the Wait is never lost.
// A wakeup is only a hint: the caller must reacquire its lock and recheck the
// predicate.
package waitq

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// Queue is a wait queue for one predicate. The zero value is ready to use.
type Queue struct {
	mu      sync.Mutex
	waiters []*Waiter
}

// Waiter is a single registration on a Queue.
type Waiter struct {
	q     *Queue
	ready chan struct{}
}

// Prepare enqueues a new waiter at the tail of the queue.
func (q *Queue) Prepare() *Waiter {
	w := &Waiter{q: q, ready: make(chan struct{})}

	q.mu.Lock()
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	return w
}

// Wait suspends until the waiter is woken, ctx is done, or stop is closed.
// It returns nil on wakeup, errno.ErrInterrupted on cancellation and
// errno.ErrShutdown when stop fires.
func (w *Waiter) Wait(ctx context.Context, stop <-chan struct{}) error {
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		w.abandon()
		return errno.ErrInterrupted
	case <-stop:
		w.abandon()
		return errno.ErrShutdown
	}
}

// abandon drops the registration. If a wakeup already targeted this waiter
// it is handed to the next one in line so it is not swallowed.
func (w *Waiter) abandon() {
	if w.q.remove(w) {
		return
	}
	w.q.WakeOne()
}

func (q *Queue) remove(w *Waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, other := range q.waiters {
		if other == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// WakeOne wakes the longest waiting caller. It reports whether anyone was
// waiting.
func (q *Queue) WakeOne() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiters) == 0 {
		return false
	}
	w := q.waiters[0]
	q.waiters[0] = nil
	q.waiters = q.waiters[1:]
	close(w.ready)
	return true
}

// WakeAll wakes every queued caller in FIFO order and returns how many were
// woken.
func (q *Queue) WakeAll() int {
	q.mu.Lock()
	waiters := q.waiters
	q.waiters = nil
	q.mu.Unlock()

	for _, w := range waiters {
		close(w.ready)
	}
	return len(waiters)
}

// Len returns the number of queued callers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}
