// Package ringbuf implements the bounded circular byte channel.
//
// A Ring holds up to Cap() bytes in FIFO order. Reads and writes are short
// when less data or space is available than requested, and block (or fail
// with errno.ErrWouldBlock) only when none is available at all. Waiting is
// interruptible through the caller's context.
package ringbuf

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/waitq"
)

// State is a snapshot of ring state for diagnostics and metrics.
type State struct {
	Capacity       int
	Occupied       int
	Head           int
	Tail           int
	BlockedReaders int
	BlockedWriters int
	BytesRead      uint64
	BytesWritten   uint64
	Closed         bool
}

// Ring is a fixed-capacity byte ring guarded by a sleeping lock.
type Ring struct {
	mu       sync.Mutex
	storage  []byte
	head     int // next write position
	tail     int // next read position
	occupied int
	closed   bool
	done     chan struct{}

	bytesRead    uint64
	bytesWritten uint64

	dataReady  waitq.Queue // occupied > 0
	spaceReady waitq.Queue // occupied < capacity
}

// New creates an empty ring of the given capacity.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, errno.ErrInvalidArgument
	}
	return &Ring{
		storage: make([]byte, capacity),
		done:    make(chan struct{}),
	}, nil
}

// Cap returns the ring capacity in bytes.
func (r *Ring) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.storage)
}

// Len returns the number of bytes currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupied
}

// Read copies up to n bytes into p. It blocks while the ring is empty
// unless nonblock is set.
func (r *Ring) Read(ctx context.Context, p []byte, n int, nonblock bool) (int, error) {
	if n < 0 {
		return 0, errno.ErrInvalidArgument
	}
	if len(p) < n {
		return 0, errno.ErrFault
	}
	if n == 0 {
		return 0, nil
	}

	r.mu.Lock()
	for r.occupied == 0 {
		if err := r.waitLocked(ctx, &r.dataReady, nonblock); err != nil {
			r.mu.Unlock()
			return 0, err
		}
	}
	if r.closed {
		r.mu.Unlock()
		return 0, errno.ErrShutdown
	}

	k := min(n, r.occupied)
	r.copyOut(p[:k])
	r.occupied -= k
	r.bytesRead += uint64(k)
	r.mu.Unlock()

	r.spaceReady.WakeAll()
	return k, nil
}

// Write copies up to n bytes from p into the ring. It blocks while the ring
// is full unless nonblock is set. A write larger than the free space is
// satisfied partially.
func (r *Ring) Write(ctx context.Context, p []byte, n int, nonblock bool) (int, error) {
	if n < 0 {
		return 0, errno.ErrInvalidArgument
	}
	if len(p) < n {
		return 0, errno.ErrFault
	}
	if n == 0 {
		return 0, nil
	}

	r.mu.Lock()
	for r.occupied == len(r.storage) {
		if err := r.waitLocked(ctx, &r.spaceReady, nonblock); err != nil {
			r.mu.Unlock()
			return 0, err
		}
	}
	if r.closed {
		r.mu.Unlock()
		return 0, errno.ErrShutdown
	}

	k := min(n, len(r.storage)-r.occupied)
	r.copyIn(p[:k])
	r.occupied += k
	r.bytesWritten += uint64(k)
	r.mu.Unlock()

	r.dataReady.WakeAll()
	return k, nil
}

// waitLocked performs one round of the guarded wait. It is entered and left
// with r.mu held; the lock is dropped while suspended.
func (r *Ring) waitLocked(ctx context.Context, q *waitq.Queue, nonblock bool) error {
	if r.closed {
		return errno.ErrShutdown
	}
	if nonblock {
		return errno.ErrWouldBlock
	}

	w := q.Prepare()
	r.mu.Unlock()
	err := w.Wait(ctx, r.done)
	r.mu.Lock()
	return err
}

// copyOut moves len(dst) bytes from tail, wrapping at the end of storage.
func (r *Ring) copyOut(dst []byte) {
	n := copy(dst, r.storage[r.tail:])
	copy(dst[n:], r.storage)
	r.tail = (r.tail + len(dst)) % len(r.storage)
}

// copyIn moves src to head, wrapping at the end of storage.
func (r *Ring) copyIn(src []byte) {
	n := copy(r.storage[r.head:], src)
	copy(r.storage, src[n:])
	r.head = (r.head + len(src)) % len(r.storage)
}

// Resize replaces the storage with a new buffer of the given capacity. The
// ring must be empty with nobody waiting on it; otherwise errno.ErrBusy.
func (r *Ring) Resize(capacity int) error {
	if capacity <= 0 {
		return errno.ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errno.ErrShutdown
	}
	if r.occupied != 0 || r.dataReady.Len() != 0 || r.spaceReady.Len() != 0 {
		return errno.ErrBusy
	}
	r.storage = make([]byte, capacity)
	r.head, r.tail = 0, 0
	return nil
}

// Close shuts the ring down. Blocked callers return errno.ErrShutdown, as
// does every later call. Close is idempotent.
func (r *Ring) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()
}

// State returns a consistent snapshot of the ring.
func (r *Ring) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return State{
		Capacity:       len(r.storage),
		Occupied:       r.occupied,
		Head:           r.head,
		Tail:           r.tail,
		BlockedReaders: r.dataReady.Len(),
		BlockedWriters: r.spaceReady.Len(),
		BytesRead:      r.bytesRead,
		BytesWritten:   r.bytesWritten,
		Closed:         r.closed,
	}
}
