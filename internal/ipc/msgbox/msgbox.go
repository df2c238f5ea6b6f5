// Package msgbox implements the shared LIFO message exchange.
//
// Submit copies a caller's payload into a freshly allocated message and
// pushes it on the stack; Retrieve pops the most recent message and copies
// it out. Neither call ever waits: an empty stack is reported with
// errno.ErrEmpty. The stack is guarded by a spin lock held only for the
// pointer splice, so both calls are safe from contexts that must not sleep.
//
// Every message is destroyed exactly once, on whichever path it leaves the
// stack. Destroying a message twice panics.
package msgbox

import (
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/spinlock"
)

// MaxMessageSize is the largest payload Submit accepts.
const MaxMessageSize = 4096

// DefaultByteBudget caps the payload bytes held at once.
const DefaultByteBudget = 16 << 20

type message struct {
	link    *message
	payload []byte
	freed   bool
}

// Stats is a snapshot of stack accounting.
type Stats struct {
	Depth     int
	Bytes     int64
	Live      uint64
	Allocated uint64
	Destroyed uint64
}

// Box is a LIFO stack of variably sized messages.
type Box struct {
	lock  spinlock.Lock
	top   *message // Protected by lock
	depth int      // Protected by lock

	budget    int64
	reserved  atomic.Int64
	allocated atomic.Uint64
	destroyed atomic.Uint64
}

// New creates an empty box whose queued payloads may total at most budget
// bytes. A budget of 0 selects DefaultByteBudget.
func New(budget int64) (*Box, error) {
	if budget < 0 {
		return nil, errno.ErrInvalidArgument
	}
	if budget == 0 {
		budget = DefaultByteBudget
	}
	return &Box{budget: budget}, nil
}

// Submit pushes the first length bytes of payload as a new message.
func (b *Box) Submit(payload []byte, length int) error {
	if length <= 0 || length > MaxMessageSize {
		return errno.ErrInvalidArgument
	}
	if payload == nil || len(payload) < length {
		return errno.ErrFault
	}

	msg, err := b.alloc(length)
	if err != nil {
		return err
	}
	copy(msg.payload, payload[:length])

	b.lock.Lock()
	msg.link = b.top
	b.top = msg
	b.depth++
	b.lock.Unlock()

	return nil
}

// Retrieve pops the most recent message into buf and returns its length.
// capacity is the usable size of buf. A message larger than capacity is
// discarded and errno.ErrTooLarge returned.
func (b *Box) Retrieve(buf []byte, capacity int) (int, error) {
	if capacity <= 0 {
		return 0, errno.ErrInvalidArgument
	}

	b.lock.Lock()
	msg := b.top
	if msg == nil {
		b.lock.Unlock()
		return 0, errno.ErrEmpty
	}
	b.top = msg.link
	b.depth--
	b.lock.Unlock()

	msg.link = nil
	defer b.destroy(msg)

	if len(buf) < capacity {
		return 0, errno.ErrFault
	}
	if capacity < len(msg.payload) {
		return 0, errno.ErrTooLarge
	}
	return copy(buf, msg.payload), nil
}

// Drain destroys every queued message and returns how many there were.
func (b *Box) Drain() int {
	b.lock.Lock()
	chain := b.top
	b.top = nil
	b.depth = 0
	b.lock.Unlock()

	n := 0
	for chain != nil {
		next := chain.link
		chain.link = nil
		b.destroy(chain)
		chain = next
		n++
	}
	return n
}

// Len returns the number of queued messages.
func (b *Box) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.depth
}

// Stats returns the current accounting.
func (b *Box) Stats() Stats {
	depth := b.Len()
	// destroyed first: allocated only grows, so Live cannot underflow.
	destroyed := b.destroyed.Load()
	allocated := b.allocated.Load()
	return Stats{
		Depth:     depth,
		Bytes:     b.reserved.Load(),
		Live:      allocated - destroyed,
		Allocated: allocated,
		Destroyed: destroyed,
	}
}

func (b *Box) alloc(length int) (*message, error) {
	if b.reserved.Add(int64(length)) > b.budget {
		b.reserved.Add(-int64(length))
		return nil, errno.ErrNoMemory
	}
	b.allocated.Add(1)
	return &message{payload: make([]byte, length)}, nil
}

func (b *Box) destroy(msg *message) {
	if msg.freed {
		panic("msgbox: message destroyed twice")
	}
	msg.freed = true
	b.reserved.Add(-int64(len(msg.payload)))
	clear(msg.payload)
	msg.payload = nil
	b.destroyed.Add(1)
}
