// Package access enforces the open-time policy for device endpoints: one
// writer at a time across the whole system, and any number of readers up to
// an optional limit.
package access

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// Controller tracks the writer permit and the reader count.
type Controller struct {
	// writer is 1 while the permit is free and 0 while a writer holds it.
	writer atomic.Int32

	mu         sync.Mutex
	readers    int // Protected by mu
	maxReaders int // Protected by mu; 0 means unlimited
}

// NewController creates a controller with the permit free. maxReaders of 0
// removes the reader limit.
func NewController(maxReaders int) (*Controller, error) {
	if maxReaders < 0 {
		return nil, errno.ErrInvalidArgument
	}
	c := &Controller{maxReaders: maxReaders}
	c.writer.Store(1)
	return c, nil
}

// AcquireWriter takes the writer permit. It never waits: if another writer
// holds the permit it fails with errno.ErrBusy.
func (c *Controller) AcquireWriter() error {
	if !c.writer.CompareAndSwap(1, 0) {
		return errno.ErrBusy
	}
	return nil
}

// ReleaseWriter returns the writer permit.
func (c *Controller) ReleaseWriter() {
	c.writer.Store(1)
}

// WriterHeld reports whether a writer currently holds the permit.
func (c *Controller) WriterHeld() bool {
	return c.writer.Load() == 0
}

// AcquireReader registers a reader, failing with errno.ErrBusy once the
// reader limit is reached.
func (c *Controller) AcquireReader() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxReaders > 0 && c.readers >= c.maxReaders {
		return errno.ErrBusy
	}
	c.readers++
	return nil
}

// ReleaseReader unregisters a reader.
func (c *Controller) ReleaseReader() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readers > 0 {
		c.readers--
	}
}

// Readers returns the number of open readers.
func (c *Controller) Readers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readers
}

// MaxReaders returns the reader limit, 0 when unlimited.
func (c *Controller) MaxReaders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxReaders
}

// SetMaxReaders changes the reader limit. Readers already open are not
// affected when the limit drops below the current count.
func (c *Controller) SetMaxReaders(n int) error {
	if n < 0 {
		return errno.ErrInvalidArgument
	}

	c.mu.Lock()
	c.maxReaders = n
	c.mu.Unlock()
	return nil
}
