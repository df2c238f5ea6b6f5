package device

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"go.uber.org/zap"
)

// Handle is one open endpoint. A handle may be used from several
// goroutines; Close must be called exactly once.
type Handle struct {
	table    *Table
	ep       *endpoint
	mode     Mode
	nonblock atomic.Bool
	closed   atomic.Bool
}

// Minor returns the endpoint number.
func (h *Handle) Minor() int { return h.ep.minor }

// Mode returns the open mode.
func (h *Handle) Mode() Mode { return h.mode }

// Nonblock reports the handle's default blocking behaviour.
func (h *Handle) Nonblock() bool { return h.nonblock.Load() }

// SetNonblock changes the default blocking behaviour, like fcntl O_NONBLOCK.
func (h *Handle) SetNonblock(nonblock bool) { h.nonblock.Store(nonblock) }

// Read reads up to n bytes into p using the handle's blocking mode.
func (h *Handle) Read(ctx context.Context, p []byte, n int) (int, error) {
	return h.ReadWith(ctx, p, n, h.nonblock.Load())
}

// ReadWith is Read with an explicit blocking mode for this call only.
func (h *Handle) ReadWith(ctx context.Context, p []byte, n int, nonblock bool) (int, error) {
	if err := h.check(ModeRead); err != nil {
		return 0, err
	}
	return h.ep.ring.Read(ctx, p, n, nonblock)
}

// Write writes up to n bytes from p using the handle's blocking mode.
func (h *Handle) Write(ctx context.Context, p []byte, n int) (int, error) {
	return h.WriteWith(ctx, p, n, h.nonblock.Load())
}

// WriteWith is Write with an explicit blocking mode for this call only.
func (h *Handle) WriteWith(ctx context.Context, p []byte, n int, nonblock bool) (int, error) {
	if err := h.check(ModeWrite); err != nil {
		return 0, err
	}
	return h.ep.ring.Write(ctx, p, n, nonblock)
}

// Ioctl applies a control command.
func (h *Handle) Ioctl(cmd Command, arg int) error {
	if h.closed.Load() {
		return errno.ErrBadHandle
	}

	var err error
	switch cmd {
	case CmdSetBufferSize:
		if arg <= 0 || arg > MaxBufferSize {
			err = errno.ErrInvalidArgument
			break
		}
		err = h.ep.ring.Resize(arg)
	case CmdSetMaxReaders:
		err = h.table.access.SetMaxReaders(arg)
	default:
		err = errno.ErrUnsupported
	}

	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	h.table.log.Info("device control applied",
		zap.Int("minor", h.ep.minor),
		zap.Stringer("command", cmd),
		zap.Int("arg", arg))
	return nil
}

// Close releases the handle's access right. Closing twice returns
// errno.ErrBadHandle.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return errno.ErrBadHandle
	}

	switch h.mode {
	case ModeWrite:
		h.table.access.ReleaseWriter()
	case ModeRead:
		h.table.access.ReleaseReader()
	}
	h.table.open.Add(-1)

	h.table.log.Debug("device closed",
		zap.Int("minor", h.ep.minor),
		zap.Stringer("mode", h.mode))
	return nil
}

func (h *Handle) check(want Mode) error {
	if h.closed.Load() {
		return errno.ErrBadHandle
	}
	if h.mode != want {
		return errno.ErrBadHandle
	}
	return nil
}
