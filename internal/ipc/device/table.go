package device

import (
	"fmt"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/access"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/ringbuf"
	"go.uber.org/zap"
)

// Options configures a Table.
type Options struct {
	Count      int // number of endpoints, minors 0..Count-1
	BufferSize int // initial ring capacity per endpoint
	MaxReaders int // 0 means unlimited
	Logger     *zap.Logger
}

// DefaultOptions returns the reference two-device layout.
func DefaultOptions() Options {
	return Options{
		Count:      DefaultCount,
		BufferSize: DefaultBufferSize,
	}
}

type endpoint struct {
	minor int
	ring  *ringbuf.Ring
}

// Table owns the endpoints and the access policy shared between them.
type Table struct {
	endpoints []*endpoint
	access    *access.Controller
	log       *zap.Logger
	open      atomic.Int64
	closed    atomic.Bool
}

// NewTable allocates every endpoint buffer up front.
func NewTable(opts Options) (*Table, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("device count %d: %w", opts.Count, errno.ErrInvalidArgument)
	}
	if opts.BufferSize <= 0 || opts.BufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d: %w", opts.BufferSize, errno.ErrInvalidArgument)
	}

	ctrl, err := access.NewController(opts.MaxReaders)
	if err != nil {
		return nil, fmt.Errorf("max readers %d: %w", opts.MaxReaders, err)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	t := &Table{
		endpoints: make([]*endpoint, opts.Count),
		access:    ctrl,
		log:       log,
	}
	for minor := range t.endpoints {
		ring, err := ringbuf.New(opts.BufferSize)
		if err != nil {
			return nil, err
		}
		t.endpoints[minor] = &endpoint{minor: minor, ring: ring}
	}
	return t, nil
}

// Len returns the number of endpoints.
func (t *Table) Len() int {
	return len(t.endpoints)
}

// Open binds a new handle to endpoint minor. Opening never blocks: a
// write-mode open while another writer is open fails with errno.ErrBusy.
func (t *Table) Open(minor int, mode Mode, nonblock bool) (*Handle, error) {
	if t.closed.Load() {
		return nil, errno.ErrShutdown
	}
	if minor < 0 || minor >= len(t.endpoints) {
		return nil, errno.ErrNoDevice
	}

	switch mode {
	case ModeWrite:
		if err := t.access.AcquireWriter(); err != nil {
			return nil, err
		}
	case ModeRead:
		if err := t.access.AcquireReader(); err != nil {
			return nil, err
		}
	default:
		return nil, errno.ErrInvalidArgument
	}

	h := &Handle{table: t, ep: t.endpoints[minor], mode: mode}
	h.nonblock.Store(nonblock)
	t.open.Add(1)

	t.log.Debug("device opened",
		zap.Int("minor", minor),
		zap.Stringer("mode", mode),
		zap.Bool("nonblock", nonblock))
	return h, nil
}

// Stats returns a snapshot of every endpoint and the access state.
func (t *Table) Stats() Stats {
	stats := Stats{
		Endpoints:   make([]EndpointStats, 0, len(t.endpoints)),
		Readers:     t.access.Readers(),
		MaxReaders:  t.access.MaxReaders(),
		WriterHeld:  t.access.WriterHeld(),
		OpenHandles: int(t.open.Load()),
	}
	for _, ep := range t.endpoints {
		s := ep.ring.State()
		stats.Endpoints = append(stats.Endpoints, EndpointStats{
			Minor:          ep.minor,
			Capacity:       s.Capacity,
			Occupied:       s.Occupied,
			Head:           s.Head,
			Tail:           s.Tail,
			BlockedReaders: s.BlockedReaders,
			BlockedWriters: s.BlockedWriters,
			BytesRead:      s.BytesRead,
			BytesWritten:   s.BytesWritten,
			Closed:         s.Closed,
		})
	}
	return stats
}

// Close shuts every endpoint down, releasing blocked callers with
// errno.ErrShutdown. Handles stay valid for Close only.
func (t *Table) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	for _, ep := range t.endpoints {
		ep.ring.Close()
	}
	t.log.Info("device table closed", zap.Int64("open_handles", t.open.Load()))
}
