package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/api"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/shared/id"
)

// openHandle is a device handle held on behalf of a client. Its context
// is cancelled when the handle is closed so blocked calls on it return.
type openHandle struct {
	id     id.HandleID
	h      *device.Handle
	opened time.Time
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func (o *openHandle) info() api.HandleInfo {
	return api.HandleInfo{
		ID:       o.id.String(),
		Minor:    o.h.Minor(),
		Mode:     o.h.Mode().String(),
		Nonblock: o.h.Nonblock(),
		OpenedAt: o.opened.UTC().Format(time.RFC3339Nano),
	}
}

// opContext derives the context for one blocking call: it ends when the
// request ends or the handle is closed, whichever comes first.
func (o *openHandle) opContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(o.ctx, func() { cancel(context.Cause(o.ctx)) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

type handleTable struct {
	mu      sync.RWMutex
	gen     *id.Generator
	handles map[id.HandleID]*openHandle
	closed  bool // set by closeAll; later adds fail with ESHUTDOWN
}

func newHandleTable(gen *id.Generator) *handleTable {
	return &handleTable{gen: gen, handles: make(map[id.HandleID]*openHandle)}
}

// add registers h under a fresh ID. Once the table is closed it fails with
// errno.ErrShutdown and the caller still owns h.
func (t *handleTable) add(h *device.Handle) (*openHandle, error) {
	ctx, cancel := context.WithCancelCause(context.Background())
	o := &openHandle{
		id:     t.gen.NewHandleID(),
		h:      h,
		opened: time.Now(),
		ctx:    ctx,
		cancel: cancel,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		cancel(errno.ErrShutdown)
		return nil, errno.ErrShutdown
	}
	t.handles[o.id] = o
	return o, nil
}

func (t *handleTable) get(raw string) (*openHandle, error) {
	hid, err := id.ParseHandleID(raw)
	if err != nil {
		return nil, errno.ErrBadHandle
	}

	t.mu.RLock()
	o, ok := t.handles[hid]
	t.mu.RUnlock()
	if !ok {
		return nil, errno.ErrBadHandle
	}
	return o, nil
}

// remove detaches the handle, wakes its blocked callers with cause and
// closes the device handle.
func (t *handleTable) remove(raw string, cause error) error {
	o, err := t.get(raw)
	if err != nil {
		return err
	}

	t.mu.Lock()
	_, ok := t.handles[o.id]
	delete(t.handles, o.id)
	t.mu.Unlock()
	if !ok {
		return errno.ErrBadHandle
	}

	o.cancel(cause)
	return o.h.Close()
}

// closeAll removes every handle and returns how many were closed.
func (t *handleTable) closeAll(cause error) int {
	t.mu.Lock()
	all := t.handles
	t.handles = make(map[id.HandleID]*openHandle)
	t.closed = true
	t.mu.Unlock()

	for _, o := range all {
		o.cancel(cause)
		_ = o.h.Close()
	}
	return len(all)
}

func (t *handleTable) list() []api.HandleInfo {
	t.mu.RLock()
	out := make([]api.HandleInfo, 0, len(t.handles))
	for _, o := range t.handles {
		out = append(out, o.info())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handles)
}
