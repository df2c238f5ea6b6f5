package device

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, opts Options) *Table {
	t.Helper()
	table, err := NewTable(opts)
	require.NoError(t, err)
	t.Cleanup(table.Close)
	return table
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no endpoints", Options{Count: 0, BufferSize: 16}},
		{"zero buffer", Options{Count: 1, BufferSize: 0}},
		{"huge buffer", Options{Count: 1, BufferSize: MaxBufferSize + 1}},
		{"negative readers", Options{Count: 1, BufferSize: 16, MaxReaders: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.opts)
			assert.ErrorIs(t, err, errno.ErrInvalidArgument)
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	table := newTable(t, DefaultOptions())

	assert.Equal(t, DefaultCount, table.Len())
	for _, ep := range table.Stats().Endpoints {
		assert.Equal(t, DefaultBufferSize, ep.Capacity)
	}
}

func TestWriteThenRead(t *testing.T) {
	table := newTable(t, DefaultOptions())
	ctx := context.Background()

	w, err := table.Open(1, ModeWrite, false)
	require.NoError(t, err)
	r, err := table.Open(1, ModeRead, false)
	require.NoError(t, err)

	n, err := w.Write(ctx, []byte("ping"), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 16)
	n, err = r.Read(ctx, buf, len(buf))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	assert.Equal(t, 0, table.Stats().Endpoints[0].Occupied, "endpoints do not share buffers")
}

func TestWriterExclusiveAcrossEndpoints(t *testing.T) {
	table := newTable(t, DefaultOptions())

	first, err := table.Open(0, ModeWrite, false)
	require.NoError(t, err)

	_, err = table.Open(0, ModeWrite, false)
	assert.ErrorIs(t, err, errno.ErrBusy)
	_, err = table.Open(1, ModeWrite, false)
	assert.ErrorIs(t, err, errno.ErrBusy, "the writer permit is system wide")

	require.NoError(t, first.Close())

	second, err := table.Open(1, ModeWrite, false)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestManyReaders(t *testing.T) {
	table := newTable(t, DefaultOptions())

	var handles []*Handle
	for i := 0; i < 20; i++ {
		h, err := table.Open(i%2, ModeRead, true)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, 20, table.Stats().Readers)

	for _, h := range handles {
		require.NoError(t, h.Close())
	}
	stats := table.Stats()
	assert.Equal(t, 0, stats.Readers)
	assert.Equal(t, 0, stats.OpenHandles)
}

func TestOpenErrors(t *testing.T) {
	table := newTable(t, DefaultOptions())

	_, err := table.Open(2, ModeRead, false)
	assert.ErrorIs(t, err, errno.ErrNoDevice)
	_, err = table.Open(-1, ModeRead, false)
	assert.ErrorIs(t, err, errno.ErrNoDevice)
	_, err = table.Open(0, Mode(9), false)
	assert.ErrorIs(t, err, errno.ErrInvalidArgument)
}

func TestHandleModeAndLifetime(t *testing.T) {
	table := newTable(t, DefaultOptions())
	ctx := context.Background()

	r, err := table.Open(0, ModeRead, true)
	require.NoError(t, err)
	_, err = r.Write(ctx, []byte("x"), 1)
	assert.ErrorIs(t, err, errno.ErrBadHandle, "read handles cannot write")

	w, err := table.Open(0, ModeWrite, true)
	require.NoError(t, err)
	_, err = w.Read(ctx, make([]byte, 1), 1)
	assert.ErrorIs(t, err, errno.ErrBadHandle, "write handles cannot read")

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), errno.ErrBadHandle)
	_, err = w.Write(ctx, []byte("x"), 1)
	assert.ErrorIs(t, err, errno.ErrBadHandle)
	assert.ErrorIs(t, w.Ioctl(CmdSetMaxReaders, 1), errno.ErrBadHandle)
}

func TestNonblockFlag(t *testing.T) {
	table := newTable(t, Options{Count: 1, BufferSize: 4})
	ctx := context.Background()

	r, err := table.Open(0, ModeRead, true)
	require.NoError(t, err)
	assert.True(t, r.Nonblock())

	_, err = r.Read(ctx, make([]byte, 4), 4)
	assert.ErrorIs(t, err, errno.ErrWouldBlock)

	r.SetNonblock(false)
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = r.Read(ctx, make([]byte, 4), 4)
	assert.ErrorIs(t, err, errno.ErrInterrupted)

	_, err = r.ReadWith(context.Background(), make([]byte, 4), 4, true)
	assert.ErrorIs(t, err, errno.ErrWouldBlock)
}

func TestBlockingReaderAcrossHandles(t *testing.T) {
	table := newTable(t, DefaultOptions())

	r, err := table.Open(0, ModeRead, false)
	require.NoError(t, err)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := r.Read(context.Background(), buf, len(buf))
		if err != nil {
			got <- err.Error()
			return
		}
		got <- string(buf[:n])
	}()

	require.Eventually(t, func() bool {
		return table.Stats().Endpoints[0].BlockedReaders == 1
	}, time.Second, time.Millisecond)

	w, err := table.Open(0, ModeWrite, false)
	require.NoError(t, err)
	_, err = w.Write(context.Background(), []byte("wake"), 4)
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Equal(t, "wake", s)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by the writer")
	}
}

func TestIoctl(t *testing.T) {
	table := newTable(t, DefaultOptions())
	ctx := context.Background()

	w, err := table.Open(0, ModeWrite, true)
	require.NoError(t, err)

	require.NoError(t, w.Ioctl(CmdSetBufferSize, 8))
	assert.Equal(t, 8, table.Stats().Endpoints[0].Capacity)
	assert.Equal(t, DefaultBufferSize, table.Stats().Endpoints[1].Capacity)

	n, err := w.Write(ctx, []byte("0123456789"), 10)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	assert.ErrorIs(t, w.Ioctl(CmdSetBufferSize, 32), errno.ErrBusy)
	assert.ErrorIs(t, w.Ioctl(CmdSetBufferSize, 0), errno.ErrInvalidArgument)
	assert.ErrorIs(t, w.Ioctl(CmdSetBufferSize, MaxBufferSize+1), errno.ErrInvalidArgument)

	require.NoError(t, w.Ioctl(CmdSetMaxReaders, 1))
	r, err := table.Open(0, ModeRead, true)
	require.NoError(t, err)
	_, err = table.Open(1, ModeRead, true)
	assert.ErrorIs(t, err, errno.ErrBusy)
	assert.ErrorIs(t, w.Ioctl(CmdSetMaxReaders, -1), errno.ErrInvalidArgument)

	assert.ErrorIs(t, w.Ioctl(Command(99), 0), errno.ErrUnsupported)
	require.NoError(t, r.Close())
}

func TestCloseReleasesBlockedCallers(t *testing.T) {
	table, err := NewTable(DefaultOptions())
	require.NoError(t, err)

	r, err := table.Open(0, ModeRead, false)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := r.Read(context.Background(), make([]byte, 4), 4)
		errc <- err
	}()
	require.Eventually(t, func() bool {
		return table.Stats().Endpoints[0].BlockedReaders == 1
	}, time.Second, time.Millisecond)

	table.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, errno.ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("teardown left a reader blocked")
	}

	_, err = table.Open(0, ModeRead, false)
	assert.ErrorIs(t, err, errno.ErrShutdown)
	assert.NoError(t, r.Close())
}

func TestParseModeAndCommand(t *testing.T) {
	m, err := ParseMode("W")
	require.NoError(t, err)
	assert.Equal(t, ModeWrite, m)
	m, err = ParseMode("read")
	require.NoError(t, err)
	assert.Equal(t, ModeRead, m)
	_, err = ParseMode("append")
	assert.ErrorIs(t, err, errno.ErrInvalidArgument)

	c, err := ParseCommand("set_max_readers")
	require.NoError(t, err)
	assert.Equal(t, CmdSetMaxReaders, c)
	c, err = ParseCommand("1")
	require.NoError(t, err)
	assert.Equal(t, CmdSetBufferSize, c)
	c, err = ParseCommand(" 2 ")
	require.NoError(t, err)
	assert.Equal(t, CmdSetMaxReaders, c)
	c, err = ParseCommand("77")
	require.NoError(t, err)
	assert.Equal(t, Command(77), c)

	for _, bad := range []string{"resize_everything", "2abc", "1 2", "-1", "4294967296", ""} {
		_, err = ParseCommand(bad)
		assert.ErrorIs(t, err, errno.ErrUnsupported, bad)
	}
}
