package access

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(t *testing.T, maxReaders int) *Controller {
	t.Helper()
	c, err := NewController(maxReaders)
	require.NoError(t, err)
	return c
}

func TestWriterExclusivity(t *testing.T) {
	c := newController(t, 0)

	require.NoError(t, c.AcquireWriter())
	assert.True(t, c.WriterHeld())
	assert.ErrorIs(t, c.AcquireWriter(), errno.ErrBusy)

	c.ReleaseWriter()
	assert.False(t, c.WriterHeld())
	assert.NoError(t, c.AcquireWriter())
}

func TestConcurrentWritersOnlyOneWins(t *testing.T) {
	c := newController(t, 0)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.AcquireWriter() == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestReaders(t *testing.T) {
	c := newController(t, 0)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.AcquireReader())
	}
	assert.Equal(t, 10, c.Readers())

	for i := 0; i < 12; i++ {
		c.ReleaseReader()
	}
	assert.Equal(t, 0, c.Readers(), "reader count never goes negative")
}

func TestMaxReaders(t *testing.T) {
	c := newController(t, 2)

	require.NoError(t, c.AcquireReader())
	require.NoError(t, c.AcquireReader())
	assert.ErrorIs(t, c.AcquireReader(), errno.ErrBusy)

	require.NoError(t, c.SetMaxReaders(3))
	assert.NoError(t, c.AcquireReader())

	require.NoError(t, c.SetMaxReaders(1))
	assert.Equal(t, 3, c.Readers(), "lowering the limit keeps open readers")
	assert.ErrorIs(t, c.AcquireReader(), errno.ErrBusy)

	require.NoError(t, c.SetMaxReaders(0))
	assert.NoError(t, c.AcquireReader())

	assert.ErrorIs(t, c.SetMaxReaders(-1), errno.ErrInvalidArgument)
	assert.Equal(t, 0, c.MaxReaders())

	_, err := NewController(-3)
	assert.ErrorIs(t, err, errno.ErrInvalidArgument)
}
