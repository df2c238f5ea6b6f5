package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1, id2)
	assert.Len(t, id1.String(), 26)
}

func TestGenerateMonotonic(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 200)
	for i := range ids {
		ids[i] = string(gen.NewHandleID())
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestTypedIDs(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		id     string
		prefix string
	}{
		{gen.NewHandleID().String(), "fh_"},
		{gen.NewRequestID().String(), "req_"},
		{Default().NewRequestID().String(), "req_"},
	}

	for _, tt := range tests {
		assert.True(t, strings.HasPrefix(tt.id, tt.prefix), tt.id)
		parts := strings.Split(tt.id, "_")
		require.Len(t, parts, 2)
		_, err := ulid.Parse(parts[1])
		assert.NoError(t, err)
	}
}

func TestParseHandleID(t *testing.T) {
	h := NewGenerator().NewHandleID()

	parsed, err := ParseHandleID(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	for _, bad := range []string{"", "fh_", "req_01HZZZZZZZZZZZZZZZZZZZZZZZ", "fh_not-a-ulid", "01HZX3Y4Z5"} {
		_, err := ParseHandleID(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	h := NewGenerator().NewHandleID()

	ts, err := Timestamp(h.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(time.Now().Add(time.Second)))

	_, err = Timestamp("fh_garbage")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const workers, per = 8, 100

	var mu sync.Mutex
	seen := make(map[HandleID]struct{}, workers*per)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				h := gen.NewHandleID()
				mu.Lock()
				seen[h] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
}
