package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/testutil"
)

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.NewID()

	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.NewID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestClock_FirstStampIsOne(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(1), c.Current())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const workers, perWorker = 8, 250

	issued := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				issued <- c.Next()
			}
		}()
	}
	wg.Wait()
	close(issued)

	unique := make(map[int64]bool)
	for seq := range issued {
		assert.False(t, unique[seq], "seq %d issued twice", seq)
		unique[seq] = true
	}
	assert.Len(t, unique, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), c.Current())
}

func TestEngineStamp(t *testing.T) {
	clock := NewClock()
	e := New(nil, WithIDGenerator(testutil.NewFixedIDGenerator("q-7")), WithClock(clock))

	first := e.stamp()
	second := e.stamp()

	assert.Equal(t, Stamp{QueryID: "q-7", Seq: 1}, first)
	assert.Equal(t, Stamp{QueryID: "q-7", Seq: 2}, second)
	assert.Equal(t, []any{"query_id", "q-7", "seq", int64(2), "table", "users"}, second.attrs("table", "users"))
}
