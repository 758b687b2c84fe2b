package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOnlyOnce(t *testing.T) {
	f := New[bool]()
	require.True(t, f.Resolve(true))
	require.False(t, f.Resolve(false))

	v, ok := f.Value()
	require.True(t, ok)
	assert.True(t, v)
}

func TestConcurrentResolveHasSingleWinner(t *testing.T) {
	f := New[int]()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if f.Resolve(n) {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestWaitHonoursContext(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnCompleteBeforeAndAfterResolve(t *testing.T) {
	f := New[int]()
	var got []int
	var mu sync.Mutex
	record := func(v int) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	}

	f.OnComplete(record)
	f.Resolve(7)
	f.OnComplete(record)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{7, 7}, got)
}

func TestGo(t *testing.T) {
	v, err := Go(func() int { return 42 }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
