package hub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoundTableTakeIsSingleFire(t *testing.T) {
	rt := NewRoundTable()
	rt.Put("cb-1", Round{TargetID: 1})

	rd, ok := rt.Take("cb-1")
	require.True(t, ok)
	require.Equal(t, int64(1), rd.TargetID)

	_, ok = rt.Take("cb-1")
	require.False(t, ok, "second take of the same round must miss")
	require.Zero(t, rt.Len())
}

func TestRoundTableTakeUnknown(t *testing.T) {
	rt := NewRoundTable()
	_, ok := rt.Take("never-dispatched")
	require.False(t, ok)
}

func TestRoundTableConcurrentTakeHasOneWinner(t *testing.T) {
	rt := NewRoundTable()
	rt.Put("cb-1", Round{TargetID: 1})

	const goroutines = 32
	var wins int64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if _, ok := rt.Take("cb-1"); ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)
}

func TestRoundTableEvictBefore(t *testing.T) {
	rt := NewRoundTable()
	now := time.Now()
	rt.Put("old-1", Round{IssuedAt: now.Add(-10 * time.Minute)})
	rt.Put("old-2", Round{IssuedAt: now.Add(-5 * time.Minute)})
	rt.Put("fresh", Round{IssuedAt: now})

	n := rt.EvictBefore(now.Add(-time.Minute))
	require.Equal(t, 2, n)
	require.Equal(t, 1, rt.Len())

	_, ok := rt.Take("fresh")
	require.True(t, ok)
	_, ok = rt.Take("old-1")
	require.False(t, ok)
}
