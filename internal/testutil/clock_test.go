package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch0 = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func TestStepClock_Advances(t *testing.T) {
	clock := NewStepClock(epoch0, time.Second)

	assert.Equal(t, epoch0, clock.Now())
	assert.Equal(t, epoch0.Add(time.Second), clock.Now())
	assert.Equal(t, epoch0.Add(2*time.Second), clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(epoch0, time.Millisecond)
	const goroutines = 50
	const calls = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls, "every reading is distinct")
	assert.Equal(t, epoch0.Add(goroutines*calls*time.Millisecond), clock.Now())
}

func TestFixedIDs(t *testing.T) {
	gen := NewFixedIDs("run-1", "run-2")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())

	assert.Equal(t, "test-run-default", NewFixedIDs().Generate())
}
