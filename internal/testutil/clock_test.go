package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)

func TestClock_FrozenUntilAdvanced(t *testing.T) {
	clock := NewClock(epoch)
	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch, clock.Now())

	got := clock.Advance(90 * time.Minute)
	assert.Equal(t, epoch.Add(90*time.Minute), got)
	assert.Equal(t, got, clock.Now())
}

func TestClock_Set(t *testing.T) {
	clock := NewClock(epoch)
	later := epoch.Add(48 * time.Hour)

	clock.Set(later)
	assert.Equal(t, later, clock.Now())

	clock.Advance(-time.Hour)
	assert.Equal(t, later.Add(-time.Hour), clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(epoch)
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(numGoroutines*time.Second), clock.Now())
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("map")
	assert.Equal(t, "map-1", ids.Generate())
	assert.Equal(t, "map-2", ids.Generate())

	ids.Reset()
	assert.Equal(t, "map-1", ids.Generate())

	assert.Equal(t, "id-1", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("x")
	const numGoroutines = 100

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			id := ids.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines)
}
