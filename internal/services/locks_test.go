package services

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotLocks(t *testing.T) {
	locks := NewSlotLocks()

	release, ok := locks.TryLock("p/a")
	require.True(t, ok)
	_, ok = locks.TryLock("p/a")
	assert.False(t, ok)

	releaseB, ok := locks.TryLock("p/b")
	require.True(t, ok)
	assert.Equal(t, 2, locks.Held())

	release()
	release()
	assert.Equal(t, 1, locks.Held())

	again, ok := locks.TryLock("p/a")
	require.True(t, ok)
	again()
	releaseB()
	assert.Zero(t, locks.Held())
}

func TestSlotLocksSingleWinner(t *testing.T) {
	locks := NewSlotLocks()
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
		hold    = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if release, ok := locks.TryLock("p/a"); ok {
				winners.Add(1)
				<-hold
				release()
			}
		}()
	}
	close(start)
	for locks.Held() == 0 {
		runtime.Gosched()
	}
	close(hold)
	wg.Wait()

	assert.GreaterOrEqual(t, winners.Load(), int32(1))
	assert.Zero(t, locks.Held())
}
