package services

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// SlotLocks gives at most one writer per dataset slot. Slots are created on
// demand and dropped when their last holder releases.
type SlotLocks struct {
	mu    sync.Mutex
	slots map[string]*slotLock
}

type slotLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewSlotLocks() *SlotLocks {
	return &SlotLocks{slots: make(map[string]*slotLock)}
}

// TryLock acquires key without waiting. The returned release must be called
// exactly once when ok is true.
func (l *SlotLocks) TryLock(key string) (release func(), ok bool) {
	l.mu.Lock()
	slot, exists := l.slots[key]
	if !exists {
		slot = &slotLock{sem: semaphore.NewWeighted(1)}
		l.slots[key] = slot
	}
	if !slot.sem.TryAcquire(1) {
		if !exists {
			delete(l.slots, key)
		}
		l.mu.Unlock()
		return nil, false
	}
	slot.refs++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			slot.sem.Release(1)
			slot.refs--
			if slot.refs == 0 {
				delete(l.slots, key)
			}
		})
	}, true
}

// Held reports how many slots are currently locked.
func (l *SlotLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
