package service

import (
	"context"
	"sync"
)

// KeyedLock serializes work per request id inside this process. Database
// compare-and-swap keeps instances consistent with each other; the lock
// additionally makes commit and publish one step, so subscribers see events
// of a conversation in sequence order.
type KeyedLock struct {
	mu    sync.Mutex
	slots map[uint64]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{slots: make(map[uint64]*lockSlot)}
}

// Lock waits for the slot of id or for ctx to end. The returned func
// releases the slot.
func (k *KeyedLock) Lock(ctx context.Context, id uint64) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[id] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			k.release(id, s)
		}, nil
	case <-ctx.Done():
		k.release(id, s)
		return nil, ctx.Err()
	}
}

func (k *KeyedLock) release(id uint64, s *lockSlot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, id)
	}
	k.mu.Unlock()
}
