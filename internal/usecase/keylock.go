package usecase

import (
	"context"
	"sync"
)

// keyLock serializes work per user id within this process. Entries are
// reference counted and dropped once no caller holds or waits on them.
type keyLock struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[int64]*lockEntry)}
}

// Lock blocks until id is free or ctx is done. On success the returned
// func releases the lock and must be called exactly once.
func (k *keyLock) Lock(ctx context.Context, id int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.release(id, e)
		}, nil
	case <-ctx.Done():
		k.release(id, e)
		return nil, ctx.Err()
	}
}

func (k *keyLock) release(id int64, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
}

// size reports the number of live entries.
func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
