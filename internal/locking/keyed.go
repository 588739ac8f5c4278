// Package locking serializes work on a single case, either inside one process
// or across instances sharing a Redis.
package locking

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process lock per case ID. Entries are dropped once
// nobody holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*keyedEntry
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[uuid.UUID]*keyedEntry)}
}

// Lock blocks until the case is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, caseID uuid.UUID) (func(), error) {
	k.mu.Lock()
	entry, ok := k.entries[caseID]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[caseID] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(caseID, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			k.release(caseID, entry)
		})
	}, nil
}

func (k *KeyedMutex) release(caseID uuid.UUID, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, caseID)
	}
}

// held reports how many entries are alive.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
