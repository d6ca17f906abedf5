// Package keylock provides in-process mutual exclusion keyed by string.
// Productions are pinned to a single process, so a keyed mutex map is
// sufficient; nesting order across maps is always tenant outside production.
package keylock

import "sync"

// KeyedMutex hands out one mutex per key. Mutexes are never evicted: the key
// space (tenant ids, production ids) is small relative to memory and eviction
// under a held lock is a correctness hazard.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
