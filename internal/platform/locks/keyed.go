// Package locks provides a keyed mutex for serializing work per entity.
// The workflow engine uses it per instance, the rollup engine per record.
package locks

import "sync"

// Keyed hands out one mutex per key. Mutexes are created on first use and
// kept for the life of the process; the key space here (active instances,
// records under recomputation) is small enough that reaping is not needed.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

func (k *Keyed) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock acquires the mutex for key, blocking until it is free.
func (k *Keyed) Lock(key string) {
	k.get(key).Lock()
}

// Unlock releases the mutex for key.
func (k *Keyed) Unlock(key string) {
	k.get(key).Unlock()
}
