package objectsrepository

import "sync"

// keyedLocks serializes read-modify-write sections per entity identifier,
// so concurrent submissions touching the same person or institution cannot
// lose a role-map update. Locks are reference-counted and dropped when the
// last holder releases.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// acquire blocks until the lock for key is held and returns its release
// function.
func (k *keyedLocks) acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func entityLockKey(collection Collection, id string) string {
	return string(collection) + "/" + id
}
