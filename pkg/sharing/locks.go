package sharing

import "sync"

// entityLocks serializes the read-modify-write sequence of mutating
// operations per (tenantID, entityID). Concurrent grants on the same entity
// would otherwise race on the exclusive-permission sweep and on the
// shared_count recompute.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*entityLock)}
}

// Lock acquires the lock for the given entity and returns its release
// function. Lock entries are reference-counted so the map does not grow with
// the number of entities ever touched.
func (l *entityLocks) Lock(tenantID, entityID string) func() {
	key := scopedKey(entityID, tenantID)

	l.mu.Lock()
	el, ok := l.locks[key]
	if !ok {
		el = &entityLock{}
		l.locks[key] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()

	return func() {
		el.mu.Unlock()

		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
