package lock

import (
	"sync"

	"github.com/apex/log"
)

// OpLocker is an in-memory mutual-exclusion set keyed by call leg ID. It is
// used three ways in calld: as the transfer operation lock, as the relocate
// operation lock, and as the hangup lock protecting a lone bridge leg from
// orphan cleanup. Acquire never blocks; the loser of a race fails fast.
type OpLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewOpLocker() *OpLocker {
	return &OpLocker{
		held: make(map[string]struct{}),
	}
}

// Acquire takes the lock for key. It returns false when the key is already
// held, without blocking.
func (l *OpLocker) Acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return false
	}

	l.held[key] = struct{}{}

	return true
}

// Release gives up the lock for key. Releasing a key that is not held is
// logged and ignored.
func (l *OpLocker) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; !ok {
		log.Errorf("Release called on key (%s) that is not held", key)

		return
	}

	delete(l.held, key)
}

// Held reports whether key is currently locked.
func (l *OpLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.held[key]

	return ok
}
