package locking

import "sync"

// MemLock is a Group implementation that uses in-memory locks (mutexes) for
// mutual exclusion. It only excludes goroutines of one process, so it's used
// primarily in tests; FileLock is what the commands use.
type MemLock struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewMemLock() *MemLock {
	return &MemLock{
		locks: make(map[string]*keyLock),
	}
}

func (s *MemLock) DoWithLock(key string, fn func() error) error {
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &keyLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.Lock()
	defer s.release(key, lock)
	return fn()
}

// release unlocks key and forgets it once nobody is waiting on it.
func (s *MemLock) release(key string, lock *keyLock) {
	lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, key)
	}
}

// held returns the number of keys currently locked or waited on.
func (s *MemLock) held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
