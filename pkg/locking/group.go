package locking

// locking.Group is an abstraction for running functions with mutual exclusion
// over sets of keys. The restore and save phases lock the cache directory path
// so that two invocations never read and write it at the same time.
type Group interface {
	// DoWithLock runs the given function with mutual exclusion over the given key.
	DoWithLock(key string, fn func() error) error
}
