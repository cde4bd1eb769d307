package main

import "context"

// CacheStore saves directory trees to the remote cache and restores them.
// Implementations can be swapped to use different storage mechanisms.
type CacheStore interface {
	// Restore unpacks the entry stored under primaryKey into paths. When there
	// is none, it falls back to the newest entry whose key starts with one of
	// fallbackKeys, tried in order. ok is false on a cold cache.
	Restore(ctx context.Context, paths []string, primaryKey string, fallbackKeys []string) (matched string, ok bool, err error)

	// Save archives paths under key. Entries are immutable: saving to a key
	// that already exists fails.
	Save(ctx context.Context, paths []string, key string) error

	// Close performs any cleanup operations needed by the store.
	Close() error
}
