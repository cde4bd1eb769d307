package backends

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned by Stat and Get for keys that have no entry.
	ErrNotFound = errors.New("cache entry not found")
	// ErrConflict is returned by Put when an entry already exists under the key.
	// Entries are immutable; they are never overwritten.
	ErrConflict = errors.New("cache entry already exists")
)

// Entry describes one stored cache archive.
type Entry struct {
	Key     string
	Size    int64
	Created time.Time
}

// Backend is a remote key-value blob store holding cache archives.
//
// Implementations must treat entries as write-once: a Put for a key that is
// already present fails with ErrConflict. The restore and save phases never
// run concurrently against the same cache directory (they hold a lock from
// pkg/locking), but separate CI jobs may use one backend at the same time, so
// Put has to be atomic with respect to other writers.
type Backend interface {
	// Stat returns the entry stored under key, or ErrNotFound.
	Stat(ctx context.Context, key string) (Entry, error)

	// List returns every entry whose key starts with prefix, in any order.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Get opens the archive stored under key, or returns ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores body under key. size is the number of bytes body will yield.
	Put(ctx context.Context, key string, body io.Reader, size int64) error

	// Close performs any cleanup operations needed by the backend.
	Close() error
}

// Resolve finds the entry a restore should use. primary is matched exactly;
// on a miss each prefix is tried in order and the newest entry under the first
// prefix that has any is returned. ok is false when nothing matched, which is
// the normal cold cache result and not an error.
func Resolve(ctx context.Context, b Backend, primary string, prefixes []string) (e Entry, ok bool, err error) {
	e, err = b.Stat(ctx, primary)
	switch {
	case err == nil:
		return e, true, nil
	case !errors.Is(err, ErrNotFound):
		return Entry{}, false, err
	}

	for _, prefix := range prefixes {
		entries, err := b.List(ctx, prefix)
		if err != nil {
			return Entry{}, false, err
		}
		if len(entries) == 0 {
			continue
		}
		return newest(entries), true, nil
	}
	return Entry{}, false, nil
}

func newest(entries []Entry) Entry {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Created.Equal(sorted[j].Created) {
			return sorted[i].Created.After(sorted[j].Created)
		}
		// Unique keys end in a timestamp, so the greater key is the later save.
		return sorted[i].Key > sorted[j].Key
	})
	return sorted[0]
}
