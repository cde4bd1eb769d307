package locking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a Group implementation backed by flock(2) style file locks, so
// it excludes other processes on the same machine, including a second job
// sharing the runner.
//
// Lock files live in dir rather than next to the key, because the key is
// usually the cache directory and anything written inside it would end up in
// the archive.
type FileLock struct {
	dir string
}

// NewFileLock creates a FileLock that keeps its lock files in dir.
func NewFileLock(dir string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{dir: dir}, nil
}

func (l *FileLock) DoWithLock(key string, fn func() error) error {
	fl := flock.New(l.lockPath(key))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer fl.Unlock()
	return fn()
}

func (l *FileLock) lockPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(l.dir, "buildcache-"+hex.EncodeToString(sum[:8])+".lock")
}
