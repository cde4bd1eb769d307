package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/richardartoul/buildcache-action/backends"
	"github.com/richardartoul/buildcache-action/pkg/archive"
	"github.com/richardartoul/buildcache-action/pkg/config"
	"github.com/richardartoul/buildcache-action/pkg/locking"
)

// cacheStore implements CacheStore on top of a Backend, storing each entry as
// one compressed archive.
type cacheStore struct {
	backend backends.Backend
	locks   locking.Group
	tmpDir  string
	logger  *slog.Logger
}

func newCacheStore(backend backends.Backend, locks locking.Group, tmpDir string, logger *slog.Logger) *cacheStore {
	return &cacheStore{
		backend: backend,
		locks:   locks,
		tmpDir:  tmpDir,
		logger:  logger,
	}
}

func (s *cacheStore) Restore(ctx context.Context, paths []string, primaryKey string, fallbackKeys []string) (string, bool, error) {
	var (
		matched string
		ok      bool
	)
	err := s.locks.DoWithLock(lockKey(paths), func() error {
		entry, found, err := backends.Resolve(ctx, s.backend, primaryKey, fallbackKeys)
		if err != nil {
			return fmt.Errorf("failed to look up cache entry: %w", err)
		}
		if !found {
			return nil
		}

		body, err := s.backend.Get(ctx, entry.Key)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", entry.Key, err)
		}
		defer body.Close()

		if err := archive.Unpack(body, paths); err != nil {
			return fmt.Errorf("failed to unpack %s: %w", entry.Key, err)
		}
		s.logger.Debug("restored cache entry", "key", entry.Key, "size", entry.Size, "created", entry.Created)
		matched, ok = entry.Key, true
		return nil
	})
	return matched, ok, err
}

func (s *cacheStore) Save(ctx context.Context, paths []string, key string) error {
	return s.locks.DoWithLock(lockKey(paths), func() error {
		// The backends need the size up front, so pack to a temp file first.
		tmp, err := os.CreateTemp(s.tmpDir, "buildcache-*.tar.zst")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()

		if err := archive.Pack(tmp, paths); err != nil {
			return fmt.Errorf("failed to pack cache: %w", err)
		}
		size, err := tmp.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("failed to size archive: %w", err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind archive: %w", err)
		}

		if err := s.backend.Put(ctx, key, tmp, size); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		s.logger.Debug("saved cache entry", "key", key, "size", size)
		return nil
	})
}

func (s *cacheStore) Close() error {
	return s.backend.Close()
}

func lockKey(paths []string) string {
	return strings.Join(paths, string(os.PathListSeparator))
}

// openBackend connects to the backend cfg selects.
func openBackend(ctx context.Context, cfg config.BackendConfig) (backends.Backend, error) {
	switch cfg.Kind {
	case config.BackendDisk:
		d, err := backends.NewDisk(cfg.Disk.Dir)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.BackendS3:
		b, err := backends.NewS3(ctx, backends.S3Config{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Prefix:   cfg.S3.Prefix,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendRedis:
		r, err := backends.NewRedis(backends.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
}
