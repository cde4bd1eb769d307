package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// localCache is the directory on the runner where buildcache keeps its
// objects, plus the log file buildcache writes while the job runs.
type localCache struct {
	dir     string // Absolute path to cache directory
	logFile string // Absolute path to buildcache log
	logger  *slog.Logger
}

// newLocalCache creates the cache directory if needed. logFile may be relative,
// in which case it is resolved against cacheDir.
func newLocalCache(cacheDir, logFile string, logger *slog.Logger) (*localCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Convert to absolute path once at initialization so the exported
	// variables stay valid when later steps change directory.
	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !filepath.IsAbs(logFile) {
		logFile = filepath.Join(absCacheDir, logFile)
	}

	return &localCache{
		dir:     absCacheDir,
		logFile: logFile,
		logger:  logger,
	}, nil
}

// paths returns the directories to restore into and save from.
func (lc *localCache) paths() []string {
	return []string{lc.dir}
}

// removeLog deletes the log file so it doesn't end up in the saved archive.
// A log that was never written is not an error.
func (lc *localCache) removeLog() error {
	err := os.Remove(lc.logFile)
	if errors.Is(err, fs.ErrNotExist) {
		lc.logger.Debug("no buildcache log to remove", "path", lc.logFile)
		return nil
	}
	return err
}
