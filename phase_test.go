package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/richardartoul/buildcache-action/backends"
	"github.com/richardartoul/buildcache-action/pkg/ghactions"
	"github.com/richardartoul/buildcache-action/pkg/install"
	"github.com/richardartoul/buildcache-action/pkg/locking"
	"github.com/richardartoul/buildcache-action/pkg/stats"
)

// testLogger renders records the way the runner shows them.
func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(ghactions.NewHandler(&buf, slog.LevelInfo)), &buf
}

func logLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

type fakeInstaller struct {
	res   install.Result
	err   error
	calls int
}

func (f *fakeInstaller) Install(ctx context.Context) (install.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeEnv struct {
	vars  map[string]string
	paths []string
	err   error
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{vars: make(map[string]string)}
}

func (f *fakeEnv) ExportVariable(name, value string) error {
	if f.err != nil {
		return f.err
	}
	f.vars[name] = value
	return nil
}

func (f *fakeEnv) AddPath(dir string) error {
	f.paths = append(f.paths, dir)
	return nil
}

type fakeProbe struct {
	stats    stats.Stats
	err      error
	calls    []string
	zeroErr  error
	printErr error
}

func (f *fakeProbe) ReadStats(ctx context.Context) (stats.Stats, error) {
	f.calls = append(f.calls, "-s")
	return f.stats, f.err
}

func (f *fakeProbe) ZeroStats(ctx context.Context) error {
	f.calls = append(f.calls, "-z")
	return f.zeroErr
}

func (f *fakeProbe) PrintConfig(ctx context.Context) error {
	f.calls = append(f.calls, "-c")
	return f.printErr
}

// failingStore is a CacheStore whose backend is down.
type failingStore struct {
	err error
}

func (f failingStore) Restore(ctx context.Context, paths []string, primaryKey string, fallbackKeys []string) (string, bool, error) {
	return "", false, f.err
}

func (f failingStore) Save(ctx context.Context, paths []string, key string) error {
	return f.err
}

func (f failingStore) Close() error {
	return nil
}

// fakeClock returns successive milliseconds from a fixed start.
func fakeClock() func() time.Time {
	t := time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newMemoryStore(t *testing.T) (*cacheStore, *backends.Memory) {
	t.Helper()
	mem := backends.NewMemory()
	return newCacheStore(mem, locking.NewMemLock(), t.TempDir(), discardLogger()), mem
}

// writeCacheFile puts a file into a buildcache directory.
func writeCacheFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

var errBackendDown = errors.New("connection refused")

type bytesLog struct {
	buf *bytes.Buffer
}

func (l *bytesLog) lines() []string {
	if l.buf.Len() == 0 {
		return nil
	}
	return logLines(l.buf)
}

// stoppedClock always returns the same instant.
func stoppedClock() func() time.Time {
	t := time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC)
	return func() time.Time { return t }
}
