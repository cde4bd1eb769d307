package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardartoul/buildcache-action/pkg/config"
	"github.com/richardartoul/buildcache-action/pkg/install"
	"github.com/richardartoul/buildcache-action/pkg/keys"
)

type restoreFixture struct {
	phase     *restorePhase
	installer *fakeInstaller
	env       *fakeEnv
	probe     *fakeProbe
	logs      *bytesLog
	installed string
}

func newRestoreFixture(t *testing.T, store CacheStore) *restoreFixture {
	t.Helper()
	installDir := t.TempDir()
	logger, buf := testLogger()

	f := &restoreFixture{
		installer: &fakeInstaller{res: install.Result{
			BinDir: filepath.Join(installDir, "buildcache", "bin"),
			Binary: filepath.Join(installDir, "buildcache", "bin", "buildcache"),
		}},
		env:       newFakeEnv(),
		probe:     &fakeProbe{},
		logs:      &bytesLog{buf},
		installed: installDir,
	}
	cfg := config.Default(func(string) (string, bool) { return "", false })
	cfg.InstallDir = installDir
	cfg.CacheKey = "linux-clang"

	f.phase = &restorePhase{
		cfg:       cfg,
		installer: f.installer,
		env:       f.env,
		newProbe: func(binary string) Prober {
			assert.Equal(t, f.installer.res.Binary, binary)
			return f.probe
		},
		store:  store,
		keys:   keys.Deriver{Now: fakeClock()},
		logger: logger,
	}
	return f
}

func TestRestoreColdCache(t *testing.T) {
	store, _ := newMemoryStore(t)
	f := newRestoreFixture(t, store)
	logs := f.logs

	require.NoError(t, f.phase.Run(context.Background()))

	assert.Equal(t, []string{
		"buildcache: no cache for key buildcache-linux-clang-2024-03-09T17:04:05.001Z or buildcache-linux-clang - cold cache or invalid key",
	}, logs.lines())
	assert.Equal(t, []string{"-c", "-s"}, f.probe.calls)
	assert.Equal(t, []string{f.installer.res.BinDir}, f.env.paths)

	cacheDir := filepath.Join(f.installed, ".buildcache")
	assert.Equal(t, map[string]string{
		"BUILDCACHE_DIR":            cacheDir,
		"BUILDCACHE_MAX_CACHE_SIZE": "500000000",
		"BUILDCACHE_DEBUG":          "2",
		"BUILDCACHE_LOG_FILE":       filepath.Join(cacheDir, "buildcache.log"),
	}, f.env.vars)

	info, err := os.Stat(cacheDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRestoreHit(t *testing.T) {
	store, _ := newMemoryStore(t)
	src := t.TempDir()
	writeCacheFile(t, src, "ab/cd.o", "cached")
	require.NoError(t, store.Save(context.Background(), []string{src}, "buildcache-linux-clang-2024-03-01T08:00:00.000Z"))

	f := newRestoreFixture(t, store)
	logs := f.logs
	require.NoError(t, f.phase.Run(context.Background()))

	assert.Equal(t, []string{
		`buildcache: restored from cache key "buildcache-linux-clang-2024-03-01T08:00:00.000Z".`,
	}, logs.lines())

	got, err := os.ReadFile(filepath.Join(f.installed, ".buildcache", "ab", "cd.o"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(got))
}

func TestRestoreIgnoresOtherTokens(t *testing.T) {
	store, _ := newMemoryStore(t)
	src := t.TempDir()
	writeCacheFile(t, src, "a.o", "other")
	require.NoError(t, store.Save(context.Background(), []string{src}, "buildcache-windows-msvc-2024-03-01T08:00:00.000Z"))

	f := newRestoreFixture(t, store)
	logs := f.logs
	require.NoError(t, f.phase.Run(context.Background()))
	assert.Contains(t, logs.lines()[0], "cold cache or invalid key")
}

func TestRestoreBackendDownIsWarning(t *testing.T) {
	f := newRestoreFixture(t, failingStore{err: errBackendDown})
	logs := f.logs

	require.NoError(t, f.phase.Run(context.Background()))
	assert.Equal(t, []string{"::warning::buildcache: caching not working: connection refused"}, logs.lines())
	assert.Equal(t, []string{"-c", "-s"}, f.probe.calls)
}

func TestRestoreWithoutStore(t *testing.T) {
	f := newRestoreFixture(t, nil)

	require.NoError(t, f.phase.Run(context.Background()))
	assert.Empty(t, f.logs.lines())
	assert.Equal(t, []string{"-c", "-s"}, f.probe.calls)
	assert.Equal(t, filepath.Join(f.installed, ".buildcache"), f.env.vars["BUILDCACHE_DIR"])
	assert.Equal(t, []string{f.installer.res.BinDir}, f.env.paths)
}

func TestRestoreZeroStats(t *testing.T) {
	store, _ := newMemoryStore(t)
	f := newRestoreFixture(t, store)
	f.phase.cfg.ZeroStats = true
	logs := f.logs

	require.NoError(t, f.phase.Run(context.Background()))
	assert.Equal(t, []string{"-c", "-s", "-z"}, f.probe.calls)
	assert.Equal(t, "buildcache: zeroing stats - stats display in cleanup task will be for this run only.", logs.lines()[1])
}

func TestRestoreKeepsEnvironmentOverrides(t *testing.T) {
	store, _ := newMemoryStore(t)
	f := newRestoreFixture(t, store)
	custom := filepath.Join(t.TempDir(), "objs")
	f.phase.cfg.CacheDir = custom
	f.phase.cfg.MaxCacheSize = "1000"
	f.phase.cfg.LogFile = "/var/log/buildcache.log"

	require.NoError(t, f.phase.Run(context.Background()))
	assert.Equal(t, custom, f.env.vars["BUILDCACHE_DIR"])
	assert.Equal(t, "1000", f.env.vars["BUILDCACHE_MAX_CACHE_SIZE"])
	assert.Equal(t, "/var/log/buildcache.log", f.env.vars["BUILDCACHE_LOG_FILE"])
}

func TestRestoreFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *restoreFixture)
		want  string
	}{
		{
			name:  "install",
			setup: func(f *restoreFixture) { f.installer.err = errors.New("unable to find a buildcache release with tag 'v0'") },
			want:  "::error::buildcache: failure during restore: unable to find a buildcache release with tag 'v0'",
		},
		{
			name:  "configure",
			setup: func(f *restoreFixture) { f.env.err = errors.New("GITHUB_ENV is read-only") },
			want:  "::error::buildcache: failure during restore: GITHUB_ENV is read-only",
		},
		{
			name:  "missing install dir",
			setup: func(f *restoreFixture) { f.phase.cfg.InstallDir = "" },
			want:  "::error::buildcache: failure during restore: unable to determine the install directory, set the install_dir input or GITHUB_WORKSPACE: missing required configuration",
		},
		{
			name:  "print config",
			setup: func(f *restoreFixture) { f.probe.printErr = errors.New("exec: buildcache: not found") },
			want:  "::error::buildcache: failure during restore: exec: buildcache: not found",
		},
		{
			name:  "stats",
			setup: func(f *restoreFixture) { f.probe.err = errors.New("exit status 1") },
			want:  "::error::buildcache: failure during restore: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newMemoryStore(t)
			f := newRestoreFixture(t, store)
			tt.setup(f)
			logs := f.logs

			err := f.phase.Run(context.Background())
			require.Error(t, err)
			lines := logs.lines()
			assert.Equal(t, tt.want, lines[len(lines)-1])
		})
	}
}
