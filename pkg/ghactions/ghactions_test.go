package ghactions

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput(t *testing.T) {
	t.Parallel()

	lookup := MapLookup(map[string]string{
		"INPUT_CACHE_KEY":      "  linux  ",
		"INPUT_BUILDCACHE TAG": "wrong",
		"INPUT_BUILDCACHE_TAG": "v0.28.9",
	})
	assert.Equal(t, "linux", Input(lookup, "cache_key"))
	assert.Equal(t, "v0.28.9", Input(lookup, "buildcache tag"))
	assert.Equal(t, "", Input(lookup, "missing"))
	assert.Equal(t, "INPUT_SAVE_CACHE", InputEnv("save_cache"))
}

func TestEnv(t *testing.T) {
	t.Parallel()

	lookup := MapLookup(map[string]string{"SET": "v", "EMPTY": ""})
	assert.Equal(t, "v", Env(lookup, "SET", "d"))
	assert.Equal(t, "d", Env(lookup, "EMPTY", "d"))
	assert.Equal(t, "d", Env(lookup, "UNSET", "d"))
}

func TestIsDebug(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDebug(MapLookup(map[string]string{"RUNNER_DEBUG": "1"})))
	assert.False(t, IsDebug(MapLookup(map[string]string{"RUNNER_DEBUG": "0"})))
	assert.False(t, IsDebug(MapLookup(nil)))
}

func fakeRunner(t *testing.T) (*Runner, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{"PATH": "/usr/bin"}
	r := NewRunner(filepath.Join(dir, "env"), filepath.Join(dir, "path"))
	r.setenv = func(k, v string) error {
		env[k] = v
		return nil
	}
	r.getenv = func(k string) string { return env[k] }
	return r, env
}

func TestRunnerExportVariable(t *testing.T) {
	t.Parallel()

	r, env := fakeRunner(t)
	require.NoError(t, r.ExportVariable("BUILDCACHE_DIR", "/work/.buildcache"))
	require.NoError(t, r.ExportVariable("BUILDCACHE_DEBUG", "2"))

	assert.Equal(t, "/work/.buildcache", env["BUILDCACHE_DIR"])
	data, err := os.ReadFile(r.EnvFile)
	require.NoError(t, err)

	re := regexp.MustCompile(`^BUILDCACHE_DIR<<(ghadelimiter_[0-9a-f-]+)\n/work/\.buildcache\n(ghadelimiter_[0-9a-f-]+)\nBUILDCACHE_DEBUG<<(ghadelimiter_[0-9a-f-]+)\n2\n(ghadelimiter_[0-9a-f-]+)\n$`)
	m := re.FindStringSubmatch(string(data))
	require.NotNil(t, m, "env file:\n%s", data)
	assert.Equal(t, m[1], m[2])
	assert.Equal(t, m[3], m[4])
	assert.NotEqual(t, m[1], m[3])
}

func TestRunnerAddPath(t *testing.T) {
	t.Parallel()

	r, env := fakeRunner(t)
	require.NoError(t, r.AddPath("/work/buildcache/bin"))

	assert.Equal(t, "/work/buildcache/bin"+string(os.PathListSeparator)+"/usr/bin", env["PATH"])
	data, err := os.ReadFile(r.PathFile)
	require.NoError(t, err)
	assert.Equal(t, "/work/buildcache/bin\n", string(data))
}

func TestRunnerWithoutFiles(t *testing.T) {
	t.Parallel()

	r, env := fakeRunner(t)
	r.EnvFile, r.PathFile = "", ""
	require.NoError(t, r.ExportVariable("A", "1"))
	require.NoError(t, r.AddPath("/bin2"))
	assert.Equal(t, "1", env["A"])
}

func TestRunnerSetenvError(t *testing.T) {
	t.Parallel()

	r, _ := fakeRunner(t)
	r.setenv = func(string, string) error { return errors.New("bad name") }
	assert.Error(t, r.ExportVariable("=", "x"))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelDebug))

	logger.Info(`buildcache: saving cache with key "buildcache-x".`)
	logger.Warn("buildcache: caching not working: boom\nsecond line")
	logger.Error("buildcache: failure during restore: 100% broken")
	logger.Debug("backend get", "key", "buildcache-x", "size", 12)
	logger.With("phase", "save").WithGroup("s3").Info("put", "bucket", "my bucket")

	assert.Equal(t, `buildcache: saving cache with key "buildcache-x".
::warning::buildcache: caching not working: boom%0Asecond line
::error::buildcache: failure during restore: 100%25 broken
::debug::backend get key=buildcache-x size=12
put phase=save s3.bucket="my bucket"
`, buf.String())
}

func TestHandlerLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Equal(t, "shown\n", buf.String())
}
