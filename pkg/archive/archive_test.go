package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"c/d3/f1a2.o":     "object one",
		"c/9a/77aa.o":     "object two",
		"config.json":     `{"max_cache_size": 500000000}`,
		"deep/a/b/c/leaf": "leaf",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))
	mtime := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "config.json"), mtime, mtime))

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, []string{src}))

	dst := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, Unpack(&buf, []string{dst}))

	for name, want := range map[string]string{
		"c/d3/f1a2.o":     "object one",
		"c/9a/77aa.o":     "object two",
		"config.json":     `{"max_cache_size": 500000000}`,
		"deep/a/b/c/leaf": "leaf",
	} {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}

	info, err := os.Stat(filepath.Join(dst, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Stat(filepath.Join(dst, "config.json"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "mtime %v", info.ModTime())
}

func TestPackMultiplePaths(t *testing.T) {
	t.Parallel()

	a, b := t.TempDir(), t.TempDir()
	writeTree(t, a, map[string]string{"same.txt": "from a"})
	writeTree(t, b, map[string]string{"same.txt": "from b"})

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, []string{a, filepath.Join(t.TempDir(), "missing"), b}))

	base := t.TempDir()
	dsts := []string{filepath.Join(base, "a"), filepath.Join(base, "missing"), filepath.Join(base, "b")}
	require.NoError(t, Unpack(&buf, dsts))

	got, err := os.ReadFile(filepath.Join(dsts[0], "same.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from a", string(got))
	got, err = os.ReadFile(filepath.Join(dsts[2], "same.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from b", string(got))
	assert.NoDirExists(t, dsts[1])
}

func TestUnpackOverwrites(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"f": "new"})
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, []string{src}))

	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"f": "old content that is longer", "other": "kept"})
	require.NoError(t, Unpack(&buf, []string{dst}))

	got, err := os.ReadFile(filepath.Join(dst, "f"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.FileExists(t, filepath.Join(dst, "other"))
}

func TestPackSymlink(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	src := t.TempDir()
	writeTree(t, src, map[string]string{"target.txt": "t"})
	require.NoError(t, os.Symlink("target.txt", filepath.Join(src, "link")))

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, []string{src}))
	dst := t.TempDir()
	require.NoError(t, Unpack(&buf, []string{dst}))

	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "target.txt", target)
}

func craft(t *testing.T, hdrs ...*tar.Header) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	for _, h := range hdrs {
		require.NoError(t, tw.WriteHeader(h))
		if h.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte("x"), int(h.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
	return &buf
}

func TestUnpackRejectsTraversal(t *testing.T) {
	t.Parallel()

	buf := craft(t, &tar.Header{Name: "0/../../evil", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1})
	dst := t.TempDir()
	err := Unpack(buf, []string{dst})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dst), "evil"))
}

func TestUnpackRejectsUnknownIndex(t *testing.T) {
	t.Parallel()

	buf := craft(t, &tar.Header{Name: "3/file", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1})
	err := Unpack(buf, []string{t.TempDir()})
	require.Error(t, err)
}

func TestUnpackRejectsGarbage(t *testing.T) {
	t.Parallel()

	err := Unpack(bytes.NewReader([]byte("definitely not zstd")), []string{t.TempDir()})
	require.Error(t, err)
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		idx     int
		rel     string
		wantErr bool
	}{
		{name: "0/", idx: 0, rel: "."},
		{name: "1/a/b.o", idx: 1, rel: filepath.FromSlash("a/b.o")},
		{name: "0/a//b/", idx: 0, rel: filepath.FromSlash("a/b")},
		{name: "0/../x", wantErr: true},
		{name: "x/file", wantErr: true},
		{name: "-1/file", wantErr: true},
		{name: "2/file", wantErr: true},
	}
	for _, tt := range tests {
		idx, rel, err := splitName(tt.name, 2)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.idx, idx, tt.name)
		assert.Equal(t, tt.rel, rel, tt.name)
	}
}
