package install

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// ImpersonatedCompilers are linked to the buildcache binary so that putting
// its bin directory first on PATH routes compiler invocations through it.
var ImpersonatedCompilers = []string{"clang", "clang++"}

// Result locates an installed binary.
type Result struct {
	BinDir string
	Binary string
}

// Installer downloads a buildcache release and unpacks it into Dir.
type Installer struct {
	Releases   *Releases
	Downloader *Downloader
	// DownloadBase overrides https://github.com for release downloads.
	DownloadBase string
	Dir          string
	Tag          string
	// GOOS selects the release asset. Defaults to runtime.GOOS.
	GOOS string
	// TempDir receives the downloaded archive. Defaults to os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// Install fetches and unpacks the release, returning the bin directory to put
// on PATH and the binary inside it.
func (i *Installer) Install(ctx context.Context) (Result, error) {
	goos := i.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	asset := AssetName(goos)
	i.Logger.Info(fmt.Sprintf("buildcache: release file based on runner os is %s", asset))

	tag, err := i.Releases.ResolveTag(ctx, i.Tag)
	if err != nil {
		return Result{}, err
	}
	url := DownloadURL(i.DownloadBase, tag, asset)
	i.Logger.Info(fmt.Sprintf("buildcache: installing from %s", url))

	tmpDir, err := os.MkdirTemp(i.TempDir, "buildcache-download-")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, asset)
	if err := i.Downloader.Download(ctx, url, archivePath); err != nil {
		return Result{}, err
	}
	i.Logger.Info(fmt.Sprintf("buildcache: download path %s", archivePath))

	if err := Extract(archivePath, i.Dir); err != nil {
		return Result{}, err
	}
	i.Logger.Info(fmt.Sprintf("buildcache: unpacked folder %s", i.Dir))

	res := Result{BinDir: filepath.Join(i.Dir, "buildcache", "bin")}
	res.Binary = filepath.Join(res.BinDir, BinaryName(goos))
	if _, err := os.Stat(res.Binary); err != nil {
		return Result{}, fmt.Errorf("release %s does not contain %s: %w", tag, res.Binary, err)
	}

	// Windows uses a different file name and can't create symlinks without
	// privileges.
	if goos != "windows" {
		if err := linkCompilers(res); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func linkCompilers(res Result) error {
	for _, name := range ImpersonatedCompilers {
		link := filepath.Join(res.BinDir, name)
		if _, err := os.Lstat(link); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.Symlink(res.Binary, link); err != nil {
			return fmt.Errorf("failed to link %s: %w", name, err)
		}
	}
	return nil
}
