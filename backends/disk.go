package backends

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	diskSuffix    = ".tar.zst"
	diskKeySuffix = ".key"
	diskTmpPrefix = ".tmp-"
)

// Disk is a Backend that stores archives as files in a directory. It suits
// self-hosted runners whose tool cache survives between jobs, and tests.
//
// Files are named by the SHA-256 of their key so that any key fits in a file
// name. Each archive has a sidecar holding the key itself, which List reads.
type Disk struct {
	dir string
}

// NewDisk creates a disk backend rooted at dir, creating it if needed.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("disk backend directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create disk backend directory: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return &Disk{dir: absDir}, nil
}

func (d *Disk) Stat(ctx context.Context, key string) (Entry, error) {
	info, err := os.Stat(d.blobPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Size: info.Size(), Created: info.ModTime()}, nil
}

func (d *Disk) List(ctx context.Context, prefix string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list disk backend: %w", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, diskTmpPrefix) || !strings.HasSuffix(name, diskKeySuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(d.dir, name))
		if err != nil {
			// Removed between ReadDir and ReadFile.
			continue
		}
		key := string(raw)
		if !strings.HasPrefix(key, prefix) || diskName(key)+diskKeySuffix != name {
			continue
		}
		// A sidecar without its archive is a Put that never finished.
		e, err := d.Stat(ctx, key)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *Disk) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(d.blobPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Put writes body to a temp file and hard links it into place. Link fails when
// the destination exists, which makes the write-once check atomic across
// processes sharing the directory. The key sidecar is written before the
// archive appears, so List never sees an archive it can't name.
func (d *Disk) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	tmp, err := os.CreateTemp(d.dir, diskTmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short write for %s: wrote %d of %d bytes", key, n, size)
	}

	if err := d.writeKey(key); err != nil {
		return err
	}
	if err := os.Link(tmpPath, d.blobPath(key)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("put %s: %w", key, ErrConflict)
		}
		return fmt.Errorf("failed to link cache file: %w", err)
	}
	return nil
}

// writeKey atomically replaces the sidecar for key. Concurrent writers of the
// same key write identical content.
func (d *Disk) writeKey(key string) error {
	tmp, err := os.CreateTemp(d.dir, diskTmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.WriteString(tmp, key)
	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close key file: %w", closeErr)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, diskName(key)+diskKeySuffix)); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (d *Disk) Close() error {
	return nil
}

func (d *Disk) blobPath(key string) string {
	return filepath.Join(d.dir, diskName(key)+diskSuffix)
}

func diskName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
