// Package archive packs directories into a zstd compressed tar stream and
// unpacks them again.
//
// Entries are named "<index>/<path relative to paths[index]>", so an archive
// can be unpacked into a different set of directories than it was packed from,
// as long as the caller passes them in the same order.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Pack writes the contents of paths to w. Paths that do not exist are skipped.
// Regular files, directories and symlinks are archived; other file types are
// ignored.
func Pack(w io.Writer, paths []string) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(enc)

	for i, root := range paths {
		if _, err := os.Lstat(root); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := packDir(tw, strconv.Itoa(i), root); err != nil {
			enc.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return nil
}

func packDir(tw *tar.Writer, prefix, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		switch {
		case info.Mode().IsRegular(), info.IsDir():
		case info.Mode()&fs.ModeSymlink != 0:
			if link, err = os.Readlink(p); err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", p, err)
			}
		default:
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("failed to build header for %s: %w", p, err)
		}
		hdr.Name = path.Join(prefix, filepath.ToSlash(rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uname, hdr.Gname = "", ""

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("failed to archive %s: %w", p, err)
		}
		return nil
	})
}

// Unpack extracts an archive produced by Pack into paths. Existing files are
// overwritten. Entries that would land outside their destination directory
// are rejected.
func Unpack(r io.Reader, paths []string) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	roots := make(map[int]*os.Root)
	defer func() {
		for _, root := range roots {
			root.Close()
		}
	}()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		idx, rel, err := splitName(hdr.Name, len(paths))
		if err != nil {
			return err
		}
		root, ok := roots[idx]
		if !ok {
			if err := os.MkdirAll(paths[idx], 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", paths[idx], err)
			}
			if root, err = os.OpenRoot(paths[idx]); err != nil {
				return err
			}
			roots[idx] = root
		}
		if rel == "." {
			continue
		}
		if err := extract(root, rel, hdr, tr); err != nil {
			return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
		}
	}
}

// splitName maps an entry name to the destination index and a cleaned
// relative path.
func splitName(name string, n int) (int, string, error) {
	head, rest, _ := strings.Cut(strings.TrimSuffix(name, "/"), "/")
	idx, err := strconv.Atoi(head)
	if err != nil || idx < 0 || idx >= n {
		return 0, "", fmt.Errorf("archive entry %q does not map to one of %d paths", name, n)
	}
	rel := path.Clean("/" + rest)[1:]
	if rel == "" {
		rel = "."
	}
	if rest != "" && path.Clean(rest) != rel {
		return 0, "", fmt.Errorf("archive entry %q escapes its destination", name)
	}
	return idx, filepath.FromSlash(rel), nil
}

func extract(root *os.Root, rel string, hdr *tar.Header, body io.Reader) error {
	mode := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return root.MkdirAll(rel, mode|0o700)
	case tar.TypeReg:
		if err := root.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
			return err
		}
		f, err := root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o600)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, body)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		return root.Chtimes(rel, hdr.ModTime, hdr.ModTime)
	case tar.TypeSymlink:
		if err := root.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
			return err
		}
		if err := root.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return root.Symlink(hdr.Linkname, rel)
	default:
		return nil
	}
}
