// Roomwise - Meeting Room Booking Storage Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwise

package backup

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// maxEntrySize caps a single extracted archive entry.
const maxEntrySize = 8 << 30

// archiveWriters holds the writer chain for data.tar.gz.
type archiveWriters struct {
	tarWriter *tar.Writer
	closers   []io.Closer
}

// Close closes all writers in reverse order, returning the first error.
func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func setupArchiveWriters(path string) (*archiveWriters, error) {
	out, err := os.Create(path) //nolint:gosec // path is inside the backup directory
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	gz, err := gzip.NewWriterLevel(out, gzip.DefaultCompression)
	if err != nil {
		out.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)
	return &archiveWriters{tarWriter: tw, closers: []io.Closer{out, gz, tw}}, nil
}

// writeArchive stores files in a gzip-compressed tar, hashing each one.
func writeArchive(ctx context.Context, root string, files []string, path string) (entries []FileEntry, err error) {
	aw, err := setupArchiveWriters(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := aw.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to finish archive: %w", closeErr)
		}
	}()

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := addFileToArchive(aw.tarWriter, filepath.Join(root, rel), filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func addFileToArchive(tw *tar.Writer, src, name string) (FileEntry, error) {
	f, err := os.Open(src) //nolint:gosec // src comes from walking the storage root
	if err != nil {
		return FileEntry{}, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("failed to stat %s: %w", src, err)
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return FileEntry{}, fmt.Errorf("failed to create tar header for %s: %w", src, err)
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return FileEntry{}, fmt.Errorf("failed to write tar header for %s: %w", src, err)
	}

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tw, hasher), f)
	if err != nil {
		return FileEntry{}, fmt.Errorf("failed to copy %s to archive: %w", src, err)
	}
	return FileEntry{
		Path:     name,
		Size:     n,
		ModTime:  info.ModTime().UTC(),
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// copyTree copies files under dest, hashing each one.
func copyTree(ctx context.Context, root string, files []string, dest string) ([]FileEntry, error) {
	entries := make([]FileEntry, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := filepath.Join(root, rel)
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", src, err)
		}
		n, sum, err := copyFile(src, filepath.Join(dest, rel))
		if err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", src, err)
		}
		entries = append(entries, FileEntry{
			Path:     filepath.ToSlash(rel),
			Size:     n,
			ModTime:  info.ModTime().UTC(),
			Checksum: sum,
		})
	}
	return entries, nil
}

func writeSnapshot(dir string, snap Snapshot) (FileEntry, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return FileEntry{}, err
	}
	path := filepath.Join(dir, snap.Name)
	f, err := os.Create(path) //nolint:gosec // path is inside the backup directory
	if err != nil {
		return FileEntry{}, fmt.Errorf("failed to create snapshot %s: %w", snap.Name, err)
	}
	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(f, hasher)}
	if err := snap.Save(counter); err != nil {
		f.Close() //nolint:errcheck // already failing
		return FileEntry{}, fmt.Errorf("failed to save snapshot %s: %w", snap.Name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck // already failing
		return FileEntry{}, err
	}
	if err := f.Close(); err != nil {
		return FileEntry{}, err
	}
	return FileEntry{Path: snap.Name, Size: counter.n, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// copyFile copies src to dst through a temp file and returns the size and
// SHA-256 of what was written.
func copyFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src) //nolint:gosec // paths are validated by callers
	if err != nil {
		return 0, "", err
	}
	defer in.Close() //nolint:errcheck // read-only

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, "", err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp) //nolint:gosec // paths are validated by callers
	if err != nil {
		return 0, "", err
	}
	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp) //nolint:errcheck // best effort cleanup
		return 0, "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp) //nolint:errcheck // best effort cleanup
		return 0, "", err
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path) //nolint:gosec // paths are validated by callers
	if err != nil {
		return 0, "", err
	}
	defer f.Close() //nolint:errcheck // read-only

	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}

// extractArchive unpacks data.tar.gz into dest, refusing entries that
// would land outside it.
func extractArchive(path, dest string) error {
	f, err := os.Open(path) //nolint:gosec // path is inside a validated backup
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChecksumMismatch, err)
	}
	defer gz.Close() //nolint:errcheck // read-only

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read archive: %v", ErrChecksumMismatch, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		rel := filepath.FromSlash(header.Name)
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("archive entry %q escapes the restore directory", header.Name)
		}
		if header.Size > maxEntrySize {
			return fmt.Errorf("archive entry %q too large: %d bytes", header.Name, header.Size)
		}
		if err := extractFile(tr, filepath.Join(dest, rel), header.Size); err != nil {
			return fmt.Errorf("failed to extract %s: %w", header.Name, err)
		}
	}
}

func extractFile(r io.Reader, dst string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(dst) //nolint:gosec // dst is checked with filepath.IsLocal
	if err != nil {
		return err
	}
	_, err = io.Copy(out, io.LimitReader(r, size+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst) //nolint:errcheck // best effort cleanup
	}
	return err
}
