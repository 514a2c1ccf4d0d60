// Package fsio provides the atomic-write primitive every durable component
// (pkg/eventstore, pkg/snapshot, pkg/legacy) builds on: write to a sibling
// temp file, fsync it, then rename into place. The rename target and the
// temp file must share a directory so the rename is same-filesystem and
// therefore atomic.
package fsio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// WriteFileAtomic writes data to path by first writing to a sibling
// uuid-suffixed temp file, fsyncing it, then renaming it over path. On
// success the rename guarantees a reader never observes a
// partially-written file at path. The temp name carries a random
// correlation id rather than a fixed ".tmp" suffix so two writers racing
// on the same path (a lock held elsewhere failing to exclude one of them)
// never clobber each other's in-flight temp file.
//
// fs is an afero.Fs so callers can substitute afero.NewMemMapFs() in tests;
// production code uses afero.NewOsFs(). Fsync requires the real filesystem —
// on an in-memory fs it is a no-op, which is fine for tests that don't
// exercise crash recovery.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp-" + uuid.NewString()

	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("fsio: create temp file %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		fs.Remove(tmp)
		return fmt.Errorf("fsio: write temp file %s: %w", tmp, err)
	}

	if err := syncFile(fs, f); err != nil {
		f.Close()
		fs.Remove(tmp)
		return fmt.Errorf("fsio: fsync temp file %s: %w", tmp, err)
	}

	if err := f.Close(); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("fsio: close temp file %s: %w", tmp, err)
	}

	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("fsio: rename %s to %s: %w", tmp, path, err)
	}

	return syncDir(fs, dir)
}

// AppendLine opens path in append mode, writes line plus a trailing newline,
// and fsyncs before returning, matching the event log's "write, fsync, update
// counters" append semantics.
func AppendLine(fs afero.Fs, path string, line []byte) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("fsio: open %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("fsio: append to %s: %w", path, err)
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		if _, err := f.Write([]byte("\n")); err != nil {
			return fmt.Errorf("fsio: append newline to %s: %w", path, err)
		}
	}
	return syncFile(fs, f)
}

// syncFile fsyncs f when the underlying filesystem supports it (afero.OsFs
// files sync through *os.File; MemMapFs files implement Sync as a no-op).
func syncFile(fs afero.Fs, f afero.File) error {
	type syncer interface {
		Sync() error
	}
	if s, ok := f.(syncer); ok {
		return s.Sync()
	}
	return nil
}

// syncDir fsyncs the directory entry so the rename itself is durable, not
// just the file contents. Best-effort: many filesystems and all in-memory
// ones don't support opening a directory for Sync, so failures are ignored.
func syncDir(fs afero.Fs, dir string) error {
	osFs, ok := fs.(*afero.OsFs)
	if !ok {
		return nil
	}
	_ = osFs
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
