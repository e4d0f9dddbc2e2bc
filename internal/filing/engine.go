// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pdiddy/literature-manager/internal/naming"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Engine performs filing operations under one library layout.
type Engine struct {
	Layout types.Layout
	Now    func() time.Time
}

// NewEngine returns an Engine for l.
func NewEngine(l types.Layout) *Engine {
	return &Engine{Layout: l, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// File moves source into dest.Primary under filename, appending " (n)"
// on collision, and links the result from every secondary directory.
// It returns the final path. A file filed into recent/ has its
// modification time reset so the retention window starts now. Once the
// move has succeeded the final path is returned even when touching or
// linking fails; the error then reports every failed step.
func (e *Engine) File(source string, dest Destination, filename string) (string, error) {
	if err := os.MkdirAll(dest.Primary, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dest.Primary, err)
	}
	target := naming.UniquePath(dest.Primary, filename, e.now())
	if err := Move(source, target); err != nil {
		return "", err
	}

	if !dest.ByTopic() {
		now := e.now()
		if err := os.Chtimes(target, now, now); err != nil {
			return target, fmt.Errorf("touching %s: %w", target, err)
		}
	}

	var errs []error
	for _, dir := range dest.Secondary {
		if err := Link(target, dir); err != nil {
			errs = append(errs, err)
		}
	}
	return target, errors.Join(errs...)
}

// Link creates dir/<base(target)> as a relative symlink to target. An
// existing entry of that name is left untouched.
func Link(target, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	link := filepath.Join(dir, filepath.Base(target))
	if _, err := os.Lstat(link); err == nil {
		return nil
	}

	rel, err := filepath.Rel(dir, target)
	if err != nil {
		rel = target
	}
	if err := os.Symlink(rel, link); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("linking %s: %w", link, err)
	}
	return nil
}

// CopyToRecent places a copy of path in recent/ unless path already lives
// there. It returns the copy's path, or "" when no copy was made.
func (e *Engine) CopyToRecent(path string) (string, error) {
	if sameDir(filepath.Dir(path), e.Layout.Recent) {
		return "", nil
	}
	if err := os.MkdirAll(e.Layout.Recent, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", e.Layout.Recent, err)
	}
	dst := naming.UniquePath(e.Layout.Recent, filepath.Base(path), e.now())
	if err := copyFile(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Quarantine moves source into dir keeping its name (made unique).
func (e *Engine) Quarantine(source, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	target := naming.UniquePath(dir, filepath.Base(source), e.now())
	if err := Move(source, target); err != nil {
		return "", err
	}
	return target, nil
}

// Swept records one file handled by the retention sweep.
type Swept struct {
	From string
	// To is the unknowables/ path, or "" when the file was removed because
	// unknowables/ already held a file of that name.
	To string
}

// SweepRecent moves every regular PDF in recent/ last modified before
// now-retention into unknowables/. Symlinks and non-PDF files are left
// alone. A stale copy whose name is already taken in unknowables/ is
// deleted; a file for which primary reports true (the Index points at it)
// is moved under a unique name instead. primary may be nil.
func (e *Engine) SweepRecent(retention time.Duration, primary func(path string) bool) ([]Swept, error) {
	entries, err := os.ReadDir(e.Layout.Recent)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", e.Layout.Recent, err)
	}

	cutoff := e.now().Add(-retention)
	var swept []Swept
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsPDF(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		from := filepath.Join(e.Layout.Recent, entry.Name())
		to := filepath.Join(e.Layout.Unknowables, entry.Name())
		if _, err := os.Lstat(to); err == nil {
			if primary == nil || !primary(from) {
				if err := os.Remove(from); err != nil {
					return swept, fmt.Errorf("removing %s: %w", from, err)
				}
				swept = append(swept, Swept{From: from})
				continue
			}
		}
		moved, err := e.Quarantine(from, e.Layout.Unknowables)
		if err != nil {
			return swept, err
		}
		swept = append(swept, Swept{From: from, To: moved})
	}
	return swept, nil
}

// InboxFiles lists the PDFs waiting in dir, sorted by name. Hidden and
// partial-download files are skipped.
func InboxFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || !IsPDF(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// IsPDF reports whether name carries a .pdf extension.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Move renames src to dst, copying across filesystems when a plain rename
// is not possible. dst is never overwritten.
func Move(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("moving %s: %w", dst, os.ErrExist)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return nil
}

// copyFile writes src to dst through a temp file and rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".filing-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, in)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("copying %s: %w", src, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func sameDir(a, b string) bool {
	ca, errA := filepath.Abs(a)
	cb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ca == cb
}
