// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/literature-manager/internal/filing"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Report summarizes a validation pass.
type Report struct {
	// Scanned counts regular PDFs hashed on disk.
	Scanned int
	// Repaired maps content hash to the new root-relative path.
	Repaired map[string]string
	// Missing lists hashes whose file exists nowhere in the library.
	Missing []string
	// Pruned is true when Missing entries were removed.
	Pruned bool
}

// Validate checks every record's Filepath against the library. Regular
// PDFs under the scanned directories are hashed in parallel; a record
// whose path is gone or is a symlink is repointed at the file with the
// same hash. Files under earlier directories win, so list by-topic/
// before recent/. Missing records are removed when prune is set.
// Validation is housekeeping: when a writer holds the Index it returns
// ErrBusy at once.
func (s *Store) Validate(ctx context.Context, l types.Layout, prune bool, dirs ...string) (Report, error) {
	if !s.mu.TryLock() {
		return Report{}, ErrBusy
	}
	defer s.mu.Unlock()

	recs, err := s.read()
	if err != nil {
		return Report{}, err
	}
	if len(dirs) == 0 {
		dirs = []string{l.ByTopic, l.Recent, l.Unknowables}
	}

	found, scanned, err := hashTree(ctx, dirs)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Scanned: scanned, Repaired: map[string]string{}}
	for _, hash := range recs.Hashes() {
		r := recs[hash]
		if r.Filepath != "" && isRegular(l.Abs(r.Filepath)) {
			continue
		}
		if p, ok := found[hash]; ok {
			rel := l.Rel(p)
			if rel != r.Filepath {
				r.Filepath = rel
				rep.Repaired[hash] = rel
			}
			continue
		}
		rep.Missing = append(rep.Missing, hash)
	}

	if prune && len(rep.Missing) > 0 {
		for _, hash := range rep.Missing {
			delete(recs, hash)
		}
		rep.Pruned = true
	}
	if len(rep.Repaired) == 0 && !rep.Pruned {
		return rep, nil
	}
	return rep, s.write(recs)
}

// hashTree hashes every regular PDF below dirs. For a hash seen more than
// once the path from the earliest directory is kept.
func hashTree(ctx context.Context, dirs []string) (map[string]string, int, error) {
	type file struct {
		path  string
		order int
	}
	var files []file
	for i, dir := range dirs {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if d.Type().IsRegular() && filing.IsPDF(p) {
				files = append(files, file{path: p, order: i})
			}
			return nil
		})
		if err != nil {
			return nil, 0, err
		}
	}

	var (
		mu    sync.Mutex
		best  = map[string]file{}
		g, gc = errgroup.WithContext(ctx)
	)
	g.SetLimit(runtime.NumCPU())
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := gc.Err(); err != nil {
				return err
			}
			hash, err := HashFile(f.path)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if cur, ok := best[hash]; !ok || f.order < cur.order || (f.order == cur.order && f.path < cur.path) {
				best[hash] = f
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	found := make(map[string]string, len(best))
	for hash, f := range best {
		found[hash] = f.path
	}
	return found, len(files), nil
}

func isRegular(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}
