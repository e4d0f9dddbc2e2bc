// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index persists PaperRecords keyed by content hash in a single
// JSON document. The document is rewritten in full on every mutation,
// through a temp file and rename.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pdiddy/literature-manager/internal/doi"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// ErrBusy means another writer held the Index; the mutation was queued
// (Put) or skipped (Update, Validate) and should be retried.
var ErrBusy = errors.New("index busy")

// Records maps content hash to record.
type Records map[string]*types.PaperRecord

// Store is the on-disk Index. A Store serializes writers within a
// process; the watch lock keeps other processes out.
type Store struct {
	path string

	mu sync.RWMutex

	pendingMu sync.Mutex
	pending   []*types.PaperRecord
}

// Open returns a Store backed by path. The file is created on first write.
func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the whole Index. A missing file is an empty Index.
func (s *Store) Load() (Records, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

func (s *Store) read() (Records, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	recs := Records{}
	if len(data) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing index %s: %w", s.path, err)
	}
	for hash, r := range recs {
		if r == nil {
			delete(recs, hash)
			continue
		}
		r.ContentHash = hash
	}
	return recs, nil
}

func (s *Store) write(recs Records) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing index: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Update applies fn to the current records and writes the result. It
// never blocks on another writer: when the Index is held it returns
// ErrBusy without calling fn. Queued Puts are applied first.
func (s *Store) Update(fn func(Records) error) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	recs, err := s.read()
	if err != nil {
		return err
	}
	queued := s.queued()
	for _, r := range queued {
		recs[r.ContentHash] = r
	}
	if err := fn(recs); err != nil {
		return err
	}
	if err := s.write(recs); err != nil {
		return err
	}
	s.ack(len(queued))
	return nil
}

// Put stores rec under rec.ContentHash. When the Index is held by another
// writer the record is queued, ErrBusy is returned, and the record is
// written by the next Flush, Put or Update.
func (s *Store) Put(rec *types.PaperRecord) error {
	if rec.ContentHash == "" {
		return errors.New("index: record has no content hash")
	}
	err := s.Update(func(recs Records) error {
		recs[rec.ContentHash] = rec
		return nil
	})
	if errors.Is(err, ErrBusy) {
		s.pendingMu.Lock()
		s.pending = append(s.pending, rec)
		s.pendingMu.Unlock()
	}
	return err
}

// Pending reports how many queued records await a write.
func (s *Store) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Flush writes queued records. It is a no-op when nothing is queued.
func (s *Store) Flush() error {
	if s.Pending() == 0 {
		return nil
	}
	return s.Update(func(Records) error { return nil })
}

func (s *Store) queued() []*types.PaperRecord {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return append([]*types.PaperRecord(nil), s.pending...)
}

// ack drops the first n queued records once they are on disk.
func (s *Store) ack(n int) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = s.pending[n:]
}

// Get returns the record for hash.
func (s *Store) Get(hash string) (*types.PaperRecord, bool, error) {
	recs, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	r, ok := recs[hash]
	return r, ok, nil
}

// FindByDOI returns the record whose normalized DOI equals d.
func (recs Records) FindByDOI(d string) *types.PaperRecord {
	d = doi.Normalize(d)
	if d == "" {
		return nil
	}
	for _, hash := range recs.Hashes() {
		if r := recs[hash]; doi.Normalize(r.DOI) == d {
			return r
		}
	}
	return nil
}

// FindByPath returns the record whose root-relative Filepath is rel.
func (recs Records) FindByPath(rel string) *types.PaperRecord {
	rel = filepath.ToSlash(rel)
	for _, hash := range recs.Hashes() {
		if r := recs[hash]; filepath.ToSlash(r.Filepath) == rel {
			return r
		}
	}
	return nil
}

// Hashes returns the keys in sorted order.
func (recs Records) Hashes() []string {
	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HashFile returns the SHA-256 hex digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
