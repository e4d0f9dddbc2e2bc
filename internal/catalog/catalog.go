// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog keeps a SQLite copy of the Index for statistics. The
// JSON Index stays authoritative; the catalog can be rebuilt from it at
// any time.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/literature-manager/pkg/types"
)

// Store manages the catalog database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			hash TEXT PRIMARY KEY,
			filepath TEXT NOT NULL,
			location TEXT NOT NULL,
			title TEXT,
			authors TEXT,
			year INTEGER,
			doi TEXT,
			summary TEXT,
			method TEXT,
			extraction_confidence REAL,
			topic_confidence REAL,
			zotero_key TEXT,
			processed_date TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS paper_topics (
			hash TEXT NOT NULL REFERENCES papers(hash) ON DELETE CASCADE,
			topic TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (hash, topic)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_topic ON paper_topics(topic)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Location names the top-level library directory of a root-relative path
// ("by-topic", "recent", "unknowables", ...).
func Location(rel string) string {
	rel = filepath.ToSlash(rel)
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return ""
}

// Upsert writes rec and replaces its topic rows.
func (s *Store) Upsert(rec *types.PaperRecord) error {
	return s.UpsertContext(context.Background(), rec)
}

// UpsertContext is Upsert with a context.
func (s *Store) UpsertContext(ctx context.Context, rec *types.PaperRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsert(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func upsert(ctx context.Context, tx *sql.Tx, rec *types.PaperRecord) error {
	if rec.ContentHash == "" {
		return fmt.Errorf("record %q has no content hash", rec.Title)
	}
	authorsJSON, _ := json.Marshal(rec.Authors)
	processed := ""
	if !rec.ProcessedDate.IsZero() {
		processed = rec.ProcessedDate.UTC().Format(time.RFC3339)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO papers (hash, filepath, location, title, authors, year, doi, summary, method,
			extraction_confidence, topic_confidence, zotero_key, processed_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			filepath=excluded.filepath, location=excluded.location, title=excluded.title,
			authors=excluded.authors, year=excluded.year, doi=excluded.doi,
			summary=excluded.summary, method=excluded.method,
			extraction_confidence=excluded.extraction_confidence,
			topic_confidence=excluded.topic_confidence, zotero_key=excluded.zotero_key,
			processed_date=excluded.processed_date`,
		rec.ContentHash, rec.Filepath, Location(rec.Filepath), rec.Title, string(authorsJSON),
		rec.Year, rec.DOI, rec.Summary, string(rec.ExtractionMethod),
		rec.ExtractionConfidence, rec.TopicConfidence, rec.ZoteroKey, processed,
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", rec.ContentHash, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM paper_topics WHERE hash = ?`, rec.ContentHash); err != nil {
		return fmt.Errorf("clearing topics: %w", err)
	}
	for i, t := range rec.Topics {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO paper_topics (hash, topic, position) VALUES (?, ?, ?)`,
			rec.ContentHash, t, i,
		); err != nil {
			return fmt.Errorf("inserting topic %s: %w", t, err)
		}
	}
	return nil
}

// Rebuild replaces the catalog contents with recs in one transaction.
func (s *Store) Rebuild(ctx context.Context, recs map[string]*types.PaperRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM paper_topics`, `DELETE FROM papers`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("clearing catalog: %w", err)
		}
	}
	n := 0
	for hash, rec := range recs {
		if rec.ContentHash == "" {
			rec.ContentHash = hash
		}
		if err := upsert(ctx, tx, rec); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return n, nil
}

// Count is one row of a grouped count.
type Count struct {
	Key   string `json:"key" yaml:"key"`
	Count int    `json:"count" yaml:"count"`
}

// Stats summarizes the library.
type Stats struct {
	Total      int     `json:"total" yaml:"total"`
	ByTopic    []Count `json:"by_topic" yaml:"by_topic"`
	ByYear     []Count `json:"by_year" yaml:"by_year"`
	ByMethod   []Count `json:"by_method" yaml:"by_method"`
	ByLocation []Count `json:"by_location" yaml:"by_location"`
	WithDOI    int     `json:"with_doi" yaml:"with_doi"`
	Mirrored   int     `json:"mirrored" yaml:"mirrored"`
}

// Stats computes totals and grouped counts. Topic counts include
// secondary topics; year counts are most recent first.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*),
			coalesce(sum(CASE WHEN doi != '' THEN 1 ELSE 0 END), 0),
			coalesce(sum(CASE WHEN zotero_key != '' THEN 1 ELSE 0 END), 0)
		 FROM papers`,
	).Scan(&st.Total, &st.WithDOI, &st.Mirrored); err != nil {
		return st, fmt.Errorf("counting papers: %w", err)
	}

	var err error
	if st.ByTopic, err = s.counts(ctx,
		`SELECT topic, count(*) FROM paper_topics GROUP BY topic ORDER BY count(*) DESC, topic`); err != nil {
		return st, err
	}
	if st.ByYear, err = s.counts(ctx,
		`SELECT CAST(year AS TEXT), count(*) FROM papers WHERE year > 0 GROUP BY year ORDER BY year DESC`); err != nil {
		return st, err
	}
	if st.ByMethod, err = s.counts(ctx,
		`SELECT method, count(*) FROM papers GROUP BY method ORDER BY count(*) DESC, method`); err != nil {
		return st, err
	}
	if st.ByLocation, err = s.counts(ctx,
		`SELECT location, count(*) FROM papers GROUP BY location ORDER BY location`); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Store) counts(ctx context.Context, query string) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InLocation returns the hashes of papers under the given top-level
// directory, ordered by processed date.
func (s *Store) InLocation(ctx context.Context, location string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM papers WHERE location = ? ORDER BY processed_date, hash`, location)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", location, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
