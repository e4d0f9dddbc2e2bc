// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedupe detects records already present in the Index, first by
// exact DOI and then by fuzzy title similarity.
package dedupe

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/pdiddy/literature-manager/internal/doi"
	"github.com/pdiddy/literature-manager/internal/naming"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// DefaultThreshold is the title similarity at or above which two titles
// are treated as the same paper.
const DefaultThreshold = 0.90

// Method names how a duplicate was recognised.
type Method string

const (
	ByDOI   Method = "doi"
	ByTitle Method = "title"
)

// Match describes an existing Index entry that duplicates a candidate.
type Match struct {
	Method      Method
	ContentHash string
	Filepath    string
	// Score is the title similarity; 1 for DOI matches.
	Score float64
}

// Find checks rec against records (keyed by content hash). An exact DOI
// match wins outright; otherwise the most similar title at or above
// threshold is returned. Nil means no duplicate.
func Find(rec *types.PaperRecord, records map[string]*types.PaperRecord, threshold float64) *Match {
	if m := FindByDOI(rec.DOI, records); m != nil {
		return m
	}
	return FindByTitle(rec.Title, records, threshold)
}

// FindByDOI returns the entry whose normalized DOI equals d.
func FindByDOI(d string, records map[string]*types.PaperRecord) *Match {
	d = doi.Normalize(d)
	if d == "" {
		return nil
	}
	for _, hash := range sortedKeys(records) {
		r := records[hash]
		if r.DOI != "" && doi.Normalize(r.DOI) == d {
			return &Match{Method: ByDOI, ContentHash: hash, Filepath: r.Filepath, Score: 1}
		}
	}
	return nil
}

// FindByTitle returns the entry with the most similar title, provided the
// similarity reaches threshold.
func FindByTitle(title string, records map[string]*types.PaperRecord, threshold float64) *Match {
	title = normalizeTitle(title)
	if title == "" {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var best *Match
	for _, hash := range sortedKeys(records) {
		r := records[hash]
		existing := normalizeTitle(r.Title)
		if existing == "" {
			continue
		}
		score := Similarity(title, existing)
		if score >= threshold && (best == nil || score > best.Score) {
			best = &Match{Method: ByTitle, ContentHash: hash, Filepath: r.Filepath, Score: score}
		}
	}
	return best
}

// Similarity is the character-sequence ratio 2*M/T of a and b after
// lowercasing, where M counts matched characters and T is the combined
// length.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(runes(strings.ToLower(a)), runes(strings.ToLower(b)))
	return m.Ratio()
}

func normalizeTitle(s string) string {
	return strings.ToLower(naming.NormalizeSpace(s))
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func sortedKeys(records map[string]*types.PaperRecord) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
