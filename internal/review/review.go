// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review reclassifies records that were filed to recent/ for lack
// of confidence. Apply does the filing work; Model is the terminal UI
// that drives it.
package review

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/literature-manager/internal/filing"
	"github.com/pdiddy/literature-manager/internal/index"
	"github.com/pdiddy/literature-manager/internal/journal"
	"github.com/pdiddy/literature-manager/internal/taxonomy"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// ErrUnknownTopic is returned when a chosen slug is not in the taxonomy.
var ErrUnknownTopic = errors.New("unknown topic")

// Catalog receives reclassified records.
type Catalog interface {
	Upsert(rec *types.PaperRecord) error
}

// Reviewer moves reviewed records into by-topic/.
type Reviewer struct {
	Layout   types.Layout
	Index    *index.Store
	Journal  *journal.Journal
	Filing   *filing.Engine
	Taxonomy *taxonomy.Taxonomy
	// Catalog is optional.
	Catalog Catalog
	Now     func() time.Time
}

func (r *Reviewer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Pending returns the records whose file sits in recent/, oldest first.
// Records whose file has disappeared are skipped.
func (r *Reviewer) Pending() ([]*types.PaperRecord, error) {
	recs, err := r.Index.Load()
	if err != nil {
		return nil, err
	}
	recent := filepath.ToSlash(r.Layout.Rel(r.Layout.Recent)) + "/"

	var out []*types.PaperRecord
	for _, rec := range recs {
		if !strings.HasPrefix(filepath.ToSlash(rec.Filepath), recent) {
			continue
		}
		if _, err := os.Stat(r.Layout.Abs(rec.Filepath)); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessedDate.Equal(out[j].ProcessedDate) {
			return out[i].ProcessedDate.Before(out[j].ProcessedDate)
		}
		return out[i].ContentHash < out[j].ContentHash
	})
	return out, nil
}

// Apply files the record under topics (the first is primary, the rest
// get symlinks), updates its Index entry and logs RECLASSIFIED. It
// returns the new root-relative path. A human choice carries full topic
// confidence.
func (r *Reviewer) Apply(rec *types.PaperRecord, topics []string) (string, error) {
	topics = clean(topics)
	if len(topics) == 0 {
		return "", fmt.Errorf("%w: no topic given", ErrUnknownTopic)
	}
	if r.Taxonomy != nil {
		if _, invalid := r.Taxonomy.Validate(topics); len(invalid) > 0 {
			return "", fmt.Errorf("%w: %s", ErrUnknownTopic, strings.Join(invalid, ", "))
		}
	}

	dest := filing.Destination{Primary: filepath.Join(r.Layout.ByTopic, topics[0]), Topics: topics}
	for _, t := range topics[1:] {
		dest.Secondary = append(dest.Secondary, filepath.Join(r.Layout.ByTopic, t))
	}

	source := r.Layout.Abs(rec.Filepath)
	oldRel := rec.Filepath
	final, err := r.Filing.File(source, dest, filepath.Base(source))
	if err != nil && final == "" {
		return "", err
	}
	var reason string
	if err != nil {
		reason = err.Error()
	}
	rel := r.Layout.Rel(final)

	update := func(p *types.PaperRecord) {
		p.Filepath = rel
		p.Topics = topics
		p.TopicConfidence = 1.0
	}
	err = r.Index.Update(func(recs index.Records) error {
		p, ok := recs[rec.ContentHash]
		if !ok {
			return fmt.Errorf("record %s is no longer indexed", rec.ContentHash)
		}
		update(p)
		return nil
	})
	if err != nil {
		return rel, fmt.Errorf("updating index: %w", err)
	}
	update(rec)

	if r.Catalog != nil {
		_ = r.Catalog.Upsert(rec)
	}
	if r.Journal != nil {
		if err := r.Journal.Append(journal.Entry{
			Time:        r.now(),
			Action:      journal.Reclassified,
			Display:     filepath.Base(final),
			Source:      oldRel,
			Destination: rel,
			Topic:       strings.Join(topics, ", "),
			Reason:      reason,
		}); err != nil {
			return rel, err
		}
	}
	return rel, nil
}

// clean lowercases, trims and dedupes slugs, keeping order.
func clean(topics []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range topics {
		for _, part := range strings.FieldsFunc(t, func(r rune) bool { return r == '|' || r == ',' || r == ' ' }) {
			s := strings.ToLower(strings.TrimSpace(part))
			if s != "" && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
