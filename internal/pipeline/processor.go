// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one inbox file through readability check,
// duplicate peek, extraction, duplicate detection, naming, destination
// resolution, filing, enrichment, Index update and journal entry. It also
// drives batch runs, the retention sweep and watch mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/literature-manager/internal/dedupe"
	"github.com/pdiddy/literature-manager/internal/extract"
	"github.com/pdiddy/literature-manager/internal/filing"
	"github.com/pdiddy/literature-manager/internal/index"
	"github.com/pdiddy/literature-manager/internal/journal"
	"github.com/pdiddy/literature-manager/internal/naming"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Outcome classifies what happened to one inbox file.
type Outcome string

const (
	// Filed went to by-topic/.
	Filed Outcome = "filed"
	// Review went to recent/ for human eyes.
	Review Outcome = "review"
	// Duplicate was deleted.
	Duplicate Outcome = "duplicate"
	// Unknown went to unknowables/ after every method failed.
	Unknown Outcome = "unknown"
	// Corrupted went to corrupted/.
	Corrupted Outcome = "corrupted"
	// Deferred stayed in the inbox after a transient failure.
	Deferred Outcome = "deferred"
)

// FileResult reports one processed file.
type FileResult struct {
	Source  string
	Outcome Outcome
	// Path is where the file ended up; empty for duplicates and deferrals.
	Path   string
	Record *types.PaperRecord
	Reason string
}

// Mirror copies a filed record to an external reference manager and
// returns the remote item key.
type Mirror interface {
	Upsert(ctx context.Context, rec *types.PaperRecord, path string) (string, error)
}

// Catalog keeps a queryable copy of Index records.
type Catalog interface {
	Upsert(rec *types.PaperRecord) error
}

// Processor runs the per-file pipeline.
type Processor struct {
	Config    types.Config
	Layout    types.Layout
	Extractor *extract.Orchestrator
	Index     *index.Store
	Journal   *journal.Journal
	Filing    *filing.Engine
	Resolver  filing.Resolver

	// Mirror and Catalog are optional.
	Mirror  Mirror
	Catalog Catalog

	DryRun bool
	Out    io.Writer
	Logger *slog.Logger
	Now    func() time.Time
}

// New assembles a Processor for cfg.
func New(cfg types.Config, ex *extract.Orchestrator, out io.Writer, logger *slog.Logger) *Processor {
	l := cfg.Library.Layout()
	return &Processor{
		Config:    cfg,
		Layout:    l,
		Extractor: ex,
		Index:     index.Open(l.Index),
		Journal:   journal.Open(l.Log),
		Filing:    filing.NewEngine(l),
		Resolver:  filing.NewResolver(l, cfg.Filing.ConfidenceThreshold),
		Out:       out,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (p *Processor) out() io.Writer {
	if p.Out == nil {
		return io.Discard
	}
	return p.Out
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// ProcessFile runs the pipeline for one file. Ordinary outcomes
// (duplicate, failed extraction, corruption) are reported in the result;
// an error means the file could not be handled and is still in place.
// Errors wrapping extract.ErrFatal should stop a batch.
func (p *Processor) ProcessFile(ctx context.Context, path string) (FileResult, error) {
	name := filepath.Base(path)
	res := FileResult{Source: path}
	w := p.out()
	log := p.logger().With("file", name)

	fmt.Fprintf(w, "ℹ Processing: %s\n", name)

	if err := p.Index.Flush(); err != nil {
		log.Warn("queued index writes still pending", "error", err)
	}

	hash, err := index.HashFile(path)
	if err != nil {
		return res, err
	}

	if err := p.Extractor.Probe(path); err != nil {
		if !errors.Is(err, pdfdoc.ErrCorrupted) {
			return res, err
		}
		return p.quarantine(res, Corrupted, p.Layout.Corrupted, journal.Corrupted, err.Error())
	}

	recs, err := p.Index.Load()
	if err != nil {
		return res, err
	}
	if existing, ok := recs[hash]; ok {
		return p.discard(res, fmt.Sprintf("identical to %s", existing.Filepath))
	}

	doc := p.Extractor.Open(path)
	if found := p.Extractor.PeekDOI(doc); found != "" {
		if m := dedupe.FindByDOI(found, recs); m != nil {
			return p.discard(res, fmt.Sprintf("DOI %s matches %s", found, m.Filepath))
		}
	}

	fmt.Fprintln(w, "  Extracting metadata...")
	ext, err := p.Extractor.Extract(ctx, doc)
	if err != nil {
		if errors.Is(err, pdfdoc.ErrCorrupted) {
			return p.quarantine(res, Corrupted, p.Layout.Corrupted, journal.Corrupted, err.Error())
		}
		p.journal(journal.Entry{Action: journal.Error, Display: name, Source: name, Reason: err.Error()})
		fmt.Fprintf(w, "✗ Error processing %s: %v\n", name, err)
		return res, err
	}
	rec := ext.Record
	res.Record = rec

	if rec.Failed() {
		reason := strings.Join(rec.FailureReasons, "; ")
		if ext.Transient {
			res.Outcome, res.Reason = Deferred, reason
			fmt.Fprintf(w, "⚠ Lookup services unavailable, leaving %s in inbox\n", name)
			p.journal(journal.Entry{Action: journal.Error, Display: name, Source: name, Reason: "deferred: " + reason})
			return res, nil
		}
		fmt.Fprintf(w, "✗ Failed to extract metadata from %s\n", name)
		return p.quarantine(res, Unknown, p.Layout.Unknowables, journal.Failed, reason)
	}

	fmt.Fprintf(w, "  Title: %s\n", abbreviate(rec.Title, 60))
	fmt.Fprintf(w, "  Authors: %s\n", authorList(rec.Authors))
	fmt.Fprintf(w, "  Method: %s\n", rec.ExtractionMethod)

	if m := dedupe.Find(rec, recs, p.Config.Filing.TitleSimilarity); m != nil {
		return p.discard(res, fmt.Sprintf("%s matches %s", m.Method, m.Filepath))
	}

	filename := naming.Generate(rec, naming.Options{
		MaxLength: p.Config.Filing.MaxFilenameLength,
		MaxWords:  p.Config.Filing.MaxTitleWords,
		Now:       p.Now,
	})
	gate := filing.GateConfidence(rec)
	dest := p.Resolver.Resolve(rec.SuggestedTopics, gate)
	rec.Topics = []string{}
	if dest.ByTopic() {
		rec.Topics = dest.Topics
	}
	fmt.Fprintf(w, "  New name: %s\n", filename)
	fmt.Fprintf(w, "  Destination: %s\n", p.Layout.Rel(dest.Primary))

	if p.DryRun {
		res.Outcome = outcomeFor(dest)
		res.Path = filepath.Join(dest.Primary, filename)
		fmt.Fprintf(w, "✓ [DRY RUN] Would move to: %s\n", p.Layout.Rel(res.Path))
		return res, nil
	}

	final, err := p.Filing.File(path, dest, filename)
	if err != nil {
		if final == "" {
			return res, err
		}
		// The file has moved; index it anyway so it is not lost.
		log.Warn("filed with errors", "path", p.Layout.Rel(final), "error", err)
		fmt.Fprintf(w, "⚠ Filed with errors: %v\n", err)
	}
	res.Outcome, res.Path = outcomeFor(dest), final

	if p.Config.Filing.CopyToRecent && dest.ByTopic() {
		if _, err := p.Filing.CopyToRecent(final); err != nil {
			log.Warn("copy to recent failed", "error", err)
		}
	}

	rec.ContentHash = hash
	rec.Filepath = p.Layout.Rel(final)
	rec.OriginalFilename = name

	p.Extractor.Supplement(ctx, rec, final)
	p.mirror(ctx, rec, final)

	if err := p.Index.Put(rec); err != nil {
		if !errors.Is(err, index.ErrBusy) {
			return res, fmt.Errorf("updating index: %w", err)
		}
		log.Warn("index busy, write queued", "hash", hash)
	}
	if p.Catalog != nil {
		if err := p.Catalog.Upsert(rec); err != nil {
			log.Warn("catalog update failed", "error", err)
		}
	}

	action := journal.Processed
	topic := strings.Join(rec.Topics, ", ")
	if !dest.ByTopic() {
		action = journal.ReviewNeeded
		topic = strings.Join(rec.SuggestedTopics, ", ")
	}
	if topic == "" {
		topic = "none"
	}
	p.journal(journal.Entry{
		Action:        action,
		Display:       filename,
		Source:        name,
		Destination:   rec.Filepath,
		Confidence:    gate,
		HasConfidence: true,
		Method:        string(rec.ExtractionMethod),
		Topic:         topic,
	})

	if dest.ByTopic() {
		fmt.Fprintf(w, "✓ Filed under %s\n", strings.Join(rec.Topics, ", "))
	} else {
		fmt.Fprintf(w, "⚠ Needs review: %s\n", rec.Filepath)
	}
	return res, nil
}

func outcomeFor(d filing.Destination) Outcome {
	if d.ByTopic() {
		return Filed
	}
	return Review
}

// discard deletes an incoming duplicate.
func (p *Processor) discard(res FileResult, reason string) (FileResult, error) {
	name := filepath.Base(res.Source)
	res.Outcome, res.Reason = Duplicate, reason
	fmt.Fprintf(p.out(), "⚠ Duplicate detected (%s), removing %s\n", reason, name)
	if p.DryRun {
		return res, nil
	}
	if err := os.Remove(res.Source); err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("removing duplicate: %w", err)
	}
	p.journal(journal.Entry{Action: journal.Duplicate, Display: name, Source: name, Reason: reason})
	return res, nil
}

// quarantine moves the file to dir and journals action.
func (p *Processor) quarantine(res FileResult, o Outcome, dir string, action journal.Action, reason string) (FileResult, error) {
	name := filepath.Base(res.Source)
	res.Outcome, res.Reason = o, reason
	if p.DryRun {
		res.Path = filepath.Join(dir, name)
		fmt.Fprintf(p.out(), "⚠ [DRY RUN] Would move to %s\n", p.Layout.Rel(dir))
		return res, nil
	}
	dst, err := p.Filing.Quarantine(res.Source, dir)
	if err != nil {
		return res, err
	}
	res.Path = dst
	fmt.Fprintf(p.out(), "⚠ Moved to %s/\n", p.Layout.Rel(dir))
	p.journal(journal.Entry{
		Action:      action,
		Display:     name,
		Source:      name,
		Destination: p.Layout.Rel(dst),
		Reason:      reason,
	})
	return res, nil
}

func (p *Processor) mirror(ctx context.Context, rec *types.PaperRecord, path string) {
	if p.Mirror == nil {
		return
	}
	key, err := p.Mirror.Upsert(ctx, rec, path)
	if err != nil {
		p.logger().Warn("reference manager sync failed", "title", abbreviate(rec.Title, 60), "error", err)
		return
	}
	rec.ZoteroKey = key
}

func (p *Processor) journal(e journal.Entry) {
	if p.Journal == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = p.now()
	}
	if err := p.Journal.Append(e); err != nil {
		p.logger().Error("writing log entry", "error", err)
	}
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func authorList(authors []string) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	if len(authors) > 3 {
		return strings.Join(authors[:3], "; ") + "; ..."
	}
	return strings.Join(authors, "; ")
}
