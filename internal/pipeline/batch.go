// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pdiddy/literature-manager/internal/extract"
	"github.com/pdiddy/literature-manager/internal/filing"
	"github.com/pdiddy/literature-manager/internal/index"
	"github.com/pdiddy/literature-manager/internal/journal"
)

// BatchResult holds the outcome of a batch run.
type BatchResult struct {
	Filed      int
	Review     int
	Duplicates int
	Unknown    int
	Corrupted  int
	Deferred   int
	Errors     int
	Results    []FileResult
}

// Total returns the number of files handled.
func (r BatchResult) Total() int {
	return r.Filed + r.Review + r.Duplicates + r.Unknown + r.Corrupted + r.Deferred + r.Errors
}

// HasFailures reports whether any file could not be handled.
func (r BatchResult) HasFailures() bool {
	return r.Errors > 0
}

func (r *BatchResult) add(fr FileResult) {
	r.Results = append(r.Results, fr)
	switch fr.Outcome {
	case Filed:
		r.Filed++
	case Review:
		r.Review++
	case Duplicate:
		r.Duplicates++
	case Unknown:
		r.Unknown++
	case Corrupted:
		r.Corrupted++
	case Deferred:
		r.Deferred++
	}
}

// ProcessInbox processes every PDF in the inbox.
func (p *Processor) ProcessInbox(ctx context.Context) (BatchResult, error) {
	files, err := filing.InboxFiles(p.Layout.Inbox)
	if err != nil {
		return BatchResult{}, err
	}
	if len(files) == 0 {
		fmt.Fprintln(p.out(), "ℹ No PDFs found in inbox")
		return BatchResult{}, nil
	}
	fmt.Fprintf(p.out(), "\nFound %d PDF(s) in inbox\n\n", len(files))
	return p.ProcessFiles(ctx, files), nil
}

// ProcessFiles processes files in order, continuing after per-file
// errors. A fatal error (missing or rejected credentials) stops the batch
// and leaves the remaining files in place.
func (p *Processor) ProcessFiles(ctx context.Context, files []string) BatchResult {
	var result BatchResult
	if p.DryRun {
		fmt.Fprintln(p.out(), "⚠ DRY RUN MODE - No changes will be made")
	}
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		fr, err := p.ProcessFile(ctx, f)
		fmt.Fprintln(p.out())
		if err != nil {
			result.Errors++
			fr.Reason = err.Error()
			result.Results = append(result.Results, fr)
			if errors.Is(err, extract.ErrFatal) {
				fmt.Fprintf(p.out(), "✗ Stopping: %v\n", err)
				break
			}
			continue
		}
		result.add(fr)
	}
	if err := p.Index.Flush(); err != nil {
		p.logger().Warn("queued index writes not flushed", "pending", p.Index.Pending(), "error", err)
	}

	fmt.Fprintf(p.out(), "Batch summary: %d filed, %d for review, %d duplicate, %d unknown, %d corrupted, %d deferred, %d error (total: %d)\n",
		result.Filed, result.Review, result.Duplicates, result.Unknown, result.Corrupted, result.Deferred, result.Errors, result.Total())
	return result
}

// Cleanup runs the retention sweep on recent/. Records whose file moved to
// unknowables/ are repointed in the Index.
func (p *Processor) Cleanup(ctx context.Context) ([]filing.Swept, error) {
	recs, err := p.Index.Load()
	if err != nil {
		return nil, err
	}
	retention := time.Duration(p.Config.Filing.RecentRetentionDays) * 24 * time.Hour
	swept, err := p.Filing.SweepRecent(retention, func(path string) bool {
		return recs.FindByPath(p.Layout.Rel(path)) != nil
	})

	moved := map[string]string{}
	for _, s := range swept {
		name := filepath.Base(s.From)
		dest := "(removed, copy already in unknowables)"
		if s.To != "" {
			dest = p.Layout.Rel(s.To)
			moved[p.Layout.Rel(s.From)] = dest
		}
		fmt.Fprintf(p.out(), "ℹ Moved %s to unknowables/\n", name)
		p.journal(journal.Entry{Action: journal.Cleanup, Display: name, Source: name, Destination: dest,
			Reason: fmt.Sprintf("older than %d days", p.Config.Filing.RecentRetentionDays)})
	}

	if len(moved) > 0 {
		uerr := p.Index.Update(func(recs index.Records) error {
			for _, r := range recs {
				if to, ok := moved[r.Filepath]; ok {
					r.Filepath = to
				}
			}
			return nil
		})
		if uerr != nil {
			err = errors.Join(err, fmt.Errorf("repointing swept records: %w", uerr))
		}
	}
	if err == nil && len(swept) == 0 {
		fmt.Fprintln(p.out(), "✓ No old files to clean up")
	} else if len(swept) > 0 {
		fmt.Fprintf(p.out(), "✓ Cleaned up %d file(s)\n", len(swept))
	}
	return swept, err
}

// ValidateIndex repairs Index paths against the library and journals
// each repair.
func (p *Processor) ValidateIndex(ctx context.Context, prune bool) (index.Report, error) {
	rep, err := p.Index.Validate(ctx, p.Layout, prune)
	if err != nil {
		return rep, err
	}
	for hash, rel := range rep.Repaired {
		p.journal(journal.Entry{Action: journal.Repaired, Display: filepath.Base(rel), Destination: rel, Reason: "path repaired for " + hash[:min(12, len(hash))]})
	}
	return rep, nil
}
