// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract runs the metadata cascade for one PDF (DOI lookup,
// embedded metadata, LLM parsing) and enriches the winning record with a
// finding summary and taxonomy topics.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/literature-manager/internal/llm"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
	"github.com/pdiddy/literature-manager/internal/taxonomy"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Enricher is the LLM surface used after a method succeeds.
type Enricher interface {
	MetadataParser
	Classify(ctx context.Context, in llm.PaperInput, topics string) (*llm.Classification, error)
	Summarize(ctx context.Context, in llm.PaperInput) (*types.EnhancedSummary, error)
	SummarizeFulltext(ctx context.Context, title, text string, minChars, maxChars int) (*types.FulltextSummary, error)
	DomainAttributes(ctx context.Context, in llm.PaperInput) (*types.DomainAttributes, error)
}

// FulltextSource returns the whole text of a document.
type FulltextSource interface {
	Text(ctx context.Context, path string) (string, error)
}

// Result is the cascade output for one file.
type Result struct {
	// Record is never nil; on total failure it is the failed sentinel.
	Record *types.PaperRecord

	// Transient reports that at least one method failed for a reason
	// that may clear on a later run.
	Transient bool
}

// Orchestrator runs the cascade.
type Orchestrator struct {
	Reader   pdfdoc.Reader
	Methods  []Method
	LLM      Enricher
	Taxonomy *taxonomy.Taxonomy
	Fulltext FulltextSource
	Config   types.ExtractionConfig

	// TopicConfidence is assigned to validated topic suggestions.
	TopicConfidence float64

	Logger *slog.Logger
	Now    func() time.Time
}

// Deps are the collaborators used by New.
type Deps struct {
	Reader   pdfdoc.Reader
	Resolver DOIResolver
	// LLM may be nil when no API key is configured; any step that needs it
	// then fails fatally.
	LLM      Enricher
	Taxonomy *taxonomy.Taxonomy
	Fulltext FulltextSource
	Logger   *slog.Logger
	Now      func() time.Time
}

// New builds an Orchestrator whose methods follow cfg.PreferredMethods.
func New(cfg types.ExtractionConfig, topicConfidence float64, deps Deps) *Orchestrator {
	o := &Orchestrator{
		Reader:          deps.Reader,
		LLM:             deps.LLM,
		Taxonomy:        deps.Taxonomy,
		Fulltext:        deps.Fulltext,
		Config:          cfg,
		TopicConfidence: topicConfidence,
		Logger:          deps.Logger,
		Now:             deps.Now,
	}

	var topics string
	if deps.Taxonomy != nil {
		topics = deps.Taxonomy.FormatForPrompt()
	}
	for _, m := range cfg.PreferredMethods {
		switch m {
		case types.MethodDOILookup:
			o.Methods = append(o.Methods, &DOIMethod{Resolver: deps.Resolver, TextPages: cfg.TextPages})
		case types.MethodPDFMetadata:
			o.Methods = append(o.Methods, &MetadataMethod{Now: deps.Now})
		case types.MethodLLMParsing:
			lm := &LLMMethod{TextPages: cfg.TextPages, Topics: topics, Now: deps.Now}
			if deps.LLM != nil {
				lm.Parser = deps.LLM
			}
			o.Methods = append(o.Methods, lm)
		}
	}
	return o
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Probe runs the readability check. A failure wraps both ErrFatal and
// pdfdoc.ErrCorrupted; the caller must quarantine the file.
func (o *Orchestrator) Probe(path string) error {
	if err := o.Reader.Probe(path); err != nil {
		if errors.Is(err, pdfdoc.ErrCorrupted) {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return err
	}
	return nil
}

// Open returns a Document for path.
func (o *Orchestrator) Open(path string) *Document {
	return NewDocument(path, o.Reader)
}

// PeekDOI finds a DOI in the file without any network call.
func (o *Orchestrator) PeekDOI(d *Document) string {
	return d.FindDOI(o.Config.TextPages)
}

// Extract runs the cascade, backfills a missing abstract, and classifies
// the record. Ordinary misses yield the failed sentinel; only fatal
// conditions return an error, which wraps ErrFatal.
func (o *Orchestrator) Extract(ctx context.Context, d *Document) (Result, error) {
	res, err := o.Cascade(ctx, d)
	if err != nil || res.Record.Failed() {
		return res, err
	}

	if err := o.backfillAbstract(ctx, d, res.Record); err != nil {
		return res, err
	}
	if err := o.Classify(ctx, res.Record); err != nil {
		return res, err
	}
	res.Record.ProcessedDate = currentTime(o.Now)
	return res, nil
}

// Cascade tries each method in order and stops at the first result with
// an acceptable title.
func (o *Orchestrator) Cascade(ctx context.Context, d *Document) (Result, error) {
	log := o.logger().With("file", d.Path)

	var reasons []string
	transient := false
	for _, m := range o.Methods {
		out := m.Extract(ctx, d)
		switch out.Kind {
		case Success:
			if err := CheckTitle(out.Record.Title); err != nil {
				log.Debug("rejected extraction", "method", m.Name(), "reason", err)
				reasons = append(reasons, fmt.Sprintf("%s: %v", m.Name(), err))
				continue
			}
			out.Record.FailureReasons = reasons
			return Result{Record: out.Record, Transient: transient}, nil
		case Fatal:
			log.Error("extraction aborted", "method", m.Name(), "error", out.Err)
			return Result{Record: types.FailedRecord(append(reasons, fmt.Sprintf("%s: %s", m.Name(), out.Reason)))}, out.Err
		case Retryable:
			transient = true
			log.Warn("extraction method failed", "method", m.Name(), "error", out.Err)
			reasons = append(reasons, fmt.Sprintf("%s: %s", m.Name(), out.Reason))
		default:
			log.Debug("extraction method found nothing", "method", m.Name(), "reason", out.Reason)
			reasons = append(reasons, fmt.Sprintf("%s: %s", m.Name(), out.Reason))
		}
	}
	return Result{Record: types.FailedRecord(reasons), Transient: transient}, nil
}

// backfillAbstract runs one LLM pass over the page text to fill a missing
// abstract and keywords. Title, authors, year and DOI are never touched.
func (o *Orchestrator) backfillAbstract(ctx context.Context, d *Document, rec *types.PaperRecord) error {
	if rec.Abstract != "" || rec.ExtractionMethod == types.MethodLLMParsing {
		return nil
	}
	if o.LLM == nil {
		return fmt.Errorf("%w: %w", ErrFatal, llm.ErrMissingAPIKey)
	}
	text, err := d.Text(o.Config.TextPages)
	if err != nil || strings.TrimSpace(text) == "" {
		return nil
	}

	md, err := o.LLM.ExtractMetadata(ctx, text, "")
	if err != nil {
		if out := classifyLLMError(ctx, err); out.Kind == Fatal {
			return out.Err
		}
		o.logger().Warn("abstract backfill failed", "file", d.Path, "error", err)
		return nil
	}
	if md == nil {
		return nil
	}
	rec.Abstract = md.Abstract
	if len(rec.Keywords) == 0 {
		rec.Keywords = md.Keywords
	}
	return nil
}

const maxSummaryWords = 8

// Classify obtains the finding summary and topic suggestion for rec.
// Suggested slugs are validated against the taxonomy; unknown slugs are
// dropped and an all-invalid suggestion becomes needs-review. An empty
// suggestion leaves the record unclassified. Only credential failures
// return an error.
func (o *Orchestrator) Classify(ctx context.Context, rec *types.PaperRecord) error {
	if o.LLM == nil {
		return fmt.Errorf("%w: %w", ErrFatal, llm.ErrMissingAPIKey)
	}
	log := o.logger().With("title", abbreviate(rec.Title, 60))

	var topics string
	if o.Taxonomy != nil {
		topics = o.Taxonomy.FormatForPrompt()
	}
	c, err := o.LLM.Classify(ctx, paperInput(rec), topics)
	if err != nil {
		if out := classifyLLMError(ctx, err); out.Kind == Fatal {
			return out.Err
		}
		log.Warn("classification failed", "error", err)
		return nil
	}

	if c.Summary != "" && c.Summary != taxonomy.NeedsReview {
		if n := len(strings.Fields(c.Summary)); n > maxSummaryWords {
			log.Warn("summary longer than expected", "words", n, "summary", c.Summary)
		}
		rec.Summary = c.Summary
	}

	if strings.TrimSpace(c.SuggestedTopic) == "" || o.Taxonomy == nil {
		return nil
	}
	resolved := o.Taxonomy.Resolve(c.SuggestedTopic)
	if len(resolved.Invalid) > 0 {
		log.Warn("invalid topics suggested", "invalid", resolved.Invalid, "kept", resolved.Topics)
	}
	for _, w := range resolved.Warnings {
		log.Warn("topic pairing", "warning", w)
	}
	rec.SuggestedTopics = resolved.Topics
	rec.TopicConfidence = o.TopicConfidence
	return nil
}

// Supplement attaches the optional enrichments (domain attributes,
// structured summary, full-text summary) once the file is at path. Every
// failure is logged and skipped; confidence and method are never changed.
func (o *Orchestrator) Supplement(ctx context.Context, rec *types.PaperRecord, path string) {
	if o.LLM == nil || rec.Failed() {
		return
	}
	log := o.logger().With("file", path)
	in := paperInput(rec)

	if o.Config.DomainAttributes {
		attrs, err := o.LLM.DomainAttributes(ctx, in)
		switch {
		case err != nil:
			log.Warn("domain attribute extraction failed", "error", err)
		case !attrs.Empty():
			rec.DomainAttributes = attrs
		}
	}

	if o.Config.EnhancedSummary {
		s, err := o.LLM.Summarize(ctx, in)
		switch {
		case err != nil:
			log.Warn("summary generation failed", "error", err)
		case s != nil:
			rec.EnhancedSummary = s
		}
	}

	if o.Config.FulltextSummary && o.Fulltext != nil {
		text, err := o.Fulltext.Text(ctx, path)
		if err != nil {
			log.Warn("full text unavailable", "error", err)
			return
		}
		s, err := o.LLM.SummarizeFulltext(ctx, rec.Title, text, o.Config.FulltextMinChars, o.Config.FulltextMaxChars)
		switch {
		case err != nil:
			log.Warn("full-text summary failed", "error", err)
		case s != nil:
			rec.FulltextSummary = s
		}
	}
}

func paperInput(rec *types.PaperRecord) llm.PaperInput {
	return llm.PaperInput{Title: rec.Title, Abstract: rec.Abstract, Keywords: rec.Keywords}
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
