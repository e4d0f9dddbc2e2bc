// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/literature-manager/internal/doi"
	"github.com/pdiddy/literature-manager/internal/llm"
	"github.com/pdiddy/literature-manager/internal/naming"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Method is one step of the extraction cascade.
type Method interface {
	Name() types.ExtractionMethod
	Extract(ctx context.Context, d *Document) Outcome
}

// DOIResolver resolves a DOI to a bibliographic record.
type DOIResolver interface {
	Lookup(ctx context.Context, doi string) (*doi.Work, error)
}

// MetadataParser parses bibliographic fields out of page text.
type MetadataParser interface {
	ExtractMetadata(ctx context.Context, text, topics string) (*llm.Metadata, error)
}

// --- DOI lookup ---

// DOIMethod finds a DOI in the file and resolves it.
type DOIMethod struct {
	Resolver  DOIResolver
	TextPages int
}

// Name implements Method.
func (m *DOIMethod) Name() types.ExtractionMethod { return types.MethodDOILookup }

// Extract implements Method.
func (m *DOIMethod) Extract(ctx context.Context, d *Document) Outcome {
	found := d.FindDOI(m.TextPages)
	if found == "" {
		return notFound("no DOI in document")
	}

	w, err := m.Resolver.Lookup(ctx, found)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return fatal(ctx.Err())
	case errors.Is(err, doi.ErrNotFound):
		return notFound(fmt.Sprintf("DOI %s not found", found))
	default:
		return retryable(fmt.Errorf("DOI lookup %s: %w", found, err))
	}

	rec := &types.PaperRecord{
		Title:                w.Title,
		Authors:              w.Authors,
		Year:                 w.Year,
		DOI:                  found,
		Abstract:             w.Abstract,
		Keywords:             w.Keywords,
		ExtractionMethod:     types.MethodDOILookup,
		ExtractionConfidence: types.ConfidenceDOI,
	}
	return success(rec)
}

// --- PDF metadata ---

// MetadataMethod reads the embedded document-information dictionary.
type MetadataMethod struct {
	Now func() time.Time
}

// Name implements Method.
func (m *MetadataMethod) Name() types.ExtractionMethod { return types.MethodPDFMetadata }

// Extract implements Method.
func (m *MetadataMethod) Extract(_ context.Context, d *Document) Outcome {
	info, err := d.Info()
	if err != nil {
		if errors.Is(err, pdfdoc.ErrCorrupted) {
			return fatal(err)
		}
		return notFound(fmt.Sprintf("reading document info: %v", err))
	}

	title := naming.NormalizeSpace(info.Title)
	authors := ParseAuthors(info.Author)
	if title == "" && len(authors) == 0 {
		return notFound("document info has no title or author")
	}

	// A record without a title cannot be filed.
	if title == "" {
		return notFound("document info has no title")
	}
	conf := types.ConfidenceMetadata
	if len(authors) == 0 {
		conf = types.ConfidenceMetadataNoAuthor
	}

	now := currentTime(m.Now)
	year := YearFromDate(info.CreationDate, now)
	if year == 0 {
		year = now.Year()
	}

	rec := &types.PaperRecord{
		Title:                title,
		Authors:              authors,
		Year:                 year,
		Abstract:             naming.NormalizeSpace(info.Subject),
		Keywords:             splitKeywords(info.Keywords),
		ExtractionMethod:     types.MethodPDFMetadata,
		ExtractionConfidence: conf,
	}
	if found := doi.Find(info.Field("doi")); found != "" {
		rec.DOI = found
	}
	return success(rec)
}

const maxMetadataAuthors = 10

// ParseAuthors splits an embedded Author field into "Last, F." entries.
// "Smith, John; Jones, Jane", "Smith, J., Jones, K." and
// "John Smith and Jane Jones" are all understood.
func ParseAuthors(field string) []string {
	var out []string
	for _, group := range splitAny(field, ";", " and ", " & ") {
		tokens := splitAny(group, ",")
		for i := 0; i < len(tokens) && len(out) < maxMetadataAuthors; i++ {
			words := strings.Fields(tokens[i])
			switch {
			case len(tokens[i]) < 2:
			case len(words) >= 2:
				out = append(out, fmt.Sprintf("%s, %s.", words[len(words)-1], firstRune(words[0])))
			case i+1 < len(tokens) && looksGiven(tokens[i+1]):
				out = append(out, fmt.Sprintf("%s, %s.", words[0], firstRune(tokens[i+1])))
				i++
			default:
				out = append(out, words[0])
			}
		}
	}
	return out
}

// splitAny splits s on every separator and drops blank pieces.
func splitAny(s string, seps ...string) []string {
	parts := []string{s}
	for _, sep := range seps {
		var next []string
		for _, p := range parts {
			for _, piece := range strings.Split(p, sep) {
				if piece = strings.TrimSpace(piece); piece != "" {
					next = append(next, piece)
				}
			}
		}
		parts = next
	}
	return parts
}

// looksGiven reports whether s reads as given names or initials.
func looksGiven(s string) bool {
	words := strings.Fields(s)
	if len(words) == 1 {
		return true
	}
	for _, w := range words {
		if !strings.HasSuffix(w, ".") && len(w) > 2 {
			return false
		}
	}
	return true
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// YearFromDate pulls a plausible publication year (1900..now+1) from a
// PDF date ("D:20200115...") or free text. It returns 0 when none fits.
func YearFromDate(s string, now time.Time) int {
	for _, m := range yearPattern.FindAllString(s, -1) {
		y, err := strconv.Atoi(m)
		if err == nil && y >= 1900 && y <= now.Year()+1 {
			return y
		}
	}
	return 0
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// --- LLM parsing ---

// LLMMethod asks the LLM to parse the leading pages.
type LLMMethod struct {
	Parser    MetadataParser
	TextPages int
	// Topics is the formatted taxonomy offered to the parser.
	Topics string
	Now    func() time.Time
}

// Name implements Method.
func (m *LLMMethod) Name() types.ExtractionMethod { return types.MethodLLMParsing }

// Extract implements Method.
func (m *LLMMethod) Extract(ctx context.Context, d *Document) Outcome {
	if m.Parser == nil {
		return fatal(llm.ErrMissingAPIKey)
	}
	text, err := d.Text(m.TextPages)
	if err != nil {
		if errors.Is(err, pdfdoc.ErrCorrupted) {
			return fatal(err)
		}
		return notFound(fmt.Sprintf("reading text: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		return notFound("no extractable text")
	}

	md, err := m.Parser.ExtractMetadata(ctx, naming.NormalizeSpace(text), m.Topics)
	if err != nil {
		return classifyLLMError(ctx, err)
	}
	if md == nil {
		return notFound("LLM found no title")
	}

	conf := types.ConfidenceLLM
	if len(md.Authors) == 0 {
		conf = types.ConfidenceLLMNoAuthors
	}
	year := md.Year
	if year == 0 {
		year = currentTime(m.Now).Year()
	}

	rec := &types.PaperRecord{
		Title:                md.Title,
		Authors:              md.Authors,
		Year:                 year,
		Abstract:             md.Abstract,
		Keywords:             md.Keywords,
		ShortTitle:           md.ShortTitle,
		ExtractionMethod:     types.MethodLLMParsing,
		ExtractionConfidence: conf,
	}
	return success(rec)
}

// classifyLLMError maps LLM errors onto outcome kinds: credential
// problems and cancellation are fatal, everything else is transient.
func classifyLLMError(ctx context.Context, err error) Outcome {
	switch {
	case ctx.Err() != nil:
		return fatal(ctx.Err())
	case errors.Is(err, llm.ErrMissingAPIKey), errors.Is(err, llm.ErrAuth):
		return fatal(err)
	default:
		return retryable(err)
	}
}

func currentTime(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
