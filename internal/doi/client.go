// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package doi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/pdiddy/literature-manager/internal/httputil"
	"github.com/pdiddy/literature-manager/internal/naming"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Service endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	crossrefAPIBase = "https://api.crossref.org/works/"
	openAlexAPIBase = "https://api.openalex.org/works/"
	arxivAPIBase    = "https://export.arxiv.org/api/query"
)

// Work is the bibliographic record returned by a lookup.
type Work struct {
	DOI      string
	Title    string
	Authors  []string
	Year     int
	Abstract string
	Keywords []string
	// Source names the service that answered: crossref, openalex, arxiv.
	Source string
}

// Client resolves DOIs. It is safe for concurrent use.
type Client struct {
	HTTP        *http.Client
	UserAgent   string
	Mailto      string
	MaxAttempts int

	limiter *rate.Limiter
}

// NewClient builds a Client from the HTTP configuration section.
func NewClient(cfg types.HTTPConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "literature-manager/0.1"
	}
	return &Client{
		HTTP:        &http.Client{Timeout: cfg.Timeout},
		UserAgent:   ua,
		Mailto:      cfg.Mailto,
		MaxAttempts: cfg.MaxRetries,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Lookup resolves doi to a Work. CrossRef is asked first; when it has no
// record or stays unreachable, arXiv (for arXiv DOIs) and then OpenAlex
// are tried. ErrNotFound is returned only when every service answered
// "not found"; any unresolved transient failure yields ErrTransient.
func (c *Client) Lookup(ctx context.Context, doi string) (*Work, error) {
	doi = Normalize(doi)
	if doi == "" {
		return nil, ErrNotFound
	}

	type source struct {
		name string
		fn   func(context.Context, string) (*Work, error)
	}
	sources := []source{{"crossref", c.crossref}}
	if _, ok := ArxivID(doi); ok {
		sources = append(sources, source{"arxiv", c.arxiv})
	}
	sources = append(sources, source{"openalex", c.openAlex})

	var transient []error
	for _, s := range sources {
		w, err := s.fn(ctx, doi)
		if err == nil {
			return w, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			transient = append(transient, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if len(transient) > 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransient, doi, errors.Join(transient...))
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, doi)
}

// get performs a rate-limited, retried GET and returns the body of a 200
// response. 400, 404 and 410 map to ErrNotFound.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	ua := c.UserAgent
	if c.Mailto != "" {
		ua = fmt.Sprintf("%s (mailto:%s)", ua, c.Mailto)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxAttempts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// --- CrossRef ---

type crossrefEnvelope struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	DOI             string           `json:"DOI"`
	Title           []string         `json:"title"`
	Author          []crossrefAuthor `json:"author"`
	PublishedPrint  crossrefDate     `json:"published-print"`
	PublishedOnline crossrefDate     `json:"published-online"`
	Issued          crossrefDate     `json:"issued"`
	Abstract        string           `json:"abstract"`
	Subject         []string         `json:"subject"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (d crossrefDate) year() int {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

func (c *Client) crossref(ctx context.Context, doi string) (*Work, error) {
	reqURL := crossrefAPIBase + url.PathEscape(doi)
	if c.Mailto != "" {
		reqURL += "?mailto=" + url.QueryEscape(c.Mailto)
	}
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var env crossrefEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing CrossRef response: %w", err)
	}
	m := env.Message

	w := &Work{DOI: doi, Source: "crossref"}
	if len(m.Title) > 0 {
		w.Title = naming.NormalizeSpace(stripTags(m.Title[0]))
	}
	for _, a := range m.Author {
		if name := formatAuthor(a.Family, a.Given); name != "" {
			w.Authors = append(w.Authors, name)
		} else if a.Name != "" {
			w.Authors = append(w.Authors, naming.NormalizeSpace(a.Name))
		}
	}
	for _, d := range []crossrefDate{m.PublishedPrint, m.PublishedOnline, m.Issued} {
		if y := d.year(); y > 0 {
			w.Year = y
			break
		}
	}
	w.Abstract = naming.NormalizeSpace(stripTags(m.Abstract))
	w.Keywords = m.Subject

	if w.Title == "" {
		return nil, ErrNotFound
	}
	return w, nil
}

// --- OpenAlex ---

type openAlexWork struct {
	Title                 string               `json:"title"`
	PublicationYear       int                  `json:"publication_year"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	Concepts              []struct {
		DisplayName string `json:"display_name"`
	} `json:"concepts"`
}

type openAlexAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

func (c *Client) openAlex(ctx context.Context, doi string) (*Work, error) {
	reqURL := openAlexAPIBase + "https://doi.org/" + doi
	if c.Mailto != "" {
		reqURL += "?mailto=" + url.QueryEscape(c.Mailto)
	}
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var ow openAlexWork
	if err := json.Unmarshal(body, &ow); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}
	if strings.TrimSpace(ow.Title) == "" {
		return nil, ErrNotFound
	}

	w := &Work{
		DOI:      doi,
		Title:    naming.NormalizeSpace(ow.Title),
		Year:     ow.PublicationYear,
		Abstract: reconstructAbstract(ow.AbstractInvertedIndex),
		Source:   "openalex",
	}
	for _, a := range ow.Authorships {
		if name := splitDisplayName(a.Author.DisplayName); name != "" {
			w.Authors = append(w.Authors, name)
		}
	}
	for _, k := range ow.Concepts {
		if k.DisplayName != "" {
			w.Keywords = append(w.Keywords, k.DisplayName)
		}
	}
	return w, nil
}

// reconstructAbstract rebuilds text from OpenAlex's word-to-positions map.
func reconstructAbstract(inverted map[string][]int) string {
	if len(inverted) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range inverted {
		for _, p := range positions {
			pairs = append(pairs, posWord{p, word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// --- arXiv ---

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

func (c *Client) arxiv(ctx context.Context, doi string) (*Work, error) {
	id, ok := ArxivID(doi)
	if !ok {
		return nil, ErrNotFound
	}
	body, err := c.get(ctx, arxivAPIBase+"?id_list="+url.QueryEscape(id))
	if err != nil {
		return nil, err
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	if len(feed.Entries) == 0 || strings.TrimSpace(feed.Entries[0].Title) == "" {
		return nil, ErrNotFound
	}
	e := feed.Entries[0]

	w := &Work{
		DOI:      doi,
		Title:    naming.NormalizeSpace(e.Title),
		Abstract: naming.NormalizeSpace(e.Summary),
		Source:   "arxiv",
	}
	if len(e.Published) >= 4 {
		w.Year, _ = strconv.Atoi(e.Published[:4])
	}
	for _, a := range e.Authors {
		if name := splitDisplayName(a.Name); name != "" {
			w.Authors = append(w.Authors, name)
		}
	}
	for _, cat := range e.Categories {
		w.Keywords = append(w.Keywords, cat.Term)
	}
	return w, nil
}

// --- helpers ---

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

// formatAuthor renders "Family, I." with the family name title-cased.
func formatAuthor(family, given string) string {
	family = strings.TrimSpace(family)
	if family == "" {
		return ""
	}
	family = naming.TitleCase(family)
	given = strings.TrimSpace(given)
	if given == "" {
		return family
	}
	for _, r := range given {
		if unicode.IsLetter(r) {
			return fmt.Sprintf("%s, %c.", family, unicode.ToUpper(r))
		}
	}
	return family
}

// splitDisplayName converts "Jane Q. Smith" into "Smith, J.".
func splitDisplayName(name string) string {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return naming.TitleCase(parts[0])
	}
	return formatAuthor(parts[len(parts)-1], parts[0])
}
