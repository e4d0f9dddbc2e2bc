// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package doi finds DOIs in document text and resolves them to
// bibliographic records through CrossRef, with OpenAlex and arXiv as
// fallbacks when CrossRef has no record.
package doi

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNotFound means no service knows the DOI. It advances the cascade
	// and is not a failure.
	ErrNotFound = errors.New("DOI not found")

	// ErrTransient covers network errors, rate limits, and 5xx responses
	// that persisted through every retry.
	ErrTransient = errors.New("bibliographic lookup failed")
)

// pattern matches DOIs: "10.1016/j.soilbio.2020.107891".
var pattern = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)

// arxivDOIPattern matches DataCite DOIs minted for arXiv preprints.
var arxivDOIPattern = regexp.MustCompile(`^10\.48550/arxiv\.(\d{4}\.\d{4,5}(?:v\d+)?)$`)

// minPlausibleLength filters truncated matches such as "10.1073/pnas.".
const minPlausibleLength = 15

// Find returns the most plausible DOI in text, or "" when none is present.
// Among all matches it prefers the longest one of at least 15 characters,
// falling back to the longest match overall.
func Find(text string) string {
	matches := pattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}

	var best, bestAny string
	for _, m := range matches {
		m = trimTrailing(m)
		if len(m) > len(bestAny) {
			bestAny = m
		}
		if len(m) >= minPlausibleLength && len(m) > len(best) {
			best = m
		}
	}
	if best == "" {
		best = bestAny
	}
	return Normalize(best)
}

// trimTrailing drops sentence punctuation and an unbalanced closing
// parenthesis picked up from surrounding prose.
func trimTrailing(s string) string {
	for {
		trimmed := strings.TrimRight(s, ".,;:")
		if strings.HasSuffix(trimmed, ")") && strings.Count(trimmed, "(") < strings.Count(trimmed, ")") {
			trimmed = strings.TrimSuffix(trimmed, ")")
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

var prefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// Normalize lowercases a DOI and strips URL and "doi:" prefixes.
func Normalize(doi string) string {
	d := strings.TrimSpace(doi)
	lower := strings.ToLower(d)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			lower = strings.TrimSpace(lower[len(p):])
			break
		}
	}
	return lower
}

// ArxivID returns the arXiv identifier embedded in an arXiv DOI.
func ArxivID(doi string) (string, bool) {
	m := arxivDOIPattern.FindStringSubmatch(Normalize(doi))
	if m == nil {
		return "", false
	}
	return m[1], true
}
