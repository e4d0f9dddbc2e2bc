// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package taxonomy loads the controlled topic vocabulary from topics.yml
// and validates topic suggestions against it.
package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// NeedsReview is the reserved slug assigned when no valid topic remains.
// It is valid in every taxonomy.
const NeedsReview = "needs-review"

const defaultMaxTopics = 3

// Topic is one allowed slug.
type Topic struct {
	Slug        string `yaml:"slug"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// PairingRules constrains topic combinations.
type PairingRules struct {
	Disallowed [][]string `yaml:"disallowed"`
	MaxTopics  int        `yaml:"max_topics"`
}

// File is the on-disk layout of topics.yml.
type File struct {
	Categories   []string     `yaml:"categories"`
	Topics       []Topic      `yaml:"topics"`
	PairingRules PairingRules `yaml:"pairing_rules"`
}

// Taxonomy is the immutable, loaded vocabulary. It is safe for concurrent
// reads.
type Taxonomy struct {
	file       File
	bySlug     map[string]Topic
	byCategory map[string][]Topic
}

// Load reads and validates a taxonomy file.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return t, nil
}

// Parse builds a Taxonomy from YAML bytes.
func Parse(data []byte) (*Taxonomy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return New(f)
}

// New indexes f and rejects structural problems.
func New(f File) (*Taxonomy, error) {
	t := &Taxonomy{
		file:       f,
		bySlug:     make(map[string]Topic, len(f.Topics)),
		byCategory: make(map[string][]Topic),
	}

	known := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		known[c] = true
	}

	var errs []error
	if len(f.Topics) == 0 {
		errs = append(errs, errors.New("no topics defined"))
	}
	for _, topic := range f.Topics {
		switch {
		case topic.Slug == "":
			errs = append(errs, errors.New("topic with empty slug"))
			continue
		case topic.Slug == NeedsReview:
			errs = append(errs, fmt.Errorf("%q is reserved", NeedsReview))
			continue
		case !isKebab(topic.Slug):
			errs = append(errs, fmt.Errorf("slug %q is not kebab-case", topic.Slug))
		}
		if _, dup := t.bySlug[topic.Slug]; dup {
			errs = append(errs, fmt.Errorf("slug %q defined twice", topic.Slug))
		}
		if len(f.Categories) > 0 && !known[topic.Category] {
			errs = append(errs, fmt.Errorf("slug %q has unknown category %q", topic.Slug, topic.Category))
		}
		t.bySlug[topic.Slug] = topic
		t.byCategory[topic.Category] = append(t.byCategory[topic.Category], topic)
	}
	for _, pair := range f.PairingRules.Disallowed {
		if len(pair) != 2 {
			errs = append(errs, fmt.Errorf("disallowed pair %v must name exactly two slugs", pair))
		}
	}
	if f.PairingRules.MaxTopics < 0 {
		errs = append(errs, errors.New("pairing_rules.max_topics must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

func isKebab(s string) bool {
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") || strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

// Has reports whether slug is allowed. NeedsReview is always allowed.
func (t *Taxonomy) Has(slug string) bool {
	if slug == NeedsReview {
		return true
	}
	_, ok := t.bySlug[slug]
	return ok
}

// Topic returns the entry for slug.
func (t *Taxonomy) Topic(slug string) (Topic, bool) {
	topic, ok := t.bySlug[slug]
	return topic, ok
}

// Slugs lists every defined slug in file order, excluding NeedsReview.
func (t *Taxonomy) Slugs() []string {
	out := make([]string, 0, len(t.file.Topics))
	for _, topic := range t.file.Topics {
		out = append(out, topic.Slug)
	}
	return out
}

// Categories lists the categories in file order.
func (t *Taxonomy) Categories() []string {
	return append([]string(nil), t.file.Categories...)
}

// MaxTopics is the per-paper topic bound (3 when unset).
func (t *Taxonomy) MaxTopics() int {
	if t.file.PairingRules.MaxTopics <= 0 {
		return defaultMaxTopics
	}
	return t.file.PairingRules.MaxTopics
}

// Validate partitions candidates into known and unknown slugs,
// preserving order and dropping repeats.
func (t *Taxonomy) Validate(candidates []string) (valid, invalid []string) {
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if t.Has(c) {
			valid = append(valid, c)
		} else {
			invalid = append(invalid, c)
		}
	}
	return valid, invalid
}

// PairingAllowed checks a and b against the disallowed-pair list. The
// reason is empty when the pair is allowed.
func (t *Taxonomy) PairingAllowed(a, b string) (bool, string) {
	for _, pair := range t.file.PairingRules.Disallowed {
		if len(pair) != 2 {
			continue
		}
		if (pair[0] == a && pair[1] == b) || (pair[0] == b && pair[1] == a) {
			return false, fmt.Sprintf("disallowed pair: %s and %s are too redundant", pair[0], pair[1])
		}
	}
	if !t.Has(a) || !t.Has(b) {
		return false, "one or both topics do not exist"
	}
	return true, ""
}

// Resolution is the outcome of checking an LLM topic suggestion.
type Resolution struct {
	// Topics is never empty: it falls back to [NeedsReview].
	Topics []string

	// Invalid lists dropped slugs.
	Invalid []string

	// Warnings describe advisory pairing violations and truncation.
	Warnings []string
}

// NeedsReview reports whether the resolution fell back to the sentinel.
func (r Resolution) NeedsReview() bool {
	return len(r.Topics) == 1 && r.Topics[0] == NeedsReview
}

// Resolve checks a pipe-delimited suggestion ("maom|pom"). Unknown slugs
// are dropped; if none remain the result is [NeedsReview]. NeedsReview
// mixed with real topics is discarded. Pairing violations are reported
// as warnings and never block. The list is truncated to MaxTopics.
func (t *Taxonomy) Resolve(suggestion string) Resolution {
	var candidates []string
	for _, part := range strings.Split(suggestion, "|") {
		if s := strings.ToLower(strings.TrimSpace(part)); s != "" {
			candidates = append(candidates, s)
		}
	}

	valid, invalid := t.Validate(candidates)
	res := Resolution{Invalid: invalid}

	var picked []string
	for _, s := range valid {
		if s != NeedsReview {
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		res.Topics = []string{NeedsReview}
		return res
	}

	if limit := t.MaxTopics(); len(picked) > limit {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d topics suggested, keeping first %d", len(picked), limit))
		picked = picked[:limit]
	}
	for i := 0; i < len(picked); i++ {
		for j := i + 1; j < len(picked); j++ {
			if ok, reason := t.PairingAllowed(picked[i], picked[j]); !ok {
				res.Warnings = append(res.Warnings, reason)
			}
		}
	}
	res.Topics = picked
	return res
}

// FormatForPrompt renders the allowed topics grouped by category, as
// embedded in classification prompts.
func (t *Taxonomy) FormatForPrompt() string {
	var b strings.Builder
	b.WriteString("ALLOWED TOPICS:\n\n")

	categories := t.file.Categories
	if len(categories) == 0 {
		for _, topic := range t.file.Topics {
			if !contains(categories, topic.Category) {
				categories = append(categories, topic.Category)
			}
		}
	}
	for _, c := range categories {
		topics := t.byCategory[c]
		fmt.Fprintf(&b, "## %s (%d topics)\n\n", categoryName(c), len(topics))
		for _, topic := range topics {
			fmt.Fprintf(&b, "- **%s**: %s\n", topic.Slug, topic.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func categoryName(c string) string {
	words := strings.Fields(strings.ReplaceAll(c, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Marshal renders f as YAML.
func Marshal(f File) ([]byte, error) {
	return yaml.Marshal(f)
}
