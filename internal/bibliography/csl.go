// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bibliography exports library records as CSL-YAML, the
// bibliography format read by Pandoc and most reference managers.
package bibliography

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/literature-manager/internal/filing"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Item is one CSL entry.
type Item struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Title    string `yaml:"title"`
	Author   []Name `yaml:"author,omitempty"`
	Abstract string `yaml:"abstract,omitempty"`
	Issued   *Date  `yaml:"issued,omitempty"`
	DOI      string `yaml:"DOI,omitempty"`
	Keyword  string `yaml:"keyword,omitempty"`
	Note     string `yaml:"note,omitempty"`
}

// Name is a person's name in CSL form.
type Name struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// Date holds CSL date-parts.
type Date struct {
	DateParts [][]int `yaml:"date-parts"`
}

// Items converts records to CSL entries ordered by first author, year and
// title. Citation keys are unique within the result.
func Items(recs []*types.PaperRecord) []Item {
	sorted := append([]*types.PaperRecord(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if fa, fb := firstFamily(a), firstFamily(b); fa != fb {
			return fa < fb
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})

	used := map[string]int{}
	items := make([]Item, 0, len(sorted))
	for _, r := range sorted {
		it := toItem(r)
		base := it.ID
		if n := used[base]; n > 0 {
			it.ID = fmt.Sprintf("%s%c", base, 'a'+rune(n-1))
		}
		used[base]++
		items = append(items, it)
	}
	return items
}

// Write encodes records as a CSL-YAML list.
func Write(w io.Writer, recs []*types.PaperRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Items(recs)); err != nil {
		return err
	}
	return enc.Close()
}

func toItem(r *types.PaperRecord) Item {
	it := Item{
		ID:       citeKey(r),
		Type:     "article-journal",
		Title:    r.Title,
		Abstract: r.Abstract,
		DOI:      r.DOI,
		Keyword:  strings.Join(r.Keywords, ", "),
		Note:     r.Summary,
	}
	for _, a := range r.Authors {
		if n := ParseName(a); n != (Name{}) {
			it.Author = append(it.Author, n)
		}
	}
	if r.Year > 0 {
		it.Issued = &Date{DateParts: [][]int{{r.Year}}}
	}
	return it
}

// ParseName splits a library author string ("Smith, J." or "Jane Smith")
// into CSL family and given parts. Single tokens use the literal field.
func ParseName(name string) Name {
	name = strings.TrimSpace(name)
	if name == "" {
		return Name{}
	}
	if family, given, ok := strings.Cut(name, ","); ok {
		return Name{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return Name{Literal: name}
	}
	return Name{Given: name[:idx], Family: name[idx+1:]}
}

func firstFamily(r *types.PaperRecord) string {
	if len(r.Authors) == 0 {
		return ""
	}
	n := ParseName(r.Authors[0])
	if n.Family != "" {
		return strings.ToLower(n.Family)
	}
	return strings.ToLower(n.Literal)
}

// citeKey builds a Pandoc-style key: family name, year and the first
// title word longer than three letters ("smith2020carbon").
func citeKey(r *types.PaperRecord) string {
	key := strings.ReplaceAll(filing.Slugify(firstFamily(r)), "-", "")
	if key == "" {
		key = "anon"
	}
	if r.Year > 0 {
		key += fmt.Sprint(r.Year)
	}
	for _, w := range strings.Split(filing.Slugify(r.Title), "-") {
		if len(w) > 3 {
			key += w
			break
		}
	}
	return key
}
