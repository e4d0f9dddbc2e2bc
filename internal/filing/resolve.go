// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filing decides where a record's file belongs and realizes that
// decision on disk: move, collision-free rename, secondary symlinks, the
// recent/ copy, quarantine, and the retention sweep.
package filing

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/literature-manager/pkg/types"
)

// Destination is the resolved placement for one file.
type Destination struct {
	// Primary holds the file itself.
	Primary string
	// Secondary directories receive symlinks to the primary file.
	Secondary []string
	// Topics lists the slugs behind Primary and Secondary; empty when the
	// file goes to recent/.
	Topics []string
}

// ByTopic reports whether the destination is a topic directory.
func (d Destination) ByTopic() bool { return len(d.Topics) > 0 }

// Resolver gates topic filing on confidence.
type Resolver struct {
	ByTopicDir string
	RecentDir  string
	Threshold  float64
}

// NewResolver builds a Resolver from the library layout and threshold.
func NewResolver(l types.Layout, threshold float64) Resolver {
	return Resolver{ByTopicDir: l.ByTopic, RecentDir: l.Recent, Threshold: threshold}
}

// Resolve returns by_topic/<slug(topics[0])> with a symlink directory per
// remaining topic when topics is non-empty and confidence reaches the
// threshold; otherwise the sole destination is recent/.
func (r Resolver) Resolve(topics []string, confidence float64) Destination {
	var slugs []string
	seen := make(map[string]bool)
	for _, t := range topics {
		s := Slugify(t)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		slugs = append(slugs, s)
	}

	if len(slugs) == 0 || confidence < r.Threshold {
		return Destination{Primary: r.RecentDir}
	}

	d := Destination{
		Primary: filepath.Join(r.ByTopicDir, slugs[0]),
		Topics:  slugs,
	}
	for _, s := range slugs[1:] {
		d.Secondary = append(d.Secondary, filepath.Join(r.ByTopicDir, s))
	}
	return d
}

// GateConfidence is the confidence compared against the threshold: the
// lower of the topic confidence and the extraction confidence.
func GateConfidence(rec *types.PaperRecord) float64 {
	return min(rec.TopicConfidence, rec.ExtractionConfidence)
}

// Slugify folds s to a lowercase ASCII kebab-case directory name.
// Accents are stripped ("Éco Systèmes" becomes "eco-systemes").
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			dash = true
		}
	}
	return b.String()
}
