// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
categories: [soil-processes, soil-fractions, analytical-methods]
topics:
  - slug: soil-carbon
    category: soil-processes
    description: Carbon storage
  - slug: soil-organic-matter
    category: soil-processes
    description: Organic matter
  - slug: maom
    category: soil-fractions
    description: Mineral-associated organic matter
  - slug: pom
    category: soil-fractions
    description: Particulate organic matter
  - slug: soil-spectroscopy
    category: analytical-methods
    description: Spectral methods
pairing_rules:
  disallowed:
    - [soil-carbon, soil-organic-matter]
    - [maom, pom]
  max_topics: 2
`

func sample(t *testing.T) *Taxonomy {
	t.Helper()
	tx, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	return tx
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	tx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"soil-carbon", "soil-organic-matter", "maom", "pom", "soil-spectroscopy"}, tx.Slugs())
	assert.Equal(t, 2, tx.MaxTopics())

	topic, ok := tx.Topic("maom")
	require.True(t, ok)
	assert.Equal(t, "soil-fractions", topic.Category)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    File
		wantErr string
	}{
		{"no topics", File{}, "no topics defined"},
		{"reserved slug", File{Topics: []Topic{{Slug: NeedsReview}}}, "reserved"},
		{"not kebab", File{Topics: []Topic{{Slug: "Soil_Carbon"}}}, "kebab-case"},
		{"duplicate", File{Topics: []Topic{{Slug: "a"}, {Slug: "a"}}}, "defined twice"},
		{"unknown category", File{Categories: []string{"x"}, Topics: []Topic{{Slug: "a", Category: "y"}}}, "unknown category"},
		{"bad pair", File{Topics: []Topic{{Slug: "a"}}, PairingRules: PairingRules{Disallowed: [][]string{{"a"}}}}, "exactly two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	tx := sample(t)
	valid, invalid := tx.Validate([]string{"maom", "made-up", "maom", NeedsReview})
	assert.Equal(t, []string{"maom", NeedsReview}, valid)
	assert.Equal(t, []string{"made-up"}, invalid)
}

func TestPairingAllowed(t *testing.T) {
	tx := sample(t)

	ok, reason := tx.PairingAllowed("pom", "maom")
	assert.False(t, ok)
	assert.Contains(t, reason, "too redundant")

	ok, reason = tx.PairingAllowed("maom", "soil-spectroscopy")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, _ = tx.PairingAllowed("maom", "nope")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	tx := sample(t)

	tests := []struct {
		name         string
		suggestion   string
		wantTopics   []string
		wantInvalid  []string
		wantWarnings int
	}{
		{"single valid", "maom", []string{"maom"}, nil, 0},
		{"pipe list with spaces", " soil-spectroscopy | MAOM ", []string{"soil-spectroscopy", "maom"}, nil, 0},
		{"unknown dropped", "maom|quantum-soil", []string{"maom"}, []string{"quantum-soil"}, 0},
		{"all unknown", "foo|bar", []string{NeedsReview}, []string{"foo", "bar"}, 0},
		{"empty", "", []string{NeedsReview}, nil, 0},
		{"explicit needs-review", "needs-review", []string{NeedsReview}, nil, 0},
		{"needs-review mixed with real", "needs-review|pom", []string{"pom"}, nil, 0},
		{"disallowed pair is advisory", "maom|pom", []string{"maom", "pom"}, nil, 1},
		{"truncated to max topics", "maom|soil-spectroscopy|soil-carbon", []string{"maom", "soil-spectroscopy"}, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tx.Resolve(tt.suggestion)
			assert.Equal(t, tt.wantTopics, res.Topics)
			assert.Equal(t, tt.wantInvalid, res.Invalid)
			assert.Len(t, res.Warnings, tt.wantWarnings)
			for _, slug := range res.Topics {
				assert.True(t, tx.Has(slug), "every resolved slug is in the taxonomy")
			}
		})
	}
}

func TestFormatForPrompt(t *testing.T) {
	out := sample(t).FormatForPrompt()
	assert.Contains(t, out, "ALLOWED TOPICS:")
	assert.Contains(t, out, "## Soil Processes (2 topics)")
	assert.Contains(t, out, "## Analytical Methods (1 topics)")
	assert.Contains(t, out, "- **maom**: Mineral-associated organic matter")
}

func TestStarterRoundTrips(t *testing.T) {
	data, err := Marshal(Starter())
	require.NoError(t, err)

	tx, err := Parse(data)
	require.NoError(t, err)
	assert.Contains(t, tx.Slugs(), "soil-carbon")
	assert.Equal(t, 3, tx.MaxTopics())
	assert.True(t, tx.Has(NeedsReview))
}
