// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/literature-manager/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(hash, path string, year int, method types.ExtractionMethod, topics ...string) *types.PaperRecord {
	return &types.PaperRecord{
		ContentHash:      hash,
		Filepath:         path,
		Title:            "Paper " + hash,
		Authors:          []string{"Smith, J."},
		Year:             year,
		Topics:           topics,
		ExtractionMethod: method,
		ProcessedDate:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"by-topic/maom/a.pdf", "by-topic"},
		{"recent/a.pdf", "recent"},
		{"a.pdf", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Location(tt.in), tt.in)
	}
}

func TestUpsertAndStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := record("a", "by-topic/maom/a.pdf", 2020, types.MethodDOILookup, "maom", "pom")
	a.DOI = "10.1000/a"
	a.ZoteroKey = "KEY1"
	require.NoError(t, s.Upsert(a))
	require.NoError(t, s.Upsert(record("b", "by-topic/maom/b.pdf", 2021, types.MethodPDFMetadata, "maom")))
	require.NoError(t, s.Upsert(record("c", "recent/c.pdf", 2021, types.MethodLLMParsing)))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.WithDOI)
	assert.Equal(t, 1, st.Mirrored)
	assert.Equal(t, []Count{{"maom", 2}, {"pom", 1}}, st.ByTopic)
	assert.Equal(t, []Count{{"2021", 2}, {"2020", 1}}, st.ByYear)
	assert.Equal(t, []Count{{"by-topic", 2}, {"recent", 1}}, st.ByLocation)
	assert.Len(t, st.ByMethod, 3)
}

func TestUpsertReplacesTopics(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := record("a", "recent/a.pdf", 2020, types.MethodDOILookup)
	require.NoError(t, s.Upsert(rec))

	rec.Filepath = "by-topic/pom/a.pdf"
	rec.Topics = []string{"pom"}
	require.NoError(t, s.Upsert(rec))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, []Count{{"pom", 1}}, st.ByTopic)

	recent, err := s.InLocation(ctx, "recent")
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestUpsertRequiresHash(t *testing.T) {
	s := testStore(t)
	assert.Error(t, s.Upsert(&types.PaperRecord{Title: "x"}))
}

func TestRebuild(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(record("stale", "recent/stale.pdf", 2019, types.MethodLLMParsing)))

	recs := map[string]*types.PaperRecord{
		"x": record("", "by-topic/maom/x.pdf", 2022, types.MethodDOILookup, "maom"),
		"y": record("y", "unknowables/y.pdf", 2022, types.MethodPDFMetadata),
	}
	n, err := s.Rebuild(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, []Count{{"by-topic", 1}, {"unknowables", 1}}, st.ByLocation)

	hashes, err := s.InLocation(ctx, "by-topic")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, hashes)
}

func TestStatsEmpty(t *testing.T) {
	s := testStore(t)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Total)
	assert.Empty(t, st.ByTopic)
}
