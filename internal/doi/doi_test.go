// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package doi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/literature-manager/internal/httputil"
	"github.com/pdiddy/literature-manager/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func TestFind(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "See doi:10.1016/j.soilbio.2020.107891 for details.", "10.1016/j.soilbio.2020.107891"},
		{"url form", "https://doi.org/10.1038/s41586-020-2649-2", "10.1038/s41586-020-2649-2"},
		{"trailing period", "Available at 10.1111/gcb.15123.", "10.1111/gcb.15123"},
		{"unbalanced paren", "(see 10.1002/ldr.3456)", "10.1002/ldr.3456"},
		{"balanced paren kept", "10.1016/0038-0717(87)90052-6", "10.1016/0038-0717(87)90052-6"},
		{"prefers longer plausible match", "10.1073/pnas. and later 10.1073/pnas.1912345117", "10.1073/pnas.1912345117"},
		{"uppercase normalized", "DOI 10.1016/J.GEODERMA.2019.01.001", "10.1016/j.geoderma.2019.01.001"},
		{"none", "no identifier here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Find(tt.text))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "10.1000/abc", Normalize("https://dx.doi.org/10.1000/ABC"))
	assert.Equal(t, "10.1000/abc", Normalize(" doi:10.1000/abc "))
	assert.Equal(t, "10.1000/abc", Normalize("10.1000/abc"))
}

func TestArxivID(t *testing.T) {
	id, ok := ArxivID("10.48550/arXiv.2301.01234")
	require.True(t, ok)
	assert.Equal(t, "2301.01234", id)

	_, ok = ArxivID("10.1016/j.soilbio.2020.107891")
	assert.False(t, ok)
}

// services starts fake CrossRef, OpenAlex and arXiv servers and points the
// package at them for the duration of the test.
type services struct {
	crossref, openalex, arxiv http.HandlerFunc
	crossrefHits              atomic.Int32
	openalexHits              atomic.Int32
	arxivHits                 atomic.Int32
}

func (s *services) start(t *testing.T) *Client {
	t.Helper()
	notFound := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }
	pick := func(h http.HandlerFunc, hits *atomic.Int32) http.HandlerFunc {
		if h == nil {
			h = notFound
		}
		return func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			h(w, r)
		}
	}

	cr := httptest.NewServer(pick(s.crossref, &s.crossrefHits))
	oa := httptest.NewServer(pick(s.openalex, &s.openalexHits))
	ax := httptest.NewServer(pick(s.arxiv, &s.arxivHits))
	t.Cleanup(func() { cr.Close(); oa.Close(); ax.Close() })

	oldCR, oldOA, oldAX := crossrefAPIBase, openAlexAPIBase, arxivAPIBase
	crossrefAPIBase = cr.URL + "/works/"
	openAlexAPIBase = oa.URL + "/works/"
	arxivAPIBase = ax.URL + "/api/query"
	t.Cleanup(func() { crossrefAPIBase, openAlexAPIBase, arxivAPIBase = oldCR, oldOA, oldAX })

	return NewClient(types.HTTPConfig{
		Timeout:           5 * time.Second,
		UserAgent:         "literature-manager-test",
		Mailto:            "lab@example.org",
		MaxRetries:        2,
		RequestsPerSecond: 1000,
	})
}

const crossrefBody = `{
  "message": {
    "DOI": "10.1016/j.soilbio.2020.107891",
    "title": ["Soil <i>carbon</i> dynamics under   grazing"],
    "author": [
      {"given": "Jane", "family": "SMITH"},
      {"given": "Wei", "family": "chen"},
      {"name": "Soil Consortium"}
    ],
    "published-online": {"date-parts": [[2019, 11, 2]]},
    "published-print": {"date-parts": [[2020, 2]]},
    "abstract": "<jats:p>Carbon stocks <jats:italic>declined</jats:italic>.</jats:p>",
    "subject": ["Soil Science", "Microbiology"]
  }
}`

func TestLookupCrossref(t *testing.T) {
	var gotUA string
	s := &services{crossref: func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "/works/10.1016/j.soilbio.2020.107891", r.URL.Path)
		fmt.Fprint(w, crossrefBody)
	}}
	c := s.start(t)

	w, err := c.Lookup(context.Background(), "https://doi.org/10.1016/J.SOILBIO.2020.107891")
	require.NoError(t, err)

	assert.Equal(t, "crossref", w.Source)
	assert.Equal(t, "10.1016/j.soilbio.2020.107891", w.DOI)
	assert.Equal(t, "Soil carbon dynamics under grazing", w.Title)
	assert.Equal(t, []string{"Smith, J.", "Chen, W.", "Soil Consortium"}, w.Authors)
	assert.Equal(t, 2020, w.Year, "published-print wins over published-online")
	assert.Equal(t, "Carbon stocks declined .", w.Abstract)
	assert.Equal(t, []string{"Soil Science", "Microbiology"}, w.Keywords)
	assert.Contains(t, gotUA, "mailto:lab@example.org")
	assert.Zero(t, s.openalexHits.Load())
}

func TestLookupYearFallsBackToOnline(t *testing.T) {
	s := &services{crossref: func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"title":["T"],"published-online":{"date-parts":[[2018]]}}}`)
	}}
	c := s.start(t)

	w, err := c.Lookup(context.Background(), "10.1000/xyz123")
	require.NoError(t, err)
	assert.Equal(t, 2018, w.Year)
}

func TestLookupFallsBackToOpenAlex(t *testing.T) {
	s := &services{openalex: func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/10.1000/xyz123"), r.URL.Path)
		fmt.Fprint(w, `{
		  "title": "Mycorrhizal networks",
		  "publication_year": 2021,
		  "abstract_inverted_index": {"networks": [1], "Fungal": [0], "matter": [2]},
		  "authorships": [{"author": {"display_name": "Ana Lopez"}}],
		  "concepts": [{"display_name": "Ecology"}]
		}`)
	}}
	c := s.start(t)

	w, err := c.Lookup(context.Background(), "10.1000/xyz123")
	require.NoError(t, err)
	assert.Equal(t, "openalex", w.Source)
	assert.Equal(t, "Mycorrhizal networks", w.Title)
	assert.Equal(t, "Fungal networks matter", w.Abstract)
	assert.Equal(t, []string{"Lopez, A."}, w.Authors)
	assert.Equal(t, 2021, w.Year)
	assert.Equal(t, int32(1), s.crossrefHits.Load())
}

func TestLookupArxivDOI(t *testing.T) {
	s := &services{arxiv: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2301.01234", r.URL.Query().Get("id_list"))
		fmt.Fprint(w, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.01234v1</id>
    <title>Deep soil
      carbon models</title>
    <summary> We model carbon. </summary>
    <published>2023-01-04T00:00:00Z</published>
    <author><name>Maria Rossi</name></author>
    <category term="q-bio.PE"/>
  </entry>
</feed>`)
	}}
	c := s.start(t)

	w, err := c.Lookup(context.Background(), "10.48550/arXiv.2301.01234")
	require.NoError(t, err)
	assert.Equal(t, "arxiv", w.Source)
	assert.Equal(t, "Deep soil carbon models", w.Title)
	assert.Equal(t, 2023, w.Year)
	assert.Equal(t, []string{"Rossi, M."}, w.Authors)
	assert.Equal(t, []string{"q-bio.PE"}, w.Keywords)
	assert.Zero(t, s.openalexHits.Load())
}

func TestLookupNotFoundEverywhere(t *testing.T) {
	c := (&services{}).start(t)

	_, err := c.Lookup(context.Background(), "10.1000/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTransient)
}

func TestLookupTransientWhenServicesFail(t *testing.T) {
	s := &services{
		crossref: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
		openalex: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
	}
	c := s.start(t)

	_, err := c.Lookup(context.Background(), "10.1000/xyz123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(2), s.crossrefHits.Load(), "retried up to MaxRetries")
}

func TestLookupTransientThenFallbackSucceeds(t *testing.T) {
	s := &services{
		crossref: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		openalex: func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"title":"Recovered","publication_year":2017}`)
		},
	}
	c := s.start(t)

	w, err := c.Lookup(context.Background(), "10.1000/xyz123")
	require.NoError(t, err)
	assert.Equal(t, "Recovered", w.Title)
}

func TestLookupEmptyDOI(t *testing.T) {
	c := (&services{}).start(t)
	_, err := c.Lookup(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFormatAuthor(t *testing.T) {
	assert.Equal(t, "Smith, J.", formatAuthor("smith", "jane"))
	assert.Equal(t, "Smith", formatAuthor("Smith", ""))
	assert.Empty(t, formatAuthor("", "Jane"))
	assert.Equal(t, "Lopez, A.", splitDisplayName("Ana María Lopez"))
	assert.Equal(t, "Plato", splitDisplayName("plato"))
}
