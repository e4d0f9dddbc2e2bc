// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
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

// fakeZotero is an in-memory Zotero library.
type fakeZotero struct {
	t *testing.T

	mu          sync.Mutex
	items       map[string]map[string]any
	versions    map[string]int
	collections map[string]string
	next        int
	tokens      []string
	uploaded    []byte
	registered  bool
	patches     []map[string]any
	status      int
}

func newFakeZotero(t *testing.T) *fakeZotero {
	return &fakeZotero{
		t:           t,
		items:       map[string]map[string]any{},
		versions:    map[string]int{},
		collections: map[string]string{},
	}
}

func (f *fakeZotero) key() string {
	f.next++
	return fmt.Sprintf("K%07d", f.next)
}

func (f *fakeZotero) handler(srv **httptest.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if r.URL.Path == "/storage" {
			body, _ := io.ReadAll(r.Body)
			f.uploaded = body
			w.WriteHeader(http.StatusCreated)
			return
		}
		assert.Equal(f.t, "secret", r.Header.Get("Zotero-API-Key"))
		assert.Equal(f.t, "3", r.Header.Get("Zotero-API-Version"))

		path := strings.TrimPrefix(r.URL.Path, "/users/42")
		switch {
		case r.Method == http.MethodGet && path == "/items/top":
			var page []map[string]any
			if r.URL.Query().Get("start") == "0" {
				for k, it := range f.items {
					if it["itemType"] == "journalArticle" {
						page = append(page, map[string]any{"key": k, "version": f.versions[k], "data": it})
					}
				}
			}
			json.NewEncoder(w).Encode(page)
		case r.Method == http.MethodGet && path == "/collections":
			var page []map[string]any
			if r.URL.Query().Get("start") == "0" {
				for name, k := range f.collections {
					page = append(page, map[string]any{"key": k, "data": map[string]any{"name": name}})
				}
			}
			json.NewEncoder(w).Encode(page)
		case r.Method == http.MethodGet && strings.HasPrefix(path, "/items/"):
			k := strings.TrimPrefix(path, "/items/")
			json.NewEncoder(w).Encode(map[string]any{"key": k, "version": f.versions[k], "data": f.items[k]})
		case r.Method == http.MethodPost && (path == "/items" || path == "/collections"):
			token := r.Header.Get("Zotero-Write-Token")
			assert.Len(f.t, token, 32)
			f.tokens = append(f.tokens, token)
			var objs []map[string]any
			assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&objs))
			succ := map[string]any{}
			for i, o := range objs {
				k := f.key()
				if path == "/collections" {
					f.collections[o["name"].(string)] = k
				} else {
					f.items[k] = o
					f.versions[k] = 1
				}
				succ[fmt.Sprint(i)] = map[string]any{"key": k}
			}
			json.NewEncoder(w).Encode(map[string]any{"successful": succ, "failed": map[string]any{}})
		case r.Method == http.MethodPatch && strings.HasPrefix(path, "/items/"):
			k := strings.TrimPrefix(path, "/items/")
			assert.Equal(f.t, fmt.Sprint(f.versions[k]), r.Header.Get("If-Unmodified-Since-Version"))
			var patch map[string]any
			assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&patch))
			f.patches = append(f.patches, patch)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && strings.HasSuffix(path, "/file"):
			assert.NoError(f.t, r.ParseForm())
			if r.PostForm.Get("upload") != "" {
				f.registered = true
				w.WriteHeader(http.StatusNoContent)
				return
			}
			assert.Len(f.t, r.PostForm.Get("md5"), 32)
			json.NewEncoder(w).Encode(map[string]any{
				"url":         (*srv).URL + "/storage",
				"contentType": "application/pdf",
				"prefix":      "PRE",
				"suffix":      "SUF",
				"uploadKey":   "up1",
			})
		default:
			f.t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeZotero) start(t *testing.T) *Client {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(f.handler(&srv))
	t.Cleanup(srv.Close)

	old := apiBase
	apiBase = srv.URL
	t.Cleanup(func() { apiBase = old })

	c, err := NewClient(
		types.ZoteroConfig{Enabled: true, APIKey: "secret", UserID: "42", LibraryType: "user"},
		types.HTTPConfig{Timeout: 5 * time.Second, MaxRetries: 2, RequestsPerSecond: 1000},
		nil,
	)
	require.NoError(t, err)
	return c
}

func paper() *types.PaperRecord {
	return &types.PaperRecord{
		Title:    "Soil carbon dynamics under grazing",
		Authors:  []string{"Smith, Jane", "Wei Chen"},
		Year:     2020,
		DOI:      "10.1016/j.soilbio.2020.107891",
		Abstract: "Carbon stocks declined.",
		Summary:  "Grazing lowers topsoil carbon stocks",
		Topics:   []string{"soil-carbon", "grazing"},
		DomainAttributes: &types.DomainAttributes{
			StudyType:         "field",
			AnalyticalMethods: []string{"FTIR"},
		},
	}
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Smith, 2020 - Soil Carbon.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 body"), 0o644))
	return p
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(types.ZoteroConfig{APIKey: "x"}, types.HTTPConfig{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUpsertCreatesItem(t *testing.T) {
	f := newFakeZotero(t)
	c := f.start(t)

	key, err := c.Upsert(context.Background(), paper(), writePDF(t))
	require.NoError(t, err)
	require.NotEmpty(t, key)

	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[key]
	assert.Equal(t, "journalArticle", it["itemType"])
	assert.Equal(t, "2020", it["date"])
	assert.Equal(t, "10.1016/j.soilbio.2020.107891", it["DOI"])
	assert.Contains(t, it["extra"], "Study Type: field")
	assert.Len(t, it["collections"], 2)
	assert.Contains(t, f.collections, "soil-carbon")
	assert.Contains(t, f.collections, "grazing")

	creators := it["creators"].([]any)
	first := creators[0].(map[string]any)
	assert.Equal(t, "Smith", first["lastName"])
	assert.Equal(t, "Jane", first["firstName"])
	second := creators[1].(map[string]any)
	assert.Equal(t, "Chen", second["lastName"])

	var notes, attachments int
	for _, o := range f.items {
		switch o["itemType"] {
		case "note":
			notes++
			assert.Equal(t, key, o["parentItem"])
			assert.Contains(t, o["note"], "Key Finding")
		case "attachment":
			attachments++
			assert.Equal(t, "imported_file", o["linkMode"])
		}
	}
	assert.Equal(t, 1, notes)
	assert.Equal(t, 1, attachments)
	assert.Equal(t, "PRE%PDF-1.4 bodySUF", string(f.uploaded))
	assert.True(t, f.registered)

	seen := map[string]bool{}
	for _, tok := range f.tokens {
		assert.False(t, seen[tok], "write token reused")
		seen[tok] = true
	}
}

func TestUpsertMergesExistingByDOI(t *testing.T) {
	f := newFakeZotero(t)
	f.items["OLD00001"] = map[string]any{
		"itemType":    "journalArticle",
		"title":       "Soil carbon dynamics under grazing",
		"DOI":         "https://doi.org/10.1016/J.SOILBIO.2020.107891",
		"tags":        []any{map[string]any{"tag": "soil-carbon"}},
		"collections": []any{},
	}
	f.versions["OLD00001"] = 7
	f.collections["soil-carbon"] = "COLL0001"
	c := f.start(t)

	key, err := c.Upsert(context.Background(), paper(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "OLD00001", key)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.patches, 1)
	tags := f.patches[0]["tags"].([]any)
	assert.Len(t, tags, 2)
	assert.Len(t, f.patches[0]["collections"], 2)
	assert.Nil(t, f.uploaded)
	assert.Len(t, f.items, 1)
}

func TestUpsertSecondCallUsesCache(t *testing.T) {
	f := newFakeZotero(t)
	c := f.start(t)
	ctx := context.Background()

	first, err := c.Upsert(ctx, paper(), "")
	require.NoError(t, err)
	second, err := c.Upsert(ctx, paper(), "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cache, err := c.Cache(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, cache.Items["10.1016/j.soilbio.2020.107891"])
}

func TestUpsertAuthError(t *testing.T) {
	f := newFakeZotero(t)
	f.status = http.StatusForbidden
	c := f.start(t)

	_, err := c.Upsert(context.Background(), paper(), "")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestCreators(t *testing.T) {
	got := creators([]string{"Smith, J.", "Jane Q Public", "Plato", " "})
	assert.Equal(t, []creator{
		{CreatorType: "author", LastName: "Smith", FirstName: "J."},
		{CreatorType: "author", LastName: "Public", FirstName: "Jane Q"},
		{CreatorType: "author", LastName: "Plato"},
	}, got)
}

func TestSummaryNote(t *testing.T) {
	assert.Empty(t, SummaryNote(&types.PaperRecord{}))

	rec := &types.PaperRecord{
		EnhancedSummary: &types.EnhancedSummary{MainFinding: "Carbon < nitrogen", Implication: "Manage grazing"},
		DomainAttributes: &types.DomainAttributes{
			Ecosystem: "grassland",
			DepthInfo: []string{"0-10 cm"},
		},
	}
	note := SummaryNote(rec)
	assert.Contains(t, note, "<h3>Main Finding</h3>\n<p>Carbon &lt; nitrogen</p>")
	assert.NotContains(t, note, "Key Approach")
	assert.Contains(t, note, "<li><strong>Ecosystem:</strong> grassland</li>")
	assert.Contains(t, note, "Sampling Depths:</strong> 0-10 cm")
}

func TestWriteToken(t *testing.T) {
	a, b := writeToken(), writeToken()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
