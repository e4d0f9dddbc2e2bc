// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/literature-manager/internal/doi"
	"github.com/pdiddy/literature-manager/internal/extract"
	"github.com/pdiddy/literature-manager/internal/llm"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
	"github.com/pdiddy/literature-manager/internal/taxonomy"
	"github.com/pdiddy/literature-manager/pkg/types"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// --- fakes ---

// fakeReader serves per-file text and info keyed by base name.
type fakeReader struct {
	corrupt map[string]bool
	text    map[string]string
	info    map[string]pdfdoc.Info
}

func (r *fakeReader) Probe(path string) error {
	if r.corrupt[filepath.Base(path)] {
		return fmt.Errorf("%w: no pages", pdfdoc.ErrCorrupted)
	}
	return nil
}

func (r *fakeReader) Info(path string) (pdfdoc.Info, error) {
	return r.info[filepath.Base(path)], nil
}

func (r *fakeReader) Text(path string, _ int) (string, error) {
	return r.text[filepath.Base(path)], nil
}

type fakeResolver struct {
	works map[string]*doi.Work
	err   error
	calls int
}

func (f *fakeResolver) Lookup(_ context.Context, d string) (*doi.Work, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.works[d]
	if !ok {
		return nil, doi.ErrNotFound
	}
	return w, nil
}

type fakeLLM struct {
	metadata    *llm.Metadata
	metadataErr error
	topics      string
	summary     string

	calls int
}

func (f *fakeLLM) ExtractMetadata(context.Context, string, string) (*llm.Metadata, error) {
	f.calls++
	return f.metadata, f.metadataErr
}

func (f *fakeLLM) Classify(context.Context, llm.PaperInput, string) (*llm.Classification, error) {
	f.calls++
	return &llm.Classification{Summary: f.summary, SuggestedTopic: f.topics}, nil
}

func (f *fakeLLM) Summarize(context.Context, llm.PaperInput) (*types.EnhancedSummary, error) {
	f.calls++
	return &types.EnhancedSummary{MainFinding: "Grazing lowers carbon"}, nil
}

func (f *fakeLLM) SummarizeFulltext(context.Context, string, string, int, int) (*types.FulltextSummary, error) {
	f.calls++
	return nil, nil
}

func (f *fakeLLM) DomainAttributes(context.Context, llm.PaperInput) (*types.DomainAttributes, error) {
	f.calls++
	return &types.DomainAttributes{Ecosystem: "grassland"}, nil
}

type fakeMirror struct {
	err   error
	calls int
}

func (m *fakeMirror) Upsert(context.Context, *types.PaperRecord, string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "ABCD1234", nil
}

// --- harness ---

type harness struct {
	p        *Processor
	reader   *fakeReader
	resolver *fakeResolver
	llm      *fakeLLM
	out      *bytes.Buffer
}

const soilDOI = "10.1016/j.soilbio.2020.107891"

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Library.Root = t.TempDir()
	l := cfg.Library.Layout()
	for _, d := range l.Dirs() {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	tx, err := taxonomy.New(taxonomy.Starter())
	require.NoError(t, err)

	h := &harness{
		reader: &fakeReader{corrupt: map[string]bool{}, text: map[string]string{}, info: map[string]pdfdoc.Info{}},
		resolver: &fakeResolver{works: map[string]*doi.Work{
			soilDOI: {
				Title:    "Soil Carbon Dynamics",
				Authors:  []string{"Smith, J."},
				Year:     2020,
				Abstract: "Grazing reduced soil carbon stocks across sites.",
			},
		}},
		llm: &fakeLLM{topics: "soil-carbon|grazing"},
		out: &bytes.Buffer{},
	}
	now := func() time.Time { return fixedNow }
	ex := extract.New(cfg.Extraction, cfg.Filing.TopicConfidence, extract.Deps{
		Reader:   h.reader,
		Resolver: h.resolver,
		LLM:      h.llm,
		Taxonomy: tx,
		Now:      now,
	})
	h.p = New(cfg, ex, h.out, nil)
	h.p.Now = now
	h.p.Filing.Now = now
	return h
}

// drop writes a PDF into the inbox and returns its path.
func (h *harness) drop(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(h.p.Layout.Inbox, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4\n"+body), 0o644))
	return p
}

func (h *harness) log(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.p.Layout.Log)
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

// --- scenarios ---

func TestProcessFileDOISuccess(t *testing.T) {
	h := newHarness(t)
	src := h.drop(t, "download.pdf", "a")
	h.reader.text["download.pdf"] = "Soil Biology\nhttps://doi.org/" + soilDOI + "\n"

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, Filed, res.Outcome)
	want := filepath.Join(h.p.Layout.ByTopic, "soil-carbon", "Smith, 2020 - Soil Carbon Dynamics.pdf")
	assert.Equal(t, want, res.Path)
	assert.NoFileExists(t, src)
	assert.FileExists(t, want)

	link := filepath.Join(h.p.Layout.ByTopic, "grazing", "Smith, 2020 - Soil Carbon Dynamics.pdf")
	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)
	assert.FileExists(t, filepath.Join(h.p.Layout.Recent, "Smith, 2020 - Soil Carbon Dynamics.pdf"))

	recs, err := h.p.Index.Load()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	for hash, rec := range recs {
		assert.Equal(t, hash, rec.ContentHash)
		assert.Equal(t, "by-topic/soil-carbon/Smith, 2020 - Soil Carbon Dynamics.pdf", rec.Filepath)
		assert.Equal(t, "download.pdf", rec.OriginalFilename)
		assert.Equal(t, types.MethodDOILookup, rec.ExtractionMethod)
		assert.Equal(t, []string{"soil-carbon", "grazing"}, rec.Topics)
		assert.Equal(t, soilDOI, rec.DOI)
		assert.True(t, fixedNow.Equal(rec.ProcessedDate))
		assert.Equal(t, "grassland", rec.DomainAttributes.Ecosystem)
	}

	log := h.log(t)
	assert.Contains(t, log, "| PROCESSED | Smith, 2020 - Soil Carbon Dynamics.pdf")
	assert.Contains(t, log, "→ Confidence: 85%")
	assert.Contains(t, log, "→ Method: doi_lookup")
	assert.Contains(t, h.out.String(), "✓ Filed under soil-carbon, grazing")
}

func TestProcessFileIndexesWhenSecondaryLinkFails(t *testing.T) {
	h := newHarness(t)
	h.reader.text["download.pdf"] = "doi:" + soilDOI
	// A regular file where the secondary topic directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(h.p.Layout.ByTopic, "grazing"), []byte("x"), 0o644))
	src := h.drop(t, "download.pdf", "a")

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, Filed, res.Outcome)
	assert.NoFileExists(t, src)
	want := filepath.Join(h.p.Layout.ByTopic, "soil-carbon", "Smith, 2020 - Soil Carbon Dynamics.pdf")
	assert.FileExists(t, want)

	recs, err := h.p.Index.Load()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	for _, rec := range recs {
		assert.Equal(t, "by-topic/soil-carbon/Smith, 2020 - Soil Carbon Dynamics.pdf", rec.Filepath)
	}
	assert.Contains(t, h.log(t), "| PROCESSED | Smith, 2020 - Soil Carbon Dynamics.pdf")
	assert.Contains(t, h.out.String(), "⚠ Filed with errors")
}

func TestProcessFileCorruptedMakesNoExternalCalls(t *testing.T) {
	h := newHarness(t)
	src := h.drop(t, "broken.pdf", "x")
	h.reader.corrupt["broken.pdf"] = true

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, Corrupted, res.Outcome)
	assert.FileExists(t, filepath.Join(h.p.Layout.Corrupted, "broken.pdf"))
	assert.NoFileExists(t, src)
	assert.Zero(t, h.resolver.calls)
	assert.Zero(t, h.llm.calls)
	assert.Contains(t, h.log(t), "| CORRUPTED | broken.pdf")

	recs, err := h.p.Index.Load()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestProcessFileLowConfidenceGoesToRecent(t *testing.T) {
	h := newHarness(t)
	src := h.drop(t, "scan.pdf", "b")
	h.reader.info["scan.pdf"] = pdfdoc.Info{
		Title:        "Microbial Necromass in Subsoils",
		Author:       "Lee, K.",
		Subject:      "Necromass contributes to stable carbon.",
		CreationDate: "D:20190301000000Z",
	}

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, Review, res.Outcome)
	assert.Equal(t, h.p.Layout.Recent, filepath.Dir(res.Path))
	assert.Equal(t, "Lee, 2019 - Microbial Necromass In Subsoils.pdf", filepath.Base(res.Path))

	rec := res.Record
	require.NotNil(t, rec)
	assert.Equal(t, types.MethodPDFMetadata, rec.ExtractionMethod)
	assert.Equal(t, []string{}, rec.Topics)
	assert.Equal(t, []string{"soil-carbon", "grazing"}, rec.SuggestedTopics)
	assert.Contains(t, h.log(t), "| REVIEW_NEEDED |")
	assert.Contains(t, h.log(t), "→ Confidence: 70%")
}

func TestProcessFileDuplicateByDOISkipsLLM(t *testing.T) {
	h := newHarness(t)
	first := h.drop(t, "first.pdf", "one")
	h.reader.text["first.pdf"] = "doi:" + soilDOI
	_, err := h.p.ProcessFile(context.Background(), first)
	require.NoError(t, err)

	llmCalls, lookups := h.llm.calls, h.resolver.calls
	second := h.drop(t, "second.pdf", "different bytes")
	h.reader.text["second.pdf"] = "https://doi.org/" + strings.ToUpper(soilDOI)

	res, err := h.p.ProcessFile(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, Duplicate, res.Outcome)
	assert.NoFileExists(t, second)
	assert.Equal(t, llmCalls, h.llm.calls)
	assert.Equal(t, lookups, h.resolver.calls)
	assert.Contains(t, h.log(t), "| DUPLICATE | second.pdf")
}

func TestProcessFileIdenticalBytesIsDuplicate(t *testing.T) {
	h := newHarness(t)
	h.reader.text["a.pdf"] = "doi:" + soilDOI
	_, err := h.p.ProcessFile(context.Background(), h.drop(t, "a.pdf", "same"))
	require.NoError(t, err)

	calls := h.llm.calls
	res, err := h.p.ProcessFile(context.Background(), h.drop(t, "b.pdf", "same"))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
	assert.Contains(t, res.Reason, "identical to by-topic/soil-carbon/")
	assert.Equal(t, calls, h.llm.calls)
}

func TestProcessFileDuplicateByTitle(t *testing.T) {
	h := newHarness(t)
	h.reader.text["a.pdf"] = "doi:" + soilDOI
	_, err := h.p.ProcessFile(context.Background(), h.drop(t, "a.pdf", "one"))
	require.NoError(t, err)

	h.reader.info["b.pdf"] = pdfdoc.Info{Title: "Soil carbon dynamics.", Author: "Smith, J."}
	res, err := h.p.ProcessFile(context.Background(), h.drop(t, "b.pdf", "two"))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res.Outcome)
	assert.Contains(t, res.Reason, "title")
}

func TestProcessFileAllMethodsFailGoesToUnknowables(t *testing.T) {
	h := newHarness(t)
	h.llm.metadata = &llm.Metadata{}
	src := h.drop(t, "mystery.pdf", "m")
	h.reader.text["mystery.pdf"] = "some words without structure"

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Outcome)
	assert.FileExists(t, filepath.Join(h.p.Layout.Unknowables, "mystery.pdf"))
	assert.Contains(t, h.log(t), "| FAILED | mystery.pdf")
}

func TestProcessFileTransientFailureIsDeferred(t *testing.T) {
	h := newHarness(t)
	h.resolver.err = doi.ErrTransient
	h.llm.metadataErr = errors.New("503 overloaded")
	src := h.drop(t, "later.pdf", "l")
	h.reader.text["later.pdf"] = "doi:" + soilDOI

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, Deferred, res.Outcome)
	assert.FileExists(t, src)
}

func TestProcessFileMissingKeyIsFatal(t *testing.T) {
	h := newHarness(t)
	h.p.Extractor.LLM = nil
	src := h.drop(t, "a.pdf", "a")
	h.reader.text["a.pdf"] = "doi:" + soilDOI

	_, err := h.p.ProcessFile(context.Background(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrFatal)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
	assert.FileExists(t, src)
}

func TestProcessFileDryRunChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.p.DryRun = true
	src := h.drop(t, "download.pdf", "a")
	h.reader.text["download.pdf"] = "doi:" + soilDOI

	res, err := h.p.ProcessFile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, Filed, res.Outcome)
	assert.FileExists(t, src)
	assert.NoFileExists(t, h.p.Layout.Index)
	assert.Empty(t, h.log(t))
	assert.Contains(t, h.out.String(), "[DRY RUN] Would move to: by-topic/soil-carbon/")
}

func TestProcessFileMirrorFailureIsWarning(t *testing.T) {
	h := newHarness(t)
	m := &fakeMirror{err: errors.New("zotero down")}
	h.p.Mirror = m
	h.reader.text["a.pdf"] = "doi:" + soilDOI

	res, err := h.p.ProcessFile(context.Background(), h.drop(t, "a.pdf", "a"))
	require.NoError(t, err)
	assert.Equal(t, Filed, res.Outcome)
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, res.Record.ZoteroKey)
}

func TestProcessFileMirrorSetsKey(t *testing.T) {
	h := newHarness(t)
	h.p.Mirror = &fakeMirror{}
	h.reader.text["a.pdf"] = "doi:" + soilDOI

	res, err := h.p.ProcessFile(context.Background(), h.drop(t, "a.pdf", "a"))
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", res.Record.ZoteroKey)
}

// --- batch ---

func TestProcessInboxStopsOnFatal(t *testing.T) {
	h := newHarness(t)
	h.p.Extractor.LLM = nil
	h.drop(t, "a.pdf", "a")
	h.drop(t, "b.pdf", "b")
	h.reader.text["a.pdf"] = "doi:" + soilDOI

	res, err := h.p.ProcessInbox(context.Background())
	require.NoError(t, err)
	assert.True(t, res.HasFailures())
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Total())
	assert.FileExists(t, filepath.Join(h.p.Layout.Inbox, "b.pdf"))
}

func TestProcessInboxSummary(t *testing.T) {
	h := newHarness(t)
	h.reader.text["a.pdf"] = "doi:" + soilDOI
	h.drop(t, "a.pdf", "a")
	h.drop(t, "b.pdf", "b")
	h.reader.corrupt["b.pdf"] = true
	h.drop(t, "c.pdf", "a")

	res, err := h.p.ProcessInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Filed)
	assert.Equal(t, 1, res.Corrupted)
	assert.Equal(t, 1, res.Duplicates)
	assert.False(t, res.HasFailures())
	assert.Contains(t, h.out.String(), "Batch summary: 1 filed, 0 for review, 1 duplicate, 0 unknown, 1 corrupted, 0 deferred, 0 error (total: 3)")
}

func TestProcessInboxEmpty(t *testing.T) {
	h := newHarness(t)
	res, err := h.p.ProcessInbox(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Total())
	assert.Contains(t, h.out.String(), "No PDFs found in inbox")
}

// --- cleanup ---

func TestCleanupRepointsIndexedFiles(t *testing.T) {
	h := newHarness(t)
	h.reader.info["scan.pdf"] = pdfdoc.Info{Title: "Microbial Necromass in Subsoils", Author: "Lee, K."}
	res, err := h.p.ProcessFile(context.Background(), h.drop(t, "scan.pdf", "s"))
	require.NoError(t, err)
	require.Equal(t, Review, res.Outcome)

	old := fixedNow.Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(res.Path, old, old))
	h.p.Filing.Now = func() time.Time { return fixedNow }

	swept, err := h.p.Cleanup(context.Background())
	require.NoError(t, err)
	require.Len(t, swept, 1)

	recs, err := h.p.Index.Load()
	require.NoError(t, err)
	rec := recs.FindByPath("unknowables/" + filepath.Base(res.Path))
	require.NotNil(t, rec)
	assert.FileExists(t, h.p.Layout.Abs(rec.Filepath))
	assert.Contains(t, h.log(t), "| CLEANUP |")
}

// --- watch ---

func TestWaitStable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF"), 0o644))

	w := &Watcher{Config: types.WatchConfig{PollInterval: 5 * time.Millisecond, StabilizeTimeout: time.Second}}
	assert.True(t, w.waitStable(context.Background(), p))
	assert.False(t, w.waitStable(context.Background(), filepath.Join(dir, "gone.pdf")))
}

func TestWaitStableTimesOutOnEmptyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	w := &Watcher{Config: types.WatchConfig{PollInterval: 5 * time.Millisecond, StabilizeTimeout: 20 * time.Millisecond}}
	assert.False(t, w.waitStable(context.Background(), p))
}

func TestWatcherProcessesNewFile(t *testing.T) {
	h := newHarness(t)
	h.reader.text["late.pdf"] = "doi:" + soilDOI
	w := &Watcher{Processor: h.p, Config: types.WatchConfig{PollInterval: 10 * time.Millisecond, StabilizeTimeout: time.Second}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before dropping the file.
	require.Eventually(t, func() bool { _, err := os.Stat(h.p.Layout.Lock); return err == nil }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	h.drop(t, "late.pdf", "late")

	want := filepath.Join(h.p.Layout.ByTopic, "soil-carbon", "Smith, 2020 - Soil Carbon Dynamics.pdf")
	assert.Eventually(t, func() bool { _, err := os.Stat(want); return err == nil }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.NoFileExists(t, h.p.Layout.Lock)
}

// --- sync ---

// seedIndexed files a record under by-topic/ directly.
func (h *harness) seedIndexed(t *testing.T, hash, key string) {
	t.Helper()
	rel := "by-topic/soil-carbon/" + hash + ".pdf"
	p := h.p.Layout.Abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("%PDF "+hash), 0o644))
	require.NoError(t, h.p.Index.Put(&types.PaperRecord{ContentHash: hash, Filepath: rel, Title: "Paper " + hash, ZoteroKey: key}))
}

func TestSyncStoresKeys(t *testing.T) {
	h := newHarness(t)
	m := &fakeMirror{}
	h.p.Mirror = m
	h.seedIndexed(t, "a", "")
	h.seedIndexed(t, "b", "EXISTING")
	require.NoError(t, h.p.Index.Put(&types.PaperRecord{ContentHash: "c", Filepath: "by-topic/soil-carbon/gone.pdf"}))

	res, err := h.p.Sync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 1, Skipped: 2}, res)
	assert.Equal(t, 1, m.calls)

	rec, ok, err := h.p.Index.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ABCD1234", rec.ZoteroKey)
	assert.Contains(t, h.out.String(), "Sync summary: 1 synced, 2 skipped, 0 failed")

	res, err = h.p.Sync(context.Background(), true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
}

func TestSyncStopsOnFatalMirrorError(t *testing.T) {
	h := newHarness(t)
	authErr := errors.New("forbidden")
	m := &fakeMirror{err: authErr}
	h.p.Mirror = m
	h.seedIndexed(t, "a", "")
	h.seedIndexed(t, "b", "")

	res, err := h.p.Sync(context.Background(), false, func(err error) bool { return errors.Is(err, authErr) })
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, m.calls)
}

func TestSyncRequiresMirror(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.Sync(context.Background(), false, nil)
	assert.Error(t, err)
}
