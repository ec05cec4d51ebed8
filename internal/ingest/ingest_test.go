package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/vectordb"
)

type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]vectordb.Document
	deleted   []string
	addErr    error
	persisted int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]vectordb.Document)}
}

func (f *fakeStore) AddDocuments(_ context.Context, docs []vectordb.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeStore) DeleteBySource(_ context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, source)
	for id, d := range f.docs {
		if d.Source == source {
			delete(f.docs, id)
		}
	}
	return nil
}

func (f *fakeStore) Search(context.Context, string, int) ([]vectordb.SearchResult, error) {
	return nil, nil
}
func (f *fakeStore) Count(context.Context) (int, error) { return len(f.docs), nil }
func (f *fakeStore) Name() string                       { return "fake" }
func (f *fakeStore) Close(context.Context) error        { return nil }

func (f *fakeStore) Persist(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted++
	return nil
}

type recordingReporter struct {
	mu      sync.Mutex
	total   int
	updates []string
	done    bool
}

func (r *recordingReporter) Start(total int) { r.total = total }
func (r *recordingReporter) Finish()         { r.done = true }
func (r *recordingReporter) Update(_ int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, msg)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const thuisartsJSON = `[
  {"title": "Hoofdpijn", "url": "https://www.thuisarts.nl/hoofdpijn", "content": "Hoofdpijn gaat meestal vanzelf over."},
  {"title": "Koorts", "url": "https://www.thuisarts.nl/koorts", "content": "Koorts is een verhoogde temperatuur.", "metadata": {"section": "algemeen"}},
  {"title": "Leeg", "url": "https://www.thuisarts.nl/leeg", "content": "   "}
]`

func TestParseJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "thuisarts.json", thuisartsJSON)

	docs, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Hoofdpijn", docs[0].Title)
	assert.Equal(t, "https://www.thuisarts.nl/hoofdpijn", docs[0].URL)
	assert.Equal(t, path, docs[0].Source)
	assert.NotEmpty(t, docs[0].ID)
	assert.NotEqual(t, docs[0].ID, docs[1].ID)
	assert.Equal(t, "algemeen", docs[1].Metadata["section"])

	// IDs are stable across runs so re-ingesting replaces documents.
	again, err := ParseFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, docs[0].ID, again[0].ID)
}

func TestParseJSONWrappedAndSingle(t *testing.T) {
	dir := t.TempDir()

	docs, err := ParseFile(writeFile(t, dir, "wrapped.json", `{"documents":[{"id":"a","title":"A","content":"aaa"}]}`), 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	docs, err = ParseFile(writeFile(t, dir, "single.json", `{"title":"B","content":"bbb"}`), 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0].Title)
}

func TestParseJSONL(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "docs.jsonl", `{"title":"A","url":"u1","content":"aaa"}

{"title":"B","url":"u2","content":"bbb"}
`)
	docs, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "B", docs[1].Title)

	_, err = ParseFile(writeFile(t, dir, "bad.jsonl", "{\"title\":\"A\"}\n{oops\n"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseMarkdown(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "enkel.md", "url: https://www.thuisarts.nl/enkel\n# Enkelverstuiking\n\nKoel de enkel en leg hem hoog.\n")
	docs, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Enkelverstuiking", docs[0].Title)
	assert.Equal(t, "https://www.thuisarts.nl/enkel", docs[0].URL)
	assert.Equal(t, "# Enkelverstuiking\n\nKoel de enkel en leg hem hoog.", docs[0].Content)

	path = writeFile(t, dir, "notitie.txt", "Gewoon wat tekst zonder kop.")
	docs, err = ParseFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "notitie", docs[0].Title)
	assert.Equal(t, filepath.ToSlash(path), docs[0].URL)
}

func TestParseFrontMatter(t *testing.T) {
	path := writeFile(t, t.TempDir(), "griep.md", `---
title: Griep
url: https://www.thuisarts.nl/griep
tags: [virus, winter]
---
# Een andere kop

Rust en drink veel.
`)
	docs, err := ParseFile(path, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Griep", docs[0].Title)
	assert.Equal(t, "https://www.thuisarts.nl/griep", docs[0].URL)
	assert.Equal(t, "virus,winter", docs[0].Metadata["tags"])
	assert.True(t, strings.HasPrefix(docs[0].Content, "# Een andere kop"))
}

func TestChunking(t *testing.T) {
	para := strings.Repeat("woord ", 30)
	text := strings.Join([]string{para, para, para}, "\n\n")

	parts := chunk(text, 300)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 300)
	}

	path := writeFile(t, t.TempDir(), "lang.md", "# Lang\n\n"+text)
	docs, err := ParseFile(path, 300)
	require.NoError(t, err)
	require.Greater(t, len(docs), 1)
	assert.Equal(t, "Lang (deel 1)", docs[0].Title)
	assert.True(t, strings.HasSuffix(docs[0].ID, "#1"))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", "[]")
	writeFile(t, dir, "sub/b.md", "# B")
	writeFile(t, dir, "sub/deeper/c.txt", "c")
	writeFile(t, dir, "sub/image.png", "png")
	writeFile(t, dir, "node_modules/x.json", "[]")
	writeFile(t, dir, "sub/binary.txt", "bin\x00ary")

	files, err := Discover([]string{filepath.Join(dir, "**", "*"), filepath.Join(dir, "a.json")}, 0)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f.Path)
		names = append(names, filepath.ToSlash(rel))
		assert.Len(t, f.ContentHash, 64)
	}
	assert.Equal(t, []string{"a.json", "sub/b.md", "sub/deeper/c.txt"}, names)

	_, err = Discover([]string{"[unclosed"}, 0)
	assert.Error(t, err)
}

func TestRunIngestsAndPersists(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "thuisarts.json", thuisartsJSON)
	writeFile(t, dir, "enkel.md", "# Enkel\n\nKoelen.")

	store := newFakeStore()
	reporter := &recordingReporter{}
	in := New(store, Options{Concurrency: 2, BatchSize: 1}, reporter, zap.NewNop())

	res, err := in.Run(context.Background(), []string{filepath.Join(dir, "*")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 3, res.Documents)
	assert.Empty(t, res.Errors)
	assert.Len(t, store.docs, 3)
	assert.Equal(t, 1, store.persisted)
	assert.Equal(t, 2, reporter.total)
	assert.Len(t, reporter.updates, 2)
	assert.True(t, reporter.done)

	for _, d := range store.docs {
		assert.Len(t, d.Metadata["content_hash"], 64)
	}

	// Re-running replaces the file's documents rather than duplicating them.
	_, err = in.Run(context.Background(), []string{jsonPath})
	require.NoError(t, err)
	assert.Len(t, store.docs, 3)
	assert.Contains(t, store.deleted, jsonPath)
}

func TestRunCollectsFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.json", `[{"title":"A","content":"aaa"}]`)
	writeFile(t, dir, "broken.json", `[{"title":`)

	store := newFakeStore()
	res, err := New(store, Options{}, nil, zap.NewNop()).Run(context.Background(), []string{filepath.Join(dir, "*.json")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "broken.json")

	store.addErr = errors.New("embedding service down")
	res, err = New(store, Options{}, nil, zap.NewNop()).Run(context.Background(), []string{filepath.Join(dir, "ok.json")})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "embedding service down")
}

func TestRunNoMatches(t *testing.T) {
	store := newFakeStore()
	res, err := New(store, Options{}, nil, zap.NewNop()).Run(context.Background(), []string{filepath.Join(t.TempDir(), "*.json")})
	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.Zero(t, store.persisted)
}
