package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TillBeemelmanns/PDFCompare/internal/extractor"
	"github.com/TillBeemelmanns/PDFCompare/internal/normalizer"
)

func testDoc(path string) *normalizer.Document {
	doc := &normalizer.Document{
		Path:      path,
		PageCount: 2,
		PageDims: []extractor.PageSize{
			{Width: 612, Height: 792},
			{Width: 612, Height: 792},
		},
		Words: []normalizer.Word{
			{Raw: "Alpha", Token: "alpha", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 50, Y0: 100, X1: 90, Y1: 112}},
			}},
			{Raw: "the", Token: "", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 95, Y0: 100, X1: 110, Y1: 112}},
			}},
			{Raw: "detection", Token: "detection", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 500, Y0: 100, X1: 560, Y1: 112}},
				{Page: 1, BBox: extractor.Rect{X0: 50, Y0: 50, X1: 80, Y1: 62}},
			}},
		},
	}
	doc.Reindex()
	return doc
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
	return path
}

func TestKeyChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "doc.pdf", "original content")
	key1, err := Key(src)
	if err != nil {
		t.Fatalf("key failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	writeSource(t, dir, "doc.pdf", "changed content and longer")
	key2, err := Key(src)
	if err != nil {
		t.Fatalf("key failed: %v", err)
	}
	if key1 == key2 {
		t.Fatalf("content key did not change with file contents")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "doc.pdf", "pdf bytes")
	store, err := NewStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	doc := testDoc(src)
	store.Save(src, doc)

	loaded, ok := store.Load(src)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if loaded.PageCount != doc.PageCount {
		t.Errorf("page count = %d, want %d", loaded.PageCount, doc.PageCount)
	}
	if len(loaded.PageDims) != 2 || loaded.PageDims[0].Width != 612 {
		t.Errorf("page dims not preserved: %+v", loaded.PageDims)
	}
	if len(loaded.Words) != len(doc.Words) {
		t.Fatalf("word count = %d, want %d", len(loaded.Words), len(doc.Words))
	}
	for i := range doc.Words {
		if loaded.Words[i].Raw != doc.Words[i].Raw || loaded.Words[i].Token != doc.Words[i].Token {
			t.Errorf("word %d mismatch: %+v vs %+v", i, loaded.Words[i], doc.Words[i])
		}
		if len(loaded.Words[i].Parts) != len(doc.Words[i].Parts) {
			t.Errorf("word %d parts = %d, want %d", i, len(loaded.Words[i].Parts), len(doc.Words[i].Parts))
		}
	}
	if loaded.Words[2].Parts[1].Page != 1 {
		t.Errorf("cross-page part lost its page index")
	}
	if got := loaded.Words[0].Parts[0].BBox; got != doc.Words[0].Parts[0].BBox {
		t.Errorf("bbox mismatch: %+v", got)
	}
	if len(loaded.Survivors) != 2 {
		t.Errorf("survivor index not rebuilt: %v", loaded.Survivors)
	}
}

func TestLoadMissAfterSourceChange(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "doc.pdf", "v1")
	store, err := NewStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.Save(src, testDoc(src))

	time.Sleep(10 * time.Millisecond)
	writeSource(t, dir, "doc.pdf", "v2 is a different size")
	if _, ok := store.Load(src); ok {
		t.Fatalf("stale entry served after source change")
	}
}

func TestLoadCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "doc.pdf", "pdf bytes")
	cacheDir := filepath.Join(dir, "cache")
	store, err := NewStore(cacheDir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	key, err := Key(src)
	if err != nil {
		t.Fatalf("key failed: %v", err)
	}
	entry := filepath.Join(cacheDir, key+".dat")
	if err := os.WriteFile(entry, []byte("garbage garbage garbage"), 0644); err != nil {
		t.Fatalf("failed to plant corrupt entry: %v", err)
	}

	if _, ok := store.Load(src); ok {
		t.Fatalf("corrupt entry served as hit")
	}
	if _, err := os.Stat(entry); !os.IsNotExist(err) {
		t.Errorf("corrupt entry not deleted")
	}
}

func TestLoadUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "doc.pdf", "pdf bytes")
	cacheDir := filepath.Join(dir, "cache")
	store, err := NewStore(cacheDir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	store.Save(src, testDoc(src))

	key, _ := Key(src)
	entry := filepath.Join(cacheDir, key+".dat")
	data, err := os.ReadFile(entry)
	if err != nil {
		t.Fatalf("failed to read entry: %v", err)
	}
	// bump the version field behind the magic
	data[4] = 0xff
	data[5] = 0xff
	if err := os.WriteFile(entry, data, 0644); err != nil {
		t.Fatalf("failed to rewrite entry: %v", err)
	}

	if _, ok := store.Load(src); ok {
		t.Fatalf("unknown version served as hit")
	}
}

func TestManifestCRUD(t *testing.T) {
	dir := t.TempDir()
	m, err := OpenManifest(filepath.Join(dir, "manifest"))
	if err != nil {
		t.Fatalf("failed to open manifest: %v", err)
	}
	defer m.Close()

	e := Entry{Key: "abc123", SourcePath: "/tmp/doc.pdf", WordCount: 100, PageCount: 3}
	if err := m.Put(e); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := m.Get("abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SourcePath != e.SourcePath || got.WordCount != e.WordCount {
		t.Errorf("retrieved entry does not match: %+v", got)
	}
	if got.IndexedAt == 0 {
		t.Errorf("IndexedAt not stamped")
	}

	entries, err := m.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("list returned %d entries, want 1", len(entries))
	}

	if err := m.Delete("abc123"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := m.Get("abc123"); err == nil {
		t.Errorf("entry still present after delete")
	}
}

func TestManifestPrune(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	store, err := NewStore(cacheDir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	m, err := OpenManifest(filepath.Join(dir, "manifest"))
	if err != nil {
		t.Fatalf("failed to open manifest: %v", err)
	}
	defer m.Close()

	live := writeSource(t, dir, "live.pdf", "live")
	liveKey, _ := Key(live)
	store.Save(live, testDoc(live))
	if err := m.Put(Entry{Key: liveKey, SourcePath: live}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := m.Put(Entry{Key: "deadbeef", SourcePath: filepath.Join(dir, "gone.pdf")}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	removed, err := m.Prune(cacheDir)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("pruned %d entries, want 1", removed)
	}
	if _, err := m.Get(liveKey); err != nil {
		t.Errorf("live entry pruned")
	}
}
