package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TillBeemelmanns/PDFCompare/internal/cache"
	"github.com/TillBeemelmanns/PDFCompare/internal/extractor"
	"github.com/TillBeemelmanns/PDFCompare/internal/index"
	"github.com/TillBeemelmanns/PDFCompare/internal/normalizer"
	"github.com/TillBeemelmanns/PDFCompare/pkg/logging"
)

// ErrCancelled is returned when the cancellation flag was raised. Not an
// error condition in the taxonomy sense; partial results are discarded.
var ErrCancelled = errors.New("pipeline cancelled")

// FatalKind classifies fatal pipeline errors.
type FatalKind string

const (
	KindNoTarget     FatalKind = "NoTarget"
	KindEmptyPool    FatalKind = "EmptyPool"
	KindInvalidParam FatalKind = "InvalidParam"
	KindInternal     FatalKind = "Internal"
)

// FatalError aborts a run. Input errors are reported before any work;
// Internal signals a broken invariant and is never silently recovered.
type FatalError struct {
	Kind    FatalKind
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func fatalf(kind FatalKind, format string, args ...any) *FatalError {
	return &FatalError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Cancel is the shared cooperative cancellation flag. A nil *Cancel never
// cancels.
type Cancel struct {
	flag atomic.Bool
}

func (c *Cancel) Cancel() {
	c.flag.Store(true)
}

func (c *Cancel) Cancelled() bool {
	return c != nil && c.flag.Load()
}

// Progress receives pipeline progress events. phase is one of "index",
// "compare", "align", "done".
type Progress func(phase string, current, total int, message string)

func (p Progress) emit(phase string, current, total int, message string) {
	if p != nil {
		p(phase, current, total, message)
	}
}

// Params are the comparison knobs.
type Params struct {
	SeedSize         int    `json:"seed_size"`
	MergeGap         int    `json:"merge_gap"`
	Mode             string `json:"mode"` // "exact" or "fuzzy"
	SmithWaterman    bool   `json:"smith_waterman"`
	ContextLookahead int    `json:"context_lookahead"`
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		SeedSize:         5,
		MergeGap:         3,
		Mode:             "exact",
		SmithWaterman:    true,
		ContextLookahead: 10,
	}
}

func (p Params) validate(indexSeedSize int) error {
	if p.SeedSize < 2 {
		return fatalf(KindInvalidParam, "seed_size must be >= 2, got %d", p.SeedSize)
	}
	if p.MergeGap < 0 {
		return fatalf(KindInvalidParam, "merge_gap must be >= 0, got %d", p.MergeGap)
	}
	if p.ContextLookahead < 0 {
		return fatalf(KindInvalidParam, "context_lookahead must be >= 0, got %d", p.ContextLookahead)
	}
	if p.Mode != "exact" && p.Mode != "fuzzy" {
		return fatalf(KindInvalidParam, "mode must be exact or fuzzy, got %q", p.Mode)
	}
	if p.SeedSize != indexSeedSize {
		return fatalf(KindInvalidParam, "seed_size %d does not match index seed size %d", p.SeedSize, indexSeedSize)
	}
	return nil
}

// SkippedDoc reports a reference document that could not be ingested.
type SkippedDoc struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Index is the reference pool prepared for comparison: the inverted
// n-gram store plus the per-document word streams needed by Phase B and
// geometry projection.
type Index struct {
	store   *index.Store
	docs    []*normalizer.Document
	tokens  [][]string
	paths   []string
	Skipped []SkippedDoc
}

// SeedSize returns the n the index was built with.
func (ix *Index) SeedSize() int { return ix.store.SeedSize() }

// Paths returns the indexed reference paths in document-id order.
func (ix *Index) Paths() []string { return ix.paths }

// Stats summarises an index for UI reporting.
type Stats struct {
	Ngrams            int   `json:"total_ngrams"`
	ReferenceFiles    int   `json:"reference_files"`
	ApproxMemoryBytes int64 `json:"approx_memory_bytes"`
}

// Options configure a Pipeline.
type Options struct {
	// Extractor is the word-extraction seam. Defaults to the rsc.io/pdf
	// backed extractor.
	Extractor extractor.WordExtractor

	// CacheDir enables the on-disk word-record cache when non-empty.
	CacheDir string

	// Manifest, when set, records cache bookkeeping entries.
	Manifest *cache.Manifest

	// Workers bounds parallelism. Defaults to runtime.NumCPU().
	Workers int
}

// Pipeline orchestrates ingest, indexing, seed detection and alignment.
// All state is passed explicitly; a Pipeline is safe to reuse across runs.
type Pipeline struct {
	ext      extractor.WordExtractor
	cache    *cache.Store
	manifest *cache.Manifest
	workers  int
	log      *logrus.Entry
}

// New creates a Pipeline from options.
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{
		ext:      opts.Extractor,
		manifest: opts.Manifest,
		workers:  opts.Workers,
	}
	if p.ext == nil {
		p.ext = extractor.NewPDFExtractor()
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	if opts.CacheDir != "" {
		store, err := cache.NewStore(opts.CacheDir)
		if err != nil {
			return nil, err
		}
		p.cache = store
	}
	p.log = logging.Component("pipeline")
	return p, nil
}

// BuildIndex ingests the reference pool and builds the inverted n-gram
// index. References are processed in parallel, bounded by
// min(workers, len(refPaths)); unreadable or encrypted documents are
// skipped and reported, never fatal. Postings are appended in document-id
// order so the index is deterministic.
func (p *Pipeline) BuildIndex(refPaths []string, n int, progress Progress, cancel *Cancel) (*Index, error) {
	if n < 2 {
		return nil, fatalf(KindInvalidParam, "seed_size must be >= 2, got %d", n)
	}
	if len(refPaths) == 0 {
		return nil, fatalf(KindEmptyPool, "no reference documents given")
	}

	runID := uuid.NewString()
	log := p.log.WithField("run_id", runID)
	log.Infof("indexing %d reference documents", len(refPaths))

	type slotResult struct {
		doc     *normalizer.Document
		skipped *SkippedDoc
	}
	results := make([]slotResult, len(refPaths))

	type task struct {
		slot int
		path string
	}
	workers := p.workers
	if workers > len(refPaths) {
		workers = len(refPaths)
	}
	taskChan := make(chan task, workers*2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				if cancel.Cancelled() {
					continue
				}
				doc, err := p.ingest(t.path)
				if err != nil {
					results[t.slot] = slotResult{skipped: &SkippedDoc{Path: t.path, Reason: skipReason(err)}}
					log.WithField("path", t.path).Warnf("skipping reference: %v", err)
				} else {
					results[t.slot] = slotResult{doc: doc}
				}
				mu.Lock()
				completed++
				progress.emit("index", completed, len(refPaths), t.path)
				mu.Unlock()
			}
		}()
	}
	for i, path := range refPaths {
		taskChan <- task{slot: i, path: path}
	}
	close(taskChan)
	wg.Wait()

	if cancel.Cancelled() {
		return nil, ErrCancelled
	}

	ix := &Index{store: index.NewStore(n)}
	for _, r := range results {
		if r.skipped != nil {
			ix.Skipped = append(ix.Skipped, *r.skipped)
			continue
		}
		docID := int32(len(ix.docs))
		tokens := r.doc.Tokens()
		ix.docs = append(ix.docs, r.doc)
		ix.tokens = append(ix.tokens, tokens)
		ix.paths = append(ix.paths, r.doc.Path)
		ix.store.Add(docID, tokens)
	}
	log.Infof("index ready: %d documents, %d distinct n-grams", len(ix.docs), ix.store.Ngrams())
	return ix, nil
}

// ingest loads a document through the cache, falling back to extraction
// and normalisation. The cache hit path performs no PDF parse.
func (p *Pipeline) ingest(path string) (*normalizer.Document, error) {
	if p.cache != nil {
		if doc, ok := p.cache.Load(path); ok {
			return doc, nil
		}
	}
	raw, err := p.ext.Extract(path)
	if err != nil {
		return nil, err
	}
	doc := normalizer.Normalize(raw)
	if p.cache != nil {
		p.cache.Save(path, doc)
		if p.manifest != nil {
			if key, err := cache.Key(path); err == nil {
				if err := p.manifest.Put(cache.Entry{
					Key:        key,
					SourcePath: path,
					WordCount:  len(doc.Words),
					PageCount:  doc.PageCount,
				}); err != nil {
					p.log.Warnf("manifest write failed for %s: %v", path, err)
				}
			}
		}
	}
	return doc, nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, extractor.ErrEncrypted):
		return "EncryptedPdf"
	case errors.Is(err, extractor.ErrUnreadable):
		return "UnreadablePdf"
	default:
		return err.Error()
	}
}

// Stats returns index statistics.
func (p *Pipeline) Stats(ix *Index) Stats {
	return Stats{
		Ngrams:            ix.store.Ngrams(),
		ReferenceFiles:    len(ix.docs),
		ApproxMemoryBytes: ix.store.ApproxMemory(),
	}
}
