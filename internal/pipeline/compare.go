package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/TillBeemelmanns/PDFCompare/internal/aligner"
	"github.com/TillBeemelmanns/PDFCompare/internal/fuzzy"
	"github.com/TillBeemelmanns/PDFCompare/internal/seeder"
)

// Match is the durable output of one refined alignment against a single
// reference.
type Match struct {
	ID         uint64             `json:"match_id"`
	RefDoc     string             `json:"ref_doc"`
	TStart     int                `json:"t_start"`
	TEnd       int                `json:"t_end"`
	RStart     int                `json:"r_start"`
	REnd       int                `json:"r_end"`
	Score      int                `json:"score"`
	Confidence float64            `json:"confidence"`
	Rects      []aligner.PageRect `json:"rects"`
	RefRects   []aligner.PageRect `json:"ref_rects"`
	Color      string             `json:"color"`
}

// CompareResult is the outcome of comparing one target against the pool.
type CompareResult struct {
	Matches         []Match            `json:"matches"`
	PerRefScore     map[string]float64 `json:"per_ref_score"`
	TargetWordCount int                `json:"target_word_count"`
}

// sourcePalette provides the per-source highlight colours, picked
// deterministically from the reference path hash.
var sourcePalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#008080",
}

func colorFor(refPath string) string {
	return sourcePalette[xxhash.Sum64String(refPath)%uint64(len(sourcePalette))]
}

func matchID(refPath string, tStart, rStart, score int) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s|%d|%d|%d", refPath, tStart, rStart, score))
}

// Compare runs Phase A and Phase B of the pipeline for one target
// document against a prepared index.
func (p *Pipeline) Compare(targetPath string, ix *Index, params Params, progress Progress, cancel *Cancel) (*CompareResult, error) {
	if targetPath == "" {
		return nil, fatalf(KindNoTarget, "no target document given")
	}
	if ix == nil {
		return nil, fatalf(KindEmptyPool, "no reference index given")
	}
	if err := params.validate(ix.SeedSize()); err != nil {
		return nil, err
	}

	progress.emit("compare", 0, 1, "extracting target text")
	target, err := p.ingest(targetPath)
	if err != nil {
		return nil, fatalf(KindNoTarget, "target not readable: %v", err)
	}
	tokens := target.Tokens()
	result := &CompareResult{
		PerRefScore:     make(map[string]float64, len(ix.paths)),
		TargetWordCount: len(tokens),
	}
	for _, path := range ix.paths {
		result.PerRefScore[path] = 0
	}
	if len(tokens) == 0 || len(ix.docs) == 0 {
		progress.emit("done", 1, 1, "complete")
		return result, nil
	}

	exp := seeder.Expander(seeder.Exact)
	if params.Mode == "fuzzy" {
		exp = fuzzy.NewMatcher(p.referenceVocab(ix, params.SeedSize))
	}

	progress.emit("compare", 0, 1, "matching n-grams")
	blocks := seeder.Detect(tokens, ix.store, exp, params.MergeGap, p.workers, cancel.Cancelled)
	if cancel.Cancelled() {
		return nil, ErrCancelled
	}
	progress.emit("compare", 1, 1, fmt.Sprintf("%d candidate blocks", len(blocks)))

	refined, err := p.refineBlocks(tokens, ix, blocks, params, progress, cancel)
	if err != nil {
		return nil, err
	}

	// Per-reference similarity counts each surviving target word once per
	// reference, even when matches overlap.
	matchedWords := make(map[int32][]bool)
	for _, r := range refined {
		refPath := ix.paths[r.Block.RefDoc]
		rects, projErr := aligner.ProjectRects(target, r.TStart, r.TEnd)
		if projErr != nil {
			return nil, fatalf(KindInternal, "rectangle projection: %v", projErr)
		}
		refRects, projErr := aligner.ProjectRects(ix.docs[r.Block.RefDoc], r.RStart, r.REnd)
		if projErr != nil {
			return nil, fatalf(KindInternal, "reference rectangle projection: %v", projErr)
		}
		result.Matches = append(result.Matches, Match{
			ID:         matchID(refPath, r.TStart, r.RStart, r.Score),
			RefDoc:     refPath,
			TStart:     r.TStart,
			TEnd:       r.TEnd,
			RStart:     r.RStart,
			REnd:       r.REnd,
			Score:      r.Score,
			Confidence: r.Confidence,
			Rects:      rects,
			RefRects:   refRects,
			Color:      colorFor(refPath),
		})
		seen := matchedWords[r.Block.RefDoc]
		if seen == nil {
			seen = make([]bool, len(tokens))
			matchedWords[r.Block.RefDoc] = seen
		}
		for i := r.TStart; i <= r.TEnd; i++ {
			seen[i] = true
		}
	}

	for doc, seen := range matchedWords {
		count := 0
		for _, s := range seen {
			if s {
				count++
			}
		}
		result.PerRefScore[ix.paths[doc]] = float64(count) / float64(len(tokens))
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.RefDoc != b.RefDoc {
			return a.RefDoc < b.RefDoc
		}
		if a.TStart != b.TStart {
			return a.TStart < b.TStart
		}
		return a.RStart < b.RStart
	})

	progress.emit("done", 1, 1, fmt.Sprintf("%d matches", len(result.Matches)))
	return result, nil
}

// refineBlocks runs Phase B over the candidate blocks, partitioned across
// the worker pool. Results are collected per block slot so output order
// does not depend on scheduling.
func (p *Pipeline) refineBlocks(tokens []string, ix *Index, blocks []seeder.Block, params Params, progress Progress, cancel *Cancel) ([]aligner.Refined, error) {
	results := make([]*aligner.Refined, len(blocks))

	taskChan := make(chan int, p.workers*2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for bi := range taskChan {
				if cancel.Cancelled() {
					continue
				}
				block := blocks[bi]
				refTokens := ix.tokens[block.RefDoc]
				if params.SmithWaterman {
					if r, ok := aligner.Refine(tokens, refTokens, block, params.ContextLookahead, params.SeedSize); ok {
						results[bi] = &r
					}
				} else if r, ok := passthrough(block, params.SeedSize, len(tokens), len(refTokens)); ok {
					results[bi] = &r
				}
				mu.Lock()
				done++
				progress.emit("align", done, len(blocks), fmt.Sprintf("block %d/%d", done, len(blocks)))
				mu.Unlock()
			}
		}()
	}
	for bi := range blocks {
		taskChan <- bi
	}
	close(taskChan)
	wg.Wait()

	if cancel.Cancelled() {
		return nil, ErrCancelled
	}

	var refined []aligner.Refined
	for _, r := range results {
		if r != nil {
			refined = append(refined, *r)
		}
	}
	return refined, nil
}

// passthrough emits a candidate block unchanged when Smith-Waterman is
// disabled. Confidence grows with block length, saturating at 1.
func passthrough(block seeder.Block, seedSize, targetLen, refLen int) (aligner.Refined, bool) {
	tEnd := block.TEnd
	if tEnd >= targetLen {
		tEnd = targetLen - 1
	}
	rEnd := block.REnd
	if rEnd >= refLen {
		rEnd = refLen - 1
	}
	span := tEnd - block.TStart + 1
	if span < seedSize {
		return aligner.Refined{}, false
	}
	confidence := 0.5 + float64(span)/20*0.5
	if confidence > 1 {
		confidence = 1
	}
	return aligner.Refined{
		Block:      block,
		TStart:     block.TStart,
		TEnd:       tEnd,
		RStart:     block.RStart,
		REnd:       rEnd,
		Score:      2 * span,
		Confidence: confidence,
	}, true
}

// referenceVocab collects the tokens appearing in any indexed n-gram,
// duplicates included: documents shorter than the seed size contribute
// nothing.
func (p *Pipeline) referenceVocab(ix *Index, seedSize int) []string {
	var vocab []string
	for _, tokens := range ix.tokens {
		if len(tokens) < seedSize {
			continue
		}
		vocab = append(vocab, tokens...)
	}
	return vocab
}
