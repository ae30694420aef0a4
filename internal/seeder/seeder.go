package seeder

import (
	"sort"
	"sync"

	"github.com/TillBeemelmanns/PDFCompare/internal/index"
)

// Hit is one fingerprint collision between the target and a reference.
type Hit struct {
	TargetStart int
	RefDoc      int32
	RefStart    int
}

// Block is a diagonally-coherent, gap-tolerant cluster of seed hits
// against a single reference. Word ranges are inclusive.
type Block struct {
	RefDoc    int32
	TStart    int
	TEnd      int
	RStart    int
	REnd      int
	SeedCount int
}

// Expander produces the fingerprints to probe for one target n-gram.
// Exact mode probes a single fingerprint; fuzzy mode fans out to one-edit
// variants.
type Expander interface {
	Expand(gram []string) []uint64
}

type exactExpander struct{}

func (exactExpander) Expand(gram []string) []uint64 {
	return []uint64{index.Fingerprint(gram)}
}

// Exact is the expander used outside fuzzy mode.
var Exact Expander = exactExpander{}

// cancelCheckInterval bounds how much scan work happens between polls of
// the cancellation flag.
const cancelCheckInterval = 2048

// Detect runs Phase A: scan the target token sequence against the index
// and cluster the resulting hits into candidate blocks. The returned
// blocks are sorted by (ref_doc, t_start). cancelled may be nil; when it
// reports true the scan drains and Detect returns nil.
func Detect(tokens []string, store *index.Store, exp Expander, mergeGap, workers int, cancelled func() bool) []Block {
	n := store.SeedSize()
	positions := len(tokens) - n + 1
	if positions <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > positions {
		workers = positions
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	// The target position space is split into contiguous chunks; each
	// worker emits its own hit list against the read-only index.
	chunk := (positions + workers - 1) / workers
	partHits := make([][]Hit, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > positions {
			end = positions
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(slot, start, end int) {
			defer wg.Done()
			if cancelled() {
				return
			}
			var hits []Hit
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckInterval == 0 && cancelled() {
					return
				}
				for _, fp := range exp.Expand(tokens[i : i+n]) {
					for _, p := range store.Lookup(fp) {
						hits = append(hits, Hit{TargetStart: i, RefDoc: p.Doc, RefStart: int(p.Pos)})
					}
				}
			}
			partHits[slot] = hits
		}(w, start, end)
	}
	wg.Wait()
	if cancelled() {
		return nil
	}

	var hits []Hit
	for _, part := range partHits {
		hits = append(hits, part...)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RefDoc != hits[j].RefDoc {
			return hits[i].RefDoc < hits[j].RefDoc
		}
		if hits[i].TargetStart != hits[j].TargetStart {
			return hits[i].TargetStart < hits[j].TargetStart
		}
		return hits[i].RefStart < hits[j].RefStart
	})

	return cluster(hits, n, mergeGap)
}

// cluster walks hits per reference in ascending target order and merges
// them into gap-tolerant blocks. A hit joins an open block iff its target
// and reference gaps are within merge_gap + n and the reference position
// does not regress; among eligible blocks the one whose t_end is closest
// to the hit wins, ties going to the earlier block.
func cluster(hits []Hit, n, mergeGap int) []Block {
	tolerance := mergeGap + n
	var blocks []Block
	var active []Block

	closeBlock := func(b Block) {
		if b.TEnd-b.TStart+1 >= n {
			blocks = append(blocks, b)
		}
	}
	flush := func() {
		for _, b := range active {
			closeBlock(b)
		}
		active = active[:0]
	}

	var curDoc int32 = -1
	for _, h := range hits {
		if h.RefDoc != curDoc {
			flush()
			curDoc = h.RefDoc
		}

		// retire blocks the ascending target walk can never reach again
		kept := active[:0]
		for _, b := range active {
			if h.TargetStart-b.TEnd > tolerance {
				closeBlock(b)
				continue
			}
			kept = append(kept, b)
		}
		active = kept

		best := -1
		for i, b := range active {
			if h.TargetStart-b.TEnd > tolerance {
				continue
			}
			if h.RefStart-b.REnd > tolerance || h.RefStart < b.RStart {
				continue
			}
			if best == -1 || distance(h.TargetStart, b.TEnd) < distance(h.TargetStart, active[best].TEnd) {
				best = i
			}
		}
		if best >= 0 {
			b := &active[best]
			if end := h.TargetStart + n - 1; end > b.TEnd {
				b.TEnd = end
			}
			if end := h.RefStart + n - 1; end > b.REnd {
				b.REnd = end
			}
			b.SeedCount++
			continue
		}
		active = append(active, Block{
			RefDoc:    h.RefDoc,
			TStart:    h.TargetStart,
			TEnd:      h.TargetStart + n - 1,
			RStart:    h.RefStart,
			REnd:      h.RefStart + n - 1,
			SeedCount: 1,
		})
	}
	flush()

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].RefDoc != blocks[j].RefDoc {
			return blocks[i].RefDoc < blocks[j].RefDoc
		}
		if blocks[i].TStart != blocks[j].TStart {
			return blocks[i].TStart < blocks[j].TStart
		}
		return blocks[i].RStart < blocks[j].RStart
	})
	return blocks
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
