package aligner

import (
	"fmt"
	"sort"

	"github.com/TillBeemelmanns/PDFCompare/internal/extractor"
	"github.com/TillBeemelmanns/PDFCompare/internal/normalizer"
	"github.com/TillBeemelmanns/PDFCompare/internal/seeder"
)

// minConfidence is the acceptance floor for a refined alignment.
const minConfidence = 0.4

// Refined is a candidate block narrowed to its optimal local interval.
// Ranges are inclusive target/reference word indices over the dense token
// sequences.
type Refined struct {
	Block      seeder.Block
	TStart     int
	TEnd       int
	RStart     int
	REnd       int
	Score      int
	Confidence float64
}

// Refine runs Smith-Waterman over a candidate block's extended context and
// maps the best local alignment back to word ranges. lookahead words of
// context are added on each side, clamped to bounds. Returns false when
// the block is degenerate or the refinement fails acceptance (confidence
// below the floor or refined span shorter than the seed size).
func Refine(target, ref []string, block seeder.Block, lookahead, seedSize int) (Refined, bool) {
	tLo := clamp(block.TStart-lookahead, 0, len(target))
	tHi := clamp(block.TEnd+1+lookahead, 0, len(target))
	rLo := clamp(block.RStart-lookahead, 0, len(ref))
	rHi := clamp(block.REnd+1+lookahead, 0, len(ref))

	a := target[tLo:tHi]
	b := ref[rLo:rHi]
	if len(a) == 0 || len(b) == 0 {
		return Refined{}, false
	}

	res := fillRows(a, b)
	if res.score == 0 {
		return Refined{}, false
	}
	aStart, aEnd, bStart, bEnd := traceback(a, b, res)

	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	confidence := float64(res.score) / float64(2*minLen)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	r := Refined{
		Block:      block,
		TStart:     tLo + aStart,
		TEnd:       tLo + aEnd,
		RStart:     rLo + bStart,
		REnd:       rLo + bEnd,
		Score:      int(res.score),
		Confidence: confidence,
	}
	if r.Confidence < minConfidence || r.TEnd-r.TStart+1 < seedSize {
		return Refined{}, false
	}
	return r, true
}

// PageRect is one highlight rectangle, confined to a single page.
type PageRect struct {
	Page int            `json:"page"`
	Rect extractor.Rect `json:"rect"`
}

// ProjectRects maps a refined dense word range back to highlight
// rectangles via the original, filter-preserved word stream. Adjacent
// same-page boxes whose y-midpoints sit within half a line height are
// unioned. The result is sorted by (page, y0, x0); no rectangle crosses a
// page boundary. Out-of-range indices indicate a broken invariant and are
// returned as an error.
func ProjectRects(doc *normalizer.Document, tStart, tEnd int) ([]PageRect, error) {
	if tStart < 0 || tEnd < tStart || tEnd >= len(doc.Survivors) {
		return nil, fmt.Errorf("word range [%d,%d] out of bounds (%d survivors)", tStart, tEnd, len(doc.Survivors))
	}

	var rects []PageRect
	haveCur := false
	var cur PageRect
	for i := tStart; i <= tEnd; i++ {
		orig := doc.Survivors[i]
		if orig < 0 || orig >= len(doc.Words) {
			return nil, fmt.Errorf("survivor index %d out of bounds (%d words)", orig, len(doc.Words))
		}
		for _, part := range doc.Words[orig].Parts {
			if haveCur && part.Page == cur.Page && sameLine(cur.Rect, part.BBox) {
				cur.Rect = cur.Rect.Union(part.BBox)
				continue
			}
			if haveCur {
				rects = append(rects, cur)
			}
			cur = PageRect{Page: part.Page, Rect: part.BBox}
			haveCur = true
		}
	}
	if haveCur {
		rects = append(rects, cur)
	}

	sort.SliceStable(rects, func(i, j int) bool {
		if rects[i].Page != rects[j].Page {
			return rects[i].Page < rects[j].Page
		}
		if rects[i].Rect.Y0 != rects[j].Rect.Y0 {
			return rects[i].Rect.Y0 < rects[j].Rect.Y0
		}
		return rects[i].Rect.X0 < rects[j].Rect.X0
	})
	return rects, nil
}

// sameLine reports whether two boxes share a text line: their y-midpoints
// are within half a line height, the line height being the taller box.
func sameLine(a, b extractor.Rect) bool {
	midA := (a.Y0 + a.Y1) / 2
	midB := (b.Y0 + b.Y1) / 2
	line := a.Height()
	if b.Height() > line {
		line = b.Height()
	}
	diff := midA - midB
	if diff < 0 {
		diff = -diff
	}
	return diff <= line/2
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
