package aligner

import (
	"reflect"
	"testing"

	"github.com/TillBeemelmanns/PDFCompare/internal/extractor"
	"github.com/TillBeemelmanns/PDFCompare/internal/normalizer"
	"github.com/TillBeemelmanns/PDFCompare/internal/seeder"
)

func block(tStart, tEnd, rStart, rEnd int) seeder.Block {
	return seeder.Block{RefDoc: 0, TStart: tStart, TEnd: tEnd, RStart: rStart, REnd: rEnd, SeedCount: 1}
}

func TestRefinePerfectAlignment(t *testing.T) {
	seq := []string{"a1", "b2", "c3", "d4", "e5"}
	r, ok := Refine(seq, seq, block(0, 4, 0, 4), 0, 3)
	if !ok {
		t.Fatalf("perfect alignment rejected")
	}
	if r.TStart != 0 || r.TEnd != 4 || r.RStart != 0 || r.REnd != 4 {
		t.Errorf("ranges = t[%d,%d] r[%d,%d], want full cover", r.TStart, r.TEnd, r.RStart, r.REnd)
	}
	if r.Score != 10 {
		t.Errorf("score = %d, want 10", r.Score)
	}
	if r.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", r.Confidence)
	}
}

func TestRefineWithInsertion(t *testing.T) {
	target := []string{"a1", "b2", "xx", "c3", "d4", "e5"}
	ref := []string{"a1", "b2", "c3", "d4", "e5"}
	r, ok := Refine(target, ref, block(0, 5, 0, 4), 0, 3)
	if !ok {
		t.Fatalf("gapped alignment rejected")
	}
	// five matches minus one gap
	if r.Score != 9 {
		t.Errorf("score = %d, want 9", r.Score)
	}
	if r.TStart != 0 || r.TEnd != 5 {
		t.Errorf("target range = [%d,%d], want [0,5]", r.TStart, r.TEnd)
	}
	if r.RStart != 0 || r.REnd != 4 {
		t.Errorf("reference range = [%d,%d], want [0,4]", r.RStart, r.REnd)
	}
}

func TestRefineWithSubstitution(t *testing.T) {
	target := []string{"a1", "b2", "yy", "d4", "e5"}
	ref := []string{"a1", "b2", "c3", "d4", "e5"}
	r, ok := Refine(target, ref, block(0, 4, 0, 4), 0, 3)
	if !ok {
		t.Fatalf("substituted alignment rejected")
	}
	// four matches minus one mismatch
	if r.Score != 7 {
		t.Errorf("score = %d, want 7", r.Score)
	}
	if r.TStart != 0 || r.TEnd != 4 {
		t.Errorf("target range = [%d,%d], want [0,4]", r.TStart, r.TEnd)
	}
}

func TestRefineLocalisesWithinContext(t *testing.T) {
	// the matching region sits in the middle of a larger context window
	target := []string{"n1", "n2", "n3", "a1", "b2", "c3", "d4", "n4", "n5"}
	ref := []string{"m1", "a1", "b2", "c3", "d4", "m2"}
	r, ok := Refine(target, ref, block(3, 6, 1, 4), 3, 3)
	if !ok {
		t.Fatalf("alignment rejected")
	}
	if r.TStart != 3 || r.TEnd != 6 {
		t.Errorf("target range = [%d,%d], want [3,6]", r.TStart, r.TEnd)
	}
	if r.RStart != 1 || r.REnd != 4 {
		t.Errorf("reference range = [%d,%d], want [1,4]", r.RStart, r.REnd)
	}
	if r.Score != 8 {
		t.Errorf("score = %d, want 8", r.Score)
	}
}

func TestRefineRejectsLowConfidence(t *testing.T) {
	target := []string{"a1", "x1", "x2", "x3", "x4", "x5", "x6", "x7", "x8", "x9"}
	ref := []string{"a1", "y1", "y2", "y3", "y4", "y5", "y6", "y7", "y8", "y9"}
	if r, ok := Refine(target, ref, block(0, 9, 0, 9), 0, 3); ok {
		t.Fatalf("single shared token accepted: %+v", r)
	}
}

func TestRefineRejectsShortSpan(t *testing.T) {
	target := []string{"a1", "b2"}
	ref := []string{"a1", "b2"}
	if _, ok := Refine(target, ref, block(0, 1, 0, 1), 0, 5); ok {
		t.Fatalf("span shorter than seed size accepted")
	}
}

func TestRefineDegenerate(t *testing.T) {
	if _, ok := Refine(nil, []string{"a1"}, block(0, 0, 0, 0), 0, 1); ok {
		t.Fatalf("empty target slice accepted")
	}
}

func TestFillPathsAgree(t *testing.T) {
	cases := [][2][]string{
		{{"a1", "b2", "c3", "d4", "e5"}, {"a1", "b2", "c3", "d4", "e5"}},
		{{"a1", "b2", "xx", "c3", "d4"}, {"a1", "b2", "c3", "d4", "e5"}},
		{{"q1", "q2", "q3"}, {"z1", "z2", "z3"}},
		{{"a1", "a1", "a1", "b2"}, {"a1", "b2", "a1", "a1"}},
		{{"t1"}, {"t1"}},
	}
	for i, c := range cases {
		s := fillScalar(c[0], c[1])
		r := fillRows(c[0], c[1])
		if !reflect.DeepEqual(s.h, r.h) {
			t.Errorf("case %d: matrices differ", i)
		}
		if s.score != r.score || s.maxI != r.maxI || s.maxJ != r.maxJ {
			t.Errorf("case %d: maxima differ: scalar(%d,%d,%d) rows(%d,%d,%d)",
				i, s.score, s.maxI, s.maxJ, r.score, r.maxI, r.maxJ)
		}
	}
}

func projDoc() *normalizer.Document {
	doc := &normalizer.Document{
		Path:      "test.pdf",
		PageCount: 2,
		PageDims: []extractor.PageSize{
			{Width: 612, Height: 792},
			{Width: 612, Height: 792},
		},
		Words: []normalizer.Word{
			{Raw: "alpha1", Token: "alpha1", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 50, Y0: 100, X1: 90, Y1: 112}},
			}},
			{Raw: "beta2", Token: "beta2", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 95, Y0: 100, X1: 130, Y1: 112}},
			}},
			{Raw: "the", Token: "", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 135, Y0: 100, X1: 150, Y1: 112}},
			}},
			{Raw: "gamma3", Token: "gamma3", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 155, Y0: 100, X1: 200, Y1: 112}},
			}},
			{Raw: "detection", Token: "detection", Parts: []extractor.Part{
				{Page: 0, BBox: extractor.Rect{X0: 500, Y0: 130, X1: 560, Y1: 142}},
				{Page: 1, BBox: extractor.Rect{X0: 50, Y0: 50, X1: 80, Y1: 62}},
			}},
		},
	}
	doc.Reindex()
	return doc
}

func TestProjectRectsMergesSameLine(t *testing.T) {
	doc := projDoc()
	// survivors: alpha1(0) beta2(1) gamma3(2) detection(3)
	rects, err := ProjectRects(doc, 0, 2)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	if len(rects) != 1 {
		t.Fatalf("same-line boxes not unioned: %+v", rects)
	}
	r := rects[0].Rect
	if r.X0 != 50 || r.X1 != 200 {
		t.Errorf("union = %+v, want x 50..200", r)
	}
}

func TestProjectRectsCrossPageWord(t *testing.T) {
	doc := projDoc()
	rects, err := ProjectRects(doc, 3, 3)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	if len(rects) != 2 {
		t.Fatalf("cross-page word should yield 2 rectangles, got %d", len(rects))
	}
	if rects[0].Page != 0 || rects[1].Page != 1 {
		t.Errorf("rectangles not sorted by page: %+v", rects)
	}
}

func TestProjectRectsSortedInvariant(t *testing.T) {
	doc := projDoc()
	rects, err := ProjectRects(doc, 0, 3)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	for i := 1; i < len(rects); i++ {
		prev, cur := rects[i-1], rects[i]
		if cur.Page < prev.Page {
			t.Fatalf("rects not sorted by page: %+v", rects)
		}
		if cur.Page == prev.Page && cur.Rect.Y0 < prev.Rect.Y0 {
			t.Fatalf("rects not sorted by y0 within page: %+v", rects)
		}
	}
}

func TestProjectRectsOutOfRange(t *testing.T) {
	doc := projDoc()
	if _, err := ProjectRects(doc, 0, 99); err == nil {
		t.Fatalf("out-of-range projection did not error")
	}
	if _, err := ProjectRects(doc, -1, 2); err == nil {
		t.Fatalf("negative start did not error")
	}
}
