package extractor

import (
	"fmt"
	"sort"
	"strings"

	"rsc.io/pdf"

	"github.com/TillBeemelmanns/PDFCompare/pkg/logging"
)

// PDFExtractor pulls the ordered word stream of a PDF via rsc.io/pdf.
// Glyph runs are grouped into lines by baseline, then split into words on
// whitespace and horizontal gaps, yielding one bounding box per word.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF word extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract opens the PDF at path and returns its word stream page by page.
// Encrypted documents yield ErrEncrypted, anything else the library cannot
// parse yields ErrUnreadable. rsc.io/pdf panics on some malformed files,
// so parsing runs behind a recover that maps panics to ErrUnreadable.
func (e *PDFExtractor) Extract(path string) (doc *RawDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %s: %v", ErrUnreadable, path, r)
		}
	}()

	reader, err := pdf.Open(path)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return nil, fmt.Errorf("%w: %s", ErrEncrypted, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	doc = &RawDocument{Path: path}
	for i := 0; i < reader.NumPage(); i++ {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		size := pageSize(page)
		words := assembleWords(page.Content().Text, size)
		doc.Pages = append(doc.Pages, Page{Index: i, Size: size, Words: words})
	}

	logging.Component("extractor").WithField("path", path).
		Debugf("extracted %d pages", len(doc.Pages))
	return doc, nil
}

// pageSize reads the MediaBox, walking Parent for inherited entries.
func pageSize(page pdf.Page) PageSize {
	v := page.V
	for depth := 0; depth < 8 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if !box.IsNull() && box.Len() == 4 {
			return PageSize{
				Width:  float32(box.Index(2).Float64() - box.Index(0).Float64()),
				Height: float32(box.Index(3).Float64() - box.Index(1).Float64()),
			}
		}
		v = v.Key("Parent")
	}
	// US Letter, the same default rsc.io/pdf tooling assumes.
	return PageSize{Width: 612, Height: 792}
}

type glyphRun struct {
	x, y, w, size float64
	s             string
}

// assembleWords groups glyph runs into lines by baseline, orders them into
// reading order (top-down, left-right) and splits them into words. The
// returned boxes use a top-left origin so that ascending y0 follows
// reading order.
func assembleWords(text []pdf.Text, size PageSize) []RawWord {
	runs := make([]glyphRun, 0, len(text))
	for _, t := range text {
		if t.S == "" {
			continue
		}
		runs = append(runs, glyphRun{x: t.X, y: t.Y, w: t.W, size: t.FontSize, s: t.S})
	}
	if len(runs) == 0 {
		return nil
	}

	// Two runs share a line when their baselines are within half the
	// smaller font size.
	sort.SliceStable(runs, func(i, j int) bool {
		yi, yj := runs[i].y, runs[j].y
		si := runs[i].size
		if runs[j].size < si {
			si = runs[j].size
		}
		if diff := yi - yj; diff > si/2 || diff < -si/2 {
			return yi > yj // higher baseline first: top of page
		}
		return runs[i].x < runs[j].x
	})

	var words []RawWord
	var cur strings.Builder
	var x0, x1, baseline, fontSize float64

	flush := func() {
		raw := cur.String()
		if strings.TrimSpace(raw) == "" {
			cur.Reset()
			return
		}
		if fontSize <= 0 {
			fontSize = 10
		}
		words = append(words, RawWord{
			Raw: raw,
			BBox: Rect{
				X0: float32(x0),
				Y0: float32(float64(size.Height) - (baseline + 0.8*fontSize)),
				X1: float32(x1),
				Y1: float32(float64(size.Height) - (baseline - 0.2*fontSize)),
			},
		})
		cur.Reset()
	}

	for _, r := range runs {
		sameLine := cur.Len() > 0 && abs(r.y-baseline) <= maxf(r.size, fontSize)/2
		gap := r.x - x1
		if cur.Len() > 0 && (!sameLine || gap > maxf(0.3*r.size, 1.0)) {
			flush()
		}
		for _, seg := range splitRun(r) {
			if seg.s == " " {
				flush()
				continue
			}
			if cur.Len() == 0 {
				x0, baseline, fontSize = seg.x, seg.y, seg.size
			}
			cur.WriteString(seg.s)
			x1 = seg.x + seg.w
			if seg.size > fontSize {
				fontSize = seg.size
			}
		}
	}
	flush()
	return words
}

// splitRun breaks a glyph run on embedded spaces, apportioning its width
// across the resulting segments by rune count.
func splitRun(r glyphRun) []glyphRun {
	if !strings.Contains(r.s, " ") {
		return []glyphRun{r}
	}
	total := len([]rune(r.s))
	perRune := r.w / float64(total)
	var out []glyphRun
	x := r.x
	for _, field := range strings.SplitAfter(r.s, " ") {
		if field == "" {
			continue
		}
		word := strings.TrimSuffix(field, " ")
		n := len([]rune(field))
		if word != "" {
			out = append(out, glyphRun{x: x, y: r.y, w: perRune * float64(len([]rune(word))), size: r.size, s: word})
		}
		if strings.HasSuffix(field, " ") {
			out = append(out, glyphRun{x: x + perRune*float64(len([]rune(word))), y: r.y, w: 0, size: r.size, s: " "})
		}
		x += perRune * float64(n)
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
