package normalizer

import (
	"strings"
	"unicode"

	"github.com/TillBeemelmanns/PDFCompare/internal/extractor"
)

// Word is one logical word of a document. Token is empty when the word was
// removed by the token filter; such words stay in the stream so that
// normalised indices can be projected back to geometry.
type Word struct {
	Raw     string           `json:"raw"`
	Token   string           `json:"token"`
	Parts   []extractor.Part `json:"parts"`
	OrigIdx int              `json:"orig_idx"`
}

// Page returns the page of the word's first fragment.
func (w Word) Page() int {
	if len(w.Parts) == 0 {
		return 0
	}
	return w.Parts[0].Page
}

// Document is the normalised form of one PDF: the full logical word stream
// plus the dense survivor index over it.
type Document struct {
	Path      string               `json:"path"`
	Words     []Word               `json:"words"`
	Survivors []int                `json:"survivors"`
	PageCount int                  `json:"page_count"`
	PageDims  []extractor.PageSize `json:"page_dims"`
}

// Tokens returns the dense token sequence of the surviving words.
func (d *Document) Tokens() []string {
	tokens := make([]string, len(d.Survivors))
	for i, orig := range d.Survivors {
		tokens[i] = d.Words[orig].Token
	}
	return tokens
}

// Reindex rebuilds the survivor index from the word stream. Used after
// loading a cached document, where tokens are persisted but the dense
// index is not.
func (d *Document) Reindex() {
	d.Survivors = d.Survivors[:0]
	for i := range d.Words {
		d.Words[i].OrigIdx = i
		if d.Words[i].Token != "" {
			d.Survivors = append(d.Survivors, i)
		}
	}
}

// Normalize turns a raw word stream into a Document: de-hyphenation,
// token normalisation, stop-word filtering and dense re-indexing.
func Normalize(raw *extractor.RawDocument) *Document {
	doc := &Document{
		Path:      raw.Path,
		PageCount: len(raw.Pages),
	}
	type flat struct {
		raw  string
		part extractor.Part
	}
	var stream []flat
	for _, page := range raw.Pages {
		doc.PageDims = append(doc.PageDims, page.Size)
		for _, w := range page.Words {
			stream = append(stream, flat{raw: w.Raw, part: extractor.Part{Page: page.Index, BBox: w.BBox}})
		}
	}

	// De-hyphenation: a word ending in a hyphen fuses with its successor
	// when the successor starts a new line (it begins left of the
	// hyphenated word) or a new page. The fused word keeps both source
	// rectangles.
	for i := 0; i < len(stream); i++ {
		cur := stream[i]
		if strings.HasSuffix(cur.raw, "-") && i+1 < len(stream) && breaksLine(cur.part, stream[i+1].part) {
			next := stream[i+1]
			doc.Words = append(doc.Words, Word{
				Raw:   strings.TrimSuffix(cur.raw, "-") + next.raw,
				Parts: []extractor.Part{cur.part, next.part},
			})
			i++
			continue
		}
		doc.Words = append(doc.Words, Word{
			Raw:   cur.raw,
			Parts: []extractor.Part{cur.part},
		})
	}

	for i := range doc.Words {
		doc.Words[i].Token = filterToken(NormalizeToken(doc.Words[i].Raw))
	}
	doc.Reindex()
	return doc
}

// breaksLine reports whether next begins a new line or page relative to cur.
func breaksLine(cur, next extractor.Part) bool {
	if next.Page != cur.Page {
		return next.Page > cur.Page
	}
	return next.BBox.X0 < cur.BBox.X0
}

// NormalizeToken lower-cases a word, strips leading and trailing
// punctuation and collapses internal whitespace. Idempotent.
func NormalizeToken(raw string) string {
	s := strings.ToLower(raw)
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

// filterToken applies the token filter: empty tokens, single-character
// numerics and stop-words are dropped.
func filterToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) < 2 && isNumeric(token) {
		return ""
	}
	if IsStopword(token) {
		return ""
	}
	return token
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
