package fuzzy

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/TillBeemelmanns/PDFCompare/internal/index"
)

// MaxVariants caps the n-gram fan-out per target position.
const MaxVariants = 8

// Matcher holds the token equivalence map of a reference pool: every
// distinct reference token maps to the reference tokens within Levenshtein
// distance 1 and length difference at most 1, itself included. Built once
// per run and read-only afterwards.
type Matcher struct {
	neighbors map[string][]string
	variants  map[string][]string
}

// NewMatcher builds the equivalence map over the distinct reference
// tokens. Candidate neighbours come from single-deletion variant buckets,
// then each candidate is confirmed by an exact distance computation.
func NewMatcher(vocab []string) *Matcher {
	distinct := make(map[string]struct{}, len(vocab))
	for _, t := range vocab {
		if t != "" {
			distinct[t] = struct{}{}
		}
	}

	variants := make(map[string][]string)
	for t := range distinct {
		variants[t] = append(variants[t], t)
		for _, v := range deletions(t) {
			variants[v] = append(variants[v], t)
		}
	}

	m := &Matcher{
		neighbors: make(map[string][]string, len(distinct)),
		variants:  variants,
	}
	for t := range distinct {
		m.neighbors[t] = m.resolve(t)
	}
	return m
}

// resolve collects the confirmed distance-1 neighbours of token t.
func (m *Matcher) resolve(t string) []string {
	seen := map[string]struct{}{t: {}}
	consider := func(cand string) {
		if _, dup := seen[cand]; dup {
			return
		}
		if lenDiff(t, cand) <= 1 && levenshtein.ComputeDistance(t, cand) <= 1 {
			seen[cand] = struct{}{}
		}
	}
	for _, cand := range m.variants[t] {
		consider(cand)
	}
	for _, v := range deletions(t) {
		for _, cand := range m.variants[v] {
			consider(cand)
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Alternatives returns the positional alternatives for a target token:
// the token itself first, then, in sorted order, the union of the
// equivalence classes of every reference token within distance 1 and
// length difference 1 of it.
func (m *Matcher) Alternatives(token string) []string {
	union := map[string]struct{}{}
	add := func(cand string) {
		if lenDiff(token, cand) <= 1 && levenshtein.ComputeDistance(token, cand) <= 1 {
			for _, n := range m.neighbors[cand] {
				union[n] = struct{}{}
			}
		}
	}
	if _, ok := m.neighbors[token]; ok {
		add(token)
	}
	for _, v := range deletions(token) {
		for _, cand := range m.variants[v] {
			add(cand)
		}
	}
	for _, cand := range m.variants[token] {
		add(cand)
	}

	delete(union, token)
	rest := make([]string, 0, len(union))
	for t := range union {
		rest = append(rest, t)
	}
	sort.Strings(rest)
	return append([]string{token}, rest...)
}

// Expand computes the fingerprints of a target n-gram and its one-edit
// variants, original first, capped at MaxVariants. The Cartesian product
// over positional alternatives is walked in deterministic order.
func (m *Matcher) Expand(gram []string) []uint64 {
	alts := make([][]string, len(gram))
	for i, tok := range gram {
		alts[i] = m.Alternatives(tok)
	}

	fps := make([]uint64, 0, MaxVariants)
	seen := make(map[uint64]struct{}, MaxVariants)
	variant := make([]string, len(gram))
	counters := make([]int, len(gram))
	for len(fps) < MaxVariants {
		for i := range gram {
			variant[i] = alts[i][counters[i]]
		}
		fp := index.Fingerprint(variant)
		if _, dup := seen[fp]; !dup {
			seen[fp] = struct{}{}
			fps = append(fps, fp)
		}
		// odometer over positional alternatives, last position fastest
		pos := len(counters) - 1
		for pos >= 0 {
			counters[pos]++
			if counters[pos] < len(alts[pos]) {
				break
			}
			counters[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return fps
}

// deletions returns every string formed by removing one rune from s.
func deletions(s string) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes))
	for i := range runes {
		out = append(out, string(runes[:i])+string(runes[i+1:]))
	}
	return out
}

func lenDiff(a, b string) int {
	d := len([]rune(a)) - len([]rune(b))
	if d < 0 {
		return -d
	}
	return d
}
