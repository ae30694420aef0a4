package index

import (
	"github.com/cespare/xxhash/v2"
)

// fingerprintSep separates tokens inside a fingerprint digest so that
// token boundaries cannot alias ("ab","c" must not collide with "a","bc").
const fingerprintSep = 0x1f

// Fingerprint computes the process-stable 64-bit fingerprint of an n-gram.
// xxhash with its fixed default seed; never salted per process.
func Fingerprint(tokens []string) uint64 {
	d := xxhash.New()
	for _, t := range tokens {
		_, _ = d.WriteString(t)
		_, _ = d.Write([]byte{fingerprintSep})
	}
	return d.Sum64()
}

// Posting locates one n-gram occurrence inside a reference document.
type Posting struct {
	Doc int32
	Pos int32
}

// Store is the inverted n-gram index over the reference pool. Append-only
// while the pool is ingested, read-only during comparison.
type Store struct {
	n        int
	postings map[uint64][]Posting
	grams    int
}

// NewStore creates an index for n-token seeds. n is fixed for the
// lifetime of the store.
func NewStore(n int) *Store {
	return &Store{n: n, postings: make(map[uint64][]Posting)}
}

// SeedSize returns the n-gram width the store was built with.
func (s *Store) SeedSize() int { return s.n }

// Add indexes every n-gram of the document's dense token sequence.
// Documents shorter than n contribute no postings.
func (s *Store) Add(doc int32, tokens []string) {
	for i := 0; i+s.n <= len(tokens); i++ {
		fp := Fingerprint(tokens[i : i+s.n])
		s.postings[fp] = append(s.postings[fp], Posting{Doc: doc, Pos: int32(i)})
		s.grams++
	}
}

// Lookup returns the postings for a fingerprint, or nil.
func (s *Store) Lookup(fp uint64) []Posting {
	return s.postings[fp]
}

// Ngrams returns the number of distinct fingerprints in the index.
func (s *Store) Ngrams() int { return len(s.postings) }

// ApproxMemory estimates the index footprint in bytes for UI reporting.
func (s *Store) ApproxMemory() int64 {
	// map entry: 8-byte key + slice header + postings payload
	const entryOverhead = 8 + 24
	const postingSize = 8
	return int64(len(s.postings))*entryOverhead + int64(s.grams)*postingSize
}
