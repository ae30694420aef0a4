package seeder

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/TillBeemelmanns/PDFCompare/internal/index"
)

func tokens(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return out
}

func TestDetectIdentity(t *testing.T) {
	ref := tokens("w", 20)
	store := index.NewStore(3)
	store.Add(0, ref)

	blocks := Detect(ref, store, Exact, 3, 1, nil)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d: %+v", len(blocks), blocks)
	}
	b := blocks[0]
	if b.TStart != 0 || b.TEnd != 19 || b.RStart != 0 || b.REnd != 19 {
		t.Errorf("block does not cover the document: %+v", b)
	}
	if b.SeedCount != 18 {
		t.Errorf("seed count = %d, want 18", b.SeedCount)
	}
}

func TestDetectNoOverlap(t *testing.T) {
	store := index.NewStore(3)
	store.Add(0, tokens("ref", 15))
	blocks := Detect(tokens("tgt", 15), store, Exact, 3, 1, nil)
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks, got %+v", blocks)
	}
}

func TestDetectGapMerging(t *testing.T) {
	ref := tokens("w", 12)
	store := index.NewStore(3)
	store.Add(0, ref)

	// ref[0..5], two foreign words, ref[6..11]: the gap is within
	// merge_gap + n, so a single block results.
	target := append(append(append([]string{}, ref[:6]...), "zz1", "yy2"), ref[6:]...)
	blocks := Detect(target, store, Exact, 3, 1, nil)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 merged block, got %d: %+v", len(blocks), blocks)
	}
	b := blocks[0]
	if b.TStart != 0 || b.TEnd != 13 {
		t.Errorf("target span = [%d,%d], want [0,13]", b.TStart, b.TEnd)
	}
	if b.RStart != 0 || b.REnd != 11 {
		t.Errorf("reference span = [%d,%d], want [0,11]", b.RStart, b.REnd)
	}
}

func TestDetectSplitOnLargeGap(t *testing.T) {
	ref := tokens("w", 12)
	store := index.NewStore(3)
	store.Add(0, ref)

	gap := tokens("xx", 10) // larger than merge_gap + n
	target := append(append(append([]string{}, ref[:6]...), gap...), ref[6:]...)
	blocks := Detect(target, store, Exact, 3, 1, nil)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
}

func TestDetectMonotoneReference(t *testing.T) {
	ref := tokens("w", 12)
	store := index.NewStore(3)
	store.Add(0, ref)

	// Second half of the reference first: reference position regresses,
	// so two blocks must result even though the target gap is small.
	target := append(append([]string{}, ref[6:]...), ref[:6]...)
	blocks := Detect(target, store, Exact, 3, 1, nil)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].RStart != 0 && blocks[1].RStart != 0 {
		t.Errorf("one block should start at reference 0: %+v", blocks)
	}
}

func TestDetectTwoReferences(t *testing.T) {
	shared := tokens("s", 10)
	store := index.NewStore(3)
	store.Add(0, shared)
	store.Add(1, append(tokens("b", 5), shared...))

	blocks := Detect(shared, store, Exact, 3, 1, nil)
	if len(blocks) != 2 {
		t.Fatalf("expected a block per reference, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].RefDoc != 0 || blocks[1].RefDoc != 1 {
		t.Errorf("blocks not sorted by ref doc: %+v", blocks)
	}
	if blocks[1].RStart != 5 {
		t.Errorf("second reference block should start at 5, got %d", blocks[1].RStart)
	}
}

func TestDetectShortTarget(t *testing.T) {
	store := index.NewStore(5)
	store.Add(0, tokens("w", 20))
	if blocks := Detect(tokens("w", 3), store, Exact, 3, 1, nil); blocks != nil {
		t.Fatalf("target shorter than n produced blocks: %+v", blocks)
	}
}

func TestDetectEmptyPool(t *testing.T) {
	store := index.NewStore(3)
	if blocks := Detect(tokens("w", 10), store, Exact, 3, 1, nil); len(blocks) != 0 {
		t.Fatalf("empty pool produced blocks: %+v", blocks)
	}
}

func TestDetectParallelDeterminism(t *testing.T) {
	ref := tokens("w", 120)
	store := index.NewStore(3)
	store.Add(0, ref)
	store.Add(1, append(tokens("q", 30), ref[40:80]...))

	target := append(append([]string{}, tokens("t", 25)...), ref...)
	serial := Detect(target, store, Exact, 3, 1, nil)
	parallel := Detect(target, store, Exact, 3, 8, nil)
	if !reflect.DeepEqual(serial, parallel) {
		t.Fatalf("parallel scan differs from serial:\n%+v\n%+v", serial, parallel)
	}
}

func TestDetectCancelled(t *testing.T) {
	ref := tokens("w", 50)
	store := index.NewStore(3)
	store.Add(0, ref)
	cancelled := func() bool { return true }
	if blocks := Detect(ref, store, Exact, 3, 2, cancelled); blocks != nil {
		t.Fatalf("cancelled scan returned blocks: %+v", blocks)
	}
}
