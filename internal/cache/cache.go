package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/TillBeemelmanns/PDFCompare/internal/extractor"
	"github.com/TillBeemelmanns/PDFCompare/internal/normalizer"
	"github.com/TillBeemelmanns/PDFCompare/pkg/logging"
)

// On-disk format: magic "PDFC", version u16, flags u16, page count u32,
// per-page dims as f32 pairs, word count u32, payload length u32, then an
// lz4 frame holding the length-prefixed word records in stream order.
// N-gram fingerprints are never persisted; they are recomputed each run so
// entries stay portable and seed size can change without invalidation.
const (
	formatVersion  = 1
	flagCompressed = 1
)

var magic = [4]byte{'P', 'D', 'F', 'C'}

var errCorrupt = errors.New("corrupt cache entry")

// Store is the content-keyed on-disk cache of normalised word records.
// Strictly an optimisation: write failures are swallowed, read failures
// force a re-parse.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a cache directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Key derives the content key of a source file:
// md5(absolute_path \0 mtime_ns \0 size), hex encoded.
func Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	raw := fmt.Sprintf("%s\x00%d\x00%d", abs, stat.ModTime().UnixNano(), stat.Size())
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

// Load returns the cached document for the source path, or (nil, false)
// on a miss. Corrupt or unknown-version entries are deleted and reported
// as a miss so the caller re-parses.
func (s *Store) Load(path string) (*normalizer.Document, bool) {
	key, err := Key(path)
	if err != nil {
		return nil, false
	}
	file := filepath.Join(s.dir, key+".dat")
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, false
	}
	doc, err := decode(data)
	if err != nil {
		logging.Component("cache").WithField("path", path).
			Warnf("dropping cache entry: %v", err)
		_ = os.Remove(file)
		return nil, false
	}
	doc.Path = path
	doc.Reindex()
	return doc, true
}

// Save persists the document under its source file's content key. The
// entry is written to a temp file and atomically renamed so a concurrent
// instance never observes a torn write. Failures are logged and swallowed.
func (s *Store) Save(path string, doc *normalizer.Document) {
	key, err := Key(path)
	if err != nil {
		logging.Component("cache").Warnf("cache write skipped for %s: %v", path, err)
		return
	}
	data, err := encode(doc)
	if err == nil {
		err = writeAtomic(s.dir, key+".dat", data)
	}
	if err != nil {
		logging.Component("cache").Warnf("cache write failed for %s: %v", path, err)
	}
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

func encode(doc *normalizer.Document) ([]byte, error) {
	var payload bytes.Buffer
	for _, w := range doc.Words {
		writeString(&payload, w.Raw)
		writeString(&payload, w.Token)
		writeU16(&payload, uint16(len(w.Parts)))
		for _, p := range w.Parts {
			writeU32(&payload, uint32(p.Page))
			writeRect(&payload, p.BBox)
		}
	}

	var compressed bytes.Buffer
	zw := lz4.NewWriter(&compressed)
	if _, err := zw.Write(payload.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(magic[:])
	writeU16(&out, formatVersion)
	writeU16(&out, flagCompressed)
	writeU32(&out, uint32(doc.PageCount))
	for _, d := range doc.PageDims {
		writeF32(&out, d.Width)
		writeF32(&out, d.Height)
	}
	writeU32(&out, uint32(len(doc.Words)))
	writeU32(&out, uint32(compressed.Len()))
	out.Write(compressed.Bytes())
	return out.Bytes(), nil
}

func decode(data []byte) (*normalizer.Document, error) {
	r := &reader{data: data}
	var m [4]byte
	r.read(m[:])
	if m != magic {
		return nil, fmt.Errorf("%w: bad magic", errCorrupt)
	}
	if v := r.u16(); v != formatVersion {
		return nil, fmt.Errorf("%w: unknown version %d", errCorrupt, v)
	}
	flags := r.u16()

	doc := &normalizer.Document{}
	doc.PageCount = int(r.u32())
	if doc.PageCount < 0 || doc.PageCount > 1<<20 {
		return nil, fmt.Errorf("%w: implausible page count", errCorrupt)
	}
	for i := 0; i < doc.PageCount; i++ {
		doc.PageDims = append(doc.PageDims, extractor.PageSize{Width: r.f32(), Height: r.f32()})
	}
	wordCount := int(r.u32())
	payloadLen := int(r.u32())
	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated header", errCorrupt)
	}
	payload := r.rest()
	if len(payload) != payloadLen {
		return nil, fmt.Errorf("%w: payload length mismatch", errCorrupt)
	}
	if flags&flagCompressed != 0 {
		raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCorrupt, err)
		}
		payload = raw
	}

	pr := &reader{data: payload}
	doc.Words = make([]normalizer.Word, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		w := normalizer.Word{
			Raw:   pr.str(),
			Token: pr.str(),
		}
		parts := int(pr.u16())
		for p := 0; p < parts; p++ {
			w.Parts = append(w.Parts, extractor.Part{
				Page: int(pr.u32()),
				BBox: pr.rect(),
			})
		}
		if pr.err != nil {
			return nil, fmt.Errorf("%w: truncated word records", errCorrupt)
		}
		doc.Words = append(doc.Words, w)
	}
	return doc, nil
}

func writeU16(b *bytes.Buffer, v uint16) { _ = binary.Write(b, binary.LittleEndian, v) }
func writeU32(b *bytes.Buffer, v uint32) { _ = binary.Write(b, binary.LittleEndian, v) }
func writeF32(b *bytes.Buffer, v float32) {
	writeU32(b, math.Float32bits(v))
}
func writeString(b *bytes.Buffer, s string) {
	writeU16(b, uint16(len(s)))
	b.WriteString(s)
}
func writeRect(b *bytes.Buffer, r extractor.Rect) {
	writeF32(b, r.X0)
	writeF32(b, r.Y0)
	writeF32(b, r.X1)
	writeF32(b, r.Y1)
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) read(dst []byte) {
	if r.err != nil {
		return
	}
	if r.off+len(dst) > len(r.data) {
		r.err = errCorrupt
		return
	}
	copy(dst, r.data[r.off:])
	r.off += len(dst)
}

func (r *reader) u16() uint16 {
	var b [2]byte
	r.read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func (r *reader) u32() uint32 {
	var b [4]byte
	r.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) str() string {
	n := int(r.u16())
	if r.err != nil || r.off+n > len(r.data) {
		r.err = errCorrupt
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

func (r *reader) rect() extractor.Rect {
	return extractor.Rect{X0: r.f32(), Y0: r.f32(), X1: r.f32(), Y1: r.f32()}
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	return r.data[r.off:]
}
