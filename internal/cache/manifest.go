package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Entry records what a cache file holds, keyed by content key. The
// manifest exists for stats and cache maintenance; like the cache itself
// it is best-effort and never load-bearing.
type Entry struct {
	Key        string `json:"key"`
	SourcePath string `json:"source_path"`
	WordCount  int    `json:"word_count"`
	PageCount  int    `json:"page_count"`
	IndexedAt  int64  `json:"indexed_at"` // Unix timestamp
}

// Manifest wraps BadgerDB for cache bookkeeping operations.
type Manifest struct {
	db *badger.DB
}

// OpenManifest opens (or creates) the manifest database under dir.
func OpenManifest(dir string) (*Manifest, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest db: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Close closes the manifest database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Put stores a manifest entry.
func (m *Manifest) Put(e Entry) error {
	if e.IndexedAt == 0 {
		e.IndexedAt = time.Now().Unix()
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("doc:"+e.Key), val)
	})
}

// Get retrieves a manifest entry by content key.
func (m *Manifest) Get(key string) (Entry, error) {
	var e Entry
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("doc:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	return e, err
}

// List returns all manifest entries.
func (m *Manifest) List() ([]Entry, error) {
	var entries []Entry
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("doc:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Delete removes a manifest entry by content key.
func (m *Manifest) Delete(key string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("doc:" + key))
	})
}

// Prune removes cache files and manifest entries whose source file no
// longer exists or whose content key is stale. Returns the number of
// entries removed.
func (m *Manifest) Prune(cacheDir string) (int, error) {
	entries, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		current, keyErr := Key(e.SourcePath)
		if keyErr == nil && current == e.Key {
			continue
		}
		_ = os.Remove(filepath.Join(cacheDir, e.Key+".dat"))
		if err := m.Delete(e.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
