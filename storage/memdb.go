package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemDB keeps documents in process memory. It is used by tests and by
// single-node deployments that do not need durability.
type MemDB struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemDB returns an empty in-memory backend.
func NewMemDB() *MemDB {
	return &MemDB{docs: make(map[string]Document)}
}

func (db *MemDB) Get(path string) (Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	doc, ok := db.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (db *MemDB) List(prefix string) ([]Document, error) {
	db.mu.RLock()
	out := make([]Document, 0)
	for path, doc := range db.docs {
		if strings.HasPrefix(path, prefix) {
			out = append(out, copyDocument(doc))
		}
	}
	db.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (db *MemDB) Commit(mutations []Mutation) ([]Document, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, m := range mutations {
		if err := checkVersion(m, db.docs[m.Path].Version); err != nil {
			return nil, err
		}
	}
	out := make([]Document, len(mutations))
	for i, m := range mutations {
		next := db.docs[m.Path].Version + 1
		if m.Delete {
			delete(db.docs, m.Path)
			out[i] = Document{Path: m.Path, Version: next}
			continue
		}
		doc := Document{Path: m.Path, Value: append([]byte(nil), m.Value...), Version: next}
		db.docs[m.Path] = doc
		out[i] = copyDocument(doc)
	}
	return out, nil
}

// Close satisfies the Backend interface for MemDB.
func (db *MemDB) Close() error {
	return nil
}

func copyDocument(doc Document) Document {
	doc.Value = append([]byte(nil), doc.Value...)
	return doc
}
