package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a persistent backend. Commits are serialised by a mutex and
// applied with a single write batch.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Get(path string) (Document, error) {
	raw, err := ldb.db.Get([]byte(path), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return decodeRecord(path, raw)
}

func (ldb *LevelDB) List(prefix string) ([]Document, error) {
	iter := ldb.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	out := make([]Document, 0)
	for iter.Next() {
		doc, err := decodeRecord(string(iter.Key()), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, iter.Error()
}

func (ldb *LevelDB) Commit(mutations []Mutation) ([]Document, error) {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()

	batch := new(leveldb.Batch)
	out := make([]Document, len(mutations))
	for i, m := range mutations {
		current, err := ldb.version(m.Path)
		if err != nil {
			return nil, err
		}
		if err := checkVersion(m, current); err != nil {
			return nil, err
		}
		next := current + 1
		if m.Delete {
			batch.Delete([]byte(m.Path))
			out[i] = Document{Path: m.Path, Version: next}
			continue
		}
		batch.Put([]byte(m.Path), encodeRecord(next, m.Value))
		out[i] = Document{Path: m.Path, Value: append([]byte(nil), m.Value...), Version: next}
	}
	if err := ldb.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return nil, fmt.Errorf("storage: leveldb write: %w", err)
	}
	return out, nil
}

func (ldb *LevelDB) version(path string) (uint64, error) {
	doc, err := ldb.Get(path)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
