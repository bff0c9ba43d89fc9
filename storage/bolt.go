package storage

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketDocuments = []byte("documents")

// Bolt is a persistent single-file backend. Every commit runs inside one
// bbolt read-write transaction.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (and migrates) the BoltDB file at path.
func NewBolt(path string, options *bolt.Options) (*Bolt, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(path string) (Document, error) {
	var doc Document
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketDocuments).Get([]byte(path))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		doc, err = decodeRecord(path, raw)
		return err
	})
	return doc, err
}

func (b *Bolt) List(prefix string) ([]Document, error) {
	out := make([]Document, 0)
	err := b.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketDocuments).Cursor()
		p := []byte(prefix)
		for k, v := cursor.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = cursor.Next() {
			doc, err := decodeRecord(string(k), v)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Commit(mutations []Mutation) ([]Document, error) {
	out := make([]Document, len(mutations))
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)
		for i, m := range mutations {
			key := []byte(m.Path)
			var current uint64
			if raw := bucket.Get(key); raw != nil {
				doc, err := decodeRecord(m.Path, raw)
				if err != nil {
					return err
				}
				current = doc.Version
			}
			if err := checkVersion(m, current); err != nil {
				return err
			}
			next := current + 1
			if m.Delete {
				if err := bucket.Delete(key); err != nil {
					return err
				}
				out[i] = Document{Path: m.Path, Version: next}
				continue
			}
			if err := bucket.Put(key, encodeRecord(next, m.Value)); err != nil {
				return err
			}
			out[i] = Document{Path: m.Path, Value: append([]byte(nil), m.Value...), Version: next}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying Bolt database handle.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
