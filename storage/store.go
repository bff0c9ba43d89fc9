package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	ledgererrors "walletledger/core/errors"
)

var (
	ErrNotFound        = fmt.Errorf("storage: document not found: %w", ledgererrors.ErrNotFound)
	ErrVersionConflict = fmt.Errorf("storage: version conflict: %w", ledgererrors.ErrConcurrency)
	ErrInvalidPath     = errors.New("storage: invalid path")
	ErrDuplicatePath   = errors.New("storage: duplicate path in update")
	ErrClosed          = errors.New("storage: store closed")
)

// Document is a versioned value addressed by a slash separated path. The
// first committed write of a path has version 1.
type Document struct {
	Path    string
	Value   []byte
	Version uint64
}

// Mutation describes one write inside an atomic update. ExpectedVersion 0
// requires that the path does not exist yet. Blind writes skip the version
// check entirely.
type Mutation struct {
	Path            string
	Value           []byte
	Delete          bool
	ExpectedVersion uint64
	Blind           bool
}

// Event is published to subscribers after a commit.
type Event struct {
	Path    string
	Value   []byte
	Version uint64
	Deleted bool
}

// Backend is the persistence primitive behind a Store. Commit must apply
// every mutation or none, and must fail with ErrVersionConflict when an
// expected version does not match.
type Backend interface {
	Get(path string) (Document, error)
	List(prefix string) ([]Document, error)
	Commit(mutations []Mutation) ([]Document, error)
	Close() error
}

// Store exposes the document primitives used by the ledger and fans out
// committed changes to subscribers.
type Store struct {
	backend Backend
	hub     *hub
	closed  atomic.Bool
}

// New wraps the supplied backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, hub: newHub()}
}

// NewMemory returns a store backed by process memory.
func NewMemory() *Store {
	return New(NewMemDB())
}

// Get loads the document at path.
func (s *Store) Get(ctx context.Context, path string) (Document, error) {
	if err := s.check(ctx); err != nil {
		return Document{}, err
	}
	if err := validatePath(path); err != nil {
		return Document{}, err
	}
	return s.backend.Get(path)
}

// List returns every document under prefix ordered by path.
func (s *Store) List(ctx context.Context, prefix string) ([]Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.backend.List(prefix)
}

// Set writes value unconditionally.
func (s *Store) Set(ctx context.Context, path string, value []byte) (Document, error) {
	docs, err := s.Update(ctx, []Mutation{{Path: path, Value: value, Blind: true}})
	if err != nil {
		return Document{}, err
	}
	return docs[0], nil
}

// Update applies the mutations atomically and returns the committed
// documents in mutation order. Deleted paths are returned with a nil value.
func (s *Store) Update(ctx context.Context, mutations []Mutation) ([]Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if len(mutations) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(mutations))
	for _, m := range mutations {
		if err := validatePath(m.Path); err != nil {
			return nil, err
		}
		if _, dup := seen[m.Path]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, m.Path)
		}
		seen[m.Path] = struct{}{}
	}
	docs, err := s.backend.Commit(mutations)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		s.hub.publish(Event{Path: doc.Path, Value: doc.Value, Version: doc.Version, Deleted: mutations[i].Delete})
	}
	return docs, nil
}

// PushID returns a new time ordered identifier.
func (s *Store) PushID() string {
	return NewPushID()
}

// NewPushID returns a UUIDv7 string. Lexical order follows creation time.
func NewPushID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Subscribe streams committed events whose path starts with prefix until
// ctx ends or cancel is called. The channel is closed when the subscription
// ends, including when the subscriber falls too far behind.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan Event, func()) {
	return s.hub.subscribe(ctx, prefix)
}

// Subscribers reports the number of live subscriptions.
func (s *Store) Subscribers() int {
	return s.hub.size()
}

// Close releases the backend and ends every subscription.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.hub.close()
	return s.backend.Close()
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// checkVersion enforces the optimistic concurrency rule for one mutation
// given the current version (0 when absent).
func checkVersion(m Mutation, current uint64) error {
	if m.Blind {
		return nil
	}
	if m.ExpectedVersion != current {
		return fmt.Errorf("%w: %s expected v%d found v%d", ErrVersionConflict, m.Path, m.ExpectedVersion, current)
	}
	if m.Delete && current == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, m.Path)
	}
	return nil
}
