package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgererrors "walletledger/core/errors"
)

type backendFactory func(t *testing.T) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) Backend { return NewMemDB() },
		"leveldb": func(t *testing.T) Backend {
			db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
			require.NoError(t, err)
			return db
		},
		"bolt": func(t *testing.T) Backend {
			db, err := NewBolt(filepath.Join(t.TempDir(), "ledger.db"), nil)
			require.NoError(t, err)
			return db
		},
		"sqlite": func(t *testing.T) Backend {
			dsn := fmt.Sprintf("file:conformance-%d?mode=memory&cache=shared", time.Now().UnixNano())
			db, err := OpenSQLite(dsn)
			require.NoError(t, err)
			return db
		},
	}
}

func TestBackendConformance(t *testing.T) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			store := New(factory(t))
			t.Cleanup(func() { _ = store.Close() })
			ctx := context.Background()

			t.Run("create requires absence", func(t *testing.T) {
				docs, err := store.Update(ctx, []Mutation{{Path: "accounts/a", Value: []byte(`{"n":1}`)}})
				require.NoError(t, err)
				require.Equal(t, uint64(1), docs[0].Version)

				_, err = store.Update(ctx, []Mutation{{Path: "accounts/a", Value: []byte(`{"n":2}`)}})
				require.ErrorIs(t, err, ErrVersionConflict)
				require.True(t, errors.Is(err, ledgererrors.ErrConcurrency))

				doc, err := store.Get(ctx, "accounts/a")
				require.NoError(t, err)
				require.Equal(t, `{"n":1}`, string(doc.Value))
			})

			t.Run("versioned update", func(t *testing.T) {
				docs, err := store.Update(ctx, []Mutation{{Path: "accounts/a", Value: []byte(`{"n":3}`), ExpectedVersion: 1}})
				require.NoError(t, err)
				require.Equal(t, uint64(2), docs[0].Version)

				_, err = store.Update(ctx, []Mutation{{Path: "accounts/a", Value: []byte(`{"n":4}`), ExpectedVersion: 1}})
				require.ErrorIs(t, err, ErrVersionConflict)
			})

			t.Run("multi document commit is atomic", func(t *testing.T) {
				_, err := store.Update(ctx, []Mutation{
					{Path: "accounts/b", Value: []byte(`{}`)},
					{Path: "accounts/a", Value: []byte(`{"n":5}`), ExpectedVersion: 1},
				})
				require.ErrorIs(t, err, ErrVersionConflict)
				_, err = store.Get(ctx, "accounts/b")
				require.ErrorIs(t, err, ErrNotFound)

				docs, err := store.Update(ctx, []Mutation{
					{Path: "accounts/b", Value: []byte(`{}`)},
					{Path: "accounts/a", Value: []byte(`{"n":5}`), ExpectedVersion: 2},
					{Path: "grants/tx1", Value: []byte(`1`)},
				})
				require.NoError(t, err)
				require.Len(t, docs, 3)
				require.Equal(t, uint64(3), docs[1].Version)
			})

			t.Run("blind set", func(t *testing.T) {
				doc, err := store.Set(ctx, "settings", []byte(`{"a":1}`))
				require.NoError(t, err)
				require.Equal(t, uint64(1), doc.Version)
				doc, err = store.Set(ctx, "settings", []byte(`{"a":2}`))
				require.NoError(t, err)
				require.Equal(t, uint64(2), doc.Version)
			})

			t.Run("list by prefix", func(t *testing.T) {
				docs, err := store.List(ctx, "accounts/")
				require.NoError(t, err)
				require.Len(t, docs, 2)
				require.Equal(t, "accounts/a", docs[0].Path)
				require.Equal(t, "accounts/b", docs[1].Path)

				docs, err = store.List(ctx, "nothing/")
				require.NoError(t, err)
				require.Empty(t, docs)
			})

			t.Run("delete", func(t *testing.T) {
				_, err := store.Update(ctx, []Mutation{{Path: "grants/tx1", Delete: true, ExpectedVersion: 1}})
				require.NoError(t, err)
				_, err = store.Get(ctx, "grants/tx1")
				require.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("missing document", func(t *testing.T) {
				_, err := store.Get(ctx, "accounts/zz")
				require.ErrorIs(t, err, ErrNotFound)
				require.True(t, errors.Is(err, ledgererrors.ErrNotFound))
			})
		})
	}
}

func TestUpdateRejectsBadInput(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.Update(ctx, []Mutation{{Path: "/abs", Value: []byte("x")}})
	require.ErrorIs(t, err, ErrInvalidPath)

	_, err = store.Update(ctx, []Mutation{{Path: "a", Value: []byte("x")}, {Path: "a", Value: []byte("y")}})
	require.ErrorIs(t, err, ErrDuplicatePath)

	require.NoError(t, store.Close())
	_, err = store.Get(ctx, "a")
	require.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentCreateHasSingleWinner(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, []Mutation{{Path: "invites/ABCDEF", Value: []byte(fmt.Sprint(i))}})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrVersionConflict)
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	store := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, stop := store.Subscribe(ctx, "accounts/a")
	defer stop()
	require.Equal(t, 1, store.Subscribers())

	_, err := store.Set(ctx, "accounts/b", []byte("other"))
	require.NoError(t, err)
	_, err = store.Set(ctx, "accounts/a", []byte("mine"))
	require.NoError(t, err)

	select {
	case evt := <-events:
		require.Equal(t, "accounts/a", evt.Path)
		require.Equal(t, "mine", string(evt.Value))
		require.Equal(t, uint64(1), evt.Version)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	require.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-events
	require.False(t, open)
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	events, stop := store.Subscribe(ctx, "")
	defer stop()

	for i := 0; i < subscriberBuffer+1; i++ {
		_, err := store.Set(ctx, "accounts/a", []byte(fmt.Sprint(i)))
		require.NoError(t, err)
	}
	require.Equal(t, 0, store.Subscribers())

	received := 0
	for range events {
		received++
	}
	require.Equal(t, subscriberBuffer, received)
}

func TestPushIDIsOrdered(t *testing.T) {
	store := NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	prev := store.PushID()
	for i := 0; i < 100; i++ {
		next := store.PushID()
		require.Greater(t, next, prev)
		prev = next
	}
	require.Len(t, prev, 36)
}
