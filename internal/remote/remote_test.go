package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

func nextSnapshot(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case doc, ok := <-sub.Snapshots:
		require.True(t, ok, "subscription closed")
		return doc
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func assertNoSnapshot(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case doc, ok := <-sub.Snapshots:
		if ok {
			t.Fatalf("unexpected snapshot %s", doc)
		}
	case <-time.After(wait):
	}
}

func assertClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-sub.Snapshots:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}

// exerciseStore runs the behaviour every DocumentStore shares.
func exerciseStore(t *testing.T, store DocumentStore, quiet time.Duration) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "alice", []byte(`{"items": []}`)))
		doc, ok, err := store.Get(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.JSONEq(t, `{"items": []}`, string(doc))

		require.NoError(t, store.Set(ctx, "alice", []byte(`{"items": [{"recipe_id": "a"}]}`)))
		doc, _, err = store.Get(ctx, "alice")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items": [{"recipe_id": "a"}]}`, string(doc))
	})

	t.Run("SubscribeEmitsCurrentThenChanges", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "bob", []byte(`{"items": []}`)))

		sub, err := store.Subscribe(ctx, "bob")
		require.NoError(t, err)
		defer sub.Close()

		assert.JSONEq(t, `{"items": []}`, string(nextSnapshot(t, sub)))

		require.NoError(t, store.Set(ctx, "bob", []byte(`{"items": [{"recipe_id": "b"}]}`)))
		assert.JSONEq(t, `{"items": [{"recipe_id": "b"}]}`, string(nextSnapshot(t, sub)))

		require.NoError(t, store.Set(ctx, "someone-else", []byte(`{"items": []}`)))
		assertNoSnapshot(t, sub, quiet)
	})

	t.Run("SubscribeWithoutDocument", func(t *testing.T) {
		sub, err := store.Subscribe(ctx, "carol")
		require.NoError(t, err)
		defer sub.Close()

		assertNoSnapshot(t, sub, quiet)
		require.NoError(t, store.Set(ctx, "carol", []byte(`{"items": []}`)))
		assert.JSONEq(t, `{"items": []}`, string(nextSnapshot(t, sub)))
	})

	t.Run("CloseEndsSubscription", func(t *testing.T) {
		sub, err := store.Subscribe(ctx, "dave")
		require.NoError(t, err)
		sub.Close()
		sub.Close()
		assertClosed(t, sub)
	})

	t.Run("ContextEndsSubscription", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		sub, err := store.Subscribe(subCtx, "erin")
		require.NoError(t, err)
		defer sub.Close()

		cancel()
		assertClosed(t, sub)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store, 50*time.Millisecond)

	t.Run("Close", func(t *testing.T) {
		sub, err := store.Subscribe(context.Background(), "frank")
		require.NoError(t, err)

		require.NoError(t, store.Close())
		assertClosed(t, sub)

		_, _, err = store.Get(context.Background(), "frank")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, store.Set(context.Background(), "frank", []byte(`{}`)), ErrClosed)
	})
}

func TestSubscriberKeepsLatest(t *testing.T) {
	sub := newSubscriber()
	for i := 0; i < snapshotBuffer+3; i++ {
		sub.deliver([]byte{byte('0' + i)})
	}
	sub.close()
	sub.deliver([]byte("after close"))

	var got []byte
	for doc := range sub.ch {
		got = doc
	}
	assert.Equal(t, []byte{byte('0' + snapshotBuffer + 2)}, got)
}
