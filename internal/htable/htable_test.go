package htable

import (
	"testing"

	"github.com/dolfly/memcached/internal/slab"
	"github.com/stretchr/testify/require"
)

func TestIterateEmptyTableIsImmediatelyDone(t *testing.T) {
	tbl := New()
	iter, err := tbl.GetIterator()
	require.NoError(t, err)

	item, done := iter.Iterate()
	require.Nil(t, item)
	require.True(t, done)
	iter.IterateFinal()
}

func TestIterateVisitsEveryItemExactlyOnce(t *testing.T) {
	tbl := New()
	keys := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	for _, k := range keys {
		it := &slab.Item{Key: k}
		tbl.Insert(HashKey(k), it)
	}

	iter, err := tbl.GetIterator()
	require.NoError(t, err)

	seen := map[string]bool{}
	for {
		item, done := iter.Iterate()
		if done {
			break
		}
		if item == nil {
			continue // between buckets
		}
		require.False(t, seen[item.Key], "item visited twice: %s", item.Key)
		seen[item.Key] = true
	}
	iter.IterateFinal()

	require.Len(t, seen, len(keys))
	for _, k := range keys {
		require.True(t, seen[k])
	}
}

func TestGetIteratorFailsWhileExpanding(t *testing.T) {
	tbl := New()
	tbl.SetExpanding(true)

	_, err := tbl.GetIterator()
	require.ErrorIs(t, err, ErrExpanding)

	tbl.SetExpanding(false)
	_, err = tbl.GetIterator()
	require.NoError(t, err)
}

func TestTryLockBucketContention(t *testing.T) {
	tbl := New()
	hv := HashKey("contended-key")

	require.True(t, tbl.TryLockBucket(hv))
	require.False(t, tbl.TryLockBucket(hv), "a bucket already locked must refuse a second trylock")
	tbl.UnlockBucket(hv)
	require.True(t, tbl.TryLockBucket(hv))
	tbl.UnlockBucket(hv)
}

func TestInsertFindRemove(t *testing.T) {
	tbl := New()
	it := &slab.Item{Key: "k"}
	hv := HashKey("k")

	tbl.Insert(hv, it)
	found, ok := tbl.Find(hv, "k")
	require.True(t, ok)
	require.Same(t, it, found)

	tbl.Remove(hv, "k")
	_, ok = tbl.Find(hv, "k")
	require.False(t, ok)
}
