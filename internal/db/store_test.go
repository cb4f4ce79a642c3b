package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewStore(database)
}

func TestStoreReadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.Read(context.Background(), "runs/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreWriteOverwritesDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Write(ctx, "runs/a", []byte(`{"status":"queued"}`)))
	require.NoError(t, store.Write(ctx, "runs/a", []byte(`{"status":"completed"}`)))

	got, err := store.Read(ctx, "runs/a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, string(got))
}

func TestStoreAppendAssignsSequencePerKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		seq, err := store.Append(ctx, "events/a", []byte(`{"n":1}`))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}
	seq, err := store.Append(ctx, "events/b", []byte(`{"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	all, err := store.Records(ctx, "events/a", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, int64(3), all[2].Seq)

	tail, err := store.Records(ctx, "events/a", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Seq)
}

func TestStoreListFiltersByPrefixNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Write(ctx, "runs/1", []byte(`{}`)))
	require.NoError(t, store.Write(ctx, "runs/2", []byte(`{}`)))
	require.NoError(t, store.Write(ctx, "other/1", []byte(`{}`)))

	docs, err := store.List(ctx, "runs/")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "runs/2", docs[0].Key)
	assert.Equal(t, "runs/1", docs[1].Key)
}

func TestStoreDeleteRemovesDocumentAndRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Write(ctx, "runs/1", []byte(`{}`)))
	_, err := store.Append(ctx, "runs/1", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "runs/1"))

	_, err = store.Read(ctx, "runs/1")
	assert.ErrorIs(t, err, ErrNotFound)
	recs, err := store.Records(ctx, "runs/1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
