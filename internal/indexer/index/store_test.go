package index

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textdex/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	s := NewStore(client.DB, client.Dialect, "postings")
	require.NoError(t, s.CreateIfAbsent(context.Background()))
	return s
}

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateIfAbsent(context.Background()))
}

func TestCreateIfAbsentSchemaError(t *testing.T) {
	client, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	defer client.Close()
	s := NewStore(client.DB, client.Dialect, "bad table")
	err = s.CreateIfAbsent(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSchema)
}

func TestUpsertManyIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pairs := []Pair{{"abc", 1}, {"bcd", 1}, {"abc", 2}}

	n, err := s.UpsertMany(ctx, s.db, pairs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.UpsertMany(ctx, s.db, pairs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	count, err := s.CountRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertManyFoldsCaseAndDedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n, err := s.UpsertMany(ctx, s.db, []Pair{{"ABC", 1}, {"abc", 1}, {"Abc", 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ids, err := s.LookupShingle(ctx, "aBc")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestUpsertManyEmpty(t *testing.T) {
	s := newTestStore(t)
	n, err := s.UpsertMany(context.Background(), s.db, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertMany(ctx, s.db, []Pair{{"abc", 1}, {"abc", 2}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecord(ctx, s.db, 1))
	require.NoError(t, s.DeleteRecord(ctx, s.db, 99))

	ids, err := s.LookupShingle(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestLookupPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertMany(ctx, s.db, []Pair{
		{"jon", 1}, {"jo ", 2}, {"ojo", 3}, {"j_x", 4}, {"jox", 1},
	})
	require.NoError(t, err)

	ids, err := s.LookupPrefix(ctx, "Jo")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = s.LookupPrefix(ctx, "j_")
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids)
}

func TestTruncateAndDrop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertMany(ctx, s.db, []Pair{{"abc", 1}})
	require.NoError(t, err)

	require.NoError(t, s.Truncate(ctx, s.db))
	n, err := s.CountRecord(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Drop(ctx))
	require.NoError(t, s.Drop(ctx))
	_, err = s.LookupShingle(ctx, "abc")
	assert.ErrorIs(t, err, apperrors.ErrRead)
}

func TestChunk(t *testing.T) {
	pairs := PairsFor(7, []string{"a", "b", "c", "d", "e"})
	chunks := Chunk(pairs, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[2], 1)
	assert.Equal(t, int64(7), chunks[2][0].RecordID)

	assert.Len(t, Chunk(pairs, 0), 1)
	assert.Nil(t, Chunk(nil, 3))
}

func TestFoldAndEscape(t *testing.T) {
	assert.Equal(t, "čaj", Fold("ČAJ"))
	assert.Equal(t, `a\%b\_c\\`, EscapeLike(`a%b_c\`))
}
