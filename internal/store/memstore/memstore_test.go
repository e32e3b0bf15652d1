package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/store"
)

type book struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	UserID string `json:"user_id"`
}

func TestInsertFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	ids, err := s.InsertMany(ctx, "Book", []map[string]any{
		{"title": "Alpha", "user_id": "u1"},
		{"title": "Beta", "user_id": "u1"},
		{"title": "Gamma", "user_id": "u2"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	var books []book
	require.NoError(t, s.Find(ctx, "Book", store.Query{Filter: store.Filter{"user_id": "u1"}}, &books))
	require.Len(t, books, 2)

	var got book
	require.NoError(t, s.FindOne(ctx, "Book", ids[0], &got))
	require.Equal(t, "Alpha", got.Title)

	require.NoError(t, s.UpdateOne(ctx, "Book", ids[0], map[string]any{"title": "Alpha2"}))
	require.NoError(t, s.FindOne(ctx, "Book", ids[0], &got))
	require.Equal(t, "Alpha2", got.Title)

	n, err := s.DeleteMany(ctx, "Book", store.Filter{"user_id": "u2"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, s.Find(ctx, "Book", store.Query{}, &books))
	require.Len(t, books, 2)
}

func TestFindOneNotFound(t *testing.T) {
	s := New()
	var b book
	err := s.FindOne(context.Background(), "Book", "missing", &b)
	require.ErrorIs(t, err, store.ErrNotFound)
}
