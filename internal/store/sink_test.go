package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/store"
	"github.com/avantbook/distill/internal/store/memstore"
)

func TestSink_SendSync_Create(t *testing.T) {
	ms := memstore.New()
	sink := store.NewSink(store.SinkConfig{
		Store:         ms,
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
	})

	ctx := context.Background()
	sink.Start(ctx)
	defer sink.Stop()

	result, err := sink.SendSync(ctx, store.WriteOp{
		Collection: "Book",
		Document:   map[string]any{"title": "Alpha"},
		Op:         store.OpCreate,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.DocID)

	var books []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, ms.Find(ctx, "Book", store.Query{}, &books))
	require.Len(t, books, 1)
	require.Equal(t, "Alpha", books[0].Title)
}

func TestSink_BatchBySize(t *testing.T) {
	ms := memstore.New()
	sink := store.NewSink(store.SinkConfig{
		Store:         ms,
		BatchSize:     3,
		FlushInterval: time.Hour,
	})

	ctx := context.Background()
	sink.Start(ctx)
	defer sink.Stop()

	results, err := sink.SendManySync(ctx, []store.WriteOp{
		{Collection: "Chunk", Document: map[string]any{"text": "a"}, Op: store.OpCreate},
		{Collection: "Chunk", Document: map[string]any{"text": "b"}, Op: store.OpCreate},
		{Collection: "Chunk", Document: map[string]any{"text": "c"}, Op: store.OpCreate},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NotEmpty(t, r.DocID)
	}
}

func TestSink_UpdateAndDelete(t *testing.T) {
	ms := memstore.New()
	ids, err := ms.InsertMany(context.Background(), "Claim", []map[string]any{{"text": "x"}})
	require.NoError(t, err)

	sink := store.NewSink(store.SinkConfig{Store: ms, BatchSize: 10, FlushInterval: time.Hour})
	ctx := context.Background()
	sink.Start(ctx)
	defer sink.Stop()

	_, err = sink.SendSync(ctx, store.WriteOp{
		Collection: "Claim",
		DocID:      ids[0],
		Document:   map[string]any{"label": "core_insight"},
		Op:         store.OpUpdate,
	})
	require.NoError(t, err)

	var got struct {
		Label string `json:"label"`
	}
	require.NoError(t, ms.FindOne(ctx, "Claim", ids[0], &got))
	require.Equal(t, "core_insight", got.Label)

	_, err = sink.SendSync(ctx, store.WriteOp{Collection: "Claim", DocID: ids[0], Op: store.OpDelete})
	require.NoError(t, err)

	err = ms.FindOne(ctx, "Claim", ids[0], &got)
	require.ErrorIs(t, err, store.ErrNotFound)
}
