package chapters

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/store"
	"github.com/avantbook/distill/internal/store/memstore"
)

func newTestDeps(t *testing.T, client llm.Client) (Deps, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	return Deps{
		Store:  s,
		LLM:    client,
		Models: config.ModelTiers{Extraction: "extraction-model", Filtering: "filtering-model", Reasoning: "reasoning-model"},
	}, s
}

func insertBook(t *testing.T, s *memstore.Store, title string) string {
	t.Helper()
	ids, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": title, "filename": "book.pdf", "status": string(model.StatusUploaded),
		"pipeline": string(model.PipelineChapters), "created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)
	return ids[0]
}

func insertChapter(t *testing.T, s *memstore.Store, bookID string, order int, title, content string) string {
	t.Helper()
	ids, err := s.InsertMany(context.Background(), model.CollectionChapter, []map[string]any{{
		"book_id": bookID, "order": order, "title": title, "level": 1,
		"original_content": content, "original_token_count": len(content) / 4,
		"created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)
	return ids[0]
}

func TestCompress_PersistsCompressedContentPerChapter(t *testing.T) {
	client := llm.NewMockClient()
	payload, err := json.Marshal(compressedPart{CompressedContent: "short version", KeyInsights: []string{"insight one"}})
	require.NoError(t, err)
	client.ResponseJSON = payload

	d, s := newTestDeps(t, client)
	bookID := insertBook(t, s, "My Book")
	insertChapter(t, s, bookID, 0, "Intro", "Long original chapter text.")
	insertChapter(t, s, bookID, 1, "Chapter Two", "More original chapter text.")

	result, err := Compress(context.Background(), d, bookID)
	require.NoError(t, err)
	require.Equal(t, 2, result.ChaptersCompressed)
	require.Equal(t, 0, result.ChaptersSkipped)

	var chapterList []model.Chapter
	require.NoError(t, s.Find(context.Background(), model.CollectionChapter, store.Query{}, &chapterList))
	for _, ch := range chapterList {
		require.Equal(t, "short version", ch.CompressedContent)
		require.Equal(t, []string{"insight one"}, ch.KeyInsights)
	}
}

func TestCompress_NoChaptersIsFatal(t *testing.T) {
	client := llm.NewMockClient()
	d, s := newTestDeps(t, client)
	bookID := insertBook(t, s, "Empty Book")

	_, err := Compress(context.Background(), d, bookID)
	require.True(t, pipelineerr.IsEmpty(err))
}

func TestCompress_SplitsOversizedChapterAndDedupesInsights(t *testing.T) {
	client := llm.NewMockClient()
	payload, err := json.Marshal(compressedPart{CompressedContent: "part", KeyInsights: []string{"same insight", "same insight", "unique"}})
	require.NoError(t, err)
	client.ResponseJSON = payload

	d, s := newTestDeps(t, client)
	bookID := insertBook(t, s, "Big Book")

	// Build oversized content (far over the 6000-token split threshold),
	// as many paragraphs so splitLargeChapter has something to split on.
	var sb strings.Builder
	for p := 0; p < 20; p++ {
		for i := 0; i < 300; i++ {
			sb.WriteString("word ")
		}
		sb.WriteString("\n\n")
	}
	insertChapter(t, s, bookID, 0, "Huge Chapter", sb.String())

	result, err := Compress(context.Background(), d, bookID)
	require.NoError(t, err)
	require.Equal(t, 1, result.ChaptersCompressed)
	require.Greater(t, client.RequestCount(), int64(1))

	var chapterList []model.Chapter
	require.NoError(t, s.Find(context.Background(), model.CollectionChapter, store.Query{}, &chapterList))
	require.Len(t, chapterList, 1)
	require.LessOrEqual(t, len(chapterList[0].KeyInsights), 5)
}

func TestCompress_PerChapterErrorIsolation(t *testing.T) {
	client := llm.NewMockClient()
	client.FailAfter = 1

	payload, err := json.Marshal(compressedPart{CompressedContent: "short version", KeyInsights: nil})
	require.NoError(t, err)
	client.ResponseJSON = payload

	d, s := newTestDeps(t, client)
	bookID := insertBook(t, s, "My Book")
	insertChapter(t, s, bookID, 0, "Intro", "Chapter one text.")
	insertChapter(t, s, bookID, 1, "Chapter Two", "Chapter two text.")

	result, err := Compress(context.Background(), d, bookID)
	require.NoError(t, err)
	require.Equal(t, 1, result.ChaptersCompressed)
	require.Equal(t, 1, result.ChaptersSkipped)
}

func TestAssemble_ComputesWordCountAndUpserts(t *testing.T) {
	client := llm.NewMockClient()
	client.ResponseText = "one two three four five"

	d, s := newTestDeps(t, client)
	bookID := insertBook(t, s, "My Book")
	insertChapter(t, s, bookID, 0, "Intro", "original")

	var chapterList []model.Chapter
	require.NoError(t, s.Find(context.Background(), model.CollectionChapter, store.Query{}, &chapterList))
	require.NoError(t, s.UpdateOne(context.Background(), model.CollectionChapter, chapterList[0].ID, map[string]any{
		"compressed_content": "compressed intro",
	}))

	output, err := Assemble(context.Background(), d, bookID)
	require.NoError(t, err)
	require.Equal(t, 5, output.WordCount)
	require.Equal(t, 1, output.ChapterCount)

	output2, err := Assemble(context.Background(), d, bookID)
	require.NoError(t, err)
	require.Equal(t, output.ID, output2.ID)
}

func TestAssemble_NoChaptersIsFatal(t *testing.T) {
	client := llm.NewMockClient()
	d, _ := newTestDeps(t, client)
	_, err := Assemble(context.Background(), d, "no-such-book")
	require.True(t, pipelineerr.IsEmpty(err))
}
