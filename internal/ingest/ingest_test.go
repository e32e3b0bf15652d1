package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/store"
	"github.com/avantbook/distill/internal/store/memstore"
)

type stubParser struct {
	pages []string
	err   error
}

func (s stubParser) ParsePages(path string) ([]string, error) {
	return s.pages, s.err
}

func newTestDeps(t *testing.T, client llm.Client, pages []string) (Deps, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	return Deps{
		Store:  s,
		LLM:    client,
		Models: config.ModelTiers{Extraction: "extraction-model"},
		Parser: stubParser{pages: pages},
	}, s
}

func TestRun_ClaimsPipelineCreatesUploadedBookWithChunks(t *testing.T) {
	client := llm.NewMockClient()
	d, s := newTestDeps(t, client, []string{"Paragraph one.\n\nParagraph two."})

	var events []string
	book, err := Run(context.Background(), d, Request{
		UserID:   "u1",
		Title:    "Test Book",
		Filename: "book.pdf",
		PDFPath:  "book.pdf",
		Pipeline: model.PipelineClaims,
		OnProgress: func(step string, progress int, message string) {
			events = append(events, step)
		},
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusUploaded, book.Status)
	require.Equal(t, 100, book.Progress)
	require.Greater(t, book.TotalChunks, 0)
	require.NotEmpty(t, events)

	var chunks []model.Chunk
	require.NoError(t, s.Find(context.Background(), model.CollectionChunk, store.Query{}, &chunks))
	require.Equal(t, book.TotalChunks, len(chunks))
}

func TestRun_ChaptersPipelineCreatesUploadedBookWithChapters(t *testing.T) {
	client := llm.NewMockClient()
	tocPayload, err := json.Marshal(map[string]any{"has_toc": false, "entries": []any{}, "confidence": "low"})
	require.NoError(t, err)
	client.Queued = []llm.ChatResult{
		{Success: true, ParsedJSON: tocPayload, Content: string(tocPayload)},
	}
	densityPayload, err := json.Marshal(map[string]any{
		"density_score": 5, "characteristics": []string{"c"},
		"recommended_compression": 0.35, "recommended_context_size": 180,
	})
	require.NoError(t, err)
	client.ResponseJSON = densityPayload

	pages := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		pages = append(pages, "CHAPTER HEADING\n\nSome chapter body text that is long enough to matter for extraction purposes and density sampling across the book.")
	}
	d, s := newTestDeps(t, client, pages)

	book, err := Run(context.Background(), d, Request{
		UserID:   "u1",
		Title:    "Chaptered Book",
		Filename: "book.pdf",
		PDFPath:  "book.pdf",
		Pipeline: model.PipelineChapters,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusUploaded, book.Status)
	require.Greater(t, book.TotalChapters, 0)
	require.NotEmpty(t, book.ExtractionMethod)

	var chapters []model.Chapter
	require.NoError(t, s.Find(context.Background(), model.CollectionChapter, store.Query{}, &chapters))
	require.Equal(t, book.TotalChapters, len(chapters))
}

func TestRun_NoChunksIsAnError(t *testing.T) {
	client := llm.NewMockClient()
	d, _ := newTestDeps(t, client, []string{""})

	_, err := Run(context.Background(), d, Request{
		UserID:   "u1",
		Title:    "Empty Book",
		Filename: "book.pdf",
		PDFPath:  "book.pdf",
		Pipeline: model.PipelineClaims,
	})
	require.Error(t, err)
}
