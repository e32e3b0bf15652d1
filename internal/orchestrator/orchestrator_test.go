package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/store"
	"github.com/avantbook/distill/internal/store/memstore"
)

func waitForTerminal(t *testing.T, s *memstore.Store, bookID string) model.Book {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var b model.Book
		require.NoError(t, s.FindOne(context.Background(), model.CollectionBook, bookID, &b))
		if b.Status.Terminal() {
			return b
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("book never reached a terminal status")
	return model.Book{}
}

func TestTrigger_RunsClaimsPipelineToCompletion(t *testing.T) {
	client := llm.NewMockClient()
	client.Queued = []llm.ChatResult{
		jsonResult(t, map[string]any{"claims": []map[string]any{{"claim": "a", "type": "principle"}}}),
		jsonResult(t, map[string]any{"evaluations": []map[string]any{{"claim": "a", "label": "core_insight", "score": 0.9, "reason": "r"}}}),
		jsonResult(t, map[string]any{"ideas": []map[string]any{{"idea_title": "T", "merged_claims": []string{"a"}, "summary": "s"}}}),
		jsonResult(t, map[string]any{"principle": "P", "behavior_delta": "D"}),
	}
	client.ResponseText = "# X\nfinal markdown"

	s := memstore.New()
	o := New(Config{
		Store:  s,
		LLM:    client,
		Models: config.ModelTiers{Extraction: "e", Filtering: "f", Reasoning: "r"},
	})

	bookIDs, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": "T", "filename": "f.pdf", "status": string(model.StatusUploaded),
		"pipeline": string(model.PipelineClaims), "original_word_count": 100,
		"created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)
	bookID := bookIDs[0]

	_, err = s.InsertMany(context.Background(), model.CollectionChunk, []map[string]any{{
		"book_id": bookID, "order": 0, "text": "Paragraph A.", "token_count": 3,
		"created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)

	require.NoError(t, o.Trigger(context.Background(), bookID))

	b := waitForTerminal(t, s, bookID)
	require.Equal(t, model.StatusCompleted, b.Status)
	require.Equal(t, 100, b.Progress)

	var outputs []model.FinalOutput
	require.NoError(t, s.Find(context.Background(), model.CollectionFinalOutput, store.Query{}, &outputs))
	require.Len(t, outputs, 1)
	require.Equal(t, 1, outputs[0].IdeaCount)
}

func TestTrigger_RejectsNonUploadedNonFailedBook(t *testing.T) {
	s := memstore.New()
	o := New(Config{Store: s, LLM: llm.NewMockClient()})

	bookIDs, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": "T", "filename": "f.pdf", "status": string(model.StatusExtractingClaims),
		"pipeline": string(model.PipelineClaims), "created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)

	err = o.Trigger(context.Background(), bookIDs[0])
	require.Error(t, err)
}

func TestTrigger_AllowsRetriggerFromFailed(t *testing.T) {
	s := memstore.New()
	o := New(Config{Store: s, LLM: llm.NewMockClient()})

	bookIDs, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": "T", "filename": "f.pdf", "status": string(model.StatusFailed),
		"pipeline": string(model.PipelineClaims), "error": "boom",
		"created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)

	// No chunks exist, so the run will fail fast on the Empty precondition,
	// but the trigger itself must be accepted from a failed book.
	require.NoError(t, o.Trigger(context.Background(), bookIDs[0]))

	b := waitForTerminal(t, s, bookIDs[0])
	require.Equal(t, model.StatusFailed, b.Status)
	require.Contains(t, b.Error, "No chunks found")
}

func TestRunClaims_EmptyChunksMarksFailedWithReason(t *testing.T) {
	s := memstore.New()
	o := New(Config{Store: s, LLM: llm.NewMockClient()})

	bookIDs, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": "T", "filename": "f.pdf", "status": string(model.StatusUploaded),
		"pipeline": string(model.PipelineClaims), "created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)

	require.NoError(t, o.Trigger(context.Background(), bookIDs[0]))

	b := waitForTerminal(t, s, bookIDs[0])
	require.Equal(t, model.StatusFailed, b.Status)
	require.Contains(t, b.Error, "No chunks found for this book")
}

func TestProgressReporter_ScalesFractionIntoBand(t *testing.T) {
	s := memstore.New()
	o := New(Config{Store: s, LLM: llm.NewMockClient()})

	bookIDs, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": "T", "filename": "f.pdf", "status": string(model.StatusExtractingClaims),
		"pipeline": string(model.PipelineClaims), "progress": 5,
		"created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)
	bookID := bookIDs[0]

	report := o.progressReporter(context.Background(), bookID, claimsBands[model.StatusExtractingClaims])

	report(1, 4)
	var b model.Book
	require.NoError(t, s.FindOne(context.Background(), model.CollectionBook, bookID, &b))
	require.Equal(t, claimsBands[model.StatusExtractingClaims].Low+(claimsBands[model.StatusExtractingClaims].High-claimsBands[model.StatusExtractingClaims].Low)/4, b.Progress)

	report(4, 4)
	require.NoError(t, s.FindOne(context.Background(), model.CollectionBook, bookID, &b))
	require.Equal(t, claimsBands[model.StatusExtractingClaims].High, b.Progress)
}

func TestTrigger_ReportsIntermediateProgressWithinExtractBand(t *testing.T) {
	client := llm.NewMockClient()
	client.Queued = []llm.ChatResult{
		jsonResult(t, map[string]any{"claims": []map[string]any{{"claim": "a", "type": "principle"}}}),
		jsonResult(t, map[string]any{"claims": []map[string]any{{"claim": "b", "type": "principle"}}}),
		jsonResult(t, map[string]any{"evaluations": []map[string]any{
			{"claim": "a", "label": "core_insight", "score": 0.9, "reason": "r"},
			{"claim": "b", "label": "core_insight", "score": 0.9, "reason": "r"},
		}}),
		jsonResult(t, map[string]any{"ideas": []map[string]any{{"idea_title": "T", "merged_claims": []string{"a", "b"}, "summary": "s"}}}),
		jsonResult(t, map[string]any{"principle": "P", "behavior_delta": "D"}),
	}
	client.ResponseText = "# X\nfinal markdown"

	s := memstore.New()
	var sawIntermediate bool
	o := New(Config{
		Store:  s,
		LLM:    client,
		Models: config.ModelTiers{Extraction: "e", Filtering: "f", Reasoning: "r"},
	})
	o.cfg.ExtractConcurrency = 1 // force sequential completion so progress is observable between chunks

	bookIDs, err := s.InsertMany(context.Background(), model.CollectionBook, []map[string]any{{
		"user_id": "u1", "title": "T", "filename": "f.pdf", "status": string(model.StatusUploaded),
		"pipeline": string(model.PipelineClaims), "original_word_count": 100,
		"created_at": time.Now(), "updated_at": time.Now(),
	}})
	require.NoError(t, err)
	bookID := bookIDs[0]

	_, err = s.InsertMany(context.Background(), model.CollectionChunk, []map[string]any{
		{"book_id": bookID, "order": 0, "text": "Paragraph A.", "token_count": 3, "created_at": time.Now(), "updated_at": time.Now()},
		{"book_id": bookID, "order": 1, "text": "Paragraph B.", "token_count": 3, "created_at": time.Now(), "updated_at": time.Now()},
	})
	require.NoError(t, err)

	require.NoError(t, o.Trigger(context.Background(), bookID))

	extractBand := claimsBands[model.StatusExtractingClaims]
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var b model.Book
		require.NoError(t, s.FindOne(context.Background(), model.CollectionBook, bookID, &b))
		if b.Progress > extractBand.Low && b.Progress <= extractBand.High {
			sawIntermediate = true
		}
		if b.Status.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, sawIntermediate, "expected Book.Progress to move within the extract band as chunks completed")

	waitForTerminal(t, s, bookID)
}

func jsonResult(t *testing.T, v any) llm.ChatResult {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return llm.ChatResult{Success: true, ParsedJSON: payload, Content: string(payload)}
}
