package chapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avantbook/distill/internal/concurrency"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/pipeline/shared"
	"github.com/avantbook/distill/internal/segment"
)

const compressSystemPromptTemplate = `You compress one chapter of a non-fiction book titled %q into its essential form, preserving the author's voice and structure.

Chapter: %q%s

Keep the chapter's own flow and examples where they carry real weight; cut filler, repetition, and throat-clearing. Do not summarize into bullet points - write prose.

Separately, list up to five key insights this chapter contributes, as short standalone statements.

Return only JSON with no prose and no code fences.`

const firstChapterHint = " (this is the book's opening chapter - preserve its hook)"

var compressResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"compressed_content": {"type": "string"},
		"key_insights": {"type": "array", "items": {"type": "string"}},
		"compression_notes": {"type": "string"}
	},
	"required": ["compressed_content", "key_insights"],
	"additionalProperties": false
}`)

type compressedPart struct {
	CompressedContent string   `json:"compressed_content"`
	KeyInsights       []string `json:"key_insights"`
	CompressionNotes  string   `json:"compression_notes,omitempty"`
}

// CompressResult summarizes C1's outcome.
type CompressResult struct {
	ChaptersCompressed int
	ChaptersSkipped    int
}

// Compress runs C1: for each Chapter, a reasoning-tier call (or, for
// chapters over MAX_TOKENS_PER_CALL, one call per re-split part,
// concatenated and deduplicated down to five insights) at concurrency
// 3, persisting compressed content per chapter.
func Compress(ctx context.Context, d Deps, bookID string) (CompressResult, error) {
	var book model.Book
	if err := d.Store.FindOne(ctx, model.CollectionBook, bookID, &book); err != nil {
		return CompressResult{}, fmt.Errorf("chapters: load book: %w", err)
	}

	var chapterList []model.Chapter
	if err := d.Store.Find(ctx, model.CollectionChapter, shared.QueryByBookOrdered(bookID), &chapterList); err != nil {
		return CompressResult{}, fmt.Errorf("chapters: load chapters: %w", err)
	}
	if len(chapterList) == 0 {
		return CompressResult{}, pipelineerr.NewEmpty("No chapters found for this book")
	}

	results := concurrency.ParallelMap(ctx, chapterList, func(ctx context.Context, ch model.Chapter, index int) (compressedPart, error) {
		return d.compressChapter(ctx, book, ch, index == 0)
	}, concurrency.Options{Concurrency: d.compressConcurrency(), OnProgress: d.OnProgress})

	compressed, skipped := 0, 0
	now := time.Now()
	for i, r := range results {
		ch := chapterList[i]
		if r.Err != nil {
			d.logger().Warn("chapters: chapter compression failed, leaving chapter uncompressed", "book_id", bookID, "chapter_id", ch.ID, "error", r.Err)
			skipped++
			continue
		}
		patch := map[string]any{
			"compressed_content":     r.Value.CompressedContent,
			"key_insights":           r.Value.KeyInsights,
			"compressed_token_count": segment.EstimateTokens(r.Value.CompressedContent),
			"updated_at":             now,
		}
		if err := d.Store.UpdateOne(ctx, model.CollectionChapter, ch.ID, patch); err != nil {
			d.logger().Warn("chapters: persist compressed chapter failed", "chapter_id", ch.ID, "error", err)
			skipped++
			continue
		}
		compressed++
	}

	if compressed == 0 {
		return CompressResult{}, fmt.Errorf("chapters: every chapter compression call failed")
	}
	return CompressResult{ChaptersCompressed: compressed, ChaptersSkipped: skipped}, nil
}

// compressChapter re-splits content over MAX_TOKENS_PER_CALL into
// parts, compresses each independently, concatenates the prose, and
// keeps up to five deduplicated insights across all parts.
func (d Deps) compressChapter(ctx context.Context, book model.Book, ch model.Chapter, isFirst bool) (compressedPart, error) {
	const maxTokensPerCall = 6000

	parts := []string{ch.OriginalContent}
	if segment.EstimateTokens(ch.OriginalContent) > maxTokensPerCall {
		parts = segment.SplitLargeChapter(ch.OriginalContent, maxTokensPerCall)
	}

	var contentParts []string
	var insights []string
	seen := make(map[string]struct{})

	for _, part := range parts {
		result, err := d.compressPart(ctx, book, ch, part, isFirst)
		if err != nil {
			return compressedPart{}, err
		}
		contentParts = append(contentParts, result.CompressedContent)
		for _, insight := range result.KeyInsights {
			if _, dup := seen[insight]; dup {
				continue
			}
			if len(insights) >= 5 {
				break
			}
			seen[insight] = struct{}{}
			insights = append(insights, insight)
		}
	}

	content := contentParts[0]
	for _, p := range contentParts[1:] {
		content += "\n\n" + p
	}

	return compressedPart{CompressedContent: content, KeyInsights: insights}, nil
}

func (d Deps) compressPart(ctx context.Context, book model.Book, ch model.Chapter, content string, isFirst bool) (compressedPart, error) {
	hint := ""
	if isFirst {
		hint = firstChapterHint
	}
	systemPrompt := fmt.Sprintf(compressSystemPromptTemplate, book.Title, ch.Title, hint)

	req := &llm.ChatRequest{
		Model: d.Models.Reasoning,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: compressResponseSchema},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, ch.BookID, string(model.StatusCompressingChapters), "chapters.compress")
	if err != nil {
		return compressedPart{}, err
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return compressedPart{}, fmt.Errorf("chapters: compress call unsuccessful: %s", result.ErrorMessage)
	}

	var parsed compressedPart
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return compressedPart{}, fmt.Errorf("chapters: parse compress response: %w", err)
	}
	return parsed, nil
}
