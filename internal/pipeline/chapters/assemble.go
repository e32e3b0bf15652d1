package chapters

import (
	"context"
	"fmt"
	"time"

	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/pipeline/shared"
	"github.com/avantbook/distill/internal/segment"
)

const assembleSystemPrompt = `You assemble a finished book from its already-compressed chapters.

Emit, in order:
1. A short overview of the book as a whole.
2. Every chapter's compressed content verbatim, each under its own "## <Chapter Title>" heading, in chapter order. Do not rewrite, summarize, or shorten the chapter bodies further - they are already compressed.
3. A final "## Key Takeaways" section distilling the book's most important points across all chapters.

Return only the markdown document, no surrounding commentary and no code fences.`

// Assemble runs C2: a single reasoning-tier, text-only call over every
// compressed Chapter (loaded by order), computing word count, then
// upserting FinalOutput.
func Assemble(ctx context.Context, d Deps, bookID string) (*model.FinalOutput, error) {
	var chapterList []model.Chapter
	if err := d.Store.Find(ctx, model.CollectionChapter, shared.QueryByBookOrdered(bookID), &chapterList); err != nil {
		return nil, fmt.Errorf("chapters: load chapters: %w", err)
	}
	if len(chapterList) == 0 {
		return nil, pipelineerr.NewEmpty("No chapters available to assemble")
	}

	userPrompt := buildAssemblePrompt(chapterList)

	req := &llm.ChatRequest{
		Model: d.Models.Reasoning,
		Messages: []llm.Message{
			{Role: "system", Content: assembleSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, bookID, string(model.StatusAssembling), "chapters.assemble")
	if err != nil {
		return nil, fmt.Errorf("chapters: assemble call failed: %w", err)
	}
	if !result.Success || result.Content == "" {
		return nil, fmt.Errorf("chapters: assemble call unsuccessful: %s", result.ErrorMessage)
	}

	wordCount := segment.WordCount(result.Content)

	now := time.Now()
	output := &model.FinalOutput{
		BookID:       bookID,
		Markdown:     result.Content,
		WordCount:    wordCount,
		ChapterCount: len(chapterList),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := shared.UpsertFinalOutput(ctx, d.Store, output); err != nil {
		return nil, fmt.Errorf("chapters: %w", err)
	}
	return output, nil
}

func buildAssemblePrompt(chapterList []model.Chapter) string {
	out := "Compressed chapters, in order:\n\n"
	for _, ch := range chapterList {
		out += fmt.Sprintf("### %s\n\n%s\n\n", ch.Title, ch.CompressedContent)
	}
	return out
}
