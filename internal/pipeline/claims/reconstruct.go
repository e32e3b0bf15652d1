package claims

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

const reconstructSystemPrompt = `You assemble a finished markdown document from a list of expanded ideas drawn from one non-fiction book.

Follow this exact skeleton:

1. A 2-3 sentence introduction summarizing what the book's ideas have in common.
2. For each idea, in order: a "## Idea N: <Title>" heading, then "### Core Principle", then "### What This Changes", and optionally "### Best Example" if a worked example strengthens the idea. Separate each idea's section with a horizontal rule (---).

Do not invent ideas beyond what is given. Return only the markdown document, no surrounding commentary and no code fences.`

// Reconstruct runs S5: a single reasoning-tier, text-only call over all
// Ideas (loaded by order), computing word count and compression ratio,
// then upserting FinalOutput.
func Reconstruct(ctx context.Context, d Deps, bookID string, originalWordCount int) (*model.FinalOutput, error) {
	var ideas []model.Idea
	if err := d.Store.Find(ctx, model.CollectionIdea, shared.QueryByBookOrdered(bookID), &ideas); err != nil {
		return nil, fmt.Errorf("claims: load ideas: %w", err)
	}
	if len(ideas) == 0 {
		return nil, pipelineerr.NewEmpty("No ideas available to reconstruct")
	}

	userPrompt := buildReconstructPrompt(ideas)

	req := &llm.ChatRequest{
		Model: d.Models.Reasoning,
		Messages: []llm.Message{
			{Role: "system", Content: reconstructSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, bookID, string(model.StatusReconstructing), "claims.reconstruct")
	if err != nil {
		return nil, fmt.Errorf("claims: reconstruct call failed: %w", err)
	}
	if !result.Success || result.Content == "" {
		return nil, fmt.Errorf("claims: reconstruct call unsuccessful: %s", result.ErrorMessage)
	}

	wordCount := segment.WordCount(result.Content)
	compressionRatio := 0.0
	if originalWordCount > 0 {
		compressionRatio = float64(wordCount) / float64(originalWordCount)
	}

	now := time.Now()
	output := &model.FinalOutput{
		BookID:           bookID,
		Markdown:         result.Content,
		WordCount:        wordCount,
		IdeaCount:        len(ideas),
		CompressionRatio: compressionRatio,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := shared.UpsertFinalOutput(ctx, d.Store, output); err != nil {
		return nil, fmt.Errorf("claims: %w", err)
	}
	return output, nil
}

func buildReconstructPrompt(ideas []model.Idea) string {
	out := "Ideas, in final order:\n\n"
	for _, idea := range ideas {
		out += fmt.Sprintf("Idea %d: %s\nPrinciple: %s\nBehavior delta: %s\n\n", idea.Order+1, idea.Title, idea.Principle, idea.BehaviorDelta)
	}
	return out
}
