package claims

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
)

const extractSystemPrompt = `You extract atomic, context-free claims from a passage of non-fiction book text.

A claim is a single assertion that stands on its own without the surrounding passage: a principle, rule, recommendation, constraint, or causal statement. Skip anecdotes, examples, and restatements of the same point.

Classify each claim's type as one of: principle, rule, recommendation, constraint, causal.

Return only JSON with no prose and no code fences.`

var extractResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"claims": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"claim": {"type": "string"},
					"type": {"type": "string", "enum": ["principle", "rule", "recommendation", "constraint", "causal"]}
				},
				"required": ["claim", "type"],
				"additionalProperties": false
			}
		}
	},
	"required": ["claims"],
	"additionalProperties": false
}`)

type extractedClaim struct {
	Claim string          `json:"claim"`
	Type  model.ClaimType `json:"type"`
}

type extractResponse struct {
	Claims []extractedClaim `json:"claims"`
}

// ExtractResult summarizes S1's outcome.
type ExtractResult struct {
	ClaimsInserted int
	ChunksSkipped  int // chunks whose extraction call failed entirely
}

// Extract runs S1: one extraction-tier call per Chunk, fanned out at
// concurrency 5 by default, bulk-inserting every produced Claim. If
// Claims already exist for the book, the stage is a no-op (§9: S1 must
// not re-insert on replay).
func Extract(ctx context.Context, d Deps, bookID string) (ExtractResult, error) {
	var existing []model.Claim
	if err := d.Store.Find(ctx, model.CollectionClaim, shared.QueryByBook(bookID, 1), &existing); err != nil {
		return ExtractResult{}, fmt.Errorf("claims: check existing claims: %w", err)
	}
	if len(existing) > 0 {
		var all []model.Claim
		if err := d.Store.Find(ctx, model.CollectionClaim, shared.QueryByBook(bookID, 0), &all); err != nil {
			return ExtractResult{}, fmt.Errorf("claims: count existing claims: %w", err)
		}
		return ExtractResult{ClaimsInserted: len(all)}, nil
	}

	var chunks []model.Chunk
	if err := d.Store.Find(ctx, model.CollectionChunk, shared.QueryByBookOrdered(bookID), &chunks); err != nil {
		return ExtractResult{}, fmt.Errorf("claims: load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return ExtractResult{}, pipelineerr.NewEmpty("No chunks found for this book")
	}

	results := concurrency.ParallelMap(ctx, chunks, func(ctx context.Context, chunk model.Chunk, index int) ([]extractedClaim, error) {
		return d.extractChunk(ctx, bookID, chunk)
	}, concurrency.Options{Concurrency: d.extractConcurrency(), OnProgress: d.OnProgress})

	var docs []map[string]any
	skipped := 0
	now := time.Now()
	for _, r := range results {
		if r.Err != nil {
			d.logger().Warn("claims: chunk extraction failed, skipping", "book_id", bookID, "index", r.Index, "error", r.Err)
			skipped++
			continue
		}
		chunk := chunks[r.Index]
		for _, c := range r.Value {
			docs = append(docs, map[string]any{
				"book_id":         bookID,
				"source_chunk_id": chunk.ID,
				"text":            c.Claim,
				"type":            string(c.Type),
				"created_at":      now,
				"updated_at":      now,
			})
		}
	}

	if len(docs) > 0 {
		if _, err := d.Store.InsertMany(ctx, model.CollectionClaim, docs); err != nil {
			return ExtractResult{}, fmt.Errorf("claims: bulk insert claims: %w", err)
		}
	}

	return ExtractResult{ClaimsInserted: len(docs), ChunksSkipped: skipped}, nil
}

func (d Deps) extractChunk(ctx context.Context, bookID string, chunk model.Chunk) ([]extractedClaim, error) {
	req := &llm.ChatRequest{
		Model: d.Models.Extraction,
		Messages: []llm.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: chunk.Text},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: extractResponseSchema},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, bookID, string(model.StatusExtractingClaims), "claims.extract")
	if err != nil {
		return nil, err
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return nil, fmt.Errorf("claims: extraction call unsuccessful: %s", result.ErrorMessage)
	}

	var parsed extractResponse
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return nil, fmt.Errorf("claims: parse extraction response: %w", err)
	}
	return parsed.Claims, nil
}
