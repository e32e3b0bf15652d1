package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avantbook/distill/internal/concurrency"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/shared"
)

const expandSystemPrompt = `You expand one clustered idea from a non-fiction book into its full decision-changing form.

Given the idea's title, its merged claims, and a short summary, produce:
- principle: the underlying rule stated precisely, in the book's own register
- behavior_delta: prose describing how internalizing this idea changes the reader's decisions, priorities, or schedule - not a restatement of the principle

Return only JSON with no prose and no code fences.`

var expandResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"principle": {"type": "string"},
		"behavior_delta": {"type": "string"}
	},
	"required": ["principle", "behavior_delta"],
	"additionalProperties": false
}`)

type expandedIdea struct {
	Principle     string `json:"principle"`
	BehaviorDelta string `json:"behavior_delta"`
}

// Expand runs S4: one reasoning-tier call per cluster at concurrency 5,
// then deletes any prior Ideas for the book and bulk-inserts the new
// set with order = cluster index (§9: S4 always replaces).
func Expand(ctx context.Context, d Deps, bookID string, clusters []Cluster) (int, error) {
	results := concurrency.ParallelMap(ctx, clusters, func(ctx context.Context, cluster Cluster, index int) (expandedIdea, error) {
		return d.expandCluster(ctx, bookID, cluster)
	}, concurrency.Options{Concurrency: d.expandConcurrency(), OnProgress: d.OnProgress})

	if _, err := d.Store.DeleteMany(ctx, model.CollectionIdea, shared.FilterByBook(bookID)); err != nil {
		return 0, fmt.Errorf("claims: delete prior ideas: %w", err)
	}

	now := time.Now()
	var docs []map[string]any
	for i, r := range results {
		if r.Err != nil {
			d.logger().Warn("claims: idea expansion failed, dropping cluster", "book_id", bookID, "index", i, "error", r.Err)
			continue
		}
		cluster := clusters[i]
		docs = append(docs, map[string]any{
			"book_id":        bookID,
			"order":          i,
			"title":          cluster.IdeaTitle,
			"merged_claims":  cluster.MergedClaims,
			"principle":      r.Value.Principle,
			"behavior_delta": r.Value.BehaviorDelta,
			"created_at":     now,
			"updated_at":     now,
		})
	}

	if len(docs) == 0 {
		return 0, fmt.Errorf("claims: every idea expansion call failed")
	}

	if _, err := d.Store.InsertMany(ctx, model.CollectionIdea, docs); err != nil {
		return 0, fmt.Errorf("claims: bulk insert ideas: %w", err)
	}
	return len(docs), nil
}

func (d Deps) expandCluster(ctx context.Context, bookID string, cluster Cluster) (expandedIdea, error) {
	payload, err := json.Marshal(cluster)
	if err != nil {
		return expandedIdea{}, fmt.Errorf("claims: marshal cluster: %w", err)
	}

	req := &llm.ChatRequest{
		Model: d.Models.Reasoning,
		Messages: []llm.Message{
			{Role: "system", Content: expandSystemPrompt},
			{Role: "user", Content: string(payload)},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: expandResponseSchema},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, bookID, string(model.StatusClusteringIdeas), "claims.expand")
	if err != nil {
		return expandedIdea{}, err
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return expandedIdea{}, fmt.Errorf("claims: expand call unsuccessful: %s", result.ErrorMessage)
	}

	var parsed expandedIdea
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return expandedIdea{}, fmt.Errorf("claims: parse expand response: %w", err)
	}
	return parsed, nil
}
