package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/pipeline/shared"
)

const clusterSystemPrompt = `You cluster a list of kept claims from a non-fiction book into a small number of distinct ideas.

Each idea is a family of claims expressing the same underlying decision rule. Merge claims that express the same point from different angles; keep ideas that are genuinely distinct from each other.

Aim for 7-12 final ideas. If the book is thin on content, collapse further rather than padding the list with weak or overlapping ideas.

Return only JSON with no prose and no code fences.`

var clusterResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"ideas": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"idea_title": {"type": "string"},
					"merged_claims": {"type": "array", "items": {"type": "string"}},
					"summary": {"type": "string"}
				},
				"required": ["idea_title", "merged_claims", "summary"],
				"additionalProperties": false
			}
		}
	},
	"required": ["ideas"],
	"additionalProperties": false
}`)

// Cluster is one clustered idea as returned by S3, carried in memory
// into S4 (the Idea record has no Summary field - it is a clustering
// aid only, not persisted).
type Cluster struct {
	IdeaTitle    string   `json:"idea_title"`
	MergedClaims []string `json:"merged_claims"`
	Summary      string   `json:"summary"`
}

type clusterResponse struct {
	Ideas []Cluster `json:"ideas"`
}

// Cluster runs S3: a single reasoning-tier call over every kept Claim,
// sorted by score descending, producing 7-12 idea clusters.
func Cluster(ctx context.Context, d Deps, bookID string) ([]Cluster, error) {
	var all []model.Claim
	if err := d.Store.Find(ctx, model.CollectionClaim, shared.QueryByBook(bookID, 0), &all); err != nil {
		return nil, fmt.Errorf("claims: load claims: %w", err)
	}

	var kept []model.Claim
	for _, c := range all {
		if c.Kept() {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, pipelineerr.NewEmpty("No valuable claims found in this book")
	}

	sort.SliceStable(kept, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if kept[i].Score != nil {
			si = *kept[i].Score
		}
		if kept[j].Score != nil {
			sj = *kept[j].Score
		}
		return si > sj
	})

	payload, err := json.Marshal(claimTexts(kept))
	if err != nil {
		return nil, fmt.Errorf("claims: marshal kept claims: %w", err)
	}

	req := &llm.ChatRequest{
		Model: d.Models.Reasoning,
		Messages: []llm.Message{
			{Role: "system", Content: clusterSystemPrompt},
			{Role: "user", Content: string(payload)},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: clusterResponseSchema},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, bookID, string(model.StatusClusteringIdeas), "claims.cluster")
	if err != nil {
		return nil, fmt.Errorf("claims: cluster call failed: %w", err)
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return nil, fmt.Errorf("claims: cluster call unsuccessful: %s", result.ErrorMessage)
	}

	var parsed clusterResponse
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return nil, fmt.Errorf("claims: parse cluster response: %w", err)
	}
	if len(parsed.Ideas) == 0 {
		return nil, pipelineerr.NewEmpty("No valuable claims found in this book")
	}

	return parsed.Ideas, nil
}

func claimTexts(claims []model.Claim) []string {
	out := make([]string, len(claims))
	for i, c := range claims {
		out[i] = c.Text
	}
	return out
}
