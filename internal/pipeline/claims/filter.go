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

const filterSystemPrompt = `You evaluate extracted claims from a non-fiction book, deciding which carry real signal.

For each claim, assign a label:
- core_insight: changes decisions or introduces a real constraint
- supporting_insight: reinforces a core insight with useful detail
- redundant: restates another claim already covered
- filler: generic advice with no real content

Also assign a score in [0,1] (confidence this label is correct, and relative importance for core_insight/supporting_insight) and a one-sentence reason.

Return only JSON with no prose and no code fences.`

var filterResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"evaluations": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"claim": {"type": "string"},
					"label": {"type": "string", "enum": ["core_insight", "supporting_insight", "redundant", "filler"]},
					"score": {"type": "number", "minimum": 0, "maximum": 1},
					"reason": {"type": "string"}
				},
				"required": ["claim", "label", "score", "reason"],
				"additionalProperties": false
			}
		}
	},
	"required": ["evaluations"],
	"additionalProperties": false
}`)

type evaluation struct {
	Claim  string           `json:"claim"`
	Label  model.ClaimLabel `json:"label"`
	Score  float64          `json:"score"`
	Reason string           `json:"reason"`
}

type filterResponse struct {
	Evaluations []evaluation `json:"evaluations"`
}

// FilterResult summarizes S2's outcome.
type FilterResult struct {
	Kept      int
	Discarded int
}

// Filter runs S2: batches of 20 unlabeled Claims go through the
// filtering-tier LLM at concurrency 5; each returned evaluation is
// matched back to a Claim and persisted.
func Filter(ctx context.Context, d Deps, bookID string) (FilterResult, error) {
	var all []model.Claim
	if err := d.Store.Find(ctx, model.CollectionClaim, shared.QueryByBook(bookID, 0), &all); err != nil {
		return FilterResult{}, fmt.Errorf("claims: load claims: %w", err)
	}

	// The Store's Filter only expresses equality, not "field absent", so
	// unlabeled claims are selected client-side (§9: S2 must only act on
	// Claims with no label — this keeps a re-run from relabeling already
	// -filtered claims).
	var unlabeled []model.Claim
	for _, c := range all {
		if !c.Filtered() {
			unlabeled = append(unlabeled, c)
		}
	}
	if len(unlabeled) == 0 {
		return FilterResult{}, nil
	}

	batchSize := d.filterBatchSize()
	var batches [][]model.Claim
	for start := 0; start < len(unlabeled); start += batchSize {
		end := start + batchSize
		if end > len(unlabeled) {
			end = len(unlabeled)
		}
		batches = append(batches, unlabeled[start:end])
	}

	results := concurrency.ParallelMap(ctx, batches, func(ctx context.Context, batch []model.Claim, index int) ([]evaluation, error) {
		return d.filterBatch(ctx, bookID, batch)
	}, concurrency.Options{Concurrency: d.filterConcurrency(), OnProgress: d.OnProgress})

	var kept, discarded int
	now := time.Now()
	for i, r := range results {
		batch := batches[i]
		if r.Err != nil {
			d.logger().Warn("claims: filter batch failed, leaving claims unlabeled", "book_id", bookID, "batch", i, "error", r.Err)
			continue
		}

		// TODO(claim-batch-identity): the filtering-tier response maps each
		// evaluation back to a Claim by exact text equality within the
		// batch (spec §9's open question). If two claims in the same batch
		// have identical text, this match is inherently ambiguous; we
		// resolve it by applying the evaluation to every claim in the batch
		// whose text matches, rather than guessing a single one. A cleaner
		// fix would be deduping claims with identical text before sending
		// the batch, or switching to an opaque per-claim id that the prompt
		// includes and the response echoes back.
		byText := make(map[string][]int) // claim text -> indices into batch
		for idx, c := range batch {
			byText[c.Text] = append(byText[c.Text], idx)
		}

		for _, ev := range r.Value {
			indices, ok := byText[ev.Claim]
			if !ok {
				continue
			}
			if len(indices) > 1 {
				d.logger().Warn("claims: ambiguous claim-batch text match, applying label to all duplicates",
					"book_id", bookID, "batch", i, "duplicate_count", len(indices))
			}
			for _, idx := range indices {
				claim := batch[idx]
				score := ev.Score
				if err := d.Store.UpdateOne(ctx, model.CollectionClaim, claim.ID, map[string]any{
					"label":      string(ev.Label),
					"score":      score,
					"reason":     ev.Reason,
					"updated_at": now,
				}); err != nil {
					d.logger().Warn("claims: update claim label failed", "claim_id", claim.ID, "error", err)
					continue
				}
				if ev.Label == model.LabelCoreInsight || ev.Label == model.LabelSupportingInsight {
					kept++
				} else {
					discarded++
				}
			}
		}
	}

	return FilterResult{Kept: kept, Discarded: discarded}, nil
}

func (d Deps) filterBatch(ctx context.Context, bookID string, batch []model.Claim) ([]evaluation, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("claims: marshal batch: %w", err)
	}

	req := &llm.ChatRequest{
		Model: d.Models.Filtering,
		Messages: []llm.Message{
			{Role: "system", Content: filterSystemPrompt},
			{Role: "user", Content: string(payload)},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: filterResponseSchema},
	}

	result, err := d.LLM.Chat(ctx, req)
	d.record(result, bookID, string(model.StatusFilteringClaims), "claims.filter")
	if err != nil {
		return nil, err
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return nil, fmt.Errorf("claims: filter call unsuccessful: %s", result.ErrorMessage)
	}

	var parsed filterResponse
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return nil, fmt.Errorf("claims: parse filter response: %w", err)
	}
	return parsed.Evaluations, nil
}
