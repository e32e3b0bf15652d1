package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avantbook/distill/internal/llm"
)

// densitySystemPrompt grounds the model in scoring idea density rather
// than text quality: how much distinct, non-redundant conceptual
// content this book packs per page.
const densitySystemPrompt = `You are assessing the idea density of a non-fiction book: how much distinct, non-redundant conceptual content it packs per page, as opposed to repetition, anecdote-padding, or restating the same point.

Score density_score from 1 (very sparse, heavily padded) to 10 (extremely dense, almost no filler). Based on that score, recommend a compression ratio (the fraction of original length a faithful summary should retain) and a context window size (number of words of surrounding context to carry into chapter compression calls).

Return only JSON with no prose and no code fences.`

var densityResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"density_score": {"type": "integer", "minimum": 1, "maximum": 10},
		"characteristics": {"type": "array", "items": {"type": "string"}},
		"recommended_compression": {"type": "number", "minimum": 0.15, "maximum": 0.60},
		"recommended_context_size": {"type": "integer", "minimum": 100, "maximum": 350},
		"analysis_notes": {"type": "string"}
	},
	"required": ["density_score", "characteristics", "recommended_compression", "recommended_context_size"],
	"additionalProperties": false
}`)

// DensityResult is the Density Analyzer's output (§4.6).
type DensityResult struct {
	DensityScore           int      `json:"density_score"`
	Characteristics        []string `json:"characteristics"`
	RecommendedCompression float64  `json:"recommended_compression"`
	RecommendedContextSize int      `json:"recommended_context_size"`
	AnalysisNotes          string   `json:"analysis_notes,omitempty"`
}

// defaultDensityResult is returned when the sample is too small to
// analyze or the call itself fails (§4.6's failure default).
func defaultDensityResult(reason string) DensityResult {
	return DensityResult{
		DensityScore:           5,
		Characteristics:        []string{reason},
		RecommendedCompression: 0.35,
		RecommendedContextSize: 180,
	}
}

// densityScoreBand maps a density score to its compression/context
// defaults, used only as a fallback when the model's reply leaves a
// recommendation at zero. A reply outside the schema's ranges fails
// validation, and AnalyzeDensity then returns defaultDensityResult.
func densityScoreBand(score int) (compression float64, contextSize int) {
	switch {
	case score <= 2:
		return 0.60, 350
	case score <= 4:
		return 0.45, 280
	case score <= 6:
		return 0.35, 220
	case score <= 8:
		return 0.25, 160
	default:
		return 0.15, 100
	}
}

// minDensitySampleChars below this length, analysis is skipped and the
// "insufficient_sample" default is returned.
const minDensitySampleChars = 500

// BuildRepresentativeSample joins three slices of chapter text — the
// opening 40%, a middle 30% slice, and a slice starting at 75% through
// the book — into one sample for density analysis (§4.6).
func BuildRepresentativeSample(chapters []string) string {
	if len(chapters) == 0 {
		return ""
	}
	n := len(chapters)

	headEnd := maxInt(1, int(float64(n)*0.4))
	midStart := int(float64(n) * 0.4)
	midEnd := maxInt(midStart+1, int(float64(n)*0.7))
	tailStart := minInt(n-1, int(float64(n)*0.75))

	head := chapters[:minInt(headEnd, n)]
	mid := chapters[minInt(midStart, n):minInt(midEnd, n)]
	tail := chapters[minInt(tailStart, n):]

	parts := make([]string, 0, 3)
	if joined := strings.Join(head, "\n\n"); joined != "" {
		parts = append(parts, joined)
	}
	if joined := strings.Join(mid, "\n\n"); joined != "" {
		parts = append(parts, joined)
	}
	if joined := strings.Join(tail, "\n\n"); joined != "" {
		parts = append(parts, joined)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// AnalyzeDensity calls the extraction tier once over a representative
// sample of the book and returns the density assessment driving chapter
// compression's target ratios.
func AnalyzeDensity(ctx context.Context, client llm.Client, model string, sample string) (DensityResult, error) {
	if len(sample) < minDensitySampleChars {
		return defaultDensityResult("insufficient_sample"), nil
	}

	req := &llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: densitySystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Representative sample:\n\n%s", sample)},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: densityResponseSchema},
	}

	result, err := client.Chat(ctx, req)
	if err != nil || !result.Success || len(result.ParsedJSON) == 0 {
		return defaultDensityResult("analysis_failed"), nil
	}

	var parsed DensityResult
	if jsonErr := json.Unmarshal(result.ParsedJSON, &parsed); jsonErr != nil {
		return defaultDensityResult("analysis_failed"), nil
	}

	if parsed.RecommendedCompression == 0 || parsed.RecommendedContextSize == 0 {
		compression, contextSize := densityScoreBand(parsed.DensityScore)
		if parsed.RecommendedCompression == 0 {
			parsed.RecommendedCompression = compression
		}
		if parsed.RecommendedContextSize == 0 {
			parsed.RecommendedContextSize = contextSize
		}
	}

	return parsed, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
