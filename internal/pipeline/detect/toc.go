// Package detect implements the two single-shot structured LLM calls
// the chapters pipeline runs before chapter compression begins: the TOC
// Detector (§4.5) and the Density Analyzer (§4.6). Grounded on the
// teacher's internal/prompts/extract_toc package (its JSON-schema and
// "complete ToC in one pass" prompting style), adapted from a
// page-by-page OCR extraction task to a single-call detection-plus-
// reliability-check task over already-cleaned book text.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/segment"
)

// TOCConfidence is the model's self-reported confidence in its TOC read.
type TOCConfidence string

const (
	ConfidenceHigh   TOCConfidence = "high"
	ConfidenceMedium TOCConfidence = "medium"
	ConfidenceLow    TOCConfidence = "low"
)

// tocSystemPrompt grounds the model in the chapter-extraction contract
// the caller will feed its output into.
const tocSystemPrompt = `You are a Table of Contents extraction specialist. Given the opening pages of a book, decide whether a table of contents is present and, if so, extract its entries in top-to-bottom order.

For each entry return: title, a normalized_title (lowercase, whitespace-collapsed, no leading numbering), an optional page_number, and level (1=part/top-level, 2=chapter, 3=subsection).

Return only JSON with no prose and no code fences.`

// tocResponseSchema is the declared schema passed to the Structured-LLM
// Client; field names match TOCResult's json tags.
var tocResponseSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"has_toc": {"type": "boolean"},
		"entries": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"normalized_title": {"type": "string"},
					"page_number": {"type": ["integer", "null"]},
					"level": {"type": "integer", "minimum": 1, "maximum": 3}
				},
				"required": ["title", "normalized_title", "level"],
				"additionalProperties": false
			}
		},
		"toc_start_page": {"type": ["integer", "null"]},
		"toc_end_page": {"type": ["integer", "null"]},
		"confidence": {"type": "string", "enum": ["high", "medium", "low"]}
	},
	"required": ["has_toc", "entries", "confidence"],
	"additionalProperties": false
}`)

// TOCEntry is one raw detected entry, before being narrowed to the
// segment.TOCEntry shape the Chapter Extractor consumes.
type TOCEntry struct {
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalized_title"`
	PageNumber      *int   `json:"page_number,omitempty"`
	Level           int    `json:"level"`
}

// TOCResult is the TOC Detector's output (§4.5).
type TOCResult struct {
	HasTOC       bool          `json:"has_toc"`
	Entries      []TOCEntry    `json:"entries"`
	TOCStartPage *int          `json:"toc_start_page,omitempty"`
	TOCEndPage   *int          `json:"toc_end_page,omitempty"`
	Confidence   TOCConfidence `json:"confidence"`
}

// Reliable reports whether the detected TOC is trustworthy enough to
// drive TOC-guided chapter extraction (§4.5's reliability test).
func (r TOCResult) Reliable() bool {
	if !r.HasTOC || len(r.Entries) < 3 || r.Confidence == ConfidenceLow {
		return false
	}
	level2Count := 0
	for _, e := range r.Entries {
		if e.Level == 2 {
			level2Count++
		}
	}
	return level2Count >= 2
}

// ToSegmentEntries narrows TOCResult entries to what the Chapter
// Extractor (internal/segment) needs for TOC-guided matching.
func (r TOCResult) ToSegmentEntries() []segment.TOCEntry {
	out := make([]segment.TOCEntry, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, segment.TOCEntry{Title: e.Title, NormalizedTitle: e.NormalizedTitle, Level: e.Level})
	}
	return out
}

// minTOCChars below this input length, the call is skipped entirely
// and a no-TOC result with low confidence is returned.
const minTOCChars = 200

// DetectTOC calls the extraction tier over the first 15 pages of book
// text (joined with page-break markers) and returns the parsed,
// reliability-checked result.
func DetectTOC(ctx context.Context, client llm.Client, model string, pages []string) (TOCResult, error) {
	sample := joinPages(pages, 15)
	if len(sample) < minTOCChars {
		return TOCResult{HasTOC: false, Confidence: ConfidenceLow}, nil
	}

	req := &llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: tocSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Opening pages:\n\n%s", sample)},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_schema", JSONSchema: tocResponseSchema},
	}

	result, err := client.Chat(ctx, req)
	if err != nil {
		return TOCResult{}, fmt.Errorf("detect: toc call failed: %w", err)
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return TOCResult{}, fmt.Errorf("detect: toc call produced no structured output: %s", result.ErrorMessage)
	}

	var parsed TOCResult
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return TOCResult{}, fmt.Errorf("detect: parse toc result: %w", err)
	}
	return parsed, nil
}

func joinPages(pages []string, limit int) string {
	if limit > 0 && limit < len(pages) {
		pages = pages[:limit]
	}
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n--- page break ---\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}
