// Package segment implements the Text Segmenter: the Chunker that
// token-budgets claims-pipeline input and the Chapter Extractor that
// finds chapters-pipeline structural units. Grounded on the teacher's
// text-shaping helpers in internal/jobs/common/structure_helpers.go
// (CountWords, page-join heuristics) and the sentence-boundary care in
// internal/jobs/tts_generate_openai/sentences.go, generalized from
// TTS-input splitting to token-budgeted chunk packing.
package segment

import (
	"math"
	"regexp"
	"strings"
)

// Chunk is one claims-pipeline text segment before it becomes a
// model.Chunk (the Store record adds BookID/Order/CreatedAt).
type Chunk struct {
	Text       string
	TokenCount int
}

// ChunkOptions bounds chunk size in estimated tokens.
type ChunkOptions struct {
	MinTokens int
	MaxTokens int
}

// DefaultChunkOptions matches the source system's defaults (§4.4).
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MinTokens: 800, MaxTokens: 1500}
}

// EstimateTokens approximates token count as ceil(chars/4), the
// estimator §4.4 specifies in place of a real tokenizer.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / 4.0))
}

var paragraphSplit = regexp.MustCompile(`\n{2,}`)

// naturalBreaks are phrases that, once a chunk is already within the
// acceptable min..max window, are treated as a good place to stop
// rather than pack further paragraphs in.
var naturalBreaks = []string{
	"in conclusion",
	"to summarize",
	"the key takeaway",
	"moving on",
}

// Chunk splits text into token-budgeted chunks per §4.4's five-step
// algorithm: paragraph accumulation, oversized-paragraph sentence
// splitting, natural-break early emission, and trailing-chunk merge-back.
func Chunk(text string, opts ChunkOptions) []Chunk {
	if opts.MinTokens <= 0 || opts.MaxTokens <= 0 || opts.MinTokens > opts.MaxTokens {
		opts = DefaultChunkOptions()
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var current strings.Builder
	currentTokens := 0

	emit := func() {
		body := strings.TrimSpace(current.String())
		if body == "" {
			return
		}
		chunks = append(chunks, Chunk{Text: body, TokenCount: EstimateTokens(body)})
		current.Reset()
		currentTokens = 0
	}

	appendParagraph := func(p string) {
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentTokens = EstimateTokens(current.String())
	}

	for _, p := range paragraphs {
		pTokens := EstimateTokens(p)

		if pTokens > opts.MaxTokens {
			// An oversized paragraph is sentence-split and packed on its own.
			emit()
			for _, sub := range packSentences(p, opts) {
				chunks = append(chunks, sub)
			}
			continue
		}

		if currentTokens > 0 && currentTokens+pTokens > opts.MaxTokens && currentTokens >= opts.MinTokens {
			emit()
		}

		appendParagraph(p)

		if currentTokens >= opts.MinTokens && currentTokens <= opts.MaxTokens && endsWithNaturalBreak(current.String()) {
			emit()
		}
	}
	emit()

	return mergeTrailingChunk(chunks, opts)
}

func splitParagraphs(text string) []string {
	raw := paragraphSplit.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func endsWithNaturalBreak(chunk string) bool {
	lower := strings.ToLower(chunk)
	for _, phrase := range naturalBreaks {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// packSentences sentence-splits an oversized paragraph and repacks the
// sentences using the same min/max accumulation rule as Chunk.
func packSentences(paragraph string, opts ChunkOptions) []Chunk {
	sentences := SplitSentences(paragraph)
	if len(sentences) == 0 {
		return []Chunk{{Text: paragraph, TokenCount: EstimateTokens(paragraph)}}
	}

	var out []Chunk
	var current strings.Builder
	currentTokens := 0

	emit := func() {
		body := strings.TrimSpace(current.String())
		if body == "" {
			return
		}
		out = append(out, Chunk{Text: body, TokenCount: EstimateTokens(body)})
		current.Reset()
		currentTokens = 0
	}

	for _, s := range sentences {
		sTokens := EstimateTokens(s)
		if currentTokens > 0 && currentTokens+sTokens > opts.MaxTokens && currentTokens >= opts.MinTokens {
			emit()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
		currentTokens = EstimateTokens(current.String())
	}
	emit()

	return out
}

// mergeTrailingChunk folds a too-small final chunk into its predecessor
// when the combination still fits within 1.2x the max token budget.
func mergeTrailingChunk(chunks []Chunk, opts ChunkOptions) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	last := chunks[len(chunks)-1]
	if last.TokenCount >= opts.MinTokens {
		return chunks
	}

	prev := chunks[len(chunks)-2]
	merged := prev.Text + "\n\n" + last.Text
	mergedTokens := EstimateTokens(merged)
	if float64(mergedTokens) > 1.2*float64(opts.MaxTokens) {
		return chunks
	}

	out := make([]Chunk, len(chunks)-2, len(chunks)-1)
	copy(out, chunks[:len(chunks)-2])
	out = append(out, Chunk{Text: merged, TokenCount: mergedTokens})
	return out
}

// sentenceBoundary matches sentence-ending punctuation followed by
// whitespace and an uppercase letter, per §4.4's sentence splitter.
var sentenceBoundary = regexp.MustCompile(`([.!?])\s+([A-Z])`)

// SplitSentences splits paragraph text on sentence boundaries. English
// sentence punctuation only (§9: non-English content just chunks
// larger or smaller, never incorrectly).
func SplitSentences(paragraph string) []string {
	paragraph = strings.TrimSpace(paragraph)
	if paragraph == "" {
		return nil
	}

	var sentences []string
	last := 0
	matches := sentenceBoundary.FindAllStringSubmatchIndex(paragraph, -1)
	for _, m := range matches {
		// m[3] is the end of the punctuation group; split right after it.
		boundary := m[3]
		sentences = append(sentences, strings.TrimSpace(paragraph[last:boundary]))
		last = m[4] // start of the uppercase-letter group
	}
	tail := strings.TrimSpace(paragraph[last:])
	if tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// WordCount counts whitespace-separated tokens, the definition §9 uses
// throughout for word counts and compression ratios.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
