package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunk_ConcatenationPreservesContent(t *testing.T) {
	text := strings.Repeat("Paragraph one has some words in it. ", 40) + "\n\n" +
		strings.Repeat("Paragraph two also has content here. ", 40)

	chunks := Chunk(text, ChunkOptions{MinTokens: 50, MaxTokens: 200})
	require.NotEmpty(t, chunks)

	var rebuilt strings.Builder
	for i, c := range chunks {
		if i > 0 {
			rebuilt.WriteString("\n\n")
		}
		rebuilt.WriteString(c.Text)
	}

	normalize := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	require.Equal(t, normalize(text), normalize(rebuilt.String()))
}

func TestChunk_NoChunkExceedsOverageBound(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 30; i++ {
		paragraphs = append(paragraphs, strings.Repeat("word ", 60))
	}
	text := strings.Join(paragraphs, "\n\n")

	opts := ChunkOptions{MinTokens: 100, MaxTokens: 200}
	chunks := Chunk(text, opts)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		require.LessOrEqual(t, float64(c.TokenCount), 1.2*float64(opts.MaxTokens))
	}
}

func TestChunk_OversizedParagraphIsSentenceSplit(t *testing.T) {
	sentence := "This is a sentence that repeats. "
	hugeParagraph := strings.Repeat(sentence, 200) // a single paragraph, no blank lines

	chunks := Chunk(hugeParagraph, ChunkOptions{MinTokens: 50, MaxTokens: 150})
	require.Greater(t, len(chunks), 1)
}

func TestSplitSentences(t *testing.T) {
	text := "This is one. This is two. Is this three? Yes it is!"
	sentences := SplitSentences(text)
	require.Len(t, sentences, 4)
	require.Equal(t, "This is one.", sentences[0])
	require.Equal(t, "Yes it is!", sentences[3])
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"))
}

func TestWordCount(t *testing.T) {
	require.Equal(t, 3, WordCount("one two three"))
	require.Equal(t, 0, WordCount("   "))
}
