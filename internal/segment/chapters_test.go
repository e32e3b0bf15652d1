package segment

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractChapters_TOCGuided(t *testing.T) {
	text := "Contents\nChapter 1 Alpha .... 5\nChapter 2 Beta .... 20\n\n" +
		"Chapter 1 Alpha\n" + strings.Repeat("Alpha body text. ", 40) + "\n\n" +
		"Chapter 2 Beta\n" + strings.Repeat("Beta body text. ", 40)

	entries := []TOCEntry{
		{Title: "Alpha", NormalizedTitle: "chapter 1 alpha", Level: 2},
		{Title: "Beta", NormalizedTitle: "chapter 2 beta", Level: 2},
	}

	// TOC-guided requires >=3 resolved chapters; add a third matching entry.
	text += "\n\nChapter 3 Gamma\n" + strings.Repeat("Gamma body text. ", 40)
	entries = append(entries, TOCEntry{Title: "Gamma", NormalizedTitle: "chapter 3 gamma", Level: 2})

	result := ExtractChapters(text, entries)
	require.Equal(t, MethodTOC, result.ExtractionMethod)
	require.True(t, result.HasDetectedStructure)
	require.Len(t, result.Chapters, 3)
}

func TestExtractChapters_RegexFallback(t *testing.T) {
	text := "Chapter 1: Alpha\n" + strings.Repeat("Alpha body. ", 60) +
		"\n\nChapter 2: Beta\n" + strings.Repeat("Beta body. ", 60) +
		"\n\nChapter 3: Gamma\n" + strings.Repeat("Gamma body. ", 60)

	result := ExtractChapters(text, nil)
	require.Equal(t, MethodRegex, result.ExtractionMethod)
	require.True(t, result.HasDetectedStructure)
	require.GreaterOrEqual(t, len(result.Chapters), 3)
}

func TestExtractChapters_ArtificialFallback(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Paragraph %d with some unstructured prose content.", i))
	}
	text := strings.Join(paragraphs, "\n\n")

	result := ExtractChapters(text, nil)
	require.Equal(t, MethodArtificial, result.ExtractionMethod)
	require.False(t, result.HasDetectedStructure)
	require.NotEmpty(t, result.Chapters)
	require.Equal(t, "Section 1", result.Chapters[0].Title)
}

func TestSplitOversizedChapters(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 50; i++ {
		paragraphs = append(paragraphs, strings.Repeat("word ", 400))
	}
	huge := ChapterCandidate{Title: "Huge", Level: 1, Content: strings.Join(paragraphs, "\n\n")}

	out := splitOversizedChapters([]ChapterCandidate{huge})
	require.Greater(t, len(out), 1)
	for i, c := range out {
		require.LessOrEqual(t, EstimateTokens(c.Content), MaxChapterTokens)
		require.Equal(t, fmt.Sprintf("Huge (Part %d)", i+1), c.Title)
	}
}

func TestFuzzyMatchTitle_WordOverlap(t *testing.T) {
	text := "Some preamble.\n\nIntroduction To Functional Programming Concepts\n\nBody text follows."
	idx, ok := fuzzyMatchTitle(text, "introduction functional programming", 0)
	require.True(t, ok)
	require.Greater(t, idx, 0)
}
