package detect

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/llm"
)

func TestDetectTOC_SkipsShortInput(t *testing.T) {
	client := llm.NewMockClient()
	result, err := DetectTOC(context.Background(), client, "extraction", []string{"too short"})
	require.NoError(t, err)
	require.False(t, result.HasTOC)
	require.Equal(t, ConfidenceLow, result.Confidence)
	require.Equal(t, int64(0), client.RequestCount())
}

func TestDetectTOC_ReliableResult(t *testing.T) {
	client := llm.NewMockClient()
	payload, err := json.Marshal(TOCResult{
		HasTOC: true,
		Entries: []TOCEntry{
			{Title: "Part One", NormalizedTitle: "part one", Level: 1},
			{Title: "Chapter 1", NormalizedTitle: "chapter 1", Level: 2},
			{Title: "Chapter 2", NormalizedTitle: "chapter 2", Level: 2},
		},
		Confidence: ConfidenceHigh,
	})
	require.NoError(t, err)
	client.ResponseJSON = payload

	pages := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		pages = append(pages, "This is a reasonably long opening page of sample book text used for detection.")
	}

	result, err := DetectTOC(context.Background(), client, "extraction", pages)
	require.NoError(t, err)
	require.True(t, result.Reliable())
	require.Len(t, result.ToSegmentEntries(), 3)
}

func TestDetectTOC_UnreliableWhenConfidenceLow(t *testing.T) {
	client := llm.NewMockClient()
	payload, err := json.Marshal(TOCResult{
		HasTOC: true,
		Entries: []TOCEntry{
			{Title: "Chapter 1", NormalizedTitle: "chapter 1", Level: 2},
			{Title: "Chapter 2", NormalizedTitle: "chapter 2", Level: 2},
			{Title: "Chapter 3", NormalizedTitle: "chapter 3", Level: 2},
		},
		Confidence: ConfidenceLow,
	})
	require.NoError(t, err)
	client.ResponseJSON = payload

	pages := []string{"A long enough opening page of sample book text to pass the minimum length check for detection. It goes on about the aims of the book, the readers it was written for, and the order in which its chapters take up each topic."}
	result, err := DetectTOC(context.Background(), client, "extraction", pages)
	require.NoError(t, err)
	require.False(t, result.Reliable())
}
