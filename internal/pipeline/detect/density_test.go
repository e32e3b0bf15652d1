package detect

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/llm"
)

func TestAnalyzeDensity_SkipsSmallSample(t *testing.T) {
	client := llm.NewMockClient()
	result, err := AnalyzeDensity(context.Background(), client, "extraction", "too small")
	require.NoError(t, err)
	require.Equal(t, 5, result.DensityScore)
	require.Contains(t, result.Characteristics, "insufficient_sample")
	require.Equal(t, int64(0), client.RequestCount())
}

func TestAnalyzeDensity_FallsBackOnFailure(t *testing.T) {
	client := llm.NewMockClient()
	client.ShouldFail = true

	sample := strings.Repeat("Dense conceptual content about the subject matter. ", 20)
	result, err := AnalyzeDensity(context.Background(), client, "extraction", sample)
	require.NoError(t, err)
	require.Contains(t, result.Characteristics, "analysis_failed")
}

func TestAnalyzeDensity_UsesModelRecommendation(t *testing.T) {
	client := llm.NewMockClient()
	payload, err := json.Marshal(DensityResult{
		DensityScore:            8,
		Characteristics:         []string{"tight argumentation", "few examples"},
		RecommendedCompression:  0.20,
		RecommendedContextSize:  150,
	})
	require.NoError(t, err)
	client.ResponseJSON = payload

	sample := strings.Repeat("Dense conceptual content about the subject matter. ", 20)
	result, err := AnalyzeDensity(context.Background(), client, "extraction", sample)
	require.NoError(t, err)
	require.Equal(t, 8, result.DensityScore)
	require.Equal(t, 0.20, result.RecommendedCompression)
	require.Equal(t, 150, result.RecommendedContextSize)
}

func TestBuildRepresentativeSample(t *testing.T) {
	chapters := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	sample := BuildRepresentativeSample(chapters)
	require.Contains(t, sample, "one")
	require.Contains(t, sample, "---")
}

func TestBuildRepresentativeSample_Empty(t *testing.T) {
	require.Equal(t, "", BuildRepresentativeSample(nil))
}
