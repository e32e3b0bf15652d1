package llm

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testLabelSchema = `{
	"type": "object",
	"properties": {
		"label": {"type": "string", "enum": ["core_insight", "supporting_insight", "filler"]},
		"score": {"type": "number"}
	},
	"required": ["label", "score"]
}`

func TestCoerceAndValidate_PassesCleanOutput(t *testing.T) {
	c := &HTTPClient{logger: discardLogger()}

	out, err := c.coerceAndValidate(json.RawMessage(testLabelSchema), json.RawMessage(`{"label":"core_insight","score":0.9}`))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "core_insight", doc["label"])
}

func TestCoerceAndValidate_FirstPassFixesCaseDrift(t *testing.T) {
	c := &HTTPClient{logger: discardLogger()}

	// "Core" normalizes to "core" on the non-fuzzy pass, which the alias
	// table maps straight to "core_insight" - no fuzzy retry needed.
	out, err := c.coerceAndValidate(json.RawMessage(testLabelSchema), json.RawMessage(`{"label":"Core","score":"0.9"}`))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "core_insight", doc["label"])
	require.InEpsilon(t, 0.9, doc["score"], 0.0001)
}

func TestCoerceAndValidate_FuzzyRetryResolvesUnknownEnumValue(t *testing.T) {
	c := &HTTPClient{logger: discardLogger()}

	// "definitely not filler" has no alias and no fuzzy retry couldn't be
	// skipped: the non-fuzzy pass leaves it unresolved and fails
	// validation, so the client must retry with fuzzy=true before this
	// claim's extraction succeeds instead of aborting the whole book.
	out, err := c.coerceAndValidate(json.RawMessage(testLabelSchema), json.RawMessage(`{"label":"definitely not filler","score":0.2}`))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "core_insight", doc["label"]) // fuzzy mode substitutes the first listed enum value
}

func TestCoerceAndValidate_FailsAfterFuzzyRetryExhausted(t *testing.T) {
	c := &HTTPClient{logger: discardLogger()}

	_, err := c.coerceAndValidate(json.RawMessage(testLabelSchema), json.RawMessage(`{"label":"core_insight"}`))
	require.Error(t, err) // missing required "score" can't be coerced into existing
}
