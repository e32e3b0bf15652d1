package coerce

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoerce_SchemaDrivenFields(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {
			"label": {"type": "string", "enum": ["core_insight", "supporting_insight", "redundant", "filler"]},
			"score": {"type": "number"},
			"has_toc": {"type": "boolean"}
		}
	}`)

	raw := []byte(`{"Label":"Core Insight","Score":"0.8","has_toc":"medium"}`)

	out, subs, err := Coerce(schema, raw, false)
	require.NoError(t, err)
	require.NotEmpty(t, subs)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "core_insight", decoded["label"])
	require.Equal(t, 0.8, decoded["score"])
	require.Equal(t, true, decoded["has_toc"])
}

func TestCoerce_UnmatchedEnumFuzzyFallback(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {
			"label": {"type": "string", "enum": ["core_insight", "supporting_insight"]}
		}
	}`)
	raw := []byte(`{"label":"totally unrelated text"}`)

	out, subs, err := Coerce(schema, raw, true)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "core_insight", decoded["label"])

	found := false
	for _, s := range subs {
		if s.Reason == "no match; substituted first enum value" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCoerce_NonFuzzyLeavesUnmatchedEnumLowercased(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {
			"label": {"type": "string", "enum": ["core_insight", "supporting_insight"]}
		}
	}`)
	raw := []byte(`{"label":"Something Else"}`)

	out, _, err := Coerce(schema, raw, false)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "something else", decoded["label"])
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"claimType":     "claim_type",
		"HasTOC":        "has_toc",
		"already_snake": "already_snake",
		"ID":            "id",
	}
	for in, want := range cases {
		require.Equal(t, want, ToSnakeCase(in), "input %q", in)
	}
}

func TestCoerce_NumericPlaceholderDropped(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"score":{"type":"number"}}}`)
	raw := []byte(`{"score":"not specified"}`)

	out, subs, err := Coerce(schema, raw, false)
	require.NoError(t, err)
	require.NotEmpty(t, subs)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Nil(t, decoded["score"])
}
