// Package coerce implements the Schema Coercion Layer: the Structured-LLM
// Client (internal/llm) runs every parsed reply through Coerce before
// validating it against the caller's JSON Schema, because models drift
// from the schema they were asked to follow (key case, enum spelling,
// stringly-typed numbers). Grounded on the teacher's tolerant-parsing
// style in internal/providers/structured_output.go, generalized from
// code-fence/prose stripping to full value-tree normalization.
package coerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Substitution records one coercion the layer had to make, for logging.
// A Substitution is never fatal - it is the layer choosing a usable
// value over failing the whole stage.
type Substitution struct {
	Path     string `json:"path"`
	Original any    `json:"original"`
	Coerced  any    `json:"coerced"`
	Reason   string `json:"reason"`
}

// aliasTable maps common off-contract spellings to the canonical enum
// value the schemas use. Extend per-enum below as new drift is observed.
var aliasTable = map[string]string{
	"core":            "core_insight",
	"coreinsight":     "core_insight",
	"core insight":    "core_insight",
	"supporting":      "supporting_insight",
	"support":         "supporting_insight",
	"redundant claim": "redundant",
	"filler content":  "filler",
	"positive":        "happy",
	"good":            "happy",
}

// Coerce rewrites raw according to schema before validation: keys are
// renamed to snake_case, string leaves are lowercased, declared-numeric
// and declared-boolean fields are parsed from common loose forms, and
// declared-enum fields are resolved via exact/normalized/alias matching.
// When fuzzy is true, enum resolution also falls back to substituting
// the first listed enum value rather than leaving the field unresolved -
// the §4.1 "retry coercion once more with enum-fuzzy-match mode" step.
func Coerce(schemaRaw, raw json.RawMessage, fuzzy bool) (json.RawMessage, []Substitution, error) {
	var schema any
	if len(schemaRaw) > 0 {
		if err := json.Unmarshal(schemaRaw, &schema); err != nil {
			return nil, nil, fmt.Errorf("coerce: invalid schema: %w", err)
		}
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, nil, fmt.Errorf("coerce: invalid value: %w", err)
	}

	var subs []Substitution
	coerced := walk("", schema, value, fuzzy, &subs)

	out, err := json.Marshal(coerced)
	if err != nil {
		return nil, nil, fmt.Errorf("coerce: re-marshal: %w", err)
	}
	return out, subs, nil
}

func walk(path string, schema, value any, fuzzy bool, subs *[]Substitution) any {
	schemaObj, _ := schema.(map[string]any)

	switch v := value.(type) {
	case map[string]any:
		return walkObject(path, schemaObj, v, fuzzy, subs)
	case []any:
		itemSchema, _ := schemaObj["items"]
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = walk(fmt.Sprintf("%s[%d]", path, i), itemSchema, item, fuzzy, subs)
		}
		return out
	case string:
		return coerceLeaf(path, schemaObj, v, fuzzy, subs)
	default:
		return value
	}
}

func walkObject(path string, schema map[string]any, obj map[string]any, fuzzy bool, subs *[]Substitution) map[string]any {
	props, _ := schema["properties"].(map[string]any)

	out := make(map[string]any, len(obj))
	for rawKey, rawVal := range obj {
		key := ToSnakeCase(rawKey)
		if key != rawKey {
			*subs = append(*subs, Substitution{
				Path: childPath(path, rawKey), Original: rawKey, Coerced: key,
				Reason: "key renamed to snake_case",
			})
		}

		var fieldSchema any
		if props != nil {
			fieldSchema = props[key]
		}
		childP := childPath(path, key)

		switch fieldSchema := fieldSchema.(type) {
		case map[string]any:
			coerced := coerceTyped(childP, fieldSchema, rawVal, fuzzy, subs)
			if coerced == nil && rawVal != nil {
				// A dropped placeholder leaves the field absent.
				continue
			}
			out[key] = coerced
		default:
			out[key] = walk(childP, nil, rawVal, fuzzy, subs)
		}
	}
	return out
}

// coerceTyped applies schema-declared type/enum coercion to a single field.
func coerceTyped(path string, fieldSchema map[string]any, value any, fuzzy bool, subs *[]Substitution) any {
	if enumRaw, ok := fieldSchema["enum"].([]any); ok {
		enum := make([]string, 0, len(enumRaw))
		for _, e := range enumRaw {
			if s, ok := e.(string); ok {
				enum = append(enum, s)
			}
		}
		if s, ok := value.(string); ok {
			return coerceEnum(path, enum, s, fuzzy, subs)
		}
	}

	switch fieldSchema["type"] {
	case "integer", "number":
		if coerced, ok := coerceNumeric(value); ok {
			if coerced != value {
				*subs = append(*subs, Substitution{Path: path, Original: value, Coerced: coerced, Reason: "parsed numeric string"})
			}
			return coerced
		}
		if s, ok := value.(string); ok && isAbsentMarker(s) {
			*subs = append(*subs, Substitution{Path: path, Original: value, Coerced: nil, Reason: "non-numeric placeholder dropped"})
			return nil
		}
		return value
	case "boolean":
		if coerced, ok := coerceBoolean(value); ok {
			if coerced != value {
				*subs = append(*subs, Substitution{Path: path, Original: value, Coerced: coerced, Reason: "parsed boolean-like value"})
			}
			return coerced
		}
		return value
	default:
		return walk(path, fieldSchema, value, fuzzy, subs)
	}
}

// coerceLeaf lowercases bare string leaves that have no field-level
// schema to consult (e.g. inside a "type": "string" array with no enum).
func coerceLeaf(path string, schema map[string]any, s string, fuzzy bool, subs *[]Substitution) any {
	if enumRaw, ok := schema["enum"].([]any); ok {
		enum := make([]string, 0, len(enumRaw))
		for _, e := range enumRaw {
			if es, ok := e.(string); ok {
				enum = append(enum, es)
			}
		}
		return coerceEnum(path, enum, s, fuzzy, subs)
	}
	lower := strings.ToLower(s)
	if lower != s {
		*subs = append(*subs, Substitution{Path: path, Original: s, Coerced: lower, Reason: "lowercased string leaf"})
	}
	return lower
}

func coerceEnum(path string, enum []string, value string, fuzzy bool, subs *[]Substitution) string {
	for _, e := range enum {
		if e == value {
			return value
		}
	}

	normalized := normalizeEnumCandidate(value)
	for _, e := range enum {
		if e == normalized {
			*subs = append(*subs, Substitution{Path: path, Original: value, Coerced: e, Reason: "normalized to declared enum value"})
			return e
		}
	}

	alias, ok := aliasTable[normalized]
	if !ok {
		alias, ok = aliasTable[strings.ToLower(strings.TrimSpace(value))]
	}
	if ok {
		for _, e := range enum {
			if e == alias {
				*subs = append(*subs, Substitution{Path: path, Original: value, Coerced: e, Reason: "resolved via alias table"})
				return e
			}
		}
	}

	if fuzzy && len(enum) > 0 {
		*subs = append(*subs, Substitution{Path: path, Original: value, Coerced: enum[0], Reason: "no match; substituted first enum value"})
		return enum[0]
	}

	return strings.ToLower(value)
}

func normalizeEnumCandidate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func coerceNumeric(value any) (any, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, false
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func isAbsentMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "not specified", "n/a", "none", "unknown", "":
		return true
	default:
		return false
	}
}

func coerceBoolean(value any) (any, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "high", "medium":
			return true, true
		case "false", "low", "none":
			return false, true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}

// ToSnakeCase rewrites a camelCase or PascalCase identifier to snake_case.
// Already-snake_case input passes through unchanged.
func ToSnakeCase(s string) string {
	if s == "" {
		return s
	}

	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
				if prev != '_' && (prev < 'A' || prev > 'Z' || nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
