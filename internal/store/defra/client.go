// Package defra implements store.Store against a DefraDB instance over its
// GraphQL/HTTP API. Grounded on the teacher's internal/defra package
// (client.go's Execute/Create/mapToGraphQLInput and query.go's
// QueryBuilder variable-binding scheme), generalized from the teacher's
// page/book-specific collections to the seven distillation collections
// (User through FinalOutput) plus LLMCall, and driven entirely off the destination struct's json
// tags rather than a hand-maintained field list per collection.
package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/avantbook/distill/internal/store"
)

// idPattern matches the ids this client accepts as DefraDB docIDs. Same
// intent as the teacher's defra.IDPattern: reject anything that could
// break out of an inline GraphQL literal before it reaches a query string.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return fmt.Errorf("defra: invalid id %q", id)
	}
	return nil
}

// gqlRequest is the JSON body DefraDB's /api/v0/graphql endpoint expects.
type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// gqlError is a single entry of a GraphQL response's errors array.
type gqlError struct {
	Message string `json:"message"`
}

// gqlResponse is a GraphQL response envelope.
type gqlResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []gqlError     `json:"errors,omitempty"`
}

func (r *gqlResponse) errString() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Client is a DefraDB-backed store.Store.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient returns a Client talking to the DefraDB instance at url.
func NewClient(url string) *Client {
	return &Client{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ store.Store = (*Client)(nil)

// HealthCheck reports whether DefraDB is reachable and accepting requests.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health-check", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("defra: unhealthy, status %d", resp.StatusCode)
	}
	return nil
}

// execute sends a GraphQL query or mutation and decodes its response envelope.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any) (*gqlResponse, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("defra: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("defra: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("defra: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("defra: read response: %w", err)
	}

	var out gqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("defra: unmarshal response: %w (body: %s)", err, string(raw))
	}
	return &out, nil
}

// AddSchema applies SDL to the running DefraDB instance.
func (c *Client) AddSchema(ctx context.Context, sdl string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/schema", strings.NewReader(sdl))
	if err != nil {
		return fmt.Errorf("defra: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("defra: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("defra: schema error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// fieldsFor returns the GraphQL field selection to request for out's
// element type, derived from its json struct tags. "_docID" always leads
// the list; the json "id" field is skipped since DefraDB surfaces that
// identity as "_docID", not as a regular field.
func fieldsFor(out any) []string {
	t := reflect.TypeOf(out)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return []string{"_docID"}
	}

	fields := []string{"_docID"}
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "id" {
			continue
		}
		fields = append(fields, name)
	}
	return fields
}

// normalizeDocs renames each document's "_docID" key to "id" so the
// round-trip through encoding/json lands in the struct's ID field, the
// same convention memstore uses for its own document keys.
func normalizeDocs(raw []any) []map[string]any {
	docs := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if docID, ok := m["_docID"]; ok {
			m["id"] = docID
			delete(m, "_docID")
		}
		docs = append(docs, m)
	}
	return docs
}

func decodeInto(docs []map[string]any, out any) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("defra: marshal docs: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("defra: unmarshal docs: %w", err)
	}
	return nil
}

// filterDef is one bound equality filter in a Find/DeleteMany query,
// mirroring the teacher's QueryBuilder filterDef: the literal value
// travels as a GraphQL variable so it never touches the query string.
type filterDef struct {
	field   string
	varName string
	varType string
}

func bindFilter(filter store.Filter) (defs []filterDef, vars map[string]any) {
	vars = make(map[string]any, len(filter))
	i := 0
	for field, value := range filter {
		varName := fmt.Sprintf("v%d", i)
		defs = append(defs, filterDef{field: field, varName: varName, varType: graphQLType(value)})
		vars[varName] = value
		i++
	}
	return defs, vars
}

func graphQLType(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}

func buildFilterClause(defs []filterDef) (varDefs []string, filterParts []string) {
	for _, d := range defs {
		field := d.field
		if field == "id" {
			// normalizeDocs exposes _docID as "id"; map it back for filters.
			field = "_docID"
		}
		varDefs = append(varDefs, fmt.Sprintf("$%s: %s", d.varName, d.varType))
		filterParts = append(filterParts, fmt.Sprintf("%s: {_eq: $%s}", field, d.varName))
	}
	return varDefs, filterParts
}

// Find implements store.Store.
func (c *Client) Find(ctx context.Context, collection string, q store.Query, out any) error {
	defs, vars := bindFilter(q.Filter)
	varDefs, filterParts := buildFilterClause(defs)

	var args []string
	if len(filterParts) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(filterParts, ", ")))
	}
	if q.Sort != nil {
		dir := "ASC"
		if q.Sort.Descending {
			dir = "DESC"
		}
		args = append(args, fmt.Sprintf("order: {%s: %s}", q.Sort.Field, dir))
	}
	if q.Limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.Limit))
	}

	var query strings.Builder
	if len(varDefs) > 0 {
		query.WriteString(fmt.Sprintf("query(%s) ", strings.Join(varDefs, ", ")))
	}
	query.WriteString("{ ")
	query.WriteString(collection)
	if len(args) > 0 {
		query.WriteString(fmt.Sprintf("(%s)", strings.Join(args, ", ")))
	}
	query.WriteString(" { ")
	query.WriteString(strings.Join(fieldsFor(out), " "))
	query.WriteString(" } }")

	resp, err := c.execute(ctx, query.String(), vars)
	if err != nil {
		return err
	}
	if msg := resp.errString(); msg != "" {
		return fmt.Errorf("defra: find %s: %s", collection, msg)
	}

	raw, _ := resp.Data[collection].([]any)
	return decodeInto(normalizeDocs(raw), out)
}

// FindOne implements store.Store.
func (c *Client) FindOne(ctx context.Context, collection, id string, out any) error {
	if err := validateID(id); err != nil {
		return err
	}

	query := fmt.Sprintf(`query($docID: String) { %s(filter: {_docID: {_eq: $docID}}) { %s } }`,
		collection, strings.Join(fieldsFor(out), " "))

	resp, err := c.execute(ctx, query, map[string]any{"docID": id})
	if err != nil {
		return err
	}
	if msg := resp.errString(); msg != "" {
		return fmt.Errorf("defra: find one %s: %s", collection, msg)
	}

	raw, _ := resp.Data[collection].([]any)
	docs := normalizeDocs(raw)
	if len(docs) == 0 {
		return store.ErrNotFound
	}
	return decodeOneMap(docs[0], out)
}

// decodeOneMap is decodeInto's single-document counterpart: it unmarshals
// straight into a struct pointer rather than a slice.
func decodeOneMap(doc map[string]any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("defra: marshal doc: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("defra: unmarshal doc: %w", err)
	}
	return nil
}

// mapToGraphQLInput renders a document as an inline GraphQL input object.
// String values pass through %q, which escapes quotes and backslashes the
// same way Go and GraphQL string literals do; this is the teacher's
// Create encoding, carried over unchanged.
func mapToGraphQLInput(input map[string]any) string {
	parts := make([]string, 0, len(input))
	for k, v := range input {
		var valStr string
		switch val := v.(type) {
		case string:
			valStr = fmt.Sprintf("%q", val)
		case int, int32, int64, float32, float64, bool:
			valStr = fmt.Sprintf("%v", val)
		default:
			b, _ := json.Marshal(val)
			valStr = string(b)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, valStr))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c *Client) createOne(ctx context.Context, collection string, doc map[string]any) (string, error) {
	query := fmt.Sprintf(`mutation { create_%s(input: %s) { _docID } }`, collection, mapToGraphQLInput(doc))

	resp, err := c.execute(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if msg := resp.errString(); msg != "" {
		return "", fmt.Errorf("defra: create %s: %s", collection, msg)
	}

	key := "create_" + collection
	if docs, ok := resp.Data[key].([]any); ok && len(docs) > 0 {
		if created, ok := docs[0].(map[string]any); ok {
			if docID, ok := created["_docID"].(string); ok {
				return docID, nil
			}
		}
	}
	return "", fmt.Errorf("defra: create %s: unexpected response %+v", collection, resp.Data)
}

// InsertMany implements store.Store. DefraDB's create mutation accepts one
// document per call, so this issues one request per entry. Callers that
// want batching and backpressure go through store.Sink (internal/store/sink.go);
// the orchestrator and pipelines call this Store directly.
func (c *Client) InsertMany(ctx context.Context, collection string, docs []map[string]any) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		id, err := c.createOne(ctx, collection, d)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateOne implements store.Store.
func (c *Client) UpdateOne(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := validateID(id); err != nil {
		return err
	}

	query := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID } }`,
		collection, id, mapToGraphQLInput(patch))

	resp, err := c.execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if msg := resp.errString(); msg != "" {
		return fmt.Errorf("defra: update %s/%s: %s", collection, id, msg)
	}

	key := "update_" + collection
	if docs, ok := resp.Data[key].([]any); ok && len(docs) > 0 {
		return nil
	}
	return store.ErrNotFound
}

// DeleteMany implements store.Store.
func (c *Client) DeleteMany(ctx context.Context, collection string, filter store.Filter) (int, error) {
	defs, vars := bindFilter(filter)
	varDefs, filterParts := buildFilterClause(defs)

	var filterArg string
	if len(filterParts) > 0 {
		filterArg = fmt.Sprintf("(filter: {%s})", strings.Join(filterParts, ", "))
	}

	var query strings.Builder
	if len(varDefs) > 0 {
		query.WriteString(fmt.Sprintf("mutation(%s) ", strings.Join(varDefs, ", ")))
	} else {
		query.WriteString("mutation ")
	}
	query.WriteString(fmt.Sprintf("{ delete_%s%s { _docID } }", collection, filterArg))

	resp, err := c.execute(ctx, query.String(), vars)
	if err != nil {
		return 0, err
	}
	if msg := resp.errString(); msg != "" {
		return 0, fmt.Errorf("defra: delete %s: %s", collection, msg)
	}

	key := "delete_" + collection
	docs, _ := resp.Data[key].([]any)
	return len(docs), nil
}
