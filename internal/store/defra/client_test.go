package defra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avantbook/distill/internal/store"
)

type testBook struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	UserID string `json:"user_id"`
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health-check", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL).HealthCheck(context.Background()))
}

func TestClient_Create(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Contains(t, req.Query, "create_Book")
		require.Contains(t, req.Query, `title: "Alpha"`)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"create_Book":[{"_docID":"bk1"}]}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ids, err := c.InsertMany(context.Background(), "Book", []map[string]any{
		{"title": "Alpha", "user_id": "u1"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"bk1"}, ids)
}

func TestClient_FindOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Contains(t, req.Query, "_docID")
		require.Contains(t, req.Query, "title")
		require.Equal(t, "bk1", req.Variables["docID"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"Book":[{"_docID":"bk1","title":"Alpha","user_id":"u1"}]}}`))
	}))
	defer server.Close()

	var got testBook
	require.NoError(t, NewClient(server.URL).FindOne(context.Background(), "Book", "bk1", &got))
	require.Equal(t, testBook{ID: "bk1", Title: "Alpha", UserID: "u1"}, got)
}

func TestClient_FindOne_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"Book":[]}}`))
	}))
	defer server.Close()

	var got testBook
	err := NewClient(server.URL).FindOne(context.Background(), "Book", "missing", &got)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestClient_FindOne_RejectsInvalidID(t *testing.T) {
	c := NewClient("http://localhost")
	var got testBook
	err := c.FindOne(context.Background(), "Book", "bad id; { }", &got)
	require.Error(t, err)
}

func TestClient_DeleteMany(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		require.NoError(t, json.Unmarshal(body, &req))
		require.Contains(t, req.Query, "delete_Book")
		require.Equal(t, "u2", req.Variables["v0"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"delete_Book":[{"_docID":"bk2"}]}}`))
	}))
	defer server.Close()

	n, err := NewClient(server.URL).DeleteMany(context.Background(), "Book", store.Filter{"user_id": "u2"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestFieldsFor(t *testing.T) {
	fields := fieldsFor([]testBook{})
	require.Equal(t, []string{"_docID", "title", "user_id"}, fields)
}
