package llmcall

import (
	"context"
	"fmt"

	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/store"
)

// Store provides read access to recorded LLM calls, for diagnostics and
// the CountByPromptKey aggregate used by book-processing logs.
type Store struct {
	store store.Store
}

// NewStore creates an llmcall Store backed by the given document store.
func NewStore(s store.Store) *Store {
	return &Store{store: s}
}

// QueryFilter narrows a List call. Zero-value fields are unconstrained.
type QueryFilter struct {
	BookID    string
	Stage     string
	PromptKey string
	Provider  string
	Model     string
	Success   *bool
	Limit     int
}

// Get retrieves a single LLM call by id. Returns store.ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	var call Call
	if err := s.store.FindOne(ctx, model.CollectionLLMCall, id, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// List retrieves LLM calls matching filter.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	q := store.Query{Limit: filter.Limit}
	f := store.Filter{}
	if filter.BookID != "" {
		f["book_id"] = filter.BookID
	}
	if filter.Stage != "" {
		f["stage"] = filter.Stage
	}
	if filter.PromptKey != "" {
		f["prompt_key"] = filter.PromptKey
	}
	if filter.Provider != "" {
		f["provider"] = filter.Provider
	}
	if filter.Model != "" {
		f["model"] = filter.Model
	}
	if filter.Success != nil {
		f["success"] = *filter.Success
	}
	if len(f) > 0 {
		q.Filter = f
	}

	var calls []Call
	if err := s.store.Find(ctx, model.CollectionLLMCall, q, &calls); err != nil {
		return nil, fmt.Errorf("llmcall: list: %w", err)
	}
	return calls, nil
}

// CountByPromptKey returns call counts grouped by prompt key for a book.
// The store has no GROUP BY; this aggregates client-side, acceptable for
// the call volumes one book's processing run produces.
func (s *Store) CountByPromptKey(ctx context.Context, bookID string) (map[string]int, error) {
	calls, err := s.List(ctx, QueryFilter{BookID: bookID})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, c := range calls {
		counts[c.PromptKey]++
	}
	return counts, nil
}
