// Package shared holds store-query and FinalOutput-upsert helpers used
// by both the claims pipeline (internal/pipeline/claims) and the
// chapters pipeline (internal/pipeline/chapters), so the two sibling
// pipelines (§9: "two end-to-end pipelines... exposed as siblings
// behind the Orchestrator") don't duplicate their shared persistence
// idioms.
package shared

import (
	"context"
	"fmt"

	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/store"
)

// QueryByBook matches every document with the given book_id, up to
// limit (0 = unlimited).
func QueryByBook(bookID string, limit int) store.Query {
	return store.Query{Filter: store.Filter{"book_id": bookID}, Limit: limit}
}

// QueryByBookOrdered matches every document with the given book_id,
// sorted ascending by order.
func QueryByBookOrdered(bookID string) store.Query {
	return store.Query{
		Filter: store.Filter{"book_id": bookID},
		Sort:   &store.Sort{Field: "order"},
	}
}

// FilterByBook is the equality filter matching every document
// belonging to bookID, for DeleteMany calls.
func FilterByBook(bookID string) store.Filter {
	return store.Filter{"book_id": bookID}
}

// UpsertFinalOutput updates the existing FinalOutput for output.BookID
// if one exists, otherwise inserts a new one (§9: reconstruct/assemble
// both upsert on replay, tolerating a retry after a prior stage's
// failure).
func UpsertFinalOutput(ctx context.Context, s store.Store, output *model.FinalOutput) error {
	var existing []model.FinalOutput
	if err := s.Find(ctx, model.CollectionFinalOutput, QueryByBook(output.BookID, 1), &existing); err != nil {
		return fmt.Errorf("shared: check existing final output: %w", err)
	}

	if len(existing) > 0 {
		patch := map[string]any{
			"markdown":          output.Markdown,
			"word_count":        output.WordCount,
			"idea_count":        output.IdeaCount,
			"chapter_count":     output.ChapterCount,
			"compression_ratio": output.CompressionRatio,
			"updated_at":        output.UpdatedAt,
		}
		if err := s.UpdateOne(ctx, model.CollectionFinalOutput, existing[0].ID, patch); err != nil {
			return fmt.Errorf("shared: update final output: %w", err)
		}
		output.ID = existing[0].ID
		return nil
	}

	ids, err := s.InsertMany(ctx, model.CollectionFinalOutput, []map[string]any{{
		"book_id":           output.BookID,
		"markdown":          output.Markdown,
		"word_count":        output.WordCount,
		"idea_count":        output.IdeaCount,
		"chapter_count":     output.ChapterCount,
		"compression_ratio": output.CompressionRatio,
		"created_at":        output.CreatedAt,
		"updated_at":        output.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("shared: insert final output: %w", err)
	}
	if len(ids) > 0 {
		output.ID = ids[0]
	}
	return nil
}
