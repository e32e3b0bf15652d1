// Package store defines the document-store contract the distillation
// core consumes. The store itself — a generic mapping from entity id to
// typed record — is an external collaborator (see SPEC_FULL.md); this
// package only names the narrow surface the core needs: find,
// insert-many, update-one, delete-many, mirroring internal/defra's
// GraphQL-over-HTTP client in the teacher repo but collection-agnostic.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindOne when no document matches the id.
var ErrNotFound = errors.New("store: document not found")

// Filter is an equality filter over a collection's fields. A nil or
// empty Filter matches every document in the collection.
type Filter map[string]any

// Sort describes an ORDER BY clause: field name plus direction.
type Sort struct {
	Field      string
	Descending bool
}

// Query bundles the optional shaping parameters of a Find call.
type Query struct {
	Filter Filter
	Sort   *Sort
	Limit  int
}

// Store is the narrow persistence contract the core depends on.
// Implementations: store/defra (DefraDB over GraphQL/HTTP) and
// store/memstore (in-process, for tests and restart-semantics checks).
type Store interface {
	// Find decodes every document in collection matching q into out,
	// which must be a pointer to a slice of the destination type.
	Find(ctx context.Context, collection string, q Query, out any) error

	// FindOne decodes the document with the given id into out, a
	// pointer to the destination type. Returns ErrNotFound if absent.
	FindOne(ctx context.Context, collection, id string, out any) error

	// InsertMany creates one document per entry in docs and returns
	// their assigned ids in the same order.
	InsertMany(ctx context.Context, collection string, docs []map[string]any) ([]string, error)

	// UpdateOne merges patch into the existing document with the given id.
	UpdateOne(ctx context.Context, collection, id string, patch map[string]any) error

	// DeleteMany removes every document in collection matching filter
	// and returns the number deleted.
	DeleteMany(ctx context.Context, collection string, filter Filter) (int, error)
}
