package defra

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// collectionSchema names one embedded SDL file and its load order. Order
// matters for DefraDB the same way it does in the teacher's registry:
// referenced collections must exist before the collection that points at
// them — User before Book, Book before Chunk/Chapter/Claim/Idea/FinalOutput.
type collectionSchema struct {
	Name  string
	Order int
}

var registry = []collectionSchema{
	{Name: "User", Order: 0},
	{Name: "Book", Order: 1},
	{Name: "Chunk", Order: 2},
	{Name: "Chapter", Order: 3},
	{Name: "Claim", Order: 4},
	{Name: "Idea", Order: 5},
	{Name: "FinalOutput", Order: 6},
	{Name: "LLMCall", Order: 7},
}

func loadSDL(name string) (string, error) {
	raw, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.graphql", strings.ToLower(name)))
	if err != nil {
		return "", fmt.Errorf("defra: read schema %s: %w", name, err)
	}
	return string(raw), nil
}

// InitializeSchema applies every collection's SDL to DefraDB in dependency
// order. Schemas are combined into one AddSchema call, as the teacher's
// schema.Initialize does, so collections that reference each other
// resolve regardless of declaration order within the combined document.
// Safe to call repeatedly: an already-exists response is not an error.
func InitializeSchema(ctx context.Context, client *Client, logger *slog.Logger) error {
	ordered := make([]collectionSchema, len(registry))
	copy(ordered, registry)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var sdlParts []string
	var names []string
	for _, s := range ordered {
		sdl, err := loadSDL(s.Name)
		if err != nil {
			return err
		}
		sdlParts = append(sdlParts, sdl)
		names = append(names, s.Name)
	}

	if err := client.AddSchema(ctx, strings.Join(sdlParts, "\n\n")); err != nil {
		if isAlreadyExistsError(err) {
			logger.Info("collections already exist", "names", names)
			return nil
		}
		return fmt.Errorf("defra: add schema: %w", err)
	}

	logger.Info("collections created", "names", names)
	return nil
}

// isAlreadyExistsError matches DefraDB's "already exists" error text.
// DefraDB is reached over HTTP, not a typed SDK, so its error kinds only
// surface as response body strings - matching that text is unavoidable.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "collection already exists") || strings.Contains(msg, "already exists")
}
