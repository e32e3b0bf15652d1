// Package chapters implements the two-stage Chapters Pipeline (§4.8):
// Compress Chapters, Assemble Book. Chosen over the Claims Pipeline
// when a Book's structure is strong enough that chapter boundaries
// alone carry the book's shape (see model.PipelineChapters).
//
// Grounded on the same internal/jobs stage-function shape as
// internal/pipeline/claims, reusing internal/pipeline/shared for
// book-scoped persistence and internal/pipeline/pipelineerr for the
// fatal-precondition error kind.
package chapters

import (
	"log/slog"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/llmcall"
	"github.com/avantbook/distill/internal/store"
)

// Deps bundles the collaborators both stages need. CompressConcurrency
// defaults to the source's value (§9: chapters 3) when zero.
type Deps struct {
	Store    store.Store
	LLM      llm.Client
	Recorder *llmcall.Recorder
	Models   config.ModelTiers
	Logger   *slog.Logger

	CompressConcurrency int // default 3

	// OnProgress, if set, is passed straight through to Compress's
	// concurrency.ParallelMap call so the orchestrator can map
	// intra-stage completion fraction into the stage's progress band
	// (§4.9).
	OnProgress func(completed, total int)
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) compressConcurrency() int {
	if d.CompressConcurrency > 0 {
		return d.CompressConcurrency
	}
	return 3
}

func (d Deps) record(result *llm.ChatResult, bookID, stage, promptKey string) {
	if d.Recorder == nil || result == nil {
		return
	}
	d.Recorder.Record(result, llmcall.RecordOptions{
		BookID:    bookID,
		Stage:     stage,
		PromptKey: promptKey,
	})
}
