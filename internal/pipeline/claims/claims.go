// Package claims implements the five-stage Claims Pipeline (§4.7):
// Extract, Filter, Cluster, Expand, Reconstruct. Each stage persists its
// results before the next begins, and each is written to tolerate being
// re-entered after a prior failed run (§9's idempotency discipline).
//
// Grounded on the teacher's internal/jobs stage-function shape (a plain
// function taking a store handle and a job's id, fanning out through a
// worker pool, persisting, and returning a summary) and on
// internal/prompts's system-prompt-constant + schema-var + typed-result
// idiom, adapted from page-level OCR extraction to claim-level text
// extraction.
package claims

import (
	"log/slog"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/llmcall"
	"github.com/avantbook/distill/internal/store"
)

// Deps bundles the collaborators every stage needs. Concurrency fields
// default to the source's values (§9: chunks 5, filter-batch 5) when
// zero.
type Deps struct {
	Store    store.Store
	LLM      llm.Client
	Recorder *llmcall.Recorder
	Models   config.ModelTiers
	Logger   *slog.Logger

	ExtractConcurrency int // default 5
	FilterConcurrency  int // default 5
	FilterBatchSize    int // default 20
	ExpandConcurrency  int // default 5

	// OnProgress, if set, is passed straight through to the active
	// stage's concurrency.ParallelMap call so the orchestrator can map
	// intra-stage completion fraction into the stage's progress band
	// (§4.9). The orchestrator rebinds this per stage before calling in.
	OnProgress func(completed, total int)
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) extractConcurrency() int {
	if d.ExtractConcurrency > 0 {
		return d.ExtractConcurrency
	}
	return 5
}

func (d Deps) filterConcurrency() int {
	if d.FilterConcurrency > 0 {
		return d.FilterConcurrency
	}
	return 5
}

func (d Deps) filterBatchSize() int {
	if d.FilterBatchSize > 0 {
		return d.FilterBatchSize
	}
	return 20
}

func (d Deps) expandConcurrency() int {
	if d.ExpandConcurrency > 0 {
		return d.ExpandConcurrency
	}
	return 5
}

// record is a small helper shared by every stage: it records the raw
// ChatResult through the Recorder (if configured) before the stage
// interprets its ParsedJSON.
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
