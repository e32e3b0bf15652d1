// Package orchestrator implements the Job Orchestrator & Status State
// Machine (§4.9): validates triggers, runs a Book's pipeline as a
// detached background task, and drives Book.status/currentStep/progress
// through its pre-assigned bands as each stage completes.
//
// Grounded on the teacher's internal/jobs Manager (job-record
// CRUD keyed by status transitions) and Scheduler (detached execution
// off the HTTP request path), adapted from the teacher's work-unit
// scheduling model to this system's simpler one-stage-at-a-time
// cooperative model (§5: "a mixture of single-threaded cooperative task
// handling at the orchestrator level... and bounded parallel fan-out
// within a stage").
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/llmcall"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/chapters"
	"github.com/avantbook/distill/internal/pipeline/claims"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/store"
)

// Config bundles the collaborators every pipeline run needs, plus the
// optional per-stage concurrency overrides threaded through to the
// claims/chapters Deps (§9: "Implementations on stricter rate limits
// should expose these as configuration").
type Config struct {
	Store    store.Store
	LLM      llm.Client
	Recorder *llmcall.Recorder
	Models   config.ModelTiers
	Logger   *slog.Logger

	ExtractConcurrency  int
	FilterConcurrency   int
	FilterBatchSize     int
	ExpandConcurrency   int
	CompressConcurrency int
}

// Orchestrator triggers and runs Book pipelines.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg}
}

// Trigger validates that bookID is in a triggerable state (uploaded or
// failed), resets its run bookkeeping, and starts the pipeline in a
// detached goroutine. It returns once validation and the initial write
// succeed; the pipeline itself runs after Trigger returns (§4.9: "the
// caller returns immediately").
func (o *Orchestrator) Trigger(ctx context.Context, bookID string) error {
	var b model.Book
	if err := o.cfg.Store.FindOne(ctx, model.CollectionBook, bookID, &b); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return pipelineerr.ErrGone
		}
		return fmt.Errorf("orchestrator: load book: %w", err)
	}
	if b.Status != model.StatusUploaded && b.Status != model.StatusFailed {
		return pipelineerr.NewPrecondition("already being processed")
	}

	now := time.Now()
	if err := o.cfg.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"processing_started_at":   now,
		"processing_completed_at": nil,
		"error":                   "",
		"updated_at":              now,
	}); err != nil {
		return fmt.Errorf("orchestrator: start book: %w", err)
	}

	go o.run(context.Background(), bookID, b.Pipeline)
	return nil
}

// run drives one Book's pipeline to completion or failure. It never
// propagates a panic or error to a caller: on pipelineerr.ErrGone it
// logs and exits silently (§7: "Fatal but silent"); on any other error
// it writes status=failed with the human-readable reason; on success
// the last stage has already advanced status to completed.
func (o *Orchestrator) run(ctx context.Context, bookID string, pipeline model.Pipeline) {
	var err error
	switch pipeline {
	case model.PipelineChapters:
		err = o.runChapters(ctx, bookID)
	default:
		err = o.runClaims(ctx, bookID)
	}
	if err == nil {
		return
	}
	if errors.Is(err, pipelineerr.ErrGone) || errors.Is(err, store.ErrNotFound) {
		o.cfg.Logger.Info("orchestrator: book vanished mid-run, exiting silently", "book_id", bookID)
		return
	}

	now := time.Now()
	if writeErr := o.cfg.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"status":                  string(model.StatusFailed),
		"current_step":            model.HumanStep(model.StatusFailed),
		"error":                   err.Error(),
		"processing_completed_at": now,
		"updated_at":              now,
	}); writeErr != nil {
		if errors.Is(writeErr, store.ErrNotFound) {
			o.cfg.Logger.Info("orchestrator: book vanished while marking failed, exiting silently", "book_id", bookID)
			return
		}
		o.cfg.Logger.Error("orchestrator: failed to record failure", "book_id", bookID, "run_error", err, "write_error", writeErr)
	}
}

// setStage advances Book.status/current_step/progress to the start of
// a stage's band. Per §5, only the orchestrator writes status/progress;
// stages themselves never touch the Book record.
func (o *Orchestrator) setStage(ctx context.Context, bookID string, status model.Status, progress int) error {
	now := time.Now()
	err := o.cfg.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"status":       string(status),
		"current_step": model.HumanStep(status),
		"progress":     progress,
		"updated_at":   now,
	})
	if err != nil && errors.Is(err, store.ErrNotFound) {
		return pipelineerr.ErrGone
	}
	return err
}

// progressReporter returns a concurrency.Options.OnProgress callback
// that maps a stage's completion fraction into b, writing the result to
// Book.Progress as each item finishes (§4.9: "finer-grained progress
// from its onProgress callback mapped into a pre-assigned band").
// Store write failures are logged, not returned - a progress update is
// advisory, never worth failing the run over.
func (o *Orchestrator) progressReporter(ctx context.Context, bookID string, b band) func(completed, total int) {
	return func(completed, total int) {
		if total <= 0 {
			return
		}
		progress := b.scale(float64(completed) / float64(total))
		err := o.cfg.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
			"progress":   progress,
			"updated_at": time.Now(),
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			o.cfg.Logger.Warn("orchestrator: progress update failed", "book_id", bookID, "error", err)
		}
	}
}

// finish marks bookID completed at progress 100.
func (o *Orchestrator) finish(ctx context.Context, bookID string) error {
	now := time.Now()
	err := o.cfg.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"status":                  string(model.StatusCompleted),
		"current_step":            model.HumanStep(model.StatusCompleted),
		"progress":                100,
		"processing_completed_at": now,
		"updated_at":              now,
	})
	if err != nil && errors.Is(err, store.ErrNotFound) {
		return pipelineerr.ErrGone
	}
	return err
}

func (o *Orchestrator) claimsDeps() claims.Deps {
	return claims.Deps{
		Store:              o.cfg.Store,
		LLM:                o.cfg.LLM,
		Recorder:           o.cfg.Recorder,
		Models:             o.cfg.Models,
		Logger:             o.cfg.Logger,
		ExtractConcurrency: o.cfg.ExtractConcurrency,
		FilterConcurrency:  o.cfg.FilterConcurrency,
		FilterBatchSize:    o.cfg.FilterBatchSize,
		ExpandConcurrency:  o.cfg.ExpandConcurrency,
	}
}

func (o *Orchestrator) chaptersDeps() chapters.Deps {
	return chapters.Deps{
		Store:               o.cfg.Store,
		LLM:                 o.cfg.LLM,
		Recorder:            o.cfg.Recorder,
		Models:              o.cfg.Models,
		Logger:              o.cfg.Logger,
		CompressConcurrency: o.cfg.CompressConcurrency,
	}
}
