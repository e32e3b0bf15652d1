package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/chapters"
	"github.com/avantbook/distill/internal/pipeline/claims"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/store"
)

// runClaims drives the five-stage Claims Pipeline (§4.7) through its
// status/progress bands, stopping at the first stage that returns an
// error.
func (o *Orchestrator) runClaims(ctx context.Context, bookID string) error {
	var b model.Book
	if err := o.cfg.Store.FindOne(ctx, model.CollectionBook, bookID, &b); err != nil {
		return bookGoneOr(err, "load book")
	}

	deps := o.claimsDeps()

	if err := o.setStage(ctx, bookID, model.StatusExtractingClaims, claimsBands[model.StatusExtractingClaims].Low); err != nil {
		return err
	}
	extractDeps := deps
	extractDeps.OnProgress = o.progressReporter(ctx, bookID, claimsBands[model.StatusExtractingClaims])
	if _, err := claims.Extract(ctx, extractDeps, bookID); err != nil {
		return err
	}

	if err := o.setStage(ctx, bookID, model.StatusFilteringClaims, claimsBands[model.StatusFilteringClaims].Low); err != nil {
		return err
	}
	filterDeps := deps
	filterDeps.OnProgress = o.progressReporter(ctx, bookID, claimsBands[model.StatusFilteringClaims])
	if _, err := claims.Filter(ctx, filterDeps, bookID); err != nil {
		return err
	}

	if err := o.setStage(ctx, bookID, model.StatusClusteringIdeas, claimsBands[model.StatusClusteringIdeas].Low); err != nil {
		return err
	}
	clusters, err := claims.Cluster(ctx, deps, bookID)
	if err != nil {
		return err
	}
	expandDeps := deps
	expandDeps.OnProgress = o.progressReporter(ctx, bookID, claimsBands[model.StatusClusteringIdeas])
	if _, err := claims.Expand(ctx, expandDeps, bookID, clusters); err != nil {
		return err
	}

	if err := o.setStage(ctx, bookID, model.StatusReconstructing, claimsBands[model.StatusReconstructing].Low); err != nil {
		return err
	}
	if _, err := claims.Reconstruct(ctx, deps, bookID, b.OriginalWordCount); err != nil {
		return err
	}

	return o.finish(ctx, bookID)
}

// runChapters drives the two-stage Chapters Pipeline (§4.8).
func (o *Orchestrator) runChapters(ctx context.Context, bookID string) error {
	deps := o.chaptersDeps()

	if err := o.setStage(ctx, bookID, model.StatusCompressingChapters, chaptersBands[model.StatusCompressingChapters].Low); err != nil {
		return err
	}
	compressDeps := deps
	compressDeps.OnProgress = o.progressReporter(ctx, bookID, chaptersBands[model.StatusCompressingChapters])
	if _, err := chapters.Compress(ctx, compressDeps, bookID); err != nil {
		return err
	}

	if err := o.setStage(ctx, bookID, model.StatusAssembling, chaptersBands[model.StatusAssembling].Low); err != nil {
		return err
	}
	if _, err := chapters.Assemble(ctx, deps, bookID); err != nil {
		return err
	}

	return o.finish(ctx, bookID)
}

func bookGoneOr(err error, action string) error {
	if errors.Is(err, store.ErrNotFound) {
		return pipelineerr.ErrGone
	}
	return fmt.Errorf("orchestrator: %s: %w", action, err)
}
