package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/detect"
	"github.com/avantbook/distill/internal/segment"
	"github.com/avantbook/distill/internal/store"
)

// Deps bundles the collaborators preprocessing needs.
type Deps struct {
	Store  store.Store
	LLM    llm.Client
	Models config.ModelTiers
	Parser PDFParser
	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) parser() PDFParser {
	if d.Parser != nil {
		return d.Parser
	}
	return PDFCPUParser{}
}

// Request describes one upload to preprocess.
type Request struct {
	UserID   string
	Title    string
	Author   string
	Filename string
	PDFPath  string
	Pipeline model.Pipeline

	// OnProgress is called as preprocessing advances; nil is a valid no-op.
	OnProgress func(step string, progress int, message string)
}

func (r Request) progress(step string, pct int, msg string) {
	if r.OnProgress != nil {
		r.OnProgress(step, pct, msg)
	}
}

// Run parses req.PDFPath, segments its text per the chosen pipeline,
// runs the Density Analyzer for the chapters variant, and leaves a
// Book in status `uploaded` with its children already populated
// (§3's lifecycle note, §6's upload-stream contract). The Book record
// exists (in an earlier, non-terminal status) for the duration of
// preprocessing so children can carry its id from the start.
func Run(ctx context.Context, d Deps, req Request) (*model.Book, error) {
	pipeline := req.Pipeline
	if pipeline == "" {
		pipeline = model.PipelineClaims
	}

	now := time.Now()
	bookIDs, err := d.Store.InsertMany(ctx, model.CollectionBook, []map[string]any{{
		"user_id":    req.UserID,
		"title":      req.Title,
		"author":     req.Author,
		"filename":   req.Filename,
		"pipeline":   string(pipeline),
		"status":     string(model.StatusExtracting),
		"current_step": model.HumanStep(model.StatusExtracting),
		"progress":   0,
		"created_at": now,
		"updated_at": now,
	}})
	if err != nil {
		return nil, fmt.Errorf("ingest: create book: %w", err)
	}
	bookID := bookIDs[0]

	req.progress(string(model.StatusExtracting), 5, "reading PDF")
	pages, err := d.parser().ParsePages(req.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse pdf: %w", err)
	}
	fullText := strings.Join(pages, "\n\n")
	wordCount := segment.WordCount(fullText)

	req.progress(string(model.StatusExtracting), 15, "preprocessing complete")

	var runErr error
	switch pipeline {
	case model.PipelineChapters:
		runErr = d.ingestChapters(ctx, req, bookID, pages, fullText)
	default:
		runErr = d.ingestClaims(ctx, req, bookID, fullText)
	}
	if runErr != nil {
		return nil, runErr
	}

	finish := time.Now()
	if err := d.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"status":               string(model.StatusUploaded),
		"current_step":         model.HumanStep(model.StatusUploaded),
		"progress":             100,
		"original_word_count":  wordCount,
		"updated_at":           finish,
	}); err != nil {
		return nil, fmt.Errorf("ingest: finalize book: %w", err)
	}
	req.progress(string(model.StatusUploaded), 100, "ready to process")

	var book model.Book
	if err := d.Store.FindOne(ctx, model.CollectionBook, bookID, &book); err != nil {
		return nil, fmt.Errorf("ingest: reload book: %w", err)
	}
	return &book, nil
}

func (d Deps) ingestClaims(ctx context.Context, req Request, bookID, fullText string) error {
	chunks := segment.Chunk(fullText, segment.DefaultChunkOptions())
	if len(chunks) == 0 {
		return fmt.Errorf("ingest: no chunks produced from pdf")
	}

	docs := make([]map[string]any, len(chunks))
	now := time.Now()
	for i, c := range chunks {
		docs[i] = map[string]any{
			"book_id":    bookID,
			"order":      i,
			"text":       c.Text,
			"token_count": c.TokenCount,
			"created_at": now,
			"updated_at": now,
		}
	}
	if _, err := d.Store.InsertMany(ctx, model.CollectionChunk, docs); err != nil {
		return fmt.Errorf("ingest: insert chunks: %w", err)
	}

	return d.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"total_chunks": len(chunks),
		"updated_at":   now,
	})
}

func (d Deps) ingestChapters(ctx context.Context, req Request, bookID string, pages []string, fullText string) error {
	req.progress(string(model.StatusDetectingChapters), 20, "detecting table of contents")

	tocResult, err := detect.DetectTOC(ctx, d.LLM, d.Models.Extraction, pages)
	if err != nil {
		d.logger().Warn("ingest: toc detection failed, continuing without it", "book_id", bookID, "error", err)
		tocResult = detect.TOCResult{Confidence: detect.ConfidenceLow}
	}

	var entries []segment.TOCEntry
	if tocResult.Reliable() {
		entries = tocResult.ToSegmentEntries()
	}

	extraction := segment.ExtractChapters(fullText, entries)
	if len(extraction.Chapters) == 0 {
		return fmt.Errorf("ingest: no chapters produced from pdf")
	}

	req.progress(string(model.StatusDetectingChapters), 40, "analyzing content density")

	contents := make([]string, len(extraction.Chapters))
	for i, c := range extraction.Chapters {
		contents[i] = c.Content
	}
	sample := detect.BuildRepresentativeSample(contents)

	density, err := detect.AnalyzeDensity(ctx, d.LLM, d.Models.Extraction, sample)
	if err != nil {
		d.logger().Warn("ingest: density analysis failed, using defaults", "book_id", bookID, "error", err)
	}

	docs := make([]map[string]any, len(extraction.Chapters))
	now := time.Now()
	for i, c := range extraction.Chapters {
		docs[i] = map[string]any{
			"book_id":               bookID,
			"order":                 i,
			"title":                 c.Title,
			"level":                 c.Level,
			"original_content":      c.Content,
			"original_token_count":  segment.EstimateTokens(c.Content),
			"created_at":            now,
			"updated_at":            now,
		}
	}
	if _, err := d.Store.InsertMany(ctx, model.CollectionChapter, docs); err != nil {
		return fmt.Errorf("ingest: insert chapters: %w", err)
	}

	return d.Store.UpdateOne(ctx, model.CollectionBook, bookID, map[string]any{
		"total_chapters":          len(extraction.Chapters),
		"density_score":           density.DensityScore,
		"recommended_compression": density.RecommendedCompression,
		"extraction_method":       string(extraction.ExtractionMethod),
		"updated_at":              now,
	})
}
