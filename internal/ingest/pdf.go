// Package ingest drives the upload-side preprocessing the orchestrator
// assumes has already happened by the time a Book reaches status
// `uploaded` (§3's lifecycle note, §6's `POST /book/upload-stream`):
// parse the PDF into per-page text, pick a pipeline variant, segment
// that text into Chunks or Chapters, run the Density Analyzer, and
// create the Book record followed by its children.
//
// The byte-level PDF parser itself is named a Non-goal / external
// collaborator by the spec ("assumed to yield cleaned text and
// per-page text"); PDFParser below is the adapter boundary that
// assumption describes, grounded on the teacher's internal/ingest
// (which shells out to pdftoppm for page images) but retargeted at
// text: pdfcpu supplies the page count and per-page content streams
// the teacher never needed, and a minimal content-stream scanner pulls
// the show-text operators out of each page.
package ingest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFParser turns a PDF file on disk into cleaned per-page text. The
// default implementation is PDFCPUParser; tests substitute a stub that
// returns fixed pages without touching the filesystem.
type PDFParser interface {
	ParsePages(path string) ([]string, error)
}

// PDFCPUParser implements PDFParser over pdfcpu's content-stream
// extraction. It is a best-effort text recovery, not a layout-aware
// extractor: show-text operators are pulled out of each page's content
// stream in document order and joined with single spaces, which is
// adequate for the chunker and chapter extractor downstream (both
// tolerate imperfect paragraph boundaries, per §4.4/§9's note that a
// sentence-boundary regex alone "does not break correctness").
type PDFCPUParser struct{}

func (PDFCPUParser) ParsePages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open pdf: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: read page count: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("ingest: pdf has no pages")
	}

	tmpDir, err := os.MkdirTemp("", "distill-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("ingest: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractContentFile(path, tmpDir, nil, nil); err != nil {
		return nil, fmt.Errorf("ingest: extract content streams: %w", err)
	}

	pages := make([]string, count)
	for i := 1; i <= count; i++ {
		raw, err := os.ReadFile(fmt.Sprintf("%s/%s_Content_page_%d.txt", tmpDir, base(path), i))
		if err != nil {
			// A page with no extractable content stream (e.g. a pure
			// image scan) just contributes an empty page.
			continue
		}
		pages[i-1] = showTextOperands(string(raw))
	}
	return pages, nil
}

func base(path string) string {
	name := path
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, ".pdf")
}

// showTextLiteral matches the parenthesized-string operand of a Tj/TJ
// text-showing operator: "(Some text) Tj" or pieces inside a "[...] TJ"
// array. Escaped parentheses and backslashes are unescaped afterward.
var showTextLiteral = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

func showTextOperands(content string) string {
	matches := showTextLiteral.FindAllStringSubmatch(content, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, unescapePDFString(m[1]))
	}
	return strings.Join(parts, " ")
}

var pdfEscapes = strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, "\n")

func unescapePDFString(s string) string {
	return pdfEscapes.Replace(s)
}
