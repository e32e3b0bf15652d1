package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/avantbook/distill/internal/ingest"
	"github.com/avantbook/distill/internal/model"
)

// maxUploadMemory bounds the in-memory portion of a parsed multipart
// form; the teacher's upload endpoint uses the same 500MB ceiling for
// book-length PDFs.
const maxUploadMemory = 500 << 20

// handleUploadStream implements `POST /book/upload-stream` (§6): accept
// a multipart PDF upload, run the preprocessing Run function, and stream
// its progress back as SSE events ending in exactly one result or error
// event. Grounded on the teacher's multipart-save-to-tempdir idiom
// (internal/server/endpoints/books_upload.go) for the request side and
// the kadirpekel-hector example's sendSSEEvent for the response side
// (internal/ingest.Emitter wraps that framing).
func (s *Server) handleUploadStream(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	fh := fhs[0]
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", fh.Filename))
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
	}
	author := r.FormValue("author")
	userID := r.FormValue("user_id")
	pipeline := model.Pipeline(r.FormValue("pipeline"))

	tempDir, err := os.MkdirTemp("", "distill-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create temp dir: %v", err))
		return
	}
	defer os.RemoveAll(tempDir)

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open uploaded file: %v", err))
		return
	}
	destPath := filepath.Join(tempDir, fh.Filename)
	dst, err := os.Create(destPath)
	if err != nil {
		src.Close()
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save uploaded file: %v", err))
		return
	}
	_, copyErr := dst.ReadFrom(src)
	src.Close()
	dst.Close()
	if copyErr != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save uploaded file: %v", copyErr))
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	emitter := ingest.NewEmitter(w, flusher)
	deps := ingest.Deps{
		Store:  s.cfg.Store,
		LLM:    s.cfg.LLM,
		Models: s.cfg.Models,
		Parser: s.cfg.Parser,
		Logger: s.logger,
	}

	book, runErr := ingest.Run(r.Context(), deps, ingest.Request{
		UserID:   userID,
		Title:    title,
		Author:   author,
		Filename: fh.Filename,
		PDFPath:  destPath,
		Pipeline: pipeline,
		OnProgress: func(step string, progress int, message string) {
			emitter.Progress(step, progress, message)
		},
	})
	if runErr != nil {
		emitter.Error(runErr)
		return
	}
	emitter.Result(book)
}
