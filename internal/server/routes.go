package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avantbook/distill/internal/model"
	"github.com/avantbook/distill/internal/pipeline/pipelineerr"
	"github.com/avantbook/distill/internal/store"
)

// registerRoutes wires up §6's six endpoints plus a health check.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /swagger.json", s.handleSwagger)
	mux.HandleFunc("GET /swagger", s.handleSwaggerUI)

	mux.HandleFunc("POST /book/upload-stream", s.handleUploadStream)
	mux.HandleFunc("POST /book/{id}/process", s.handleProcess)
	mux.HandleFunc("GET /book/{id}", s.handleGetBook)
	mux.HandleFunc("GET /book/{id}/output", s.handleGetOutput)
	mux.HandleFunc("DELETE /book/{id}", s.handleDeleteBook)
	mux.HandleFunc("GET /books", s.handleListBooks)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleProcess implements `POST /book/{id}/process` (§6): trigger the
// pipeline, returning as soon as the orchestrator accepts the run.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	if err := s.cfg.Orchestrator.Trigger(r.Context(), id); err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// handleGetBook implements `GET /book/{id}` (§6), used for status polling.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	var book model.Book
	if err := s.cfg.Store.FindOne(r.Context(), model.CollectionBook, id, &book); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// handleGetOutput implements `GET /book/{id}/output` (§6): 404 until the
// book has reached status=completed, per the FinalOutput lifecycle note.
func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	var book model.Book
	if err := s.cfg.Store.FindOne(r.Context(), model.CollectionBook, id, &book); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if book.Status != model.StatusCompleted {
		writeError(w, http.StatusNotFound, "final output not available yet")
		return
	}

	var outputs []model.FinalOutput
	q := store.Query{Filter: store.Filter{"book_id": id}, Limit: 1}
	if err := s.cfg.Store.Find(r.Context(), model.CollectionFinalOutput, q, &outputs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(outputs) == 0 {
		writeError(w, http.StatusNotFound, "final output not available yet")
		return
	}
	writeJSON(w, http.StatusOK, outputs[0])
}

// bookChildCollections lists every collection a Book owns, used by the
// cascade delete (§3 invariant: deleting a Book removes its children).
var bookChildCollections = []string{
	model.CollectionChunk,
	model.CollectionChapter,
	model.CollectionClaim,
	model.CollectionIdea,
	model.CollectionFinalOutput,
}

// handleDeleteBook implements `DELETE /book/{id}` (§6): cascade delete
// across every child collection, then the Book record itself. Also
// serves as the cancellation mechanism §9 describes ("cancellation by
// delete"): a running orchestrator goroutine finds its Book gone on its
// next write and exits silently via pipelineerr.ErrGone.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	for _, collection := range bookChildCollections {
		if _, err := s.cfg.Store.DeleteMany(r.Context(), collection, store.Filter{"book_id": id}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if _, err := s.cfg.Store.DeleteMany(r.Context(), model.CollectionBook, store.Filter{"id": id}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListBooks implements `GET /books` (§6): every Book, newest
// first. An optional ?user_id= query param narrows to one caller's
// books; user identity itself is an external collaborator the core
// does not validate.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filter["user_id"] = userID
	}

	var books []model.Book
	q := store.Query{Filter: filter, Sort: &store.Sort{Field: "created_at", Descending: true}}
	if err := s.cfg.Store.Find(r.Context(), model.CollectionBook, q, &books); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

// writeOrchestratorError maps the pipelineerr kinds Trigger can return
// (§7) onto HTTP status codes.
func writeOrchestratorError(w http.ResponseWriter, err error) {
	var precondition *pipelineerr.Precondition
	switch {
	case errors.As(err, &precondition):
		writeError(w, http.StatusBadRequest, precondition.Error())
	case errors.Is(err, pipelineerr.ErrGone), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
