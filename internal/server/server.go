// Package server is the HTTP/UI surface named as an external collaborator
// by the spec ("the HTTP/UI surface" is out of scope), built here anyway
// as the thin transport §6's endpoint table describes: six routes over
// the orchestrator and the preprocessing Run function. Grounded on the
// teacher's internal/server, specifically its simpler routes.go idiom
// (plain http.ServeMux with Go 1.22+ method+path patterns) rather than
// its internal/api endpoint-registry abstraction, which exists to manage
// dozens of endpoints and is disproportionate to this system's six.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/avantbook/distill/internal/config"
	"github.com/avantbook/distill/internal/ingest"
	"github.com/avantbook/distill/internal/llm"
	"github.com/avantbook/distill/internal/llmcall"
	"github.com/avantbook/distill/internal/orchestrator"
	"github.com/avantbook/distill/internal/store"
	"github.com/avantbook/distill/internal/svcctx"
)

// Config holds server configuration and its collaborators. Unlike the
// teacher's Server, this one does not own the DefraDB container
// lifecycle: cmd/distill's serve command builds the Store (defra.Client
// or memstore) and Orchestrator first and hands them in already running,
// the way routes.go's handlers assume an already-initialized defraClient.
type Config struct {
	Host string
	Port string

	Store        store.Store
	Sink         *store.Sink
	LLM          llm.Client
	Models       config.ModelTiers
	Recorder     *llmcall.Recorder
	LLMCallStore *llmcall.Store
	Orchestrator *orchestrator.Orchestrator
	Parser       ingest.PDFParser

	Logger *slog.Logger
}

// Server is the distillation core's HTTP server.
type Server struct {
	httpServer *http.Server
	cfg        Config
	logger     *slog.Logger
	services   *svcctx.Services

	mu      sync.RWMutex
	running bool
}

// New builds a Server from cfg, applying the teacher's defaults (host
// 127.0.0.1, port 8080) where a field is left zero.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("server: orchestrator is required")
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		services: &svcctx.Services{
			Store:        cfg.Store,
			Sink:         cfg.Sink,
			LLM:          cfg.LLM,
			Logger:       cfg.Logger,
			LLMCallStore: cfg.LLMCallStore,
			Recorder:     cfg.Recorder,
		},
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withLogging(s.withServices(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // upload-stream holds the connection open for SSE
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Start blocks until ctx is cancelled or the HTTP server errors.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already running")
	}
	s.running = true
	s.mu.Unlock()
	defer s.setNotRunning()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("server: http server error: %w", err)
		}
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
	}
	if s.cfg.Sink != nil {
		s.logger.Info("stopping write sink")
		s.cfg.Sink.Stop()
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), s.services)))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code for
// withLogging. The upload-stream handler writes status 200 itself before
// streaming SSE events, so this never sees a second WriteHeader call on
// that path.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
