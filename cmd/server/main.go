// Command server runs the course materials assistant behind an HTTP API:
// query answering, course analytics, and session management, with course
// documents ingested at startup and re-ingested on change.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rag "github.com/Protocol-Lattice/course-agent"
)

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Answer    string       `json:"answer"`
	Sources   []rag.Source `json:"sources"`
	SessionID string       `json:"session_id"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type server struct {
	system *rag.RAGSystem
	logger *slog.Logger
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := rag.LoadConfig()
	if cfg.AnthropicAPIKey == "" {
		logger.Error("ANTHROPIC_API_KEY is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	system, err := rag.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	courses, chunks, err := system.AddCourseFolder(ctx, cfg.DocsPath, false)
	if err != nil {
		logger.Error("course ingestion failed", "error", err)
		os.Exit(1)
	}
	logger.Info("course ingestion complete", "courses", courses, "chunks", chunks)

	if err := system.WatchCourseFolder(ctx); err != nil {
		logger.Warn("document watcher unavailable", "error", err)
	}

	s := &server{system: system, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/courses", s.handleCourses)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}/clear", s.handleClearSession)
	mux.Handle("/", http.FileServer(http.Dir("frontend")))

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		id, err := s.system.Sessions().Create(r.Context())
		if err != nil {
			s.logger.Error("session create failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		sessionID = id
	}

	answer, sources, err := s.system.Query(r.Context(), req.Query, sessionID)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sources == nil {
		sources = []rag.Source{}
	}
	writeJSON(w, http.StatusOK, queryResponse{Answer: answer, Sources: sources, SessionID: sessionID})
}

func (s *server) handleCourses(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.system.Analytics(r.Context())
	if err != nil {
		s.logger.Error("analytics failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if analytics.CourseTitles == nil {
		analytics.CourseTitles = []string{}
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.system.Sessions().Create(r.Context())
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.system.Sessions().Clear(r.Context(), id); err != nil {
		s.logger.Error("session clear failed", "session_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Session " + id + " cleared successfully"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
