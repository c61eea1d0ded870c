// Package rag assembles the course materials assistant: a semantic store
// over two vector collections, the search tools exposed to the model, and
// the bounded tool-calling generator that answers queries.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Protocol-Lattice/course-agent/src/docproc"
	"github.com/Protocol-Lattice/course-agent/src/embed"
	"github.com/Protocol-Lattice/course-agent/src/models"
	"github.com/Protocol-Lattice/course-agent/src/session"
	"github.com/Protocol-Lattice/course-agent/src/store"
)

// CourseAnalytics summarizes the indexed catalog for the UI.
type CourseAnalytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// RAGSystem wires the store, tools, generator and session history behind a
// single query entry point.
type RAGSystem struct {
	cfg       Config
	store     *store.SemanticStore
	generator *Generator
	manager   *ToolManager
	sessions  session.Manager
	processor *docproc.Processor
	logger    *slog.Logger

	// tools hand their sources to the next harvest through shared state, so
	// the generate-harvest-reset span of one query must not interleave with
	// another's
	queryMu sync.Mutex
}

// New builds the full system from configuration: embedder, the two Qdrant
// collections, tools, the Anthropic-backed generator, and session storage
// (Postgres when configured, in-memory otherwise).
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*RAGSystem, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedder := embed.ForProvider(cfg.EmbedProvider, cfg.EmbedModel)

	catalog, err := store.NewQdrantIndex(ctx, cfg.QdrantURL, cfg.QdrantAPIKey, cfg.CatalogCollection, embedder, cfg.VectorSize)
	if err != nil {
		return nil, fmt.Errorf("open catalog collection: %w", err)
	}
	content, err := store.NewQdrantIndex(ctx, cfg.QdrantURL, cfg.QdrantAPIKey, cfg.ContentCollection, embedder, cfg.VectorSize)
	if err != nil {
		return nil, fmt.Errorf("open content collection: %w", err)
	}
	semantic := store.New(catalog, content, cfg.MaxResults)

	manager := NewToolManager()
	if err := manager.Register(NewContentSearchTool(semantic)); err != nil {
		return nil, err
	}
	if err := manager.Register(NewOutlineTool(semantic)); err != nil {
		return nil, err
	}

	llm := models.NewAnthropicLLM(cfg.AnthropicAPIKey, cfg.AnthropicModel)

	var sessions session.Manager
	if cfg.PostgresURL != "" {
		pg, err := session.NewPostgresManager(ctx, cfg.PostgresURL, cfg.MaxHistory)
		if err != nil {
			return nil, fmt.Errorf("postgres sessions: %w", err)
		}
		sessions = pg
	} else {
		sessions = session.NewMemoryManager(cfg.MaxHistory)
	}

	return &RAGSystem{
		cfg:       cfg,
		store:     semantic,
		generator: NewGenerator(llm, logger),
		manager:   manager,
		sessions:  sessions,
		processor: docproc.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap),
		logger:    logger,
	}, nil
}

// Store exposes the semantic store for ingestion and analytics callers.
func (r *RAGSystem) Store() *store.SemanticStore { return r.store }

// Sessions exposes session management to the HTTP layer.
func (r *RAGSystem) Sessions() session.Manager { return r.sessions }

// Query answers one user question, returning the answer text and the
// provenance of any retrieved content. Conversation history for sessionID is
// folded into the prompt and the exchange is recorded afterwards. Queries
// against one system are serialized; Query is safe for concurrent use.
func (r *RAGSystem) Query(ctx context.Context, query, sessionID string) (string, []Source, error) {
	prompt := fmt.Sprintf("Answer this question about course materials: %s", query)

	var history string
	if sessionID != "" {
		h, err := r.sessions.History(ctx, sessionID)
		if err != nil {
			r.logger.Warn("session history unavailable", "session_id", sessionID, "error", err)
		} else {
			history = h
		}
	}

	r.queryMu.Lock()
	answer := r.generator.GenerateResponse(ctx, prompt, history, r.manager.Definitions(), r.manager)
	sources := r.manager.LastSources()
	r.manager.ResetSources()
	r.queryMu.Unlock()

	if sessionID != "" {
		if err := r.sessions.AddExchange(ctx, sessionID, query, answer); err != nil {
			r.logger.Warn("failed to record exchange", "session_id", sessionID, "error", err)
		}
	}
	return answer, sources, nil
}

// Analytics reports how many courses are indexed and their titles.
func (r *RAGSystem) Analytics(ctx context.Context) (CourseAnalytics, error) {
	count, err := r.store.CourseCount(ctx)
	if err != nil {
		return CourseAnalytics{}, err
	}
	titles, err := r.store.ExistingCourseTitles(ctx)
	if err != nil {
		return CourseAnalytics{}, err
	}
	return CourseAnalytics{TotalCourses: count, CourseTitles: titles}, nil
}

// AddCourseDocument ingests a single course document into both collections.
func (r *RAGSystem) AddCourseDocument(ctx context.Context, path string) (*store.Course, int, error) {
	course, chunks, err := r.processor.ProcessFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("process %s: %w", path, err)
	}
	if err := r.store.AddCourseMetadata(ctx, *course); err != nil {
		return nil, 0, err
	}
	if err := r.store.AddCourseContent(ctx, chunks); err != nil {
		return nil, 0, err
	}
	return course, len(chunks), nil
}

// AddCourseFolder ingests every supported document in a folder. Courses
// whose titles are already indexed are skipped unless clearExisting rebuilds
// both collections first.
func (r *RAGSystem) AddCourseFolder(ctx context.Context, dir string, clearExisting bool) (int, int, error) {
	if _, err := os.Stat(dir); err != nil {
		r.logger.Warn("course folder missing", "path", dir)
		return 0, 0, nil
	}

	if clearExisting {
		r.logger.Info("clearing existing course data")
		if err := r.store.ClearAllData(ctx); err != nil {
			return 0, 0, err
		}
	}

	existing, err := r.store.ExistingCourseTitles(ctx)
	if err != nil {
		return 0, 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, title := range existing {
		known[title] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, err
	}

	var courses, chunks int
	for _, entry := range entries {
		if entry.IsDir() || !docproc.SupportedFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		course, chunkText, err := r.processor.ProcessFile(path)
		if err != nil {
			r.logger.Warn("skipping unreadable document", "path", path, "error", err)
			continue
		}
		if known[course.Title] {
			continue
		}
		if err := r.store.AddCourseMetadata(ctx, *course); err != nil {
			return courses, chunks, err
		}
		if err := r.store.AddCourseContent(ctx, chunkText); err != nil {
			return courses, chunks, err
		}
		known[course.Title] = true
		courses++
		chunks += len(chunkText)
		r.logger.Info("indexed course", "title", course.Title, "chunks", len(chunkText))
	}
	return courses, chunks, nil
}

// WatchCourseFolder re-ingests documents as they appear or change under the
// configured docs folder, until ctx is done.
func (r *RAGSystem) WatchCourseFolder(ctx context.Context) error {
	watcher, err := docproc.NewWatcher(r.logger)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = watcher.Stop()
	}()
	return watcher.Watch(ctx, r.cfg.DocsPath, func(path string) {
		course, count, err := r.AddCourseDocument(ctx, path)
		if err != nil {
			r.logger.Warn("re-ingest failed", "path", path, "error", err)
			return
		}
		r.logger.Info("re-ingested course", "title", course.Title, "chunks", count)
	})
}
