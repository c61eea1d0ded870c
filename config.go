package rag

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries every tunable of the course materials assistant. Values come
// from the environment, with .env files layered underneath for local runs.
type Config struct {
	AnthropicAPIKey string
	AnthropicModel  string

	QdrantURL         string
	QdrantAPIKey      string
	CatalogCollection string
	ContentCollection string
	VectorSize        int

	EmbedProvider string
	EmbedModel    string

	PostgresURL string

	DocsPath     string
	ChunkSize    int
	ChunkOverlap int
	MaxResults   int
	MaxHistory   int

	ListenAddr string
}

// LoadConfig reads .env files (when present) and then the process
// environment. Missing values fall back to defaults; only the Anthropic key
// has no default and is validated at client construction time.
func LoadConfig() Config {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Overload(file)
	}

	return Config{
		AnthropicAPIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		QdrantURL:         envString("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:      os.Getenv("QDRANT_API_KEY"),
		CatalogCollection: envString("RAG_CATALOG_COLLECTION", "course_catalog"),
		ContentCollection: envString("RAG_CONTENT_COLLECTION", "course_content"),
		VectorSize:        envInt("RAG_VECTOR_SIZE", 768),

		EmbedProvider: os.Getenv("RAG_EMBED_PROVIDER"),
		EmbedModel:    os.Getenv("RAG_EMBED_MODEL"),

		PostgresURL: os.Getenv("RAG_POSTGRES_URL"),

		DocsPath:     envString("RAG_DOCS_PATH", "docs"),
		ChunkSize:    envInt("RAG_CHUNK_SIZE", 800),
		ChunkOverlap: envInt("RAG_CHUNK_OVERLAP", 100),
		MaxResults:   envInt("RAG_MAX_RESULTS", 5),
		MaxHistory:   envInt("RAG_MAX_HISTORY", 2),

		ListenAddr: envString("RAG_LISTEN_ADDR", ":8000"),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
