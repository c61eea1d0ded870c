package store

import "context"

// Document is one record in a vector collection. The backend embeds Text
// itself, so callers never handle raw vectors.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Match is a document returned from a similarity query. Distance is
// normalized so that lower means more similar.
type Match struct {
	Document
	Distance float64
}

// Filter restricts a query to documents whose metadata matches every
// key/value pair (logical AND of equality matches).
type Filter map[string]any

// VectorIndex is the contract for one persistent collection of an
// embeddings-backed similarity engine.
type VectorIndex interface {
	Upsert(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, limit int, filter Filter) ([]Match, error)
	Get(ctx context.Context, id string) (*Document, error)
	All(ctx context.Context) ([]Document, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
