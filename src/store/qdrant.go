package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Protocol-Lattice/course-agent/src/embed"
)

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type qdrantScrollResult struct {
	Points []qdrantPoint   `json:"points"`
	Offset json.RawMessage `json:"next_page_offset"`
}

type qdrantCountResult struct {
	Count int `json:"count"`
}

// QdrantIndex implements VectorIndex over one Qdrant collection, speaking
// the HTTP API directly. Text is embedded through the configured Embedder on
// both writes and queries.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	embedder   embed.Embedder
	vectorSize int
	client     *http.Client
}

// NewQdrantIndex creates the adapter and ensures the collection exists.
// Creation is idempotent; an existing collection is left untouched.
func NewQdrantIndex(ctx context.Context, baseURL, apiKey, collection string, embedder embed.Embedder, vectorSize int) (*QdrantIndex, error) {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if collection == "" {
		return nil, errors.New("qdrant collection name is empty")
	}
	if embedder == nil {
		return nil, errors.New("qdrant index requires an embedder")
	}
	if vectorSize <= 0 {
		vectorSize = 768
	}
	qi := &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		embedder:   embedder,
		vectorSize: vectorSize,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	if err := qi.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return qi, nil
}

func (qi *QdrantIndex) ensureCollection(ctx context.Context) error {
	req := map[string]any{
		"vectors": map[string]any{
			"size":     qi.vectorSize,
			"distance": "Cosine",
		},
	}
	var resp qdrantEnvelope[json.RawMessage]
	err := qi.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(qi.collection), req, &resp)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return err
	}
	return nil
}

// Upsert writes documents into the collection. Qdrant point IDs must be
// numeric or UUIDs, so the document ID is hashed to a stable point ID and
// kept verbatim in the payload for reads.
func (qi *QdrantIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		vector, err := qi.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("embed document %q: %w", doc.ID, err)
		}
		payload := map[string]any{
			"_id":  doc.ID,
			"text": doc.Text,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		points = append(points, map[string]any{
			"id":      pointID(doc.ID),
			"vector":  vector,
			"payload": payload,
		})
	}
	var resp qdrantEnvelope[json.RawMessage]
	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(qi.collection))
	if err := qi.do(ctx, http.MethodPut, path, map[string]any{"points": points}, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status.State, "ok") && resp.Status.Error != "" {
		return errors.New(resp.Status.Error)
	}
	return nil
}

// Query embeds the text and runs a filtered nearest-neighbor search.
// Cosine scores come back as similarities; they are converted so lower
// distance means more similar.
func (qi *QdrantIndex) Query(ctx context.Context, text string, limit int, filter Filter) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	vector, err := qi.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if cond := qdrantFilter(filter); cond != nil {
		req["filter"] = cond
	}
	var resp qdrantEnvelope[[]qdrantPoint]
	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(qi.collection))
	if err := qi.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(resp.Result))
	for _, point := range resp.Result {
		matches = append(matches, Match{
			Document: documentFromPayload(point.Payload),
			Distance: 1 - point.Score,
		})
	}
	return matches, nil
}

// qdrantFilter renders the AND-of-equalities filter as a Qdrant must clause.
func qdrantFilter(filter Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for key, value := range filter {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

// Get fetches one document by its original string ID, nil when absent.
func (qi *QdrantIndex) Get(ctx context.Context, id string) (*Document, error) {
	req := map[string]any{
		"ids":          []any{pointID(id)},
		"with_payload": true,
	}
	var resp qdrantEnvelope[[]qdrantPoint]
	path := fmt.Sprintf("/collections/%s/points", url.PathEscape(qi.collection))
	if err := qi.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	for _, point := range resp.Result {
		doc := documentFromPayload(point.Payload)
		if doc.ID == id {
			return &doc, nil
		}
	}
	return nil, nil
}

// All scrolls the entire collection.
func (qi *QdrantIndex) All(ctx context.Context) ([]Document, error) {
	const pageSize = 128
	var (
		docs       []Document
		offset     json.RawMessage
		prevOffset string
	)
	for {
		req := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var resp qdrantEnvelope[qdrantScrollResult]
		path := fmt.Sprintf("/collections/%s/points/scroll", url.PathEscape(qi.collection))
		if err := qi.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, err
		}
		for _, point := range resp.Result.Points {
			docs = append(docs, documentFromPayload(point.Payload))
		}
		raw := strings.TrimSpace(string(resp.Result.Offset))
		if len(resp.Result.Points) == 0 || raw == "" || strings.EqualFold(raw, "null") || raw == prevOffset {
			return docs, nil
		}
		prevOffset = raw
		offset = resp.Result.Offset
	}
}

// Count returns the exact number of points in the collection.
func (qi *QdrantIndex) Count(ctx context.Context) (int, error) {
	var resp qdrantEnvelope[qdrantCountResult]
	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(qi.collection))
	if err := qi.do(ctx, http.MethodPost, path, map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear deletes every point but keeps the collection.
func (qi *QdrantIndex) Clear(ctx context.Context) error {
	req := map[string]any{
		"filter": map[string]any{},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(qi.collection))
	return qi.do(ctx, http.MethodPost, path, req, nil)
}

func (qi *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, qi.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if qi.apiKey != "" {
		req.Header.Set("api-key", qi.apiKey)
	}
	resp, err := qi.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		var env qdrantEnvelope[json.RawMessage]
		if json.Unmarshal(payload, &env) == nil && env.Status.Error != "" {
			return errors.New(env.Status.Error)
		}
		return fmt.Errorf("qdrant %s %s -> http %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return err
		}
	}
	return nil
}

func documentFromPayload(payload map[string]any) Document {
	doc := Document{Metadata: map[string]any{}}
	for k, v := range payload {
		switch k {
		case "_id":
			doc.ID, _ = v.(string)
		case "text":
			doc.Text, _ = v.(string)
		default:
			doc.Metadata[k] = v
		}
	}
	return doc
}

// pointID derives a stable numeric Qdrant point ID from a document ID.
func pointID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64() & (1<<63 - 1)
}
