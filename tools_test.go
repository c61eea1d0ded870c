package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/course-agent/src/store"
)

// memIndex is an in-memory VectorIndex for wiring a SemanticStore in tests.
// Query returns filter-matching documents in insertion order.
type memIndex struct {
	docs     []store.Document
	queryErr error
	queries  int
}

func (f *memIndex) Upsert(_ context.Context, docs []store.Document) error {
	for _, doc := range docs {
		replaced := false
		for i := range f.docs {
			if f.docs[i].ID == doc.ID {
				f.docs[i] = doc
				replaced = true
				break
			}
		}
		if !replaced {
			f.docs = append(f.docs, doc)
		}
	}
	return nil
}

func (f *memIndex) Query(_ context.Context, _ string, limit int, filter store.Filter) ([]store.Match, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var matches []store.Match
	for i, doc := range f.docs {
		match := true
		for key, want := range filter {
			if fmt.Sprint(doc.Metadata[key]) != fmt.Sprint(want) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		matches = append(matches, store.Match{Document: doc, Distance: 0.1 * float64(i+1)})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (f *memIndex) Get(_ context.Context, id string) (*store.Document, error) {
	for _, doc := range f.docs {
		if doc.ID == id {
			d := doc
			return &d, nil
		}
	}
	return nil, nil
}

func (f *memIndex) All(_ context.Context) ([]store.Document, error) { return f.docs, nil }
func (f *memIndex) Count(_ context.Context) (int, error)            { return len(f.docs), nil }
func (f *memIndex) Clear(_ context.Context) error {
	f.docs = nil
	return nil
}

func lessonPtr(n int) *int { return &n }

func seededStore(t *testing.T) (*store.SemanticStore, *memIndex) {
	t.Helper()
	catalog := &memIndex{}
	content := &memIndex{}
	s := store.New(catalog, content, 5)

	course := store.Course{
		Title:      "Intro to RAG",
		Link:       "https://example.com/rag",
		Instructor: "Ada",
		Lessons: []store.Lesson{
			{Number: 1, Title: "Overview", Link: "https://example.com/rag/1"},
			{Number: 2, Title: "Retrieval", Link: "https://example.com/rag/2"},
		},
	}
	if err := s.AddCourseMetadata(context.Background(), course); err != nil {
		t.Fatalf("AddCourseMetadata: %v", err)
	}
	chunks := []store.CourseChunk{
		{Content: "RAG combines retrieval with generation.", CourseTitle: "Intro to RAG", LessonNumber: lessonPtr(1), ChunkIndex: 0},
		{Content: "Retrieval narrows the context window.", CourseTitle: "Intro to RAG", LessonNumber: lessonPtr(2), ChunkIndex: 1},
		{Content: "Chunk overlap preserves sentence context.", CourseTitle: "Intro to RAG", LessonNumber: lessonPtr(2), ChunkIndex: 2},
	}
	if err := s.AddCourseContent(context.Background(), chunks); err != nil {
		t.Fatalf("AddCourseContent: %v", err)
	}
	return s, content
}

func TestContentSearchFormatting(t *testing.T) {
	s, _ := seededStore(t)
	tool := NewContentSearchTool(s)

	out, err := tool.Execute(context.Background(), map[string]any{"query": "What is RAG?"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	blocks := strings.Split(out, "\n\n")
	if len(blocks) != 3 {
		t.Fatalf("want 3 result blocks, got %d:\n%s", len(blocks), out)
	}
	if !strings.HasPrefix(blocks[0], "[Intro to RAG - Lesson 1]\n") {
		t.Fatalf("wrong first header:\n%s", blocks[0])
	}
	if !strings.HasPrefix(blocks[1], "[Intro to RAG - Lesson 2]\n") {
		t.Fatalf("wrong second header:\n%s", blocks[1])
	}
}

func TestContentSearchSourceDedup(t *testing.T) {
	s, _ := seededStore(t)
	tool := NewContentSearchTool(s)

	// 3 chunks span 2 unique (course, lesson) pairs
	if _, err := tool.Execute(context.Background(), map[string]any{"query": "retrieval"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sources := tool.LastSources()
	if len(sources) != 2 {
		t.Fatalf("want 2 deduplicated sources, got %d: %+v", len(sources), sources)
	}
	if sources[0].Text != "Intro to RAG - Lesson 1" || sources[0].Link != "https://example.com/rag/1" {
		t.Fatalf("wrong first source: %+v", sources[0])
	}
	if sources[1].Text != "Intro to RAG - Lesson 2" || sources[1].Link != "https://example.com/rag/2" {
		t.Fatalf("wrong second source: %+v", sources[1])
	}

	tool.ResetSources()
	if len(tool.LastSources()) != 0 {
		t.Fatal("sources survived reset")
	}
}

func TestContentSearchUnknownCourse(t *testing.T) {
	content := &memIndex{}
	empty := store.New(&memIndex{}, content, 5)
	tool := NewContentSearchTool(empty)

	out, err := tool.Execute(context.Background(), map[string]any{
		"query":       "anything",
		"course_name": "Nonexistent",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "No course found matching 'Nonexistent'" {
		t.Fatalf("wrong resolution failure text: %q", out)
	}
	if content.queries != 0 {
		t.Fatalf("content index queried %d times despite failed resolution", content.queries)
	}
}

func TestContentSearchEmptyResults(t *testing.T) {
	catalog := &memIndex{}
	content := &memIndex{}
	s := store.New(catalog, content, 5)
	if err := s.AddCourseMetadata(context.Background(), store.Course{Title: "Intro to RAG"}); err != nil {
		t.Fatalf("AddCourseMetadata: %v", err)
	}
	tool := NewContentSearchTool(s)

	out, err := tool.Execute(context.Background(), map[string]any{
		"query":         "anything",
		"course_name":   "Intro to RAG",
		"lesson_number": float64(3),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "No relevant content found in course 'Intro to RAG' in lesson 3."
	if out != want {
		t.Fatalf("want %q, got %q", want, out)
	}
}

func TestContentSearchPropagatesSearchError(t *testing.T) {
	s, content := seededStore(t)
	content.queryErr = fmt.Errorf("index unreachable")
	tool := NewContentSearchTool(s)

	out, err := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Search error: index unreachable" {
		t.Fatalf("error not propagated verbatim: %q", out)
	}
}

func TestOutlineToolRendering(t *testing.T) {
	s, _ := seededStore(t)
	tool := NewOutlineTool(s)

	out, err := tool.Execute(context.Background(), map[string]any{"course_title": "RAG"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := strings.Join([]string{
		"**Course:** Intro to RAG",
		"**Course Link:** https://example.com/rag",
		"**Lessons:**",
		"  1. Overview",
		"  2. Retrieval",
	}, "\n")
	if out != want {
		t.Fatalf("wrong outline:\n%s", out)
	}
}

func TestOutlineToolNoLessons(t *testing.T) {
	catalog := &memIndex{}
	s := store.New(catalog, &memIndex{}, 5)
	if err := s.AddCourseMetadata(context.Background(), store.Course{Title: "Empty Course"}); err != nil {
		t.Fatalf("AddCourseMetadata: %v", err)
	}
	tool := NewOutlineTool(s)

	out, err := tool.Execute(context.Background(), map[string]any{"course_title": "Empty"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasSuffix(out, "  No lessons found") {
		t.Fatalf("missing empty-lessons marker:\n%s", out)
	}
	if !strings.Contains(out, "**Course Link:** No link available") {
		t.Fatalf("missing link placeholder:\n%s", out)
	}
}

func TestOutlineToolUnknownCourse(t *testing.T) {
	s := store.New(&memIndex{}, &memIndex{}, 5)
	tool := NewOutlineTool(s)

	out, err := tool.Execute(context.Background(), map[string]any{"course_title": "Ghost"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "No course found matching 'Ghost'" {
		t.Fatalf("wrong failure text: %q", out)
	}
}
