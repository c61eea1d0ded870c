package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata keys shared between the catalog and content collections.
const (
	MetaCourseTitle  = "course_title"
	MetaLessonNumber = "lesson_number"
	MetaChunkIndex   = "chunk_index"

	catalogTitle       = "title"
	catalogInstructor  = "instructor"
	catalogCourseLink  = "course_link"
	catalogLessonCount = "lesson_count"
	catalogLessonsJSON = "lessons_json"
)

// SemanticStore owns the two persistent collections backing the RAG core:
// a course catalog used for fuzzy name resolution and link metadata, and the
// chunked course content searched at answer time.
type SemanticStore struct {
	catalog    VectorIndex
	content    VectorIndex
	maxResults int
}

// New builds a SemanticStore over the given collections. maxResults caps
// searches that do not supply their own limit.
func New(catalog, content VectorIndex, maxResults int) *SemanticStore {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SemanticStore{catalog: catalog, content: content, maxResults: maxResults}
}

// Search runs a filtered similarity search over course content.
// courseName may be a partial title; it is resolved against the catalog
// before any content query runs. lessonNumber narrows to one lesson.
// All failures come back inside SearchResults, never as a panic or error.
func (s *SemanticStore) Search(ctx context.Context, query, courseName string, lessonNumber *int, limit int) SearchResults {
	var resolved string
	if courseName != "" {
		title, err := s.ResolveCourseName(ctx, courseName)
		if err != nil {
			return ErrorResults(fmt.Sprintf("Search error: %v", err))
		}
		if title == "" {
			return ErrorResults(fmt.Sprintf("No course found matching '%s'", courseName))
		}
		resolved = title
	}

	filter := buildFilter(resolved, lessonNumber)
	cap := limit
	if cap <= 0 {
		cap = s.maxResults
	}

	matches, err := s.content.Query(ctx, query, cap, filter)
	if err != nil {
		return ErrorResults(fmt.Sprintf("Search error: %v", err))
	}

	results := SearchResults{
		Documents: make([]string, 0, len(matches)),
		Metadata:  make([]map[string]any, 0, len(matches)),
		Distances: make([]float64, 0, len(matches)),
	}
	for _, m := range matches {
		results.Documents = append(results.Documents, m.Text)
		results.Metadata = append(results.Metadata, m.Metadata)
		results.Distances = append(results.Distances, m.Distance)
	}
	return results
}

// buildFilter translates the optional course/lesson constraints into a
// metadata filter: nil when unconstrained, otherwise ANDed equality matches.
func buildFilter(courseTitle string, lessonNumber *int) Filter {
	if courseTitle == "" && lessonNumber == nil {
		return nil
	}
	f := Filter{}
	if courseTitle != "" {
		f[MetaCourseTitle] = courseTitle
	}
	if lessonNumber != nil {
		f[MetaLessonNumber] = *lessonNumber
	}
	return f
}

// ResolveCourseName finds the best-matching canonical course title for a
// possibly partial name via a 1-nearest-neighbor catalog lookup. It returns
// "" when the catalog has no match.
func (s *SemanticStore) ResolveCourseName(ctx context.Context, name string) (string, error) {
	matches, err := s.catalog.Query(ctx, name, 1, nil)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	title, _ := matches[0].Metadata[catalogTitle].(string)
	return title, nil
}

// AddCourseMetadata upserts one catalog record keyed by the course title.
// The lesson array is serialized so link lookups survive round trips.
func (s *SemanticStore) AddCourseMetadata(ctx context.Context, course Course) error {
	lessons := course.Lessons
	if lessons == nil {
		lessons = []Lesson{}
	}
	lessonsJSON, err := json.Marshal(lessons)
	if err != nil {
		return fmt.Errorf("serialize lessons for %q: %w", course.Title, err)
	}
	doc := Document{
		ID:   course.Title,
		Text: course.Title,
		Metadata: map[string]any{
			catalogTitle:       course.Title,
			catalogInstructor:  course.Instructor,
			catalogCourseLink:  course.Link,
			catalogLessonCount: len(lessons),
			catalogLessonsJSON: string(lessonsJSON),
		},
	}
	return s.catalog.Upsert(ctx, []Document{doc})
}

// AddCourseContent upserts one content record per chunk. Chunk IDs are
// "<title>_<index>" with spaces normalized to underscores. Empty input is a
// no-op.
func (s *SemanticStore) AddCourseContent(ctx context.Context, chunks []CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(chunks))
	for _, chunk := range chunks {
		meta := map[string]any{
			MetaCourseTitle: chunk.CourseTitle,
			MetaChunkIndex:  chunk.ChunkIndex,
		}
		if chunk.LessonNumber != nil {
			meta[MetaLessonNumber] = *chunk.LessonNumber
		}
		docs = append(docs, Document{
			ID:       chunkID(chunk.CourseTitle, chunk.ChunkIndex),
			Text:     chunk.Content,
			Metadata: meta,
		})
	}
	return s.content.Upsert(ctx, docs)
}

func chunkID(courseTitle string, index int) string {
	return fmt.Sprintf("%s_%d", strings.ReplaceAll(courseTitle, " ", "_"), index)
}

// CourseMetadata fetches the catalog record for an exact title, with the
// lesson array deserialized. It returns nil when the record is missing.
func (s *SemanticStore) CourseMetadata(ctx context.Context, title string) (*CourseRecord, error) {
	doc, err := s.catalog.Get(ctx, title)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	rec := recordFromCatalogDoc(*doc)
	return &rec, nil
}

func recordFromCatalogDoc(doc Document) CourseRecord {
	rec := CourseRecord{
		Title:   stringValue(doc.Metadata[catalogTitle]),
		Lessons: []Lesson{},
	}
	if rec.Title == "" {
		rec.Title = doc.ID
	}
	rec.Link = stringValue(doc.Metadata[catalogCourseLink])
	rec.Instructor = stringValue(doc.Metadata[catalogInstructor])
	rec.LessonCount = intValue(doc.Metadata[catalogLessonCount])
	if raw := stringValue(doc.Metadata[catalogLessonsJSON]); raw != "" {
		var lessons []Lesson
		if err := json.Unmarshal([]byte(raw), &lessons); err == nil && lessons != nil {
			rec.Lessons = lessons
		}
	}
	return rec
}

// GetLessonLink returns the stored link for one lesson, or "" when the
// course or lesson is unknown.
func (s *SemanticStore) GetLessonLink(ctx context.Context, courseTitle string, lessonNumber int) string {
	rec, err := s.CourseMetadata(ctx, courseTitle)
	if err != nil || rec == nil {
		return ""
	}
	for _, lesson := range rec.Lessons {
		if lesson.Number == lessonNumber {
			return lesson.Link
		}
	}
	return ""
}

// GetCourseLink returns the course's own link, or "" when unknown.
func (s *SemanticStore) GetCourseLink(ctx context.Context, courseTitle string) string {
	rec, err := s.CourseMetadata(ctx, courseTitle)
	if err != nil || rec == nil {
		return ""
	}
	return rec.Link
}

// ExistingCourseTitles lists every catalog title.
func (s *SemanticStore) ExistingCourseTitles(ctx context.Context) ([]string, error) {
	docs, err := s.catalog.All(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(docs))
	for _, doc := range docs {
		if title := stringValue(doc.Metadata[catalogTitle]); title != "" {
			titles = append(titles, title)
		} else {
			titles = append(titles, doc.ID)
		}
	}
	return titles, nil
}

// CourseCount returns the number of catalog entries.
func (s *SemanticStore) CourseCount(ctx context.Context) (int, error) {
	return s.catalog.Count(ctx)
}

// AllCoursesMetadata returns every catalog record in structured form. The
// serialized lesson string never appears in the output.
func (s *SemanticStore) AllCoursesMetadata(ctx context.Context) ([]CourseRecord, error) {
	docs, err := s.catalog.All(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]CourseRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFromCatalogDoc(doc))
	}
	return records, nil
}

// ClearAllData wipes both collections.
func (s *SemanticStore) ClearAllData(ctx context.Context) error {
	if err := s.catalog.Clear(ctx); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	if err := s.content.Clear(ctx); err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
