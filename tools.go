package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/course-agent/src/models"
	"github.com/Protocol-Lattice/course-agent/src/store"
)

// Tool is one capability the assistant can invoke mid-answer. Definition
// advertises the tool to the model; Execute runs it with the model-declared
// arguments and returns text the model consumes.
type Tool interface {
	Definition() models.ToolDefinition
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Source attributes a piece of retrieved content back to its course and
// lesson for display alongside the answer.
type Source struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// SourceTracker is implemented by tools that record where their latest
// results came from. Sources are per-query state: read once, then reset.
type SourceTracker interface {
	LastSources() []Source
	ResetSources()
}

// ContentSearchTool searches course content with fuzzy course-name matching
// and optional lesson filtering.
type ContentSearchTool struct {
	store   *store.SemanticStore
	sources []Source
}

func NewContentSearchTool(s *store.SemanticStore) *ContentSearchTool {
	return &ContentSearchTool{store: s}
}

func (t *ContentSearchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "search_course_content",
		Description: "Search course materials with smart course name matching and lesson filtering",
		InputSchema: models.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for in the course content",
				},
				"course_name": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": map[string]any{
					"type":        "integer",
					"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *ContentSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	courseName, _ := args["course_name"].(string)
	lessonNumber := intArg(args, "lesson_number")

	results := t.store.Search(ctx, query, courseName, lessonNumber, 0)

	if results.Err != "" {
		return results.Err, nil
	}
	if results.IsEmpty() {
		var filterInfo strings.Builder
		if courseName != "" {
			fmt.Fprintf(&filterInfo, " in course '%s'", courseName)
		}
		if lessonNumber != nil {
			fmt.Fprintf(&filterInfo, " in lesson %d", *lessonNumber)
		}
		return fmt.Sprintf("No relevant content found%s.", filterInfo.String()), nil
	}
	return t.formatResults(ctx, results), nil
}

// formatResults renders each match under a [course - lesson] header and
// rebuilds the provenance list, deduplicated by (course, lesson) with the
// first occurrence winning.
func (t *ContentSearchTool) formatResults(ctx context.Context, results store.SearchResults) string {
	var (
		formatted []string
		seen      = map[string]bool{}
		sources   []Source
	)
	for i, doc := range results.Documents {
		meta := results.Metadata[i]
		courseTitle := "unknown"
		if v, ok := meta[store.MetaCourseTitle].(string); ok && v != "" {
			courseTitle = v
		}
		lessonNum := metaLessonNumber(meta)

		header := "[" + courseTitle
		if lessonNum != nil {
			header += fmt.Sprintf(" - Lesson %d", *lessonNum)
		}
		header += "]"

		key := courseTitle + "|"
		if lessonNum != nil {
			key += fmt.Sprint(*lessonNum)
		}
		if !seen[key] {
			seen[key] = true
			src := Source{Text: courseTitle}
			if lessonNum != nil {
				src.Text += fmt.Sprintf(" - Lesson %d", *lessonNum)
				src.Link = t.store.GetLessonLink(ctx, courseTitle, *lessonNum)
			}
			sources = append(sources, src)
		}

		formatted = append(formatted, header+"\n"+doc)
	}
	t.sources = sources
	return strings.Join(formatted, "\n\n")
}

func (t *ContentSearchTool) LastSources() []Source { return t.sources }
func (t *ContentSearchTool) ResetSources()         { t.sources = nil }

// OutlineTool returns a course's link and full lesson list.
type OutlineTool struct {
	store *store.SemanticStore
}

func NewOutlineTool(s *store.SemanticStore) *OutlineTool {
	return &OutlineTool{store: s}
}

func (t *OutlineTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "get_course_outline",
		Description: "Get the complete outline and lesson list for a specific course",
		InputSchema: models.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"course_title": map[string]any{
					"type":        "string",
					"description": "Course title or partial title (e.g. 'MCP', 'RAG', 'Chroma')",
				},
			},
			Required: []string{"course_title"},
		},
	}
}

func (t *OutlineTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	courseTitle, _ := args["course_title"].(string)

	resolved, err := t.store.ResolveCourseName(ctx, courseTitle)
	if err != nil {
		return fmt.Sprintf("Error retrieving course outline: %v", err), nil
	}
	if resolved == "" {
		return fmt.Sprintf("No course found matching '%s'", courseTitle), nil
	}

	record, err := t.store.CourseMetadata(ctx, resolved)
	if err != nil {
		return fmt.Sprintf("Error retrieving course outline: %v", err), nil
	}
	if record == nil {
		return fmt.Sprintf("Course metadata not found for '%s'", resolved), nil
	}

	courseLink := record.Link
	if courseLink == "" {
		courseLink = "No link available"
	}
	lines := []string{
		fmt.Sprintf("**Course:** %s", resolved),
		fmt.Sprintf("**Course Link:** %s", courseLink),
		"**Lessons:**",
	}
	if len(record.Lessons) == 0 {
		lines = append(lines, "  No lessons found")
	} else {
		for _, lesson := range record.Lessons {
			lines = append(lines, fmt.Sprintf("  %d. %s", lesson.Number, lesson.Title))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// intArg reads an integer argument that may arrive as a float64 (JSON
// numbers) or an int, returning nil when absent.
func intArg(args map[string]any, key string) *int {
	switch v := args[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		n := v
		return &n
	}
	return nil
}

func metaLessonNumber(meta map[string]any) *int {
	switch v := meta[store.MetaLessonNumber].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		n := v
		return &n
	}
	return nil
}
