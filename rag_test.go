package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/Protocol-Lattice/course-agent/src/docproc"
	"github.com/Protocol-Lattice/course-agent/src/models"
	"github.com/Protocol-Lattice/course-agent/src/session"
	"github.com/Protocol-Lattice/course-agent/src/store"
)

// markerTool records the marker argument of each call as its only source.
type markerTool struct {
	sources []Source
}

func (t *markerTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "search_course_content",
		Description: "stub",
		InputSchema: models.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}
}

func (t *markerTool) Execute(_ context.Context, args map[string]any) (string, error) {
	marker, _ := args["marker"].(string)
	t.sources = []Source{{Text: marker}}
	return "content for " + marker, nil
}

func (t *markerTool) LastSources() []Source { return t.sources }
func (t *markerTool) ResetSources()         { t.sources = nil }

func testSystem(t *testing.T, llm models.ToolCaller, tools ...Tool) *RAGSystem {
	t.Helper()
	manager := NewToolManager()
	for _, tool := range tools {
		if err := manager.Register(tool); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return &RAGSystem{
		store:     store.New(&memIndex{}, &memIndex{}, 5),
		generator: NewGenerator(llm, slog.Default()),
		manager:   manager,
		sessions:  session.NewMemoryManager(2),
		processor: docproc.NewProcessor(800, 100),
		logger:    slog.Default(),
	}
}

func TestQueryHarvestsAndResetsSources(t *testing.T) {
	llm := models.NewScriptedCaller(
		models.ToolUseResponse(toolUseBlock("c1", "search_course_content", map[string]any{"marker": "q1"})),
		models.TextResponse("answer"),
	)
	tool := &markerTool{}
	system := testSystem(t, llm, tool)

	answer, sources, err := system.Query(context.Background(), "question", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if answer != "answer" {
		t.Fatalf("wrong answer: %q", answer)
	}
	if len(sources) != 1 || sources[0].Text != "q1" {
		t.Fatalf("sources not harvested: %+v", sources)
	}
	if len(tool.LastSources()) != 0 {
		t.Fatal("sources not reset after harvest")
	}
}

func TestQueryRecordsSessionExchange(t *testing.T) {
	llm := models.NewScriptedCaller(models.TextResponse("recorded answer"))
	system := testSystem(t, llm)

	id, err := system.Sessions().Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := system.Query(context.Background(), "first question", id); err != nil {
		t.Fatalf("Query: %v", err)
	}

	history, err := system.Sessions().History(context.Background(), id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := "User: first question\nAssistant: recorded answer"
	if history != want {
		t.Fatalf("exchange not recorded: %q", history)
	}
}

// Concurrent queries share one tool instance, so each query's provenance
// must come from its own tool round and never bleed into another response.
func TestQueryConcurrentSourcesDoNotBleed(t *testing.T) {
	const queries = 8

	// two responses per query: a tool round carrying a unique marker, then
	// the final text answer
	var responses []models.ChatResponse
	for i := 0; i < queries; i++ {
		marker := fmt.Sprintf("q%d", i)
		responses = append(responses,
			models.ToolUseResponse(toolUseBlock("c"+marker, "search_course_content", map[string]any{"marker": marker})),
			models.TextResponse("answer for "+marker),
		)
	}
	system := testSystem(t, models.NewScriptedCaller(responses...), &markerTool{})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
	)
	for i := 0; i < queries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, sources, err := system.Query(context.Background(), "concurrent question", "")
			if err != nil {
				t.Errorf("Query: %v", err)
				return
			}
			if len(sources) != 1 {
				t.Errorf("want exactly the querying round's source, got %+v", sources)
				return
			}
			mu.Lock()
			seen[sources[0].Text]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != queries {
		t.Fatalf("provenance bled across queries: %d distinct markers for %d queries: %v", len(seen), queries, seen)
	}
	for marker, n := range seen {
		if n != 1 {
			t.Fatalf("marker %s harvested %d times", marker, n)
		}
	}
}
