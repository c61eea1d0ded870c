package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/course-agent/src/models"
)

func toolUseBlock(id, name string, input map[string]any) models.ContentBlock {
	return models.ContentBlock{Type: models.BlockToolUse, ID: id, Name: name, Input: input}
}

func managerWith(t *testing.T, tools ...Tool) *ToolManager {
	t.Helper()
	m := NewToolManager()
	for _, tool := range tools {
		if err := m.Register(tool); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return m
}

func TestGenerateWithoutToolsIsSingleCall(t *testing.T) {
	llm := models.NewScriptedCaller(models.TextResponse("Paris."))
	g := NewGenerator(llm, nil)

	out := g.GenerateResponse(context.Background(), "Capital of France?", "", nil, nil)
	if out != "Paris." {
		t.Fatalf("wrong answer: %q", out)
	}
	if llm.CallCount() != 1 {
		t.Fatalf("want 1 call, got %d", llm.CallCount())
	}
	if len(llm.Requests[0].Tools) != 0 {
		t.Fatal("simple path must not advertise tools")
	}
}

func TestGenerateNoToolUseTerminatesAfterOneCall(t *testing.T) {
	search := &stubTool{name: "search_course_content", output: "content"}
	manager := managerWith(t, search)
	llm := models.NewScriptedCaller(models.TextResponse("General knowledge answer."))
	g := NewGenerator(llm, nil)

	out := g.GenerateResponse(context.Background(), "What is 2+2?", "", manager.Definitions(), manager)
	if out != "General knowledge answer." {
		t.Fatalf("wrong answer: %q", out)
	}
	if llm.CallCount() != 1 {
		t.Fatalf("want 1 call, got %d", llm.CallCount())
	}
	if search.calls != 0 {
		t.Fatalf("no tools should run, got %d executions", search.calls)
	}
}

func TestGenerateTwoToolRoundsThenFinalize(t *testing.T) {
	outline := &stubTool{name: "get_course_outline", output: "outline text"}
	search := &stubTool{name: "search_course_content", output: "search text"}
	manager := managerWith(t, search, outline)

	llm := models.NewScriptedCaller(
		models.ToolUseResponse(toolUseBlock("call_1", "get_course_outline", map[string]any{"course_title": "RAG"})),
		models.ToolUseResponse(toolUseBlock("call_2", "search_course_content", map[string]any{"query": "chunking"})),
		models.TextResponse("Synthesized answer."),
	)
	g := NewGenerator(llm, nil)

	out := g.GenerateResponse(context.Background(), "Outline then details", "", manager.Definitions(), manager)
	if out != "Synthesized answer." {
		t.Fatalf("wrong answer: %q", out)
	}
	if llm.CallCount() != 3 {
		t.Fatalf("want exactly 3 calls, got %d", llm.CallCount())
	}
	if outline.calls != 1 || search.calls != 1 {
		t.Fatalf("tool execution counts wrong: outline=%d search=%d", outline.calls, search.calls)
	}

	// final call offers no tools and instructs answering from gathered results
	final := llm.Requests[2]
	if len(final.Tools) != 0 || final.AutoToolChoice {
		t.Fatal("finalize call must not advertise tools")
	}
	if !strings.Contains(final.System, "Provide your final answer based on the tool results above.") {
		t.Fatal("finalize system addendum missing")
	}

	// transcript carries the tool results tagged with their call ids
	secondRound := llm.Requests[1]
	if len(secondRound.Messages) != 3 {
		t.Fatalf("want query + assistant + tool results, got %d messages", len(secondRound.Messages))
	}
	toolResults := secondRound.Messages[2]
	if toolResults.Role != models.RoleUser || toolResults.Content[0].ToolUseID != "call_1" {
		t.Fatalf("tool result not correlated: %+v", toolResults)
	}
	if !strings.Contains(secondRound.System, "This is round 2") {
		t.Fatal("round hint missing from second round system prompt")
	}
}

func TestGenerateNeverExceedsThreeCalls(t *testing.T) {
	search := &stubTool{name: "search_course_content", output: "more content"}
	manager := managerWith(t, search)

	// the model asks for tools on every round it is allowed to
	llm := models.NewScriptedCaller(
		models.ToolUseResponse(toolUseBlock("c1", "search_course_content", map[string]any{"query": "a"})),
		models.ToolUseResponse(toolUseBlock("c2", "search_course_content", map[string]any{"query": "b"})),
		models.ToolUseResponse(toolUseBlock("c3", "search_course_content", map[string]any{"query": "c"})),
		models.TextResponse("never reached"),
	)
	g := NewGenerator(llm, nil)

	g.GenerateResponse(context.Background(), "keep digging", "", manager.Definitions(), manager)
	if llm.CallCount() != 3 {
		t.Fatalf("call budget violated: %d calls", llm.CallCount())
	}
	if search.calls != 2 {
		t.Fatalf("want 2 tool rounds, got %d executions", search.calls)
	}
}

func TestGenerateToolFailureIsFailFast(t *testing.T) {
	failing := &stubTool{name: "get_course_outline", err: fmt.Errorf("catalog offline")}
	after := &stubTool{name: "search_course_content", output: "unused"}
	manager := managerWith(t, failing, after)

	llm := models.NewScriptedCaller(
		models.ToolUseResponse(
			toolUseBlock("c1", "get_course_outline", map[string]any{"course_title": "RAG"}),
			toolUseBlock("c2", "search_course_content", map[string]any{"query": "x"}),
		),
		models.TextResponse("Best-effort answer."),
	)
	g := NewGenerator(llm, nil)

	out := g.GenerateResponse(context.Background(), "broken round", "", manager.Definitions(), manager)
	if out != "Best-effort answer." {
		t.Fatalf("wrong answer: %q", out)
	}
	if after.calls != 0 {
		t.Fatal("remaining tool calls must not run after a failure")
	}
	if llm.CallCount() != 2 {
		t.Fatalf("want round + fallback = 2 calls, got %d", llm.CallCount())
	}
	fallback := llm.Requests[1]
	if !strings.Contains(fallback.System, "Tool execution failed in round 1") {
		t.Fatalf("fallback system missing failure note:\n%s", fallback.System)
	}
	if len(fallback.Tools) != 0 {
		t.Fatal("fallback call must not advertise tools")
	}
}

func TestGenerateFallbackFailureReturnsApology(t *testing.T) {
	failing := &stubTool{name: "get_course_outline", err: fmt.Errorf("catalog offline")}
	manager := managerWith(t, failing)

	llm := models.NewScriptedCaller(
		models.ToolUseResponse(toolUseBlock("c1", "get_course_outline", map[string]any{"course_title": "RAG"})),
	)
	llm.Errs = []error{nil, errors.New("provider down")}
	g := NewGenerator(llm, nil)

	out := g.GenerateResponse(context.Background(), "doubly broken", "", manager.Definitions(), manager)
	want := "I encountered an error while processing your request: Tool execution failed: catalog offline"
	if out != want {
		t.Fatalf("want %q, got %q", want, out)
	}
}

func TestGenerateLLMErrorSuggestsRephrasing(t *testing.T) {
	search := &stubTool{name: "search_course_content"}
	manager := managerWith(t, search)

	llm := models.NewScriptedCaller()
	llm.Errs = []error{errors.New("connection refused")}
	g := NewGenerator(llm, nil)

	out := g.GenerateResponse(context.Background(), "anything", "", manager.Definitions(), manager)
	if out != "I encountered an error while processing your request. Please try rephrasing your question." {
		t.Fatalf("wrong failure text: %q", out)
	}
	if llm.CallCount() != 1 {
		t.Fatalf("errors must not be retried: %d calls", llm.CallCount())
	}
}

func TestGenerateHistoryFoldedIntoSystem(t *testing.T) {
	llm := models.NewScriptedCaller(models.TextResponse("ok"))
	g := NewGenerator(llm, nil)

	history := "User: hi\nAssistant: hello"
	g.GenerateResponse(context.Background(), "follow-up", history, nil, nil)
	if !strings.Contains(llm.Requests[0].System, "Previous conversation:\n"+history) {
		t.Fatal("history missing from system prompt")
	}
}
