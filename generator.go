package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Protocol-Lattice/course-agent/src/models"
)

const systemPrompt = `You are an AI assistant specialized in course materials and educational content with access to comprehensive search tools for course information.

Available Tools:
1. **search_course_content**: For searching specific course content and detailed materials
2. **get_course_outline**: For getting course outlines, lesson lists, and course structure

Tool Usage Guidelines:
- **Up to 2 sequential tool calls allowed** - you can reason about results and make additional calls if needed
- **Course outline/structure queries**: Use get_course_outline tool to return course title, course link, and complete lesson list with numbers and titles
- **Content search queries**: Use search_course_content tool for specific material within courses
- **Sequential reasoning**: After receiving tool results, consider if additional tool calls would improve your answer
- **Strategic usage examples**:
  * First call: get_course_outline for a course → Then: search_course_content for specific concepts from that course
  * First call: search_course_content for general topic → Then: search_course_content with refined course/lesson filters
  * First call: search for one course → Then: search for comparison with another course
- Synthesize tool results into accurate, fact-based responses
- If tools yield no results, state this clearly without offering alternatives

Response Protocol:
- **General knowledge questions**: Answer using existing knowledge without using tools
- **Course outline questions**: Use get_course_outline tool first, then format the response with course title, course link, and numbered lesson list
- **Course content questions**: Use search_course_content tool, potentially followed by refined searches
- **Multi-step reasoning**: If first tool results are insufficient, make a second targeted tool call
- **No meta-commentary**:
 - Provide direct answers only — no reasoning process, tool explanations, or question-type analysis
 - Do not mention "based on the search results" or "using the tool"

All responses must be:
1. **Brief, Concise and focused** - Get to the point quickly
2. **Educational** - Maintain instructional value
3. **Clear** - Use accessible language
4. **Example-supported** - Include relevant examples when they aid understanding
Provide only the direct answer to what was asked.`

// maxToolRounds bounds how many model responses may request tools within a
// single query. A final tool-free call may follow, so a query issues at most
// maxToolRounds+1 model calls.
const maxToolRounds = 2

// RoundContext carries the state of one query's tool-calling conversation.
type RoundContext struct {
	OriginalQuery       string
	ConversationHistory string
	Tools               []models.ToolDefinition
	Messages            []models.Message
	CurrentRound        int
	Errors              []string
}

// ToolExecutionResult is the outcome of running one round's tool calls.
type ToolExecutionResult struct {
	Failed        bool
	ErrorMessage  string
	ToolResults   []models.ContentBlock
	ExecutedTools []string
}

// Generator drives the bounded tool-calling conversation with the model.
// Rounds are strictly sequential; every recovered failure comes back as
// user-readable text rather than an error.
type Generator struct {
	llm    models.ToolCaller
	logger *slog.Logger
}

func NewGenerator(llm models.ToolCaller, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, logger: logger}
}

// GenerateResponse answers one query, invoking tools between model rounds
// when the model asks for them. Without tools or a manager it degrades to a
// single direct model call.
func (g *Generator) GenerateResponse(ctx context.Context, query, history string, tools []models.ToolDefinition, manager *ToolManager) string {
	if len(tools) == 0 || manager == nil {
		return g.simpleResponse(ctx, query, history)
	}

	rc := &RoundContext{
		OriginalQuery:       query,
		ConversationHistory: history,
		Tools:               tools,
		Messages:            []models.Message{models.UserText(query)},
	}

	for rc.CurrentRound < maxToolRounds {
		rc.CurrentRound++

		resp, err := g.llm.Chat(ctx, models.ChatRequest{
			System:         g.roundSystem(rc),
			Messages:       rc.Messages,
			Tools:          rc.Tools,
			AutoToolChoice: true,
		})
		if err != nil {
			rc.Errors = append(rc.Errors, fmt.Sprintf("Error in round %d: %v", rc.CurrentRound, err))
			g.logger.Error("model call failed", "round", rc.CurrentRound, "error", err)
			return "I encountered an error while processing your request. Please try rephrasing your question."
		}

		if resp.StopReason != models.StopReasonToolUse {
			return resp.FirstText()
		}

		exec := g.executeRoundTools(ctx, resp, rc, manager)
		if exec.Failed {
			return g.finalizeAfterToolFailure(ctx, rc, exec)
		}

		rc.Messages = append(rc.Messages, models.AssistantBlocks(resp.Content))
		if len(exec.ToolResults) > 0 {
			rc.Messages = append(rc.Messages, models.UserBlocks(exec.ToolResults))
		}
	}

	return g.finalizeMaxRounds(ctx, rc)
}

func (g *Generator) simpleResponse(ctx context.Context, query, history string) string {
	resp, err := g.llm.Chat(ctx, models.ChatRequest{
		System:   g.baseSystem(history),
		Messages: []models.Message{models.UserText(query)},
	})
	if err != nil {
		g.logger.Error("model call failed", "error", err)
		return "I encountered an error while processing your request. Please try rephrasing your question."
	}
	return resp.FirstText()
}

func (g *Generator) baseSystem(history string) string {
	if history != "" {
		return fmt.Sprintf("%s\n\nPrevious conversation:\n%s", systemPrompt, history)
	}
	return systemPrompt
}

func (g *Generator) roundSystem(rc *RoundContext) string {
	system := g.baseSystem(rc.ConversationHistory)
	if rc.CurrentRound > 1 {
		system += fmt.Sprintf("\n\nThis is round %d of up to %d rounds. Consider if additional tool calls would improve your answer based on previous results.", rc.CurrentRound, maxToolRounds)
	}
	return system
}

// executeRoundTools runs every tool-use block of resp in order. The first
// tool that errors stops the batch; remaining calls are not attempted.
func (g *Generator) executeRoundTools(ctx context.Context, resp models.ChatResponse, rc *RoundContext, manager *ToolManager) ToolExecutionResult {
	var exec ToolExecutionResult
	for _, call := range resp.ToolCalls() {
		output, err := manager.Execute(ctx, call.Name, call.Input)
		if err != nil {
			exec.Failed = true
			exec.ErrorMessage = fmt.Sprintf("Tool execution failed: %v", err)
			rc.Errors = append(rc.Errors, fmt.Sprintf("Round %d: %s", rc.CurrentRound, exec.ErrorMessage))
			g.logger.Warn("tool call failed", "tool", call.Name, "round", rc.CurrentRound, "error", err)
			break
		}
		exec.ToolResults = append(exec.ToolResults, models.ToolResultBlock(call.ID, output, false))
		exec.ExecutedTools = append(exec.ExecutedTools, call.Name)
	}
	return exec
}

// finalizeAfterToolFailure makes exactly one fallback call with the
// transcript as accumulated before the failing round, telling the model a
// tool failed so it can answer best-effort.
func (g *Generator) finalizeAfterToolFailure(ctx context.Context, rc *RoundContext, exec ToolExecutionResult) string {
	system := g.baseSystem(rc.ConversationHistory)
	system += fmt.Sprintf("\n\nNote: Tool execution failed in round %d: %s. Please provide the best answer you can based on available information.", rc.CurrentRound, exec.ErrorMessage)

	resp, err := g.llm.Chat(ctx, models.ChatRequest{
		System:   system,
		Messages: rc.Messages,
	})
	if err != nil {
		g.logger.Error("fallback call failed", "error", err)
		return fmt.Sprintf("I encountered an error while processing your request: %s", exec.ErrorMessage)
	}
	return resp.FirstText()
}

// finalizeMaxRounds issues the terminal tool-free call once the round budget
// is spent, instructing the model to answer from the gathered results.
func (g *Generator) finalizeMaxRounds(ctx context.Context, rc *RoundContext) string {
	system := g.baseSystem(rc.ConversationHistory) + "\n\nProvide your final answer based on the tool results above."

	resp, err := g.llm.Chat(ctx, models.ChatRequest{
		System:   system,
		Messages: rc.Messages,
	})
	if err != nil {
		rc.Errors = append(rc.Errors, fmt.Sprintf("Final call failed: %v", err))
		g.logger.Error("final call failed", "error", err)
		return "I encountered an error while processing your request. Please try rephrasing your question."
	}
	return resp.FirstText()
}
