package models

import "context"

// Message roles and stop reasons follow the provider's wire vocabulary.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StopReasonToolUse = "tool_use"
	StopReasonEndTurn = "end_turn"
)

// Content block kinds.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ToolInputSchema is the JSON-schema-shaped parameter spec advertised to the
// model for one tool.
type ToolInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// ToolDefinition declares a callable capability to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ToolInputSchema `json:"input_schema"`
}

// ContentBlock is one element of a message. Exactly one of the variants is
// meaningful, selected by Type.
type ContentBlock struct {
	Type string

	// BlockText
	Text string

	// BlockToolUse
	ID    string
	Name  string
	Input map[string]any

	// BlockToolResult
	ToolUseID string
	Content   string
	IsError   bool
}

// TextBlock builds a plain text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock builds a tool result tagged with the originating call ID.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one turn of the conversation transcript.
type Message struct {
	Role    string
	Content []ContentBlock
}

// UserText builds a user message holding a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// UserBlocks builds a user message from arbitrary blocks (tool results).
func UserBlocks(blocks []ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks}
}

// AssistantBlocks builds an assistant message from response blocks.
func AssistantBlocks(blocks []ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// ChatRequest is a single structured call to the model.
type ChatRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
	// AutoToolChoice asks the model to decide for itself whether to call a
	// tool. Only meaningful when Tools is non-empty.
	AutoToolChoice bool
}

// ChatResponse carries the model's stop reason and ordered content blocks.
type ChatResponse struct {
	StopReason string
	Content    []ContentBlock
}

// FirstText returns the first text block's content, or "".
func (r ChatResponse) FirstText() string {
	for _, block := range r.Content {
		if block.Type == BlockText {
			return block.Text
		}
	}
	return ""
}

// ToolCalls returns the tool-use blocks in response order.
func (r ChatResponse) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, block := range r.Content {
		if block.Type == BlockToolUse {
			calls = append(calls, block)
		}
	}
	return calls
}

// ToolCaller is a text-generation backend that understands the structured
// tool-use protocol.
type ToolCaller interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
