package models

import (
	"context"
	"encoding/json"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM implements ToolCaller using Anthropic's Messages API.
type AnthropicLLM struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicLLM constructs a client. An empty apiKey falls back to
// ANTHROPIC_API_KEY from the env.
func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(apiKey),
	)
	return &AnthropicLLM{
		Client:    &cl,
		Model:     model, // e.g. "claude-sonnet-4-20250514"
		MaxTokens: 800,
	}
}

// Chat issues one Messages API call, translating between the neutral chat
// shape and the SDK's params.
func (a *AnthropicLLM) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(a.MaxTokens),
		Temperature: anthropic.Float(0),
		Messages:    messageParams(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toolParams(req.Tools)
		if req.AutoToolChoice {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAuto: &anthropic.ToolChoiceAutoParam{},
			}
		}
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, err
	}

	resp := ChatResponse{StopReason: string(msg.StopReason)}
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content = append(resp.Content, TextBlock(block.Text))
		case anthropic.ToolUseBlock:
			input := map[string]any{}
			_ = json.Unmarshal([]byte(block.JSON.Input.Raw()), &input)
			resp.Content = append(resp.Content, ContentBlock{
				Type:  BlockToolUse,
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	return resp, nil
}

func messageParams(messages []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			case BlockToolUse:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    block.ID,
						Name:  block.Name,
						Input: block.Input,
					},
				})
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolUseID, block.Content, block.IsError))
			}
		}
		if msg.Role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		} else {
			params = append(params, anthropic.NewUserMessage(blocks...))
		}
	}
	return params
}

func toolParams(defs []ToolDefinition) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		tool := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: def.InputSchema.Properties,
				Required:   def.InputSchema.Required,
			},
		}
		params = append(params, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return params
}

var _ ToolCaller = (*AnthropicLLM)(nil)
