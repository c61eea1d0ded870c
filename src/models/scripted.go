package models

import (
	"context"
	"errors"
	"fmt"
)

// ScriptedCaller replays a fixed sequence of responses and records every
// request it sees. It is a lightweight ToolCaller for local testing without
// API calls.
type ScriptedCaller struct {
	Responses []ChatResponse
	Errs      []error
	Requests  []ChatRequest
}

// NewScriptedCaller builds a caller that answers each call with the next
// response in order.
func NewScriptedCaller(responses ...ChatResponse) *ScriptedCaller {
	return &ScriptedCaller{Responses: responses}
}

// TextResponse is a convenience for a plain end-turn answer.
func TextResponse(text string) ChatResponse {
	return ChatResponse{
		StopReason: StopReasonEndTurn,
		Content:    []ContentBlock{TextBlock(text)},
	}
}

// ToolUseResponse is a convenience for a response requesting tool calls.
func ToolUseResponse(calls ...ContentBlock) ChatResponse {
	return ChatResponse{StopReason: StopReasonToolUse, Content: calls}
}

func (s *ScriptedCaller) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	call := len(s.Requests)
	s.Requests = append(s.Requests, req)
	if call < len(s.Errs) && s.Errs[call] != nil {
		return ChatResponse{}, s.Errs[call]
	}
	if call >= len(s.Responses) {
		return ChatResponse{}, fmt.Errorf("%w after %d calls", ErrScriptExhausted, len(s.Responses))
	}
	return s.Responses[call], nil
}

// CallCount reports how many times Chat ran.
func (s *ScriptedCaller) CallCount() int { return len(s.Requests) }

// ErrScriptExhausted is kept for callers that want to distinguish script
// overruns from provider failures in table tests.
var ErrScriptExhausted = errors.New("scripted caller exhausted")

var _ ToolCaller = (*ScriptedCaller)(nil)
