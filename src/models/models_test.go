package models

import (
	"context"
	"errors"
	"testing"
)

func TestFirstTextSkipsNonTextBlocks(t *testing.T) {
	resp := ChatResponse{
		StopReason: StopReasonToolUse,
		Content: []ContentBlock{
			{Type: BlockToolUse, ID: "c1", Name: "search_course_content"},
			TextBlock("after the call"),
		},
	}
	if got := resp.FirstText(); got != "after the call" {
		t.Fatalf("want text block content, got %q", got)
	}
}

func TestFirstTextEmptyResponse(t *testing.T) {
	if got := (ChatResponse{}).FirstText(); got != "" {
		t.Fatalf("want empty string, got %q", got)
	}
}

func TestToolCallsPreserveOrder(t *testing.T) {
	resp := ToolUseResponse(
		ContentBlock{Type: BlockToolUse, ID: "c1", Name: "get_course_outline"},
		ContentBlock{Type: BlockToolUse, ID: "c2", Name: "search_course_content"},
	)
	calls := resp.ToolCalls()
	if len(calls) != 2 || calls[0].ID != "c1" || calls[1].ID != "c2" {
		t.Fatalf("call order lost: %+v", calls)
	}
}

func TestScriptedCallerReplaysInOrder(t *testing.T) {
	s := NewScriptedCaller(TextResponse("one"), TextResponse("two"))

	first, err := s.Chat(context.Background(), ChatRequest{System: "sys"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if first.FirstText() != "one" {
		t.Fatalf("want first response, got %q", first.FirstText())
	}
	second, _ := s.Chat(context.Background(), ChatRequest{})
	if second.FirstText() != "two" {
		t.Fatalf("want second response, got %q", second.FirstText())
	}
	if s.CallCount() != 2 || s.Requests[0].System != "sys" {
		t.Fatalf("requests not recorded: %+v", s.Requests)
	}
}

func TestScriptedCallerExhaustion(t *testing.T) {
	s := NewScriptedCaller(TextResponse("only"))
	if _, err := s.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	_, err := s.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrScriptExhausted) {
		t.Fatalf("want ErrScriptExhausted, got %v", err)
	}
}
