package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/lattice-run/pregel/graph"
	"github.com/lattice-run/pregel/graph/tool"
)

func TestChatNode_WritesOutputField(t *testing.T) {
	model := &MockChatModel{Responses: []ChatOut{{Text: "hi there"}}}
	node := ChatNode(model, ChatNodeConfig{
		MessagesField: "messages",
		OutputField:   "reply",
	})

	state := graph.State{"messages": []Message{{Role: RoleUser, Content: "hello"}}}
	result := node(context.Background(), state)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Update["reply"] != "hi there" {
		t.Errorf("expected reply = %q, got %v", "hi there", result.Update["reply"])
	}
}

func TestChatNode_MissingMessagesField(t *testing.T) {
	model := &MockChatModel{}
	node := ChatNode(model, ChatNodeConfig{MessagesField: "messages", OutputField: "reply"})

	result := node(context.Background(), graph.State{})
	if result.Err == nil {
		t.Fatal("expected error for missing messages field")
	}
}

func TestChatNode_PropagatesModelError(t *testing.T) {
	model := &MockChatModel{Err: errors.New("provider unavailable")}
	node := ChatNode(model, ChatNodeConfig{MessagesField: "messages", OutputField: "reply"})

	state := graph.State{"messages": []Message{{Role: RoleUser, Content: "hello"}}}
	result := node(context.Background(), state)

	if result.Err == nil {
		t.Fatal("expected error from model")
	}
}

func TestChatNode_ToolCallsSurfaced(t *testing.T) {
	model := &MockChatModel{Responses: []ChatOut{{
		ToolCalls: []ToolCall{{Name: "search", Input: map[string]interface{}{"q": "go"}}},
	}}}
	node := ChatNode(model, ChatNodeConfig{
		MessagesField:  "messages",
		OutputField:    "reply",
		ToolsField:     "tools",
		ToolCallsField: "tool_calls",
	})

	state := graph.State{
		"messages": []Message{{Role: RoleUser, Content: "search for go"}},
		"tools":    []ToolSpec{{Name: "search", Description: "web search"}},
	}
	result := node(context.Background(), state)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	calls, ok := result.Update["tool_calls"].([]ToolCall)
	if !ok || len(calls) != 1 || calls[0].Name != "search" {
		t.Errorf("expected tool_calls = [{search ...}], got %v", result.Update["tool_calls"])
	}
}

func TestChatNode_RecordsCost(t *testing.T) {
	model := &MockChatModel{Responses: []ChatOut{{Text: "a reasonably long reply"}}}
	tracker := NewCostTracker("run-1", "USD")
	node := ChatNode(model, ChatNodeConfig{
		MessagesField: "messages",
		OutputField:   "reply",
		Tracker:       tracker,
		ModelName:     "claude-3-opus-20240229",
	})

	state := graph.State{"messages": []Message{{Role: RoleUser, Content: "tell me about Go channels"}}}
	if result := node(context.Background(), state); result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}

	if len(tracker.GetCallHistory()) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(tracker.GetCallHistory()))
	}
}

func TestToolNode_ExecutesKnownTool(t *testing.T) {
	registry := map[string]tool.Tool{
		"search": &tool.MockTool{ToolName: "search", Responses: []map[string]interface{}{{"hits": 3}}},
	}
	node := ToolNode(registry, ToolNodeConfig{ToolCallsField: "tool_calls", ResultsField: "tool_results"})

	state := graph.State{"tool_calls": []ToolCall{{Name: "search", Input: map[string]interface{}{"q": "go"}}}}
	result := node(context.Background(), state)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	results, ok := result.Update["tool_results"].([]ToolResult)
	if !ok || len(results) != 1 || results[0].Name != "search" || results[0].Output["hits"] != 3 {
		t.Errorf("unexpected tool_results: %v", result.Update["tool_results"])
	}
}

func TestToolNode_UnknownToolProducesErrResult(t *testing.T) {
	node := ToolNode(map[string]tool.Tool{}, ToolNodeConfig{ToolCallsField: "tool_calls", ResultsField: "tool_results"})

	state := graph.State{"tool_calls": []ToolCall{{Name: "missing"}}}
	result := node(context.Background(), state)

	if result.Err != nil {
		t.Fatalf("unexpected node error: %v", result.Err)
	}
	results := result.Update["tool_results"].([]ToolResult)
	if len(results) != 1 || results[0].Err == "" {
		t.Errorf("expected an error result for unknown tool, got %v", results)
	}
}

func TestToolNode_ToolErrorCaptured(t *testing.T) {
	registry := map[string]tool.Tool{
		"flaky": &tool.MockTool{ToolName: "flaky", Err: errors.New("upstream timeout")},
	}
	node := ToolNode(registry, ToolNodeConfig{ToolCallsField: "tool_calls", ResultsField: "tool_results"})

	state := graph.State{"tool_calls": []ToolCall{{Name: "flaky"}}}
	result := node(context.Background(), state)

	results := result.Update["tool_results"].([]ToolResult)
	if len(results) != 1 || results[0].Err != "upstream timeout" {
		t.Errorf("expected captured tool error, got %v", results)
	}
}
