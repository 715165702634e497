package llm

import (
	"context"
	"fmt"

	"github.com/lattice-run/pregel/graph"
	"github.com/lattice-run/pregel/graph/tool"
)

// ChatNodeConfig wires a ChatModel into a node body: which state field
// holds the conversation, which field receives the reply, and (if set)
// which tools the model may call.
type ChatNodeConfig struct {
	// MessagesField names the state field holding []Message. Required.
	MessagesField string
	// OutputField names the state field the node writes the reply's Text
	// into. Required.
	OutputField string
	// ToolsField, if non-empty, names a state field holding []ToolSpec to
	// offer the model; omitted (nil tools) if the field is empty or absent.
	ToolsField string
	// ToolCallsField, if non-empty, receives out.ToolCalls when the model
	// requests tool invocations.
	ToolCallsField string
	// Tracker, if non-nil, records an estimated token cost for every call.
	Tracker *CostTracker
	// ModelName labels calls recorded against Tracker.
	ModelName string
}

// ChatNode adapts model into a graph.NodeFunc: it reads cfg.MessagesField
// (and, if configured, cfg.ToolsField) from the frozen state, calls
// model.Chat, and returns an Update carrying the reply under
// cfg.OutputField (and cfg.ToolCallsField, if configured and the reply
// requested tools).
func ChatNode(model ChatModel, cfg ChatNodeConfig) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) graph.NodeResult {
		messages, err := messagesFromState(state, cfg.MessagesField)
		if err != nil {
			return graph.NodeResult{Err: err}
		}

		var tools []ToolSpec
		if cfg.ToolsField != "" {
			tools, err = toolsFromState(state, cfg.ToolsField)
			if err != nil {
				return graph.NodeResult{Err: err}
			}
		}

		out, err := model.Chat(ctx, messages, tools)
		if err != nil {
			return graph.NodeResult{Err: err}
		}

		if cfg.Tracker != nil {
			in, outTok := estimateTokens(messages), estimateTokens([]Message{{Content: out.Text}})
			if err := cfg.Tracker.RecordLLMCall(cfg.ModelName, in, outTok, ""); err != nil {
				return graph.NodeResult{Err: err}
			}
		}

		update := graph.State{cfg.OutputField: out.Text}
		if cfg.ToolCallsField != "" && len(out.ToolCalls) > 0 {
			update[cfg.ToolCallsField] = out.ToolCalls
		}
		return graph.NodeResult{Update: update}
	}
}

func messagesFromState(state graph.State, field string) ([]Message, error) {
	v, ok := state[field]
	if !ok {
		return nil, fmt.Errorf("llm: state field %q not present", field)
	}
	messages, ok := v.([]Message)
	if !ok {
		return nil, fmt.Errorf("llm: state field %q is %T, want []llm.Message", field, v)
	}
	return messages, nil
}

func toolsFromState(state graph.State, field string) ([]ToolSpec, error) {
	v, ok := state[field]
	if !ok || v == nil {
		return nil, nil
	}
	tools, ok := v.([]ToolSpec)
	if !ok {
		return nil, fmt.Errorf("llm: state field %q is %T, want []llm.ToolSpec", field, v)
	}
	return tools, nil
}

// ToolNodeConfig wires a tool registry into a node body: which state
// field carries the pending ToolCalls from a prior ChatNode turn, and
// which field receives the executed results.
type ToolNodeConfig struct {
	// ToolCallsField names the state field holding []ToolCall. Required.
	ToolCallsField string
	// ResultsField names the state field the node writes
	// []ToolResult into. Required.
	ResultsField string
}

// ToolResult pairs a tool invocation's name with its output or error, for
// folding back into a conversation's next turn.
type ToolResult struct {
	Name   string
	Output map[string]interface{}
	Err    string
}

// ToolNode adapts a registry of tool.Tool implementations into a
// graph.NodeFunc: it reads cfg.ToolCallsField from the frozen state,
// invokes the matching tool for each call, and returns the collected
// results under cfg.ResultsField. A call naming a tool absent from
// registry produces a ToolResult carrying Err rather than failing the
// node outright, so one bad tool name doesn't abort an otherwise
// resolvable turn.
func ToolNode(registry map[string]tool.Tool, cfg ToolNodeConfig) graph.NodeFunc {
	return func(ctx context.Context, state graph.State) graph.NodeResult {
		v, ok := state[cfg.ToolCallsField]
		if !ok {
			return graph.NodeResult{Err: fmt.Errorf("llm: state field %q not present", cfg.ToolCallsField)}
		}
		calls, ok := v.([]ToolCall)
		if !ok {
			return graph.NodeResult{Err: fmt.Errorf("llm: state field %q is %T, want []llm.ToolCall", cfg.ToolCallsField, v)}
		}

		results := make([]ToolResult, 0, len(calls))
		for _, call := range calls {
			t, ok := registry[call.Name]
			if !ok {
				results = append(results, ToolResult{Name: call.Name, Err: fmt.Sprintf("unknown tool %q", call.Name)})
				continue
			}
			out, err := t.Call(ctx, call.Input)
			if err != nil {
				results = append(results, ToolResult{Name: call.Name, Err: err.Error()})
				continue
			}
			results = append(results, ToolResult{Name: call.Name, Output: out})
		}

		return graph.NodeResult{Update: graph.State{cfg.ResultsField: results}}
	}
}

// estimateTokens approximates token count at four characters per token, a
// common rough heuristic absent a provider-returned usage count (ChatOut
// carries none).
func estimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}
