package graph

import (
	"context"
	"testing"
)

func TestNodeFuncAdapter_IgnoresSendArg(t *testing.T) {
	var sawState State
	fn := NodeFunc(func(ctx context.Context, state State) NodeResult {
		sawState = state
		return NodeResult{Update: State{"out": "done"}}
	})
	adapter := nodeFuncAdapter{fn: fn}

	result := adapter.run(context.Background(), State{"in": 1}, "ignored-arg", true)
	if result.Update["out"] != "done" {
		t.Errorf("expected update out=done, got %v", result.Update)
	}
	if sawState["in"] != 1 {
		t.Errorf("expected node to see frozen state, got %v", sawState)
	}
}

func TestSendFuncAdapter_ReceivesArg(t *testing.T) {
	var sawArg any
	fn := SendFunc(func(ctx context.Context, state State, arg any) NodeResult {
		sawArg = arg
		return NodeResult{Update: State{"arg_seen": arg}}
	})
	adapter := sendFuncAdapter{fn: fn}

	result := adapter.run(context.Background(), State{}, "chunk-3", true)
	if sawArg != "chunk-3" {
		t.Errorf("expected arg %q, got %v", "chunk-3", sawArg)
	}
	if result.Update["arg_seen"] != "chunk-3" {
		t.Errorf("expected update to carry the arg, got %v", result.Update)
	}
}

func TestSendFuncAdapter_NilArgWhenReachedStatically(t *testing.T) {
	var sawArg any
	fn := SendFunc(func(ctx context.Context, state State, arg any) NodeResult {
		sawArg = arg
		return NodeResult{}
	})
	adapter := sendFuncAdapter{fn: fn}
	adapter.run(context.Background(), State{}, nil, false)
	if sawArg != nil {
		t.Errorf("expected nil arg for a statically-reached send node, got %v", sawArg)
	}
}

func TestStateClone_IsShallowCopyNotAlias(t *testing.T) {
	original := State{"count": 1}
	clone := original.Clone()
	clone["count"] = 2

	if original["count"] != 1 {
		t.Errorf("expected original unaffected by clone mutation, got %v", original["count"])
	}
	if clone["count"] != 2 {
		t.Errorf("expected clone mutation to stick, got %v", clone["count"])
	}
}
