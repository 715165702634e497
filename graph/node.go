package graph

import "context"

// START and END are the two sentinel node names every graph is built
// around: the builder wires the entry edge from START, and any node
// whose routing names END terminates that branch of the run.
const (
	START = "__start__"
	END   = "__end__"
)

// NodeResult is the value a node body returns. Exactly one of its
// meaningful fields is populated in a well-formed node: a plain state
// update (Update, leaving Command nil), or a Command (routing and/or
// resume alongside or instead of an update), or an Interrupt (pausing the
// run), or Err. Modeling it as a struct with optional fields rather than
// a Go sum type (which the language does not have) mirrors the teacher's
// own NodeResult[S]{Delta, Route, Err} shape, widened for Command/Send/
// Interrupt per the spec's richer node-result vocabulary.
type NodeResult struct {
	// Update is a partial state write, merged field-by-field through the
	// schema's reducers/channels.
	Update State
	// Command, if non-nil, additionally (or instead) carries routing,
	// a resume value, and/or its own Update (which takes precedence over
	// the sibling Update field if both are set).
	Command *Command
	// Sends schedules extra same-superstep invocations beyond whatever
	// static/conditional routing applies.
	Sends []Send
	// Interrupt, if non-nil, pauses the run at the end of this superstep,
	// surfacing Interrupt to the caller as part of a GraphInterrupt. This
	// node's own update is not merged; the node is scheduled again and
	// runs afresh when the thread is resumed.
	Interrupt *Interrupt
	// Err fails the node. A non-nil Err takes precedence over every
	// other field and is subject to the node's RetryPolicy.
	Err error
}

// NodeFunc is the single-argument node signature: a plain function from
// (ctx, frozen state) to NodeResult. Most node bodies are written this
// way.
type NodeFunc func(ctx context.Context, state State) NodeResult

// SendFunc is the two-argument node signature used by nodes invoked via
// Send: it additionally receives the per-invocation argument carried by
// the Send, alongside the frozen top-level state at the time the Send was
// issued.
type SendFunc func(ctx context.Context, state State, arg any) NodeResult

// Node is the common execution interface the executor dispatches
// through. Both arities adapt to it so the scheduler does not need to
// distinguish them once a run is underway.
type Node interface {
	run(ctx context.Context, state State, arg any, hasArg bool) NodeResult
}

// nodeFuncAdapter adapts a NodeFunc to Node, ignoring any Send argument
// (a statically- or conditionally-routed invocation never carries one).
type nodeFuncAdapter struct{ fn NodeFunc }

func (a nodeFuncAdapter) run(ctx context.Context, state State, _ any, _ bool) NodeResult {
	return a.fn(ctx, state)
}

// sendFuncAdapter adapts a SendFunc to Node. If invoked without a Send
// argument (i.e. reached by a static/conditional edge rather than a
// Send), arg is nil and hasArg is false.
type sendFuncAdapter struct{ fn SendFunc }

func (a sendFuncAdapter) run(ctx context.Context, state State, arg any, _ bool) NodeResult {
	return a.fn(ctx, state, arg)
}

// Metadata carries builder-supplied, non-semantic annotations about a
// node (owner, description, tags for filtering in tooling) that never
// affect execution.
type Metadata map[string]any

// nodeSpec is the builder's internal record for one registered node: its
// body, optional metadata, and optional retry/cache policies.
type nodeSpec struct {
	name     string
	node     Node
	metadata Metadata
	retry    *RetryPolicy
	cache    *CachePolicy
}
