// Package graph provides the core Pregel-style workflow execution engine.
package graph

import (
	"errors"
	"fmt"
)

// GraphError is the base error type for all errors raised by the executor.
// Every other error in this taxonomy embeds or satisfies GraphError so
// callers can use a single errors.As(&GraphError{}) check as a catch-all,
// while still discriminating on the concrete type for finer handling.
type GraphError struct {
	// Code is a short machine-readable identifier, stable across versions.
	Code string
	// Message is a human-readable description.
	Message string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// As lets errors.As match any error of this taxonomy (each embeds
// *GraphError, so the method is promoted) against a *GraphError target.
func (e *GraphError) As(target any) bool {
	if t, ok := target.(**GraphError); ok {
		*t = e
		return true
	}
	return false
}

// GraphRecursion is raised when a run exceeds its configured recursion
// limit (the maximum number of supersteps) without reaching a frontier
// that only contains END.
type GraphRecursion struct {
	*GraphError
	Limit int
}

// NewGraphRecursion builds a GraphRecursion for the given limit.
func NewGraphRecursion(limit int) *GraphRecursion {
	return &GraphRecursion{
		GraphError: &GraphError{Code: "GRAPH_RECURSION", Message: fmt.Sprintf("recursion limit of %d supersteps exceeded", limit)},
		Limit:      limit,
	}
}

// InvalidUpdate is raised when a superstep's writes violate a channel's
// write discipline: two nodes in the same step wrote to the same
// last-value or ephemeral-guarded field.
type InvalidUpdate struct {
	*GraphError
	Field string
	Nodes [2]string
}

// NewInvalidUpdate builds an InvalidUpdate naming the offending field and
// the lexicographically-smallest colliding pair of node names.
func NewInvalidUpdate(field, nodeA, nodeB string) *InvalidUpdate {
	if nodeB < nodeA {
		nodeA, nodeB = nodeB, nodeA
	}
	return &InvalidUpdate{
		GraphError: &GraphError{
			Code:    "INVALID_UPDATE",
			Message: fmt.Sprintf("field %q written by more than one node in the same step (%s, %s)", field, nodeA, nodeB),
		},
		Field: field,
		Nodes: [2]string{nodeA, nodeB},
	}
}

// EmptyChannel is raised when a Topic channel (accumulate-only, no
// default) is read before any node has ever written to it.
type EmptyChannel struct {
	*GraphError
	Field string
}

// NewEmptyChannel builds an EmptyChannel for the given field.
func NewEmptyChannel(field string) *EmptyChannel {
	return &EmptyChannel{
		GraphError: &GraphError{Code: "EMPTY_CHANNEL", Message: fmt.Sprintf("channel %q read before any write", field)},
		Field:      field,
	}
}

// InvalidGraph is raised by Compile (or, for Command.graph, by the
// executor) when the graph's static structure violates a builder
// invariant: a node with no outbound edge, a duplicate node name, an
// unresolved conditional branch name, or a non-nil Command.graph.
type InvalidGraph struct {
	*GraphError
}

// NewInvalidGraph builds an InvalidGraph with the given reason.
func NewInvalidGraph(reason string) *InvalidGraph {
	return &InvalidGraph{GraphError: &GraphError{Code: "INVALID_GRAPH", Message: reason}}
}

// NodeExecution wraps an error raised by a node body, after retries (if
// any) have been exhausted.
type NodeExecution struct {
	*GraphError
	Node  string
	Cause error
}

// NewNodeExecution wraps cause as a NodeExecution for the named node.
func NewNodeExecution(node string, cause error) *NodeExecution {
	return &NodeExecution{
		GraphError: &GraphError{Code: "NODE_EXECUTION", Message: fmt.Sprintf("node %q: %v", node, cause)},
		Node:       node,
		Cause:      cause,
	}
}

// Unwrap exposes the wrapped node error to errors.Is/errors.As.
func (e *NodeExecution) Unwrap() error { return e.Cause }

// GraphInterrupt is not a failure: it is the orderly-pause signal raised
// when a node (or an interrupt_before/interrupt_after boundary) requests
// that the run stop and return control to the caller. It carries every
// Interrupt raised during the step that paused.
type GraphInterrupt struct {
	*GraphError
	Interrupts []Interrupt
}

// NewGraphInterrupt builds a GraphInterrupt carrying the given interrupts.
func NewGraphInterrupt(interrupts []Interrupt) *GraphInterrupt {
	return &GraphInterrupt{
		GraphError: &GraphError{Code: "GRAPH_INTERRUPT", Message: fmt.Sprintf("%d interrupt(s) raised", len(interrupts))},
		Interrupts: interrupts,
	}
}

// EmptyInput is raised when Invoke is called with a nil input, or with a
// non-mapping input while a Schema is configured (Open Question
// resolution: non-mapping input is only accepted schema-less, under the
// reserved "__root__" key).
type EmptyInput struct {
	*GraphError
}

// NewEmptyInput builds an EmptyInput with the given reason.
func NewEmptyInput(reason string) *EmptyInput {
	return &EmptyInput{GraphError: &GraphError{Code: "EMPTY_INPUT", Message: reason}}
}

// TaskNotFound is raised by Resume when the thread has no checkpoint, or
// when its latest checkpoint has no pending node left to run. GetState
// and UpdateState return the store's own error for a missing checkpoint
// instead.
type TaskNotFound struct {
	*GraphError
}

// NewTaskNotFound builds a TaskNotFound with the given reason.
func NewTaskNotFound(reason string) *TaskNotFound {
	return &TaskNotFound{GraphError: &GraphError{Code: "TASK_NOT_FOUND", Message: reason}}
}

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate when the
// policy's fields are internally inconsistent.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrNoRunnableNodes names the condition of a superstep frontier that is
// empty before the run has reached END. The executor never returns it:
// an empty frontier simply ends the run.
var ErrNoRunnableNodes = errors.New("no runnable nodes in frontier")
