// Package graph provides the core Pregel-style workflow execution engine:
// a schema-described, channel-merged state threaded through a graph of
// nodes, executed in Bulk-Synchronous-Parallel supersteps with
// checkpointing, human-in-the-loop interrupts, and per-node retry.
package graph

// Predicate evaluates the frozen state at the end of a superstep to
// decide whether a conditional edge should fire. Predicates should be
// pure: same state in, same bool out, every time.
type Predicate func(state State) bool

// defaultBranch is the reserved branches map key a conditional edge
// falls back to when Router returns a label with no matching entry.
const defaultBranch = "default"

// Router evaluates the frozen state to choose among several named
// branches rather than a single true/false predicate. Each returned
// element is either a string (a branch name, resolved through the
// edge's branches map -- falling back to the "default" key if present,
// or an error if not) or a Send (scheduled as its own work item in the
// next superstep's frontier, bypassing the branches map entirely; it does
// not run in the superstep whose end evaluated the router). Any other element
// type is an InvalidGraph. This is the engine's conditional-edge
// primitive (spec's "conditional edges" with a branch-name map plus
// path_fn-returns-Send), distinct from Predicate which only supports a
// single optional edge.
type Router func(state State) []any

// edgeKind discriminates how an edge resolves its target(s) at runtime.
type edgeKind int

const (
	edgeStatic edgeKind = iota
	edgeConditional
	edgeWaiting
)

// edge is the builder's internal record for one wired connection out of a
// node (or out of START).
type edge struct {
	kind edgeKind

	from string // static/conditional: the single source node
	to   string // static: the single destination node

	router   Router            // conditional: resolves branch name(s)/Send(s)
	branches map[string]string // conditional: branch name -> destination node

	waitFor []string // waiting: all of these nodes must complete this step
	waitTo  string   // waiting: destination once every waitFor member has run
}

// resolveConditional evaluates a conditional edge's router against state
// at run time; GraphBuilder.AddConditionalEdges is where such an edge is
// recorded. Kept here to group edge-resolution logic in one file,
// mirroring the teacher's separation of edge.go (types) from engine.go
// (dispatch).
//
// It splits the router's results into plain destination node names
// (resolved through e.branches, falling back to the "default" key for
// anything unmapped) and Send values (passed through untouched; the
// callers add each one to the next frontier as its own work item).
func resolveConditional(e *edge, state State) (dests []string, sends []Send, err error) {
	for _, r := range e.router(state) {
		switch v := r.(type) {
		case Send:
			sends = append(sends, v)
		case string:
			dest, ok := e.branches[v]
			if !ok {
				dest, ok = e.branches[defaultBranch]
			}
			if !ok {
				return nil, nil, NewInvalidGraph("conditional edge from " + e.from + " returned unknown branch " + v)
			}
			dests = append(dests, dest)
		default:
			return nil, nil, NewInvalidGraph("conditional edge from " + e.from + " router returned an unsupported value")
		}
	}
	return dests, sends, nil
}
