package graph

import "fmt"

// GraphBuilder accumulates nodes and edges and validates them into a
// CompiledGraph. It generalizes the teacher's Engine.Add/StartAt/Connect
// mutate-in-place API (graph/engine.go) into an explicit builder +
// Compile step, because this spec requires a frozen, validated graph
// object distinct from the mutable executor state that runs it.
type GraphBuilder struct {
	schema    *Schema
	nodes     map[string]*nodeSpec
	order     []string
	edges     map[string][]*edge // from node name -> edges leaving it
	entry     string
	entryEdge *edge // set by SetConditionalEntryPoint instead of entry
	err       error
}

// NewGraphBuilder starts a builder for a workflow whose state follows
// schema. A nil schema is valid (every field falls back to Replace/
// LastValue with no default).
func NewGraphBuilder(schema *Schema) *GraphBuilder {
	return &GraphBuilder{
		schema: schema,
		nodes:  make(map[string]*nodeSpec),
		edges:  make(map[string][]*edge),
	}
}

func (b *GraphBuilder) fail(err error) *GraphBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddNode registers a single-argument node body under name.
func (b *GraphBuilder) AddNode(name string, fn NodeFunc, opts ...NodeOption) *GraphBuilder {
	return b.addNode(name, nodeFuncAdapter{fn: fn}, opts...)
}

// AddSendNode registers a two-argument node body (one reachable via
// Send, carrying a per-invocation argument) under name.
func (b *GraphBuilder) AddSendNode(name string, fn SendFunc, opts ...NodeOption) *GraphBuilder {
	return b.addNode(name, sendFuncAdapter{fn: fn}, opts...)
}

func (b *GraphBuilder) addNode(name string, n Node, opts ...NodeOption) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if name == "" || name == START || name == END {
		return b.fail(NewInvalidGraph(fmt.Sprintf("node name %q is reserved or empty", name)))
	}
	if _, dup := b.nodes[name]; dup {
		return b.fail(NewInvalidGraph(fmt.Sprintf("duplicate node name %q", name)))
	}
	spec := &nodeSpec{name: name, node: n}
	for _, opt := range opts {
		opt(spec)
	}
	b.nodes[name] = spec
	b.order = append(b.order, name)
	return b
}

// NodeOption customizes a node at registration time.
type NodeOption func(*nodeSpec)

// WithMetadata attaches non-semantic metadata to a node.
func WithMetadata(m Metadata) NodeOption {
	return func(s *nodeSpec) { s.metadata = m }
}

// WithRetryPolicy attaches a retry policy to a node.
func WithRetryPolicy(rp RetryPolicy) NodeOption {
	return func(s *nodeSpec) { s.retry = &rp }
}

// WithCachePolicy attaches a cache policy to a node.
func WithCachePolicy(cp CachePolicy) NodeOption {
	return func(s *nodeSpec) { s.cache = &cp }
}

// SetEntryPoint wires the implicit START node to name.
func (b *GraphBuilder) SetEntryPoint(name string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.entry = name
	return b
}

// SetConditionalEntryPoint picks the first node(s) to run from the seeded
// initial state rather than a fixed name: router resolves the state to
// one or more branch names, each of which must appear as a key in
// branches (mapping to the destination node, which may be END). Mutually
// exclusive with SetEntryPoint.
func (b *GraphBuilder) SetConditionalEntryPoint(router Router, branches map[string]string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if len(branches) == 0 {
		return b.fail(NewInvalidGraph("conditional entry point has no branches"))
	}
	b.entryEdge = &edge{kind: edgeConditional, from: START, router: router, branches: branches}
	return b
}

// SetFinishPoint wires an implicit edge from name to END, the routing
// counterpart to SetEntryPoint for a terminal node that doesn't already
// have its own AddEdge(name, END) call.
func (b *GraphBuilder) SetFinishPoint(name string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	return b.AddEdge(name, END)
}

// SequenceStep names one node in a linear chain wired by AddSequence.
type SequenceStep struct {
	Name string
	Fn   NodeFunc
	Opts []NodeOption
}

// AddSequence registers each step as a node, in order, and wires a
// static edge from each to the next -- shorthand for the common case of
// a linear chain that would otherwise take one AddNode and one AddEdge
// call per step.
func (b *GraphBuilder) AddSequence(steps ...SequenceStep) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if len(steps) == 0 {
		return b.fail(NewInvalidGraph("add_sequence called with no steps"))
	}
	for _, s := range steps {
		b.AddNode(s.Name, s.Fn, s.Opts...)
	}
	for i := 0; i < len(steps)-1; i++ {
		b.AddEdge(steps[i].Name, steps[i+1].Name)
	}
	return b
}

// AddEdge wires an unconditional edge from -> to. from may be START; to
// may be END.
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.edges[from] = append(b.edges[from], &edge{kind: edgeStatic, from: from, to: to})
	return b
}

// AddConditionalEdges wires a conditional edge from: router resolves the
// frozen state to one or more branch names, each of which must appear as
// a key in branches (mapping to the destination node, which may be END).
func (b *GraphBuilder) AddConditionalEdges(from string, router Router, branches map[string]string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if len(branches) == 0 {
		return b.fail(NewInvalidGraph("conditional edge from " + from + " has no branches"))
	}
	b.edges[from] = append(b.edges[from], &edge{
		kind:     edgeConditional,
		from:     from,
		router:   router,
		branches: branches,
	})
	return b
}

// AddWaitingEdge wires a join: to only becomes runnable once every node
// named in waitFor has completed in the same superstep (fan-in
// counterpart to Send's fan-out).
func (b *GraphBuilder) AddWaitingEdge(waitFor []string, to string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if len(waitFor) == 0 {
		return b.fail(NewInvalidGraph("waiting edge to " + to + " names no source nodes"))
	}
	for _, from := range waitFor {
		b.edges[from] = append(b.edges[from], &edge{kind: edgeWaiting, from: from, waitFor: waitFor, waitTo: to})
	}
	return b
}

// CompiledGraph is the immutable, validated result of Compile. It is safe
// for concurrent use by multiple NewExecutor callers (it holds no
// per-run state).
type CompiledGraph struct {
	schema    *Schema
	nodes     map[string]*nodeSpec
	order     []string
	edges     map[string][]*edge
	entry     string
	entryEdge *edge
}

// Compile validates the accumulated nodes and edges and returns an
// immutable CompiledGraph, or the first InvalidGraph-class error
// encountered during construction or validation.
//
// Validation enforces:
//   - every AddNode/AddEdge/etc. call that was given succeeded (no
//     duplicate names, no empty branch maps);
//   - an entry point was set;
//   - the entry point and every edge endpoint (other than END) names a
//     registered node;
//   - every node has at least one outbound edge (a node with no way to
//     ever route anywhere, including implicitly to END, is a builder
//     mistake, not a valid terminal node -- terminal nodes must route to
//     END explicitly).
func (b *GraphBuilder) Compile() (*CompiledGraph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.entry == "" && b.entryEdge == nil {
		return nil, NewInvalidGraph("no entry point set")
	}
	if b.entry != "" && b.entryEdge != nil {
		return nil, NewInvalidGraph("both SetEntryPoint and SetConditionalEntryPoint were called")
	}
	if b.entry != "" {
		if _, ok := b.nodes[b.entry]; !ok {
			return nil, NewInvalidGraph("entry point " + b.entry + " is not a registered node")
		}
	}
	if b.entryEdge != nil {
		if err := b.validateEdgeTargets(b.entryEdge); err != nil {
			return nil, err
		}
	}
	for name := range b.nodes {
		if len(b.edges[name]) == 0 {
			return nil, NewInvalidGraph("node " + name + " has no outbound edge")
		}
		for _, e := range b.edges[name] {
			if err := b.validateEdgeTargets(e); err != nil {
				return nil, err
			}
		}
	}
	for from, es := range b.edges {
		if from == START {
			for _, e := range es {
				if err := b.validateEdgeTargets(e); err != nil {
					return nil, err
				}
			}
		} else if _, ok := b.nodes[from]; !ok {
			return nil, NewInvalidGraph("edge leaves unknown node " + from)
		}
	}
	return &CompiledGraph{
		schema:    b.schema,
		nodes:     b.nodes,
		order:     append([]string(nil), b.order...),
		edges:     b.edges,
		entry:     b.entry,
		entryEdge: b.entryEdge,
	}, nil
}

// initialFrontier resolves the first superstep's WorkItems against the
// seeded initial state: a fixed entry point always yields one WorkItem,
// while a conditional entry point resolves the router against state the
// same way computeNextFrontier resolves any other conditional edge.
func (g *CompiledGraph) initialFrontier(state State) ([]WorkItem, error) {
	if g.entryEdge == nil {
		return []WorkItem{{Node: g.entry, OrderKey: ComputeOrderKey(START, 0)}}, nil
	}
	dests, sends, err := resolveConditional(g.entryEdge, state)
	if err != nil {
		return nil, err
	}
	items := make([]WorkItem, 0, len(dests)+len(sends))
	i := 0
	for _, d := range dests {
		if d != END {
			items = append(items, WorkItem{Node: d, OrderKey: ComputeOrderKey(START, i)})
		}
		i++
	}
	for _, s := range sends {
		items = append(items, WorkItem{Node: s.Node, HasArg: true, Arg: s.Arg, OrderKey: ComputeOrderKey(START, i)})
		i++
	}
	return items, nil
}

// GraphNode describes one registered node in a get_graph()-style
// adjacency introspection.
type GraphNode struct {
	Name     string
	Metadata Metadata
}

// GraphEdgeKind mirrors edgeKind for the public introspection surface.
type GraphEdgeKind string

// Edge kinds reported by CompiledGraph.Graph.
const (
	GraphEdgeStatic      GraphEdgeKind = "static"
	GraphEdgeConditional GraphEdgeKind = "conditional"
	GraphEdgeWaiting     GraphEdgeKind = "waiting"
)

// GraphEdge describes one wired connection in a get_graph()-style
// adjacency introspection. To is set for static edges; Branches is set
// for conditional edges (including the conditional entry point, reported
// under From == START); WaitFor/WaitTo are set for waiting edges.
type GraphEdge struct {
	From     string
	To       string
	Kind     GraphEdgeKind
	Branches map[string]string
	WaitFor  []string
	WaitTo   string
}

// GraphDescription is the adjacency view returned by CompiledGraph.Graph:
// every registered node plus every wired edge, including the implicit
// START/END endpoints. It does not render a diagram (spec non-goal) --
// it's a plain data description callers can walk or serialize themselves.
type GraphDescription struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// Graph returns an adjacency description of the compiled graph: every
// node in registration order, and every edge (static, conditional,
// waiting, and the entry point). A waiting edge is reported once per
// source node it names, each entry carrying that source as From.
func (g *CompiledGraph) Graph() GraphDescription {
	desc := GraphDescription{Nodes: make([]GraphNode, 0, len(g.order))}
	for _, name := range g.order {
		desc.Nodes = append(desc.Nodes, GraphNode{Name: name, Metadata: g.nodes[name].metadata})
	}

	seen := map[*edge]bool{}
	sawEntryEdge := false
	for _, from := range append([]string{START}, g.order...) {
		for _, ed := range g.edges[from] {
			if seen[ed] {
				continue
			}
			seen[ed] = true
			desc.Edges = append(desc.Edges, describeEdge(ed))
			if from == START && ed.kind == edgeStatic && ed.to == g.entry {
				sawEntryEdge = true
			}
		}
	}
	if g.entryEdge != nil && !seen[g.entryEdge] {
		desc.Edges = append(desc.Edges, describeEdge(g.entryEdge))
	}
	if g.entry != "" && !sawEntryEdge {
		desc.Edges = append(desc.Edges, GraphEdge{From: START, To: g.entry, Kind: GraphEdgeStatic})
	}
	return desc
}

func describeEdge(ed *edge) GraphEdge {
	switch ed.kind {
	case edgeConditional:
		return GraphEdge{From: ed.from, Kind: GraphEdgeConditional, Branches: ed.branches}
	case edgeWaiting:
		return GraphEdge{From: ed.from, Kind: GraphEdgeWaiting, WaitFor: ed.waitFor, WaitTo: ed.waitTo}
	default:
		return GraphEdge{From: ed.from, To: ed.to, Kind: GraphEdgeStatic}
	}
}

func (b *GraphBuilder) validateEdgeTargets(e *edge) error {
	check := func(name string) error {
		if name == END {
			return nil
		}
		if _, ok := b.nodes[name]; !ok {
			return NewInvalidGraph("edge references unknown node " + name)
		}
		return nil
	}
	switch e.kind {
	case edgeStatic:
		return check(e.to)
	case edgeConditional:
		for _, dest := range e.branches {
			if err := check(dest); err != nil {
				return err
			}
		}
		return nil
	case edgeWaiting:
		return check(e.waitTo)
	default:
		return nil
	}
}
