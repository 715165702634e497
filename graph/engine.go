package graph

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/lattice-run/pregel/checkpoint"
	"github.com/lattice-run/pregel/graph/emit"
)

// Executor runs a CompiledGraph's Bulk-Synchronous-Parallel superstep
// loop: plan a frontier, dispatch its nodes against a frozen state
// snapshot, merge their writes through each field's channel, checkpoint,
// repeat. Grounded on the teacher's Engine.runConcurrent (this file,
// original revision): frontier-driven concurrent dispatch with
// deterministic OrderKey merge ordering, extended here with interrupt-
// before/after boundaries and Send/Command dynamic routing that the
// teacher's whole-state engine has no equivalent of.
type Executor struct {
	graph *CompiledGraph
	cfg   *executorConfig
	store checkpoint.Store
}

// NewExecutor builds an Executor for g, persisting through store.
func NewExecutor(g *CompiledGraph, store checkpoint.Store, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return &Executor{graph: g, cfg: cfg, store: store}, nil
}

// RunConfig addresses one thread's execution history.
type RunConfig struct {
	ThreadID     string
	CheckpointNS string
}

func (c RunConfig) toCheckpointConfig(checkpointID string) checkpoint.Config {
	return checkpoint.Config{ThreadID: c.ThreadID, CheckpointNS: c.CheckpointNS, CheckpointID: checkpointID}
}

// contextKey namespaces values this package stashes on context.Context.
// Kept as a private type, following the teacher's own contextKey pattern
// in this file, to avoid collisions with keys from other packages.
type contextKey string

const (
	rngContextKey    contextKey = "graph.rng"
	resumeContextKey contextKey = "graph.resume"
)

// RNGFromContext returns the run's deterministic per-thread random
// source, so node bodies that need randomness (sampling, jittered side
// effects) stay replayable across resumes. Grounded on the teacher's
// initRNG/RNGKey context-propagation pattern (this file, original
// revision): same thread id always derives the same seed.
func RNGFromContext(ctx context.Context) *rand.Rand {
	if r, ok := ctx.Value(rngContextKey).(*rand.Rand); ok {
		return r
	}
	return rand.New(rand.NewSource(0))
}

// ResumeValue returns the value threaded back into a node by a Resume
// call after that node previously raised an Interrupt, and whether one
// was provided.
func ResumeValue(ctx context.Context) (any, bool) {
	v := ctx.Value(resumeContextKey)
	return v, v != nil
}

func seedRNG(threadID string) int64 {
	h := sha256.Sum256([]byte(threadID))
	return int64(binary.BigEndian.Uint64(h[:8])) // #nosec G115 -- deterministic seeding, not security
}

// Invoke starts a brand-new run for cfg.ThreadID. It fails with
// EmptyInput if input cannot be coerced to State (non-nil mapping, or
// non-mapping only when no Schema is configured). If a checkpoint already
// exists for this thread, a nil input continues the thread exactly as
// Resume(ctx, cfg, nil) does, and any other input fails with EmptyInput.
func (e *Executor) Invoke(ctx context.Context, cfg RunConfig, input any) (State, error) {
	if _, err := e.store.GetTuple(ctx, cfg.toCheckpointConfig("")); err == nil {
		if input == nil {
			return e.Resume(ctx, cfg, nil)
		}
		return nil, NewEmptyInput("thread " + cfg.ThreadID + " already has a checkpoint; use Resume")
	}

	initial, err := coerceInput(e.graph.schema, input)
	if err != nil {
		return nil, err
	}

	seed := State(e.graph.schema.defaults())
	for k, v := range initial {
		seed[k] = v
	}

	start, err := e.graph.initialFrontier(seed)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, cfg, seed, start, 0, false, nil)
}

// Resume continues a thread that most recently paused on a
// GraphInterrupt, threading resume back to the node(s) that raised it.
func (e *Executor) Resume(ctx context.Context, cfg RunConfig, resume any) (State, error) {
	tuple, err := e.store.GetTuple(ctx, cfg.toCheckpointConfig(""))
	if err != nil {
		return nil, NewTaskNotFound("no checkpoint for thread " + cfg.ThreadID)
	}
	if len(tuple.Checkpoint.Next) == 0 {
		return nil, NewTaskNotFound("thread " + cfg.ThreadID + " has no pending work to resume")
	}

	ctx = context.WithValue(ctx, resumeContextKey, resume)

	frontier := make([]WorkItem, 0, len(tuple.Checkpoint.Next))
	for i, name := range tuple.Checkpoint.Next {
		frontier = append(frontier, WorkItem{Node: name, OrderKey: ComputeOrderKey("__resume__", i)})
	}
	return e.run(ctx, cfg, State(tuple.Checkpoint.Values), frontier, 0, true, nil)
}

// coerceInput implements the non-mapping-input Open Question resolution
// (SPEC_FULL §E.4): nil is always rejected, a map passes through
// unchanged, and any other shape is only accepted when the graph carries
// no Schema, under the reserved "__root__" key.
func coerceInput(schema *Schema, input any) (State, error) {
	if input == nil {
		return nil, NewEmptyInput("invoke requires non-nil input for a new run")
	}
	switch v := input.(type) {
	case State:
		return v, nil
	case map[string]any:
		return State(v), nil
	default:
		if schema != nil {
			return nil, NewEmptyInput("non-mapping input is only accepted when no Schema is configured")
		}
		return State{"__root__": v}, nil
	}
}

type stepResult struct {
	item   WorkItem
	result NodeResult
}

// run is the shared Pregel superstep loop behind Invoke, Resume, and
// Stream. resuming is true only for the call originating from Resume: it
// exempts startFrontier's own first superstep from interrupt-before, since
// those are exactly the node(s) the caller just supplied a resume value
// for and re-interrupting them would make Resume never advance.
// Interrupt-before applies normally to every superstep after that one.
func (e *Executor) run(ctx context.Context, cfg RunConfig, seed State, startFrontier []WorkItem, startStep int, resuming bool, onEvent func(StreamEvent)) (State, error) {
	channels := map[string]Channel{}
	getCh := func(name string) Channel {
		if c, ok := channels[name]; ok {
			return c
		}
		c := e.graph.schema.newChannel(name)
		channels[name] = c
		return c
	}

	if err := e.seedChannels(getCh, seed); err != nil {
		return nil, err
	}

	completed := map[string]bool{}
	frontier := startFrontier
	step := startStep
	rng := rand.New(rand.NewSource(seedRNG(cfg.ThreadID))) // #nosec G404 -- deterministic per-thread RNG, not security

	var mergedState State

	for len(frontier) > 0 {
		if step >= e.cfg.recursionLimit {
			mergedState = readState(channels)
			_ = e.checkpointStep(ctx, cfg, mergedState, nil, checkpoint.SourceLoop)
			return mergedState, NewGraphRecursion(e.cfg.recursionLimit)
		}

		var runnable []WorkItem
		var beforeInterrupts []Interrupt
		if resuming && step == startStep {
			runnable = frontier
		} else {
			runnable, beforeInterrupts = e.splitInterruptBefore(frontier)
		}
		if len(beforeInterrupts) > 0 {
			mergedState = readState(channels)
			e.recordInterrupts(cfg.ThreadID, beforeInterrupts)
			_ = e.checkpointStep(ctx, cfg, mergedState, namesOf(frontier), checkpoint.SourceInterrupt)
			return mergedState, NewGraphInterrupt(beforeInterrupts)
		}

		e.cfg.metrics.SetFrontierDepth(len(runnable))
		stepState := readState(channels)
		results, err := e.dispatchStep(ctx, cfg, rng, runnable, stepState, onEvent)
		if err != nil {
			return readState(channels), err
		}

		writesByField, conflictErr := e.collectWrites(results)
		if conflictErr != nil {
			e.cfg.metrics.IncrementMergeConflicts(cfg.ThreadID, conflictErr.Field)
			mergedState = readState(channels)
			_ = e.checkpointStep(ctx, cfg, mergedState, namesOf(frontier), checkpoint.SourceLoop)
			return mergedState, conflictErr
		}

		if err := e.applyWrites(getCh, writesByField); err != nil {
			return nil, err
		}
		e.clearUntouchedEphemeral(channels, writesByField)

		mergedState = readState(channels)

		raised := collectRaisedInterrupts(results)
		afterInterrupts := e.collectInterruptAfter(runnable)

		nextFrontier, err := e.computeNextFrontier(runnable, results, mergedState, completed)
		if err != nil {
			_ = e.checkpointStep(ctx, cfg, mergedState, namesOf(frontier), checkpoint.SourceLoop)
			return mergedState, err
		}
		for _, r := range results {
			if r.result.Interrupt != nil {
				nextFrontier = append(nextFrontier, r.item)
			}
		}
		nextFrontier = dedupeWorkItems(nextFrontier)

		allInterrupts := append(raised, afterInterrupts...)
		if len(allInterrupts) > 0 {
			e.recordInterrupts(cfg.ThreadID, allInterrupts)
			_ = e.checkpointStep(ctx, cfg, mergedState, namesOf(nextFrontier), checkpoint.SourceInterrupt)
			return mergedState, NewGraphInterrupt(allInterrupts)
		}

		if onEvent != nil {
			onEvent(StreamEvent{Mode: StreamModeValues, Step: step, Values: mergedState.Clone()})
		}

		if err := e.checkpointStep(ctx, cfg, mergedState, namesOf(nextFrontier), checkpoint.SourceLoop); err != nil {
			return mergedState, err
		}

		frontier = nextFrontier
		step++
	}

	if mergedState == nil {
		mergedState = readState(channels)
	}
	_ = e.checkpointStep(ctx, cfg, mergedState, nil, checkpoint.SourceExit)
	return mergedState, nil
}

func (e *Executor) recordInterrupts(threadID string, interrupts []Interrupt) {
	for _, in := range interrupts {
		e.cfg.metrics.IncrementInterrupts(threadID, in.Node)
	}
}

func (e *Executor) splitInterruptBefore(frontier []WorkItem) (runnable []WorkItem, interrupts []Interrupt) {
	for _, wi := range frontier {
		if e.cfg.interruptAllBefore || e.cfg.interruptBefore[wi.Node] {
			interrupts = append(interrupts, NewInterrupt(wi.Node, nil))
			continue
		}
		runnable = append(runnable, wi)
	}
	return runnable, interrupts
}

func (e *Executor) collectInterruptAfter(runnable []WorkItem) []Interrupt {
	var out []Interrupt
	for _, wi := range runnable {
		if e.cfg.interruptAllAfter || e.cfg.interruptAfter[wi.Node] {
			out = append(out, NewInterrupt(wi.Node, nil))
		}
	}
	return out
}

func collectRaisedInterrupts(results []stepResult) []Interrupt {
	var out []Interrupt
	for _, r := range results {
		if r.result.Interrupt != nil {
			out = append(out, *r.result.Interrupt)
		}
	}
	return out
}

// dispatchStep runs runnable concurrently against stepState, looping to
// also run any additional work items produced via Send within the same
// superstep: Send is a same-step fan-out primitive, not a next-step one,
// so a node that Sends to several targets sees them all complete before
// the step's conflict-detection/merge pass runs.
func (e *Executor) dispatchStep(ctx context.Context, cfg RunConfig, rng *rand.Rand, runnable []WorkItem, stepState State, onEvent func(StreamEvent)) ([]stepResult, error) {
	sort.Slice(runnable, func(i, j int) bool { return runnable[i].OrderKey < runnable[j].OrderKey })

	var all []stepResult
	queue := runnable
	sendEdgeIndex := 0

	for len(queue) > 0 {
		e.cfg.metrics.SetInflightNodes(len(queue))
		batch := make([]stepResult, len(queue))
		var wg sync.WaitGroup
		for i, wi := range queue {
			wg.Add(1)
			go func(i int, wi WorkItem) {
				defer wg.Done()
				batch[i] = stepResult{item: wi, result: e.dispatchOne(ctx, cfg, rng, wi, stepState.Clone())}
			}(i, wi)
		}
		wg.Wait()
		e.cfg.metrics.SetInflightNodes(0)

		var spawned []WorkItem
		for _, r := range batch {
			all = append(all, r)
			if r.result.Err != nil {
				return all, NewNodeExecution(r.item.Node, r.result.Err)
			}
			if r.result.Command != nil && r.result.Command.Graph != nil {
				return all, NewInvalidGraph("node " + r.item.Node + " returned a Command with a non-nil Graph")
			}
			for _, s := range r.result.Sends {
				sendEdgeIndex++
				spawned = append(spawned, WorkItem{
					Node:       s.Node,
					HasArg:     true,
					Arg:        s.Arg,
					ParentNode: r.item.Node,
					EdgeIndex:  sendEdgeIndex,
					OrderKey:   ComputeOrderKey(r.item.Node, sendEdgeIndex),
				})
			}
			if onEvent != nil {
				onEvent(StreamEvent{Mode: StreamModeUpdates, Node: r.item.Node, Update: effectiveUpdate(r.result).Clone()})
			}
		}
		queue = spawned
	}

	return all, nil
}

// dispatchOne runs a single node, applying its RetryPolicy and the
// executor's node timeout. Grounded on the teacher's computeBackoff retry loop
// (graph/policy.go).
func (e *Executor) dispatchOne(ctx context.Context, cfg RunConfig, rng *rand.Rand, wi WorkItem, stepState State) NodeResult {
	spec := e.graph.nodes[wi.Node]
	nodeCtx := context.WithValue(ctx, rngContextKey, rng)

	timeout := e.cfg.defaultTimeout
	var attempt int
	for {
		callCtx := nodeCtx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(nodeCtx, timeout)
		}
		start := time.Now()
		result := spec.node.run(callCtx, stepState, wi.Arg, wi.HasArg)
		if cancel != nil {
			cancel()
		}
		e.cfg.metrics.RecordStepLatency(cfg.ThreadID, wi.Node, time.Since(start))
		e.cfg.emitter.Emit(emit.Event{RunID: cfg.ThreadID, NodeID: wi.Node, Msg: "node_complete", Meta: map[string]interface{}{"attempt": attempt}})

		if result.Err == nil || spec.retry == nil || !shouldRetry(spec.retry, attempt, result.Err) {
			return result
		}

		e.cfg.metrics.IncrementRetries(cfg.ThreadID, wi.Node)
		delay := computeBackoff(spec.retry, attempt, rng)
		timer := time.NewTimer(time.Duration(delay))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.Err = ctx.Err()
			return result
		}
		attempt++
	}
}

type writer struct {
	node  string
	value any
}

// collectWrites implements the whole-step conflict-detection rule (Open
// Question resolution, SPEC_FULL §E.1): every field written by more than
// one node this step is checked before any channel.Update call, and a
// LastValue/Ephemeral field with more than one distinct writer aborts
// the entire step, reporting the lexicographically-smallest colliding
// node pair -- no partial merge of the unaffected fields happens first.
func (e *Executor) collectWrites(results []stepResult) (map[string][]writer, *InvalidUpdate) {
	byField := map[string][]writer{}
	for _, r := range results {
		if r.result.Interrupt != nil {
			continue
		}
		for k, v := range effectiveUpdate(r.result) {
			byField[k] = append(byField[k], writer{node: r.item.Node, value: v})
		}
	}

	var conflict *InvalidUpdate
	for field, ws := range byField {
		ch := e.graph.schema.newChannel(field)
		if !ch.SingleWriter() {
			continue
		}
		nodes := distinctNodes(ws)
		if len(nodes) <= 1 {
			continue
		}
		sort.Strings(nodes)
		candidate := NewInvalidUpdate(field, nodes[0], nodes[1])
		if conflict == nil || field < conflict.Field {
			conflict = candidate
		}
	}
	return byField, conflict
}

func distinctNodes(ws []writer) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range ws {
		if !seen[w.node] {
			seen[w.node] = true
			out = append(out, w.node)
		}
	}
	return out
}

func effectiveUpdate(r NodeResult) State {
	if r.Command != nil && r.Command.Update != nil {
		return r.Command.Update
	}
	return r.Update
}

// seedChannels applies the run's initial values (Schema defaults
// overlaid with caller input) through the normal channel.Update path,
// treating run start as a synthetic first step so no bespoke
// initialization logic is needed alongside the superstep merge code.
func (e *Executor) seedChannels(getCh func(string) Channel, seed State) error {
	for k, v := range seed {
		ch := getCh(k)
		if err := ch.Update([]any{v}, e.graph.schema.reducerFor(k)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) applyWrites(getCh func(string) Channel, byField map[string][]writer) error {
	for field, ws := range byField {
		vals := make([]any, len(ws))
		for i, w := range ws {
			vals[i] = w.value
		}
		ch := getCh(field)
		if err := ch.Update(vals, e.graph.schema.reducerFor(field)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) clearUntouchedEphemeral(channels map[string]Channel, touched map[string][]writer) {
	for name, ch := range channels {
		if _, ok := touched[name]; ok {
			continue
		}
		if eph, ok := ch.(*ephemeralChannel); ok {
			_ = eph.Update(nil, nil)
		}
	}
}

func readState(channels map[string]Channel) State {
	out := State{}
	for name, ch := range channels {
		v, err := ch.Get()
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out
}

func namesOf(items []WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Node)
	}
	return out
}

// computeNextFrontier resolves static/conditional edges and Command.Goto
// for each node that ran this step (skipping nodes that interrupted,
// whose re-dispatch the caller already re-adds), plus any waiting-edge
// joins that just became satisfied.
func (e *Executor) computeNextFrontier(runnable []WorkItem, results []stepResult, mergedState State, completed map[string]bool) ([]WorkItem, error) {
	var next []WorkItem
	resultByNode := map[string]NodeResult{}
	for _, r := range results {
		resultByNode[r.item.Node] = r.result
	}

	ranThisStep := map[string]bool{}
	for _, wi := range runnable {
		r, ok := resultByNode[wi.Node]
		if !ok || r.Interrupt != nil {
			continue
		}
		completed[wi.Node] = true
		ranThisStep[wi.Node] = true

		if r.Command != nil && len(r.Command.Goto) > 0 {
			for i, dest := range r.Command.Goto {
				if dest == END {
					continue
				}
				next = append(next, WorkItem{Node: dest, ParentNode: wi.Node, EdgeIndex: i, OrderKey: ComputeOrderKey(wi.Node, i)})
			}
			continue
		}

		edgeIdx := 0
		for _, ed := range e.graph.edges[wi.Node] {
			switch ed.kind {
			case edgeStatic:
				if ed.to != END {
					next = append(next, WorkItem{Node: ed.to, ParentNode: wi.Node, EdgeIndex: edgeIdx, OrderKey: ComputeOrderKey(wi.Node, edgeIdx)})
				}
				edgeIdx++
			case edgeConditional:
				dests, sends, err := resolveConditional(ed, mergedState)
				if err != nil {
					return nil, err
				}
				for _, d := range dests {
					if d != END {
						next = append(next, WorkItem{Node: d, ParentNode: wi.Node, EdgeIndex: edgeIdx, OrderKey: ComputeOrderKey(wi.Node, edgeIdx)})
					}
					edgeIdx++
				}
				for _, s := range sends {
					next = append(next, WorkItem{
						Node:       s.Node,
						HasArg:     true,
						Arg:        s.Arg,
						ParentNode: wi.Node,
						EdgeIndex:  edgeIdx,
						OrderKey:   ComputeOrderKey(wi.Node, edgeIdx),
					})
					edgeIdx++
				}
			case edgeWaiting:
				edgeIdx++
			}
		}
	}

	next = append(next, e.resolveJoins(ranThisStep)...)
	return next, nil
}

// resolveJoins adds the destination of any waiting edge whose every
// source node is marked in completed, which computeNextFrontier fills with
// the nodes that ran in the current superstep. A join fires at most once
// per call.
func (e *Executor) resolveJoins(completed map[string]bool) []WorkItem {
	var out []WorkItem
	fired := map[string]bool{}
	for _, edges := range e.graph.edges {
		for _, ed := range edges {
			if ed.kind != edgeWaiting || fired[ed.waitTo] {
				continue
			}
			allDone := true
			for _, from := range ed.waitFor {
				if !completed[from] {
					allDone = false
					break
				}
			}
			joinKey := "__joined__" + ed.waitTo
			if allDone && !completed[joinKey] {
				completed[joinKey] = true
				fired[ed.waitTo] = true
				out = append(out, WorkItem{Node: ed.waitTo, OrderKey: ComputeOrderKey("__join__", len(out))})
			}
		}
	}
	return out
}

func dedupeWorkItems(items []WorkItem) []WorkItem {
	seen := map[string]bool{}
	out := make([]WorkItem, 0, len(items))
	for _, it := range items {
		if !it.HasArg {
			if seen[it.Node] {
				continue
			}
			seen[it.Node] = true
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderKey < out[j].OrderKey })
	return out
}

func (e *Executor) checkpointStep(ctx context.Context, cfg RunConfig, values State, next []string, source checkpoint.Source) error {
	_, err := e.store.Put(ctx, cfg.ThreadID, cfg.CheckpointNS, checkpoint.Checkpoint{
		Values:    values,
		Next:      next,
		Source:    source,
		CreatedAt: time.Now(),
	})
	return err
}
