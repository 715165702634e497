package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lattice-run/pregel/checkpoint"
	"github.com/lattice-run/pregel/graph"
	"github.com/lattice-run/pregel/graph/emit"
)

// demo is one runnable named workflow, built fresh for every invocation
// so repeat runs start from a clean checkpoint store.
type demo struct {
	name        string
	description string
	build       func() (*graph.CompiledGraph, error)
	input       graph.State
	options     []graph.Option
}

var demos = []demo{linearChainDemo(), approvalGateDemo(), fanOutSumDemo()}

func findDemo(name string) (demo, bool) {
	for _, d := range demos {
		if d.name == name {
			return d, true
		}
	}
	return demo{}, false
}

func listDemos() {
	fmt.Println("available demos:")
	for _, d := range demos {
		fmt.Printf("  %-14s %s\n", d.name, d.description)
	}
}

// runDemo executes d to completion, prompting on stdin for a resume
// value whenever the run pauses on a GraphInterrupt -- the same
// request/response shape the engine's human-in-the-loop nodes depend on,
// just driven from a terminal instead of a calling service.
func runDemo(d demo, threadID string) error {
	g, err := d.build()
	if err != nil {
		return fmt.Errorf("building demo %q: %w", d.name, err)
	}

	opts := append([]graph.Option{graph.WithEmitter(emit.NewLogEmitter(os.Stdout, false))}, d.options...)
	exec, err := graph.NewExecutor(g, checkpoint.NewMemoryStore(), opts...)
	if err != nil {
		return fmt.Errorf("constructing executor: %w", err)
	}

	ctx := context.Background()
	cfg := graph.RunConfig{ThreadID: threadID}
	reader := bufio.NewReader(os.Stdin)

	final, err := exec.Invoke(ctx, cfg, d.input)
	for {
		var interrupt *graph.GraphInterrupt
		if !errors.As(err, &interrupt) {
			break
		}
		for _, in := range interrupt.Interrupts {
			fmt.Printf("\npaused before node %q", in.Node)
			if in.Value != nil {
				fmt.Printf(": %v", in.Value)
			}
			fmt.Print("\nresume value> ")
		}
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("reading resume value: %w", readErr)
		}
		final, err = exec.Resume(ctx, cfg, strings.TrimSpace(line))
	}
	if err != nil {
		return err
	}

	fmt.Println("\nfinal state:")
	for k, v := range final {
		fmt.Printf("  %s = %v\n", k, v)
	}
	return nil
}

func linearChainDemo() demo {
	step := func(name string) graph.NodeFunc {
		return func(ctx context.Context, s graph.State) graph.NodeResult {
			fmt.Printf("-> running %s\n", name)
			return graph.NodeResult{Update: graph.State{"trace": name}}
		}
	}
	return demo{
		name:        "linear",
		description: "three-node chain a -> b -> c, Append-reducer trace",
		build: func() (*graph.CompiledGraph, error) {
			schema, err := graph.NewSchema(graph.Field{Name: "trace", Reducer: graph.Append})
			if err != nil {
				return nil, err
			}
			return graph.NewGraphBuilder(schema).
				AddNode("a", step("a")).
				AddNode("b", step("b")).
				AddNode("c", step("c")).
				SetEntryPoint("a").
				AddEdge(graph.START, "a").
				AddEdge("a", "b").
				AddEdge("b", "c").
				AddEdge("c", graph.END).
				Compile()
		},
		input: graph.State{},
	}
}

func approvalGateDemo() demo {
	generate := func(ctx context.Context, s graph.State) graph.NodeResult {
		fmt.Println("-> generating output for review")
		return graph.NodeResult{Update: graph.State{"output": "draft response ready for approval"}}
	}
	finalize := func(ctx context.Context, s graph.State) graph.NodeResult {
		decision, _ := graph.ResumeValue(ctx)
		fmt.Printf("-> finalizing with reviewer decision %q\n", decision)
		return graph.NodeResult{Update: graph.State{"decision": decision}}
	}

	return demo{
		name:        "approval",
		description: "human-in-the-loop approval gate before finalize",
		build: func() (*graph.CompiledGraph, error) {
			return graph.NewGraphBuilder(nil).
				AddNode("generate", generate).
				AddNode("finalize", finalize).
				SetEntryPoint("generate").
				AddEdge(graph.START, "generate").
				AddEdge("generate", "finalize").
				AddEdge("finalize", graph.END).
				Compile()
		},
		input:   graph.State{},
		options: []graph.Option{graph.WithInterruptBefore("finalize")},
	}
}

func fanOutSumDemo() demo {
	fanout := func(ctx context.Context, s graph.State) graph.NodeResult {
		fmt.Println("-> fanning out three workers")
		return graph.NodeResult{Sends: []graph.Send{
			{Node: "worker", Arg: 1},
			{Node: "worker", Arg: 2},
			{Node: "worker", Arg: 3},
		}}
	}
	worker := func(ctx context.Context, s graph.State, arg any) graph.NodeResult {
		n := arg.(int)
		fmt.Printf("-> worker squaring %d\n", n)
		return graph.NodeResult{Update: graph.State{"squares": n * n}}
	}

	return demo{
		name:        "fanout",
		description: "map-reduce via Send into a Topic-accumulated field",
		build: func() (*graph.CompiledGraph, error) {
			schema, err := graph.NewSchema(graph.Field{Name: "squares", Channel: graph.Topic(true)})
			if err != nil {
				return nil, err
			}
			return graph.NewGraphBuilder(schema).
				AddNode("fanout", fanout).
				AddSendNode("worker", worker).
				SetEntryPoint("fanout").
				AddEdge(graph.START, "fanout").
				AddEdge("fanout", graph.END).
				AddEdge("worker", graph.END).
				Compile()
		},
		input: graph.State{},
	}
}
