package graph

import (
	"time"

	"github.com/lattice-run/pregel/graph/emit"
)

// Option configures an Executor at construction time. Grounded on the
// teacher's functional-options pattern in graph/options.go
// (Option func(*engineConfig) error), narrowed to the executor config
// surface this spec calls for.
type Option func(*executorConfig) error

// executorConfig collects options before they are frozen onto an
// Executor.
type executorConfig struct {
	recursionLimit   int
	interruptBefore  map[string]bool
	interruptAfter   map[string]bool
	interruptAllBefore bool
	interruptAllAfter  bool
	metrics          *PrometheusMetrics
	emitter          emit.Emitter
	debug            bool
	defaultTimeout   time.Duration
}

func defaultExecutorConfig() *executorConfig {
	return &executorConfig{
		recursionLimit: 25,
		interruptBefore: make(map[string]bool),
		interruptAfter:  make(map[string]bool),
		emitter:         emit.NewNullEmitter(),
		defaultTimeout:  30 * time.Second,
	}
}

// WithRecursionLimit caps the number of supersteps a run may take before
// it is aborted with GraphRecursion. Default: 25.
func WithRecursionLimit(n int) Option {
	return func(c *executorConfig) error {
		c.recursionLimit = n
		return nil
	}
}

// WithInterruptBefore pauses the run before dispatching any of the named
// nodes. A single "*" entry matches every node.
func WithInterruptBefore(nodes ...string) Option {
	return func(c *executorConfig) error {
		for _, n := range nodes {
			if n == "*" {
				c.interruptAllBefore = true
				continue
			}
			c.interruptBefore[n] = true
		}
		return nil
	}
}

// WithInterruptAfter pauses the run after the named nodes complete: their
// writes are merged and checkpointed, and the run stops before the next
// superstep is dispatched. A single "*" entry matches every node.
func WithInterruptAfter(nodes ...string) Option {
	return func(c *executorConfig) error {
		for _, n := range nodes {
			if n == "*" {
				c.interruptAllAfter = true
				continue
			}
			c.interruptAfter[n] = true
		}
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection on the executor.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(c *executorConfig) error {
		c.metrics = m
		return nil
	}
}

// WithEmitter sets the observability event sink. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *executorConfig) error {
		c.emitter = e
		return nil
	}
}

// WithDebug records a debug flag on the executor configuration. The
// executor does not read it; StreamModeDebug output is the same with or
// without it.
func WithDebug(enabled bool) Option {
	return func(c *executorConfig) error {
		c.debug = enabled
		return nil
	}
}

// WithDefaultNodeTimeout sets the execution timeout applied to every
// node invocation (nodes have no timeout setting of their own). Default:
// 30s.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(c *executorConfig) error {
		c.defaultTimeout = d
		return nil
	}
}
