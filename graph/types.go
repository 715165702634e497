package graph

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// State is the shared, schema-described execution state threaded through
// a run. It is a plain map rather than a generic type parameter: fields
// are looked up and merged by name, and each field's merge discipline is
// declared once in a Schema rather than baked into a Go type.
type State map[string]any

// Clone returns a shallow copy of s. Node bodies receive a frozen
// snapshot for the duration of a superstep (spec invariant: a node never
// observes writes from its own step's siblings), so the executor clones
// before each dispatch rather than sharing the accumulated map directly.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Send schedules an additional node invocation within the current
// superstep, alongside (not instead of) the statically wired edges out of
// the node that produced it. The target node receives the step's frozen
// state unchanged, with Arg passed as a separate argument to its SendFunc
// (Arg is not overlaid onto the state) -- this is what makes Send the
// primitive for map-reduce fan-out (§ Design notes, map-reduce scenario).
type Send struct {
	// Node is the name of the node to invoke.
	Node string
	// Arg is the per-invocation argument; it does not go through any
	// reducer and is not merged into State.
	Arg any
}

// Command is a node result shape combining a state update with a routing
// decision and/or a resume value, so a node can update state and choose
// its own successor(s) in one return instead of relying solely on static
// edges. Goto overrides the statically wired edges for the node that
// returned it and holds node names only; extra same-step invocations come
// from the enclosing NodeResult's Sends, not from the Command. Graph is a
// reserved field: a non-nil value always raises InvalidGraph (subgraph
// handoff is out of scope, spec §9).
type Command struct {
	// Update is merged into State via each field's declared reducer,
	// exactly like a plain node return value would be.
	Update State
	// Goto names the next node(s) to run, overriding static edges from
	// the node that returned this Command. Empty means "use static
	// edges as normal".
	Goto []string
	// Resume is carried on the Command as data; the executor does not
	// read it. A resume value reaches a node through Executor.Resume and
	// ResumeValue.
	Resume any
	// Graph is reserved for subgraph handoff. Must always be nil.
	Graph any
}

// Interrupt pauses the run in an orderly way: the executor records it,
// stops dispatching new work for the interrupted node's branch, and
// returns control to the caller via a GraphInterrupt error. Re-invoking
// with the same thread id and a nil input resumes execution; Executor.Resume
// does the same and also makes its resume value available to the resumed
// node(s) through ResumeValue.
type Interrupt struct {
	// ID is a random 128-bit value, hex-encoded, unique per interrupt
	// occurrence (not per node -- a node revisited after resume that
	// interrupts again gets a fresh ID).
	ID string
	// Value is the payload surfaced to the caller, typically a question
	// or a description of what input is needed to resume.
	Value any
	// Node is the node that raised the interrupt.
	Node string
}

// NewInterrupt builds an Interrupt with a freshly generated ID for node,
// carrying value as its payload.
func NewInterrupt(node string, value any) Interrupt {
	return Interrupt{ID: newInterruptID(), Value: value, Node: node}
}

func newInterruptID() string {
	var b [16]byte
	// crypto/rand rather than math/rand: interrupt ids are externally
	// visible resume tokens, not replay-determinism-sensitive values.
	if _, err := rand.Read(b[:]); err != nil {
		panic("graph: failed to generate interrupt id: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// StateSnapshot is the read model returned by get_state: the current
// merged state of a thread, the checkpoint it was read from, the next
// node(s) scheduled to run (empty if the thread has reached END), and the
// pending writes stored with that checkpoint. Interrupts is not filled in
// by GetState or GetStateHistory: checkpoints do not record interrupts.
type StateSnapshot struct {
	ThreadID       string
	CheckpointID   string
	CheckpointNS   string
	Values         State
	Next           []string
	PendingWrites  map[string]State
	Interrupts     []Interrupt
	CreatedAt      time.Time
}

// RetryPolicy configures automatic retry of a node body's errors with
// exponential backoff and jitter.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts including
	// the first. A value <= 1 means no retries.
	MaxAttempts int
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// BackoffFactor multiplies the interval after each attempt.
	BackoffFactor float64
	// MaxInterval caps the computed delay before jitter is added.
	MaxInterval time.Duration
	// Jitter is the maximum random duration added to each computed
	// delay, to avoid synchronized retry storms across nodes.
	Jitter time.Duration
	// Retryable decides whether an error should trigger a retry. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// Validate reports whether rp's fields are internally consistent.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BackoffFactor < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxInterval > 0 && rp.InitialInterval > rp.MaxInterval {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// CachePolicy describes how a node's result could be cached, keyed on its
// input. The executor stores the policy a node is registered with but
// does not consult it: every dispatch runs the node body, and no result
// is cached.
type CachePolicy struct {
	// TTL bounds how long a cached result remains valid. Zero means no
	// expiry within the lifetime of the checkpoint store.
	TTL time.Duration
	// KeyFields restricts the cache key to these State fields instead of
	// the whole frozen input; empty means the whole input participates.
	KeyFields []string
}
