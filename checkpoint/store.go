// Package checkpoint defines the durable checkpoint contract the
// executor saves run state through, plus an in-memory reference
// implementation. It deliberately does not import the graph package (to
// avoid an import cycle, since graph depends on checkpoint): every value
// here is expressed in terms of plain map[string]any, which is the
// exact underlying representation of graph.State.
//
// Grounded on the teacher's graph/store/store.go (Store[S] interface) and
// graph/checkpoint.go (Checkpoint[S] fields), restructured around the
// spec's (thread_id, checkpoint_ns, checkpoint_id) compound key instead
// of the teacher's runID-only keying.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested thread, namespace, or
// checkpoint id does not exist.
var ErrNotFound = errors.New("checkpoint: not found")

// Source records what kind of executor event produced a Checkpoint.
type Source string

const (
	SourceInput     Source = "input"
	SourceLoop      Source = "loop"
	SourceInterrupt Source = "interrupt"
	SourceUpdate    Source = "update"
	SourceExit      Source = "exit"
)

// Checkpoint is one durable snapshot of a thread's execution: the merged
// state values at that point, the node(s) scheduled to run next (empty
// once the thread reaches END), and any writes recorded for nodes that
// have run but not yet been merged (the "pending writes" spec §4
// describes for checkpoint-then-interrupt sequencing).
type Checkpoint struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	ThreadID     string `json:"thread_id"`
	CheckpointNS string `json:"checkpoint_ns"`

	Values State `json:"values"`
	Next   []string `json:"next"`

	// PendingWrites maps an as_node name to the state fields it wrote
	// before the checkpoint was taken but that have not yet been merged
	// into Values (e.g. writes recorded right before an interrupt).
	PendingWrites map[string]State `json:"pending_writes,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	Source    Source         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// State is the plain-map representation shared with graph.State (see the
// package doc comment for why checkpoint does not import graph to name
// graph.State directly).
type State = map[string]any

// Config addresses a specific point in a thread's history: a thread id
// (required), a namespace (empty string is the default namespace), and
// optionally a specific checkpoint id (empty means "latest").
type Config struct {
	ThreadID     string
	CheckpointNS string
	CheckpointID string
}

// CheckpointTuple bundles a Checkpoint with the Config that addresses it
// and the Config that addresses its parent, mirroring the shape get_state
// and list() return per spec §6.
type CheckpointTuple struct {
	Config       Config
	Checkpoint   Checkpoint
	ParentConfig *Config
}

// ListFilter narrows Store.List's results.
type ListFilter struct {
	// Limit caps the number of results; zero means no cap.
	Limit int
	// Before excludes checkpoints at or after this checkpoint id
	// (exclusive upper bound on history, for paging backwards in time).
	Before string
}

// Store is the durable checkpoint contract the executor reads and writes
// through. Implementations must return checkpoints from List newest
// first. Grounded on the teacher's store.Store[S] interface shape
// (save/load/list), restructured around the thread-keyed compound key.
type Store interface {
	// GetTuple returns the checkpoint named by cfg, or the most recent
	// checkpoint in (ThreadID, CheckpointNS) if cfg.CheckpointID is
	// empty. Returns ErrNotFound if none exists.
	GetTuple(ctx context.Context, cfg Config) (CheckpointTuple, error)

	// List returns checkpoints in (threadID, checkpointNS), newest
	// first, honoring filter.
	List(ctx context.Context, threadID, checkpointNS string, filter ListFilter) ([]CheckpointTuple, error)

	// Put appends a new checkpoint, returning the id it was assigned.
	// cp.ParentID may be left empty; MemoryStore then links the new
	// checkpoint to the thread's latest one, if any.
	Put(ctx context.Context, threadID, checkpointNS string, cp Checkpoint) (string, error)

	// PutWrites records writes produced by asNode for the checkpoint
	// named by cfg, without creating a new checkpoint. The graph
	// executor does not call it.
	PutWrites(ctx context.Context, cfg Config, asNode string, writes State) error

	// DeleteThread removes every checkpoint for threadID across all
	// namespaces.
	DeleteThread(ctx context.Context, threadID string) error
}
