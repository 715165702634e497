package graph

import (
	"context"

	"github.com/lattice-run/pregel/checkpoint"
)

// GetState returns the most recent StateSnapshot recorded for cfg.ThreadID.
func (e *Executor) GetState(ctx context.Context, cfg RunConfig) (StateSnapshot, error) {
	tuple, err := e.store.GetTuple(ctx, cfg.toCheckpointConfig(""))
	if err != nil {
		return StateSnapshot{}, err
	}
	return toSnapshot(tuple), nil
}

// GetStateHistory returns every checkpoint recorded for cfg.ThreadID,
// newest first, honoring filter.
func (e *Executor) GetStateHistory(ctx context.Context, cfg RunConfig, filter checkpoint.ListFilter) ([]StateSnapshot, error) {
	tuples, err := e.store.List(ctx, cfg.ThreadID, cfg.CheckpointNS, filter)
	if err != nil {
		return nil, err
	}
	out := make([]StateSnapshot, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, toSnapshot(t))
	}
	return out, nil
}

func toSnapshot(t checkpoint.CheckpointTuple) StateSnapshot {
	var pending map[string]State
	if t.Checkpoint.PendingWrites != nil {
		pending = make(map[string]State, len(t.Checkpoint.PendingWrites))
		for node, w := range t.Checkpoint.PendingWrites {
			pending[node] = State(w)
		}
	}
	return StateSnapshot{
		ThreadID:      t.Config.ThreadID,
		CheckpointID:  t.Config.CheckpointID,
		CheckpointNS:  t.Config.CheckpointNS,
		Values:        State(t.Checkpoint.Values),
		Next:          t.Checkpoint.Next,
		PendingWrites: pending,
		CreatedAt:     t.Checkpoint.CreatedAt,
	}
}

// UpdateState applies update to cfg.ThreadID's current state as if
// asNode had written it, folding each field through its declared reducer
// rather than a blind overwrite, and records a new checkpoint carrying
// metadata.writes = {asNode: update} when asNode is non-empty (Open
// Question resolution, SPEC_FULL §E.2; an empty asNode leaves the
// metadata unset) so the provenance of a manually-injected edit is distinguishable
// from a node's own write in get_state history. The thread's pending
// Next is left unchanged: update_state edits state, it does not
// reschedule.
func (e *Executor) UpdateState(ctx context.Context, cfg RunConfig, update State, asNode string) (checkpoint.Config, error) {
	tuple, err := e.store.GetTuple(ctx, cfg.toCheckpointConfig(""))
	if err != nil {
		return checkpoint.Config{}, err
	}

	merged := State{}
	for k, v := range tuple.Checkpoint.Values {
		merged[k] = v
	}
	for field, newVal := range update {
		ch := e.graph.schema.newChannel(field)
		reducer := e.graph.schema.reducerFor(field)
		if old, ok := merged[field]; ok {
			if err := ch.Update([]any{old}, reducer); err != nil {
				return checkpoint.Config{}, err
			}
		}
		if err := ch.Update([]any{newVal}, reducer); err != nil {
			return checkpoint.Config{}, err
		}
		v, err := ch.Get()
		if err != nil {
			return checkpoint.Config{}, NewEmptyChannel(field)
		}
		merged[field] = v
	}

	var metadata map[string]any
	if asNode != "" {
		metadata = map[string]any{"writes": map[string]any{asNode: update}}
	}
	id, err := e.store.Put(ctx, cfg.ThreadID, cfg.CheckpointNS, checkpoint.Checkpoint{
		ParentID: tuple.Checkpoint.ID,
		Values:   merged,
		Next:     tuple.Checkpoint.Next,
		Metadata: metadata,
		Source:   checkpoint.SourceUpdate,
	})
	if err != nil {
		return checkpoint.Config{}, err
	}
	return checkpoint.Config{ThreadID: cfg.ThreadID, CheckpointNS: cfg.CheckpointNS, CheckpointID: id}, nil
}
