package graph

import "context"

// StreamMode selects which shape of event Stream emits, mirroring the
// three streaming surfaces spec §4.5.4 names.
type StreamMode string

const (
	// StreamModeValues emits the full merged state after every superstep.
	StreamModeValues StreamMode = "values"
	// StreamModeUpdates emits just the update each node contributed, as
	// soon as that node completes.
	StreamModeUpdates StreamMode = "updates"
	// StreamModeDebug emits every event that values and updates do and
	// nothing beyond them, whether or not WithDebug is set.
	StreamModeDebug StreamMode = "debug"
)

// StreamEvent is one item on a Stream channel.
type StreamEvent struct {
	Mode StreamMode
	Step int
	// Node is set for StreamModeUpdates events: which node produced Update.
	Node string
	// Values is set for StreamModeValues events: the full merged state
	// after the step that produced this event.
	Values State
	// Update is set for StreamModeUpdates events: just this node's
	// contribution before merge.
	Update State
}

// Stream runs a new invocation the same way Invoke does, but returns a
// channel of StreamEvents instead of only the final state. The returned
// channel is closed once the run completes (whether by reaching END, by
// GraphInterrupt, or by error); the terminal error, if any, is sent on
// errc before both channels close.
func (e *Executor) Stream(ctx context.Context, cfg RunConfig, input any, modes ...StreamMode) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent)
	errc := make(chan error, 1)

	enabled := map[StreamMode]bool{}
	for _, m := range modes {
		enabled[m] = true
	}
	if len(enabled) == 0 {
		enabled[StreamModeValues] = true
	}

	go func() {
		defer close(events)
		defer close(errc)

		if _, err := e.store.GetTuple(ctx, cfg.toCheckpointConfig("")); err == nil {
			errc <- NewEmptyInput("thread " + cfg.ThreadID + " already has a checkpoint; use Resume")
			return
		}
		initial, err := coerceInput(e.graph.schema, input)
		if err != nil {
			errc <- err
			return
		}
		seed := State(e.graph.schema.defaults())
		for k, v := range initial {
			seed[k] = v
		}

		onEvent := func(ev StreamEvent) {
			if !enabled[ev.Mode] && !enabled[StreamModeDebug] {
				return
			}
			events <- ev
		}

		start, err := e.graph.initialFrontier(seed)
		if err != nil {
			errc <- err
			return
		}
		if _, runErr := e.run(ctx, cfg, seed, start, 0, false, onEvent); runErr != nil {
			errc <- runErr
		}
	}()

	return events, errc
}
