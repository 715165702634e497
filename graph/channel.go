package graph

import (
	"errors"
	"fmt"
)

// ChannelKind discriminates the four channel disciplines so callers (and
// diagnostics) can name which of the four merge strategies a field uses.
// Conflict detection no longer switches on Kind directly -- see
// Channel.SingleWriter -- because Ephemeral's guard flag is a per-instance
// property Kind alone cannot express.
type ChannelKind int

const (
	// KindLastValue accepts at most one write per superstep and holds it
	// until overwritten.
	KindLastValue ChannelKind = iota
	// KindOperatorAggregate folds every write of a superstep (and every
	// superstep since) through a Reducer.
	KindOperatorAggregate
	// KindEphemeral behaves like LastValue but clears back to its zero
	// value on any superstep where it receives no write -- useful for
	// per-step signals that should not leak into the next step.
	KindEphemeral
	// KindTopic accumulates every write across supersteps (or, in
	// non-accumulating mode, just the current superstep's writes),
	// flattening one level of nested sequences, and raises
	// ErrChannelEmpty if read before any write ever lands.
	KindTopic
)

// ErrChannelEmpty is returned by a Topic channel's Get when it has never
// received a write. The executor wraps it into an EmptyChannel naming the
// field before surfacing it to the caller.
var ErrChannelEmpty = errors.New("graph: channel empty")

// missingValue is Missing's concrete type.
type missingValue struct{}

// Missing is the Checkpoint/Restore sentinel meaning "this channel has
// never been written", distinct from a channel holding an explicit nil.
var Missing = missingValue{}

// Channel governs how a single State field accumulates writes across a
// run. Channels are stateful, so a Schema never holds live Channel
// instances directly -- it holds a ChannelFactory per field, and the
// executor instantiates one Channel per field per run.
type Channel interface {
	// Kind reports which of the four disciplines this channel implements.
	Kind() ChannelKind
	// Update folds this superstep's writes (possibly empty) into the
	// channel's value using reducer where the discipline calls for
	// folding. For single-writer channels, writes has at most one
	// element by the time the executor calls Update (multi-writer
	// conflicts are rejected earlier, as InvalidUpdate).
	Update(writes []any, reducer Reducer) error
	// Get returns the channel's current value.
	Get() (any, error)
	// SingleWriter reports whether the executor must reject more than one
	// writer to this channel within a superstep before ever calling
	// Update. True for LastValue and guarded Ephemeral channels; false
	// for OperatorAggregate, Topic, and unguarded Ephemeral channels.
	SingleWriter() bool
	// Available reports whether the channel currently holds a value a
	// node could observe through Get -- false for a Topic never written,
	// or an Ephemeral channel that just cleared.
	Available() bool
	// Checkpoint returns a value capturing the channel's full internal
	// state (not just its merged Get value), suitable for Restore or
	// Copy. The returned value's concrete type is private to each
	// channel implementation; callers only ever round-trip it through
	// Restore on a channel of the same kind.
	Checkpoint() any
	// Restore replaces the channel's internal state from a value
	// previously returned by Checkpoint on a channel of the same kind.
	Restore(data any) error
	// Copy returns an independent Channel with the same internal state,
	// so handing out a checkpoint snapshot never aliases a live run's
	// channel.
	Copy() Channel
}

// ChannelFactory produces a fresh, zero-valued Channel instance. Schema
// fields hold a ChannelFactory rather than a Channel so that the same
// Schema can be reused across many concurrent runs without runs sharing
// channel state.
type ChannelFactory func() Channel

// LastValue is the ChannelFactory for KindLastValue channels, and the
// default every field falls back to when a Schema doesn't specify one and
// has no Reducer either.
func LastValue() ChannelFactory {
	return func() Channel { return &lastValueChannel{} }
}

// OperatorAggregate is the ChannelFactory for KindOperatorAggregate
// channels.
func OperatorAggregate() ChannelFactory {
	return func() Channel { return &operatorAggregateChannel{} }
}

// Ephemeral is the ChannelFactory for KindEphemeral channels. guard
// controls whether the channel enforces single-writer-per-superstep (the
// conventional "per-step signal" use): guard=true rejects a second writer
// the same way LastValue does; guard=false tolerates any number of
// writers and simply keeps the last one, the way LastValue's write-then-
// clear cousin behaves when used as a scratch/broadcast slot.
func Ephemeral(guard bool) ChannelFactory {
	return func() Channel { return &ephemeralChannel{guard: guard} }
}

// Topic is the ChannelFactory for KindTopic channels. When accumulate is
// false the channel discards its contents at the start of any superstep
// that has at least one new write, keeping only that step's writes;
// when true (the common case) it keeps everything ever written.
func Topic(accumulate bool) ChannelFactory {
	return func() Channel { return &topicChannel{accumulate: accumulate} }
}

// lastValueChannel holds the most recent write. A superstep with no
// write leaves the previous value in place. If a reducer is supplied to
// Update (a field can declare a Reducer even while explicitly pinning a
// LastValue channel), the write folds through it against the previous
// value instead of overwriting -- per the rule that a declared reducer
// always applies, regardless of channel kind.
type lastValueChannel struct {
	value   any
	written bool
}

func (c *lastValueChannel) Kind() ChannelKind { return KindLastValue }

func (c *lastValueChannel) Update(writes []any, reducer Reducer) error {
	if len(writes) == 0 {
		return nil
	}
	for _, w := range writes {
		if reducer == nil {
			c.value = w
			continue
		}
		merged, err := reducer(c.value, w)
		if err != nil {
			return err
		}
		c.value = merged
	}
	c.written = true
	return nil
}

func (c *lastValueChannel) Get() (any, error) { return c.value, nil }

func (c *lastValueChannel) SingleWriter() bool { return true }

func (c *lastValueChannel) Available() bool { return c.written }

type lastValueCheckpoint struct {
	Value   any
	Written bool
}

func (c *lastValueChannel) Checkpoint() any {
	if !c.written {
		return lastValueCheckpoint{Value: Missing, Written: false}
	}
	return lastValueCheckpoint{Value: c.value, Written: true}
}

func (c *lastValueChannel) Restore(data any) error {
	snap, ok := data.(lastValueCheckpoint)
	if !ok {
		return fmt.Errorf("graph: lastValueChannel.Restore: unexpected checkpoint type %T", data)
	}
	c.written = snap.Written
	if snap.Written {
		c.value = snap.Value
	} else {
		c.value = nil
	}
	return nil
}

func (c *lastValueChannel) Copy() Channel {
	cp := *c
	return &cp
}

// operatorAggregateChannel folds every write, in every superstep,
// through its Reducer, building up a running value (a counter, a running
// sum, a merged scratch map) rather than holding just the latest write.
type operatorAggregateChannel struct {
	value   any
	written bool
}

func (c *operatorAggregateChannel) Kind() ChannelKind { return KindOperatorAggregate }

func (c *operatorAggregateChannel) Update(writes []any, reducer Reducer) error {
	for _, w := range writes {
		merged, err := reducer(c.value, w)
		if err != nil {
			return err
		}
		c.value = merged
		c.written = true
	}
	return nil
}

func (c *operatorAggregateChannel) Get() (any, error) { return c.value, nil }

func (c *operatorAggregateChannel) SingleWriter() bool { return false }

func (c *operatorAggregateChannel) Available() bool { return c.written }

type operatorAggregateCheckpoint struct {
	Value   any
	Written bool
}

func (c *operatorAggregateChannel) Checkpoint() any {
	if !c.written {
		return operatorAggregateCheckpoint{Value: Missing, Written: false}
	}
	return operatorAggregateCheckpoint{Value: c.value, Written: true}
}

func (c *operatorAggregateChannel) Restore(data any) error {
	snap, ok := data.(operatorAggregateCheckpoint)
	if !ok {
		return fmt.Errorf("graph: operatorAggregateChannel.Restore: unexpected checkpoint type %T", data)
	}
	c.written = snap.Written
	if snap.Written {
		c.value = snap.Value
	} else {
		c.value = nil
	}
	return nil
}

func (c *operatorAggregateChannel) Copy() Channel {
	cp := *c
	return &cp
}

// ephemeralChannel behaves like lastValueChannel except it resets to its
// zero value on any superstep where nothing writes to it, so a signal
// written in one step never silently survives into the next. guard
// mirrors the constructor argument to Ephemeral: when true, a second
// writer in the same superstep is an InvalidUpdate exactly like
// LastValue; when false, the channel tolerates any number of writers and
// simply keeps the last one written this step.
type ephemeralChannel struct {
	value  any
	active bool
	guard  bool
}

func (c *ephemeralChannel) Kind() ChannelKind { return KindEphemeral }

func (c *ephemeralChannel) Update(writes []any, reducer Reducer) error {
	if len(writes) == 0 {
		c.value = nil
		c.active = false
		return nil
	}
	for _, w := range writes {
		if reducer == nil {
			c.value = w
			continue
		}
		merged, err := reducer(c.value, w)
		if err != nil {
			return err
		}
		c.value = merged
	}
	c.active = true
	return nil
}

func (c *ephemeralChannel) Get() (any, error) { return c.value, nil }

// Active reports whether the channel was written in the most recent
// superstep (as opposed to holding a stale value from before it cleared).
func (c *ephemeralChannel) Active() bool { return c.active }

func (c *ephemeralChannel) SingleWriter() bool { return c.guard }

func (c *ephemeralChannel) Available() bool { return c.active }

type ephemeralCheckpoint struct {
	Value  any
	Active bool
	Guard  bool
}

func (c *ephemeralChannel) Checkpoint() any {
	v := c.value
	if !c.active {
		v = Missing
	}
	return ephemeralCheckpoint{Value: v, Active: c.active, Guard: c.guard}
}

func (c *ephemeralChannel) Restore(data any) error {
	snap, ok := data.(ephemeralCheckpoint)
	if !ok {
		return fmt.Errorf("graph: ephemeralChannel.Restore: unexpected checkpoint type %T", data)
	}
	c.active = snap.Active
	c.guard = snap.Guard
	if snap.Active {
		c.value = snap.Value
	} else {
		c.value = nil
	}
	return nil
}

func (c *ephemeralChannel) Copy() Channel {
	cp := *c
	return &cp
}

// topicChannel accumulates writes, flattening one level of []any nesting
// so a node that returns a slice of items (e.g. several messages at once)
// contributes each item individually rather than the slice as one
// element.
type topicChannel struct {
	values      []any
	accumulate  bool
	everWritten bool
}

func (c *topicChannel) Kind() ChannelKind { return KindTopic }

func (c *topicChannel) Update(writes []any, _ Reducer) error {
	if len(writes) == 0 {
		return nil
	}
	if !c.accumulate {
		c.values = nil
	}
	for _, w := range writes {
		if nested, ok := w.([]any); ok {
			c.values = append(c.values, nested...)
			continue
		}
		c.values = append(c.values, w)
	}
	c.everWritten = true
	return nil
}

// Get implements Channel. It returns ErrChannelEmpty if the channel has
// never been written to.
func (c *topicChannel) Get() (any, error) {
	if !c.everWritten {
		return nil, ErrChannelEmpty
	}
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out, nil
}

func (c *topicChannel) SingleWriter() bool { return false }

func (c *topicChannel) Available() bool { return c.everWritten }

type topicCheckpoint struct {
	Values      []any
	Accumulate  bool
	EverWritten bool
}

func (c *topicChannel) Checkpoint() any {
	values := make([]any, len(c.values))
	copy(values, c.values)
	return topicCheckpoint{Values: values, Accumulate: c.accumulate, EverWritten: c.everWritten}
}

func (c *topicChannel) Restore(data any) error {
	snap, ok := data.(topicCheckpoint)
	if !ok {
		return fmt.Errorf("graph: topicChannel.Restore: unexpected checkpoint type %T", data)
	}
	c.values = make([]any, len(snap.Values))
	copy(c.values, snap.Values)
	c.accumulate = snap.Accumulate
	c.everWritten = snap.EverWritten
	return nil
}

func (c *topicChannel) Copy() Channel {
	values := make([]any, len(c.values))
	copy(values, c.values)
	return &topicChannel{values: values, accumulate: c.accumulate, everWritten: c.everWritten}
}
