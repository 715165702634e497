package graph

import "fmt"

// Reducer merges a field's previous value with an incoming delta produced
// by a node's write to that field, and returns the new value to store.
//
// Reducers are the core of the engine's deterministic state management:
// given the same (prev, delta) pair they always produce the same result,
// regardless of which node produced delta or how many supersteps have
// elapsed. A Schema attaches exactly one Reducer to each field it
// declares; fields left out of the schema default to Replace.
type Reducer func(prev, delta any) (any, error)

// Replace discards prev and returns delta verbatim. This is the default
// reducer for fields a Schema does not otherwise declare, matching
// LastValue channel semantics.
func Replace(_, delta any) (any, error) {
	return delta, nil
}

// Append concatenates delta onto prev, treating both as slices (or
// promoting a scalar delta to a single-element slice). Used for fields
// that accumulate a list across supersteps, such as a trace of visited
// node names.
func Append(prev, delta any) (any, error) {
	prevSlice, err := toSlice(prev)
	if err != nil {
		return nil, err
	}
	deltaSlice, err := toSlice(delta)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(prevSlice)+len(deltaSlice))
	out = append(out, prevSlice...)
	out = append(out, deltaSlice...)
	return out, nil
}

// SumConcat adds prev and delta when both are numeric, or concatenates
// them when both are strings, or falls back to Append for slices. This is
// the standard "accumulator" reducer named in the reducer vocabulary:
// counters sum, text concatenates, lists append.
func SumConcat(prev, delta any) (any, error) {
	if prev == nil {
		return delta, nil
	}
	switch p := prev.(type) {
	case int:
		d, ok := delta.(int)
		if !ok {
			return nil, fmt.Errorf("graph: SumConcat: delta type %T incompatible with prev type int", delta)
		}
		return p + d, nil
	case int64:
		d, ok := delta.(int64)
		if !ok {
			return nil, fmt.Errorf("graph: SumConcat: delta type %T incompatible with prev type int64", delta)
		}
		return p + d, nil
	case float64:
		d, ok := delta.(float64)
		if !ok {
			return nil, fmt.Errorf("graph: SumConcat: delta type %T incompatible with prev type float64", delta)
		}
		return p + d, nil
	case string:
		d, ok := delta.(string)
		if !ok {
			return nil, fmt.Errorf("graph: SumConcat: delta type %T incompatible with prev type string", delta)
		}
		return p + d, nil
	case []any:
		return Append(prev, delta)
	default:
		return nil, fmt.Errorf("graph: SumConcat: unsupported prev type %T", prev)
	}
}

// Merge performs a shallow merge of two map[string]any values, with delta
// keys taking precedence over prev keys. Used for fields whose value is
// itself a nested record that different nodes contribute partial updates
// to (e.g. a per-key scratch space).
func Merge(prev, delta any) (any, error) {
	if prev == nil {
		prev = map[string]any{}
	}
	prevMap, ok := prev.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graph: Merge: prev type %T is not map[string]any", prev)
	}
	if delta == nil {
		return prevMap, nil
	}
	deltaMap, ok := delta.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graph: Merge: delta type %T is not map[string]any", delta)
	}
	out := make(map[string]any, len(prevMap)+len(deltaMap))
	for k, v := range prevMap {
		out[k] = v
	}
	for k, v := range deltaMap {
		out[k] = v
	}
	return out, nil
}

// MessageMerge performs an ordered merge keyed by each item's "id"
// attribute: an incoming item whose id matches an item already in prev
// replaces that item in place (preserving its original position), and an
// item with no id (or a new id) is appended in incoming order. A nil prev
// is treated as empty. Neither prev nor delta is mutated -- the result is
// always a freshly built slice -- which is what lets message history
// channels be safely checkpointed and replayed.
func MessageMerge(prev, delta any) (any, error) {
	prevSlice, err := toSlice(prev)
	if err != nil {
		return nil, err
	}
	deltaSlice, err := toSlice(delta)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(prevSlice))
	copy(out, prevSlice)

	byID := make(map[any]int, len(out))
	for i, item := range out {
		if id, ok := messageID(item); ok {
			byID[id] = i
		}
	}

	for _, item := range deltaSlice {
		if id, ok := messageID(item); ok {
			if i, exists := byID[id]; exists {
				out[i] = item
				continue
			}
			byID[id] = len(out)
		}
		out = append(out, item)
	}
	return out, nil
}

// messageID extracts a message item's "id" attribute, if it has one and
// it's non-nil. Only map-shaped items (the wire representation of a
// message) participate in id-keyed replacement; anything else is treated
// as id-less and always appended.
func messageID(item any) (any, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	id, ok := m["id"]
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}

func toSlice(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	switch s := v.(type) {
	case []any:
		return s, nil
	default:
		return []any{v}, nil
	}
}
