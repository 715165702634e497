package checkpoint

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_PutThenGetTuple(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Put(ctx, "thread-1", "", Checkpoint{Values: State{"x": 1}, Next: []string{"a"}, Source: SourceLoop})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty generated checkpoint id")
	}

	tuple, err := store.GetTuple(ctx, Config{ThreadID: "thread-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tuple.Checkpoint.Values["x"] != 1 {
		t.Errorf("expected values[x]=1, got %v", tuple.Checkpoint.Values)
	}
	if tuple.Config.CheckpointID != id {
		t.Errorf("expected returned tuple to address checkpoint %q, got %q", id, tuple.Config.CheckpointID)
	}
}

func TestMemoryStore_GetTuple_NotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetTuple(context.Background(), Config{ThreadID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_GetTuple_SpecificCheckpointID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Put(ctx, "t", "", Checkpoint{Values: State{"step": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Put(ctx, "t", "", Checkpoint{Values: State{"step": 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tuple, err := store.GetTuple(ctx, Config{ThreadID: "t", CheckpointID: first})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tuple.Checkpoint.Values["step"] != 1 {
		t.Errorf("expected to retrieve the first checkpoint, got %v", tuple.Checkpoint.Values)
	}
	if tuple.ParentConfig != nil {
		t.Errorf("expected the first checkpoint to have no parent, got %v", tuple.ParentConfig)
	}
}

func TestMemoryStore_List_NewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Put(ctx, "t", "", Checkpoint{Values: State{"i": i}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	tuples, err := store.List(ctx, "t", "", ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tuples) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(tuples))
	}
	if tuples[0].Checkpoint.Values["i"] != 2 || tuples[2].Checkpoint.Values["i"] != 0 {
		t.Errorf("expected newest-first order, got %v, %v, %v",
			tuples[0].Checkpoint.Values["i"], tuples[1].Checkpoint.Values["i"], tuples[2].Checkpoint.Values["i"])
	}
}

func TestMemoryStore_List_Limit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		store.Put(ctx, "t", "", Checkpoint{Values: State{"i": i}})
	}

	tuples, err := store.List(ctx, "t", "", ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tuples) != 2 {
		t.Fatalf("expected 2 checkpoints with Limit=2, got %d", len(tuples))
	}
}

func TestMemoryStore_List_Before(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := store.Put(ctx, "t", "", Checkpoint{Values: State{"i": i}})
		ids = append(ids, id)
	}

	tuples, err := store.List(ctx, "t", "", ListFilter{Before: ids[2]})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tuple := range tuples {
		if tuple.Config.CheckpointID >= ids[2] {
			t.Errorf("expected every result strictly before %q, got %q", ids[2], tuple.Config.CheckpointID)
		}
	}
	if len(tuples) != 2 {
		t.Errorf("expected 2 checkpoints before the newest, got %d", len(tuples))
	}
}

func TestMemoryStore_PutWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "t", "", Checkpoint{Values: State{"x": 1}})

	err := store.PutWrites(ctx, Config{ThreadID: "t"}, "node_a", State{"y": 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tuple, _ := store.GetTuple(ctx, Config{ThreadID: "t"})
	if tuple.Checkpoint.PendingWrites["node_a"]["y"] != 2 {
		t.Errorf("expected pending write recorded, got %v", tuple.Checkpoint.PendingWrites)
	}
}

func TestMemoryStore_PutWrites_NotFound(t *testing.T) {
	store := NewMemoryStore()
	err := store.PutWrites(context.Background(), Config{ThreadID: "ghost"}, "node_a", State{"y": 2})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteThread(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "t1", "", Checkpoint{Values: State{"x": 1}})
	store.Put(ctx, "t1", "ns2", Checkpoint{Values: State{"x": 1}})
	store.Put(ctx, "t2", "", Checkpoint{Values: State{"x": 1}})

	if err := store.DeleteThread(ctx, "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.GetTuple(ctx, Config{ThreadID: "t1"}); !errors.Is(err, ErrNotFound) {
		t.Error("expected t1's default namespace to be gone")
	}
	if _, err := store.GetTuple(ctx, Config{ThreadID: "t1", CheckpointNS: "ns2"}); !errors.Is(err, ErrNotFound) {
		t.Error("expected t1's ns2 namespace to be gone too")
	}
	if _, err := store.GetTuple(ctx, Config{ThreadID: "t2"}); err != nil {
		t.Error("expected t2 to survive deleting t1")
	}
}

func TestMemoryStore_Threads(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "b-thread", "", Checkpoint{})
	store.Put(ctx, "a-thread", "", Checkpoint{})
	store.Put(ctx, "a-thread", "ns", Checkpoint{})

	threads := store.Threads()
	if len(threads) != 2 || threads[0] != "a-thread" || threads[1] != "b-thread" {
		t.Errorf("expected sorted distinct threads [a-thread b-thread], got %v", threads)
	}
}

func TestMemoryStore_NewCheckpointID_Monotonic(t *testing.T) {
	store := NewMemoryStore()
	a := store.NewCheckpointID()
	b := store.NewCheckpointID()
	if a >= b {
		t.Errorf("expected monotonically increasing ids, got %q then %q", a, b)
	}
}
