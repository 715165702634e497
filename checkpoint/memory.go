package checkpoint

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is the in-memory reference implementation of Store.
// Grounded on the teacher's graph/store/memory.go MemStore (sync.RWMutex-
// guarded maps, append-only per-run history), reshaped to the thread-
// keyed, newest-first List contract spec §6 requires, and to ULID
// checkpoint ids (see SPEC_FULL §E.3) so that List's "before" filter and
// "latest first" ordering are correct from the id's sort order alone.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]Checkpoint // "threadID\x00ns" -> checkpoints, oldest first
	entropy *ulid.MonotonicEntropy
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]Checkpoint),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func key(threadID, ns string) string { return threadID + "\x00" + ns }

// NewCheckpointID generates a fresh, monotonically-sortable checkpoint
// id. Exported so callers building Checkpoint values by hand (tests,
// cmd/pregelctl) don't need to reach into the ulid package directly.
func (m *MemoryStore) NewCheckpointID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy)
	return id.String()
}

// GetTuple implements Store.
func (m *MemoryStore) GetTuple(_ context.Context, cfg Config) (CheckpointTuple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.threads[key(cfg.ThreadID, cfg.CheckpointNS)]
	if len(list) == 0 {
		return CheckpointTuple{}, ErrNotFound
	}

	var cp Checkpoint
	var idx int
	if cfg.CheckpointID == "" {
		idx = len(list) - 1
		cp = list[idx]
	} else {
		found := false
		for i, c := range list {
			if c.ID == cfg.CheckpointID {
				cp, idx, found = c, i, true
				break
			}
		}
		if !found {
			return CheckpointTuple{}, ErrNotFound
		}
	}

	tuple := CheckpointTuple{
		Config:     Config{ThreadID: cfg.ThreadID, CheckpointNS: cfg.CheckpointNS, CheckpointID: cp.ID},
		Checkpoint: cp,
	}
	if idx > 0 {
		parent := list[idx-1]
		tuple.ParentConfig = &Config{ThreadID: cfg.ThreadID, CheckpointNS: cfg.CheckpointNS, CheckpointID: parent.ID}
	}
	return tuple, nil
}

// List implements Store, returning newest-first.
func (m *MemoryStore) List(_ context.Context, threadID, ns string, filter ListFilter) ([]CheckpointTuple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.threads[key(threadID, ns)]
	out := make([]CheckpointTuple, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		cp := list[i]
		if filter.Before != "" && cp.ID >= filter.Before {
			continue
		}
		tuple := CheckpointTuple{
			Config:     Config{ThreadID: threadID, CheckpointNS: ns, CheckpointID: cp.ID},
			Checkpoint: cp,
		}
		if i > 0 {
			parent := list[i-1]
			tuple.ParentConfig = &Config{ThreadID: threadID, CheckpointNS: ns, CheckpointID: parent.ID}
		}
		out = append(out, tuple)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, threadID, ns string, cp Checkpoint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.ID == "" {
		cp.ID = ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.ThreadID = threadID
	cp.CheckpointNS = ns

	k := key(threadID, ns)
	list := m.threads[k]
	if cp.ParentID == "" && len(list) > 0 {
		cp.ParentID = list[len(list)-1].ID
	}
	m.threads[k] = append(list, cp)
	return cp.ID, nil
}

// PutWrites implements Store.
func (m *MemoryStore) PutWrites(_ context.Context, cfg Config, asNode string, writes State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(cfg.ThreadID, cfg.CheckpointNS)
	list := m.threads[k]
	for i := range list {
		if list[i].ID == cfg.CheckpointID || (cfg.CheckpointID == "" && i == len(list)-1) {
			if list[i].PendingWrites == nil {
				list[i].PendingWrites = make(map[string]State)
			}
			list[i].PendingWrites[asNode] = writes
			return nil
		}
	}
	return ErrNotFound
}

// DeleteThread implements Store.
func (m *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.threads {
		if len(k) >= len(threadID) && k[:len(threadID)] == threadID && (len(k) == len(threadID) || k[len(threadID)] == 0) {
			delete(m.threads, k)
		}
	}
	return nil
}

// Threads returns the distinct thread ids known to the store, sorted, so
// that callers dumping store contents (cmd/pregelctl) get a stable
// order.
func (m *MemoryStore) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool, len(m.threads))
	for k := range m.threads {
		for i := 0; i < len(k); i++ {
			if k[i] == 0 {
				seen[k[:i]] = true
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
