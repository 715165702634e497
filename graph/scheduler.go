package graph

import (
	"container/heap"
	"crypto/sha256"
	"encoding/binary"
)

// WorkItem is a schedulable unit of work in a superstep's frontier: which
// node to run, against which per-invocation Send argument (if any), and
// the deterministic OrderKey used to make concurrent dispatch
// reproducible across replays. Kept close to the teacher's
// graph/scheduler.go WorkItem[S], de-generified to the concrete State
// type and carrying a Send argument instead of a full state snapshot
// (the engine hands every work item the same frozen step-start state).
type WorkItem struct {
	Node         string
	HasArg       bool
	Arg          any
	ParentNode   string
	EdgeIndex    int
	OrderKey     uint64
	Attempt      int
}

// ComputeOrderKey derives a deterministic sort key from the parent node's
// name and the index of the edge (static, conditional branch, or Send)
// that produced this work item, so that concurrently-completing branches
// still merge in a reproducible order. Kept verbatim from the teacher's
// graph/scheduler.go ComputeOrderKey (sha256(parent+edgeIndex) truncated
// to the first 8 bytes as a big-endian uint64).
func ComputeOrderKey(parentNode string, edgeIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentNode))
	var edgeBytes [4]byte
	binary.BigEndian.PutUint32(edgeBytes[:], uint32(edgeIndex))
	h.Write(edgeBytes[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// workHeap orders WorkItems by OrderKey for deterministic dequeue order,
// independent of the order concurrent goroutines happened to enqueue
// them in.
type workHeap []WorkItem

func (h workHeap) Len() int            { return len(h) }
func (h workHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h workHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap) Push(x interface{}) { *h = append(*h, x.(WorkItem)) }
func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// frontier is the set of WorkItems dispatched within one superstep. Its
// OrderKey-sorted Items() is the deterministic processing order the
// executor relies on when merging concurrently-produced results.
type frontier struct {
	h workHeap
}

func newFrontier() *frontier {
	f := &frontier{}
	heap.Init(&f.h)
	return f
}

func (f *frontier) add(item WorkItem) {
	heap.Push(&f.h, item)
}

// items drains the frontier in OrderKey order.
func (f *frontier) items() []WorkItem {
	out := make([]WorkItem, 0, f.h.Len())
	for f.h.Len() > 0 {
		out = append(out, heap.Pop(&f.h).(WorkItem))
	}
	return out
}

func (f *frontier) len() int { return f.h.Len() }
