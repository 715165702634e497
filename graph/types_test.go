package graph

import "testing"

func TestNewInterrupt_GeneratesUniqueIDs(t *testing.T) {
	a := NewInterrupt("ask_human", "need approval")
	b := NewInterrupt("ask_human", "need approval")

	if a.ID == "" || b.ID == "" {
		t.Fatal("expected non-empty interrupt ids")
	}
	if a.ID == b.ID {
		t.Error("expected distinct ids across separate interrupt occurrences")
	}
	if a.Node != "ask_human" || a.Value != "need approval" {
		t.Errorf("unexpected interrupt fields: %+v", a)
	}
}

func TestStateClone_EmptyMap(t *testing.T) {
	var s State
	clone := s.Clone()
	if clone == nil {
		t.Fatal("expected Clone of a nil State to return a non-nil empty map")
	}
	if len(clone) != 0 {
		t.Errorf("expected empty clone, got %v", clone)
	}
}
