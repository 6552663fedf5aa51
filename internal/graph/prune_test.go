package graph

import (
	"context"
	"fmt"
	"testing"
)

func buildPruneStore(t *testing.T, edgeCount int) *Store {
	t.Helper()
	s := testStore(t)
	mustUpsertNode(t, s, &Node{ID: "hub", Type: NodeFile, Name: "hub.go"})
	for i := 0; i < edgeCount; i++ {
		id := fmt.Sprintf("n%03d", i)
		mustUpsertNode(t, s, &Node{ID: id, Type: NodeFunction, Name: id})
		// Strength rises with i so the earliest edges are the weakest.
		mustUpsertEdge(t, s, &Edge{Source: "hub", Target: id, Type: EdgeCalls,
			Strength: 0.01 + float64(i)/float64(edgeCount)})
	}
	return s
}

func TestPruneRemovesWeakestWithinCap(t *testing.T) {
	s := buildPruneStore(t, 100)

	res := s.Prune(context.Background(), 50, 0.10, 10)

	// Excess is 50 but the per-pass cap is 10% of 100 edges.
	if res.RemovedEdges != 10 {
		t.Fatalf("removed %d edges, want 10", res.RemovedEdges)
	}
	if s.EdgeCount() != 90 {
		t.Fatalf("edge count %d, want 90", s.EdgeCount())
	}

	// The weakest edges (lowest target index) must be the ones gone.
	for i := 0; i < 10; i++ {
		key := EdgeKey{Source: "hub", Target: fmt.Sprintf("n%03d", i), Type: EdgeCalls}
		if _, ok := s.GetEdge(key); ok {
			t.Errorf("weak edge %v survived prune", key)
		}
	}
}

func TestPruneNoopUnderBudget(t *testing.T) {
	s := buildPruneStore(t, 20)
	res := s.Prune(context.Background(), 100, 0.10, 10)
	if res.RemovedEdges != 0 {
		t.Fatalf("pruned %d edges under budget", res.RemovedEdges)
	}
}

func TestPruneInterruptLeavesNoDanglingEdges(t *testing.T) {
	s := buildPruneStore(t, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Prune(ctx, 10, 0.50, 10)

	if !res.Interrupted {
		t.Fatal("expected interrupted prune")
	}
	// Whatever happened, every remaining edge must have live endpoints.
	for _, e := range s.AllEdges() {
		if _, ok := s.GetNode(e.Source); !ok {
			t.Errorf("edge %v has missing source", e.Key())
		}
		if _, ok := s.GetNode(e.Target); !ok {
			t.Errorf("edge %v has missing target", e.Key())
		}
	}
}

func TestPruneConcurrentWithUpserts(t *testing.T) {
	s := buildPruneStore(t, 200)

	// Strengthen existing edges while prune passes run. Prune must work
	// from its own copies, never from edge values an upsert may touch.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for round := 0; round < 20; round++ {
			for i := 0; i < 200; i += 5 {
				id := fmt.Sprintf("n%03d", i)
				_, _ = s.UpsertEdge(&Edge{Source: "hub", Target: id, Type: EdgeCalls,
					Strength: 0.5 + float64(round)/100})
			}
		}
	}()

	for i := 0; i < 20; i++ {
		s.Prune(context.Background(), 150, 0.05, 10)
	}
	<-done

	if s.EdgeCount() > 200 {
		t.Fatalf("edge count grew to %d", s.EdgeCount())
	}
	for _, e := range s.AllEdges() {
		if _, ok := s.GetNode(e.Target); !ok {
			t.Errorf("edge %v has missing target", e.Key())
		}
	}
}

func TestPruneDeterministic(t *testing.T) {
	a := buildPruneStore(t, 60)
	b := buildPruneStore(t, 60)

	a.Prune(context.Background(), 30, 0.25, 7)
	b.Prune(context.Background(), 30, 0.25, 7)

	ea, eb := a.AllEdges(), b.AllEdges()
	if len(ea) != len(eb) {
		t.Fatalf("prune nondeterministic: %d vs %d edges", len(ea), len(eb))
	}
	for i := range ea {
		if ea[i].Key() != eb[i].Key() {
			t.Fatalf("prune nondeterministic at %d: %v vs %v", i, ea[i].Key(), eb[i].Key())
		}
	}
}
