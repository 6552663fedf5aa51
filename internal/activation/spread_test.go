package activation

import (
	"fmt"
	"testing"

	"mindgraph/internal/graph"
)

func buildChain(t *testing.T, length int, strength float64) (*Engine, *graph.Store) {
	t.Helper()
	store := graph.NewStore(graph.Options{})
	for i := 0; i < length; i++ {
		if _, err := store.UpsertNode(&graph.Node{
			ID: fmt.Sprintf("n%d", i), Type: graph.NodeFunction, Name: fmt.Sprintf("fn%d", i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < length-1; i++ {
		if _, err := store.UpsertEdge(&graph.Edge{
			Source: fmt.Sprintf("n%d", i), Target: fmt.Sprintf("n%d", i+1),
			Type: graph.EdgeCalls, Strength: strength,
		}); err != nil {
			t.Fatal(err)
		}
	}
	return NewEngine(store), store
}

func activationOf(out *Output, id string) (float64, bool) {
	for _, r := range out.Results {
		if r.Node.ID == id {
			return r.Activation, true
		}
	}
	return 0, false
}

func TestSeedsStartAtOne(t *testing.T) {
	engine, _ := buildChain(t, 3, 1.0)
	out := engine.Spread([]string{"n0"}, DefaultOptions())

	act, ok := activationOf(out, "n0")
	if !ok || act != 1.0 {
		t.Fatalf("seed activation = %v (found=%v), want 1.0", act, ok)
	}
}

func TestDecayPerHop(t *testing.T) {
	engine, _ := buildChain(t, 4, 1.0)
	opts := DefaultOptions()
	opts.Decay = 0.7
	opts.Cutoff = 0.01
	opts.MaxHops = 3
	out := engine.Spread([]string{"n0"}, opts)

	want := map[string]float64{"n1": 0.7, "n2": 0.49, "n3": 0.343}
	for id, expected := range want {
		act, ok := activationOf(out, id)
		if !ok {
			t.Fatalf("node %s not activated", id)
		}
		if diff := act - expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("activation(%s) = %v, want %v", id, act, expected)
		}
	}
}

func TestCutoffBoundsFrontier(t *testing.T) {
	engine, _ := buildChain(t, 10, 1.0)
	opts := DefaultOptions()
	opts.Decay = 0.7
	opts.Cutoff = 0.1
	opts.MaxHops = 9
	out := engine.Spread([]string{"n0"}, opts)

	// 0.7^6 ~ 0.117, 0.7^7 ~ 0.082: the chain must stop after hop 6.
	if _, ok := activationOf(out, "n6"); !ok {
		t.Error("n6 should still be above cutoff")
	}
	if _, ok := activationOf(out, "n7"); ok {
		t.Error("n7 should be below cutoff")
	}
}

func TestBeyondMaxHopsZero(t *testing.T) {
	engine, _ := buildChain(t, 6, 1.0)
	opts := DefaultOptions()
	opts.Cutoff = 0.001
	opts.MaxHops = 2
	out := engine.Spread([]string{"n0"}, opts)

	for _, far := range []string{"n3", "n4", "n5"} {
		if _, ok := activationOf(out, far); ok {
			t.Errorf("%s is beyond maxHops and must receive no activation", far)
		}
	}
}

func TestCyclesDoNotInflate(t *testing.T) {
	store := graph.NewStore(graph.Options{})
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.UpsertNode(&graph.Node{ID: id, Type: graph.NodeClass, Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}} {
		if _, err := store.UpsertEdge(&graph.Edge{
			Source: pair[0], Target: pair[1], Type: graph.EdgeCalls, Strength: 1.0,
		}); err != nil {
			t.Fatal(err)
		}
	}

	engine := NewEngine(store)
	opts := DefaultOptions()
	opts.MaxHops = 50
	opts.Cutoff = 0.0001
	out := engine.Spread([]string{"a"}, opts)

	for _, r := range out.Results {
		if r.Activation > 1.0 {
			t.Errorf("activation of %s exceeds 1.0: %v", r.Node.ID, r.Activation)
		}
	}
}

func TestMaxAcrossPathsNotSum(t *testing.T) {
	store := graph.NewStore(graph.Options{})
	// Two parallel length-2 paths from seed to sink.
	for _, id := range []string{"seed", "mid1", "mid2", "sink"} {
		if _, err := store.UpsertNode(&graph.Node{ID: id, Type: graph.NodeClass, Name: id}); err != nil {
			t.Fatal(err)
		}
	}
	for _, pair := range [][2]string{{"seed", "mid1"}, {"seed", "mid2"}, {"mid1", "sink"}, {"mid2", "sink"}} {
		if _, err := store.UpsertEdge(&graph.Edge{
			Source: pair[0], Target: pair[1], Type: graph.EdgeRelatesTo, Strength: 1.0,
		}); err != nil {
			t.Fatal(err)
		}
	}

	engine := NewEngine(store)
	opts := DefaultOptions()
	opts.Decay = 0.7
	opts.Cutoff = 0.01
	out := engine.Spread([]string{"seed"}, opts)

	act, ok := activationOf(out, "sink")
	if !ok {
		t.Fatal("sink not activated")
	}
	// Max across the two paths is 0.49; a sum would report 0.98.
	if diff := act - 0.49; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("sink activation = %v, want max-across-paths 0.49", act)
	}
}

func TestUnknownSeedsIgnored(t *testing.T) {
	engine, _ := buildChain(t, 2, 1.0)
	out := engine.Spread([]string{"ghost", "n0"}, DefaultOptions())
	if len(out.SeedIDs) != 1 || out.SeedIDs[0] != "n0" {
		t.Errorf("expected only n0 as valid seed, got %v", out.SeedIDs)
	}
}

func TestContextMultiplierRanksMatchesFirst(t *testing.T) {
	store := graph.NewStore(graph.Options{})
	mustNode := func(n *graph.Node) {
		if _, err := store.UpsertNode(n); err != nil {
			t.Fatal(err)
		}
	}
	mustNode(&graph.Node{ID: "seed", Type: graph.NodeFile, Name: "seed"})
	mustNode(&graph.Node{ID: "go", Type: graph.NodeClass, Name: "GoThing",
		Metadata: map[string]interface{}{graph.MetaLanguage: "go"}})
	mustNode(&graph.Node{ID: "ts", Type: graph.NodeClass, Name: "TsThing",
		Metadata: map[string]interface{}{graph.MetaLanguage: "typescript"}})
	for _, target := range []string{"go", "ts"} {
		if _, err := store.UpsertEdge(&graph.Edge{
			Source: "seed", Target: target, Type: graph.EdgeContains, Strength: 0.8,
		}); err != nil {
			t.Fatal(err)
		}
	}

	engine := NewEngine(store)
	opts := DefaultOptions()
	opts.Context = map[string]string{"language": "go"}
	out := engine.Spread([]string{"seed"}, opts)

	goAct, _ := activationOf(out, "go")
	tsAct, _ := activationOf(out, "ts")
	if goAct <= tsAct {
		t.Errorf("context match should outrank: go=%v ts=%v", goAct, tsAct)
	}
}

func TestSpreadDeterministic(t *testing.T) {
	engine, _ := buildChain(t, 8, 0.9)
	opts := DefaultOptions()
	opts.Cutoff = 0.01
	opts.MaxHops = 7

	first := engine.Spread([]string{"n0"}, opts)
	for i := 0; i < 5; i++ {
		again := engine.Spread([]string{"n0"}, opts)
		if len(again.Results) != len(first.Results) {
			t.Fatalf("run %d: result count changed", i)
		}
		for j := range first.Results {
			if first.Results[j].Node.ID != again.Results[j].Node.ID {
				t.Fatalf("run %d: order changed at %d", i, j)
			}
		}
	}
}
