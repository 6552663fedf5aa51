package search

import (
	"testing"
	"time"

	"mindgraph/internal/graph"
)

var testNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func testRanker(t *testing.T) (*Ranker, *graph.Store) {
	t.Helper()
	store := graph.NewStore(graph.Options{})
	return NewRanker(store), store
}

func addNode(t *testing.T, s *graph.Store, n *graph.Node) *graph.Node {
	t.Helper()
	if n.LastUpdated.IsZero() {
		n.LastUpdated = testNow.Add(-24 * time.Hour)
	}
	stored, err := s.UpsertNode(n)
	if err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	return stored
}

func pinnedOptions() Options {
	opts := DefaultOptions()
	opts.Now = testNow
	return opts
}

func TestExactNameMatchAlwaysPresent(t *testing.T) {
	ranker, store := testRanker(t)

	candidates := []*graph.Node{
		addNode(t, store, &graph.Node{ID: "a", Type: graph.NodeClass, Name: "LoginController", Confidence: 0.1}),
		addNode(t, store, &graph.Node{ID: "b", Type: graph.NodeFile, Name: "Login.ts", Confidence: 0.9}),
		addNode(t, store, &graph.Node{ID: "c", Type: graph.NodeFunction, Name: "doLogin", Confidence: 0.9}),
	}

	results := ranker.Rank("logincontroller", candidates, pinnedOptions())

	found := false
	for _, r := range results {
		if r.Node.ID == "a" {
			found = true
		}
	}
	if !found {
		t.Fatal("exact-name match dropped from results")
	}
	if results[0].Node.ID != "a" {
		t.Errorf("exact match should rank first, got %q", results[0].Node.ID)
	}
}

func TestScenarioA(t *testing.T) {
	ranker, store := testRanker(t)

	addNode(t, store, &graph.Node{ID: "f1", Type: graph.NodeFile, Name: "Login.ts"})
	c1 := addNode(t, store, &graph.Node{ID: "c1", Type: graph.NodeClass, Name: "LoginController"})
	if _, err := store.UpsertEdge(&graph.Edge{Source: "f1", Target: "c1", Type: graph.EdgeContains}); err != nil {
		t.Fatal(err)
	}

	scoreFor := func(query string) float64 {
		for _, r := range ranker.Rank(query, []*graph.Node{c1}, pinnedOptions()) {
			if r.Node.ID == "c1" {
				return r.Score
			}
		}
		t.Fatalf("c1 missing from results for %q", query)
		return 0
	}

	exact := scoreFor("LoginController")
	partial := scoreFor("Login")
	if exact < partial {
		t.Errorf("query %q scored c1 at %v, below query %q at %v", "LoginController", exact, "Login", partial)
	}
}

func TestTermExpansionMatchesIdentifiers(t *testing.T) {
	ranker, store := testRanker(t)

	n := addNode(t, store, &graph.Node{ID: "c1", Type: graph.NodeClass, Name: "LoginController"})
	other := addNode(t, store, &graph.Node{ID: "x", Type: graph.NodeClass, Name: "Unrelated"})

	results := ranker.Rank("login controller", []*graph.Node{other, n}, pinnedOptions())
	if results[0].Node.ID != "c1" {
		t.Errorf("natural-language query should rank LoginController first, got %q", results[0].Node.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Error("expected a strictly higher score for the matching identifier")
	}
}

func TestTieBreakConfidenceThenRecencyThenInsertion(t *testing.T) {
	ranker, store := testRanker(t)

	old := testNow.Add(-48 * time.Hour)
	nodes := []*graph.Node{
		addNode(t, store, &graph.Node{ID: "n1", Type: graph.NodeClass, Name: "Same", Confidence: 0.5, LastUpdated: old}),
		addNode(t, store, &graph.Node{ID: "n2", Type: graph.NodeClass, Name: "Same", Confidence: 0.9, LastUpdated: old}),
		addNode(t, store, &graph.Node{ID: "n3", Type: graph.NodeClass, Name: "Same", Confidence: 0.5, LastUpdated: old}),
	}

	results := ranker.Rank("same", nodes, pinnedOptions())
	if results[0].Node.ID != "n2" {
		t.Errorf("higher confidence should win ties, got %q first", results[0].Node.ID)
	}
	// n1 and n3 tie on everything except insertion order.
	if results[1].Node.ID != "n1" || results[2].Node.ID != "n3" {
		t.Errorf("insertion order tie-break violated: %q then %q", results[1].Node.ID, results[2].Node.ID)
	}
}

func TestRecencyDecay(t *testing.T) {
	ranker, store := testRanker(t)

	fresh := addNode(t, store, &graph.Node{ID: "fresh", Type: graph.NodeFile, Name: "thing_a",
		LastUpdated: testNow.Add(-time.Hour)})
	stale := addNode(t, store, &graph.Node{ID: "stale", Type: graph.NodeFile, Name: "thing_b",
		LastUpdated: testNow.Add(-120 * 24 * time.Hour)})

	results := ranker.Rank("thing", []*graph.Node{stale, fresh}, pinnedOptions())
	if results[0].Node.ID != "fresh" {
		t.Errorf("fresher node should outrank stale one, got %q", results[0].Node.ID)
	}
}

func TestContextBoost(t *testing.T) {
	ranker, store := testRanker(t)

	goNode := addNode(t, store, &graph.Node{ID: "g", Type: graph.NodeFile, Name: "store_a",
		Metadata: map[string]interface{}{graph.MetaLanguage: "go"}})
	tsNode := addNode(t, store, &graph.Node{ID: "ts", Type: graph.NodeFile, Name: "store_b",
		Metadata: map[string]interface{}{graph.MetaLanguage: "typescript"}})

	opts := pinnedOptions()
	opts.Context = map[string]string{"language": "go"}

	results := ranker.Rank("store", []*graph.Node{tsNode, goNode}, opts)
	if results[0].Node.ID != "g" {
		t.Errorf("context language boost should rank go node first, got %q", results[0].Node.ID)
	}
}

func TestRankDeterministic(t *testing.T) {
	ranker, store := testRanker(t)

	var candidates []*graph.Node
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		candidates = append(candidates, addNode(t, store, &graph.Node{
			ID: id, Type: graph.NodeFunction, Name: "handler_" + id, Confidence: 0.5}))
	}

	first := ranker.Rank("handler", candidates, pinnedOptions())
	for i := 0; i < 5; i++ {
		again := ranker.Rank("handler", candidates, pinnedOptions())
		for j := range first {
			if first[j].Node.ID != again[j].Node.ID {
				t.Fatalf("run %d: order changed at %d", i, j)
			}
		}
	}
}
