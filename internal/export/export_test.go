package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"mindgraph/internal/errors"
	"mindgraph/internal/graph"
)

func seededStore(t *testing.T, root string) *graph.Store {
	t.Helper()
	s := graph.NewStore(graph.Options{ProjectRoot: root})
	for _, n := range []graph.Node{
		{ID: "f1", Type: graph.NodeFile, Name: "a.go", Path: "src/a.go", Confidence: 0.9},
		{ID: "c1", Type: graph.NodeClass, Name: "A", Confidence: 0.8},
	} {
		if _, err := s.UpsertNode(&n); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if _, err := s.UpsertEdge(&graph.Edge{Source: "f1", Target: "c1", Type: graph.EdgeContains}); err != nil {
		t.Fatalf("upsert edge: %v", err)
	}
	return s
}

func TestExportJSON(t *testing.T) {
	root := t.TempDir()
	s := seededStore(t, root)

	out := filepath.Join(root, "graph-export.json")
	if err := Export(s, root, out, FormatJSON); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var doc struct {
		Version int               `json:"version"`
		Nodes   []json.RawMessage `json:"nodes"`
		Edges   []json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(doc.Nodes) != 2 || len(doc.Edges) != 1 {
		t.Errorf("exported %d nodes, %d edges", len(doc.Nodes), len(doc.Edges))
	}
	if doc.Version != graph.SchemaVersion {
		t.Errorf("version = %d, want %d", doc.Version, graph.SchemaVersion)
	}
}

func TestExportYAMLUsesSameKeys(t *testing.T) {
	root := t.TempDir()
	s := seededStore(t, root)

	out := filepath.Join(root, "graph-export.yaml")
	if err := Export(s, root, out, FormatYAML); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid YAML: %v", err)
	}
	if _, ok := doc["projectRoot"]; !ok {
		t.Errorf("YAML should use the JSON key names, got %v", keys(doc))
	}
	nodes, ok := doc["nodes"].([]interface{})
	if !ok || len(nodes) != 2 {
		t.Errorf("nodes = %v", doc["nodes"])
	}
}

func TestExportRejectsPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	s := seededStore(t, root)

	// Temp dirs live under os.TempDir, so pick a path escaping every
	// allowed prefix.
	out := filepath.Join(string(filepath.Separator), "nonexistent-root", "export.json")
	err := Export(s, root, out, FormatJSON)
	if err == nil {
		t.Fatal("expected path-escape rejection")
	}
	if !errors.HasCode(err, errors.StorePathEscape) {
		t.Errorf("error code = %v, want StorePathEscape", errors.CodeOf(err))
	}
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{
		"json": FormatJSON,
		"YAML": FormatYAML,
		".yml": FormatYAML,
	} {
		got, err := ParseFormat(input)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("unsupported format should be rejected")
	}
}
