package paths

import (
	"os"
	"path/filepath"
	"testing"

	mgerrors "mindgraph/internal/errors"
)

func TestCanonicalize(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "src", "a.go")

	got, err := Canonicalize(sub, root)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "src/a.go" {
		t.Errorf("got %q, want src/a.go", got)
	}
}

func TestIsWithinRoot(t *testing.T) {
	root := t.TempDir()

	if !IsWithinRoot(filepath.Join(root, "x", "y"), root) {
		t.Error("nested path should be within root")
	}
	if IsWithinRoot(filepath.Join(root, "..", "escape"), root) {
		t.Error("parent traversal should not be within root")
	}
	if IsWithinRoot(string(filepath.Separator)+"somewhere-else", root) {
		t.Error("unrelated absolute path should not be within root")
	}
}

func TestResolveStorePathDefault(t *testing.T) {
	root := t.TempDir()
	got, err := ResolveStorePath(root, "", "graph.json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(root, StoreDirName, "graph.json")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveStorePathRelativeInsideRoot(t *testing.T) {
	root := t.TempDir()
	got, err := ResolveStorePath(root, "state/graph.json", "graph.json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(root, "state", "graph.json") {
		t.Errorf("got %q", got)
	}
}

func TestResolveStorePathAllowsTempDir(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(os.TempDir(), "mindgraph-test", "graph.json")
	if _, err := ResolveStorePath(root, target, "graph.json"); err != nil {
		t.Errorf("temp dir location should be allowed: %v", err)
	}
}

func TestResolveStorePathRejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveStorePath(root, string(filepath.Separator)+"etc/graph.json", "graph.json")
	if err == nil {
		t.Fatal("expected escape rejection")
	}
	if !mgerrors.HasCode(err, mgerrors.StorePathEscape) {
		t.Errorf("code = %v, want StorePathEscape", mgerrors.CodeOf(err))
	}
}

func TestEnsureStoreDir(t *testing.T) {
	root := t.TempDir()
	dir, err := EnsureStoreDir(root)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("store dir not created: %v", err)
	}
	// Second call is a no-op.
	if _, err := EnsureStoreDir(root); err != nil {
		t.Errorf("second ensure failed: %v", err)
	}
}
