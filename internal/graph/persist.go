package graph

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// Wire shapes decouple validation from the in-memory types: timestamps
// arrive as strings so an unparseable value can default to "now" instead
// of failing the whole document.
type nodeWire struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Path        string                 `json:"path,omitempty"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	LastUpdated string                 `json:"lastUpdated"`
}

type edgeWire struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Strength   float64 `json:"strength"`
	ValidFrom  string  `json:"validFrom,omitempty"`
	ValidTo    string  `json:"validTo,omitempty"`
	TxTime     string  `json:"txTime"`
}

type documentWire struct {
	Version     int        `json:"version"`
	ProjectRoot string     `json:"projectRoot"`
	LastScan    string     `json:"lastScan"`
	Nodes       []nodeWire `json:"nodes"`
	Edges       []edgeWire `json:"edges"`
}

// SaveTo serializes the graph to a single JSON document at path, written
// atomically (temp file + rename) with a blake3 checksum sidecar. When
// snapshot is true a zstd-compressed copy is written next to it.
func (s *Store) SaveTo(path string, snapshot bool) error {
	s.mu.RLock()
	doc := s.documentLocked()
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace document: %w", err)
	}

	sum := blake3.Sum256(data)
	if err := os.WriteFile(path+".sum", []byte(hex.EncodeToString(sum[:])+"\n"), 0o644); err != nil {
		s.logger.Warn("Failed to write document checksum", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
	}

	if snapshot {
		if err := writeSnapshot(path+".zst", data); err != nil {
			s.logger.Warn("Failed to write compressed snapshot", map[string]interface{}{
				"path": path + ".zst", "error": err.Error(),
			})
		}
	}

	s.logger.Debug("Graph document saved", map[string]interface{}{
		"path": path, "nodes": len(doc.Nodes), "edges": len(doc.Edges), "bytes": len(data),
	})
	return nil
}

func writeSnapshot(path string, data []byte) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()
	return os.WriteFile(path, compressed, 0o644)
}

// documentLocked builds the persisted shape under the read lock, nodes in
// insertion order and edges in key order so saves are byte-stable.
func (s *Store) documentLocked() *Document {
	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, cloneNode(n))
	}
	sort.Slice(nodes, func(i, j int) bool {
		return s.seq[nodes[i].ID] < s.seq[nodes[j].ID]
	})

	edges := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, cloneEdge(e))
	}
	sort.Slice(edges, func(i, j int) bool { return edgeLess(edges[i], edges[j]) })

	lastScan := ""
	if !s.lastScan.IsZero() {
		lastScan = s.lastScan.UTC().Format(time.RFC3339)
	}

	return &Document{
		Version:     SchemaVersion,
		ProjectRoot: s.projectRoot,
		LastScan:    lastScan,
		Nodes:       nodes,
		Edges:       edges,
	}
}

// Document returns the current persisted shape of the graph.
func (s *Store) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentLocked()
}

// LoadFrom replaces the graph with the document at path. Availability wins
// over failing closed: a missing, truncated, or schema-invalid document
// yields a fresh empty graph at the current schema version and never an
// error to the caller. Dangling edges are dropped and logged; unparseable
// timestamps default to now. Returns the number of nodes and edges loaded.
func (s *Store) LoadFrom(path string) (nodes, edges int) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read graph document, starting fresh", map[string]interface{}{
				"path": path, "error": err.Error(),
			})
		}
		s.reset()
		return 0, 0
	}

	if sumData, err := os.ReadFile(path + ".sum"); err == nil {
		sum := blake3.Sum256(data)
		if strings.TrimSpace(string(sumData)) != hex.EncodeToString(sum[:]) {
			s.logger.Warn("Graph document checksum mismatch", map[string]interface{}{
				"path": path,
			})
		}
	}

	doc, err := decodeDocument(data)
	if err != nil {
		s.logger.Warn("Graph document invalid, starting fresh", map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		s.reset()
		return 0, 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*Node, len(doc.Nodes))
	s.edges = make(map[EdgeKey]*Edge, len(doc.Edges))
	s.seq = make(map[string]int64, len(doc.Nodes))
	s.nextSeq = 0

	now := time.Now()
	for _, w := range doc.Nodes {
		if w.ID == "" || w.Type == "" {
			s.logger.Warn("Dropping node without id or type", map[string]interface{}{
				"id": w.ID, "name": w.Name,
			})
			continue
		}
		if _, dup := s.nodes[w.ID]; dup {
			continue
		}
		n := &Node{
			ID:          w.ID,
			Type:        NodeType(w.Type),
			Name:        w.Name,
			Path:        normalizeStoredPath(w.Path),
			Confidence:  clamp01(w.Confidence),
			Metadata:    w.Metadata,
			LastUpdated: parseTimeOr(w.LastUpdated, now),
		}
		trimTaskHistory(n.Metadata, s.historyLimit)
		s.nodes[n.ID] = n
		s.seq[n.ID] = s.nextSeq
		s.nextSeq++
	}

	dropped := 0
	for _, w := range doc.Edges {
		if w.Source == "" || w.Target == "" || w.Type == "" {
			dropped++
			continue
		}
		// Integrity invariant: both endpoints must exist. A dangling edge
		// is self-healed by dropping it, never surfaced in results.
		if _, ok := s.nodes[w.Source]; !ok {
			dropped++
			continue
		}
		if _, ok := s.nodes[w.Target]; !ok {
			dropped++
			continue
		}
		e := &Edge{
			Source:     w.Source,
			Target:     w.Target,
			Type:       EdgeType(w.Type),
			Confidence: clamp01(w.Confidence),
			Strength:   clamp01(w.Strength),
			TxTime:     parseTimeOr(w.TxTime, now),
		}
		if t, ok := parseTime(w.ValidFrom); ok {
			e.ValidFrom = &t
		}
		if t, ok := parseTime(w.ValidTo); ok {
			e.ValidTo = &t
		}
		s.edges[e.Key()] = e
	}
	if dropped > 0 {
		s.logger.Warn("Dropped dangling or malformed edges on load", map[string]interface{}{
			"count": dropped,
		})
	}

	if doc.ProjectRoot != "" {
		s.projectRoot = doc.ProjectRoot
	}
	if t, ok := parseTime(doc.LastScan); ok {
		s.lastScan = t
	} else {
		s.lastScan = time.Time{}
	}

	s.ix.rebuild(s.nodes, s.edges)

	s.logger.Info("Graph document loaded", map[string]interface{}{
		"path": path, "nodes": len(s.nodes), "edges": len(s.edges),
	})
	return len(s.nodes), len(s.edges)
}

// decodeDocument validates the document shape before trusting it: version
// must be a number, nodes/edges must be arrays, string fields must be
// strings. Anything else is a decode error and the caller starts fresh.
func decodeDocument(data []byte) (*documentWire, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	for _, field := range []string{"nodes", "edges"} {
		raw, ok := shape[field]
		if !ok {
			return nil, fmt.Errorf("missing %q array", field)
		}
		trimmed := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(trimmed, "[") {
			return nil, fmt.Errorf("%q is not an array", field)
		}
	}

	var doc documentWire
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*Node)
	s.edges = make(map[EdgeKey]*Edge)
	s.seq = make(map[string]int64)
	s.nextSeq = 0
	s.lastScan = time.Time{}
	s.ix = newIndexes()
}

func parseTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimeOr(v string, fallback time.Time) time.Time {
	if t, ok := parseTime(v); ok {
		return t
	}
	return fallback
}
