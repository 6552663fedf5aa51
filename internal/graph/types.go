// Package graph implements the canonical in-memory property graph and its
// persistence. Nodes and edges represent structural facts about a project:
// files, functions, classes, errors, observed patterns. All lookups go
// through rebuildable derived indexes; discarding and rebuilding them must
// not change query results.
package graph

import (
	"time"
)

// NodeType tags a node with the kind of fact it represents. The set is
// closed but extensible: unknown types are stored and indexed as-is.
type NodeType string

const (
	NodeFile          NodeType = "file"
	NodeDirectory     NodeType = "directory"
	NodeFunction      NodeType = "function"
	NodeClass         NodeType = "class"
	NodeVariable      NodeType = "variable"
	NodeTypeParameter NodeType = "type_parameter"
	NodeError         NodeType = "error"
	NodePattern       NodeType = "pattern"
	NodeContext       NodeType = "context"
)

// EdgeType tags a directed relation between two nodes.
type EdgeType string

const (
	EdgeContains       EdgeType = "contains"
	EdgeImports        EdgeType = "imports"
	EdgeCalls          EdgeType = "calls"
	EdgeFixes          EdgeType = "fixes"
	EdgeRelatesTo      EdgeType = "relates_to"
	EdgeCoActivates    EdgeType = "co_activates"
	EdgeInstantiatedAs EdgeType = "instantiated_as"
)

// Metadata keys with well-known meaning.
const (
	MetaLanguage    = "language"
	MetaFramework   = "framework"
	MetaTaskHistory = "taskHistory"
)

// Node is a typed vertex in the property graph.
type Node struct {
	ID          string                 `json:"id"`
	Type        NodeType               `json:"type"`
	Name        string                 `json:"name"`
	Path        string                 `json:"path,omitempty"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	LastUpdated time.Time              `json:"lastUpdated"`
}

// Language returns the node's language metadata, if set.
func (n *Node) Language() string {
	return metaString(n.Metadata, MetaLanguage)
}

// Framework returns the node's framework metadata, if set.
func (n *Node) Framework() string {
	return metaString(n.Metadata, MetaFramework)
}

func metaString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Edge is a typed, directed relation between node ids, keyed by
// (source, target, type). Repeat insertion strengthens rather than
// duplicates. ValidFrom/ValidTo bound the interval the relation held in
// the modeled world; TxTime records when the store learned of it.
type Edge struct {
	Source     string     `json:"source"`
	Target     string     `json:"target"`
	Type       EdgeType   `json:"type"`
	Confidence float64    `json:"confidence"`
	Strength   float64    `json:"strength"`
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidTo    *time.Time `json:"validTo,omitempty"`
	TxTime     time.Time  `json:"txTime"`
}

// EdgeKey identifies an edge.
type EdgeKey struct {
	Source string
	Target string
	Type   EdgeType
}

// Key returns the edge's identity.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// Document is the persisted shape of the graph.
type Document struct {
	Version     int     `json:"version"`
	ProjectRoot string  `json:"projectRoot"`
	LastScan    string  `json:"lastScan"` // ISO-8601
	Nodes       []*Node `json:"nodes"`
	Edges       []*Edge `json:"edges"`
}

// SchemaVersion is the current persisted document version.
const SchemaVersion = 3

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cloneNode returns a deep enough copy for safe hand-out: callers must not
// be able to mutate store state through returned nodes.
func cloneNode(n *Node) *Node {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneEdge(e *Edge) *Edge {
	c := *e
	return &c
}
