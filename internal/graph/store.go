package graph

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	mgerrors "mindgraph/internal/errors"
	"mindgraph/internal/logging"
)

// strengthenStep is how much a repeat edge upsert reinforces the stored
// strength. Strength never decreases through upserts.
const strengthenStep = 0.05

// Store is the canonical in-memory property graph. All mutations are
// serialized behind one mutex; index structures update incrementally and
// are unsafe under interleaved writes. Readers take the shared lock and
// never observe a partially-updated store.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*Node
	edges map[EdgeKey]*Edge
	ix    *indexes

	// seq records insertion order for deterministic tie-breaking.
	seq     map[string]int64
	nextSeq int64

	projectRoot string
	lastScan    time.Time

	historyLimit int
	logger       *logging.Logger
}

// Options configures a Store.
type Options struct {
	ProjectRoot string
	// MetadataHistoryLimit bounds the taskHistory metadata list per node.
	MetadataHistoryLimit int
	Logger               *logging.Logger
}

// NewStore creates an empty store. Each caller constructs and owns its own
// instance; there is no package-level graph.
func NewStore(opts Options) *Store {
	if opts.MetadataHistoryLimit <= 0 {
		opts.MetadataHistoryLimit = 20
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Store{
		nodes:        make(map[string]*Node),
		edges:        make(map[EdgeKey]*Edge),
		ix:           newIndexes(),
		seq:          make(map[string]int64),
		projectRoot:  opts.ProjectRoot,
		historyLimit: opts.MetadataHistoryLimit,
		logger:       opts.Logger,
	}
}

// ProjectRoot returns the project root this store describes.
func (s *Store) ProjectRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectRoot
}

// LastScan returns the time of the last completed scan.
func (s *Store) LastScan() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScan
}

// SetLastScan records the time of the last completed scan.
func (s *Store) SetLastScan(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan = t
}

// UpsertNode inserts or updates a node, idempotent on id. An empty id is
// assigned a fresh uuid. On update, set fields override, metadata merges
// key-wise, and an explicit confidence replaces the stored one (clamped).
// The bounded taskHistory list is trimmed to the configured limit.
// Returns a copy of the stored node.
func (s *Store) UpsertNode(n *Node) (*Node, error) {
	if n == nil {
		return nil, mgerrors.New(mgerrors.InvalidReference, "nil node")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	existing, ok := s.nodes[n.ID]
	if !ok {
		stored := cloneNode(n)
		stored.Path = normalizeStoredPath(stored.Path)
		stored.Confidence = clamp01(stored.Confidence)
		if stored.LastUpdated.IsZero() {
			stored.LastUpdated = time.Now()
		}
		trimTaskHistory(stored.Metadata, s.historyLimit)
		s.nodes[stored.ID] = stored
		s.seq[stored.ID] = s.nextSeq
		s.nextSeq++
		s.ix.addNode(stored)
		return cloneNode(stored), nil
	}

	// Reindex around the in-place update.
	s.ix.removeNode(existing)

	if n.Type != "" {
		existing.Type = n.Type
	}
	if n.Name != "" {
		existing.Name = n.Name
	}
	if n.Path != "" {
		existing.Path = normalizeStoredPath(n.Path)
	}
	if n.Confidence != 0 {
		existing.Confidence = clamp01(n.Confidence)
	}
	if n.Metadata != nil {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]interface{}, len(n.Metadata))
		}
		for k, v := range n.Metadata {
			existing.Metadata[k] = v
		}
		trimTaskHistory(existing.Metadata, s.historyLimit)
	}
	if !n.LastUpdated.IsZero() {
		existing.LastUpdated = n.LastUpdated
	} else {
		existing.LastUpdated = time.Now()
	}

	s.ix.addNode(existing)
	return cloneNode(existing), nil
}

// UpsertEdge inserts or strengthens an edge. Both endpoints must exist.
// A repeat upsert with the same (source, target, type) strengthens the
// stored edge instead of duplicating it; strength is non-decreasing.
func (s *Store) UpsertEdge(e *Edge) (*Edge, error) {
	if e == nil {
		return nil, mgerrors.New(mgerrors.InvalidReference, "nil edge")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[e.Source]; !ok {
		return nil, mgerrors.Newf(mgerrors.InvalidReference, "edge source %q does not exist", e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return nil, mgerrors.Newf(mgerrors.InvalidReference, "edge target %q does not exist", e.Target)
	}

	key := e.Key()
	existing, ok := s.edges[key]
	if !ok {
		stored := cloneEdge(e)
		stored.Confidence = clamp01(stored.Confidence)
		stored.Strength = clamp01(stored.Strength)
		if stored.Strength == 0 {
			stored.Strength = 0.5
		}
		if stored.TxTime.IsZero() {
			stored.TxTime = time.Now()
		}
		s.edges[key] = stored
		s.ix.addEdge(stored)
		return cloneEdge(stored), nil
	}

	reinforced := clamp01(existing.Strength + strengthenStep)
	if in := clamp01(e.Strength); in > reinforced {
		reinforced = in
	}
	existing.Strength = reinforced
	if c := clamp01(e.Confidence); c > existing.Confidence {
		existing.Confidence = c
	}
	if e.ValidFrom != nil {
		existing.ValidFrom = e.ValidFrom
	}
	if e.ValidTo != nil {
		existing.ValidTo = e.ValidTo
	}
	existing.TxTime = time.Now()

	return cloneEdge(existing), nil
}

// GetNode returns a copy of the node with the given id.
func (s *Store) GetNode(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return cloneNode(n), true
}

// GetEdge returns a copy of the edge with the given key.
func (s *Store) GetEdge(key EdgeKey) (*Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[key]
	if !ok {
		return nil, false
	}
	return cloneEdge(e), true
}

// AdjustConfidence shifts a node's confidence by delta, clamped to [0,1].
func (s *Store) AdjustConfidence(id string, delta float64) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, mgerrors.Newf(mgerrors.NodeNotFound, "node %q does not exist", id)
	}

	s.ix.removeNode(n)
	n.Confidence = clamp01(n.Confidence + delta)
	n.LastUpdated = time.Now()
	s.ix.addNode(n)

	return cloneNode(n), nil
}

// FindNodes returns copies of all nodes matching the predicate, in
// insertion order. Index-decomposable predicates resolve through the most
// selective index; anything else falls back to a linear scan. Both paths
// produce identical sets.
func (s *Store) FindNodes(p Predicate) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findNodesLocked(p)
}

func (s *Store) findNodesLocked(p Predicate) []*Node {
	var matched []*Node

	if set, ok := s.ix.candidateSet(&p); ok {
		for id := range set {
			n := s.nodes[id]
			if n != nil && p.matches(n) {
				matched = append(matched, cloneNode(n))
			}
		}
	} else {
		for _, n := range s.nodes {
			if p.matches(n) {
				matched = append(matched, cloneNode(n))
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return s.seq[matched[i].ID] < s.seq[matched[j].ID]
	})
	return matched
}

// findNodesScan is the brute-force reference evaluation, kept for the
// index/scan equivalence tests.
func (s *Store) findNodesScan(p Predicate) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Node
	for _, n := range s.nodes {
		if p.matches(n) {
			matched = append(matched, cloneNode(n))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.seq[matched[i].ID] < s.seq[matched[j].ID]
	})
	return matched
}

// RemoveNode deletes a node and cascades to every edge touching it, so no
// dangling edge can remain.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return false
	}

	for _, key := range append([]EdgeKey{}, s.ix.edgesBySource[id]...) {
		delete(s.edges, key)
		s.ix.removeEdge(key)
	}
	for _, key := range append([]EdgeKey{}, s.ix.edgesByTarget[id]...) {
		delete(s.edges, key)
		s.ix.removeEdge(key)
	}

	s.ix.removeNode(n)
	delete(s.nodes, id)
	delete(s.seq, id)
	return true
}

// EdgesFrom returns copies of all edges leaving the node.
func (s *Store) EdgesFrom(id string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesByKeys(s.ix.edgesBySource[id])
}

// EdgesTo returns copies of all edges entering the node.
func (s *Store) EdgesTo(id string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesByKeys(s.ix.edgesByTarget[id])
}

// EdgesOfType returns copies of all edges with the given type.
func (s *Store) EdgesOfType(t EdgeType) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgesByKeys(s.ix.edgesByType[t])
}

func (s *Store) edgesByKeys(keys []EdgeKey) []*Edge {
	out := make([]*Edge, 0, len(keys))
	for _, key := range keys {
		if e, ok := s.edges[key]; ok {
			out = append(out, cloneEdge(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return edgeLess(out[i], out[j]) })
	return out
}

func edgeLess(a, b *Edge) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	return a.Type < b.Type
}

func edgeKeyLess(a, b EdgeKey) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Target != b.Target {
		return a.Target < b.Target
	}
	return a.Type < b.Type
}

// AllEdges returns copies of every edge, in deterministic order.
func (s *Store) AllEdges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, cloneEdge(e))
	}
	sort.Slice(out, func(i, j int) bool { return edgeLess(out[i], out[j]) })
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// IndexSizes reports per-index entry counts.
func (s *Store) IndexSizes() IndexSizes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.sizes()
}

// RebuildIndexes discards and rebuilds every derived index. Exposed for
// recovery paths; query results must be unchanged afterwards.
func (s *Store) RebuildIndexes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ix.rebuild(s.nodes, s.edges)
}

// InsertionIndex returns the monotonic insertion sequence for a node id,
// used by rankers for deterministic tie-breaking.
func (s *Store) InsertionIndex(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq, ok := s.seq[id]; ok {
		return seq
	}
	return -1
}

func normalizeStoredPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func trimTaskHistory(meta map[string]interface{}, limit int) {
	if meta == nil {
		return
	}
	hist, ok := meta[MetaTaskHistory].([]interface{})
	if !ok || len(hist) <= limit {
		return
	}
	meta[MetaTaskHistory] = hist[len(hist)-limit:]
}
