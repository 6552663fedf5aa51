package graph

import (
	"strings"
)

// idSet is a set of node ids.
type idSet map[string]struct{}

func (s idSet) add(id string)    { s[id] = struct{}{} }
func (s idSet) remove(id string) { delete(s, id) }

// indexes holds every derived lookup structure. All of it is a pure cache
// over the node/edge maps: rebuild() from scratch must reproduce the same
// query results.
type indexes struct {
	byType       map[NodeType]idSet
	byPath       map[string]idSet
	byName       map[string]idSet // lowercased exact name
	byTerm       map[string]idSet // tokenized name/path/meta terms
	byLanguage   map[string]idSet
	byFramework  map[string]idSet
	byConfidence map[int]idSet // bucket = int(confidence*10), 0..10

	edgesBySource map[string][]EdgeKey
	edgesByTarget map[string][]EdgeKey
	edgesByType   map[EdgeType][]EdgeKey
}

func newIndexes() *indexes {
	return &indexes{
		byType:        make(map[NodeType]idSet),
		byPath:        make(map[string]idSet),
		byName:        make(map[string]idSet),
		byTerm:        make(map[string]idSet),
		byLanguage:    make(map[string]idSet),
		byFramework:   make(map[string]idSet),
		byConfidence:  make(map[int]idSet),
		edgesBySource: make(map[string][]EdgeKey),
		edgesByTarget: make(map[string][]EdgeKey),
		edgesByType:   make(map[EdgeType][]EdgeKey),
	}
}

func confidenceBucket(c float64) int {
	b := int(clamp01(c) * 10)
	if b > 10 {
		b = 10
	}
	return b
}

func (ix *indexes) addNode(n *Node) {
	addTo := func(m map[string]idSet, key string) {
		if key == "" {
			return
		}
		set, ok := m[key]
		if !ok {
			set = make(idSet)
			m[key] = set
		}
		set.add(n.ID)
	}

	set, ok := ix.byType[n.Type]
	if !ok {
		set = make(idSet)
		ix.byType[n.Type] = set
	}
	set.add(n.ID)

	addTo(ix.byPath, n.Path)
	addTo(ix.byName, strings.ToLower(n.Name))
	addTo(ix.byLanguage, strings.ToLower(n.Language()))
	addTo(ix.byFramework, strings.ToLower(n.Framework()))

	bucket := confidenceBucket(n.Confidence)
	bset, ok := ix.byConfidence[bucket]
	if !ok {
		bset = make(idSet)
		ix.byConfidence[bucket] = bset
	}
	bset.add(n.ID)

	for term := range TermSet(n) {
		addTo(ix.byTerm, term)
	}
}

func (ix *indexes) removeNode(n *Node) {
	removeFrom := func(m map[string]idSet, key string) {
		if key == "" {
			return
		}
		if set, ok := m[key]; ok {
			set.remove(n.ID)
			if len(set) == 0 {
				delete(m, key)
			}
		}
	}

	if set, ok := ix.byType[n.Type]; ok {
		set.remove(n.ID)
		if len(set) == 0 {
			delete(ix.byType, n.Type)
		}
	}

	removeFrom(ix.byPath, n.Path)
	removeFrom(ix.byName, strings.ToLower(n.Name))
	removeFrom(ix.byLanguage, strings.ToLower(n.Language()))
	removeFrom(ix.byFramework, strings.ToLower(n.Framework()))

	bucket := confidenceBucket(n.Confidence)
	if set, ok := ix.byConfidence[bucket]; ok {
		set.remove(n.ID)
		if len(set) == 0 {
			delete(ix.byConfidence, bucket)
		}
	}

	for term := range TermSet(n) {
		removeFrom(ix.byTerm, term)
	}
}

func (ix *indexes) addEdge(e *Edge) {
	key := e.Key()
	ix.edgesBySource[e.Source] = append(ix.edgesBySource[e.Source], key)
	ix.edgesByTarget[e.Target] = append(ix.edgesByTarget[e.Target], key)
	ix.edgesByType[e.Type] = append(ix.edgesByType[e.Type], key)
}

func (ix *indexes) removeEdge(key EdgeKey) {
	ix.edgesBySource[key.Source] = removeKey(ix.edgesBySource[key.Source], key)
	if len(ix.edgesBySource[key.Source]) == 0 {
		delete(ix.edgesBySource, key.Source)
	}
	ix.edgesByTarget[key.Target] = removeKey(ix.edgesByTarget[key.Target], key)
	if len(ix.edgesByTarget[key.Target]) == 0 {
		delete(ix.edgesByTarget, key.Target)
	}
	ix.edgesByType[key.Type] = removeKey(ix.edgesByType[key.Type], key)
	if len(ix.edgesByType[key.Type]) == 0 {
		delete(ix.edgesByType, key.Type)
	}
}

func removeKey(keys []EdgeKey, key EdgeKey) []EdgeKey {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// rebuild discards all index state and rebuilds it from the given maps.
func (ix *indexes) rebuild(nodes map[string]*Node, edges map[EdgeKey]*Edge) {
	*ix = *newIndexes()
	for _, n := range nodes {
		ix.addNode(n)
	}
	for _, e := range edges {
		ix.addEdge(e)
	}
}

// IndexSizes reports entry counts per index, for the statistics surface.
type IndexSizes struct {
	Types       int `json:"types"`
	Paths       int `json:"paths"`
	Names       int `json:"names"`
	Terms       int `json:"terms"`
	Languages   int `json:"languages"`
	Frameworks  int `json:"frameworks"`
	Confidence  int `json:"confidenceBuckets"`
	EdgeSources int `json:"edgeSources"`
	EdgeTargets int `json:"edgeTargets"`
	EdgeTypes   int `json:"edgeTypes"`
}

func (ix *indexes) sizes() IndexSizes {
	return IndexSizes{
		Types:       len(ix.byType),
		Paths:       len(ix.byPath),
		Names:       len(ix.byName),
		Terms:       len(ix.byTerm),
		Languages:   len(ix.byLanguage),
		Frameworks:  len(ix.byFramework),
		Confidence:  len(ix.byConfidence),
		EdgeSources: len(ix.edgesBySource),
		EdgeTargets: len(ix.edgesByTarget),
		EdgeTypes:   len(ix.edgesByType),
	}
}
