package graph

import (
	"strings"
)

// Predicate describes a node lookup. The zero value matches every node.
// Fields other than Match are index-decomposable: FindNodes resolves them
// through the most selective applicable index and applies the rest as a
// residual filter. Match is an opaque residual predicate and always forces
// the residual path; indexed and scanned evaluation return identical sets.
type Predicate struct {
	Type          NodeType
	Name          string // exact, case-insensitive
	Path          string // exact
	Language      string
	Framework     string
	Term          string // one tokenized search term
	MinConfidence float64
	Match         func(*Node) bool
}

// matches is the single source of truth for predicate semantics. Both the
// indexed path and the scan path go through it.
func (p *Predicate) matches(n *Node) bool {
	if p.Type != "" && n.Type != p.Type {
		return false
	}
	if p.Name != "" && !strings.EqualFold(n.Name, p.Name) {
		return false
	}
	if p.Path != "" && n.Path != p.Path {
		return false
	}
	if p.Language != "" && !strings.EqualFold(n.Language(), p.Language) {
		return false
	}
	if p.Framework != "" && !strings.EqualFold(n.Framework(), p.Framework) {
		return false
	}
	if p.Term != "" {
		if _, ok := TermSet(n)[strings.ToLower(p.Term)]; !ok {
			return false
		}
	}
	if p.MinConfidence > 0 && n.Confidence < p.MinConfidence {
		return false
	}
	if p.Match != nil && !p.Match(n) {
		return false
	}
	return true
}

// candidateSet returns the smallest index set applicable to the predicate,
// or nil when no indexed field is set (callers then fall back to a scan).
func (ix *indexes) candidateSet(p *Predicate) (idSet, bool) {
	var best idSet
	found := false

	consider := func(set idSet, ok bool) {
		if !ok {
			// An indexed field was set but has no entries: the result
			// is provably empty.
			best = idSet{}
			found = true
			return
		}
		if !found || len(set) < len(best) {
			best = set
			found = true
		}
	}

	if p.Type != "" {
		set, ok := ix.byType[p.Type]
		consider(set, ok)
	}
	if p.Name != "" {
		set, ok := ix.byName[strings.ToLower(p.Name)]
		consider(set, ok)
	}
	if p.Path != "" {
		set, ok := ix.byPath[p.Path]
		consider(set, ok)
	}
	if p.Language != "" {
		set, ok := ix.byLanguage[strings.ToLower(p.Language)]
		consider(set, ok)
	}
	if p.Framework != "" {
		set, ok := ix.byFramework[strings.ToLower(p.Framework)]
		consider(set, ok)
	}
	if p.Term != "" {
		set, ok := ix.byTerm[strings.ToLower(p.Term)]
		consider(set, ok)
	}
	if p.MinConfidence > 0 {
		// Union of buckets at or above the floor. Only worth it when the
		// union is smaller than what we already have.
		union := make(idSet)
		for b := confidenceBucket(p.MinConfidence); b <= 10; b++ {
			for id := range ix.byConfidence[b] {
				union.add(id)
			}
		}
		if !found || len(union) < len(best) {
			best = union
			found = true
		}
	}

	return best, found
}
