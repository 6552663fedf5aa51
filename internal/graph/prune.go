package graph

import (
	"context"
	"sort"
)

// PruneResult reports what a prune pass did.
type PruneResult struct {
	ExaminedEdges int  `json:"examinedEdges"`
	RemovedEdges  int  `json:"removedEdges"`
	Interrupted   bool `json:"interrupted"`
}

// Prune removes the weakest edges while the edge count exceeds maxEdges,
// capped at fraction of the current edge count per pass. Work proceeds in
// chunks; the context is checked between chunks, and every chunk applies
// atomically under the write lock, so an interrupted prune can never leave
// a dangling edge or a half-updated index.
func (s *Store) Prune(ctx context.Context, maxEdges int, fraction float64, chunkSize int) PruneResult {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	s.mu.RLock()
	total := len(s.edges)
	excess := total - maxEdges
	if maxEdges <= 0 || excess <= 0 {
		s.mu.RUnlock()
		return PruneResult{ExaminedEdges: total}
	}

	cap := int(float64(total) * fraction)
	if cap < 1 {
		cap = 1
	}
	if excess > cap {
		excess = cap
	}

	// Copy key + strength while the lock is held: live *Edge values are
	// mutated by concurrent upserts, so the sort must not touch them.
	type victim struct {
		key      EdgeKey
		strength float64
	}
	victims := make([]victim, 0, total)
	for key, e := range s.edges {
		victims = append(victims, victim{key: key, strength: e.Strength})
	}
	s.mu.RUnlock()

	// Weakest first; ties broken by key so passes are deterministic.
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].strength != victims[j].strength {
			return victims[i].strength < victims[j].strength
		}
		return edgeKeyLess(victims[i].key, victims[j].key)
	})
	victims = victims[:excess]

	result := PruneResult{ExaminedEdges: total}
	for start := 0; start < len(victims); start += chunkSize {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		end := start + chunkSize
		if end > len(victims) {
			end = len(victims)
		}

		s.mu.Lock()
		for _, v := range victims[start:end] {
			if _, ok := s.edges[v.key]; !ok {
				continue
			}
			delete(s.edges, v.key)
			s.ix.removeEdge(v.key)
			result.RemovedEdges++
		}
		s.mu.Unlock()
	}

	if result.RemovedEdges > 0 {
		s.logger.Info("Pruned weak edges", map[string]interface{}{
			"removed":     result.RemovedEdges,
			"examined":    result.ExaminedEdges,
			"interrupted": result.Interrupted,
		})
	}
	return result
}
