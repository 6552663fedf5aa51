package engine

import (
	"context"
	"time"

	"mindgraph/internal/graph"
	"mindgraph/internal/tasks"
)

// UpsertNode writes a node and synchronously invalidates cached
// results that mention it. External analyzers and learning systems
// call this directly.
func (e *Engine) UpsertNode(n *graph.Node) (*graph.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, err := e.store.UpsertNode(n)
	if err != nil {
		return nil, err
	}
	e.invalidateFor(stored.ID, stored.Path)
	return stored, nil
}

// UpsertEdge writes an edge after the store validates both endpoints
// exist, then invalidates results mentioning either endpoint.
func (e *Engine) UpsertEdge(edge *graph.Edge) (*graph.Edge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, err := e.store.UpsertEdge(edge)
	if err != nil {
		return nil, err
	}
	e.invalidateFor(stored.Source, stored.Target)
	return stored, nil
}

// AdjustConfidence nudges a node's confidence by delta, clamped to
// [0,1].
func (e *Engine) AdjustConfidence(id string, delta float64) (*graph.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.store.AdjustConfidence(id, delta)
	if err != nil {
		return nil, err
	}
	e.invalidateFor(n.ID, n.Path)
	return n, nil
}

// RemoveNode deletes a node and its edges, invalidating any cached
// result that mentioned it.
func (e *Engine) RemoveNode(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.store.GetNode(id)
	if !ok {
		return false
	}
	removed := e.store.RemoveNode(id)
	if removed {
		e.invalidateFor(n.ID, n.Path)
	}
	return removed
}

// InvalidateCache removes cached results mentioning any of the keys
// (node ids, paths, or glob patterns) and returns the removal count.
func (e *Engine) InvalidateCache(keys []string) int {
	return e.cache.Invalidate(keys)
}

func (e *Engine) invalidateFor(keys ...string) {
	filtered := keys[:0]
	for _, k := range keys {
		if k != "" {
			filtered = append(filtered, k)
		}
	}
	if len(filtered) > 0 {
		e.cache.Invalidate(filtered)
	}
}

// Prune enforces the edge budget synchronously. Cached results may
// reference pruned edges, so a prune that removed anything clears the
// cache wholesale.
func (e *Engine) Prune(ctx context.Context) graph.PruneResult {
	start := time.Now()
	result := e.store.Prune(ctx, e.cfg.Storage.MaxEdges, e.cfg.Storage.PruneFraction, e.cfg.Tasks.ChunkSize)
	if result.RemovedEdges > 0 {
		e.cache.Clear()
		e.logger.Info("cache cleared after prune", map[string]interface{}{
			"removedEdges": result.RemovedEdges,
		})
	}
	e.metrics.Record("prune", result.RemovedEdges, false, time.Since(start))
	return result
}

// PruneAsync schedules pruning on the task runner and returns a
// handle the caller can wait on.
func (e *Engine) PruneAsync() (*tasks.Handle, error) {
	return e.runner.Submit("prune", func(ctx context.Context, progress func(int)) error {
		result := e.Prune(ctx)
		progress(100)
		if result.Interrupted {
			return ctx.Err()
		}
		return nil
	})
}
