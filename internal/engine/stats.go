package engine

import (
	"os"
	"time"

	"mindgraph/internal/cache"
	"mindgraph/internal/graph"
	"mindgraph/internal/telemetry"
)

// Stats is the read-only statistics surface.
type Stats struct {
	Nodes         int                    `json:"nodes"`
	Edges         int                    `json:"edges"`
	IndexSizes    graph.IndexSizes       `json:"indexSizes"`
	LastScan      time.Time              `json:"lastScan"`
	DocumentBytes int64                  `json:"documentBytes"`
	Cache         cache.Stats            `json:"cache"`
	Tasks         map[string]interface{} `json:"tasks"`
}

// Stats aggregates counters from every component.
func (e *Engine) Stats() Stats {
	s := Stats{
		Nodes:      e.store.NodeCount(),
		Edges:      e.store.EdgeCount(),
		IndexSizes: e.store.IndexSizes(),
		LastScan:   e.store.LastScan(),
		Cache:      e.cache.GetStats(),
		Tasks:      e.runner.Stats(),
	}
	if info, err := os.Stat(e.storePath); err == nil {
		s.DocumentBytes = info.Size()
	}
	return s
}

// QueryMetrics returns per-kind telemetry aggregates since the cutoff.
func (e *Engine) QueryMetrics(since time.Time) ([]telemetry.Aggregate, error) {
	return e.metrics.Aggregates(since)
}
