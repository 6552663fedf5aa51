// Package engine wires the graph store, rankers, query language,
// cache, and background machinery into one queryable unit.
package engine

import (
	"path/filepath"
	"sync"
	"time"

	"mindgraph/internal/activation"
	"mindgraph/internal/cache"
	"mindgraph/internal/config"
	"mindgraph/internal/errors"
	"mindgraph/internal/export"
	"mindgraph/internal/graph"
	"mindgraph/internal/logging"
	"mindgraph/internal/paths"
	"mindgraph/internal/query"
	"mindgraph/internal/search"
	"mindgraph/internal/tasks"
	"mindgraph/internal/telemetry"
)

// Engine owns one project's knowledge graph and every component that
// reads or writes it. Construct with Open; tests build fresh
// instances, there is no shared module state.
type Engine struct {
	cfg       *config.Config
	root      string
	storePath string

	store    *graph.Store
	ranker   *search.Ranker
	queries  *query.Engine
	saved    *query.SavedStore
	spreader *activation.Engine
	cache    *cache.Cache
	metrics  *telemetry.Store
	runner   *tasks.Runner
	logger   *logging.Logger

	// mu serializes mutations and persistence. Reads go through the
	// store's own lock and may run concurrently.
	mu sync.Mutex
}

// Open loads (or initializes) the engine for a project root.
func Open(root string, cfg *config.Config, logger *logging.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.ProjectRoot = root
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	storeDir, err := paths.EnsureStoreDir(root)
	if err != nil {
		return nil, err
	}
	storePath, err := paths.ResolveStorePath(root, cfg.Storage.Path, "graph.json")
	if err != nil {
		return nil, err
	}

	store := graph.NewStore(graph.Options{
		ProjectRoot:          root,
		MetadataHistoryLimit: cfg.Storage.MetadataHistoryLimit,
		Logger:               logger,
	})
	nodes, edges := store.LoadFrom(storePath)
	logger.Info("graph loaded", map[string]interface{}{
		"path":  storePath,
		"nodes": nodes,
		"edges": edges,
	})

	metrics, err := telemetry.Open(storeDir, logger)
	if err != nil {
		return nil, err
	}

	runner := tasks.NewRunner(tasks.Config{
		Workers:    cfg.Tasks.Workers,
		QueueSize:  cfg.Tasks.QueueSize,
		ChunkSize:  cfg.Tasks.ChunkSize,
		MaxRetries: cfg.Tasks.MaxRetries,
		RetryBase:  time.Duration(cfg.Tasks.RetryBaseMs) * time.Millisecond,
	}, logger)
	runner.Start()

	e := &Engine{
		cfg:       cfg,
		root:      root,
		storePath: storePath,
		store:     store,
		ranker:    search.NewRanker(store),
		queries:   query.NewEngine(store, logger),
		saved:     query.NewSavedStore(filepath.Join(storeDir, "queries.toml"), logger),
		spreader:  activation.NewEngine(store),
		cache: cache.New(cache.Config{
			MaxEntries:          cfg.Cache.MaxEntries,
			MaxMemoryMB:         cfg.Cache.MaxMemoryMB,
			TTL:                 time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		}, logger),
		metrics: metrics,
		runner:  runner,
		logger:  logger,
	}
	return e, nil
}

// Store exposes the underlying graph store for direct reads.
func (e *Engine) Store() *graph.Store { return e.store }

// SavedQueries exposes the saved query store.
func (e *Engine) SavedQueries() *query.SavedStore { return e.saved }

// Save persists the graph document.
func (e *Engine) Save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.SaveTo(e.storePath, e.cfg.Storage.Snapshot)
}

// Export writes the graph document to outPath in the given format.
func (e *Engine) Export(outPath string, format export.Format) error {
	return export.Export(e.store, e.root, outPath, format)
}

// Close persists state and stops background work.
func (e *Engine) Close() error {
	saveErr := e.Save()
	stopErr := e.runner.Stop(time.Duration(e.cfg.Tasks.StopWaitSecs) * time.Second)
	closeErr := e.metrics.Close()

	if saveErr != nil {
		return errors.Wrap(errors.InternalError, "saving graph on close", saveErr)
	}
	if stopErr != nil {
		return errors.Wrap(errors.InternalError, "stopping task runner", stopErr)
	}
	if closeErr != nil {
		return errors.Wrap(errors.InternalError, "closing metrics store", closeErr)
	}
	return nil
}
