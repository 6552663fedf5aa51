package engine

import (
	"context"
	"regexp"
	"strings"
	"time"

	"mindgraph/internal/activation"
	"mindgraph/internal/errors"
	"mindgraph/internal/graph"
	"mindgraph/internal/paths"
	"mindgraph/internal/search"
)

// Stage names one pipeline step a caller may skip. Unknown stages are
// rejected at query time rather than silently ignored.
type Stage string

const (
	// StageCache skips both the cache lookup and the write-through.
	StageCache Stage = "cache"
	// StageActivation skips spreading related nodes from free-text hits.
	StageActivation Stage = "activation"
	// StageTelemetry skips the per-query metrics record.
	StageTelemetry Stage = "telemetry"
)

var knownStages = map[Stage]bool{
	StageCache:      true,
	StageActivation: true,
	StageTelemetry:  true,
}

// QueryOptions tune one query invocation.
type QueryOptions struct {
	// Limit caps returned rows/matches; 0 uses the configured default.
	Limit int
	// Type restricts free-text candidates to one node type.
	Type string
	// Context describes the caller's situation (language, framework,
	// pathPrefix, free terms) for ranking and cache similarity.
	Context map[string]string
	// Skip lists pipeline stages to bypass.
	Skip []Stage
}

func (o QueryOptions) skips(s Stage) bool {
	for _, skip := range o.Skip {
		if skip == s {
			return true
		}
	}
	return false
}

// Kind classifies how a query was dispatched.
type Kind string

const (
	KindPath       Kind = "path"
	KindStructured Kind = "structured"
	KindSemantic   Kind = "semantic"
)

// Response is the uniform answer shape for all query kinds.
type Response struct {
	Kind   Kind `json:"kind"`
	Cached bool `json:"cached"`

	// Structured results.
	Columns []string        `json:"columns,omitempty"`
	Rows    [][]interface{} `json:"rows,omitempty"`
	Nodes   []graph.Node    `json:"nodes,omitempty"`
	Edges   []graph.Edge    `json:"edges,omitempty"`

	// Free-text and path results.
	Matches []search.ScoredNode     `json:"matches,omitempty"`
	Related []activation.RankedNode `json:"related,omitempty"`

	TookMs int64 `json:"tookMs"`
}

var markupPattern = regexp.MustCompile(`<\s*[a-zA-Z!/?]`)

// Query validates, classifies, and dispatches one query. The cache is
// consulted first and written only when the computation succeeded.
func (e *Engine) Query(ctx context.Context, text string, opts QueryOptions) (*Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New(errors.InputRejected, "query text must not be empty")
	}
	if len(text) > e.cfg.Query.MaxLength {
		return nil, errors.Newf(errors.InputTooLarge, "query length %d exceeds limit %d", len(text), e.cfg.Query.MaxLength)
	}
	if markupPattern.MatchString(text) {
		return nil, errors.New(errors.InputRejected, "query text must not contain markup")
	}
	for _, s := range opts.Skip {
		if !knownStages[s] {
			return nil, errors.Newf(errors.InputRejected, "unknown pipeline stage %q", s)
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.Query.DefaultLimit
	}

	start := time.Now()
	kind := classify(text)

	if !opts.skips(StageCache) {
		if value, ok := e.cache.Get(text, opts.Context); ok {
			resp := value.(*Response)
			hit := *resp
			hit.Cached = true
			hit.TookMs = time.Since(start).Milliseconds()
			e.record(opts, kind, &hit, true, start)
			return &hit, nil
		}
	}

	var resp *Response
	var err error
	switch kind {
	case KindStructured:
		resp, err = e.runStructured(text, opts)
	case KindPath:
		resp, err = e.runPath(ctx, text, opts)
	default:
		resp, err = e.runSemantic(ctx, text, opts)
	}
	if err != nil {
		return nil, err
	}
	resp.TookMs = time.Since(start).Milliseconds()

	if !opts.skips(StageCache) {
		e.cache.Set(text, opts.Context, resp, responseMentions(resp))
	}
	e.record(opts, resp.Kind, resp, false, start)
	return resp, nil
}

// ExecuteSaved resolves a saved query's parameters, then runs it
// through the normal pipeline.
func (e *Engine) ExecuteSaved(ctx context.Context, name string, params map[string]string, opts QueryOptions) (*Response, error) {
	text, err := e.saved.Resolve(name, params)
	if err != nil {
		return nil, err
	}
	return e.Query(ctx, text, opts)
}

var matchPrefix = regexp.MustCompile(`(?i)^\s*match\b`)

// classify picks the dispatch target: a MATCH keyword means the
// structured engine, a space-free path-shaped literal means a direct
// lookup, everything else is free text.
func classify(text string) Kind {
	if matchPrefix.MatchString(text) {
		return KindStructured
	}
	if !strings.ContainsAny(text, " \t") && strings.ContainsAny(text, "/\\") {
		return KindPath
	}
	return KindSemantic
}

func (e *Engine) runStructured(text string, opts QueryOptions) (*Response, error) {
	res, err := e.queries.Execute(text, opts.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Kind:    KindStructured,
		Columns: res.Columns,
		Rows:    res.Rows,
		Nodes:   res.Nodes,
		Edges:   res.Edges,
	}, nil
}

func (e *Engine) runPath(ctx context.Context, text string, opts QueryOptions) (*Response, error) {
	normalized := strings.TrimPrefix(paths.NormalizePath(text), "./")
	candidates := e.store.FindNodes(graph.Predicate{Path: normalized})
	if len(candidates) == 0 {
		// Fall back to matching the basename as free text.
		return e.runSemantic(ctx, pathBasename(normalized), opts)
	}
	matches := e.ranker.Rank(text, candidates, e.searchOptions(opts))
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	resp := &Response{Kind: KindPath, Matches: matches}
	e.spreadRelated(resp, opts)
	return resp, nil
}

func (e *Engine) runSemantic(_ context.Context, text string, opts QueryOptions) (*Response, error) {
	candidates := e.store.FindNodes(graph.Predicate{Type: graph.NodeType(opts.Type)})
	matches := e.ranker.Rank(text, candidates, e.searchOptions(opts))
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	resp := &Response{Kind: KindSemantic, Matches: matches}
	e.spreadRelated(resp, opts)
	return resp, nil
}

// spreadRelated seeds activation from the top matches and attaches
// related nodes not already present in the match list.
func (e *Engine) spreadRelated(resp *Response, opts QueryOptions) {
	if opts.skips(StageActivation) || len(resp.Matches) == 0 {
		return
	}
	seedCount := 3
	if len(resp.Matches) < seedCount {
		seedCount = len(resp.Matches)
	}
	seen := map[string]bool{}
	seeds := make([]string, 0, seedCount)
	for _, m := range resp.Matches {
		seen[m.Node.ID] = true
	}
	for _, m := range resp.Matches[:seedCount] {
		seeds = append(seeds, m.Node.ID)
	}

	spreadOpts := activation.DefaultOptions()
	spreadOpts.Decay = e.cfg.Activation.Decay
	spreadOpts.Cutoff = e.cfg.Activation.Cutoff
	spreadOpts.MaxHops = e.cfg.Activation.MaxHops
	spreadOpts.Context = opts.Context

	out := e.spreader.Spread(seeds, spreadOpts)
	for _, r := range out.Results {
		if !seen[r.Node.ID] {
			resp.Related = append(resp.Related, r)
		}
	}
}

func (e *Engine) searchOptions(opts QueryOptions) search.Options {
	o := search.DefaultOptions()
	o.RecencyHalfLife = time.Duration(e.cfg.Search.RecencyHalfLifeDays * 24 * float64(time.Hour))
	o.Context = opts.Context
	return o
}

// responseMentions lists every node id and path a response touches,
// for targeted invalidation later.
func responseMentions(resp *Response) []string {
	set := map[string]bool{}
	add := func(id, path string) {
		if id != "" {
			set[id] = true
		}
		if path != "" {
			set[path] = true
		}
	}
	for _, n := range resp.Nodes {
		add(n.ID, n.Path)
	}
	for _, m := range resp.Matches {
		add(m.Node.ID, m.Node.Path)
	}
	for _, r := range resp.Related {
		add(r.Node.ID, r.Node.Path)
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func (e *Engine) record(opts QueryOptions, kind Kind, resp *Response, hit bool, start time.Time) {
	if opts.skips(StageTelemetry) {
		return
	}
	count := len(resp.Rows)
	if count == 0 {
		count = len(resp.Matches)
	}
	e.metrics.Record(string(kind), count, hit, time.Since(start))
}

func pathBasename(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.LastIndex(p, "."); i > 0 {
		p = p[:i]
	}
	return p
}
