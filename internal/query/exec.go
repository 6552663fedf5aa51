package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mindgraph/internal/errors"
	"mindgraph/internal/graph"
	"mindgraph/internal/logging"
)

// Engine plans and executes parsed queries against a graph store.
type Engine struct {
	store  *graph.Store
	logger *logging.Logger
}

func NewEngine(store *graph.Store, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{store: store, logger: logger}
}

// Result holds projected rows plus the distinct graph elements the
// match touched.
type Result struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	Nodes   []graph.Node    `json:"nodes"`
	Edges   []graph.Edge    `json:"edges"`
}

// binding maps pattern aliases to the matched node or edge.
type binding map[string]interface{}

// Execute parses and runs queryString. limit caps the row count on
// top of any LIMIT clause in the query itself; 0 means no extra cap.
func (e *Engine) Execute(queryString string, limit int) (*Result, error) {
	q, err := Parse(queryString)
	if err != nil {
		return nil, err
	}
	return e.Run(q, limit)
}

// Run executes an already-parsed query.
func (e *Engine) Run(q *Query, limit int) (*Result, error) {
	start := time.Now()
	bindings, err := e.match(q)
	if err != nil {
		return nil, err
	}

	if q.Where != nil {
		filtered := bindings[:0]
		for _, b := range bindings {
			ok, evalErr := evalExpr(q.Where, b)
			if evalErr != nil {
				return nil, evalErr
			}
			if ok {
				filtered = append(filtered, b)
			}
		}
		bindings = filtered
	}

	result := &Result{}
	collectElements(result, bindings)
	for _, f := range q.Return {
		result.Columns = append(result.Columns, fieldLabel(f))
	}

	if hasAggregates(q) {
		rows, err := aggregateRows(q, bindings)
		if err != nil {
			return nil, err
		}
		result.Rows = rows
	} else {
		for _, b := range bindings {
			row := make([]interface{}, len(q.Return))
			for i, f := range q.Return {
				row[i] = resolveOrNil(f.Path, b)
			}
			result.Rows = append(result.Rows, row)
		}
	}

	if q.OrderBy != nil {
		if err := orderRows(result, q.OrderBy); err != nil {
			return nil, err
		}
	}

	max := q.Limit
	if limit > 0 && (max == 0 || limit < max) {
		max = limit
	}
	if max > 0 && len(result.Rows) > max {
		result.Rows = result.Rows[:max]
	}

	e.logger.Debug("query executed", map[string]interface{}{
		"patterns": len(q.Patterns),
		"rows":     len(result.Rows),
		"tookMs":   time.Since(start).Milliseconds(),
	})
	return result, nil
}

// match resolves pattern candidates via the most selective index and
// joins them along edge-type indexes.
func (e *Engine) match(q *Query) ([]binding, error) {
	pushdown := equalityPushdown(q.Where)

	candidates := make([]map[string]*graph.Node, len(q.Patterns))
	for i, pat := range q.Patterns {
		pred := graph.Predicate{Type: graph.NodeType(pat.Type)}
		if pd, ok := pushdown[pat.Alias]; ok {
			pred.Name = pd.name
			pred.Path = pd.path
		}
		nodes := e.store.FindNodes(pred)
		if q.Temporal != nil {
			nodes = filterNodesTemporal(nodes, q.Temporal, len(q.Edges) == 0)
		}
		set := make(map[string]*graph.Node, len(nodes))
		for _, n := range nodes {
			set[n.ID] = n
		}
		candidates[i] = set
	}

	first := q.Patterns[0]
	var bindings []binding
	for _, n := range sortedByInsertion(e.store, candidates[0]) {
		bindings = append(bindings, binding{first.Alias: n})
	}

	for i, edgePat := range q.Edges {
		srcAlias := q.Patterns[i].Alias
		dstPat := q.Patterns[i+1]
		var next []binding
		for _, b := range bindings {
			src := b[srcAlias].(*graph.Node)
			for _, edge := range e.store.EdgesFrom(src.ID) {
				if string(edge.Type) != edgePat.Type {
					continue
				}
				if q.Temporal != nil && !edgeInWindow(edge, q.Temporal) {
					continue
				}
				dst, ok := candidates[i+1][edge.Target]
				if !ok {
					continue
				}
				nb := make(binding, len(b)+2)
				for k, v := range b {
					nb[k] = v
				}
				nb[dstPat.Alias] = dst
				if edgePat.Alias != "" {
					nb[edgePat.Alias] = edge
				}
				next = append(next, nb)
			}
		}
		bindings = next
	}

	if q.Temporal != nil && q.Temporal.Since != nil {
		bindings = filterChanged(bindings, q.Temporal)
	}
	return bindings, nil
}

type pushdownPred struct {
	name string
	path string
}

// equalityPushdown collects name/path equality constraints from the
// top-level AND chain of a WHERE clause. OR subtrees are never pushed
// down; the residual filter still applies the full predicate.
func equalityPushdown(expr Expr) map[string]pushdownPred {
	out := map[string]pushdownPred{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case *LogicalExpr:
			if v.Op == "AND" {
				walk(v.Left)
				walk(v.Right)
			}
		case *CompareExpr:
			if v.Op != opEq || v.Value.IsNumber || len(v.Path.Segments) != 1 {
				return
			}
			pd := out[v.Path.Alias]
			switch v.Path.Segments[0] {
			case "name":
				pd.name = v.Value.Str
			case "path":
				pd.path = v.Value.Str
			}
			out[v.Path.Alias] = pd
		}
	}
	if expr != nil {
		walk(expr)
	}
	return out
}

func sortedByInsertion(s *graph.Store, set map[string]*graph.Node) []*graph.Node {
	nodes := make([]*graph.Node, 0, len(set))
	for _, n := range set {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return s.InsertionIndex(nodes[i].ID) < s.InsertionIndex(nodes[j].ID)
	})
	return nodes
}

func filterNodesTemporal(nodes []*graph.Node, tc *TemporalClause, singlePattern bool) []*graph.Node {
	if tc.AsOf == nil || !singlePattern {
		return nodes
	}
	// Without edges to carry valid-time, AS OF falls back to the
	// node's own modification time.
	var out []*graph.Node
	for _, n := range nodes {
		if !n.LastUpdated.After(*tc.AsOf) {
			out = append(out, n)
		}
	}
	return out
}

func edgeInWindow(e *graph.Edge, tc *TemporalClause) bool {
	if tc.AsOf != nil {
		ts := *tc.AsOf
		if e.ValidFrom != nil && e.ValidFrom.After(ts) {
			return false
		}
		if e.ValidTo != nil && !e.ValidTo.After(ts) {
			return false
		}
	}
	return true
}

// filterChanged keeps bindings where at least one bound element
// changed inside the [Since, Until) window.
func filterChanged(bindings []binding, tc *TemporalClause) []binding {
	inWindow := func(t time.Time) bool {
		if t.Before(*tc.Since) {
			return false
		}
		if tc.Until != nil && !t.Before(*tc.Until) {
			return false
		}
		return true
	}
	var out []binding
	for _, b := range bindings {
		changed := false
		for _, v := range b {
			switch el := v.(type) {
			case *graph.Node:
				if inWindow(el.LastUpdated) {
					changed = true
				}
			case *graph.Edge:
				if inWindow(el.TxTime) {
					changed = true
				}
			}
		}
		if changed {
			out = append(out, b)
		}
	}
	return out
}

func evalExpr(expr Expr, b binding) (bool, error) {
	switch v := expr.(type) {
	case *LogicalExpr:
		left, err := evalExpr(v.Left, b)
		if err != nil {
			return false, err
		}
		if v.Op == "AND" && !left {
			return false, nil
		}
		if v.Op == "OR" && left {
			return true, nil
		}
		return evalExpr(v.Right, b)
	case *CompareExpr:
		val, ok := resolveValue(v.Path, b)
		if !ok {
			return false, nil
		}
		return compareValue(v.Op, val, v.Value)
	}
	return false, errors.Newf(errors.InternalError, "unknown expression node %T", expr)
}

// resolveValue looks a property path up against a bound node or edge.
// Missing properties resolve to (nil, false), not an error: a WHERE
// condition on an absent metadata key simply does not match.
func resolveValue(path PropertyPath, b binding) (interface{}, bool) {
	bound, ok := b[path.Alias]
	if !ok {
		return nil, false
	}
	switch el := bound.(type) {
	case *graph.Node:
		return resolveNodeProperty(el, path.Segments)
	case *graph.Edge:
		return resolveEdgeProperty(el, path.Segments)
	}
	return nil, false
}

func resolveOrNil(path PropertyPath, b binding) interface{} {
	v, ok := resolveValue(path, b)
	if !ok {
		return nil
	}
	return v
}

func resolveNodeProperty(n *graph.Node, segments []string) (interface{}, bool) {
	switch segments[0] {
	case "id":
		return n.ID, len(segments) == 1
	case "type":
		return string(n.Type), len(segments) == 1
	case "name":
		return n.Name, len(segments) == 1
	case "path":
		return n.Path, len(segments) == 1
	case "confidence":
		return n.Confidence, len(segments) == 1
	case "lastupdated":
		return n.LastUpdated, len(segments) == 1
	case "metadata":
		if len(segments) == 1 {
			return n.Metadata, true
		}
		return resolveMetadata(n.Metadata, segments[1:])
	}
	return nil, false
}

func resolveEdgeProperty(e *graph.Edge, segments []string) (interface{}, bool) {
	if len(segments) != 1 {
		return nil, false
	}
	switch segments[0] {
	case "source":
		return e.Source, true
	case "target":
		return e.Target, true
	case "type":
		return string(e.Type), true
	case "confidence":
		return e.Confidence, true
	case "strength":
		return e.Strength, true
	case "txtime":
		return e.TxTime, true
	}
	return nil, false
}

func resolveMetadata(meta map[string]interface{}, segments []string) (interface{}, bool) {
	var cur interface{} = meta
	for _, seg := range segments {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compareValue(op compareOp, val interface{}, lit Literal) (bool, error) {
	if lit.IsNumber {
		n, ok := asFloat(val)
		if !ok {
			return false, nil
		}
		switch op {
		case opEq:
			return n == lit.Num, nil
		case opNeq:
			return n != lit.Num, nil
		case opLt:
			return n < lit.Num, nil
		case opLte:
			return n <= lit.Num, nil
		case opGt:
			return n > lit.Num, nil
		case opGte:
			return n >= lit.Num, nil
		default:
			return false, errors.Newf(errors.QuerySyntax, "operator %s is not defined for numbers", op)
		}
	}

	s, ok := asString(val)
	if !ok {
		return false, nil
	}
	switch op {
	case opEq:
		return s == lit.Str, nil
	case opNeq:
		return s != lit.Str, nil
	case opContains:
		return strings.Contains(s, lit.Str), nil
	case opLt:
		return s < lit.Str, nil
	case opLte:
		return s <= lit.Str, nil
	case opGt:
		return s > lit.Str, nil
	case opGte:
		return s >= lit.Str, nil
	}
	return false, errors.Newf(errors.QuerySyntax, "operator %s is not defined for strings", op)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func collectElements(result *Result, bindings []binding) {
	seenNodes := map[string]bool{}
	seenEdges := map[graph.EdgeKey]bool{}
	for _, b := range bindings {
		for _, v := range b {
			switch el := v.(type) {
			case *graph.Node:
				if !seenNodes[el.ID] {
					seenNodes[el.ID] = true
					result.Nodes = append(result.Nodes, *el)
				}
			case *graph.Edge:
				key := graph.EdgeKey{Source: el.Source, Target: el.Target, Type: el.Type}
				if !seenEdges[key] {
					seenEdges[key] = true
					result.Edges = append(result.Edges, *el)
				}
			}
		}
	}
	sort.Slice(result.Nodes, func(i, j int) bool { return result.Nodes[i].ID < result.Nodes[j].ID })
	sort.Slice(result.Edges, func(i, j int) bool {
		a, b := result.Edges[i], result.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Type < b.Type
	})
}

func orderRows(result *Result, key *OrderKey) error {
	col := -1
	for i, label := range result.Columns {
		if label == key.Field {
			col = i
			break
		}
	}
	if col < 0 {
		return errors.Newf(errors.QuerySyntax, "ORDER BY field %q is not in RETURN", key.Field)
	}
	sort.SliceStable(result.Rows, func(i, j int) bool {
		less := valueLess(result.Rows[i][col], result.Rows[j][col])
		if key.Desc {
			return valueLess(result.Rows[j][col], result.Rows[i][col])
		}
		return less
	})
	return nil
}

func valueLess(a, b interface{}) bool {
	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		return an < bn
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
