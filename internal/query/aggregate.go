package query

import (
	"fmt"
	"sort"

	"mindgraph/internal/errors"
)

func hasAggregates(q *Query) bool {
	for _, f := range q.Return {
		if f.Agg != AggNone {
			return true
		}
	}
	return false
}

type group struct {
	key    string
	sample binding
	rows   []binding
}

// aggregateRows groups matched bindings and computes one output row
// per group. With no GROUP BY clause, the plain RETURN fields form
// the implicit grouping key; all-aggregate queries produce one row.
func aggregateRows(q *Query, bindings []binding) ([][]interface{}, error) {
	keyPaths := q.GroupBy
	if len(keyPaths) == 0 {
		for _, f := range q.Return {
			if f.Agg == AggNone {
				keyPaths = append(keyPaths, f.Path)
			}
		}
	}

	groups := map[string]*group{}
	var order []string
	for _, b := range bindings {
		key := groupKey(keyPaths, b)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, sample: b}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, b)
	}
	sort.Strings(order)

	rows := make([][]interface{}, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		row := make([]interface{}, len(q.Return))
		for i, f := range q.Return {
			if f.Agg == AggNone {
				row[i] = resolveOrNil(f.Path, g.sample)
				continue
			}
			v, err := computeAggregate(f, g.rows)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func groupKey(paths []PropertyPath, b binding) string {
	if len(paths) == 0 {
		return ""
	}
	key := ""
	for _, p := range paths {
		key += fmt.Sprintf("%v\x00", resolveOrNil(p, b))
	}
	return key
}

func computeAggregate(f ReturnField, rows []binding) (interface{}, error) {
	if f.Agg == AggCount {
		n := 0
		for _, b := range rows {
			if _, ok := resolveValue(f.Path, b); ok {
				n++
			}
		}
		return float64(n), nil
	}

	var values []float64
	for _, b := range rows {
		v, ok := resolveValue(f.Path, b)
		if !ok {
			continue
		}
		n, ok := asFloat(v)
		if !ok {
			return nil, errors.Newf(errors.QuerySyntax, "%s requires a numeric property, %s is not", f.Agg, f.Path)
		}
		values = append(values, n)
	}
	if len(values) == 0 {
		return nil, nil
	}

	switch f.Agg {
	case AggSum, AggAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if f.Agg == AggAvg {
			return sum / float64(len(values)), nil
		}
		return sum, nil
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	}
	return nil, errors.Newf(errors.InternalError, "unknown aggregate %q", f.Agg)
}
