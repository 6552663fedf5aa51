// Package activation implements spreading-activation ranking over the
// property graph: a decaying relevance signal propagates outward from seed
// nodes for a bounded number of hops.
package activation

import (
	"sort"
	"strings"

	"mindgraph/internal/graph"
)

// Options configures activation spreading. The decay and cutoff constants
// are empirically chosen defaults, kept configurable.
type Options struct {
	// Decay is the per-hop attenuation factor (default: 0.7).
	Decay float64

	// Cutoff zeroes activations below this threshold to bound the
	// frontier (default: 0.1).
	Cutoff float64

	// MaxHops bounds traversal depth (default: 3).
	MaxHops int

	// TopK limits the number of returned results (default: 20).
	TopK int

	// FollowIncoming also propagates against edge direction. Relevance
	// flows both ways: a file containing a hot class is itself relevant.
	FollowIncoming bool

	// Context boosts final activations for nodes matching the caller's
	// situation (same keys as search: language, framework, pathPrefix,
	// free terms).
	Context map[string]string
}

// DefaultOptions returns sensible spreading defaults.
func DefaultOptions() Options {
	return Options{
		Decay:          0.7,
		Cutoff:         0.1,
		MaxHops:        3,
		TopK:           20,
		FollowIncoming: true,
	}
}

// RankedNode is a node with its final activation.
type RankedNode struct {
	Node       *graph.Node `json:"node"`
	Activation float64     `json:"activation"`
	Hops       int         `json:"hops"` // shortest hop distance from any seed
}

// Output is the full result of one spreading pass.
type Output struct {
	Results    []RankedNode `json:"results"`
	SeedIDs    []string     `json:"seedIds"`
	Visited    int          `json:"visited"`
	MaxHops    int          `json:"maxHops"`
	TotalNodes int          `json:"totalNodes"`
}

// Engine spreads activation across a graph store snapshot.
type Engine struct {
	store *graph.Store
}

// NewEngine creates a spreading engine over the store.
func NewEngine(store *graph.Store) *Engine {
	return &Engine{store: store}
}

// Spread propagates activation from the seed nodes. Seeds start at 1.0;
// each hop multiplies by edge strength and the decay factor, and values
// below the cutoff are discarded. A node's activation is the maximum
// observed across paths, never a sum, so cycles cannot inflate scores and
// no activation exceeds 1.0. Deterministic for a fixed graph snapshot.
func (e *Engine) Spread(seedIDs []string, opts Options) *Output {
	if opts.Decay <= 0 || opts.Decay >= 1 {
		opts.Decay = 0.7
	}
	if opts.Cutoff <= 0 {
		opts.Cutoff = 0.1
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = 3
	}
	if opts.TopK <= 0 {
		opts.TopK = 20
	}

	activation := make(map[string]float64)
	hops := make(map[string]int)

	var frontier []string
	var validSeeds []string
	for _, id := range seedIDs {
		if _, ok := e.store.GetNode(id); !ok {
			continue
		}
		if _, seen := activation[id]; seen {
			continue
		}
		activation[id] = 1.0
		hops[id] = 0
		frontier = append(frontier, id)
		validSeeds = append(validSeeds, id)
	}
	sort.Strings(frontier)

	for hop := 1; hop <= opts.MaxHops && len(frontier) > 0; hop++ {
		next := make(map[string]struct{})

		for _, id := range frontier {
			source := activation[id]

			propagate := func(neighborID string, strength float64) {
				value := source * strength * opts.Decay
				if value < opts.Cutoff {
					return
				}
				if value > activation[neighborID] {
					activation[neighborID] = value
					if prev, ok := hops[neighborID]; !ok || hop < prev {
						hops[neighborID] = hop
					}
					next[neighborID] = struct{}{}
				}
			}

			for _, edge := range e.store.EdgesFrom(id) {
				propagate(edge.Target, edge.Strength)
			}
			if opts.FollowIncoming {
				for _, edge := range e.store.EdgesTo(id) {
					propagate(edge.Source, edge.Strength)
				}
			}
		}

		frontier = frontier[:0]
		for id := range next {
			frontier = append(frontier, id)
		}
		sort.Strings(frontier)
	}

	results := make([]RankedNode, 0, len(activation))
	for id, act := range activation {
		node, ok := e.store.GetNode(id)
		if !ok {
			continue
		}
		final := act * contextMultiplier(node, opts.Context)
		if final > 1.0 {
			final = 1.0
		}
		results = append(results, RankedNode{Node: node, Activation: final, Hops: hops[id]})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Activation != results[j].Activation {
			return results[i].Activation > results[j].Activation
		}
		return results[i].Node.ID < results[j].Node.ID
	})

	visited := len(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	return &Output{
		Results:    results,
		SeedIDs:    validSeeds,
		Visited:    visited,
		MaxHops:    opts.MaxHops,
		TotalNodes: e.store.NodeCount(),
	}
}

// contextMultiplier scales activation by context relevance: 1.0 when no
// context is given, up to 1.5 when every attribute matches.
func contextMultiplier(n *graph.Node, ctx map[string]string) float64 {
	if len(ctx) == 0 {
		return 1.0
	}

	terms := graph.TermSet(n)
	matched := 0
	for key, value := range ctx {
		if value == "" {
			continue
		}
		switch key {
		case "language":
			if strings.EqualFold(n.Language(), value) {
				matched++
			}
		case "framework":
			if strings.EqualFold(n.Framework(), value) {
				matched++
			}
		case "pathPrefix":
			if strings.HasPrefix(n.Path, value) {
				matched++
			}
		default:
			if _, ok := terms[strings.ToLower(value)]; ok {
				matched++
			}
		}
	}
	return 1.0 + 0.5*float64(matched)/float64(len(ctx))
}
