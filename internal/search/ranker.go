// Package search turns a free-text query into a ranked node list using
// multi-factor scoring over names, paths, confidence and recency.
package search

import (
	"math"
	"sort"
	"strings"
	"time"

	"mindgraph/internal/graph"
)

// RankWeights controls how the individual signals are combined.
type RankWeights struct {
	ExactName  float64 `json:"exactName"` // case-insensitive full name match
	TermMatch  float64 `json:"termMatch"` // per matched query term
	Substring  float64 `json:"substring"` // query is a substring of name
	PathMatch  float64 `json:"pathMatch"` // query term appears in path
	Confidence float64 `json:"confidence"`
	Recency    float64 `json:"recency"`
	Context    float64 `json:"context"` // caller-supplied boost multiplier
}

// DefaultRankWeights returns the default signal weights. Exact name match
// dominates everything else.
func DefaultRankWeights() RankWeights {
	return RankWeights{
		ExactName:  10.0,
		TermMatch:  2.0,
		Substring:  3.0,
		PathMatch:  1.5,
		Confidence: 1.0,
		Recency:    1.0,
		Context:    2.0,
	}
}

// Options configures a ranking pass.
type Options struct {
	Weights RankWeights
	// RecencyHalfLife halves the recency signal per elapsed period.
	RecencyHalfLife time.Duration
	// Context boosts nodes whose language/framework/path match the
	// caller's situation. Recognized keys: language, framework,
	// pathPrefix; any other value is matched against node terms.
	Context map[string]string
	// Now fixes the reference time; zero means time.Now(). Tests pin it.
	Now time.Time
}

// DefaultOptions returns ranking options with default weights.
func DefaultOptions() Options {
	return Options{
		Weights:         DefaultRankWeights(),
		RecencyHalfLife: 14 * 24 * time.Hour,
	}
}

// ScoredNode is a node with its ranking score and signal breakdown.
type ScoredNode struct {
	Node      *graph.Node        `json:"node"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// Ranker scores candidate nodes against free-text queries.
type Ranker struct {
	store *graph.Store
}

// NewRanker creates a ranker over the given store. The store is only used
// for insertion-order tie-breaking; candidates come from the caller.
func NewRanker(store *graph.Store) *Ranker {
	return &Ranker{store: store}
}

// Rank scores the candidates against the query and returns them in
// descending score order. Ties break by higher confidence, then newer
// LastUpdated, then insertion order, so results are deterministic.
//
// Invariant: a candidate whose name case-insensitively equals the query is
// always present in the output. Rank never filters candidates out; it only
// orders them, so no downstream predicate can disagree with the exact-match
// rule used here.
func (r *Ranker) Rank(query string, candidates []*graph.Node, opts Options) []ScoredNode {
	if opts.Weights == (RankWeights{}) {
		opts.Weights = DefaultRankWeights()
	}
	if opts.RecencyHalfLife <= 0 {
		opts.RecencyHalfLife = 14 * 24 * time.Hour
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTerms := graph.SplitIdentifier(query)

	scored := make([]ScoredNode, 0, len(candidates))
	for _, n := range candidates {
		sn := ScoredNode{Node: n, Breakdown: make(map[string]float64, 6)}
		w := opts.Weights

		nameLower := strings.ToLower(n.Name)
		terms := graph.TermSet(n)

		if nameLower == queryLower && queryLower != "" {
			sn.Breakdown["exactName"] = w.ExactName
		}

		matched := 0
		for _, qt := range queryTerms {
			if _, ok := terms[qt]; ok {
				matched++
			}
		}
		if matched > 0 {
			sn.Breakdown["termMatch"] = w.TermMatch * float64(matched)
		}

		if queryLower != "" && nameLower != queryLower && strings.Contains(nameLower, queryLower) {
			sn.Breakdown["substring"] = w.Substring
		}

		pathLower := strings.ToLower(n.Path)
		if queryLower != "" && pathLower != "" && strings.Contains(pathLower, queryLower) {
			sn.Breakdown["pathMatch"] = w.PathMatch
		}

		sn.Breakdown["confidence"] = w.Confidence * n.Confidence

		age := now.Sub(n.LastUpdated)
		if age < 0 {
			age = 0
		}
		halvings := float64(age) / float64(opts.RecencyHalfLife)
		sn.Breakdown["recency"] = w.Recency * math.Pow(0.5, halvings)

		if boost := contextBoost(n, terms, opts.Context); boost > 0 {
			sn.Breakdown["context"] = w.Context * boost
		}

		for _, v := range sn.Breakdown {
			sn.Score += v
		}
		scored = append(scored, sn)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Node.Confidence != b.Node.Confidence {
			return a.Node.Confidence > b.Node.Confidence
		}
		if !a.Node.LastUpdated.Equal(b.Node.LastUpdated) {
			return a.Node.LastUpdated.After(b.Node.LastUpdated)
		}
		return r.insertionIndex(a.Node.ID) < r.insertionIndex(b.Node.ID)
	})

	return scored
}

func (r *Ranker) insertionIndex(id string) int64 {
	if r.store == nil {
		return 0
	}
	return r.store.InsertionIndex(id)
}

// contextBoost returns a fraction in [0,1] of context attributes the node
// matches.
func contextBoost(n *graph.Node, terms map[string]struct{}, ctx map[string]string) float64 {
	if len(ctx) == 0 {
		return 0
	}

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
	return float64(matched) / float64(len(ctx))
}
