// Package inference implements the bounded BFS with confidence decay of
// spec §4.5: starting from an entity, it walks outgoing relations up to a
// maximum depth, decaying a running confidence per hop by relation type,
// and emits non-persisted "inferred_<type>" relations once a path has at
// least two hops. Grounded on the teacher's pkg/scheduler style: pure,
// allocation-light functions over caller-supplied state, unit-tested with
// table-driven testify tests rather than holding any store state itself.
package inference

import (
	"fmt"
	"strings"

	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/types"
)

// decayFactor maps a relation_type to its per-hop confidence multiplier
// (spec §4.5's table). Unlisted types fall through to the default 0.60.
func decayFactor(relationType string) float64 {
	switch relationType {
	case "depends_on", "contains", "part_of":
		return 0.95
	case "implements", "fixes", "caused_by":
		return 0.90
	case "affects", "assigned_to", "blocked_by":
		return 0.85
	case "relates_to", "supersedes", "requires":
		return 0.70
	default:
		return 0.60
	}
}

// Inferred is one non-persisted transitive relation.
type Inferred struct {
	From         string
	To           string
	RelationType string // "inferred_<first relation type in the path>"
	Confidence   float64
	Explanation  string
}

// Stats summarizes one Infer call.
type Stats struct {
	NodesVisited    int
	PathsFound      int
	MaxDepthReached int
	Duration        int64 // nanoseconds; tests should only assert non-negative (spec §9 "Time")
}

type queueItem struct {
	node          string
	path          []string
	relationTypes []string
	confidence    float64
	depth         int
}

// Infer runs the bounded BFS from start over relations (typically the full
// current relation set, e.g. from GetRelationsAtTime), up to maxDepth
// hops (clamped to [1,5]), dropping any branch whose running confidence
// falls below minConfidence.
func Infer(relations []*types.Relation, start string, maxDepth int, minConfidence float64, c clock.Clock) ([]Inferred, Stats) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 5 {
		maxDepth = 5
	}
	if c == nil {
		c = clock.Real{}
	}

	startTime := c.Now()

	adjacency := make(map[string][]*types.Relation)
	for _, r := range relations {
		adjacency[r.From] = append(adjacency[r.From], r)
	}

	var results []Inferred
	stats := Stats{}

	visited := map[string]struct{}{start: {}}
	queue := []queueItem{{node: start, path: []string{start}, confidence: 1.0, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		stats.NodesVisited++
		if item.depth > stats.MaxDepthReached {
			stats.MaxDepthReached = item.depth
		}

		if item.depth >= maxDepth {
			continue
		}

		for _, r := range adjacency[item.node] {
			if _, seen := visited[r.To]; seen {
				continue
			}
			newConfidence := item.confidence * decayFactor(r.RelationType)
			if newConfidence < minConfidence {
				continue
			}

			nextPath := append(append([]string(nil), item.path...), r.To)
			nextTypes := append(append([]string(nil), item.relationTypes...), r.RelationType)

			if len(nextPath) >= 3 {
				results = append(results, Inferred{
					From:         start,
					To:           r.To,
					RelationType: "inferred_" + nextTypes[0],
					Confidence:   newConfidence,
					Explanation:  explain(nextPath, nextTypes),
				})
				stats.PathsFound++
			}

			visited[r.To] = struct{}{}
			queue = append(queue, queueItem{
				node:          r.To,
				path:          nextPath,
				relationTypes: nextTypes,
				confidence:    newConfidence,
				depth:         item.depth + 1,
			})
		}
	}

	stats.Duration = c.Now().Sub(startTime).Nanoseconds()
	return results, stats
}

// explain renders "Inferred via path: n0 -[t1]-> n1 -[t2]-> n2 …" for the
// inference's accumulated path.
func explain(path []string, relationTypes []string) string {
	var b strings.Builder
	b.WriteString("Inferred via path: ")
	b.WriteString(path[0])
	for i, t := range relationTypes {
		fmt.Fprintf(&b, " -[%s]-> %s", t, path[i+1])
	}
	return b.String()
}
