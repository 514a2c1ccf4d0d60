package graphstore

import (
	"sort"
	"strings"

	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/expand"
	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/types"
)

// GraphView is the paginated read returned by ReadGraph.
type GraphView struct {
	Entities  []*types.Entity
	Relations []*types.Relation
}

// ReadGraph slices entities by [offset, offset+limit) in sorted-name order
// (the btree index gives this a stable iteration order, unlike raw Go map
// iteration), and restricts relations to those whose from or to falls
// inside the slice.
func (s *Store) ReadGraph(offset, limit int) GraphView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = s.names.Len()
	}

	names := make([]string, 0, limit)
	idx := 0
	s.names.Ascend(func(name string) bool {
		if idx >= offset && len(names) < limit {
			names = append(names, name)
		}
		idx++
		return idx < offset+limit
	})

	inSlice := make(map[string]struct{}, len(names))
	entities := make([]*types.Entity, 0, len(names))
	for _, name := range names {
		inSlice[name] = struct{}{}
		if e, ok := s.entities[name]; ok {
			entities = append(entities, e.Clone())
		}
	}

	var relations []*types.Relation
	for _, r := range s.relations {
		_, fromIn := inSlice[r.From]
		_, toIn := inSlice[r.To]
		if fromIn || toIn {
			relations = append(relations, r.Clone())
		}
	}

	return GraphView{Entities: entities, Relations: relations}
}

// SearchNodes expands query via the Store's Expander and matches entities
// whose name, type, or any observation contains one of the expanded terms
// as a case-insensitive substring. The expanded terms compile into a single
// Aho-Corasick automaton (built once for the call, not once per candidate)
// so the scan stays linear in the total haystack size regardless of how
// many terms the query expanded to. Results are truncated to limit
// (0 means unlimited) in name order for determinism.
func (s *Store) SearchNodes(query string, limit int, includeRelations bool) GraphView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := s.expander.Expand(query)
	if len(terms) == 0 {
		return GraphView{}
	}

	matcher, err := expand.NewMatcher(terms)
	if err != nil {
		log.Logger.Warn().Err(err).Str("query", query).Msg("graphstore: failed to compile search matcher")
		return GraphView{}
	}

	var matched []*types.Entity
	s.names.Ascend(func(name string) bool {
		e, ok := s.entities[name]
		if !ok {
			return true
		}
		haystacks := make([]string, 0, 2+len(e.Observations))
		haystacks = append(haystacks, e.Name, e.EntityType)
		haystacks = append(haystacks, e.Observations...)
		matches := false
		for _, h := range haystacks {
			if matcher.MatchAny(h) {
				matches = true
				break
			}
		}
		if matches {
			matched = append(matched, e.Clone())
			if limit > 0 && len(matched) >= limit {
				return false
			}
		}
		return true
	})

	view := GraphView{Entities: matched}
	if includeRelations {
		survivors := make(map[string]struct{}, len(matched))
		for _, e := range matched {
			survivors[e.Name] = struct{}{}
		}
		for _, r := range s.relations {
			_, fromIn := survivors[r.From]
			_, toIn := survivors[r.To]
			if fromIn || toIn {
				view.Relations = append(view.Relations, r.Clone())
			}
		}
	}
	return view
}

// OpenNodes returns entities matching any of names, plus relations whose
// both endpoints are in the returned set.
func (s *Store) OpenNodes(names []string) GraphView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	var entities []*types.Entity
	for name := range want {
		if e, ok := s.entities[name]; ok {
			entities = append(entities, e.Clone())
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })

	var relations []*types.Relation
	for _, r := range s.relations {
		_, fromIn := want[r.From]
		_, toIn := want[r.To]
		if fromIn && toIn {
			relations = append(relations, r.Clone())
		}
	}

	return GraphView{Entities: entities, Relations: relations}
}

// Direction selects which side of a relation GetRelated walks.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// RelatedEntity is one GetRelated result: the peer entity plus the
// relation_type and actual direction it was reached by.
type RelatedEntity struct {
	Entity       *types.Entity
	RelationType string
	Direction    Direction
}

// GetRelated walks the relation list once, returning the peer entity for
// every relation matching direction (and relationType, if given).
func (s *Store) GetRelated(entityName string, relationType string, direction Direction) []RelatedEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RelatedEntity
	for _, r := range s.relations {
		if relationType != "" && r.RelationType != relationType {
			continue
		}
		if (direction == DirectionOutgoing || direction == DirectionBoth) && r.From == entityName {
			if peer, ok := s.entities[r.To]; ok {
				out = append(out, RelatedEntity{Entity: peer.Clone(), RelationType: r.RelationType, Direction: DirectionOutgoing})
			}
		}
		if (direction == DirectionIncoming || direction == DirectionBoth) && r.To == entityName {
			if peer, ok := s.entities[r.From]; ok {
				out = append(out, RelatedEntity{Entity: peer.Clone(), RelationType: r.RelationType, Direction: DirectionIncoming})
			}
		}
	}
	return out
}

// SummaryFormat selects Summarize's projection.
type SummaryFormat string

const (
	FormatBrief    SummaryFormat = "brief"
	FormatDetailed SummaryFormat = "detailed"
	FormatStats    SummaryFormat = "stats"
)

// EntitySummary is one Summarize result in brief/detailed format.
type EntitySummary struct {
	Name       string
	EntityType string
	Summary    string
}

// StatsSummary is Summarize's stats-format result.
type StatsSummary struct {
	CountsByType       map[string]int
	StatusObservations int
	PriorityObservations int
}

// Summarize selects entities by explicit names, by entity_type, or all
// (when both are empty), and projects per format.
func (s *Store) Summarize(names []string, entityType string, format SummaryFormat) (*StatsSummary, []EntitySummary) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var selected []*types.Entity
	switch {
	case len(names) > 0:
		for _, n := range names {
			if e, ok := s.entities[n]; ok {
				selected = append(selected, e)
			}
		}
	case entityType != "":
		for _, e := range s.entities {
			if e.EntityType == entityType {
				selected = append(selected, e)
			}
		}
	default:
		for _, e := range s.entities {
			selected = append(selected, e)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Name < selected[j].Name })

	if format == FormatStats {
		stats := &StatsSummary{CountsByType: map[string]int{}}
		for _, e := range selected {
			stats.CountsByType[e.EntityType]++
			for _, o := range e.Observations {
				if strings.HasPrefix(o, "Status:") {
					stats.StatusObservations++
				}
				if strings.HasPrefix(o, "Priority:") {
					stats.PriorityObservations++
				}
			}
		}
		return stats, nil
	}

	summaries := make([]EntitySummary, 0, len(selected))
	for _, e := range selected {
		var summary string
		switch format {
		case FormatDetailed:
			summary = strings.Join(e.Observations, "; ")
		default: // FormatBrief
			if len(e.Observations) > 0 {
				summary = truncate(e.Observations[0], 100)
			}
		}
		summaries = append(summaries, EntitySummary{Name: e.Name, EntityType: e.EntityType, Summary: summary})
	}
	return nil, summaries
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GetRelationsAtTime returns relations valid at ts (default: now), per
// Relation.ValidAt, optionally filtered to those touching entityName.
func (s *Store) GetRelationsAtTime(ts *int64, entityName string) []*types.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at := clock.UnixNow(s.clock)
	if ts != nil {
		at = *ts
	}

	var out []*types.Relation
	for _, r := range s.relations {
		if !r.ValidAt(at) {
			continue
		}
		if entityName != "" && r.From != entityName && r.To != entityName {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

// GetRelationHistory returns every relation currently present whose from
// or to equals entityName; the caller derives currency from valid_from/
// valid_to vs. now.
func (s *Store) GetRelationHistory(entityName string) []*types.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Relation
	for _, r := range s.relations {
		if r.From == entityName || r.To == entityName {
			out = append(out, r.Clone())
		}
	}
	return out
}
