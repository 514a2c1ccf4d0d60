package graphstore

// PathStep is one step of a Traverse call: match a relation of
// RelationType, oriented per Direction relative to the path's current
// node, optionally requiring the peer entity's type to equal TargetType.
type PathStep struct {
	RelationType string
	Direction    Direction // DirectionOutgoing or DirectionIncoming; DirectionBoth is not meaningful per step
	TargetType   string
}

// Path is one surviving path through the graph: the node names visited in
// order (including start) and the relation types traversed to reach them.
type Path struct {
	Nodes         []string
	RelationTypes []string
}

// TraversalResult is Traverse's return value.
type TraversalResult struct {
	Paths    []Path
	Terminal []string // distinct terminal entity names, insertion order
}

type workingPath struct {
	current       string
	nodes         []string
	relationTypes []string
}

// Traverse implements the path algorithm of spec §4.1.1: starting from a
// single working path at start, each step scans the full relation list and
// extends every currently-active path by every matching peer, then
// truncates the working set to maxResults (keeping insertion order).
func (s *Store) Traverse(start string, steps []PathStep, maxResults int) TraversalResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := []workingPath{{current: start, nodes: []string{start}}}

	for _, step := range steps {
		var next []workingPath
		for _, p := range active {
			for _, r := range s.relations {
				if r.RelationType != step.RelationType {
					continue
				}
				var peer string
				switch step.Direction {
				case DirectionIncoming:
					if r.To != p.current {
						continue
					}
					peer = r.From
				default: // DirectionOutgoing
					if r.From != p.current {
						continue
					}
					peer = r.To
				}
				if step.TargetType != "" {
					peerEntity, ok := s.entities[peer]
					if !ok || peerEntity.EntityType != step.TargetType {
						continue
					}
				}

				extended := workingPath{
					current:       peer,
					nodes:         append(append([]string(nil), p.nodes...), peer),
					relationTypes: append(append([]string(nil), p.relationTypes...), r.RelationType),
				}
				next = append(next, extended)
				if maxResults > 0 && len(next) >= maxResults {
					break
				}
			}
			if maxResults > 0 && len(next) >= maxResults {
				break
			}
		}
		active = next
		if len(active) == 0 {
			break
		}
	}

	result := TraversalResult{}
	seenTerminal := make(map[string]struct{})
	for _, p := range active {
		result.Paths = append(result.Paths, Path{Nodes: p.nodes, RelationTypes: p.relationTypes})
		if _, ok := seenTerminal[p.current]; !ok {
			seenTerminal[p.current] = struct{}{}
			result.Terminal = append(result.Terminal, p.current)
		}
	}
	return result
}
