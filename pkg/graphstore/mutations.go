package graphstore

import (
	"encoding/json"

	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/metrics"
	"github.com/graphkeep/graphkeep/pkg/types"
)

// EntityInput is a CreateEntities candidate.
type EntityInput struct {
	Name         string
	EntityType   string
	Observations []string
}

// RelationInput is a CreateRelations candidate.
type RelationInput struct {
	From         string
	To           string
	RelationType string
	ValidFrom    *int64
	ValidTo      *int64
}

// ObservationInput is an AddObservations/DeleteObservations candidate.
type ObservationInput struct {
	EntityName string
	Contents   []string
}

// appendEvent appends to the durable event log when in event-sourcing
// mode. In legacy mode there is no event log (spec §4.1.3), so it instead
// builds an unlogged, in-memory Event carrying the same type/payload —
// the Broadcaster is a component in its own right and fans out regardless
// of which persistence mode is active. The returned bool is true whenever
// ev is fit to publish; it is always true except on an append failure.
// Must be called with s.mu held.
func (s *Store) appendEvent(eventType types.EventType, user, agent string, source types.Source, payload interface{}) (types.Event, bool, error) {
	if s.mode == ModeEventSourcing && s.events != nil {
		ev, err := s.events.Append(eventType, user, agent, source, payload)
		if err != nil {
			return types.Event{}, false, err
		}
		return ev, true, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return types.Event{}, false, err
	}
	return types.Event{
		EventType: eventType,
		Ts:        clock.UnixNow(s.clock),
		User:      user,
		Agent:     agent,
		Source:    source,
		Data:      data,
	}, true, nil
}

func (s *Store) publish(ev types.Event, ok bool) {
	if !ok || s.broadcast == nil {
		return
	}
	s.broadcast.Publish(ev)
}

// CreateEntities inserts every candidate whose name is not already present,
// stamping provenance/timestamps, emitting EntityCreated, and broadcasting.
// Pre-existing names are skipped silently; returns the names actually
// inserted.
func (s *Store) CreateEntities(candidates []EntityInput, user, agent string, source types.Source) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user = s.user(user)
	now := clock.UnixNow(s.clock)

	var inserted []string
	var events []types.Event

	for _, c := range candidates {
		if c.Name == "" {
			continue
		}
		if _, exists := s.entities[c.Name]; exists {
			continue
		}
		if !s.validator.Accept(c.EntityType) {
			log.Logger.Warn().Str("entity_type", c.EntityType).Str("name", c.Name).Msg("graphstore: entity_type not accepted by validator, creating anyway")
		}
		obs := dedupStrings(c.Observations)
		data := types.EntityCreatedData{
			Name:         c.Name,
			EntityType:   c.EntityType,
			Observations: obs,
			CreatedBy:    user,
			CreatedAt:    now,
		}
		ev, ok, err := s.appendEvent(types.EventEntityCreated, user, agent, source, data)
		if err != nil {
			return inserted, err
		}

		s.entities[c.Name] = &types.Entity{
			Name:         c.Name,
			EntityType:   c.EntityType,
			Observations: obs,
			CreatedBy:    user,
			UpdatedBy:    user,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.names.ReplaceOrInsert(c.Name)
		inserted = append(inserted, c.Name)
		if ok {
			events = append(events, ev)
		}
	}

	if len(inserted) > 0 {
		if err := s.persistLegacy(); err != nil {
			return inserted, err
		}
		metrics.EntitiesTotal.Set(float64(len(s.entities)))
		metrics.GraphMutationsTotal.WithLabelValues("create_entities", "success").Inc()
	}
	for _, ev := range events {
		s.publish(ev, true)
	}
	return inserted, nil
}

// CreateRelations inserts every candidate whose (from,to,relation_type) is
// absent and whose endpoints both exist. Returns the triples actually
// inserted.
func (s *Store) CreateRelations(candidates []RelationInput, user, agent string, source types.Source) ([]types.RelationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user = s.user(user)
	now := clock.UnixNow(s.clock)

	var inserted []types.RelationKey
	var events []types.Event

	for _, c := range candidates {
		key := types.RelationKey{From: c.From, To: c.To, RelationType: c.RelationType}
		if _, exists := s.relations[key]; exists {
			continue
		}
		if _, ok := s.entities[c.From]; !ok {
			continue
		}
		if _, ok := s.entities[c.To]; !ok {
			continue
		}

		data := types.RelationCreatedData{
			From:         c.From,
			To:           c.To,
			RelationType: c.RelationType,
			CreatedBy:    user,
			CreatedAt:    now,
			ValidFrom:    c.ValidFrom,
			ValidTo:      c.ValidTo,
		}
		ev, ok, err := s.appendEvent(types.EventRelationCreated, user, agent, source, data)
		if err != nil {
			return inserted, err
		}

		s.relations[key] = &types.Relation{
			From:         c.From,
			To:           c.To,
			RelationType: c.RelationType,
			CreatedBy:    user,
			CreatedAt:    now,
			ValidFrom:    c.ValidFrom,
			ValidTo:      c.ValidTo,
		}
		inserted = append(inserted, key)
		if ok {
			events = append(events, ev)
		}
	}

	if len(inserted) > 0 {
		if err := s.persistLegacy(); err != nil {
			return inserted, err
		}
		metrics.RelationsTotal.Set(float64(len(s.relations)))
		metrics.GraphMutationsTotal.WithLabelValues("create_relations", "success").Inc()
	}
	for _, ev := range events {
		s.publish(ev, true)
	}
	return inserted, nil
}

// AddObservations appends each content not already present on its entity,
// emitting one ObservationAdded event per new content in input order and
// broadcasting once per entity with the newly added strings. Missing
// entities are skipped silently.
func (s *Store) AddObservations(inputs []ObservationInput, user, agent string, source types.Source) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user = s.user(user)
	now := clock.UnixNow(s.clock)

	added := make(map[string][]string)
	var broadcasts []types.Event

	for _, in := range inputs {
		e, exists := s.entities[in.EntityName]
		if !exists {
			continue
		}
		var newlyAdded []string
		var lastEvent types.Event
		var haveEvent bool
		for _, content := range in.Contents {
			if e.HasObservation(content) {
				continue
			}
			data := types.ObservationAddedData{
				EntityName: in.EntityName,
				Content:    content,
				UpdatedBy:  user,
				UpdatedAt:  now,
			}
			ev, ok, err := s.appendEvent(types.EventObservationAdded, user, agent, source, data)
			if err != nil {
				return added, err
			}
			e.Observations = append(e.Observations, content)
			e.UpdatedBy = user
			e.UpdatedAt = now
			newlyAdded = append(newlyAdded, content)
			if ok {
				lastEvent = ev
				haveEvent = true
			}
		}
		if len(newlyAdded) > 0 {
			added[in.EntityName] = newlyAdded
			if haveEvent {
				// One broadcast per entity carrying the full newly-added
				// list, even though each observation got its own log event
				// (spec §4.1: "broadcast once per entity with the list of
				// newly added strings").
				aggregate, err := json.Marshal(ObservationsBroadcastData{
					EntityName: in.EntityName,
					Contents:   newlyAdded,
					UpdatedBy:  user,
					UpdatedAt:  now,
				})
				if err == nil {
					lastEvent.Data = aggregate
					broadcasts = append(broadcasts, lastEvent)
				}
			}
		}
	}

	if len(added) > 0 {
		if err := s.persistLegacy(); err != nil {
			return added, err
		}
		metrics.GraphMutationsTotal.WithLabelValues("add_observations", "success").Inc()
	}
	for _, ev := range broadcasts {
		s.publish(ev, true)
	}
	return added, nil
}

// ObservationsBroadcastData is the aggregated broadcast payload for
// AddObservations: one message per entity listing every observation newly
// added by the call, distinct from the per-content ObservationAddedData
// each gets in the event log.
type ObservationsBroadcastData struct {
	EntityName string   `json:"entity_name"`
	Contents   []string `json:"contents"`
	UpdatedBy  string   `json:"updated_by"`
	UpdatedAt  int64    `json:"updated_at"`
}

// DeleteEntities removes each present name along with every relation
// mentioning it. Per spec §9's resolved open question, cascaded relation
// removals do not additionally emit RelationDeleted events — only the
// single EntityDeleted event per name is logged, even though relations
// are removed from state. Returns the names actually removed.
func (s *Store) DeleteEntities(names []string, user, agent string, source types.Source) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	var events []types.Event

	for _, name := range names {
		if _, exists := s.entities[name]; !exists {
			continue
		}
		data := types.EntityDeletedData{Name: name}
		ev, ok, err := s.appendEvent(types.EventEntityDeleted, user, agent, source, data)
		if err != nil {
			return removed, err
		}

		delete(s.entities, name)
		s.names.Delete(name)
		for key := range s.relations {
			if key.From == name || key.To == name {
				delete(s.relations, key)
			}
		}
		removed = append(removed, name)
		if ok {
			events = append(events, ev)
		}
	}

	if len(removed) > 0 {
		if err := s.persistLegacy(); err != nil {
			return removed, err
		}
		metrics.EntitiesTotal.Set(float64(len(s.entities)))
		metrics.RelationsTotal.Set(float64(len(s.relations)))
		metrics.GraphMutationsTotal.WithLabelValues("delete_entities", "success").Inc()
	}
	for _, ev := range events {
		s.publish(ev, true)
	}
	return removed, nil
}

// DeleteObservations removes matching observation strings from each named
// entity, emitting ObservationRemoved per successful removal. Missing
// entities or non-matching content: skipped silently.
func (s *Store) DeleteObservations(inputs []ObservationInput, user, agent string, source types.Source) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := clock.UnixNow(s.clock)
	removed := make(map[string][]string)

	for _, in := range inputs {
		e, exists := s.entities[in.EntityName]
		if !exists {
			continue
		}
		var removedHere []string
		for _, content := range in.Contents {
			if !e.HasObservation(content) {
				continue
			}
			data := types.ObservationRemovedData{
				EntityName: in.EntityName,
				Content:    content,
				UpdatedBy:  s.user(user),
				UpdatedAt:  now,
			}
			// Per spec §4.1, DeleteObservations needs no broadcast beyond
			// an existing UI refresh path, so the event is only appended
			// to the durable log, not published.
			if _, _, err := s.appendEvent(types.EventObservationRemoved, user, agent, source, data); err != nil {
				return removed, err
			}
			out := e.Observations[:0:0]
			for _, o := range e.Observations {
				if o != content {
					out = append(out, o)
				}
			}
			e.Observations = out
			e.UpdatedBy = s.user(user)
			e.UpdatedAt = now
			removedHere = append(removedHere, content)
		}
		if len(removedHere) > 0 {
			removed[in.EntityName] = removedHere
		}
	}

	if len(removed) > 0 {
		if err := s.persistLegacy(); err != nil {
			return removed, err
		}
		metrics.GraphMutationsTotal.WithLabelValues("delete_observations", "success").Inc()
	}
	return removed, nil
}

// DeleteRelations removes each matching triple, emitting RelationDeleted
// and broadcasting. Missing triples are skipped silently.
func (s *Store) DeleteRelations(keys []types.RelationKey, user, agent string, source types.Source) ([]types.RelationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []types.RelationKey
	var events []types.Event

	for _, key := range keys {
		if _, exists := s.relations[key]; !exists {
			continue
		}
		data := types.RelationDeletedData{From: key.From, To: key.To, RelationType: key.RelationType}
		ev, ok, err := s.appendEvent(types.EventRelationDeleted, user, agent, source, data)
		if err != nil {
			return removed, err
		}
		delete(s.relations, key)
		removed = append(removed, key)
		if ok {
			events = append(events, ev)
		}
	}

	if len(removed) > 0 {
		if err := s.persistLegacy(); err != nil {
			return removed, err
		}
		metrics.RelationsTotal.Set(float64(len(s.relations)))
		metrics.GraphMutationsTotal.WithLabelValues("delete_relations", "success").Inc()
	}
	for _, ev := range events {
		s.publish(ev, true)
	}
	return removed, nil
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
