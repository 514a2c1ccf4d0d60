package eventstore

import (
	"encoding/json"
	"fmt"

	"github.com/graphkeep/graphkeep/pkg/types"
)

// EntityMap and RelationMap are the collections Apply mutates in place.
// Graph Store owns the map values exclusively (spec §5 ownership table);
// Apply is a pure function over whatever maps its caller passes it —
// mirroring the teacher's fsm.go Apply switch, minus the raft.Log
// transport that originally drove it.
type EntityMap map[string]*types.Entity
type RelationMap map[types.RelationKey]*types.Relation

// Apply mutates entities/relations according to event, honoring the
// idempotence rules of spec §4.2 so that replaying the same event twice
// (e.g. after a crash mid-append) is always safe.
func Apply(entities EntityMap, relations RelationMap, event types.Event) error {
	switch event.EventType {
	case types.EventEntityCreated:
		var data types.EntityCreatedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode EntityCreated payload: %w", err)
		}
		if _, exists := entities[data.Name]; !exists {
			entities[data.Name] = &types.Entity{
				Name:         data.Name,
				EntityType:   data.EntityType,
				Observations: append([]string(nil), data.Observations...),
				CreatedBy:    data.CreatedBy,
				UpdatedBy:    data.CreatedBy,
				CreatedAt:    data.CreatedAt,
				UpdatedAt:    data.CreatedAt,
			}
		}

	case types.EventEntityUpdated:
		var data types.EntityUpdatedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode EntityUpdated payload: %w", err)
		}
		if e, exists := entities[data.Name]; exists {
			e.EntityType = data.EntityType
			e.UpdatedBy = data.UpdatedBy
			e.UpdatedAt = data.UpdatedAt
		}

	case types.EventEntityDeleted:
		var data types.EntityDeletedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode EntityDeleted payload: %w", err)
		}
		delete(entities, data.Name)
		for key := range relations {
			if key.From == data.Name || key.To == data.Name {
				delete(relations, key)
			}
		}

	case types.EventObservationAdded:
		var data types.ObservationAddedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode ObservationAdded payload: %w", err)
		}
		if e, exists := entities[data.EntityName]; exists {
			if !e.HasObservation(data.Content) {
				e.Observations = append(e.Observations, data.Content)
			}
			e.UpdatedBy = data.UpdatedBy
			e.UpdatedAt = data.UpdatedAt
		}

	case types.EventObservationRemoved:
		var data types.ObservationRemovedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode ObservationRemoved payload: %w", err)
		}
		if e, exists := entities[data.EntityName]; exists {
			out := e.Observations[:0:0]
			for _, o := range e.Observations {
				if o != data.Content {
					out = append(out, o)
				}
			}
			e.Observations = out
			e.UpdatedBy = data.UpdatedBy
			e.UpdatedAt = data.UpdatedAt
		}

	case types.EventRelationCreated:
		var data types.RelationCreatedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode RelationCreated payload: %w", err)
		}
		key := types.RelationKey{From: data.From, To: data.To, RelationType: data.RelationType}
		if _, exists := relations[key]; !exists {
			relations[key] = &types.Relation{
				From:         data.From,
				To:           data.To,
				RelationType: data.RelationType,
				CreatedBy:    data.CreatedBy,
				CreatedAt:    data.CreatedAt,
				ValidFrom:    data.ValidFrom,
				ValidTo:      data.ValidTo,
			}
		}

	case types.EventRelationDeleted:
		var data types.RelationDeletedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("eventstore: decode RelationDeleted payload: %w", err)
		}
		delete(relations, types.RelationKey{From: data.From, To: data.To, RelationType: data.RelationType})

	default:
		return fmt.Errorf("eventstore: unknown event type %q", event.EventType)
	}
	return nil
}
