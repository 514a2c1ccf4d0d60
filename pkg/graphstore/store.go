// Package graphstore implements the Graph Store: the single authoritative
// in-memory collection of entities and relations, guarded by a
// single-writer/many-reader discipline exactly like the teacher's
// WarrenFSM.mu + BoltStore pairing, generalized from "one bucket per
// container-domain collection" to "one map per graph-domain collection"
// plus a sorted name index for deterministic pagination.
package graphstore

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/spf13/afero"

	"github.com/graphkeep/graphkeep/pkg/broadcaster"
	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/eventstore"
	"github.com/graphkeep/graphkeep/pkg/expand"
	"github.com/graphkeep/graphkeep/pkg/legacy"
	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/metrics"
	"github.com/graphkeep/graphkeep/pkg/snapshot"
	"github.com/graphkeep/graphkeep/pkg/types"
)

// Mode selects the persistence strategy, fixed at construction (spec §4.1.3).
type Mode int

const (
	// ModeEventSourcing appends events and periodically snapshots.
	ModeEventSourcing Mode = iota
	// ModeLegacy rewrites the full graph to one journal file per mutation.
	ModeLegacy
)

// Store owns the entity and relation collections exclusively (spec §5
// ownership table: "Entity/relation tables — Graph Store — Any via shared
// lock — Single exclusive lock").
type Store struct {
	mu        sync.RWMutex
	entities  eventstore.EntityMap
	relations eventstore.RelationMap
	names     *btree.BTreeG[string]

	mode      Mode
	events    *eventstore.Store
	snap      *snapshot.Store
	legacy    *legacy.Store
	broadcast *broadcaster.Broadcaster
	clock     clock.Clock
	expander  expand.Expander
	validator expand.TypeValidator

	fs          afero.Fs
	eventLogPath string
	defaultUser string
}

// Config constructs a Store. Exactly one of Events or Legacy should be set,
// matching Mode.
type Config struct {
	Mode     Mode
	Events   *eventstore.Store // required when Mode == ModeEventSourcing
	Snapshot *snapshot.Store   // required when Mode == ModeEventSourcing
	Legacy   *legacy.Store     // required when Mode == ModeLegacy

	// Fs and EventLogPath are only needed in ModeEventSourcing, for
	// CreateSnapshot's optional log-rotation step.
	Fs           afero.Fs
	EventLogPath string

	Broadcast   *broadcaster.Broadcaster
	Clock       clock.Clock
	Expander    expand.Expander
	Validator   expand.TypeValidator
	DefaultUser string
}

func lessName(a, b string) bool { return a < b }

// New constructs an empty Store. Callers normally follow with Initialize to
// load persisted state.
func New(cfg Config) *Store {
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	expander := cfg.Expander
	if expander == nil {
		expander = expand.NewDefaultExpander(0)
	}
	validator := cfg.Validator
	if validator == nil {
		validator = expand.AcceptAllValidator{}
	}
	return &Store{
		entities:     eventstore.EntityMap{},
		relations:    eventstore.RelationMap{},
		names:        btree.NewG[string](32, lessName),
		mode:         cfg.Mode,
		events:       cfg.Events,
		snap:         cfg.Snapshot,
		legacy:       cfg.Legacy,
		broadcast:    cfg.Broadcast,
		clock:        c,
		expander:     expander,
		validator:    validator,
		fs:           cfg.Fs,
		eventLogPath: cfg.EventLogPath,
		defaultUser:  cfg.DefaultUser,
	}
}

// Initialize loads persisted state: event replay (plus snapshot) in
// event-sourcing mode, or the single journal file in legacy mode. It must be
// called once before the store is used concurrently.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeEventSourcing:
		if s.events == nil {
			return fmt.Errorf("graphstore: event-sourcing mode requires an eventstore.Store")
		}
		entities, relations, err := s.events.Initialize()
		if err != nil {
			return fmt.Errorf("graphstore: initialize from event log: %w", err)
		}
		s.entities = entities
		s.relations = relations

	case ModeLegacy:
		if s.legacy == nil {
			return fmt.Errorf("graphstore: legacy mode requires a legacy.Store")
		}
		loadedEntities, loadedRelations, err := s.legacy.Load()
		if err != nil {
			return fmt.Errorf("graphstore: initialize from legacy journal: %w", err)
		}
		s.entities = eventstore.EntityMap{}
		for _, e := range loadedEntities {
			s.entities[e.Name] = e
		}
		s.relations = eventstore.RelationMap{}
		for _, r := range loadedRelations {
			s.relations[r.Key()] = r
		}

	default:
		return fmt.Errorf("graphstore: unknown mode %d", s.mode)
	}

	s.names = btree.NewG[string](32, lessName)
	for name := range s.entities {
		s.names.ReplaceOrInsert(name)
	}

	metrics.EntitiesTotal.Set(float64(len(s.entities)))
	metrics.RelationsTotal.Set(float64(len(s.relations)))
	log.Logger.Info().Int("entities", len(s.entities)).Int("relations", len(s.relations)).Msg("graphstore: initialized")
	return nil
}

// EntityCount satisfies metrics.GraphStats.
func (s *Store) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// RelationCount satisfies metrics.GraphStats.
func (s *Store) RelationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relations)
}

// user returns the provenance name to stamp, falling back to the store's
// configured default when the caller doesn't supply one (spec §6
// "current_user stamps provenance on writes when the caller omits it").
func (s *Store) user(caller string) string {
	if caller != "" {
		return caller
	}
	return s.defaultUser
}

// persistLegacy rewrites the full journal after a mutation in legacy mode.
// Must be called with s.mu held. Legacy mode has no event log to fall back
// on, so a journal write failure here is the graph store's own durability
// path breaking, not a downstream component's — it is reflected directly
// on the "graphstore" health component that gates /ready.
func (s *Store) persistLegacy() error {
	if s.mode != ModeLegacy || s.legacy == nil {
		return nil
	}
	entities := make([]*types.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	relations := make([]*types.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		relations = append(relations, r)
	}
	if err := s.legacy.Write(entities, relations); err != nil {
		metrics.UpdateComponent("graphstore", false, "legacy journal write failed: "+err.Error())
		return err
	}
	metrics.UpdateComponent("graphstore", true, "")
	return nil
}

// CreateSnapshot is the host-driven graceful-shutdown hook (spec §6): it
// takes a read lock, materializes the current state, and writes a
// snapshot plus (optionally) rotates the event log. It is the only
// operation that reaches across the Graph Store / Event Store boundary
// directly, since only the host knows when shutdown is happening.
func (s *Store) CreateSnapshot(archiveOldEvents bool) error {
	if s.mode != ModeEventSourcing || s.snap == nil || s.events == nil {
		return nil
	}

	s.mu.RLock()
	entities := make([]*types.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	relations := make([]*types.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		relations = append(relations, r)
	}
	s.mu.RUnlock()

	lastEventID := s.events.NextEventID() - 1
	if err := s.snap.Write(entities, relations, lastEventID); err != nil {
		return fmt.Errorf("graphstore: create snapshot: %w", err)
	}
	s.events.SnapshotCreated(lastEventID)

	if archiveOldEvents && s.fs != nil && s.eventLogPath != "" {
		if err := s.snap.RotateLog(s.fs, s.eventLogPath, lastEventID, 5); err != nil {
			log.Logger.Warn().Err(err).Msg("graphstore: log rotation failed after snapshot")
		}
	}
	return nil
}
