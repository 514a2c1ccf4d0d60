package graphstore

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphkeep/graphkeep/pkg/broadcaster"
	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/eventstore"
	"github.com/graphkeep/graphkeep/pkg/legacy"
	"github.com/graphkeep/graphkeep/pkg/snapshot"
	"github.com/graphkeep/graphkeep/pkg/types"
)

func newEventSourcingStore(t *testing.T) (*Store, afero.Fs, *eventstore.Store, *snapshot.Store) {
	t.Helper()
	fs := afero.NewMemMapFs()
	c := clock.Fixed{At: time.Unix(1000, 0)}
	snap := snapshot.New(fs, "/data/snapshots", c)
	events := eventstore.New(eventstore.Config{
		Fs:       fs,
		LogPath:  "/data/events.jsonl",
		Clock:    c,
		Snapshot: snap,
	})
	bc := broadcaster.New(0, 0)

	store := New(Config{
		Mode:         ModeEventSourcing,
		Events:       events,
		Snapshot:     snap,
		Fs:           fs,
		EventLogPath: "/data/events.jsonl",
		Broadcast:    bc,
		Clock:        c,
		DefaultUser:  "tester",
	})
	require.NoError(t, store.Initialize())
	return store, fs, events, snap
}

func TestCreateEntities_Scenario1(t *testing.T) {
	store, _, events, _ := newEventSourcingStore(t)

	inserted, err := store.CreateEntities([]EntityInput{{Name: "Alice", EntityType: "Person"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, inserted)

	added, err := store.AddObservations([]ObservationInput{{EntityName: "Alice", Contents: []string{"Developer", "Developer"}}}, "", "", types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"Developer"}, added["Alice"])

	view := store.ReadGraph(0, 0)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, "Alice", view.Entities[0].Name)
	assert.Equal(t, []string{"Developer"}, view.Entities[0].Observations)
	assert.Empty(t, view.Relations)

	all, err := events.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, types.EventEntityCreated, all[0].EventType)
	assert.Equal(t, types.EventObservationAdded, all[1].EventType)
}

func TestCreateEntities_ExistingNameIsNoOp(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "Alice"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	inserted, err := store.CreateEntities([]EntityInput{{Name: "Alice"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	assert.Empty(t, inserted)
}

func TestDeleteEntities_Scenario2_RelationCascade(t *testing.T) {
	store, _, events, _ := newEventSourcingStore(t)

	_, err := store.CreateEntities([]EntityInput{{Name: "Alice", EntityType: "Person"}, {Name: "Bob", EntityType: "Person"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	inserted, err := store.CreateRelations([]RelationInput{{From: "Alice", To: "Bob", RelationType: "knows"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	removed, err := store.DeleteEntities([]string{"Alice"}, "", "", types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, removed)

	view := store.ReadGraph(0, 0)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, "Bob", view.Entities[0].Name)
	assert.Empty(t, view.Relations)

	all, err := events.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, types.EventEntityCreated, all[0].EventType)
	assert.Equal(t, types.EventEntityCreated, all[1].EventType)
	assert.Equal(t, types.EventRelationCreated, all[2].EventType)
	assert.Equal(t, types.EventEntityDeleted, all[3].EventType)
}

func TestCreateRelations_MissingEndpointIsNoOp(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "Alice"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	inserted, err := store.CreateRelations([]RelationInput{{From: "Alice", To: "Ghost", RelationType: "knows"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	assert.Empty(t, inserted)
}

func TestSnapshotAndReplay_Scenario3(t *testing.T) {
	store, fs, events, snap := newEventSourcingStore(t)

	var entityNames []EntityInput
	for i := 0; i < 5; i++ {
		entityNames = append(entityNames, EntityInput{Name: string(rune('A' + i)), EntityType: "Thing"})
	}
	_, err := store.CreateEntities(entityNames, "", "", types.SourceManual)
	require.NoError(t, err)

	_, err = store.CreateRelations([]RelationInput{
		{From: "A", To: "B", RelationType: "depends_on"},
		{From: "B", To: "C", RelationType: "depends_on"},
		{From: "C", To: "D", RelationType: "depends_on"},
	}, "", "", types.SourceManual)
	require.NoError(t, err)

	require.NoError(t, store.CreateSnapshot(false))

	_, err = store.AddObservations([]ObservationInput{
		{EntityName: "A", Contents: []string{"first"}},
		{EntityName: "B", Contents: []string{"second"}},
	}, "", "", types.SourceManual)
	require.NoError(t, err)

	before := store.ReadGraph(0, 0)

	// Simulate restart: fresh Store, same fs, reinitialize.
	newEvents := eventstore.New(eventstore.Config{
		Fs:       fs,
		LogPath:  "/data/events.jsonl",
		Clock:    clock.Fixed{At: time.Unix(2000, 0)},
		Snapshot: snap,
	})
	restarted := New(Config{
		Mode:     ModeEventSourcing,
		Events:   newEvents,
		Snapshot: snap,
		Clock:    clock.Fixed{At: time.Unix(2000, 0)},
	})
	require.NoError(t, restarted.Initialize())

	after := restarted.ReadGraph(0, 0)
	assert.ElementsMatch(t, namesOf(before.Entities), namesOf(after.Entities))
	assert.Equal(t, 2, newEvents.Length())

	_ = events
}

func namesOf(entities []*types.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Name)
	}
	return out
}

func TestOpenNodes_BothEndpointsRequired(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "Alice"}, {Name: "Bob"}, {Name: "Carol"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	_, err = store.CreateRelations([]RelationInput{{From: "Alice", To: "Bob", RelationType: "knows"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	view := store.OpenNodes([]string{"Alice", "Bob"})
	assert.Len(t, view.Entities, 2)
	assert.Len(t, view.Relations, 1)

	view2 := store.OpenNodes([]string{"Alice", "Carol"})
	assert.Len(t, view2.Entities, 2)
	assert.Empty(t, view2.Relations)
}

func TestGetRelated_DirectionAndTypeFilter(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "A"}, {Name: "B"}, {Name: "C"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	_, err = store.CreateRelations([]RelationInput{
		{From: "A", To: "B", RelationType: "knows"},
		{From: "C", To: "A", RelationType: "manages"},
	}, "", "", types.SourceManual)
	require.NoError(t, err)

	out := store.GetRelated("A", "", DirectionOutgoing)
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Entity.Name)

	in := store.GetRelated("A", "", DirectionIncoming)
	require.Len(t, in, 1)
	assert.Equal(t, "C", in[0].Entity.Name)

	both := store.GetRelated("A", "", DirectionBoth)
	assert.Len(t, both, 2)

	filtered := store.GetRelated("A", "manages", DirectionBoth)
	require.Len(t, filtered, 1)
	assert.Equal(t, "C", filtered[0].Entity.Name)
}

func TestSearchNodes_MatchesNameSubstring(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "bugfix-1", EntityType: "task"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	view := store.SearchNodes("bug", 0, false)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, "bugfix-1", view.Entities[0].Name)
}

func TestSummarize_Formats(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "A", EntityType: "task", Observations: []string{"Status: open", "Priority: high"}}}, "", "", types.SourceManual)
	require.NoError(t, err)

	_, brief := store.Summarize(nil, "", FormatBrief)
	require.Len(t, brief, 1)
	assert.Equal(t, "Status: open", brief[0].Summary)

	_, detailed := store.Summarize(nil, "", FormatDetailed)
	require.Len(t, detailed, 1)
	assert.Equal(t, "Status: open; Priority: high", detailed[0].Summary)

	stats, _ := store.Summarize(nil, "", FormatStats)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.CountsByType["task"])
	assert.Equal(t, 1, stats.StatusObservations)
	assert.Equal(t, 1, stats.PriorityObservations)
}

func TestGetRelationsAtTime_BoundsAndDefault(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "A"}, {Name: "B"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	past := int64(500)
	future := int64(1500)
	_, err = store.CreateRelations([]RelationInput{
		{From: "A", To: "B", RelationType: "bounded", ValidFrom: &past, ValidTo: &future},
		{From: "A", To: "B", RelationType: "unbounded"},
	}, "", "", types.SourceManual)
	require.NoError(t, err)

	current := store.GetRelationsAtTime(nil, "")
	assert.Len(t, current, 2)

	tooLate := int64(2000)
	later := store.GetRelationsAtTime(&tooLate, "")
	require.Len(t, later, 1)
	assert.Equal(t, "unbounded", later[0].RelationType)
}

func TestTraverse_ChainAndMaxResults(t *testing.T) {
	store, _, _, _ := newEventSourcingStore(t)
	_, err := store.CreateEntities([]EntityInput{{Name: "A"}, {Name: "B"}, {Name: "C"}}, "", "", types.SourceManual)
	require.NoError(t, err)
	_, err = store.CreateRelations([]RelationInput{
		{From: "A", To: "B", RelationType: "depends_on"},
		{From: "B", To: "C", RelationType: "depends_on"},
	}, "", "", types.SourceManual)
	require.NoError(t, err)

	result := store.Traverse("A", []PathStep{
		{RelationType: "depends_on", Direction: DirectionOutgoing},
		{RelationType: "depends_on", Direction: DirectionOutgoing},
	}, 10)
	require.Len(t, result.Paths, 1)
	assert.Equal(t, []string{"A", "B", "C"}, result.Paths[0].Nodes)
	assert.Equal(t, []string{"C"}, result.Terminal)
}

func TestLegacyMode_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	legacyStore := legacy.New(fs, "/data/graph.jsonl")

	store := New(Config{
		Mode:        ModeLegacy,
		Legacy:      legacyStore,
		Clock:       clock.Fixed{At: time.Unix(1000, 0)},
		DefaultUser: "tester",
	})
	require.NoError(t, store.Initialize())

	_, err := store.CreateEntities([]EntityInput{{Name: "Alice", EntityType: "Person"}}, "", "", types.SourceManual)
	require.NoError(t, err)

	reloaded := New(Config{
		Mode:   ModeLegacy,
		Legacy: legacyStore,
		Clock:  clock.Fixed{At: time.Unix(1000, 0)},
	})
	require.NoError(t, reloaded.Initialize())

	view := reloaded.ReadGraph(0, 0)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, "Alice", view.Entities[0].Name)
}
