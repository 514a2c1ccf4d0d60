package legacy

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphkeep/graphkeep/pkg/types"
)

func TestLoad_NoJournalReturnsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/data/graph.jsonl")

	entities, relations, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, entities)
	assert.Nil(t, relations)
}

func TestWriteThenLoad_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/data/graph.jsonl")

	entities := []*types.Entity{
		{Name: "Alice", EntityType: "Person", Observations: []string{"Developer"}},
		{Name: "Bob", EntityType: "Person"},
	}
	relations := []*types.Relation{
		{From: "Alice", To: "Bob", RelationType: "knows"},
	}
	require.NoError(t, s.Write(entities, relations))

	loadedEntities, loadedRelations, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loadedEntities, 2)
	require.Len(t, loadedRelations, 1)
	assert.Equal(t, "Alice", loadedEntities[0].Name)
	assert.Equal(t, []string{"Developer"}, loadedEntities[0].Observations)
	assert.Equal(t, "knows", loadedRelations[0].RelationType)
}

func TestWrite_IsAtomicOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/data/graph.jsonl")

	require.NoError(t, s.Write([]*types.Entity{{Name: "First"}}, nil))
	require.NoError(t, s.Write([]*types.Entity{{Name: "Second"}}, nil))

	entities, _, err := s.Load()
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Second", entities[0].Name)
}

func TestLoad_SkipsUnrecognizedLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/data/graph.jsonl"
	require.NoError(t, afero.WriteFile(fs, path, []byte(`{"foo":"bar"}`+"\n"+`{"name":"Alice","entity_type":"Person","observations":[]}`+"\n"), 0o644))

	s := New(fs, path)
	entities, relations, err := s.Load()
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Alice", entities[0].Name)
	assert.Empty(t, relations)
}
