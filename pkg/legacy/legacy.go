// Package legacy implements spec §4.1.3's legacy persistence mode: after
// every successful mutation, the full graph is serialized to a single
// journal file (all entities then all relations, newline-delimited
// self-describing records) via the atomic-write pattern — no event log,
// no snapshot. Grounded on the same fsio.WriteFileAtomic primitive
// pkg/snapshot uses, since both are instances of the same "write-temp,
// fsync, rename" discipline spec §9 calls out.
package legacy

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/graphkeep/graphkeep/pkg/fsio"
	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/types"
)

// Store manages the single legacy journal file.
type Store struct {
	fs   afero.Fs
	path string
}

// New returns a legacy Store backed by the journal file at path (graphd
// passes the memory_file_path setting, "./graphkeep-data/memory.jsonl" by
// default).
func New(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Write rewrites the journal atomically: all entities, then all
// relations, one self-describing JSON record per line.
func (s *Store) Write(entities []*types.Entity, relations []*types.Relation) error {
	var buf bytes.Buffer
	for _, e := range entities {
		data, err := json.Marshal(e.ToRecord())
		if err != nil {
			return fmt.Errorf("legacy: encode entity %s: %w", e.Name, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	for _, r := range relations {
		data, err := json.Marshal(r.ToRecord())
		if err != nil {
			return fmt.Errorf("legacy: encode relation %s->%s: %w", r.From, r.To, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := fsio.WriteFileAtomic(s.fs, s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("legacy: write journal: %w", err)
	}
	log.Logger.Debug().Int("entities", len(entities)).Int("relations", len(relations)).Msg("legacy: journal rewritten")
	return nil
}

// Load reads the journal file, discriminating entity from relation lines
// by shape exactly as pkg/snapshot does. Returns (nil, nil, nil) if the
// journal doesn't exist yet.
func (s *Store) Load() ([]*types.Entity, []*types.Relation, error) {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("legacy: stat journal: %w", err)
	}
	if !exists {
		return nil, nil, nil
	}

	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("legacy: open journal: %w", err)
	}
	defer f.Close()

	var entities []*types.Entity
	var relations []*types.Relation

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			log.Logger.Warn().Msg("legacy: skipping unparseable line")
			continue
		}
		_, hasRelationType := probe["relation_type"]
		_, hasEntityType := probe["entity_type"]
		_, hasName := probe["name"]

		switch {
		case hasEntityType && hasName:
			var rec types.EntityRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				log.Logger.Warn().Msg("legacy: skipping malformed entity line")
				continue
			}
			entities = append(entities, rec.Entity())
		case hasRelationType:
			var rec types.RelationRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				log.Logger.Warn().Msg("legacy: skipping malformed relation line")
				continue
			}
			relations = append(relations, rec.Relation())
		default:
			log.Logger.Warn().Msg("legacy: skipping line of unrecognized shape")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Logger.Warn().Err(err).Msg("legacy: journal scan ended early, continuing with what was read")
	}

	return entities, relations, nil
}
