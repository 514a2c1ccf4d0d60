// Package snapshot implements the atomic snapshot write/load and event-log
// rotation contract of spec §4.3. It is grounded on the teacher's
// fsm.go Snapshot()/Restore()/WarrenSnapshot.Persist(sink) pattern
// (collect-all-state → encode → commit), generalized to a temp-file →
// fsync → backup-rotate → rename pipeline backed by pkg/fsio.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/fsio"
	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/metrics"
	"github.com/graphkeep/graphkeep/pkg/types"
)

const (
	currentFileName = "snapshot.jsonl"
	backupFileName  = "snapshot.jsonl.bak"
	writerLockName  = ".snapshot.lock"
	archiveDirName  = "archive"
	archiveFileGlob = "events_*_to_*.jsonl"
)

// Store manages the snapshot files and event-log archive directory for a
// single data directory. It has exclusive rights on both per spec §5's
// ownership table.
type Store struct {
	fs    afero.Fs
	dir   string
	lock  *flock.Flock
	clock clock.Clock
}

// New returns a snapshot Store rooted at dir (conventionally
// "<data_dir>/snapshots"). dir and its archive/ subdirectory are created
// lazily on first write.
func New(fs afero.Fs, dir string, c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{
		fs:    fs,
		dir:   dir,
		lock:  flock.New(dir + "/" + writerLockName),
		clock: c,
	}
}

// acquireLockWithRetry retries the single-producer lock a few times with
// exponential backoff before giving up, so a snapshot started right after
// another one finishes (e.g. a one-shot `graphd snapshot` racing the
// running daemon's shutdown snapshot) doesn't fail outright on the first
// contended attempt.
func (s *Store) acquireLockWithRetry() error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxInterval = 100 * time.Millisecond
	b := backoff.WithMaxRetries(eb, 5)
	var acquired bool
	operation := func() error {
		ok, err := s.lock.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("snapshot: acquire writer lock: %w", err))
		}
		if !ok {
			return fmt.Errorf("snapshot: writer lock held by another process")
		}
		acquired = true
		return nil
	}
	if err := backoff.Retry(operation, b); err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("snapshot: another process holds the snapshot writer lock")
	}
	return nil
}

func (s *Store) currentPath() string { return s.dir + "/" + currentFileName }
func (s *Store) backupPath() string  { return s.dir + "/" + backupFileName }
func (s *Store) archiveDir() string  { return s.dir + "/" + archiveDirName }

// Write performs the atomic snapshot sequence of spec §4.3: ensure the
// directory exists, write a temp file (meta line, then entities, then
// relations), fsync, rotate the current snapshot to the backup slot, then
// rename the temp file into the current slot.
func (s *Store) Write(entities []*types.Entity, relations []*types.Relation, lastEventID uint64) (retErr error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.SnapshotDuration) }()

	// "snapshot" is informational, not one of the critical components that
	// gate /ready: spec §4.3's failure semantics require a mutation already
	// durable in the event log to stay durable even if snapshotting fails,
	// so a snapshot failure must never flip readiness — only visibility.
	defer func() {
		if retErr != nil {
			metrics.UpdateComponent("snapshot", false, retErr.Error())
		} else {
			metrics.UpdateComponent("snapshot", true, "")
		}
	}()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("snapshot: ensure dir %s: %w", s.dir, err)
	}

	if err := s.acquireLockWithRetry(); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return err
	}
	defer s.lock.Unlock()

	var buf bytes.Buffer
	meta := types.SnapshotMeta{
		MetaType:      "snapshot_meta",
		LastEventID:   lastEventID,
		CreatedAt:     clock.UnixNow(s.clock),
		EntityCount:   len(entities),
		RelationCount: len(relations),
		Version:       types.SnapshotRecordVersion,
	}
	if err := writeJSONLine(&buf, meta); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("snapshot: encode meta: %w", err)
	}
	for _, e := range entities {
		if err := writeJSONLine(&buf, e.ToRecord()); err != nil {
			metrics.SnapshotsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("snapshot: encode entity %s: %w", e.Name, err)
		}
	}
	for _, r := range relations {
		if err := writeJSONLine(&buf, r.ToRecord()); err != nil {
			metrics.SnapshotsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("snapshot: encode relation %s->%s: %w", r.From, r.To, err)
		}
	}

	current := s.currentPath()
	if exists, _ := afero.Exists(s.fs, current); exists {
		if err := rotateToBackup(s.fs, current, s.backupPath()); err != nil {
			metrics.SnapshotsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("snapshot: rotate current to backup: %w", err)
		}
	}

	if err := fsio.WriteFileAtomic(s.fs, current, buf.Bytes(), 0o644); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("snapshot: write current: %w", err)
	}

	metrics.SnapshotsTotal.WithLabelValues("success").Inc()
	metrics.SnapshotLastEventID.Set(float64(lastEventID))
	log.Logger.Info().Uint64("last_event_id", lastEventID).Int("entities", len(entities)).Int("relations", len(relations)).Msg("snapshot written")
	return nil
}

// rotateToBackup copies current over backup (replacing any prior backup)
// before current is overwritten, so a crash mid-write still leaves a
// loadable backup.
func rotateToBackup(fs afero.Fs, current, backup string) error {
	data, err := afero.ReadFile(fs, current)
	if err != nil {
		return err
	}
	return fsio.WriteFileAtomic(fs, backup, data, 0o644)
}

func writeJSONLine(buf *bytes.Buffer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

// Loaded is the result of loading a snapshot: the meta header plus the
// entities and relations it described.
type Loaded struct {
	Meta      types.SnapshotMeta
	Entities  []*types.Entity
	Relations []*types.Relation
}

// Load reads the current snapshot, falling back to the backup slot if the
// current file is missing, corrupted, or truncated. Count mismatches
// between the meta header and the records actually read are logged as
// warnings; the loader continues with what it read per spec §4.3
// Recovery. Returns (nil, false, nil) when neither file exists — the
// caller replays from empty.
func (s *Store) Load() (*Loaded, bool, error) {
	loaded, err := s.loadFile(s.currentPath())
	if err == nil {
		return loaded, true, nil
	}
	log.Logger.Warn().Err(err).Msg("snapshot: current snapshot unreadable, attempting backup")

	loaded, err = s.loadFile(s.backupPath())
	if err == nil {
		return loaded, true, nil
	}

	exists, _ := afero.Exists(s.fs, s.backupPath())
	if !exists {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("snapshot: both current and backup unreadable: %w", err)
}

func (s *Store) loadFile(path string) (*Loaded, error) {
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat %s: %w", path, err)
	}
	if !exists {
		return nil, fmt.Errorf("snapshot: %s does not exist", path)
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("snapshot: %s is empty", path)
	}
	var meta types.SnapshotMeta
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("snapshot: decode meta line of %s: %w", path, err)
	}

	var entities []*types.Entity
	var relations []*types.Relation
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			log.Logger.Warn().Str("file", path).Msg("snapshot: skipping unparseable line")
			continue
		}
		_, hasRelationType := probe["relation_type"]
		_, hasEntityType := probe["entity_type"]
		_, hasName := probe["name"]

		switch {
		case hasEntityType && hasName:
			var rec types.EntityRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				log.Logger.Warn().Str("file", path).Msg("snapshot: skipping malformed entity line")
				continue
			}
			entities = append(entities, rec.Entity())
		case hasRelationType:
			var rec types.RelationRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				log.Logger.Warn().Str("file", path).Msg("snapshot: skipping malformed relation line")
				continue
			}
			relations = append(relations, rec.Relation())
		default:
			log.Logger.Warn().Str("file", path).Msg("snapshot: skipping line of unrecognized shape")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Logger.Warn().Err(err).Str("file", path).Msg("snapshot: truncated while scanning, continuing with what was read")
	}

	if meta.EntityCount != len(entities) || meta.RelationCount != len(relations) {
		log.Logger.Warn().
			Int("meta_entities", meta.EntityCount).Int("read_entities", len(entities)).
			Int("meta_relations", meta.RelationCount).Int("read_relations", len(relations)).
			Msg("snapshot: record counts do not match meta header, continuing with what was read")
	}

	return &Loaded{Meta: meta, Entities: entities, Relations: relations}, nil
}

// RotateLog splits the event log at snapshotEventID: lines with
// event_id <= snapshotEventID are written verbatim to a plain-text archive
// file named events_{first}_to_{last}.jsonl — same record shape as the
// active log, so any reader of the event log can read an archive the same
// way — and the active log is atomically replaced with the remaining
// lines. keepN, if > 0, keeps only the keepN newest archives and removes
// older ones.
func (s *Store) RotateLog(fs afero.Fs, logPath string, snapshotEventID uint64, keepN int) error {
	exists, err := afero.Exists(fs, logPath)
	if err != nil {
		return fmt.Errorf("snapshot: stat event log %s: %w", logPath, err)
	}
	if !exists {
		return nil
	}
	data, err := afero.ReadFile(fs, logPath)
	if err != nil {
		return fmt.Errorf("snapshot: read event log %s: %w", logPath, err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	var archiveLines, keepLines []string
	var firstArchivedID uint64
	haveFirst := false

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			log.Logger.Warn().Msg("snapshot: skipping corrupted line during rotation")
			continue
		}
		if ev.EventID <= snapshotEventID {
			if !haveFirst {
				firstArchivedID = ev.EventID
				haveFirst = true
			}
			archiveLines = append(archiveLines, line)
		} else {
			keepLines = append(keepLines, line)
		}
	}

	if len(archiveLines) == 0 {
		return nil
	}

	if err := fs.MkdirAll(s.archiveDir(), 0o755); err != nil {
		return fmt.Errorf("snapshot: ensure archive dir: %w", err)
	}

	archivePath := fmt.Sprintf("%s/events_%d_to_%d.jsonl", s.archiveDir(), firstArchivedID, snapshotEventID)
	var archiveBuf bytes.Buffer
	for _, line := range archiveLines {
		archiveBuf.WriteString(line)
		archiveBuf.WriteByte('\n')
	}
	if err := fsio.WriteFileAtomic(fs, archivePath, archiveBuf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("snapshot: write archive %s: %w", archivePath, err)
	}
	metrics.ArchivesRotatedTotal.Inc()

	var keepData bytes.Buffer
	for _, line := range keepLines {
		keepData.WriteString(line)
		keepData.WriteByte('\n')
	}
	if err := fsio.WriteFileAtomic(fs, logPath, keepData.Bytes(), 0o644); err != nil {
		return fmt.Errorf("snapshot: replace active log: %w", err)
	}

	if keepN > 0 {
		s.cleanupArchives(fs, keepN)
	}
	return nil
}

func (s *Store) cleanupArchives(fs afero.Fs, keepN int) {
	entries, err := afero.ReadDir(fs, s.archiveDir())
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// Order by the numeric first event id in events_{first}_to_{last}.jsonl;
	// a plain string sort would put events_10_to_12 before events_4_to_6.
	firstID := func(name string) uint64 {
		var first, last uint64
		fmt.Sscanf(name, "events_%d_to_%d.jsonl", &first, &last)
		return first
	}
	sort.SliceStable(names, func(i, j int) bool { return firstID(names[i]) < firstID(names[j]) })
	if len(names) <= keepN {
		return
	}
	toRemove := names[:len(names)-keepN]
	for _, name := range toRemove {
		path := s.archiveDir() + "/" + name
		if err := fs.Remove(path); err != nil {
			log.Logger.Warn().Err(err).Str("file", path).Msg("snapshot: failed to remove old archive during cleanup")
		}
	}
}
