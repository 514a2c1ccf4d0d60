/*
Package eventstore implements the durable, append-only event log: Append
writes and fsyncs a single event; Initialize composes pkg/snapshot to
restore state on process start without a full-history replay;
ShouldSnapshot reports whether events_since_snapshot has reached the
snapshot threshold, and SnapshotCreated resets that count after a snapshot
is written. pkg/graphstore calls SnapshotCreated from CreateSnapshot but
does not consult ShouldSnapshot: mutations never trigger a snapshot, and
snapshots are written only when the host calls CreateSnapshot.
*/
package eventstore
