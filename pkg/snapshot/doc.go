/*
Package snapshot implements atomic snapshot persistence and event-log
rotation: write-temp → fsync → backup-rotate → rename, plus splitting an
event log into a plain-text JSONL archive and a retained tail once a
snapshot covers it.

Write takes an exclusive file lock in the snapshot directory (when the
Store is backed by the OS filesystem) so a second graphd process pointed at
the same data directory can't race a snapshot write against this one.
RotateLog takes no lock of its own.
*/
package snapshot
