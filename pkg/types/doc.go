/*
Package types defines the data structures shared by every component of the
graph core: entities, relations, events, and snapshots.

# Core Types

Entity and Relation are the live, in-memory shapes held by pkg/graphstore.
Event is the durable, append-only record written by pkg/eventstore; its
Data field carries one of the *Data payload structs below depending on
EventType. EntityRecord and RelationRecord are the on-disk line shapes
written by pkg/snapshot — entity lines carry both "entity_type" and
"name"; relation lines carry "relation_type", which is how a loader tells
the two apart without a record-type tag.

# Thread Safety

Values here carry no synchronization of their own. pkg/graphstore
serializes all mutation through a single writer lock and hands out
Clone()d copies to readers so that a caller can never observe or corrupt
store-owned state through a returned pointer.
*/
package types
