/*
Package graphstore implements the Graph Store: the authoritative
entity/relation collection, its mutation and query operations, and the
traversal algorithm. A Store is constructed in one of two persistence
Modes (event-sourcing, backed by pkg/eventstore and pkg/snapshot; or
legacy, backed by pkg/legacy) and optionally wired to a
pkg/broadcaster.Broadcaster for change notification, a pkg/expand
Expander for SearchNodes, and a pkg/expand TypeValidator for
CreateEntities.
*/
package graphstore
