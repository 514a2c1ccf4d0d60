// Package inference computes non-persisted transitive relations over a
// relation set via Infer. Callers build the relations slice from
// pkg/graphstore (e.g. GetRelationsAtTime or a full ReadGraph) before
// calling in.
package inference
