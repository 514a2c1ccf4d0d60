// Package expand provides the default SearchNodes query-expansion
// collaborator (Expander) and the default entity_type acceptance
// collaborator (TypeValidator). pkg/graphstore depends only on the
// interfaces; a host process may substitute richer implementations
// without touching the core.
package expand
