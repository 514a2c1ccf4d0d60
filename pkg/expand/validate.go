package expand

// TypeValidator is the soft type-name validation hook spec §1 names as an
// external collaborator: the core never enforces a fixed entity_type
// vocabulary, but a host may plug in one that warns or rejects unknown
// types.
type TypeValidator interface {
	// Accept reports whether entityType is acceptable. The default
	// implementation accepts anything, since schema enforcement beyond
	// name uniqueness is an explicit non-goal (spec §1).
	Accept(entityType string) bool
}

// AcceptAllValidator is the default TypeValidator: every non-empty type
// name is accepted.
type AcceptAllValidator struct{}

// Accept always returns true for a non-empty entityType.
func (AcceptAllValidator) Accept(entityType string) bool {
	return entityType != ""
}
