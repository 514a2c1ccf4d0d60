package expand

import (
	"strings"

	"github.com/coregx/ahocorasick"
)

// Matcher tests whether any of a fixed set of terms appears as a
// case-insensitive substring of a haystack. It is built once per
// SearchNodes call from the expanded term list and reused across every
// candidate entity, which is the reason to reach for a multi-pattern
// automaton instead of N independent strings.Contains calls.
type Matcher struct {
	automaton *ahocorasick.Automaton
}

// NewMatcher compiles terms (already expanded by an Expander) into an
// Aho-Corasick automaton. Terms are lowercased at build time; MatchAny
// lowercases each haystack before matching.
func NewMatcher(terms []string) (*Matcher, error) {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(lowered).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		return nil, err
	}
	return &Matcher{automaton: automaton}, nil
}

// MatchAny reports whether any compiled term occurs in haystack.
func (m *Matcher) MatchAny(haystack string) bool {
	if m == nil || m.automaton == nil {
		return false
	}
	matches := m.automaton.FindAllOverlapping([]byte(strings.ToLower(haystack)))
	return len(matches) > 0
}
