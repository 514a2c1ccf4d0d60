// Package expand provides the two external collaborators spec §1 names but
// places out of the core: a synonym Expander used by SearchNodes'
// query-widening pass, and a soft TypeValidator hook for entity_type
// acceptance. Both are pluggable — pkg/graphstore only depends on the
// interfaces — with a default implementation that combines a small
// hand-curated synonym table with the pack's text-matching stack
// (coregx/ahocorasick, orsinium-labs/stopwords, hashicorp/golang-lru).
package expand

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/orsinium-labs/stopwords"
)

// Expander widens a raw search query into a list of terms to match
// against entity name/type/observations. spec §9 notes this is a
// substring match over a synonym list, not a ranking system.
type Expander interface {
	Expand(query string) []string
}

// synonyms is a small hand-curated table in the spirit of the original
// source's synonym list — intentionally not comprehensive; richer ranking
// is explicitly out of scope (spec §9).
var synonyms = map[string][]string{
	"bug":     {"defect", "issue", "problem"},
	"task":    {"todo", "action", "item"},
	"person":  {"user", "employee", "contact"},
	"doc":     {"document", "file", "paper"},
	"project": {"initiative", "effort"},
}

// DefaultExpander lowercases and tokenizes the query, drops English
// stopwords, and adds any hand-curated synonyms for each remaining token.
// Results are cached per exact query string so repeated SearchNodes calls
// with the same query skip recomputation.
type DefaultExpander struct {
	cache *lru.Cache[string, []string]
}

// DefaultExpanderCacheSize is the default bound on cached query expansions.
const DefaultExpanderCacheSize = 256

// NewDefaultExpander returns a DefaultExpander backed by an LRU cache of
// the given size (DefaultExpanderCacheSize if <= 0).
func NewDefaultExpander(cacheSize int) *DefaultExpander {
	if cacheSize <= 0 {
		cacheSize = DefaultExpanderCacheSize
	}
	cache, _ := lru.New[string, []string](cacheSize)
	return &DefaultExpander{cache: cache}
}

// Expand returns the original query plus its non-stopword tokens plus any
// hand-curated synonyms of those tokens, deduplicated.
func (d *DefaultExpander) Expand(query string) []string {
	if d.cache != nil {
		if cached, ok := d.cache.Get(query); ok {
			return cached
		}
	}

	seen := map[string]struct{}{}
	var terms []string
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	add(query)

	lower := strings.ToLower(query)
	for _, token := range strings.Fields(lower) {
		if stopwords.English.Has(token) {
			continue
		}
		add(token)
		for _, syn := range synonyms[token] {
			add(syn)
		}
	}

	if d.cache != nil {
		d.cache.Add(query, terms)
	}
	return terms
}
