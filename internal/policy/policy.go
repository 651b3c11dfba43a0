// Package policy defines the masking policy applied during erasure: which
// data categories are targeted and which replacement strategy rewrites each
// matched field. Strategies form a closed set selected by an enum key and
// validated at configuration-load time.
package policy

import (
	"fmt"
	"sort"

	"dsrgraph/internal/graph"
)

// Rule binds a set of data categories to a masking strategy.
type Rule struct {
	Categories []string
	Strategy   Strategy

	// Replacement is the literal used by the string_rewrite strategy.
	Replacement string

	// Salt feeds the hash strategy so equal values mask equally within one
	// request but differently across requests.
	Salt string
}

// Policy is the active set of masking rules for one execution.
type Policy struct {
	Rules []Rule

	// Strict disallows delete-based erasure mechanisms; only in-place update
	// masking may be selected.
	Strict bool
}

// Validate checks every rule's strategy against the closed strategy set.
func (p *Policy) Validate() error {
	for i, r := range p.Rules {
		if len(r.Categories) == 0 {
			return fmt.Errorf("policy: rule %d targets no data categories", i)
		}
		if _, err := NewMasker(r.Strategy, r); err != nil {
			return fmt.Errorf("policy: rule %d: %w", i, err)
		}
	}
	return nil
}

// categoryMatches reports whether a rule category covers a field category:
// itself, or any dotted descendant. A rule on "user.contact" covers
// "user.contact.email" but never "user.contacts".
func categoryMatches(ruleCat, fieldCat string) bool {
	if ruleCat == fieldCat {
		return true
	}
	return len(fieldCat) > len(ruleCat) &&
		fieldCat[:len(ruleCat)] == ruleCat &&
		fieldCat[len(ruleCat)] == '.'
}

// MaskerFor returns the masker of the first rule covering any of the given
// categories, or ok=false when no rule applies. Rule categories match their
// dotted descendants, so a rule on a branch of the taxonomy masks every
// field beneath it.
func (p *Policy) MaskerFor(categories []string) (Masker, bool) {
	for _, r := range p.Rules {
		for _, rc := range r.Categories {
			for _, c := range categories {
				if categoryMatches(rc, c) {
					m, err := NewMasker(r.Strategy, r)
					if err != nil {
						return nil, false
					}
					return m, true
				}
			}
		}
	}
	return nil, false
}

// TargetPaths returns the sorted field paths of a collection whose data
// categories are covered by at least one rule, descendants included.
func (p *Policy) TargetPaths(c *graph.Collection) []graph.FieldPath {
	byCat := c.FieldPathsByCategory()
	set := map[graph.FieldPath]struct{}{}
	for _, r := range p.Rules {
		for _, cat := range r.Categories {
			for fieldCat, paths := range byCat {
				if !categoryMatches(cat, fieldCat) {
					continue
				}
				for _, path := range paths {
					set[path] = struct{}{}
				}
			}
		}
	}
	paths := make([]graph.FieldPath, 0, len(set))
	for path := range set {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths
}
