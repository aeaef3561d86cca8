package validation

import (
	"regexp"

	"github.com/archonops/supervisor/internal/model"
)

// Rule is a named group of checks, all of which must pass for the rule to
// be satisfied. A rule whose Confidence is LOW lowers a matched
// criterion's confidence to LOW; any other tag leaves it HIGH (spec.md
// §4.6).
type Rule struct {
	ID         string
	Confidence model.Confidence
	Checks     []Check
}

// CatalogEntry matches acceptance-criterion text against a keyword
// pattern and names the rules to run when it matches. The ruleset
// contents are deliberately out of core scope (spec.md §1); this type is
// the pipeline-facing contract a concrete catalog implements.
type CatalogEntry struct {
	Keyword *regexp.Regexp
	Rules   []Rule
}

// Catalog is an ordered list of entries; a criterion may match more than
// one entry, and every matched rule must pass.
type Catalog []CatalogEntry

// Match returns every rule whose entry's keyword pattern matches the
// criterion text.
func (c Catalog) Match(criterion string) []Rule {
	var rules []Rule
	for _, entry := range c {
		if entry.Keyword.MatchString(criterion) {
			rules = append(rules, entry.Rules...)
		}
	}
	return rules
}

// EmptyCatalog returns a catalog with no entries. The rule catalog's
// contents are a domain-specific, operator-supplied concern (spec.md §1
// Non-goals: "Domain-specific validation rule catalogs"); this pipeline
// only specifies the matching and evaluation contract. With no entries,
// Strategy 2 matches nothing and every criterion falls through to
// Strategy 3/4 as UNCERTAIN.
func EmptyCatalog() Catalog {
	return Catalog{}
}
