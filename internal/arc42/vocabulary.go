// Package arc42 splits normalized architecture documentation into the named
// chapters of the arc42 template.
//
// Headings are matched through a Vocabulary, a lookup table from normalized
// heading text to a canonical section key. Extraction works line by line over
// text produced by the normalize package, or over HTML nodes in document order
// when the caller wants raw storage fragments.
package arc42

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

// CanonicalOrder is the arc42 chapter order used when sections are rendered.
var CanonicalOrder = []string{
	"goals",
	"constraints",
	"context",
	"solution_strategy",
	"building_blocks",
	"runtime_view",
	"deployment_view",
	"crosscutting",
	"decisions",
	"quality_scenarios",
	"risks_and_mitigations",
	"glossary",
}

// DefaultSectionMap returns the built-in vocabulary with English and German
// chapter titles. A fresh map is returned on every call.
func DefaultSectionMap() map[string][]string {
	return map[string][]string{
		"goals":                 {"Introduction and Goals", "Goals", "Einführung und Ziele", "Ziele"},
		"constraints":           {"Architecture Constraints", "Constraints", "Randbedingungen"},
		"context":               {"Context and Scope", "System Scope and Context", "Context", "Kontextabgrenzung"},
		"solution_strategy":     {"Solution Strategy", "Lösungsstrategie"},
		"building_blocks":       {"Building Block View", "Building Blocks", "Bausteinsicht"},
		"runtime_view":          {"Runtime View", "Laufzeitsicht"},
		"deployment_view":       {"Deployment View", "Verteilungssicht"},
		"crosscutting":          {"Cross-cutting Concepts", "Crosscutting Concepts", "Crosscutting", "Querschnittliche Konzepte"},
		"decisions":             {"Architecture Decisions", "Architekturentscheidungen"},
		"quality_scenarios":     {"Quality Requirements", "Quality Scenarios", "Qualitätsanforderungen", "Qualitätsszenarien"},
		"risks_and_mitigations": {"Risks and Technical Debts", "Risks", "Risiken und technische Schulden", "Risiken"},
		"glossary":              {"Glossary", "Glossar"},
	}
}

var (
	numberPrefix  = regexp.MustCompile(`^\s*\d+(?:\.\d+)*\.?\s*`)
	markdownLevel = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	emphasis      = regexp.MustCompile("\\*\\*|__|~~|`")
)

// NormalizeHeading reduces a heading to its comparable form: entities are
// unescaped, markdown markers, emphasis and numbering prefixes ("4.", "10.2",
// "1.1.3") are removed, whitespace is collapsed and the result is lower-cased.
func NormalizeHeading(s string) string {
	s = html.UnescapeString(s)
	s = strings.TrimSpace(s)
	if m := markdownLevel.FindStringSubmatch(s); m != nil {
		s = m[2]
	}
	s = emphasis.ReplaceAllString(s, "")
	words := make([]string, 0, 8)
	for _, w := range strings.Fields(s) {
		// single * and _ only count as emphasis at word edges
		if w = strings.Trim(w, "*_"); w != "" {
			words = append(words, w)
		}
	}
	s = numberPrefix.ReplaceAllString(strings.Join(words, " "), "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ":")
	return strings.ToLower(strings.TrimSpace(s))
}

// markdownHeading reports the level and title of a markdown heading line, or
// level 0 when the line is not one.
func markdownHeading(line string) (int, string) {
	m := markdownLevel.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, line
	}
	return len(m[1]), m[2]
}

// Vocabulary maps normalized heading text to canonical section keys.
type Vocabulary struct {
	lookup map[string]string
	keys   []string
}

// NewVocabulary builds the lookup table for a section map. Keys keep the
// canonical arc42 order; keys outside it follow alphabetically. When an alias
// is listed under two keys the earlier key keeps it.
func NewVocabulary(sectionMap map[string][]string) *Vocabulary {
	v := &Vocabulary{lookup: make(map[string]string)}

	seen := make(map[string]bool, len(sectionMap))
	for _, key := range CanonicalOrder {
		if _, ok := sectionMap[key]; ok {
			v.keys = append(v.keys, key)
			seen[key] = true
		}
	}
	var extra []string
	for key := range sectionMap {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	v.keys = append(v.keys, extra...)

	for _, key := range v.keys {
		for _, alias := range sectionMap[key] {
			norm := NormalizeHeading(alias)
			if norm == "" {
				continue
			}
			if _, taken := v.lookup[norm]; !taken {
				v.lookup[norm] = key
			}
		}
	}
	return v
}

// Match returns the canonical key for a heading line.
func (v *Vocabulary) Match(heading string) (string, bool) {
	key, ok := v.lookup[NormalizeHeading(heading)]
	return key, ok
}

// Keys returns the canonical keys in render order.
func (v *Vocabulary) Keys() []string {
	return append([]string(nil), v.keys...)
}

// DuplicatePolicy decides which body wins when a heading occurs twice.
type DuplicatePolicy string

const (
	// LastWins keeps the later occurrence.
	LastWins DuplicatePolicy = "last"
	// FirstWins keeps the first non-empty occurrence.
	FirstWins DuplicatePolicy = "first"
)

// ParseDuplicatePolicy parses a policy name. The empty string means LastWins.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LastWins:
		return LastWins, nil
	case FirstWins:
		return FirstWins, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q, expected %q or %q", s, LastWins, FirstWins)
	}
}
