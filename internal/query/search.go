package query

import (
	"strings"
)

// CompileSearch builds the predicate fragment for a free-text term. The
// selected strategies' outputs are combined into a single OR group, so a
// record matches when any strategy on any candidate field matches.
//
// If the entity declares no candidate fields and no text index, the term
// is a deliberate no-op: the engine never scans every string field
// implicitly.
func CompileSearch(term string, strategies []SearchStrategy, cfg EntityConfig) ([]Clause, error) {
	term = strings.TrimSpace(SanitizeValue(term))
	if term == "" {
		return nil, nil
	}
	if len(strategies) == 0 {
		strategies = defaultStrategies(cfg)
	}

	var group []Clause
	for _, strategy := range strategies {
		switch strategy {
		case SearchIndexedText:
			if !cfg.HasTextIndex {
				return nil, newValidationError("searchMode", "entity %q has no text index", cfg.Name)
			}
			group = append(group, Clause{Field: "", Op: opText, Value: term})
		case SearchSubstring:
			for _, field := range cfg.SearchFields {
				group = append(group, Clause{Field: field, Op: opContains, Value: term})
			}
		case SearchPrefix:
			for _, field := range cfg.SearchFields {
				group = append(group, Clause{Field: field, Op: opPrefix, Value: term})
			}
		case SearchPhonetic:
			return nil, newValidationError("searchMode", "phonetic search is not supported")
		default:
			return nil, newValidationError("searchMode", "unknown search strategy %q", strategy)
		}
	}
	return group, nil
}

// ParseSearchStrategies reads the searchMode control parameter, a
// comma-separated strategy list.
func ParseSearchStrategies(raw string) []SearchStrategy {
	if raw == "" {
		return nil
	}
	var out []SearchStrategy
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, SearchStrategy(part))
		}
	}
	return out
}

func defaultStrategies(cfg EntityConfig) []SearchStrategy {
	if cfg.HasTextIndex {
		return []SearchStrategy{SearchIndexedText}
	}
	return []SearchStrategy{SearchSubstring}
}
