package query

import (
	"strings"

	"github.com/google/uuid"
)

// CompileExpansions resolves requested relation paths against the
// entity's expansion allow-list. A path outside the map is rejected. When
// the target relation is tenant scoped, the tenant constraint is injected
// into its match filter so expansion cannot become an isolation bypass.
func CompileExpansions(requested []string, expMap ExpansionMap, sec SecurityContext) ([]Expansion, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	expansions := make([]Expansion, 0, len(requested))
	seen := make(map[string]struct{})
	for _, path := range requested {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		rule, ok := expMap[path]
		if !ok {
			return nil, newValidationError("populate", "relation %q cannot be expanded", path)
		}

		match := make([]Clause, 0, len(rule.Match)+1)
		match = append(match, rule.Match...)
		if rule.TenantScope && sec.TenantID != uuid.Nil {
			match = append(match, Clause{Field: sec.tenantField(), Op: OpEq, Value: sec.TenantID})
		}

		expansions = append(expansions, Expansion{
			Path:       path,
			RefField:   rule.RefField,
			TargetType: rule.TargetType,
			Fields:     rule.Fields,
			Match:      match,
		})
	}
	return expansions, nil
}

// ParseExpansionPaths reads the populate control parameter.
func ParseExpansionPaths(params map[string][]string) []string {
	var out []string
	for _, raw := range params["populate"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
