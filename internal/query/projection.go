package query

import (
	"strings"
)

// alwaysSafeFields may appear in any projection regardless of the
// entity's allow-list.
var alwaysSafeFields = map[string]struct{}{
	"id":         {},
	"created_at": {},
	"updated_at": {},
}

// CompileProjection intersects the requested field list with the entity's
// allow-list plus the always-safe set. An empty result means "use the
// default projection" rather than projecting to nothing, so a request can
// narrow what it receives but never widen it past the authorized subset.
func CompileProjection(fieldSpec string, allowedFields []string) []string {
	if strings.TrimSpace(fieldSpec) == "" {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowedFields))
	for _, f := range allowedFields {
		allowed[f] = struct{}{}
	}

	var included []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(fieldSpec, ",") {
		field := strings.TrimSpace(part)
		if field == "" || !validFieldPath(field) {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		_, safe := alwaysSafeFields[field]
		_, ok := allowed[field]
		if !safe && !ok {
			continue
		}
		seen[field] = struct{}{}
		included = append(included, field)
	}
	return included
}
