package query

import (
	"strings"
)

// primaryIDField is the deterministic tie-breaker appended to every sort
// order that does not already include it. Stable ordering across pages is
// required for cursor pagination correctness.
const primaryIDField = "id"

// CompileSort parses a comma-separated sort spec where each field may
// carry a leading "-" for descending order. When the entity configures an
// allow-list, every requested field must appear in it; the error names
// the offending fields.
func CompileSort(sortSpec string, allowedFields []string) ([]SortField, error) {
	var order []SortField
	var rejected []string

	allowed := make(map[string]struct{}, len(allowedFields))
	for _, f := range allowedFields {
		allowed[f] = struct{}{}
	}

	for _, part := range strings.Split(sortSpec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		field := strings.TrimPrefix(part, "-")
		if !validFieldPath(field) {
			return nil, newValidationError("sort", "field name %q contains invalid characters", field)
		}
		if len(allowed) > 0 {
			if _, ok := allowed[field]; !ok && field != primaryIDField {
				rejected = append(rejected, field)
				continue
			}
		}
		order = append(order, SortField{Field: field, Descending: desc})
	}

	if len(rejected) > 0 {
		return nil, newValidationError("sort", "fields not sortable: %s", strings.Join(rejected, ", "))
	}

	return withTieBreaker(order), nil
}

// withTieBreaker guarantees the primary identifier terminates the order,
// in the direction of the first sort key.
func withTieBreaker(order []SortField) []SortField {
	for _, s := range order {
		if s.Field == primaryIDField {
			return order
		}
	}
	desc := false
	if len(order) > 0 {
		desc = order[0].Descending
	}
	return append(order, SortField{Field: primaryIDField, Descending: desc})
}
