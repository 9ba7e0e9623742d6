package query

import (
	"strings"

	"github.com/google/uuid"
)

// controlTokens are engine-reserved sequences stripped from every string
// value before parsing. Predicate text must never be able to smuggle
// operator or expression syntax into the compiled query, even though the
// storage adapters only ever bind values as parameters.
var controlTokens = []string{
	"$where",
	"$expr",
	"$function",
	"$accumulator",
	"${",
	"`",
	"--",
	"/*",
	"*/",
}

var tokenReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(controlTokens)*2)
	for _, tok := range controlTokens {
		pairs = append(pairs, tok, "")
	}
	return strings.NewReplacer(pairs...)
}()

// SanitizeValue removes literal control tokens from a raw parameter
// value. It runs before coercion, unconditionally.
func SanitizeValue(value string) string {
	return tokenReplacer.Replace(value)
}

// CompileFilter builds the predicate tree for one request. Processing
// order is fixed: reserved control keys are stripped, values sanitized,
// client clauses parsed, base clauses merged (base wins), the soft-delete
// default applied, and the tenant constraint injected last. The returned
// filter always constrains the tenant field when the security context
// carries a tenant id.
func CompileFilter(params map[string][]string, sec SecurityContext, cfg EntityConfig, base []Clause, opts Options) (Filter, error) {
	var filter Filter
	var orGroup []Clause

	allowed := allowedOperatorSet(opts)

	for key, values := range params {
		if IsReservedKey(key) {
			continue
		}

		field, op, err := parseFieldKey(key, allowed)
		if err != nil {
			return Filter{}, err
		}

		sanitized := make([]string, len(values))
		for i, v := range values {
			sanitized[i] = SanitizeValue(v)
		}

		if op == "or" {
			clause, err := compileOrClause(field, key, sanitized, cfg.Schema, opts)
			if err != nil {
				return Filter{}, err
			}
			orGroup = append(orGroup, clause)
			continue
		}

		clauses, err := compileClauses(field, key, Operator(op), sanitized, cfg.Schema)
		if err != nil {
			return Filter{}, err
		}
		filter.And = append(filter.And, clauses...)
	}

	if len(orGroup) > 0 {
		filter.OrGroups = append(filter.OrGroups, orGroup)
	}

	filter = mergeBase(filter, base)

	// Soft-delete default: exclude flagged records unless the caller
	// explicitly filtered on the flag.
	if cfg.SoftDelete && !filter.HasField("deleted") {
		filter.And = append(filter.And, Clause{Field: "deleted", Op: OpNe, Value: true})
	}

	// Tenant isolation is injected last and can never be removed or
	// overridden by client input.
	filter = enforceTenant(filter, sec)

	return filter, nil
}

// parseFieldKey splits "field[op]" syntax and validates both halves.
// The pseudo-operator "or" is returned verbatim for the caller to build
// an OR-group clause.
func parseFieldKey(key string, allowed map[Operator]struct{}) (field, op string, err error) {
	field = key
	if idx := strings.IndexByte(key, '['); idx >= 0 {
		if !strings.HasSuffix(key, "]") || idx == 0 {
			return "", "", newValidationError(key, "malformed operator suffix")
		}
		field = key[:idx]
		op = key[idx+1 : len(key)-1]
	}

	if !validFieldPath(field) {
		return "", "", newValidationError(key, "field name contains invalid characters")
	}

	if op == "" || op == "or" {
		return field, op, nil
	}
	if _, ok := allowed[Operator(op)]; !ok {
		return "", "", newValidationError(key, "unknown operator %q", op)
	}
	return field, op, nil
}

func compileOrClause(field, param string, values []string, schema FieldSchema, opts Options) (Clause, error) {
	var items []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	}
	if opts.MaxOrClauses > 0 && len(items) > opts.MaxOrClauses {
		return Clause{}, newValidationError(param, "OR group has %d values, maximum is %d", len(items), opts.MaxOrClauses)
	}
	return Clause{Field: field, Op: OpIn, Value: Coerce(items, schema[field])}, nil
}

func compileClauses(field, param string, op Operator, values []string, schema FieldSchema) ([]Clause, error) {
	fieldType := schema[field]

	switch op {
	case "":
		// Plain equality; repeated keys become an IN clause.
		if len(values) > 1 {
			return []Clause{{Field: field, Op: OpIn, Value: Coerce(values, fieldType)}}, nil
		}
		return []Clause{{Field: field, Op: OpEq, Value: Coerce(values[0], fieldType)}}, nil
	case OpIn, OpNin:
		var items []string
		for _, v := range values {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
		}
		return []Clause{{Field: field, Op: op, Value: Coerce(items, fieldType)}}, nil
	case OpExists:
		v := Coerce(values[0], FieldTypeBoolean)
		b, ok := v.(bool)
		if !ok {
			return nil, newValidationError(param, "exists requires a boolean value")
		}
		return []Clause{{Field: field, Op: OpExists, Value: b}}, nil
	case OpRegex:
		// Regex patterns stay strings regardless of schema type.
		return []Clause{{Field: field, Op: OpRegex, Value: values[0]}}, nil
	default:
		clauses := make([]Clause, len(values))
		for i, v := range values {
			clauses[i] = Clause{Field: field, Op: op, Value: Coerce(v, fieldType)}
		}
		return clauses, nil
	}
}

// mergeBase applies caller-supplied base clauses ahead of client clauses.
// A base clause on a field removes every client clause on that field, so
// base filters can never be widened by the request.
func mergeBase(filter Filter, base []Clause) Filter {
	if len(base) == 0 {
		return filter
	}

	baseFields := make(map[string]struct{}, len(base))
	for _, c := range base {
		baseFields[c.Field] = struct{}{}
	}

	merged := Filter{And: make([]Clause, 0, len(base)+len(filter.And))}
	merged.And = append(merged.And, base...)
	for _, c := range filter.And {
		if _, shadowed := baseFields[c.Field]; !shadowed {
			merged.And = append(merged.And, c)
		}
	}
	for _, group := range filter.OrGroups {
		kept := make([]Clause, 0, len(group))
		for _, c := range group {
			if _, shadowed := baseFields[c.Field]; !shadowed {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			merged.OrGroups = append(merged.OrGroups, kept)
		}
	}
	return merged
}

func enforceTenant(filter Filter, sec SecurityContext) Filter {
	if sec.TenantID == uuid.Nil {
		return filter
	}
	field := sec.tenantField()

	// Drop any client attempt to constrain the tenant field, then pin it
	// to the authenticated tenant.
	kept := filter.And[:0]
	for _, c := range filter.And {
		if c.Field != field {
			kept = append(kept, c)
		}
	}
	filter.And = append(kept, Clause{Field: field, Op: OpEq, Value: sec.TenantID})

	groups := filter.OrGroups[:0]
	for _, group := range filter.OrGroups {
		keptGroup := make([]Clause, 0, len(group))
		for _, c := range group {
			if c.Field != field {
				keptGroup = append(keptGroup, c)
			}
		}
		if len(keptGroup) > 0 {
			groups = append(groups, keptGroup)
		}
	}
	filter.OrGroups = groups
	return filter
}

func allowedOperatorSet(opts Options) map[Operator]struct{} {
	ops := opts.AllowedOperators
	if len(ops) == 0 {
		ops = DefaultOperators
	}
	set := make(map[Operator]struct{}, len(ops))
	for _, op := range ops {
		set[op] = struct{}{}
	}
	return set
}

func validFieldPath(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
