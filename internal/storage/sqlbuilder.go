package storage

import (
	"fmt"
	"strings"

	"github.com/opsgrid/backoffice/internal/query"
)

// recordColumns are the typed columns of the records table; every other
// field path resolves into the JSONB properties document.
var recordColumns = map[string]string{
	"id":          "id",
	"tenant_id":   "tenant_id",
	"entity_type": "entity_type",
	"deleted":     "deleted",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
}

var comparisonOps = map[query.Operator]string{
	query.OpEq:  "=",
	query.OpNe:  "<>",
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// builder accumulates WHERE fragments and their positional arguments for
// one compiled query.
type builder struct {
	schema query.FieldSchema
	args   []any
}

func newBuilder(schema query.FieldSchema) *builder {
	return &builder{schema: schema}
}

func (b *builder) bind(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// fieldExpr returns the SQL expression for a field path, casting JSONB
// text to the field's schema type so comparisons and ordering behave
// numerically/temporally rather than lexically.
func (b *builder) fieldExpr(field string) string {
	if col, ok := recordColumns[field]; ok {
		return col
	}

	var expr string
	if strings.Contains(field, ".") {
		parts := strings.Split(field, ".")
		expr = fmt.Sprintf("properties #>> '{%s}'", strings.Join(parts, ","))
	} else {
		expr = fmt.Sprintf("properties->>'%s'", field)
	}

	switch b.schema[field] {
	case query.FieldTypeNumber:
		return fmt.Sprintf("(%s)::numeric", expr)
	case query.FieldTypeBoolean:
		return fmt.Sprintf("(%s)::boolean", expr)
	case query.FieldTypeDate:
		return fmt.Sprintf("(%s)::timestamptz", expr)
	default:
		return expr
	}
}

func (b *builder) clauseSQL(c query.Clause) (string, error) {
	if op, ok := comparisonOps[c.Op]; ok {
		return fmt.Sprintf("%s %s %s", b.fieldExpr(c.Field), op, b.bind(bindable(c.Value))), nil
	}

	switch c.Op {
	case query.OpIn, query.OpNin:
		return b.inSQL(c)
	case query.OpExists:
		return b.existsSQL(c)
	case query.OpRegex:
		return fmt.Sprintf("%s ~* %s", b.textExpr(c.Field), b.bind(bindable(c.Value))), nil
	case "contains":
		return fmt.Sprintf("%s ILIKE %s ESCAPE '\\'", b.textExpr(c.Field), b.bind("%"+escapeLike(fmt.Sprint(c.Value))+"%")), nil
	case "prefix":
		return fmt.Sprintf("%s ILIKE %s ESCAPE '\\'", b.textExpr(c.Field), b.bind(escapeLike(fmt.Sprint(c.Value))+"%")), nil
	case "text":
		return fmt.Sprintf("to_tsvector('simple', properties::text) @@ plainto_tsquery('simple', %s)", b.bind(fmt.Sprint(c.Value))), nil
	default:
		return "", fmt.Errorf("unsupported operator %q", c.Op)
	}
}

// textExpr is fieldExpr without type casts, for pattern operators that
// always work on text.
func (b *builder) textExpr(field string) string {
	if col, ok := recordColumns[field]; ok {
		return col + "::text"
	}
	if strings.Contains(field, ".") {
		parts := strings.Split(field, ".")
		return fmt.Sprintf("properties #>> '{%s}'", strings.Join(parts, ","))
	}
	return fmt.Sprintf("properties->>'%s'", field)
}

func (b *builder) inSQL(c query.Clause) (string, error) {
	values, ok := c.Value.([]any)
	if !ok {
		values = []any{c.Value}
	}
	if len(values) == 0 {
		// An empty IN list matches nothing; NOT IN matches everything.
		if c.Op == query.OpNin {
			return "TRUE", nil
		}
		return "FALSE", nil
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = b.bind(bindable(v))
	}
	expr := b.fieldExpr(c.Field)
	if c.Op == query.OpNin {
		return fmt.Sprintf("%s NOT IN (%s)", expr, strings.Join(placeholders, ", ")), nil
	}
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", ")), nil
}

func (b *builder) existsSQL(c query.Clause) (string, error) {
	want, ok := c.Value.(bool)
	if !ok {
		return "", fmt.Errorf("exists clause on %q has non-boolean value", c.Field)
	}

	var predicate string
	if col, colOK := recordColumns[c.Field]; colOK {
		predicate = col + " IS NOT NULL"
	} else if strings.Contains(c.Field, ".") {
		parts := strings.Split(c.Field, ".")
		predicate = fmt.Sprintf("properties #> '{%s}' IS NOT NULL", strings.Join(parts, ","))
	} else {
		predicate = fmt.Sprintf("properties ? '%s'", c.Field)
	}

	if !want {
		return "NOT (" + predicate + ")", nil
	}
	return predicate, nil
}

// whereSQL renders the filter tree: AND clauses conjoined with each OR
// group, OR within a group.
func (b *builder) whereSQL(f query.Filter) (string, error) {
	var parts []string
	for _, c := range f.And {
		frag, err := b.clauseSQL(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, frag)
	}
	for _, group := range f.OrGroups {
		var members []string
		for _, c := range group {
			frag, err := b.clauseSQL(c)
			if err != nil {
				return "", err
			}
			members = append(members, frag)
		}
		if len(members) > 0 {
			parts = append(parts, "("+strings.Join(members, " OR ")+")")
		}
	}
	if len(parts) == 0 {
		return "TRUE", nil
	}
	return strings.Join(parts, " AND "), nil
}

func (b *builder) orderSQL(sort []query.SortField) string {
	if len(sort) == 0 {
		return ""
	}
	parts := make([]string, len(sort))
	for i, s := range sort {
		dir := "ASC"
		if s.Descending {
			dir = "DESC"
		}
		parts[i] = b.fieldExpr(s.Field) + " " + dir
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// bindable converts coerced values into driver-friendly types.
func bindable(v any) any {
	switch t := v.(type) {
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
