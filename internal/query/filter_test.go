package query

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecurity() SecurityContext {
	return SecurityContext{TenantID: uuid.New(), UserID: uuid.New()}
}

func testEntityConfig() EntityConfig {
	return EntityConfig{
		Name: "invoices",
		Schema: FieldSchema{
			"amount":     FieldTypeNumber,
			"status":     FieldTypeString,
			"issued_at":  FieldTypeDate,
			"customer":   FieldTypeIdentifier,
			"overdue":    FieldTypeBoolean,
			"created_at": FieldTypeDate,
		},
		SoftDelete: true,
	}
}

func findClause(t *testing.T, f Filter, field string) Clause {
	t.Helper()
	for _, c := range f.And {
		if c.Field == field {
			return c
		}
	}
	t.Fatalf("no clause for field %q in %+v", field, f.And)
	return Clause{}
}

func TestCompileFilter_TenantIsolationAlwaysInjected(t *testing.T) {
	sec := testSecurity()

	// The client tries to both spoof and widen the tenant scope.
	params := url.Values{
		"tenant_id":     {uuid.NewString()},
		"tenant_id[or]": {"a,b"},
		"status":        {"active"},
	}

	filter, err := CompileFilter(params, sec, testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	tenant := findClause(t, filter, "tenant_id")
	assert.Equal(t, OpEq, tenant.Op)
	assert.Equal(t, sec.TenantID, tenant.Value)

	// Exactly one tenant clause survives, and no OR group mentions it.
	count := 0
	for _, c := range filter.And {
		if c.Field == "tenant_id" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	for _, group := range filter.OrGroups {
		for _, c := range group {
			assert.NotEqual(t, "tenant_id", c.Field)
		}
	}
}

func TestCompileFilter_TenantInjectedWhenOmitted(t *testing.T) {
	sec := testSecurity()
	filter, err := CompileFilter(url.Values{}, sec, testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, sec.TenantID, findClause(t, filter, "tenant_id").Value)
}

func TestCompileFilter_SoftDeleteDefault(t *testing.T) {
	filter, err := CompileFilter(url.Values{}, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	deleted := findClause(t, filter, "deleted")
	assert.Equal(t, OpNe, deleted.Op)
	assert.Equal(t, true, deleted.Value)
}

func TestCompileFilter_SoftDeleteExplicitOverride(t *testing.T) {
	params := url.Values{"deleted": {"true"}}
	filter, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	deleted := findClause(t, filter, "deleted")
	assert.Equal(t, OpEq, deleted.Op)
	assert.Equal(t, true, deleted.Value)
}

func TestCompileFilter_UnknownOperatorRejected(t *testing.T) {
	params := url.Values{"amount[foo]": {"1"}}
	_, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, DefaultOptions())

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount[foo]", ve.Param)
}

func TestCompileFilter_OperatorSuffixes(t *testing.T) {
	params := url.Values{
		"amount[gte]":       {"100"},
		"amount[lte]":       {"500"},
		"status[ne]":        {"void"},
		"status[in]":        {"open,paid"},
		"overdue":           {"true"},
		"issued_at[exists]": {"true"},
	}

	filter, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	byOp := make(map[string]Clause)
	for _, c := range filter.And {
		byOp[c.Field+"/"+string(c.Op)] = c
	}
	assert.Equal(t, 100.0, byOp["amount/gte"].Value)
	assert.Equal(t, 500.0, byOp["amount/lte"].Value)
	assert.Equal(t, "void", byOp["status/ne"].Value)
	assert.Equal(t, []any{"open", "paid"}, byOp["status/in"].Value)
	assert.Equal(t, true, byOp["overdue/eq"].Value)
	assert.Equal(t, true, byOp["issued_at/exists"].Value)
}

func TestCompileFilter_OrGroup(t *testing.T) {
	params := url.Values{"status[or]": {"open,paid,void"}}
	filter, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, filter.OrGroups, 1)
	require.Len(t, filter.OrGroups[0], 1)
	clause := filter.OrGroups[0][0]
	assert.Equal(t, OpIn, clause.Op)
	assert.Equal(t, []any{"open", "paid", "void"}, clause.Value)
}

func TestCompileFilter_OrGroupCapIsError(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxOrClauses = 2

	params := url.Values{"status[or]": {"a,b,c"}}
	_, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, opts)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status[or]", ve.Param)
}

func TestCompileFilter_ReservedKeysStripped(t *testing.T) {
	params := url.Values{
		"page":   {"3"},
		"limit":  {"10"},
		"sort":   {"-amount"},
		"fields": {"amount"},
		"search": {"acme"},
	}
	filter, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	for _, c := range filter.And {
		assert.NotContains(t, []string{"page", "limit", "sort", "fields", "search"}, c.Field)
	}
}

func TestCompileFilter_BaseFilterWins(t *testing.T) {
	customer := uuid.New()
	base := []Clause{{Field: "customer", Op: OpEq, Value: customer}}

	// Client tries to see a different customer's records.
	params := url.Values{"customer": {uuid.NewString()}}

	filter, err := CompileFilter(params, testSecurity(), testEntityConfig(), base, DefaultOptions())
	require.NoError(t, err)

	var values []any
	for _, c := range filter.And {
		if c.Field == "customer" {
			values = append(values, c.Value)
		}
	}
	assert.Equal(t, []any{customer}, values)
}

func TestCompileFilter_DottedPathsAndInvalidNames(t *testing.T) {
	params := url.Values{"billing.city": {"Oslo"}}
	filter, err := CompileFilter(params, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Oslo", findClause(t, filter, "billing.city").Value)

	_, err = CompileFilter(url.Values{"name;drop": {"x"}}, testSecurity(), testEntityConfig(), nil, DefaultOptions())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSanitizeValue_StripsControlTokens(t *testing.T) {
	assert.Equal(t, "acme", SanitizeValue("$whereacme"))
	assert.Equal(t, "a1", SanitizeValue("a--1"))
	assert.Equal(t, "x", SanitizeValue("/*x*/"))
	assert.Equal(t, "name", SanitizeValue("${name"))
}

// The end-to-end compile scenario from the list endpoint contract.
func TestCompileFilter_EndToEndScenario(t *testing.T) {
	sec := testSecurity()
	params := url.Values{
		"status":      {"active"},
		"amount[gte]": {"100"},
		"amount[lte]": {"500"},
		"sort":        {"-created_at"},
		"page":        {"2"},
		"limit":       {"20"},
	}

	filter, err := CompileFilter(params, sec, testEntityConfig(), nil, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, sec.TenantID, findClause(t, filter, "tenant_id").Value)
	assert.Equal(t, true, findClause(t, filter, "deleted").Value)
	assert.Equal(t, "active", findClause(t, filter, "status").Value)

	sort, err := CompileSort("-created_at", nil)
	require.NoError(t, err)
	assert.Equal(t, []SortField{
		{Field: "created_at", Descending: true},
		{Field: "id", Descending: true},
	}, sort)

	p, err := CompilePagination(params, sort, testEntityConfig().Schema, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 20, p.Skip)
	assert.Equal(t, 20, p.Limit)
}
