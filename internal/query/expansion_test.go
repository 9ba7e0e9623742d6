package query

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expansionMap() ExpansionMap {
	return ExpansionMap{
		"customer": {
			RefField:    "customer_id",
			TargetType:  "customers",
			Fields:      []string{"name", "email"},
			TenantScope: true,
		},
		"warehouse": {
			RefField:   "warehouse_id",
			TargetType: "warehouses",
			Match:      []Clause{{Field: "active", Op: OpEq, Value: true}},
		},
	}
}

func TestCompileExpansions_TenantConstraintInjected(t *testing.T) {
	sec := SecurityContext{TenantID: uuid.New()}
	plans, err := CompileExpansions([]string{"customer"}, expansionMap(), sec)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	require.Len(t, plans[0].Match, 1)
	assert.Equal(t, Clause{Field: "tenant_id", Op: OpEq, Value: sec.TenantID}, plans[0].Match[0])
}

func TestCompileExpansions_UnscopedRelationKeepsOwnMatch(t *testing.T) {
	sec := SecurityContext{TenantID: uuid.New()}
	plans, err := CompileExpansions([]string{"warehouse"}, expansionMap(), sec)
	require.NoError(t, err)
	require.Len(t, plans[0].Match, 1)
	assert.Equal(t, "active", plans[0].Match[0].Field)
}

func TestCompileExpansions_UnknownPathRejected(t *testing.T) {
	_, err := CompileExpansions([]string{"ledger"}, expansionMap(), SecurityContext{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "populate", ve.Param)
}

func TestParseExpansionPaths(t *testing.T) {
	params := map[string][]string{"populate": {"customer, warehouse", "customer"}}
	assert.Equal(t, []string{"customer", "warehouse", "customer"}, ParseExpansionPaths(params))

	plans, err := CompileExpansions(ParseExpansionPaths(params), expansionMap(), SecurityContext{})
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}
