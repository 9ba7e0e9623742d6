package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchConfig() EntityConfig {
	return EntityConfig{
		Name:         "customers",
		SearchFields: []string{"name", "email"},
	}
}

func TestCompileSearch_SubstringDefault(t *testing.T) {
	group, err := CompileSearch("acme", nil, searchConfig())
	require.NoError(t, err)
	require.Len(t, group, 2)
	assert.Equal(t, Clause{Field: "name", Op: opContains, Value: "acme"}, group[0])
	assert.Equal(t, Clause{Field: "email", Op: opContains, Value: "acme"}, group[1])
}

func TestCompileSearch_CombinedStrategies(t *testing.T) {
	strategies := ParseSearchStrategies("substring,prefix")
	group, err := CompileSearch("ac", strategies, searchConfig())
	require.NoError(t, err)
	// Two fields per strategy, all OR'd together.
	require.Len(t, group, 4)
	assert.Equal(t, opPrefix, group[2].Op)
}

func TestCompileSearch_IndexedTextRequiresIndex(t *testing.T) {
	_, err := CompileSearch("acme", []SearchStrategy{SearchIndexedText}, searchConfig())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	cfg := searchConfig()
	cfg.HasTextIndex = true
	group, err := CompileSearch("acme", []SearchStrategy{SearchIndexedText}, cfg)
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, opText, group[0].Op)
}

// No candidate fields and no text index: the term is a no-op. The engine
// never falls back to scanning every string field.
func TestCompileSearch_NoConfigurationIsNoOp(t *testing.T) {
	group, err := CompileSearch("acme", nil, EntityConfig{Name: "bare"})
	require.NoError(t, err)
	assert.Empty(t, group)
}

func TestCompileSearch_PhoneticRejected(t *testing.T) {
	_, err := CompileSearch("smith", []SearchStrategy{SearchPhonetic}, searchConfig())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Constraint, "not supported")
}

func TestCompileSearch_TermSanitizedAndTrimmed(t *testing.T) {
	group, err := CompileSearch("  $whereacme  ", nil, searchConfig())
	require.NoError(t, err)
	require.NotEmpty(t, group)
	assert.Equal(t, "acme", group[0].Value)

	group, err = CompileSearch("   ", nil, searchConfig())
	require.NoError(t, err)
	assert.Empty(t, group)
}
