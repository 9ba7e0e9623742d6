package query

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCoerce_SchemaHints(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name      string
		value     any
		fieldType FieldType
		expected  any
	}{
		{"number", "42.5", FieldTypeNumber, 42.5},
		{"boolean true", "TRUE", FieldTypeBoolean, true},
		{"boolean false", "false", FieldTypeBoolean, false},
		{"identifier", id.String(), FieldTypeIdentifier, id},
		{"string stays string", "123", FieldTypeString, "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Coerce(tt.value, tt.fieldType))
		})
	}
}

func TestCoerce_Date(t *testing.T) {
	got := Coerce("2025-03-01", FieldTypeDate)
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", got)
	}
	assert.Equal(t, 2025, ts.Year())
	assert.Equal(t, time.March, ts.Month())
}

// Unparseable values pass through as the original string; coercion never
// errors. Downstream consumers own the validation.
func TestCoerce_FailOpen(t *testing.T) {
	assert.Equal(t, "abc", Coerce("abc", FieldTypeNumber))
	assert.Equal(t, "maybe", Coerce("maybe", FieldTypeBoolean))
	assert.Equal(t, "not-a-date", Coerce("not-a-date", FieldTypeDate))
	assert.Equal(t, "short", Coerce("short", FieldTypeIdentifier))
}

func TestCoerce_AutoDetect(t *testing.T) {
	assert.Equal(t, true, Coerce("true", FieldType("")))
	assert.Equal(t, 10.0, Coerce("10", FieldType("")))
	assert.Equal(t, "plain text", Coerce("plain text", FieldType("")))

	if _, ok := Coerce("2024-12-31", FieldType("")).(time.Time); !ok {
		t.Fatalf("expected auto-detected date")
	}
}

func TestCoerce_NilAndCollections(t *testing.T) {
	assert.Nil(t, Coerce(nil, FieldTypeNumber))

	got := Coerce([]string{"1", "2"}, FieldTypeNumber)
	assert.Equal(t, []any{1.0, 2.0}, got)

	nested := Coerce(map[string]any{"gte": "100", "lte": "500"}, FieldTypeNumber)
	assert.Equal(t, map[string]any{"gte": 100.0, "lte": 500.0}, nested)
}
