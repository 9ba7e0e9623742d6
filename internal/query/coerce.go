package query

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// dateLayouts are tried in order when coercing date values.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// Coerce converts a raw string parameter value into a typed value using an
// optional schema hint. Coercion is fail-open: a value that cannot be
// parsed for its declared type passes through as the original string and
// validation is deferred to downstream consumers. This favours
// availability over strict typing and is relied on by callers.
func Coerce(value any, fieldType FieldType) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Coerce(item, fieldType)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Coerce(item, fieldType)
		}
		return out
	case map[string]any:
		// Range-operator objects coerce per key.
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Coerce(item, fieldType)
		}
		return out
	case string:
		return coerceString(v, fieldType)
	default:
		return value
	}
}

func coerceString(value string, fieldType FieldType) any {
	switch fieldType {
	case FieldTypeNumber:
		if n, err := cast.ToFloat64E(value); err == nil {
			return n
		}
		return value
	case FieldTypeBoolean:
		switch strings.ToLower(value) {
		case "true":
			return true
		case "false":
			return false
		}
		return value
	case FieldTypeDate:
		if t, ok := parseDate(value); ok {
			return t
		}
		return value
	case FieldTypeIdentifier:
		if id, err := uuid.Parse(value); err == nil {
			return id
		}
		return value
	case FieldTypeString:
		return value
	default:
		return autoDetect(value)
	}
}

// autoDetect is used when no schema hint is available: boolean literals
// first, then numbers, then dates, otherwise the original string.
func autoDetect(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := cast.ToFloat64E(value); err == nil {
		return n
	}
	if t, ok := parseDate(value); ok {
		return t
	}
	return value
}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
