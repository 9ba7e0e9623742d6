// Package query compiles untrusted HTTP query-string parameters into safe,
// tenant-scoped, paginated read queries. Every list and report endpoint in
// the backend goes through this package.
package query

import (
	"time"

	"github.com/google/uuid"
)

// FieldType is the semantic type of a record field, used for coercion and
// for allow-listing sortable/projectable fields.
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeNumber     FieldType = "number"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeDate       FieldType = "date"
	FieldTypeIdentifier FieldType = "identifier"
)

// FieldSchema maps field paths to their semantic types. It is built once
// per entity at startup from the entity's static definition; the engine
// never introspects storage schemas at runtime.
type FieldSchema map[string]FieldType

// SecurityContext carries the trusted, server-derived identity for a
// request. It is injected by the authentication collaborator and is never
// read from the query string.
type SecurityContext struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	// TenantField is the record field the tenant constraint is applied
	// to. Empty means the default "tenant_id".
	TenantField string
}

func (s SecurityContext) tenantField() string {
	if s.TenantField != "" {
		return s.TenantField
	}
	return "tenant_id"
}

// Operator is a filter clause operator. Only operators in the configured
// allow-list are accepted from clients; the search operators are internal
// and produced only by the search compiler.
type Operator string

const (
	OpEq     Operator = "eq"
	OpNe     Operator = "ne"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpIn     Operator = "in"
	OpNin    Operator = "nin"
	OpExists Operator = "exists"
	OpRegex  Operator = "regex"

	// Internal operators emitted by the search compiler.
	opContains Operator = "contains"
	opPrefix   Operator = "prefix"
	opText     Operator = "text"
)

// DefaultOperators is the operator allow-list applied when the engine
// options do not name one.
var DefaultOperators = []Operator{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpExists, OpRegex,
}

// Clause is a single field/operator/value predicate.
type Clause struct {
	Field string
	Op    Operator
	Value any
}

// Filter is the compiled predicate tree: a conjunction of And clauses and
// OrGroups, where each group's members are disjoined.
type Filter struct {
	And      []Clause
	OrGroups [][]Clause
}

// HasField reports whether any clause in the filter constrains the given
// field path.
func (f Filter) HasField(field string) bool {
	for _, c := range f.And {
		if c.Field == field {
			return true
		}
	}
	for _, group := range f.OrGroups {
		for _, c := range group {
			if c.Field == field {
				return true
			}
		}
	}
	return false
}

// SortField is one entry of a compiled sort order.
type SortField struct {
	Field      string
	Descending bool
}

// Strategy selects how a result set is paginated.
type Strategy string

const (
	StrategyOffset Strategy = "offset"
	StrategyCursor Strategy = "cursor"
)

// Pagination is the compiled paging state. For the offset strategy Page,
// Limit and Skip are set; for the cursor strategy CursorField and Cursor
// are set and Skip is always zero.
type Pagination struct {
	Strategy    Strategy
	Page        int
	Limit       int
	Skip        int
	CursorField string
	Cursor      any
	Descending  bool
}

// SearchStrategy selects how a free-text term is matched.
type SearchStrategy string

const (
	SearchIndexedText SearchStrategy = "text"
	SearchSubstring   SearchStrategy = "substring"
	SearchPrefix      SearchStrategy = "prefix"
	// SearchPhonetic is declared as an extension point; requesting it is
	// rejected as unsupported.
	SearchPhonetic SearchStrategy = "phonetic"
)

// ExpansionRule describes one relation a caller may expand: the reference
// field on the parent record, the target entity type, the fields returned
// for each related record and an optional extra match filter.
type ExpansionRule struct {
	RefField    string
	TargetType  string
	Fields      []string
	Match       []Clause
	TenantScope bool
}

// ExpansionMap is the per-entity allow-list of expandable relation paths.
type ExpansionMap map[string]ExpansionRule

// Expansion is one compiled relation fetch. Match always carries the
// tenant constraint when the target is tenant scoped, so expansion cannot
// bypass tenant isolation.
type Expansion struct {
	Path       string
	RefField   string
	TargetType string
	Fields     []string
	Match      []Clause
}

// CompiledQuery is the single internal representation handed to storage
// adapters. Both the plain select adapter and the aggregate adapter are
// fed from this one shape.
type CompiledQuery struct {
	Entity     string
	Schema     FieldSchema
	Filter     Filter
	Sort       []SortField
	Projection []string
	Pagination Pagination
	Expansions []Expansion

	// Aggregation, when non-nil, routes the query through the aggregate
	// adapter instead of the plain select adapter.
	Aggregation *Aggregation
}

// Aggregation describes a grouped report: rows bucketed by GroupBy with a
// count and an optional numeric metric sum per bucket.
type Aggregation struct {
	GroupBy     string
	MetricField string
}

// EntityConfig is the static per-entity configuration supplied to the
// engine by the calling module: the field schema, allow-lists, search
// setup and expansion map.
type EntityConfig struct {
	Name              string
	Schema            FieldSchema
	AllowedSortFields []string
	AllowedFields     []string
	SearchFields      []string
	HasTextIndex      bool
	SoftDelete        bool
	BaseFilter        []Clause
	Expansions        ExpansionMap
}

// Request bundles everything the engine needs for one invocation. Params
// is the raw query-string mapping and is treated as untrusted.
type Request struct {
	Entity   string
	Params   map[string][]string
	Security SecurityContext
	Config   EntityConfig
	// BaseFilter is merged ahead of client clauses, after the config's
	// own base filter. Base clauses always win over client clauses on
	// the same field.
	BaseFilter []Clause
	// BypassCache skips the read-through cache for freshness-sensitive
	// reads such as exports.
	BypassCache bool
}

// Options are the engine configuration knobs.
type Options struct {
	MaxLimit         int
	DefaultLimit     int
	MaxOrClauses     int
	EnableCache      bool
	CacheTTL         time.Duration
	Timeout          time.Duration
	AllowedOperators []Operator
}

// DefaultOptions mirror the values production configs start from.
func DefaultOptions() Options {
	return Options{
		MaxLimit:         1000,
		DefaultLimit:     25,
		MaxOrClauses:     20,
		EnableCache:      true,
		CacheTTL:         60 * time.Second,
		Timeout:          10 * time.Second,
		AllowedOperators: DefaultOperators,
	}
}

// PageInfo is the pagination block of a result envelope. Total and Pages
// are only present for offset pagination; cursor pagination trades them
// for constant cost on deep lists.
type PageInfo struct {
	Page    int    `json:"page,omitempty"`
	Cursor  string `json:"cursor,omitempty"`
	Limit   int    `json:"limit"`
	Total   *int64 `json:"total,omitempty"`
	Pages   *int   `json:"pages,omitempty"`
	HasNext bool   `json:"hasNext"`
	HasPrev bool   `json:"hasPrev"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	CacheHit        bool   `json:"cacheHit"`
	RequestID       string `json:"requestId"`
}

// Result is the uniform envelope returned for every engine invocation.
type Result struct {
	Data       []map[string]any `json:"data"`
	Pagination *PageInfo        `json:"pagination"`
	Metadata   Metadata         `json:"metadata"`
}

// reservedKeys are control parameters that are never treated as data
// filters.
var reservedKeys = map[string]struct{}{
	"page":        {},
	"limit":       {},
	"sort":        {},
	"fields":      {},
	"search":      {},
	"searchMode":  {},
	"populate":    {},
	"cursor":      {},
	"cursorField": {},
	"groupBy":     {},
	"metric":      {},
}

// IsReservedKey reports whether the parameter name is a control key.
func IsReservedKey(name string) bool {
	_, ok := reservedKeys[name]
	return ok
}
