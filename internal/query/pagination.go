package query

import (
	"strconv"
)

// CompilePagination selects the paging strategy from caller intent: a
// cursor parameter switches to cursor paging, otherwise offset paging
// applies. The limit is validated against [1, MaxLimit]; a request for
// more is rejected with a ValidationError, never silently truncated.
//
// Offset paging needs a follow-up count query and its cost grows with
// skip depth; it is intended for shallow admin-style paging. Cursor
// paging trades "jump to page N" and totals for constant cost on deep
// lists.
func CompilePagination(params map[string][]string, sort []SortField, schema FieldSchema, opts Options) (Pagination, error) {
	limit := opts.DefaultLimit
	if raw := firstValue(params, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Pagination{}, newValidationError("limit", "must be an integer")
		}
		limit = n
	}
	if limit < 1 {
		return Pagination{}, newValidationError("limit", "must be at least 1")
	}
	if opts.MaxLimit > 0 && limit > opts.MaxLimit {
		return Pagination{}, newValidationError("limit", "%d exceeds maximum of %d", limit, opts.MaxLimit)
	}

	if cursor := firstValue(params, "cursor"); cursor != "" {
		return compileCursor(params, cursor, limit, sort, schema)
	}

	page := 1
	if raw := firstValue(params, "page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Pagination{}, newValidationError("page", "must be a positive integer")
		}
		page = n
	}

	return Pagination{
		Strategy: StrategyOffset,
		Page:     page,
		Limit:    limit,
		Skip:     (page - 1) * limit,
	}, nil
}

func compileCursor(params map[string][]string, cursor string, limit int, sort []SortField, schema FieldSchema) (Pagination, error) {
	field := firstValue(params, "cursorField")
	if field == "" {
		field = primaryIDField
	}
	if !validFieldPath(field) {
		return Pagination{}, newValidationError("cursorField", "field name contains invalid characters")
	}

	// Direction follows whichever sort entry covers the cursor field, so
	// the strict-inequality bound walks the same way the rows are
	// ordered.
	descending := false
	for _, s := range sort {
		if s.Field == field {
			descending = s.Descending
			break
		}
	}

	return Pagination{
		Strategy:    StrategyCursor,
		Limit:       limit,
		CursorField: field,
		Cursor:      Coerce(SanitizeValue(cursor), schema[field]),
		Descending:  descending,
	}, nil
}

// cursorSort forces the cursor field into the sort order so the
// inequality bound and the ordering agree.
func cursorSort(sort []SortField, p Pagination) []SortField {
	if p.Strategy != StrategyCursor {
		return sort
	}
	for _, s := range sort {
		if s.Field == p.CursorField {
			return sort
		}
	}
	return append([]SortField{{Field: p.CursorField, Descending: p.Descending}}, sort...)
}

func firstValue(params map[string][]string, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
