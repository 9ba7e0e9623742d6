package query

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// CacheKey derives the read-through cache key for a request. The key is a
// stable hash over the entity name, the requesting user, the base filter
// and the normalized parameter mapping, so logically identical queries by
// the same user hash identically regardless of parameter ordering.
func CacheKey(req Request) string {
	d := xxhash.New()

	_, _ = fmt.Fprintf(d, "entity=%s;user=%s;", req.Entity, req.Security.UserID)
	_, _ = fmt.Fprintf(d, "tenant=%s;", req.Security.TenantID)

	base := make([]Clause, 0, len(req.Config.BaseFilter)+len(req.BaseFilter))
	base = append(base, req.Config.BaseFilter...)
	base = append(base, req.BaseFilter...)
	sort.Slice(base, func(i, j int) bool {
		if base[i].Field != base[j].Field {
			return base[i].Field < base[j].Field
		}
		return base[i].Op < base[j].Op
	})
	for _, c := range base {
		_, _ = fmt.Fprintf(d, "base:%s[%s]=%v;", c.Field, c.Op, c.Value)
	}

	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := append([]string(nil), req.Params[k]...)
		sort.Strings(values)
		for _, v := range values {
			_, _ = fmt.Fprintf(d, "%s=%s;", k, v)
		}
	}

	return fmt.Sprintf("query:%s:%016x", req.Entity, d.Sum64())
}
