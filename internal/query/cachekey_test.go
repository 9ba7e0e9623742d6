package query

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCacheKey_StableAcrossParameterOrdering(t *testing.T) {
	sec := SecurityContext{TenantID: uuid.New(), UserID: uuid.New()}

	a := Request{
		Entity:   "invoices",
		Security: sec,
		Params:   map[string][]string{"status": {"open"}, "amount[gte]": {"100"}},
	}
	b := Request{
		Entity:   "invoices",
		Security: sec,
		Params:   map[string][]string{"amount[gte]": {"100"}, "status": {"open"}},
	}

	assert.Equal(t, CacheKey(a), CacheKey(b))
}

func TestCacheKey_VariesByUserEntityAndParams(t *testing.T) {
	sec := SecurityContext{TenantID: uuid.New(), UserID: uuid.New()}
	base := Request{Entity: "invoices", Security: sec, Params: map[string][]string{"status": {"open"}}}

	otherUser := base
	otherUser.Security.UserID = uuid.New()
	assert.NotEqual(t, CacheKey(base), CacheKey(otherUser))

	otherEntity := base
	otherEntity.Entity = "customers"
	assert.NotEqual(t, CacheKey(base), CacheKey(otherEntity))

	otherParams := base
	otherParams.Params = map[string][]string{"status": {"paid"}}
	assert.NotEqual(t, CacheKey(base), CacheKey(otherParams))
}

func TestCacheKey_IncludesBaseFilter(t *testing.T) {
	sec := SecurityContext{TenantID: uuid.New(), UserID: uuid.New()}
	base := Request{Entity: "invoices", Security: sec}

	scoped := base
	scoped.BaseFilter = []Clause{{Field: "customer", Op: OpEq, Value: "c1"}}
	assert.NotEqual(t, CacheKey(base), CacheKey(scoped))
}
