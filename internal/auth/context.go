package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/opsgrid/backoffice/internal/query"
)

type contextKey string

const securityContextKey contextKey = "securityContext"

// Header names for the upstream gateway's identity assertions. The
// gateway authenticates; this service only scopes.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// ContextWithSecurity returns a new context carrying the authenticated
// tenant and user scope.
func ContextWithSecurity(ctx context.Context, sec query.SecurityContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, securityContextKey, sec)
}

// SecurityFromContext retrieves the authenticated scope from the context,
// if any.
func SecurityFromContext(ctx context.Context) (query.SecurityContext, bool) {
	if ctx == nil {
		return query.SecurityContext{}, false
	}
	sec, ok := ctx.Value(securityContextKey).(query.SecurityContext)
	if !ok || sec.TenantID == uuid.Nil {
		return query.SecurityContext{}, false
	}
	return sec, true
}

// SecurityFromRequest builds the scope from gateway identity headers.
// A request without a valid tenant assertion is unauthenticated.
func SecurityFromRequest(r *http.Request) (query.SecurityContext, error) {
	tenantRaw := r.Header.Get(HeaderTenantID)
	if tenantRaw == "" {
		return query.SecurityContext{}, fmt.Errorf("missing %s header", HeaderTenantID)
	}
	tenantID, err := uuid.Parse(tenantRaw)
	if err != nil {
		return query.SecurityContext{}, fmt.Errorf("invalid %s header: %w", HeaderTenantID, err)
	}

	sec := query.SecurityContext{TenantID: tenantID}
	if userRaw := r.Header.Get(HeaderUserID); userRaw != "" {
		userID, err := uuid.Parse(userRaw)
		if err != nil {
			return query.SecurityContext{}, fmt.Errorf("invalid %s header: %w", HeaderUserID, err)
		}
		sec.UserID = userID
	}
	return sec, nil
}
