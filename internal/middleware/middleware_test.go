package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/opsgrid/backoffice/internal/auth"
)

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	if seen == "" {
		t.Fatal("request id not assigned")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("response header %q != context id %q", rec.Header().Get("X-Request-ID"), seen)
	}
}

func TestRequestIDPreservesCallerID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("X-Request-ID", "caller-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "caller-7" {
		t.Errorf("caller id not preserved, got %q", seen)
	}
}

func TestSecurityRejectsMissingTenant(t *testing.T) {
	h := Security(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without tenant header")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSecurityAttachesScope(t *testing.T) {
	tenant := uuid.New()
	user := uuid.New()

	h := Security(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sec, ok := auth.SecurityFromContext(r.Context())
		if !ok {
			t.Fatal("scope missing from context")
		}
		if sec.TenantID != tenant || sec.UserID != user {
			t.Errorf("scope = %+v", sec)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set(auth.HeaderTenantID, tenant.String())
	req.Header.Set(auth.HeaderUserID, user.String())
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestSecurityRejectsMalformedTenant(t *testing.T) {
	h := Security(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with malformed tenant header")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set(auth.HeaderTenantID, "not-a-uuid")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
