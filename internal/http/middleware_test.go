package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tenantEcho() (http.Handler, *string) {
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TenantFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	return h, &seen
}

func TestRequireTenantStoresTenantInContext(t *testing.T) {
	inner, seen := tenantEcho()
	h := RequireTenant()(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	req.Header.Set(TenantHeader, "test_tenant_01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "test_tenant_01", *seen)
}

func TestRequireTenantRejectsBadTenants(t *testing.T) {
	tests := []struct {
		name    string
		tenant  string
		errCode string
	}{
		{"missing header", "", "tenant_required"},
		{"uppercase", "Diku", "invalid_tenant"},
		{"leading digit", "9diku", "invalid_tenant"},
		{"punctuation", "diku;drop", "invalid_tenant"},
		{"too long", strings.Repeat("a", 64), "invalid_tenant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner, seen := tenantEcho()
			h := RequireTenant()(inner)

			req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
			if tt.tenant != "" {
				req.Header.Set(TenantHeader, tt.tenant)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.errCode, body["error"])
			assert.Empty(t, *seen)
		})
	}
}

func TestRecoverTurnsPanicsInto500(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) {
			panic("handler blew up")
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecoverRepanicsAbortHandler(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))

	defer func() {
		assert.Equal(t, http.ErrAbortHandler, recover()) //nolint:errorlint // sentinel comparison per net/http contract
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Fatal("expected the abort sentinel to propagate")
}
