package tenant

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invix-erp/invix/internal/shared"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("acme"))
	require.NoError(t, Validate("T1"))
	require.NoError(t, Validate("client_42.prod"))

	for _, bad := range []string{"", " ", "../etc", "a/b", "-leading"} {
		err := Validate(bad)
		require.Error(t, err, bad)
		require.True(t, errors.Is(err, shared.ErrValidation))
	}
}

func TestMiddlewareStoresTenant(t *testing.T) {
	var seen string
	h := Middleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/periods", nil)
	req.Header.Set(HeaderName, "T1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "T1", seen)
}

func TestMiddlewareRejectsMissingTenant(t *testing.T) {
	h := Middleware(HeaderResolver{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without tenant")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/periods", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Tenant Required")
}
