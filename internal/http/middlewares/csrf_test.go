package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func doCSRF(t *testing.T, method, cookie, header string) *httptest.ResponseRecorder {
	t.Helper()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Chain(ok, WithCSRF(CSRFConfig{}))

	req := httptest.NewRequest(method, "/v1/auth/logout", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: cookie})
	}
	if header != "" {
		req.Header.Set("X-CSRF-Token", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCSRF_MatchingPairPasses(t *testing.T) {
	rec := doCSRF(t, http.MethodPost, "tok-abc", "tok-abc")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCSRF_MissingHeaderFailsClosed(t *testing.T) {
	rec := doCSRF(t, http.MethodPost, "tok-abc", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "PERMISSION_DENIED")
}

func TestCSRF_MissingCookieFailsClosed(t *testing.T) {
	rec := doCSRF(t, http.MethodPost, "", "tok-abc")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRF_MismatchFails(t *testing.T) {
	rec := doCSRF(t, http.MethodPost, "tok-abc", "tok-xyz")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRF_SafeMethodSkipsCheck(t *testing.T) {
	rec := doCSRF(t, http.MethodGet, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
