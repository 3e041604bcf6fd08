package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/custodia/internal/auth"
	"github.com/dropDatabas3/custodia/internal/authz"
	"github.com/dropDatabas3/custodia/internal/cache"
	"github.com/dropDatabas3/custodia/internal/domain/repository"
	"github.com/dropDatabas3/custodia/internal/http/handlers"
	jwtx "github.com/dropDatabas3/custodia/internal/jwt"
)

type stubUsers struct {
	u *repository.User
}

func (s *stubUsers) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	if s.u != nil && strings.EqualFold(s.u.Username, username) {
		cp := *s.u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	if s.u != nil && s.u.ID == userID {
		cp := *s.u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) RecordLoginAttempt(ctx context.Context, userID string, success bool, at time.Time) error {
	return nil
}

func (s *stubUsers) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	s.u.PasswordHash = newHash
	return nil
}

func (s *stubUsers) SetTermsAccepted(ctx context.Context, userID string, at time.Time) error {
	s.u.TermsAccepted = true
	return nil
}

type stubCatalog struct{}

func (stubCatalog) GetActiveRoles(ctx context.Context, userID string) ([]repository.AssignedRole, error) {
	return nil, nil
}

func (stubCatalog) GetRolePermissions(ctx context.Context, roleIDs []string) ([]string, error) {
	return nil, nil
}

func (stubCatalog) GetActiveOverrides(ctx context.Context, userID string) ([]repository.Override, error) {
	return nil, nil
}

type mailStub struct {
	code string
}

func (m *mailStub) SendResetCode(ctx context.Context, to, code string) error {
	m.code = code
	return nil
}

type routerEnv struct {
	handler http.Handler
	issuer  *jwtx.Issuer
	mail    *mailStub
	users   *stubUsers
	cookies handlers.CookieConfig
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	users := &stubUsers{u: &repository.User{
		ID:            "u1",
		Username:      "abelb",
		Email:         "abelb@example.com",
		Active:        true,
		TermsAccepted: true,
	}}
	mail := &mailStub{}
	issuer := jwtx.NewIssuer("custodia-test", []byte("0123456789abcdef0123456789abcdef"))

	svc := &auth.Service{
		Users:    users,
		Resolver: authz.NewResolver(stubCatalog{}, time.Minute, "/"),
		Tokens:   issuer,
		Codes:    cache.NewMemory("test"),
		Mail:     mail,
	}
	cookies := handlers.CookieConfig{
		AccessName:  "access_token",
		RefreshName: "refresh_token",
		CSRFName:    "csrf_token",
		ResetName:   "reset_token",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  24 * time.Hour,
		ResetTTL:    10 * time.Minute,
	}
	h := NewRouter(RouterConfig{
		Auth:   &handlers.Auth{Service: svc, Cookies: cookies},
		Health: &handlers.Health{},
	})
	return &routerEnv{handler: h, issuer: issuer, mail: mail, users: users, cookies: cookies}
}

func (env *routerEnv) do(method, path, body string, mut func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if mut != nil {
		mut(req)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestRouter_ResetWithoutCSRFRejected(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/reset", `{"new_password":"Correcto-123"}`, nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "PERMISSION_DENIED")
}

func TestRouter_ResetPastCSRFNeedsResetCookie(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/reset", `{"new_password":"Correcto-123"}`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-abc"})
		r.Header.Set("X-CSRF-Token", "tok-abc")
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "TOKEN_INVALID")
}

func TestRouter_ResetFlowEndToEnd(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/forgot", `{"username":"abelb"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, env.mail.code, 6)

	rec = env.do(http.MethodPost, "/v1/auth/forgot/verify",
		`{"username":"abelb","code":"`+env.mail.code+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resetCk := findCookie(t, rec, "reset_token")
	require.NotNil(t, resetCk, "el canje debe dejar la cookie de reset")
	csrfCk := findCookie(t, rec, "csrf_token")
	require.NotNil(t, csrfCk, "el canje debe emitir una cookie CSRF para el paso final")
	require.NotEmpty(t, csrfCk.Value)

	var verifyBody struct {
		Data struct {
			CSRFToken string `json:"csrf_token"`
		} `json:"data"`
		RequestID string `json:"request_id"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verifyBody))
	require.Equal(t, csrfCk.Value, verifyBody.Data.CSRFToken)

	rec = env.do(http.MethodPost, "/v1/auth/reset", `{"new_password":"Correcto-123"}`, func(r *http.Request) {
		r.AddCookie(resetCk)
		r.AddCookie(csrfCk)
		r.Header.Set("X-CSRF-Token", csrfCk.Value)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(env.users.u.PasswordHash, "$argon2id$"))
	require.NotNil(t, findCookie(t, rec, "access_token"))
}

func TestRouter_LogoutWithoutCSRFRejected(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodPost, "/v1/auth/logout", "", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "PERMISSION_DENIED")
}

func TestRouter_VerifyWithoutSessionRejected(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodGet, "/v1/auth/verify", "", nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "TOKEN_INVALID")
}

func TestRouter_VerifyWithSessionReturnsSubject(t *testing.T) {
	env := newRouterEnv(t)
	access, _, err := env.issuer.Issue(jwtx.KindAccess, "u1")
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/v1/auth/verify", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "access_token", Value: access})
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			UserID string `json:"user_id"`
		} `json:"data"`
		RequestID string `json:"request_id"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "u1", body.Data.UserID)
	require.NotEmpty(t, body.RequestID)
	require.NotEmpty(t, body.Timestamp)
}

func TestRouter_ResponsesCarryRequestIDAndTimestamp(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodGet, "/v1/auth/csrf", "", func(r *http.Request) {
		r.Header.Set("X-Request-ID", "req-123")
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		RequestID string `json:"request_id"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "req-123", body.RequestID)

	ts, err := time.Parse(time.RFC3339, body.Timestamp)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}
