package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func serve(t *testing.T, header string) (*httptest.ResponseRecorder, Identity, bool) {
	t.Helper()

	var (
		got    Identity
		called bool
	)
	h := NewMiddleware(secret).Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got, called
}

func TestIdentifyAnonymous(t *testing.T) {
	rec, id, called := serve(t, "")

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, id.Anonymous())
}

func TestIdentifyValidToken(t *testing.T) {
	token, err := NewIssuer(secret, time.Hour).Issue("aaaaa-aa")
	require.NoError(t, err)

	_, id, called := serve(t, "Bearer "+token)

	assert.True(t, called)
	assert.Equal(t, "aaaaa-aa", id.Principal)
	assert.Equal(t, token, id.Token)
	assert.False(t, id.Anonymous())
}

func TestIdentifyRejectsBadTokens(t *testing.T) {
	wrongKey, err := NewIssuer("other", time.Hour).Issue("aaaaa-aa")
	require.NoError(t, err)
	expired, err := NewIssuer(secret, -time.Minute).Issue("aaaaa-aa")
	require.NoError(t, err)

	for name, header := range map[string]string{
		"format":    "Token abc",
		"wrong key": "Bearer " + wrongKey,
		"expired":   "Bearer " + expired,
	} {
		t.Run(name, func(t *testing.T) {
			rec, _, called := serve(t, header)
			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
		})
	}
}

func TestAnonymousPrincipal(t *testing.T) {
	assert.True(t, Identity{Principal: AnonymousPrincipal}.Anonymous())
}

func TestRequireAuth(t *testing.T) {
	var called bool
	h := NewMiddleware(secret).Identify(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":"FORBIDDEN","message":"Log in to continue"}}`, rec.Body.String())
	assert.False(t, called)

	token, err := NewIssuer(secret, time.Minute).Issue("aaaaa-aa")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
