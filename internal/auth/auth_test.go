package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator(string(hash), "signing-key", time.Hour)
}

func TestLogin(t *testing.T) {
	a := newAuth(t)

	_, _, err := a.Login("wrong")
	assert.ErrorIs(t, err, ErrBadPassword)

	tok, exp, err := a.Login("s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, _, err = NewAuthenticator("", "k", 0).Login("x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHashPasswordRoundTrip(t *testing.T) {
	h, err := HashPassword("hunter2")
	require.NoError(t, err)
	tok, _, err := NewAuthenticator(h, "k", 0).Login("hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestParseRejects(t *testing.T) {
	a := newAuth(t)

	other, _, err := NewAuthenticator(string(a.passwordHash), "another-key", time.Hour).Login("s3cret")
	require.NoError(t, err)
	_, err = a.Parse(other)
	assert.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := a.Login("s3cret")
	require.NoError(t, err)
	a.now = time.Now
	_, err = a.Parse(expired)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Parse(unsigned)
	assert.Error(t, err)
}

func serve(h http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestGuards(t *testing.T) {
	a := newAuth(t)
	tok, _, err := a.Login("s3cret")
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	admin := a.Middleware(RequireAdmin(ok))
	fake := a.Middleware(RequireAdminOrBearer("fake-token")(ok))
	cron := a.Middleware(RequireAdminOrSecret("cron-secret")(ok))

	req := func(target, authz string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, target, nil)
		if authz != "" {
			r.Header.Set("Authorization", authz)
		}
		return r
	}

	assert.Equal(t, http.StatusUnauthorized, serve(admin, req("/", "")))
	assert.Equal(t, http.StatusUnauthorized, serve(admin, req("/", "Bearer garbage")))
	assert.Equal(t, http.StatusNoContent, serve(admin, req("/", "Bearer "+tok)))

	assert.Equal(t, http.StatusNoContent, serve(fake, req("/", "Bearer fake-token")))
	assert.Equal(t, http.StatusNoContent, serve(fake, req("/", "Bearer "+tok)))
	assert.Equal(t, http.StatusUnauthorized, serve(fake, req("/", "Bearer nope")))

	assert.Equal(t, http.StatusNoContent, serve(cron, req("/?secret=cron-secret", "")))
	assert.Equal(t, http.StatusNoContent, serve(cron, req("/", "Bearer cron-secret")))
	assert.Equal(t, http.StatusUnauthorized, serve(cron, req("/?secret=wrong", "")))

	// an unset secret never matches an empty one
	open := a.Middleware(RequireAdminOrSecret("")(ok))
	assert.Equal(t, http.StatusUnauthorized, serve(open, req("/?secret=", "")))
}
