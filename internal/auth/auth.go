// Package auth guards the admin and trigger endpoints.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/presentation/helpers"
	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

var (
	ErrBadPassword   = errors.New("invalid password")
	ErrNotConfigured = errors.New("admin login not configured")
)

type Claims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

type contextKey string

const claimsKey = contextKey("claims")

type Authenticator struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewAuthenticator(passwordHash, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{passwordHash: []byte(passwordHash), secret: []byte(secret), ttl: ttl, now: time.Now}
}

// HashPassword produces a value for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Login checks the admin password and issues a signed token.
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if len(a.passwordHash) == 0 || len(a.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrBadPassword
	}
	exp := a.now().Add(a.ttl)
	claims := &Claims{
		Role: RoleAdmin,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  a.now().Unix(),
			ExpiresAt: exp.Unix(),
			Subject:   RoleAdmin,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

// Parse verifies an HS256 token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrNotConfigured
	}
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

func bearer(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware attaches the claims of a valid bearer token to the context.
// Requests without a valid token pass through unauthenticated.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearer(r); tok != "" {
			if claims, err := a.Parse(tok); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

func isAdmin(r *http.Request) bool {
	c, ok := FromContext(r.Context())
	return ok && c.Role == RoleAdmin
}

// RequireAdmin rejects requests that carry no admin token.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			helpers.HttpError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RequireAdminOrBearer also admits `Authorization: Bearer <token>`.
func RequireAdminOrBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isAdmin(r) || tokenEqual(bearer(r), token) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("unauthorized trigger request", "path", r.URL.Path, "remote", r.RemoteAddr)
			helpers.HttpError(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
}

// RequireAdminOrSecret also admits the secret as a bearer token or a
// `secret` query parameter, which is how schedulers call cron endpoints.
func RequireAdminOrSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isAdmin(r) || tokenEqual(bearer(r), secret) || tokenEqual(r.URL.Query().Get("secret"), secret) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("unauthorized cron request", "path", r.URL.Path, "remote", r.RemoteAddr)
			helpers.HttpError(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
}
