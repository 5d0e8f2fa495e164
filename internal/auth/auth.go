// Package auth identifies the user behind an HTTP or websocket request.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// HeaderUserID carries the caller's id in development mode.
const HeaderUserID = "X-User-ID"

// Authenticator returns the user id of the caller.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the X-User-ID header, falling back to the
// "user" query parameter for browser websockets. Development only.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if id == "" {
		return "", ErrMissingUserID
	}
	return id, nil
}

// JWTAuthenticator verifies HS256 tokens and uses the subject as user id.
// The token comes from "Authorization: Bearer", the "token" cookie or the
// "token" query parameter, in that order.
type JWTAuthenticator struct {
	secret []byte
	parser *gojwt.Parser
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		parser: gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
			gojwt.WithExpirationRequired(),
		),
	}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw, err := extractToken(r)
	if err != nil {
		return "", err
	}
	claims := &gojwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*gojwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func extractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Split(h, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", fmt.Errorf("%w: expected 'Bearer <token>'", ErrInvalidToken)
		}
		return parts[1], nil
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", ErrMissingUserID
}

// NewToken signs a token for userID valid for ttl.
func NewToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := gojwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type ctxKey struct{}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the id stored by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects unauthenticated requests with 401 and stores the user
// id on the request context otherwise.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}
