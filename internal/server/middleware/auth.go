// Package middleware holds the HTTP middleware chain: JWT authentication,
// per-user rate limiting, and request logging.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxUserID ctxKey = "userID"

// UserID returns the authenticated user id stored by Auth, or "" when the
// request was not authenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

// Auth returns middleware that validates an HS256 bearer token and stores
// the token subject as the request's user id. If secret is empty,
// authentication is disabled and requests pass through unauthenticated.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			tokenStr := strings.TrimPrefix(auth, "Bearer ")

			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewToken mints an HS256 token for the given user id. Used by tests and by
// operator tooling; the platform's identity service normally issues tokens.
func NewToken(secret, userID string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = userID
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("middleware: sign token: %w", err)
	}
	return token, nil
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
