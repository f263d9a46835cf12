package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// ErrInvalidToken is returned for missing, malformed or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

const issuer = "scenesync"

// SignToken issues an HS256 token for subject valid for ttl. A zero ttl
// issues a token without expiry.
func SignToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken checks token against secret and returns its subject.
func VerifyToken(secret, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if !claims.VerifyIssuer(issuer, true) {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// RequireToken rejects requests without a valid bearer token signed with
// secret. An empty secret disables the check. Preflight requests and the
// paths listed in open pass through.
func RequireToken(secret string, open ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			for _, p := range open {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			subject, err := VerifyToken(secret, token)
			if err != nil {
				glog.V(1).Infof("[auth] rejected %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"result": nil,
					"error":  map[string]string{"kind": "connection_failed", "message": "unauthorized: " + err.Error()},
				})
				return
			}
			glog.V(2).Infof("[auth] %s %s as %s", r.Method, r.URL.Path, subject)
			next.ServeHTTP(w, r)
		})
	}
}
