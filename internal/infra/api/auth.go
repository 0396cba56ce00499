package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/infra/logging"
)

// UserAuth validates HS256 bearer tokens whose subject is the user id.
type UserAuth struct {
	secret []byte
}

func NewUserAuth(secret string) *UserAuth {
	return &UserAuth{secret: []byte(secret)}
}

// Mint issues a token for userID. Used by tests and local tooling.
func (a *UserAuth) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *UserAuth) parse(tok string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid token and stores the user id
// in the request context.
func (a *UserAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			writeError(w, http.StatusServiceUnavailable, domain.ReasonUnavailable, "user authentication is not configured")
			return
		}
		hdr := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		userID, err := a.parse(strings.TrimSpace(hdr[7:]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if rw, ok := w.(*respWriter); ok {
			rw.userID = userID
		}
		next.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), userID)))
	})
}

func userIDFrom(ctx context.Context) string {
	id, _ := logging.UserID(ctx)
	return id
}
