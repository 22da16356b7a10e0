package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pharmacy-retail/internal/core"
)

type principalKey struct{}

// principalFromContext returns the principal stored by RequireAuth.
func principalFromContext(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(core.Principal)
	return p, ok
}

// jwtClaims is the token payload issued by the identity service.
type jwtClaims struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	BranchID   *int64 `json:"branch_id,omitempty"`
	PharmacyID *int64 `json:"pharmacy_id,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for p valid for ttl.
func SignToken(secret string, p core.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &jwtClaims{
		UserID:     p.ID,
		Role:       string(p.Role),
		BranchID:   p.BranchID,
		PharmacyID: p.PharmacyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RequireAuth validates the bearer token (or the auth_token cookie) and
// injects the principal into the request context. Returns 401 if the token
// is absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		claims := &jwtClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		if claims.UserID <= 0 || claims.Role == "" {
			writeError(w, r, "token is missing user_id or role", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		p := core.Principal{
			ID:         claims.UserID,
			Role:       core.Role(claims.Role),
			BranchID:   claims.BranchID,
			PharmacyID: claims.PharmacyID,
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// requesterIdentity scopes idempotency keys to the authenticated user.
func requesterIdentity(r *http.Request) string {
	if p, ok := principalFromContext(r.Context()); ok {
		return fmt.Sprintf("user:%d", p.ID)
	}
	return "anonymous"
}
