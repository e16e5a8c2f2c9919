package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type actorKey struct{}

// Actor is the authenticated caller extracted from the JWT.
// Role is informational; no route is gated on it.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// actorFromContext returns the actor stored in ctx, or nil.
func actorFromContext(ctx context.Context) *Actor {
	v, _ := ctx.Value(actorKey{}).(*Actor)
	return v
}

// actorID returns the ID of the authenticated actor. RequireActor guarantees
// one is present on protected routes.
func actorID(r *http.Request) string {
	if a := actorFromContext(r.Context()); a != nil {
		return a.ID
	}
	return ""
}

// jwtClaims is the JWT payload struct used for signing and parsing.
type jwtClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for subject. Credential checks happen
// upstream; this is used by tooling and tests.
func SignToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &jwtClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseToken validates raw and returns the actor it names.
func (h *Handler) parseToken(raw string) (*Actor, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// bearerToken reads the token from the Authorization header, falling back
// to the auth_token cookie.
func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		if t, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	if c, err := r.Cookie("auth_token"); err == nil {
		return c.Value
	}
	return ""
}

// RequireActor is chi middleware that validates the bearer token and injects
// the Actor into the request context. Returns 401 if the token is absent or invalid.
func (h *Handler) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		actor, err := h.parseToken(raw)
		if err != nil {
			writeError(w, r, err.Error(), "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// me handles GET /api/auth/me and returns the caller's identity.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, actorFromContext(r.Context()))
}
