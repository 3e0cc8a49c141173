// Package auth verifies callers. Staff and patrons present bearer tokens issued elsewhere;
// attendance kiosks present a shared key checked against Argon2id hashes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"libraengage/internal/domain"
	"libraengage/internal/httpx"
)

// KioskKeyHeader carries a kiosk key.
const KioskKeyHeader = "X-Kiosk-Key"

const issuer = "libraengage"

type contextKey struct{}

// WithActor returns a context carrying the caller.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom returns the caller stored by the middleware.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(domain.Actor)
	return actor, ok
}

// Claims are the bearer token claims. Subject is the patron barcode or staff id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves the Actor of a request.
type Authenticator struct {
	secret      []byte
	kioskHashes []string
}

func NewAuthenticator(secret string, kioskHashes []string) *Authenticator {
	return &Authenticator{secret: []byte(secret), kioskHashes: kioskHashes}
}

// IssueToken signs a token. Tokens are normally issued by the identity service; this is used by tooling and tests.
func (a *Authenticator) IssueToken(subject string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a bearer token and returns its actor.
func (a *Authenticator) ParseToken(token string) (domain.Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Actor{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !parsed.Valid {
		return domain.Actor{}, errors.New("invalid token")
	}

	role := domain.Role(claims.Role)
	switch role {
	case domain.RolePatron, domain.RoleStaff:
	default:
		return domain.Actor{}, fmt.Errorf("token role %q is not allowed", claims.Role)
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	return domain.Actor{ID: claims.Subject, Role: role}, nil
}

func (a *Authenticator) kioskActor(key string) (domain.Actor, bool) {
	for i, h := range a.kioskHashes {
		ok, err := VerifyKey(key, h)
		if err == nil && ok {
			return domain.Actor{ID: fmt.Sprintf("kiosk-%d", i+1), Role: domain.RoleKiosk}, true
		}
	}
	return domain.Actor{}, false
}

// Middleware rejects requests without a valid bearer token or kiosk key.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(KioskKeyHeader); key != "" {
			actor, ok := a.kioskActor(key)
			if !ok {
				httpx.WriteError(w, domain.Unauthorized("invalid kiosk key"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			httpx.WriteError(w, domain.Unauthorized("authorization header required"))
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			httpx.WriteError(w, domain.Unauthorized("invalid authorization header format, use Bearer <token>"))
			return
		}

		actor, err := a.ParseToken(token)
		if err != nil {
			httpx.WriteError(w, domain.Unauthorized("invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole lets through only callers with one of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				httpx.WriteError(w, domain.Unauthorized("no authenticated caller"))
				return
			}
			if !slices.Contains(roles, actor.Role) {
				httpx.WriteError(w, domain.Forbidden("role %s may not perform this action", actor.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelf stops a patron from reaching another patron's record. The record is
// named by the URL parameter param; staff and kiosks pass.
func RequireSelf(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				httpx.WriteError(w, domain.Unauthorized("no authenticated caller"))
				return
			}
			if actor.Role == domain.RolePatron && actor.ID != chi.URLParam(r, param) {
				httpx.WriteError(w, domain.Forbidden("patrons may only read their own records"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
