package http

import (
	"context"
	"net/http"

	"fleet-monitor/locintel/internal/auth"
)

type principalKey struct{}

// Resolver maps an API key to its principal.
type Resolver interface {
	Resolve(ctx context.Context, apiKey string) (auth.Principal, bool)
}

type AuthMiddleware struct {
	auth Resolver
}

func NewAuthMiddleware(a Resolver) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

// Wrap resolves X-API-Key and stores the principal in the request context.
// Browser EventSource and WebSocket clients cannot set headers, so the
// api_key query parameter is accepted as well.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}
		if apiKey == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing X-API-Key header"})
			return
		}

		p, ok := m.auth.Resolve(r.Context(), apiKey)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid API key"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// Owner admits only owner principals.
func (m *AuthMiddleware) Owner(next http.HandlerFunc) http.Handler {
	return m.Wrap(requireKind(auth.KindOwner, next))
}

// Entity admits only entity principals.
func (m *AuthMiddleware) Entity(next http.HandlerFunc) http.Handler {
	return m.Wrap(requireKind(auth.KindEntity, next))
}

func requireKind(kind string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if principalFrom(r.Context()).Kind != kind {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "endpoint requires an " + kind + " key"})
			return
		}
		next(w, r)
	}
}

func principalFrom(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(principalKey{}).(auth.Principal)
	return p
}
