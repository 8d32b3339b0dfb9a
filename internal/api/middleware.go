package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leca/studio-images/internal/model"
)

type contextKey string

const collectionKey contextKey = "collection"

// AuthMiddleware guards mutating routes. An empty token leaves the routes
// open; otherwise the request must carry "Authorization: Bearer <token>".
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, prefix) {
				Unauthorized(w)
				return
			}
			if subtle.ConstantTimeCompare([]byte(authHeader[len(prefix):]), []byte(token)) != 1 {
				Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CollectionMiddleware validates the {collection} URL parameter and stores
// it in the request context.
func CollectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := model.ParseCollection(chi.URLParam(r, "collection"))
		if !ok {
			NotFound(w, "Unknown collection")
			return
		}
		ctx := context.WithValue(r.Context(), collectionKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCollection retrieves the collection stored by CollectionMiddleware.
func GetCollection(ctx context.Context) model.Collection {
	v, _ := ctx.Value(collectionKey).(model.Collection)
	return v
}

// RateLimitHandler answers requests rejected by httprate.
func RateLimitHandler(w http.ResponseWriter, r *http.Request) {
	TooManyRequests(w)
}
