package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/observability"
)

type identityKeyType struct{}

var identityKey identityKeyType

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Middleware authenticates requests via the X-API-Key header or a bearer
// token and stores the resolved identity on the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := requestKey(r)
			if !ok {
				deny(w, r, "missing API key")
				return
			}
			id, valid := validator.Validate(r.Context(), key)
			if !valid {
				if logger != nil {
					logger.WarnContext(r.Context(), "authentication failed",
						"trace_id", observability.TraceIDFromContext(r.Context()),
						"path", r.URL.Path)
				}
				deny(w, r, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// requestKey prefers X-API-Key and falls back to a bearer Authorization
// header.
func requestKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && strings.EqualFold(strings.TrimSpace(scheme), "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	return "", false
}

func deny(w http.ResponseWriter, r *http.Request, message string) {
	body := struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
		TraceID   string `json:"trace_id"`
	}{
		ErrorCode: "UNAUTHORIZED",
		Message:   message,
		TraceID:   observability.TraceIDFromContext(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}
