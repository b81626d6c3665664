// Package observability carries the logging, tracing, and metrics plumbing
// shared by every askdb binary.
package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/askdb/askdb/internal/config"
)

type traceKeyType struct{}

var traceKey traceKeyType

// NewLogger builds the service logger: JSON for machines, text for dev
// shells, with service and profile attached to every record.
func NewLogger(cfg config.Config, out io.Writer) *slog.Logger {
	if out == nil {
		out = io.Discard
	}
	opts := slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	handler := slog.Handler(slog.NewTextHandler(out, &opts))
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(out, &opts)
	}
	return slog.New(handler).With("service", cfg.Service.Name, "profile", string(cfg.Profile))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceKey).(string)
	return traceID
}
