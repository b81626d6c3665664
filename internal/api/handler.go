package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/catalog"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/ingest"
	"github.com/askdb/askdb/internal/maintenance"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/snapshot"
)

type ReadinessCheck func(ctx context.Context) error

// QuestionAgent is the ask pipeline: translate, execute, narrate.
type QuestionAgent interface {
	Ask(ctx context.Context, question string) (agent.Answer, error)
	AskStream(ctx context.Context, question string, emit func(agent.Event) error) error
	Translate(ctx context.Context, question string) (nl2sql.Result, error)
}

type IngestRunner interface {
	LoadTable(ctx context.Context, table, source string, reset bool) (ingest.TableResult, error)
	LoadTableFrom(ctx context.Context, table, source string, r io.Reader, reset bool) (ingest.TableResult, error)
}

type MaintenanceRunner interface {
	RunVacuumOnce(ctx context.Context) (maintenance.VacuumSummary, error)
	RunBackupOnce(ctx context.Context) (maintenance.BackupSummary, error)
	RunSnapshotOnce(ctx context.Context) (snapshot.Summary, error)
	RunRetentionOnce(ctx context.Context) (maintenance.RetentionSummary, error)
	RunIntegrityCheckOnce(ctx context.Context) (maintenance.IntegritySummary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	Agent             QuestionAgent
	QueryEngine       query.Engine
	QueryRowLimit     int
	QueryAllowWrites  bool
	Ingest            IngestRunner
	Maintenance       MaintenanceRunner
	SchemaSampleRows  int
	UI                http.Handler
}

// withDeps binds the dependency bundle to a handler func.
func withDeps(deps Dependencies, h func(Dependencies, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(deps, w, r)
	}
}

func runMaintenance(deps Dependencies, operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handleMaintenanceRun(deps, w, r, operation)
	}
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.HandleFunc("GET /v1/ready", readyHandler(deps))
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	// Everything below sits behind auth when the profile requires it.
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST /v1/ask", withDeps(deps, handleAsk)},
		{"POST /v1/query/translate", withDeps(deps, handleTranslate)},
		{"POST /v1/query", withDeps(deps, handleQuery)},
		{"GET /v1/tables", withDeps(deps, handleListTables)},
		{"GET /v1/tables/{table}", withDeps(deps, handleGetTable)},
		{"GET /v1/ui/schema", withDeps(deps, handleUISchema)},
		{"GET /v1/status", withDeps(deps, handleStatus)},
		{"POST /v1/ingest/{table}", withDeps(deps, handleIngest)},
		{"POST /v1/vacuum/run", runMaintenance(deps, "vacuum")},
		{"POST /v1/snapshot/run", runMaintenance(deps, "snapshot")},
		{"POST /v1/backup/run", runMaintenance(deps, "backup")},
		{"POST /v1/retention/run", runMaintenance(deps, "retention")},
		{"POST /v1/integrity/run", runMaintenance(deps, "integrity")},
	}

	protected := http.NewServeMux()
	for _, route := range routes {
		protected.HandleFunc(route.pattern, route.handler)
	}
	guarded := guard(cfg, deps, protected)
	for _, route := range routes {
		mux.Handle(route.pattern, guarded)
	}

	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	var handler http.Handler = mux
	if deps.Logger != nil {
		handler = observability.LoggingMiddleware(deps.Logger)(handler)
	}
	handler = observability.MetricsMiddleware(handler)
	return observability.TraceMiddleware(handler)
}

// guard wraps the protected mux in the auth middleware. A profile that
// demands auth without wiring the middleware gets a handler that refuses
// every request rather than an open API.
func guard(cfg config.Config, deps Dependencies, protected http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return protected
	}
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	}
	return deps.AuthMiddleware(protected)
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness != nil {
			timeout := deps.DependencyTimeout
			if timeout <= 0 {
				timeout = 2 * time.Second
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := deps.Readiness(ctx); err != nil {
				writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

// CheckDatabase verifies the SQLite file answers a ping and carries the
// product tables.
func CheckDatabase(repo catalog.Repository) ReadinessCheck {
	return func(ctx context.Context) error {
		if repo == nil {
			return errors.New("catalog repository is not configured")
		}
		if err := repo.HealthCheck(ctx); err != nil {
			return err
		}
		return repo.RequireTables(ctx, ingest.TableNames()...)
	}
}

func CheckDatabasePath(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("database path is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// requireRole passes when auth is disabled and no identity reached the
// handler.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

// allow enforces a role requirement, writing the FORBIDDEN reply itself when
// the caller lacks it.
func allow(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := requireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return false
	}
	return true
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
// what names the request kind in the INVALID_JSON message.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, what string) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid "+what+" request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}
